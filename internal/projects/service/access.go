package service

import (
	"fmt"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
)

// canAccess applies the ownership rule: an owner-less project is open to
// every identity, an owned one only to its owner.
func canAccess(h *domain.StateHeader, identity string) bool {
	return h.Owner == "" || h.Owner == identity
}

// authorize loads the project header, failing with ErrProjectDoesNotExist
// before it ever reports ErrUnauthorized.
func (s *ProjectService) authorize(identity, name string) (*domain.StateHeader, error) {
	h, err := s.repo.LoadHeader(name)
	if err != nil {
		return nil, err
	}
	if !canAccess(h, identity) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, name)
	}
	return h, nil
}
