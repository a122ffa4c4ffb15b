package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
)

// Operator operations act on projects regardless of owner. They back the
// maintenance CLI and are never routed over HTTP.

// ListAllProjects returns every readable project in the workspace.
func (s *ProjectService) ListAllProjects(ctx context.Context) ([]domain.ProjectItem, error) {
	return s.listItems(func(*domain.StateHeader) bool { return true })
}

// ProjectOwner returns the owner recorded in the project header, "" for an
// owner-less project.
func (s *ProjectService) ProjectOwner(name string) (string, error) {
	h, err := s.repo.LoadHeader(name)
	if err != nil {
		return "", err
	}
	return h.Owner, nil
}

// UpgradeReport is the outcome of upgrading one project.
type UpgradeReport struct {
	Project string `json:"project"`
	From    int    `json:"from"`
	Error   string `json:"error,omitempty"`
}

// UpgradeAll upgrades and rebuilds every project behind the running version.
// A failing project is reported and does not stop the others.
func (s *ProjectService) UpgradeAll(ctx context.Context) ([]UpgradeReport, error) {
	items, err := s.ListAllProjects(ctx)
	if err != nil {
		return nil, err
	}
	var reports []UpgradeReport
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		if it.Version == s.version {
			continue
		}
		from, err := s.UpgradeProject(ctx, it.Owner, it.Name)
		r := UpgradeReport{Project: it.Name, From: from}
		if err != nil {
			r.Error = err.Error()
			s.log.Warn("project not upgraded", zap.String("project", it.Name), zap.Error(err))
		}
		reports = append(reports, r)
	}
	return reports, nil
}
