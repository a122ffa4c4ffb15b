package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/repository"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
)

// ErrForbidden is returned when the acting account may not touch the target.
var ErrForbidden = errors.New("operation not permitted on this account")

// maxDepth bounds the parent walk; account trees are shallow.
const maxDepth = 16

type AccountService struct {
	store repository.Store
	log   *zap.Logger
}

func NewAccountService(store repository.Store, log *zap.Logger) *AccountService {
	return &AccountService{store: store, log: logging.OrNop(log)}
}

// CreateAccountRequest describes a new sub-account.
type CreateAccountRequest struct {
	Email        string `json:"email" binding:"required,email"`
	FriendlyName string `json:"friendlyName"`
	Role         string `json:"role"`
	Status       string `json:"status"`
}

// UpdateAccountRequest carries the fields to change; nil fields are kept.
type UpdateAccountRequest struct {
	FriendlyName *string `json:"friendlyName,omitempty"`
	Email        *string `json:"email,omitempty"`
	Role         *string `json:"role,omitempty"`
	Status       *string `json:"status,omitempty"`
}

// Get returns the account matching name (sid, email or friendly name) if it
// belongs to actor's tree.
func (s *AccountService) Get(ctx context.Context, actor *domain.Account, name string) (*domain.Account, error) {
	a, err := s.store.GetAccountByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.checkTree(ctx, actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SubAccounts lists the direct sub-accounts of the account matching name.
func (s *AccountService) SubAccounts(ctx context.Context, actor *domain.Account, name string) ([]domain.Account, error) {
	parent, err := s.Get(ctx, actor, name)
	if err != nil {
		return nil, err
	}
	return s.store.GetSubAccounts(ctx, parent.Sid)
}

// CreateSubAccount adds an account under actor. The new role may not exceed
// the actor's own.
func (s *AccountService) CreateSubAccount(ctx context.Context, actor *domain.Account, req CreateAccountRequest) (*domain.Account, error) {
	a := &domain.Account{
		Sid:          domain.NewSid(),
		ParentSid:    actor.Sid,
		FriendlyName: strings.TrimSpace(req.FriendlyName),
		Email:        strings.TrimSpace(req.Email),
		Role:         req.Role,
		Status:       req.Status,
	}
	if a.Role == "" {
		a.Role = domain.RoleRestcommUser
	}
	if a.Status == "" {
		a.Status = domain.StatusActive
	}
	if a.FriendlyName == "" {
		a.FriendlyName = a.Email
	}
	if err := checkFields(actor, a); err != nil {
		return nil, err
	}
	if err := s.store.AddAccount(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info("account created", zap.String("sid", a.Sid), zap.String("parent", actor.Sid), zap.String("role", a.Role))
	return a, nil
}

// Update applies req to the account matching name.
func (s *AccountService) Update(ctx context.Context, actor *domain.Account, name string, req UpdateAccountRequest) (*domain.Account, error) {
	a, err := s.Get(ctx, actor, name)
	if err != nil {
		return nil, err
	}
	if req.FriendlyName != nil {
		a.FriendlyName = strings.TrimSpace(*req.FriendlyName)
	}
	if req.Email != nil {
		a.Email = strings.TrimSpace(*req.Email)
	}
	if req.Role != nil {
		a.Role = *req.Role
	}
	if req.Status != nil {
		a.Status = *req.Status
	}
	if a.Sid == actor.Sid && (a.Role != actor.Role || a.Status != actor.Status) {
		return nil, fmt.Errorf("%w: cannot change own role or status", ErrForbidden)
	}
	if err := checkFields(actor, a); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Remove deletes the account matching name together with its sub-accounts.
func (s *AccountService) Remove(ctx context.Context, actor *domain.Account, name string) error {
	a, err := s.Get(ctx, actor, name)
	if err != nil {
		return err
	}
	if a.Sid == actor.Sid {
		return fmt.Errorf("%w: cannot remove own account", ErrForbidden)
	}
	return s.removeTree(ctx, a.Sid, 0)
}

func (s *AccountService) removeTree(ctx context.Context, sid string, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("account tree under %s is too deep", sid)
	}
	children, err := s.store.GetSubAccounts(ctx, sid)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := s.removeTree(ctx, c.Sid, depth+1); err != nil {
			return err
		}
	}
	if err := s.store.RemoveAccount(ctx, sid); err != nil {
		return err
	}
	s.log.Info("account removed", zap.String("sid", sid))
	return nil
}

// checkTree allows the actor itself and every account below it.
func (s *AccountService) checkTree(ctx context.Context, actor, target *domain.Account) error {
	cur := target
	for depth := 0; depth <= maxDepth; depth++ {
		if cur.Sid == actor.Sid {
			return nil
		}
		if cur.ParentSid == "" {
			break
		}
		parent, err := s.store.GetAccount(ctx, cur.ParentSid)
		if errors.Is(err, domain.ErrAccountNotFound) {
			break
		}
		if err != nil {
			return err
		}
		cur = parent
	}
	return fmt.Errorf("%w: %s", ErrForbidden, target.Sid)
}

func checkFields(actor, a *domain.Account) error {
	if !domain.IsKnownRole(a.Role) {
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidAccount, a.Role)
	}
	if !domain.IsKnownStatus(a.Status) {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidAccount, a.Status)
	}
	if !actor.HasRole(a.Role) {
		return fmt.Errorf("%w: cannot grant role %s", ErrForbidden, a.Role)
	}
	return nil
}
