package repository

import (
	"context"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
)

// Store persists accounts. Lookups that find nothing return
// domain.ErrAccountNotFound.
type Store interface {
	AddAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, sid string) (*domain.Account, error)
	// GetAccountByName matches a sid, an email or a friendly name, in that order.
	GetAccountByName(ctx context.Context, name string) (*domain.Account, error)
	// GetAccountToAuthenticate matches a sid or an email only. Friendly
	// names are not unique and never authenticate.
	GetAccountToAuthenticate(ctx context.Context, name string) (*domain.Account, error)
	GetSubAccounts(ctx context.Context, parentSid string) ([]domain.Account, error)
	RemoveAccount(ctx context.Context, sid string) error
	UpdateAccount(ctx context.Context, a *domain.Account) error
	Ping(ctx context.Context) error
}
