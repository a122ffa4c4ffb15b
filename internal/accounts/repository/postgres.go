package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
)

const uniqueViolation = "23505"

// Schema creates the accounts table.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	sid           TEXT PRIMARY KEY,
	parent_sid    TEXT REFERENCES accounts(sid) ON DELETE CASCADE,
	friendly_name TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL UNIQUE,
	status        TEXT NOT NULL,
	role          TEXT NOT NULL,
	date_created  TIMESTAMPTZ NOT NULL,
	date_updated  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS accounts_parent_sid_idx ON accounts (parent_sid);
CREATE INDEX IF NOT EXISTS accounts_friendly_name_idx ON accounts (friendly_name);
`

const accountColumns = `sid, parent_sid, friendly_name, email, status, role, date_created, date_updated`

// PostgresStore keeps accounts in the accounts table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// EnsureSchema creates the table and indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure accounts schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddAccount inserts a, stamping its dates.
func (s *PostgresStore) AddAccount(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	a.DateCreated, a.DateUpdated = now, now

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.Sid, nullString(a.ParentSid), a.FriendlyName, a.Email, a.Status, a.Role, a.DateCreated, a.DateUpdated)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrAccountExists, a.Sid)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, sid string) (*domain.Account, error) {
	return s.getBy(ctx, "sid", sid)
}

func (s *PostgresStore) GetAccountByName(ctx context.Context, name string) (*domain.Account, error) {
	return s.firstOf(ctx, name, "sid", "email", "friendly_name")
}

func (s *PostgresStore) GetAccountToAuthenticate(ctx context.Context, name string) (*domain.Account, error) {
	return s.firstOf(ctx, name, "sid", "email")
}

func (s *PostgresStore) firstOf(ctx context.Context, value string, columns ...string) (*domain.Account, error) {
	for _, col := range columns {
		a, err := s.getBy(ctx, col, value)
		if errors.Is(err, domain.ErrAccountNotFound) {
			continue
		}
		return a, err
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, value)
}

// getBy loads the oldest account whose column equals value. column is
// always one of the fixed names above.
func (s *PostgresStore) getBy(ctx context.Context, column, value string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + column + ` = $1 ORDER BY date_created LIMIT 1`
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("get account by %s: %w", column, err)
	}
	return a, nil
}

// GetSubAccounts lists the direct children of parentSid, oldest first.
func (s *PostgresStore) GetSubAccounts(ctx context.Context, parentSid string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE parent_sid = $1 ORDER BY date_created`
	rows, err := s.db.QueryContext(ctx, query, parentSid)
	if err != nil {
		return nil, fmt.Errorf("list sub-accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sub-account: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sub-accounts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RemoveAccount(ctx context.Context, sid string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE sid = $1`, sid)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, sid)
	}
	return nil
}

// UpdateAccount stores the mutable fields of a. The sid, parent and
// creation date never change.
func (s *PostgresStore) UpdateAccount(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.DateUpdated = s.now().UTC()

	query := `
		UPDATE accounts
		SET friendly_name = $2, email = $3, status = $4, role = $5, date_updated = $6
		WHERE sid = $1
	`
	res, err := s.db.ExecContext(ctx, query, a.Sid, a.FriendlyName, a.Email, a.Status, a.Role, a.DateUpdated)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: email %s", domain.ErrAccountExists, a.Email)
	}
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, a.Sid)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var parent sql.NullString
	if err := row.Scan(&a.Sid, &parent, &a.FriendlyName, &a.Email, &a.Status, &a.Role, &a.DateCreated, &a.DateUpdated); err != nil {
		return nil, err
	}
	if parent.Valid {
		a.ParentSid = parent.String
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
