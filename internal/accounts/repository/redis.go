package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
)

const (
	accountKeyPrefix  = "rvd:account:"          // account JSON: rvd:account:{sid}
	emailIndexPrefix  = "rvd:account:email:"    // email -> sid
	nameIndexPrefix   = "rvd:account:name:"     // friendly name -> set of sids
	childrenSetPrefix = "rvd:account:children:" // parent sid -> set of child sids
)

// RedisStore keeps accounts as JSON values with secondary index keys.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func accountKey(sid string) string { return accountKeyPrefix + sid }
func emailKey(email string) string { return emailIndexPrefix + strings.ToLower(email) }
func nameKey(name string) string { return nameIndexPrefix + name }
func childrenKey(parent string) string { return childrenSetPrefix + parent }

// AddAccount stores a and its index entries. The sid and email must be
// unused.
func (s *RedisStore) AddAccount(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	a.DateCreated, a.DateUpdated = now, now

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	ok, err := s.client.SetNX(ctx, emailKey(a.Email), a.Sid, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve email: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: email %s", domain.ErrAccountExists, a.Email)
	}
	ok, err = s.client.SetNX(ctx, accountKey(a.Sid), data, 0).Result()
	if err != nil || !ok {
		s.client.Del(ctx, emailKey(a.Email))
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		return fmt.Errorf("%w: %s", domain.ErrAccountExists, a.Sid)
	}

	pipe := s.client.TxPipeline()
	if a.FriendlyName != "" {
		pipe.SAdd(ctx, nameKey(a.FriendlyName), a.Sid)
	}
	if a.ParentSid != "" {
		pipe.SAdd(ctx, childrenKey(a.ParentSid), a.Sid)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index account: %w", err)
	}
	return nil
}

func (s *RedisStore) GetAccount(ctx context.Context, sid string) (*domain.Account, error) {
	data, err := s.client.Get(ctx, accountKey(sid)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, sid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	var a domain.Account
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &a, nil
}

func (s *RedisStore) GetAccountByName(ctx context.Context, name string) (*domain.Account, error) {
	a, err := s.GetAccountToAuthenticate(ctx, name)
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return a, err
	}
	sids, err := s.client.SMembers(ctx, nameKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up friendly name: %w", err)
	}
	accounts, err := s.load(ctx, sids)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, name)
	}
	return &accounts[0], nil
}

func (s *RedisStore) GetAccountToAuthenticate(ctx context.Context, name string) (*domain.Account, error) {
	a, err := s.GetAccount(ctx, name)
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return a, err
	}
	sid, err := s.client.Get(ctx, emailKey(name)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	return s.GetAccount(ctx, sid)
}

// GetSubAccounts lists the direct children of parentSid, oldest first.
func (s *RedisStore) GetSubAccounts(ctx context.Context, parentSid string) ([]domain.Account, error) {
	sids, err := s.client.SMembers(ctx, childrenKey(parentSid)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-accounts: %w", err)
	}
	return s.load(ctx, sids)
}

// load fetches the accounts for sids, skipping stale index entries, oldest
// first.
func (s *RedisStore) load(ctx context.Context, sids []string) ([]domain.Account, error) {
	out := make([]domain.Account, 0, len(sids))
	for _, sid := range sids {
		a, err := s.GetAccount(ctx, sid)
		if errors.Is(err, domain.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateCreated.Equal(out[j].DateCreated) {
			return out[i].Sid < out[j].Sid
		}
		return out[i].DateCreated.Before(out[j].DateCreated)
	})
	return out, nil
}

func (s *RedisStore) RemoveAccount(ctx context.Context, sid string) error {
	a, err := s.GetAccount(ctx, sid)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, accountKey(sid), emailKey(a.Email))
	if a.FriendlyName != "" {
		pipe.SRem(ctx, nameKey(a.FriendlyName), sid)
	}
	if a.ParentSid != "" {
		pipe.SRem(ctx, childrenKey(a.ParentSid), sid)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	return nil
}

// UpdateAccount stores the mutable fields of a, moving its index entries
// when the email or friendly name changed.
func (s *RedisStore) UpdateAccount(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	existing, err := s.GetAccount(ctx, a.Sid)
	if err != nil {
		return err
	}

	emailChanged := !strings.EqualFold(existing.Email, a.Email)
	if emailChanged {
		ok, err := s.client.SetNX(ctx, emailKey(a.Email), a.Sid, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to reserve email: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: email %s", domain.ErrAccountExists, a.Email)
		}
	}

	a.ParentSid = existing.ParentSid
	a.DateCreated = existing.DateCreated
	a.DateUpdated = s.now().UTC()
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, accountKey(a.Sid), data, 0)
	if emailChanged {
		pipe.Del(ctx, emailKey(existing.Email))
	}
	if existing.FriendlyName != a.FriendlyName {
		if existing.FriendlyName != "" {
			pipe.SRem(ctx, nameKey(existing.FriendlyName), a.Sid)
		}
		if a.FriendlyName != "" {
			pipe.SAdd(ctx, nameKey(a.FriendlyName), a.Sid)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}
