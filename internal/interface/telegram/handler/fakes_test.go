package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAccessRepo is an in-memory access store with real key lifecycle
// semantics, so handlers can be exercised against actual activations,
// cascading deletes and owner checks.
type fakeAccessRepo struct {
	mu      sync.Mutex
	superID shared.TelegramID
	keys    []*access.AccessKey
	users   []*access.AuthorizedUser
	err     error
}

var _ access.Repository = (*fakeAccessRepo)(nil)

func (r *fakeAccessRepo) CreateKey(_ context.Context, key *access.AccessKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, k := range r.keys {
		if k.Token == key.Token {
			return shared.ErrAlreadyExists
		}
	}
	copied := *key
	r.keys = append(r.keys, &copied)
	return nil
}

func (r *fakeAccessRepo) GetKey(_ context.Context, token access.KeyToken) (*access.AccessKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, k := range r.keys {
		if k.Token == token {
			copied := *k
			return &copied, nil
		}
	}
	return nil, shared.ErrKeyNotFound
}

func (r *fakeAccessRepo) ActivateKey(_ context.Context, token access.KeyToken, userID shared.TelegramID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if userID == r.superID {
		return false, nil
	}
	for _, u := range r.users {
		if u.UserID == userID {
			return false, nil
		}
	}
	for _, k := range r.keys {
		if k.Token != token || k.IsUsed() {
			continue
		}
		now := time.Now().UTC()
		if err := k.Activate(userID, name, now); err != nil {
			return false, nil
		}
		r.users = append(r.users, &access.AuthorizedUser{
			UserID:      userID,
			Name:        name,
			KeyUsed:     token,
			ActivatedAt: now,
		})
		return true, nil
	}
	return false, nil
}

func (r *fakeAccessRepo) DeleteKey(_ context.Context, token access.KeyToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	for i, k := range r.keys {
		if k.Token != token {
			continue
		}
		r.keys = append(r.keys[:i], r.keys[i+1:]...)
		if k.IsUsed() {
			for j, u := range r.users {
				if u.UserID == *k.ActivatedBy {
					r.users = append(r.users[:j], r.users[j+1:]...)
					break
				}
			}
		}
		return true, nil
	}
	return false, nil
}

func (r *fakeAccessRepo) ListKeys(context.Context) ([]*access.AccessKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	keys := make([]*access.AccessKey, len(r.keys))
	copy(keys, r.keys)
	access.SortKeys(keys)
	return keys, nil
}

func (r *fakeAccessRepo) TokenExists(token access.KeyToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.Token == token {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAccessRepo) GetUser(_ context.Context, userID shared.TelegramID) (*access.AuthorizedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UserID == userID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrUserNotFound
}

func (r *fakeAccessRepo) ListUsers(context.Context) ([]*access.AuthorizedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]*access.AuthorizedUser, len(r.users))
	copy(users, r.users)
	access.SortUsers(users)
	return users, nil
}

func (r *fakeAccessRepo) CountUsers(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

func (r *fakeAccessRepo) IsAuthorized(_ context.Context, userID shared.TelegramID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if userID == r.superID {
		return true, nil
	}
	for _, u := range r.users {
		if u.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAccessRepo) IsSuperUser(userID shared.TelegramID) bool {
	return userID == r.superID
}

// unusedKey builds an unused key for seeding.
func unusedKey(token string, createdAt time.Time) *access.AccessKey {
	return &access.AccessKey{Token: access.KeyToken(token), CreatedAt: createdAt}
}

// seedActivated seeds a used key together with its authorized user.
func (r *fakeAccessRepo) seedActivated(token string, by int64, name string, at time.Time) {
	id := shared.TelegramID(by)
	r.keys = append(r.keys, &access.AccessKey{
		Token:           access.KeyToken(token),
		CreatedAt:       at.Add(-time.Hour),
		ActivatedBy:     &id,
		ActivatedByName: &name,
		ActivatedAt:     &at,
	})
	r.users = append(r.users, &access.AuthorizedUser{
		UserID:      id,
		Name:        name,
		KeyUsed:     access.KeyToken(token),
		ActivatedAt: at,
	})
}

// fakeFetcher returns canned records and captures requested periods.
type fakeFetcher struct {
	mu      sync.Mutex
	records []homework.Record
	err     error
	periods []homework.Period
}

var _ homework.Fetcher = (*fakeFetcher)(nil)

func (f *fakeFetcher) FetchHomework(_ context.Context, period homework.Period) ([]homework.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periods = append(f.periods, period)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]homework.Record, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.periods)
}

func (f *fakeFetcher) lastPeriod() homework.Period {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.periods) == 0 {
		return homework.Period{}
	}
	return f.periods[len(f.periods)-1]
}

// mustRecord builds a normalized homework record for seeding.
func mustRecord(subject, date, text string, done bool) homework.Record {
	rec, err := homework.NewRecord(subject, homework.MustParseDate(date), text, done, nil)
	if err != nil {
		panic(err)
	}
	return rec
}
