package query

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

// fakeFetcher returns canned records and captures the requested period.
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

func (f *fakeFetcher) lastPeriod() homework.Period {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.periods) == 0 {
		return homework.Period{}
	}
	return f.periods[len(f.periods)-1]
}

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) published() []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.Event, len(p.events))
	copy(out, p.events)
	return out
}

// fakeAccessRepo serves the read-side queries from seeded slices.
type fakeAccessRepo struct {
	keys  []*access.AccessKey
	users []*access.AuthorizedUser
	err   error
}

var _ access.Repository = (*fakeAccessRepo)(nil)

func (r *fakeAccessRepo) CreateKey(context.Context, *access.AccessKey) error { return nil }

func (r *fakeAccessRepo) GetKey(context.Context, access.KeyToken) (*access.AccessKey, error) {
	return nil, shared.ErrKeyNotFound
}

func (r *fakeAccessRepo) ActivateKey(context.Context, access.KeyToken, shared.TelegramID, string) (bool, error) {
	return false, nil
}

func (r *fakeAccessRepo) DeleteKey(context.Context, access.KeyToken) (bool, error) {
	return false, nil
}

func (r *fakeAccessRepo) ListKeys(context.Context) ([]*access.AccessKey, error) {
	if r.err != nil {
		return nil, r.err
	}
	keys := make([]*access.AccessKey, len(r.keys))
	copy(keys, r.keys)
	access.SortKeys(keys)
	return keys, nil
}

func (r *fakeAccessRepo) TokenExists(access.KeyToken) (bool, error) { return false, nil }

func (r *fakeAccessRepo) GetUser(context.Context, shared.TelegramID) (*access.AuthorizedUser, error) {
	return nil, shared.ErrUserNotFound
}

func (r *fakeAccessRepo) ListUsers(context.Context) ([]*access.AuthorizedUser, error) {
	if r.err != nil {
		return nil, r.err
	}
	users := make([]*access.AuthorizedUser, len(r.users))
	copy(users, r.users)
	access.SortUsers(users)
	return users, nil
}

func (r *fakeAccessRepo) CountUsers(context.Context) (int, error) {
	return len(r.users), nil
}

func (r *fakeAccessRepo) IsAuthorized(context.Context, shared.TelegramID) (bool, error) {
	return false, nil
}

func (r *fakeAccessRepo) IsSuperUser(shared.TelegramID) bool { return false }

// unusedKey builds an unused key for seeding.
func unusedKey(token string, createdAt time.Time) *access.AccessKey {
	return &access.AccessKey{Token: access.KeyToken(token), CreatedAt: createdAt}
}

// usedKey builds an activated key for seeding.
func usedKey(token string, createdAt time.Time, by int64, name string, at time.Time) *access.AccessKey {
	id := shared.TelegramID(by)
	return &access.AccessKey{
		Token:           access.KeyToken(token),
		CreatedAt:       createdAt,
		ActivatedBy:     &id,
		ActivatedByName: &name,
		ActivatedAt:     &at,
	}
}

// mustRecord builds a normalized homework record for seeding.
func mustRecord(subject, date, text string, done bool) homework.Record {
	rec, err := homework.NewRecord(subject, homework.MustParseDate(date), text, done, nil)
	if err != nil {
		panic(err)
	}
	return rec
}
