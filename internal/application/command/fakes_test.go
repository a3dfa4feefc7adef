package command

import (
	"context"
	"sync"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

var _ access.Repository = (*fakeRepo)(nil)

// fakeRepo is an in-memory access.Repository for handler tests. It mirrors
// the documented repository semantics, including the activation rejections.
type fakeRepo struct {
	mu        sync.Mutex
	keys      map[access.KeyToken]*access.AccessKey
	users     map[shared.TelegramID]*access.AuthorizedUser
	superUser shared.TelegramID

	// failWith, when set, makes every store call return this error.
	failWith error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		keys:  make(map[access.KeyToken]*access.AccessKey),
		users: make(map[shared.TelegramID]*access.AuthorizedUser),
	}
}

func (r *fakeRepo) CreateKey(_ context.Context, key *access.AccessKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.keys[key.Token]; ok {
		return shared.ErrAlreadyExists
	}
	cp := *key
	r.keys[key.Token] = &cp
	return nil
}

func (r *fakeRepo) GetKey(_ context.Context, token access.KeyToken) (*access.AccessKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	key, ok := r.keys[token]
	if !ok {
		return nil, shared.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

func (r *fakeRepo) ActivateKey(_ context.Context, token access.KeyToken, userID shared.TelegramID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	if userID == r.superUser && r.superUser != 0 {
		return false, nil
	}
	if _, ok := r.users[userID]; ok {
		return false, nil
	}
	key, ok := r.keys[token]
	if !ok || key.IsUsed() {
		return false, nil
	}

	now := time.Now().UTC()
	if err := key.Activate(userID, name, now); err != nil {
		return false, nil
	}
	r.users[userID] = &access.AuthorizedUser{
		UserID:      userID,
		Name:        name,
		KeyUsed:     token,
		ActivatedAt: now,
	}
	return true, nil
}

func (r *fakeRepo) DeleteKey(_ context.Context, token access.KeyToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	key, ok := r.keys[token]
	if !ok {
		return false, nil
	}
	if key.ActivatedBy != nil {
		delete(r.users, *key.ActivatedBy)
	}
	delete(r.keys, token)
	return true, nil
}

func (r *fakeRepo) ListKeys(_ context.Context) ([]*access.AccessKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	keys := make([]*access.AccessKey, 0, len(r.keys))
	for _, k := range r.keys {
		cp := *k
		keys = append(keys, &cp)
	}
	access.SortKeys(keys)
	return keys, nil
}

func (r *fakeRepo) TokenExists(token access.KeyToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	_, ok := r.keys[token]
	return ok, nil
}

func (r *fakeRepo) GetUser(_ context.Context, userID shared.TelegramID) (*access.AuthorizedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) ListUsers(_ context.Context) ([]*access.AuthorizedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]*access.AuthorizedUser, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		users = append(users, &cp)
	}
	access.SortUsers(users)
	return users, nil
}

func (r *fakeRepo) CountUsers(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

func (r *fakeRepo) IsAuthorized(_ context.Context, userID shared.TelegramID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID == r.superUser && r.superUser != 0 {
		return true, nil
	}
	_, ok := r.users[userID]
	return ok, nil
}

func (r *fakeRepo) IsSuperUser(userID shared.TelegramID) bool {
	return userID == r.superUser && r.superUser != 0
}

// fakePublisher captures published events for assertions.
type fakePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *fakePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.Event, len(p.events))
	copy(out, p.events)
	return out
}

// mustSeedKey stores an unused key with the given token.
func mustSeedKey(r *fakeRepo, token string) *access.AccessKey {
	key, err := access.NewAccessKey(access.KeyToken(token), time.Now().UTC())
	if err != nil {
		panic(err)
	}
	if err := r.CreateKey(context.Background(), key); err != nil {
		panic(err)
	}
	return key
}
