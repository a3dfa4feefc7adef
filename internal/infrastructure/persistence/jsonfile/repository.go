package jsonfile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Repository implements access.Repository backed by a JSON file.
// A single RWMutex serializes all mutations; reads share the lock. With one
// admin and a handful of users the file never grows past a few kilobytes, so
// whole-file rewrites per mutation are fine.
type Repository struct {
	mu        sync.RWMutex
	path      string
	doc       document
	superUser shared.TelegramID
	logger    *slog.Logger
	nowFn     func() time.Time
}

// Params contains dependencies for the repository.
type Params struct {
	// Path is the location of the JSON data file.
	Path string

	// SuperUser is authorized by configuration and never consumes keys.
	SuperUser shared.TelegramID

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// New loads the store file and returns a ready repository.
// A missing file starts an empty store; an unreadable or corrupt file is
// logged and also starts empty, matching how the bot always recovered from a
// damaged data file rather than refusing to boot.
func New(params Params) (*Repository, error) {
	if params.Path == "" {
		return nil, fmt.Errorf("jsonfile: store path is required")
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	doc, err := loadDocument(params.Path)
	if err != nil {
		logger.Error("store file unreadable, starting empty",
			"path", params.Path,
			"error", err,
		)
		doc = newDocument()
	}

	logger.Info("key store loaded",
		"path", params.Path,
		"keys", len(doc.Keys),
		"users", len(doc.Users),
	)

	return &Repository{
		path:      params.Path,
		doc:       doc,
		superUser: params.SuperUser,
		logger:    logger,
		nowFn:     time.Now,
	}, nil
}

// persist writes the candidate document and commits it to memory on success.
// Callers must hold the write lock.
func (r *Repository) persist(next document) error {
	if err := saveDocument(r.path, next); err != nil {
		r.logger.Error("store write failed, keeping last persisted state", "error", err)
		return fmt.Errorf("%w: %v", shared.ErrStoreWriteFailed, err)
	}
	r.doc = next
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Key Operations
// ─────────────────────────────────────────────────────────────────────────────

// CreateKey persists a new unused key.
func (r *Repository) CreateKey(ctx context.Context, key *access.AccessKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := key.Token.String()
	if _, exists := r.doc.Keys[token]; exists {
		return fmt.Errorf("%w: key %s", shared.ErrAlreadyExists, token)
	}

	next := r.doc.clone()
	next.Keys[token] = keyToRecord(key)

	if err := r.persist(next); err != nil {
		return err
	}

	r.logger.Info("key created", "token", token)
	return nil
}

// GetKey returns a key by token.
func (r *Repository) GetKey(ctx context.Context, token access.KeyToken) (*access.AccessKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.doc.Keys[token.String()]
	if !ok {
		return nil, shared.ErrKeyNotFound
	}
	return recordToKey(token, rec), nil
}

// ActivateKey atomically binds an unused key to a user.
// The check-and-set runs under the write lock, so of two concurrent
// activations of the same key exactly one wins.
func (r *Repository) ActivateKey(ctx context.Context, token access.KeyToken, userID shared.TelegramID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The super user is authorized by configuration; never let them burn a key.
	if userID == r.superUser {
		return false, nil
	}

	tokenStr := token.String()
	rec, ok := r.doc.Keys[tokenStr]
	if !ok {
		return false, nil
	}
	if rec.ActivatedBy != nil {
		return false, nil
	}
	if _, exists := r.doc.Users[userIDKey(userID)]; exists {
		return false, nil
	}

	now := r.nowFn()
	stamp := formatTime(now)
	id := userID.Int64()

	next := r.doc.clone()
	rec.ActivatedBy = &id
	rec.ActivatedByUsername = &name
	rec.ActivatedAt = &stamp
	next.Keys[tokenStr] = rec
	next.Users[userIDKey(userID)] = userRecord{
		UserID:      id,
		Username:    &name,
		KeyUsed:     tokenStr,
		ActivatedAt: stamp,
	}

	if err := r.persist(next); err != nil {
		return false, err
	}

	r.logger.Info("key activated",
		"token", tokenStr,
		"user_id", id,
		"user_name", name,
	)
	return true, nil
}

// DeleteKey removes a key. If the key was activated, the linked user loses
// access in the same write.
func (r *Repository) DeleteKey(ctx context.Context, token access.KeyToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokenStr := token.String()
	rec, ok := r.doc.Keys[tokenStr]
	if !ok {
		return false, nil
	}

	next := r.doc.clone()
	delete(next.Keys, tokenStr)
	if rec.ActivatedBy != nil {
		delete(next.Users, strconv.FormatInt(*rec.ActivatedBy, 10))
	}

	if err := r.persist(next); err != nil {
		return false, err
	}

	r.logger.Info("key deleted",
		"token", tokenStr,
		"cascaded_user", rec.ActivatedBy != nil,
	)
	return true, nil
}

// ListKeys returns all keys in canonical order: unused first, newest first
// within each group.
func (r *Repository) ListKeys(ctx context.Context) ([]*access.AccessKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]*access.AccessKey, 0, len(r.doc.Keys))
	for token, rec := range r.doc.Keys {
		keys = append(keys, recordToKey(access.KeyToken(token), rec))
	}
	access.SortKeys(keys)
	return keys, nil
}

// TokenExists reports whether a token is already taken.
func (r *Repository) TokenExists(token access.KeyToken) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.doc.Keys[token.String()]
	return ok, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// User Operations
// ─────────────────────────────────────────────────────────────────────────────

// GetUser returns an authorized user by Telegram ID.
func (r *Repository) GetUser(ctx context.Context, userID shared.TelegramID) (*access.AuthorizedUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.doc.Users[userIDKey(userID)]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return recordToUser(rec), nil
}

// ListUsers returns all authorized users, oldest activation first.
func (r *Repository) ListUsers(ctx context.Context) ([]*access.AuthorizedUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*access.AuthorizedUser, 0, len(r.doc.Users))
	for _, rec := range r.doc.Users {
		users = append(users, recordToUser(rec))
	}
	access.SortUsers(users)
	return users, nil
}

// CountUsers returns the number of authorized users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.doc.Users), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Authorization
// ─────────────────────────────────────────────────────────────────────────────

// IsAuthorized reports whether the user may use the bot.
func (r *Repository) IsAuthorized(ctx context.Context, userID shared.TelegramID) (bool, error) {
	if userID == r.superUser {
		return true, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.doc.Users[userIDKey(userID)]
	return ok, nil
}

// IsSuperUser reports whether the user is the configured super user.
func (r *Repository) IsSuperUser(userID shared.TelegramID) bool {
	return userID == r.superUser
}

// ─────────────────────────────────────────────────────────────────────────────
// Mapping
// ─────────────────────────────────────────────────────────────────────────────

func userIDKey(id shared.TelegramID) string {
	return strconv.FormatInt(id.Int64(), 10)
}

func keyToRecord(key *access.AccessKey) keyRecord {
	rec := keyRecord{
		CreatedAt: formatTime(key.CreatedAt),
	}
	if key.ActivatedBy != nil {
		id := key.ActivatedBy.Int64()
		rec.ActivatedBy = &id
	}
	if key.ActivatedByName != nil {
		name := *key.ActivatedByName
		rec.ActivatedByUsername = &name
	}
	if key.ActivatedAt != nil {
		stamp := formatTime(*key.ActivatedAt)
		rec.ActivatedAt = &stamp
	}
	return rec
}

func recordToKey(token access.KeyToken, rec keyRecord) *access.AccessKey {
	key := &access.AccessKey{
		Token:     token,
		CreatedAt: parseTime(rec.CreatedAt),
	}
	if rec.ActivatedBy != nil {
		id := shared.TelegramID(*rec.ActivatedBy)
		key.ActivatedBy = &id
	}
	if rec.ActivatedByUsername != nil {
		name := *rec.ActivatedByUsername
		key.ActivatedByName = &name
	}
	if rec.ActivatedAt != nil {
		at := parseTime(*rec.ActivatedAt)
		key.ActivatedAt = &at
	}
	return key
}

func recordToUser(rec userRecord) *access.AuthorizedUser {
	user := &access.AuthorizedUser{
		UserID:      shared.TelegramID(rec.UserID),
		KeyUsed:     access.KeyToken(rec.KeyUsed),
		ActivatedAt: parseTime(rec.ActivatedAt),
	}
	if rec.Username != nil {
		user.Name = *rec.Username
	}
	return user
}
