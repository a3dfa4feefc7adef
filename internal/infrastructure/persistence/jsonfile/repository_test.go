package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

const testSuperUser = shared.TelegramID(1000)

func newTestRepo(t *testing.T) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	repo, err := New(Params{Path: path, SuperUser: testSuperUser})
	require.NoError(t, err)
	return repo, path
}

func mustCreateKey(t *testing.T, repo *Repository, token string) *access.AccessKey {
	t.Helper()
	key, err := access.NewAccessKey(access.KeyToken(token), time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.CreateKey(context.Background(), key))
	return key
}

func TestRepository_MissingFileStartsEmpty(t *testing.T) {
	repo, path := newTestRepo(t)

	keys, err := repo.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)

	// The file is not created until the first mutation.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRepository_CreateAndReload(t *testing.T) {
	repo, path := newTestRepo(t)
	ctx := context.Background()

	mustCreateKey(t, repo, "AAAA-BBBB-CCCC")

	ok, err := repo.ActivateKey(ctx, "AAAA-BBBB-CCCC", 42, "@alice")
	require.NoError(t, err)
	require.True(t, ok)

	// A fresh repository over the same file sees identical state.
	reloaded, err := New(Params{Path: path, SuperUser: testSuperUser})
	require.NoError(t, err)

	key, err := reloaded.GetKey(ctx, "AAAA-BBBB-CCCC")
	require.NoError(t, err)
	assert.True(t, key.IsUsed())
	require.NotNil(t, key.ActivatedBy)
	assert.Equal(t, shared.TelegramID(42), *key.ActivatedBy)
	require.NotNil(t, key.ActivatedByName)
	assert.Equal(t, "@alice", *key.ActivatedByName)

	user, err := reloaded.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "@alice", user.Name)
	assert.Equal(t, access.KeyToken("AAAA-BBBB-CCCC"), user.KeyUsed)

	authorized, err := reloaded.IsAuthorized(ctx, 42)
	require.NoError(t, err)
	assert.True(t, authorized)
}

func TestRepository_WireFormat(t *testing.T) {
	repo, path := newTestRepo(t)
	ctx := context.Background()

	mustCreateKey(t, repo, "AAAA-BBBB-CCCC")
	ok, err := repo.ActivateKey(ctx, "AAAA-BBBB-CCCC", 42, "@alice")
	require.NoError(t, err)
	require.True(t, ok)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))

	require.Contains(t, doc, "keys")
	require.Contains(t, doc, "users")
	assert.Contains(t, doc["keys"], "AAAA-BBBB-CCCC")
	assert.Contains(t, doc["users"], "42", "user map is keyed by stringified telegram id")

	var keyFields map[string]any
	require.NoError(t, json.Unmarshal(doc["keys"]["AAAA-BBBB-CCCC"], &keyFields))
	assert.Contains(t, keyFields, "created_at")
	assert.Contains(t, keyFields, "activated_by")
	assert.Contains(t, keyFields, "activated_by_username")
	assert.Contains(t, keyFields, "activated_at")
	assert.EqualValues(t, 42, keyFields["activated_by"])
}

func TestRepository_ActivateKeySingleUse(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	mustCreateKey(t, repo, "AAAA-BBBB-CCCC")

	ok, err := repo.ActivateKey(ctx, "AAAA-BBBB-CCCC", 42, "@alice")
	require.NoError(t, err)
	assert.True(t, ok)

	// Same key again, different user: refused without mutation.
	ok, err = repo.ActivateKey(ctx, "AAAA-BBBB-CCCC", 99, "@bob")
	require.NoError(t, err)
	assert.False(t, ok)

	key, err := repo.GetKey(ctx, "AAAA-BBBB-CCCC")
	require.NoError(t, err)
	assert.Equal(t, shared.TelegramID(42), *key.ActivatedBy)

	authorized, err := repo.IsAuthorized(ctx, 99)
	require.NoError(t, err)
	assert.False(t, authorized)
}

func TestRepository_ActivateKeyRefusals(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	// Unknown token.
	ok, err := repo.ActivateKey(ctx, "XXXX-YYYY-ZZZZ", 42, "@alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// Super user never consumes a key.
	mustCreateKey(t, repo, "AAAA-BBBB-CCCC")
	ok, err = repo.ActivateKey(ctx, "AAAA-BBBB-CCCC", testSuperUser, "@admin")
	require.NoError(t, err)
	assert.False(t, ok)

	key, err := repo.GetKey(ctx, "AAAA-BBBB-CCCC")
	require.NoError(t, err)
	assert.False(t, key.IsUsed())

	// An already-authorized user cannot consume a second key.
	ok, err = repo.ActivateKey(ctx, "AAAA-BBBB-CCCC", 42, "@alice")
	require.NoError(t, err)
	require.True(t, ok)

	mustCreateKey(t, repo, "DDDD-EEEE-FFFF")
	ok, err = repo.ActivateKey(ctx, "DDDD-EEEE-FFFF", 42, "@alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_ConcurrentActivationOneWinner(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	mustCreateKey(t, repo, "AAAA-BBBB-CCCC")

	const contenders = 16
	var wg sync.WaitGroup
	results := make([]bool, contenders)
	errs := make([]error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = repo.ActivateKey(ctx, "AAAA-BBBB-CCCC", shared.TelegramID(100+i), "@user")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < contenders; i++ {
		require.NoError(t, errs[i])
		if results[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent activation must win")

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRepository_DeleteKeyCascadesUser(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	mustCreateKey(t, repo, "AAAA-BBBB-CCCC")
	ok, err := repo.ActivateKey(ctx, "AAAA-BBBB-CCCC", 42, "@alice")
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := repo.DeleteKey(ctx, "AAAA-BBBB-CCCC")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.GetKey(ctx, "AAAA-BBBB-CCCC")
	assert.ErrorIs(t, err, shared.ErrKeyNotFound)

	// The invited user lost access together with the key.
	authorized, err := repo.IsAuthorized(ctx, 42)
	require.NoError(t, err)
	assert.False(t, authorized)

	// Deleting a missing key reports false, not an error.
	deleted, err = repo.DeleteKey(ctx, "AAAA-BBBB-CCCC")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRepository_ListKeysCanonicalOrder(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	old := &access.AccessKey{Token: "OLDK-0000-0000", CreatedAt: time.Now().Add(-2 * time.Hour)}
	fresh := &access.AccessKey{Token: "NEWK-0000-0000", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateKey(ctx, old))
	require.NoError(t, repo.CreateKey(ctx, fresh))

	ok, err := repo.ActivateKey(ctx, "OLDK-0000-0000", 42, "@alice")
	require.NoError(t, err)
	require.True(t, ok)

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	assert.Equal(t, access.KeyToken("NEWK-0000-0000"), keys[0].Token, "unused keys come first")
	assert.Equal(t, access.KeyToken("OLDK-0000-0000"), keys[1].Token)
}

func TestRepository_CreateKeyDuplicate(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	mustCreateKey(t, repo, "AAAA-BBBB-CCCC")

	dup, err := access.NewAccessKey("AAAA-BBBB-CCCC", time.Now())
	require.NoError(t, err)
	err = repo.CreateKey(ctx, dup)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestRepository_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	repo, err := New(Params{Path: path, SuperUser: testSuperUser})
	require.NoError(t, err)

	keys, err := repo.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRepository_ReadsLegacyTimestamps(t *testing.T) {
	// Data files written by earlier bot versions carry naive ISO timestamps.
	legacy := `{
  "keys": {
    "AAAA-BBBB-CCCC": {
      "created_at": "2025-11-30T18:45:12.123456",
      "activated_by": null,
      "activated_by_username": null,
      "activated_at": null
    }
  },
  "users": {}
}`
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	repo, err := New(Params{Path: path, SuperUser: testSuperUser})
	require.NoError(t, err)

	key, err := repo.GetKey(context.Background(), "AAAA-BBBB-CCCC")
	require.NoError(t, err)
	assert.Equal(t, 2025, key.CreatedAt.Year())
	assert.Equal(t, time.November, key.CreatedAt.Month())
	assert.False(t, key.IsUsed())
}

func TestRepository_SuperUserAlwaysAuthorized(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	authorized, err := repo.IsAuthorized(ctx, testSuperUser)
	require.NoError(t, err)
	assert.True(t, authorized)
	assert.True(t, repo.IsSuperUser(testSuperUser))
	assert.False(t, repo.IsSuperUser(42))

	authorized, err = repo.IsAuthorized(ctx, 42)
	require.NoError(t, err)
	assert.False(t, authorized)
}

func TestRepository_GenerateTokenAgainstStore(t *testing.T) {
	repo, _ := newTestRepo(t)

	token, err := access.GenerateToken(repo)
	require.NoError(t, err)
	assert.True(t, token.IsValid(), token)

	exists, err := repo.TokenExists(token)
	require.NoError(t, err)
	assert.False(t, exists, "generated token is not stored until CreateKey")
}
