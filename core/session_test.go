package core

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDirectory() *CredentialDirectory {
	return NewCredentialDirectory([]User{
		{Username: "admin", Password: "secret", DisplayName: "Admin", Role: RoleAdmin},
		{Username: "alice", Password: "hunter2", DisplayName: "Alice", Role: RoleStandard},
	})
}

func newTestSessionStore(kv KV, at time.Time) *SessionStore {
	s := NewSessionStore(testDirectory(), kv, 30*time.Minute)
	s.now = func() time.Time { return at }
	return s
}

func TestLoginSuccessPersistsTriple(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestSessionStore(kv, now)

	user, err := store.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)

	sess, ok := store.Current()
	require.True(t, ok)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, now.Add(30*time.Minute), sess.ExpiresAt)

	token, found, err := kv.Get(ctx, SessionTokenKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sess.Token, token)

	expires, found, err := kv.Get(ctx, SessionExpiresAtKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10), expires)

	userBlob, found, err := kv.Get(ctx, SessionUserKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, userBlob, `"username":"alice"`)
	// Credentials never reach the persistence port.
	assert.NotContains(t, userBlob, "hunter2")
}

func TestLoginFailureLeavesPriorSessionUntouched(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(NewMemoryKV(), time.Now())

	_, err := store.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	before, ok := store.Current()
	require.True(t, ok)

	_, err = store.Login(ctx, "admin", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	after, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, before.Token, after.Token)
}

func TestLoginIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(NewMemoryKV(), time.Now())

	_, err := store.Login(ctx, "Alice", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = store.Login(ctx, "alice", "Hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutRemovesPersistedKeys(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	store := newTestSessionStore(kv, time.Now())

	_, err := store.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)

	store.Logout(ctx)
	assert.False(t, store.IsAuthenticated())

	for _, key := range []string{SessionUserKey, SessionTokenKey, SessionExpiresAtKey} {
		_, found, err := kv.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, found, "key %s should be removed", key)
	}
}

func TestRestoreOnStartValidSession(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Now()

	first := newTestSessionStore(kv, now)
	_, err := first.Login(ctx, "admin", "secret")
	require.NoError(t, err)
	orig, _ := first.Current()

	second := newTestSessionStore(kv, now.Add(5*time.Minute))
	second.RestoreOnStart(ctx)

	sess, ok := second.Current()
	require.True(t, ok)
	assert.Equal(t, orig.Token, sess.Token)
	assert.Equal(t, "admin", sess.User.Username)
	assert.True(t, second.IsAdmin())
}

func TestRestoreOnStartExpiredSessionSelfCleans(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Now()

	// Persist a session that expired one second ago.
	require.NoError(t, kv.Set(ctx, SessionUserKey, `{"username":"alice","display_name":"Alice","role":"standard"}`))
	require.NoError(t, kv.Set(ctx, SessionTokenKey, "stale-token"))
	require.NoError(t, kv.Set(ctx, SessionExpiresAtKey, strconv.FormatInt(now.Add(-time.Second).UnixMilli(), 10)))

	store := newTestSessionStore(kv, now)
	store.RestoreOnStart(ctx)

	assert.False(t, store.IsAuthenticated())
	for _, key := range []string{SessionUserKey, SessionTokenKey, SessionExpiresAtKey} {
		_, found, err := kv.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, found, "key %s should be removed", key)
	}
}

func TestRestoreOnStartMalformedStateResets(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, SessionUserKey, "{broken"))
	require.NoError(t, kv.Set(ctx, SessionTokenKey, "tok"))
	require.NoError(t, kv.Set(ctx, SessionExpiresAtKey, "not-a-number"))

	store := newTestSessionStore(kv, time.Now())
	store.RestoreOnStart(ctx)

	assert.False(t, store.IsAuthenticated())
	_, found, _ := kv.Get(ctx, SessionTokenKey)
	assert.False(t, found)
}

func TestRestoreOnStartAbsentStateStaysAnonymous(t *testing.T) {
	store := newTestSessionStore(NewMemoryKV(), time.Now())
	store.RestoreOnStart(context.Background())
	assert.False(t, store.IsAuthenticated())
	assert.False(t, store.IsAdmin())
}

func TestCurrentExpiresLazily(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Now()
	store := newTestSessionStore(kv, now)

	_, err := store.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)

	// Advance past the TTL.
	store.now = func() time.Time { return now.Add(31 * time.Minute) }
	_, ok := store.Current()
	assert.False(t, ok)

	_, found, _ := kv.Get(ctx, SessionTokenKey)
	assert.False(t, found)
}

func TestTokensAreUniqueAcrossLogins(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(NewMemoryKV(), time.Now())

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		_, err := store.Login(ctx, "alice", "hunter2")
		require.NoError(t, err)
		sess, _ := store.Current()
		assert.False(t, seen[sess.Token], "token reused")
		seen[sess.Token] = true
	}
}

func TestIsAdminRequiresAdminRole(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(NewMemoryKV(), time.Now())

	_, err := store.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.False(t, store.IsAdmin())

	_, err = store.Login(ctx, "admin", "secret")
	require.NoError(t, err)
	assert.True(t, store.IsAdmin())
}
