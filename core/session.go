package core

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials is returned when username/password lookup fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired marks a persisted session past its expiry. It is
	// handled internally by restore; callers only observe anonymous state.
	ErrSessionExpired = errors.New("session expired")
)

// DefaultSessionTTL bounds a token's lifetime when none is configured.
const DefaultSessionTTL = 30 * time.Minute

// Session is the authenticated-user/token/expiry triple gating checkout and
// admin access. Valid iff now < ExpiresAt.
type Session struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the session has not yet expired at now.
func (s Session) Valid(now time.Time) bool { return now.Before(s.ExpiresAt) }

// SessionStore owns the process's session state machine: Anonymous until a
// successful login, back to Anonymous on logout or expiry. State persists
// through the KV so a restart restores a still-valid session.
type SessionStore struct {
	mu      sync.Mutex
	dir     *CredentialDirectory
	kv      KV
	ttl     time.Duration
	now     func() time.Time
	current *Session
}

// NewSessionStore wires the store to a credential directory and a KV.
// ttl <= 0 falls back to DefaultSessionTTL.
func NewSessionStore(dir *CredentialDirectory, kv KV, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		dir: dir,
		kv:  kv,
		ttl: ttl,
		now: time.Now,
	}
}

// Login authenticates against the credential directory. On success it mints
// an opaque token, stamps the expiry, persists the triple and returns the
// user. On failure it returns ErrInvalidCredentials and leaves any existing
// session untouched.
func (s *SessionStore) Login(ctx context.Context, username, password string) (User, error) {
	user, ok := s.dir.Lookup(username, password)
	if !ok {
		return User{}, ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := Session{
		User:      user,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.current = &sess
	s.persistLocked(ctx, sess)
	return user, nil
}

// Logout clears the in-memory session and removes every persisted session key.
func (s *SessionStore) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(ctx)
}

// RestoreOnStart loads the persisted session, keeping it only when still
// valid. An expired or unreadable session self-cleans: the keys are removed
// and the store stays anonymous. Run once at startup before any route guard
// decision is trusted.
func (s *SessionStore) RestoreOnStart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userBlob, hasUser, err := s.kv.Get(ctx, SessionUserKey)
	if err != nil {
		log.Printf("session restore: read failed: %v", err)
		return
	}
	token, hasToken, err := s.kv.Get(ctx, SessionTokenKey)
	if err != nil {
		log.Printf("session restore: read failed: %v", err)
		return
	}
	expiresBlob, hasExpiry, err := s.kv.Get(ctx, SessionExpiresAtKey)
	if err != nil {
		log.Printf("session restore: read failed: %v", err)
		return
	}
	if !hasUser && !hasToken && !hasExpiry {
		return
	}
	if !hasUser || !hasToken || !hasExpiry {
		// Partial writes count as malformed state.
		s.clearLocked(ctx)
		return
	}

	var user User
	if err := json.Unmarshal([]byte(userBlob), &user); err != nil {
		log.Printf("session restore: discarding malformed user: %v", err)
		s.clearLocked(ctx)
		return
	}
	expiresMs, err := strconv.ParseInt(expiresBlob, 10, 64)
	if err != nil {
		log.Printf("session restore: discarding malformed expiry: %v", err)
		s.clearLocked(ctx)
		return
	}

	sess := Session{
		User:      user,
		Token:     token,
		ExpiresAt: time.UnixMilli(expiresMs),
	}
	if !sess.Valid(s.now()) {
		s.clearLocked(ctx)
		return
	}
	s.current = &sess
}

// Current returns the active session, expiring it lazily when its deadline
// has passed since restore.
func (s *SessionStore) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Session{}, false
	}
	if !s.current.Valid(s.now()) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.clearLocked(ctx)
		return Session{}, false
	}
	return *s.current, true
}

// IsAuthenticated reports whether a valid session is present.
func (s *SessionStore) IsAuthenticated() bool {
	_, ok := s.Current()
	return ok
}

// IsAdmin reports whether a valid session with the admin role is present.
func (s *SessionStore) IsAdmin() bool {
	sess, ok := s.Current()
	return ok && sess.User.IsAdmin()
}

func (s *SessionStore) persistLocked(ctx context.Context, sess Session) {
	userBlob, err := json.Marshal(sess.User)
	if err != nil {
		log.Printf("session persist: marshal failed: %v", err)
		return
	}
	expires := strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10)
	for key, value := range map[string]string{
		SessionUserKey:      string(userBlob),
		SessionTokenKey:     sess.Token,
		SessionExpiresAtKey: expires,
	} {
		if err := s.kv.Set(ctx, key, value); err != nil {
			log.Printf("session persist: write %s failed: %v", key, err)
		}
	}
}

func (s *SessionStore) clearLocked(ctx context.Context) {
	s.current = nil
	for _, key := range []string{SessionUserKey, SessionTokenKey, SessionExpiresAtKey} {
		if err := s.kv.Remove(ctx, key); err != nil {
			log.Printf("session clear: remove %s failed: %v", key, err)
		}
	}
}
