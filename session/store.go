package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Store is the single authority for authentication state. It owns the three
// persisted entries (access token, refresh token, identity) and guarantees
// they are written and cleared as a group. All reads and writes go through
// its operations; nothing else touches the underlying Repo.
type Store struct {
	repo    Repo
	nowTime func() time.Time

	lock        sync.RWMutex
	identity    *Identity
	accessToken string
	refresh     string

	subLock     sync.Mutex
	subscribers map[int]func(authenticated bool)
	nextSubID   int
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// NewStore initializes a Store and performs the startup load. A missing,
// "undefined"/"null" or unparseable persisted identity, or a persisted
// identity without both tokens, is treated as corruption: all three entries
// are purged and the store starts anonymous.
func NewStore(repo Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] repo is required")
	}

	store := &Store{
		repo:        repo,
		nowTime:     time.Now,
		subscribers: make(map[int]func(bool)),
	}

	for _, opt := range options {
		opt(store)
	}

	store.loadPersisted()
	return store, nil
}

func (s *Store) loadPersisted() {
	serialized, err := s.repo.Get(KeyUser)
	if err != nil || serialized == "" || serialized == "undefined" || serialized == "null" {
		s.purge()
		return
	}

	var identity Identity
	if err := json.Unmarshal([]byte(serialized), &identity); err != nil {
		log.Warn().Err(err).Msg("discarding corrupted persisted session")
		s.purge()
		return
	}

	access, aErr := s.repo.Get(KeyAccessToken)
	refresh, rErr := s.repo.Get(KeyRefreshToken)
	if aErr != nil || rErr != nil || access == "" || refresh == "" {
		// An identity without both tokens is a partial write from a previous
		// run; treat the whole group as corrupt.
		s.purge()
		return
	}

	s.identity = &identity
	s.accessToken = access
	s.refresh = refresh
}

// purge removes the persisted entries without notifying subscribers; only
// used before the store is observable.
func (s *Store) purge() {
	if err := s.repo.Clear(); err != nil {
		log.Warn().Err(err).Msg("could not clear session storage")
	}
}

// Establish records a completed login or 2FA challenge: all three values are
// persisted together and the in-memory state switches to authenticated.
func (s *Store) Establish(accessToken, refreshToken string, identity *Identity) error {
	if accessToken == "" || refreshToken == "" || identity == nil {
		return errors.New("[Establish] access token, refresh token and identity are all required")
	}

	serialized, err := json.Marshal(identity)
	if err != nil {
		return errors.Wrap(err, "[Establish] marshal identity")
	}

	s.lock.Lock()
	wasAnonymous := s.identity == nil
	if err := s.writeGroup(accessToken, refreshToken, string(serialized)); err != nil {
		// Storage was purged by writeGroup; drop the in-memory session too so
		// memory and storage never disagree.
		wasAuthenticated := s.identity != nil
		s.identity = nil
		s.accessToken = ""
		s.refresh = ""
		s.lock.Unlock()
		if wasAuthenticated {
			s.notify(false)
		}
		return err
	}
	s.accessToken = accessToken
	s.refresh = refreshToken
	id := *identity
	s.identity = &id
	s.lock.Unlock()

	// Re-establishing an already-authenticated session (a re-login) is not a
	// state change subscribers need to see.
	if wasAnonymous {
		s.notify(true)
	}
	return nil
}

// writeGroup persists all three entries; a failed write rolls the group back
// so storage never holds a partial session. Caller holds the write lock.
func (s *Store) writeGroup(access, refresh, user string) error {
	if err := s.repo.Set(KeyAccessToken, access); err != nil {
		s.purge()
		return errors.Wrap(err, "[Establish] persist access token")
	}
	if err := s.repo.Set(KeyRefreshToken, refresh); err != nil {
		s.purge()
		return errors.Wrap(err, "[Establish] persist refresh token")
	}
	if err := s.repo.Set(KeyUser, user); err != nil {
		s.purge()
		return errors.Wrap(err, "[Establish] persist identity")
	}
	return nil
}

// SetAccessToken silently replaces the access token after a refresh. The
// identity and refresh token are untouched; externally observable state does
// not change.
func (s *Store) SetAccessToken(token string) error {
	if token == "" {
		return errors.New("[SetAccessToken] token is required")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.repo.Set(KeyAccessToken, token); err != nil {
		return errors.Wrap(err, "[SetAccessToken] persist access token")
	}
	s.accessToken = token
	return nil
}

// UpdateIdentity overwrites the stored identity only, leaving tokens
// untouched. A nil identity is a no-op.
func (s *Store) UpdateIdentity(identity *Identity) error {
	if identity == nil {
		return nil
	}

	serialized, err := json.Marshal(identity)
	if err != nil {
		return errors.Wrap(err, "[UpdateIdentity] marshal identity")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.repo.Set(KeyUser, string(serialized)); err != nil {
		return errors.Wrap(err, "[UpdateIdentity] persist identity")
	}
	id := *identity
	s.identity = &id
	return nil
}

// Logout clears all persisted entries and resets the in-memory state to
// anonymous. It is idempotent and has no network effect; the in-memory reset
// always happens even if storage cannot be cleared.
func (s *Store) Logout() {
	s.lock.Lock()
	wasAuthenticated := s.identity != nil
	if err := s.repo.Clear(); err != nil {
		log.Warn().Err(err).Msg("could not clear session storage on logout")
	}
	s.identity = nil
	s.accessToken = ""
	s.refresh = ""
	s.lock.Unlock()

	if wasAuthenticated {
		s.notify(false)
	}
}

// IsAuthenticated reports whether an identity is currently loaded.
func (s *Store) IsAuthenticated() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.identity != nil
}

// Identity returns a copy of the current identity, or nil when anonymous.
func (s *Store) Identity() *Identity {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// AccessToken returns the current access token, or "" when anonymous.
func (s *Store) AccessToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token, or "" when anonymous.
func (s *Store) RefreshToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.refresh
}

// Subscribe registers fn to be called whenever the authenticated state
// changes. The returned function unsubscribes. This is the reactive signal a
// host application's route guard observes.
func (s *Store) Subscribe(fn func(authenticated bool)) (unsubscribe func()) {
	s.subLock.Lock()
	defer s.subLock.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.subLock.Lock()
		defer s.subLock.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store) notify(authenticated bool) {
	s.subLock.Lock()
	fns := make([]func(bool), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subLock.Unlock()

	for _, fn := range fns {
		fn(authenticated)
	}
}

// TokenExpiry returns the expiry claim of the current access token. The
// token is parsed without signature verification: the client has no signing
// key and only needs the timestamp.
func (s *Store) TokenExpiry() (time.Time, bool) {
	token := s.AccessToken()
	if token == "" {
		return time.Time{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenExpired reports whether the current access token has an expiry claim
// in the past. An absent or unparseable token counts as expired.
func (s *Store) TokenExpired() bool {
	expiry, ok := s.TokenExpiry()
	if !ok {
		return true
	}
	return !expiry.After(s.nowTime())
}
