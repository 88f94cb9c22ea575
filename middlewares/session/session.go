// Package session implements server-side sessions for breeze, keyed by
// a signed opaque cookie value. Session data itself lives in a
// SessionStore (an in-memory default is provided); the cookie never
// carries user data, only a tamper-evident session id.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/go-breeze/breeze"
)

// Session is a per-request bag of values, identified by ID and backed
// by a SessionStore. Mutations are buffered in memory; the owning
// middleware decides whether to persist them and re-issue the cookie
// once the handler chain has finished (see WithStore).
type Session struct {
	ID string

	mu        sync.RWMutex
	values    map[string]any
	dirty     bool
	destroyed bool
}

// Get returns a stored value, or nil if absent.
func (s *Session) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set stores a value and marks the session dirty.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

// Delete removes a value and marks the session dirty.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	s.dirty = true
}

// Clear removes every value and marks the session dirty.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
	s.dirty = true
}

// Destroy marks the session for removal. At the end of the request the
// middleware deletes it from the store and expires its cookie; the
// session's data is discarded regardless of any prior Set/Delete/Clear.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

// Destroyed reports whether Destroy has been called on this session.
func (s *Session) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}

// DataChanged reports whether Set, Delete, or Clear has been called on
// this session since it was loaded.
func (s *Session) DataChanged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Session) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneValues(s.values)
}

func cloneValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SessionStore persists session values by session id.
type SessionStore interface {
	Load(id string) (map[string]any, bool)
	Save(id string, values map[string]any) error
	Delete(id string) error
}

// MemoryStore is a process-local SessionStore, suitable for
// single-instance deployments and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]any)}
}

func (m *MemoryStore) Load(id string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[id]
	return v, ok
}

func (m *MemoryStore) Save(id string, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = values
	return nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

// Options configures the session middleware.
type Options struct {
	CookieName   string // defaults to "tide.sid"
	CookiePath   string // defaults to "/"
	CookieSecure bool
	CookieMaxAge time.Duration
	SameSite     http.SameSite

	// TTL, when CookieMaxAge is unset, becomes the session cookie's
	// Max-Age. Sessions carry no expiry of their own: neither the
	// middleware nor MemoryStore drops or refreshes stored session data
	// based on TTL.
	TTL time.Duration

	// SaveUnchanged, when true, re-persists the session and re-issues
	// its cookie on every response even when no data changed. The
	// default (false) calls store.Save and sets the cookie only when the
	// session is new or its data changed, so replaying an unmodified
	// session's cookie produces no new Set-Cookie header. A destroyed
	// session is always deleted from the store and its cookie expired,
	// whatever this setting.
	SaveUnchanged bool

	// Secret signs the session id cookie. If nil, a random key is
	// generated at startup, which invalidates sessions across restarts.
	Secret []byte
}

func (o Options) cookieName() string {
	if o.CookieName != "" {
		return o.CookieName
	}
	return "tide.sid"
}

func (o Options) cookiePath() string {
	if o.CookiePath != "" {
		return o.CookiePath
	}
	return "/"
}

type contextKey struct{}

// New returns session middleware backed by a fresh MemoryStore.
func New(opts Options) breeze.Middleware {
	return WithStore(NewMemoryStore(), opts)
}

// WithStore returns session middleware backed by store.
func WithStore(store SessionStore, opts Options) breeze.Middleware {
	secret := opts.Secret
	if len(secret) == 0 {
		secret = randomSecret()
	}
	key := breeze.SigningKey(secret)
	name := opts.cookieName()

	return func(next breeze.Handler) breeze.Handler {
		return func(c *breeze.Ctx) error {
			sess, existed := loadOrCreate(c, store, key, name)

			breeze.SetExtension(c, sess)

			err := next(c)

			switch {
			case sess.Destroyed():
				_ = store.Delete(sess.ID)
				c.ClearCookie(&http.Cookie{Name: name, Path: opts.cookiePath()})

			case !existed || sess.DataChanged() || opts.SaveUnchanged:
				_ = store.Save(sess.ID, sess.snapshot())

				cookie := &http.Cookie{
					Name:     name,
					Value:    breeze.SignValue(key, sess.ID),
					Path:     opts.cookiePath(),
					Secure:   opts.CookieSecure,
					HttpOnly: true,
					SameSite: opts.SameSite,
				}
				switch {
				case opts.CookieMaxAge > 0:
					cookie.MaxAge = int(opts.CookieMaxAge.Seconds())
				case opts.TTL > 0:
					cookie.MaxAge = int(opts.TTL.Seconds())
				}
				c.SetCookie(cookie)
			}

			return err
		}
	}
}

// loadOrCreate resolves the session for the incoming request. existed
// reports whether the request carried a validly signed session cookie,
// regardless of whether the store still holds data for it. A fresh
// session always needs its cookie issued, even if the handler never
// touches it.
func loadOrCreate(c *breeze.Ctx, store SessionStore, key []byte, cookieName string) (sess *Session, existed bool) {
	if raw, ok := c.Cookie(cookieName); ok {
		if id, ok := breeze.VerifyValue(key, raw.Value); ok {
			values, found := store.Load(id)
			if !found {
				values = make(map[string]any)
			}
			return &Session{ID: id, values: cloneValues(values)}, true
		}
	}
	id := generateSessionID()
	return &Session{ID: id, values: make(map[string]any)}, false
}

// Get returns the current request's Session, installed by New/WithStore.
func Get(c *breeze.Ctx) *Session {
	sess, _ := breeze.Extension[*Session](c)
	return sess
}

// FromContext is an alias for Get.
func FromContext(c *breeze.Ctx) *Session { return Get(c) }

// generateSessionID returns a random 256-bit id, hex-encoded (64
// characters).
func generateSessionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return buf
}
