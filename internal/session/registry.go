package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"redisdeck/internal/transport"
)

// Entry is the last-known state of one registered connection.
type Entry struct {
	Descriptor transport.Descriptor
	Handle     string
	DB         int
}

type record struct {
	entry Entry
	lock  scopeLock
}

type scopeLock struct {
	token   string
	expires time.Time
}

func (l scopeLock) active(now time.Time) bool {
	return l.token != "" && now.Before(l.expires)
}

// ScopeToken proves ownership of an in-progress scope change on one
// connection. It is advisory: it never blocks command execution, it only
// tells passive observers to hold off mirroring scope for a grace period.
// Tokens expire on their own so an abandoned change cannot wedge anyone.
type ScopeToken struct {
	ConnID  string
	Token   string
	Expires time.Time
}

// Registry maps connection IDs to their handles and last-known session
// attributes (currently the selected database index).
type Registry struct {
	mu    sync.Mutex
	conns map[string]*record
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*record),
		now:   time.Now,
	}
}

// Register adds a connection under a fresh ID and records its initial
// handle and database.
func (r *Registry) Register(desc transport.Descriptor, handle string) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.conns[id] = &record{entry: Entry{
		Descriptor: desc,
		Handle:     handle,
		DB:         desc.DB,
	}}
	r.mu.Unlock()
	return id
}

// Lookup returns the current entry for a connection ID.
func (r *Registry) Lookup(id string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.conns[id]
	if !ok {
		return Entry{}, fmt.Errorf("unknown connection %q", id)
	}
	return rec.entry, nil
}

// Rebind swaps in a fresh handle after a reconnect.
func (r *Registry) Rebind(id string, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("unknown connection %q", id)
	}
	rec.entry.Handle = handle
	return nil
}

// Unregister forgets a connection.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// AcquireScope claims scope ownership for the grace period. Only one
// non-expired token can exist per connection at a time.
func (r *Registry) AcquireScope(id string, grace time.Duration) (ScopeToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.conns[id]
	if !ok {
		return ScopeToken{}, fmt.Errorf("unknown connection %q", id)
	}
	now := r.now()
	if rec.lock.active(now) {
		return ScopeToken{}, fmt.Errorf("scope of connection %q is held by another consumer", id)
	}
	rec.lock = scopeLock{
		token:   uuid.NewString(),
		expires: now.Add(grace),
	}
	return ScopeToken{ConnID: id, Token: rec.lock.token, Expires: rec.lock.expires}, nil
}

// ReleaseScope releases ownership if the token still matches. Releasing an
// expired or superseded token is a no-op.
func (r *Registry) ReleaseScope(token ScopeToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.conns[token.ConnID]
	if !ok {
		return
	}
	if rec.lock.token == token.Token {
		rec.lock = scopeLock{}
	}
}

// ScopeHeld reports whether a non-expired ownership token exists for the
// connection.
func (r *Registry) ScopeHeld(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.conns[id]
	if !ok {
		return false
	}
	return rec.lock.active(r.now())
}

// SetDB records a verified scope change. The caller must hold a live
// ownership token; a stale token means the change was abandoned and the
// displayed scope must not move.
func (r *Registry) SetDB(token ScopeToken, db int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.conns[token.ConnID]
	if !ok {
		return fmt.Errorf("unknown connection %q", token.ConnID)
	}
	if rec.lock.token != token.Token || !rec.lock.active(r.now()) {
		return fmt.Errorf("scope token for connection %q is no longer valid", token.ConnID)
	}
	rec.entry.DB = db
	return nil
}

// ObserveDB mirrors a scope value seen passively (e.g. echoed in a server
// reply). While an ownership token is live the observation is dropped, so
// asynchronous echoes of an in-progress change cannot clobber the display.
// Returns whether the observation was applied.
func (r *Registry) ObserveDB(id string, db int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.conns[id]
	if !ok {
		return false
	}
	if rec.lock.active(r.now()) {
		return false
	}
	rec.entry.DB = db
	return true
}
