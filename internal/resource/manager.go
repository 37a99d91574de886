// Package resource implements the gateway's shared-ownership registry for
// live sessions (C9). A session is inserted under its device id as soon as
// SIP registration completes, and optionally bound to an SSRC once an
// INVITE negotiates one. Handles are reference counted so that a SIP
// transaction goroutine and a media connection goroutine can each hold the
// same underlying session without racing its teardown.
package resource

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/otus/internal/log"
)

// Handle is a shared-ownership wrapper around a registry value, mirroring
// the reference-counted resource pattern the media pipeline relies on so
// disposal only happens once every holder has released it.
type Handle struct {
	id      string
	value   interface{}
	refs    int32
	onZero  func()
	onceRel sync.Once
}

func newHandle(id string, value interface{}, onZero func()) *Handle {
	return &Handle{id: id, value: value, refs: 1, onZero: onZero}
}

// Value returns the wrapped session. Callers must not retain it past
// Release without a matching Retain.
func (h *Handle) Value() interface{} { return h.value }

// Retain increments the reference count and returns the same handle, for
// callers that want to hold on to it beyond the call that looked it up.
func (h *Handle) Retain() *Handle {
	atomic.AddInt32(&h.refs, 1)
	return h
}

// Release drops a reference. The last release triggers onZero exactly once.
func (h *Handle) Release() {
	if atomic.AddInt32(&h.refs, -1) <= 0 {
		h.onceRel.Do(func() {
			if h.onZero != nil {
				h.onZero()
			}
		})
	}
}

// Manager is the process-wide session registry. Sessions are always found
// by device id; the SSRC index is populated once an INVITE negotiates a
// media binding and is cleared when the session is removed.
type Manager struct {
	mu     sync.RWMutex
	byID   map[string]*Handle
	bySSRC map[uint32]*Handle

	// ttl evicts sessions whose driver stops calling Touch, e.g. because
	// its goroutine panicked or the process lost track of a BYE.
	ttl *cache.Cache
}

// New builds a registry that expires entries which go idleTTL without a
// Touch call. A non-positive idleTTL disables the background sweep.
func New(idleTTL time.Duration) *Manager {
	var c *cache.Cache
	if idleTTL > 0 {
		c = cache.New(idleTTL, idleTTL/2)
	}
	m := &Manager{
		byID:   make(map[string]*Handle),
		bySSRC: make(map[uint32]*Handle),
		ttl:    c,
	}
	if c != nil {
		c.OnEvicted(func(id string, _ interface{}) {
			m.Remove(id)
			log.L().WithField("device", id).Warn("resource: session evicted after idle ttl")
		})
	}
	return m
}

// Insert registers value (normally a *session.Session) under id, replacing
// any prior entry. The returned handle holds one reference; call Release
// when the caller is done driving it.
func (m *Manager) Insert(id string, value interface{}) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.byID[id]; ok {
		m.unlinkLocked(old)
	}
	h := newHandle(id, value, nil)
	m.byID[id] = h
	if m.ttl != nil {
		m.ttl.SetDefault(id, struct{}{})
	}
	return h
}

// Find looks up a session by device id.
func (m *Manager) Find(id string) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byID[id]
	return h, ok
}

// FindBySSRC looks up a session by its negotiated media SSRC.
func (m *Manager) FindBySSRC(ssrc uint32) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.bySSRC[ssrc]
	return h, ok
}

// BindSSRC indexes the session already registered under id by ssrc too, so
// the media listener can route RTP packets to it without a SIP lookup.
func (m *Manager) BindSSRC(id string, ssrc uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byID[id]
	if !ok {
		return false
	}
	m.bySSRC[ssrc] = h
	return true
}

// Touch resets the idle timer for id, signalling the session is still
// being actively driven.
func (m *Manager) Touch(id string) {
	if m.ttl != nil {
		m.ttl.SetDefault(id, struct{}{})
	}
}

// Remove drops id from both indexes. It does not force disposal: other
// goroutines may still hold a retained Handle.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byID[id]
	if !ok {
		return
	}
	m.unlinkLocked(h)
	if m.ttl != nil {
		m.ttl.Delete(id)
	}
}

func (m *Manager) unlinkLocked(h *Handle) {
	delete(m.byID, h.id)
	for ssrc, v := range m.bySSRC {
		if v == h {
			delete(m.bySSRC, ssrc)
		}
	}
}

// GetOrCreate returns the existing handle for id, or builds one from build()
// and inserts it if none exists yet. build() is only called on the miss
// path. created reports whether build() ran.
func (m *Manager) GetOrCreate(id string, build func() interface{}) (h *Handle, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.byID[id]; ok {
		return h, false
	}
	h = newHandle(id, build(), nil)
	m.byID[id] = h
	if m.ttl != nil {
		m.ttl.SetDefault(id, struct{}{})
	}
	return h, true
}

// Len reports the number of registered sessions, used by the status
// endpoint.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Each calls fn for every registered session. fn must not call back into
// the manager.
func (m *Manager) Each(fn func(id string, value interface{})) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, h := range m.byID {
		fn(id, h.value)
	}
}
