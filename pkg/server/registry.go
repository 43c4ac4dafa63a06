package server

import (
	"sort"
	"sync"

	"github.com/mwhitney/parley/pkg/transport"
)

// Registry maps live display names to connections. All read-modify-write
// sequences (insert on accept, rename on login/logout, delete on
// disconnect) and every broadcast iteration run under one mutex, so a
// broadcast always sees a consistent snapshot and a rename can never cause
// a missed or duplicated delivery mid-iteration.
//
// Invariant: at most one connection per display name.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*transport.Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*transport.Conn)}
}

// Add inserts a connection under name. Returns false if the name is taken;
// the registry is left unchanged.
func (r *Registry) Add(name string, conn *transport.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.conns[name]; taken {
		return false
	}
	r.conns[name] = conn
	return true
}

// Remove deletes the entry for name, if present.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, name)
}

// Get returns the connection registered under name.
func (r *Registry) Get(name string) (*transport.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[name]
	return conn, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Rename atomically moves the entry at oldName to newName. Fails without
// side effects when oldName is absent or newName is already registered, so
// a colliding login leaves the original session's name untouched.
func (r *Registry) Rename(oldName, newName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[oldName]
	if !ok {
		return false
	}
	if _, taken := r.conns[newName]; taken {
		return false
	}
	delete(r.conns, oldName)
	r.conns[newName] = conn
	return true
}

// Names returns the registered display names sorted ascending, skipping
// exclude (pass "" to include everyone).
func (r *Registry) Names(exclude string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		if name == exclude {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Broadcast sends data to every registered connection not named in
// exclude. The registry lock is held for the whole iteration.
func (r *Registry) Broadcast(data []byte, exclude ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	for name, conn := range r.conns {
		if skip[name] {
			continue
		}
		conn.Send(data)
	}
}

// Snapshot returns the current connections in no particular order. Used
// for shutdown fan-out after the registry stops changing.
func (r *Registry) Snapshot() []*transport.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*transport.Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}
