package session

import "sync"

// RouteIntent is a single-slot memory of where the user was trying to go
// before an auth interruption. Remember overwrites, Consume reads and clears.
type RouteIntent struct {
	mu    sync.Mutex
	path  string
	query string
	set   bool
}

// NewRouteIntent returns an empty slot.
func NewRouteIntent() *RouteIntent {
	return &RouteIntent{}
}

// Remember overwrites the slot with the blocked destination.
func (i *RouteIntent) Remember(path, query string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.path = path
	i.query = query
	i.set = true
}

// Peek returns the slot without clearing it.
func (i *RouteIntent) Peek() (path, query string, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.path, i.query, i.set
}

// Consume reads and clears the slot, returning def when empty.
func (i *RouteIntent) Consume(def string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.set {
		return def
	}
	dest := i.path
	if i.query != "" {
		dest += "?" + i.query
	}
	i.path = ""
	i.query = ""
	i.set = false
	return dest
}

// Clear empties the slot. Successful logins call this even when they do not
// consume, so a later unrelated login cannot pick up a stale redirect.
func (i *RouteIntent) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.path = ""
	i.query = ""
	i.set = false
}
