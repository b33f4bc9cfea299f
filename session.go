package session

import (
	"sync"
)

// Session is the single source of truth for who is using the app right now.
// One instance lives for the whole process; the Controller and Gateway are
// its only writers, everything else reads snapshots.
//
// The generation counter orders async results against user-triggered resets:
// every credential install and every teardown bumps it, and a profile fetch
// that resolves under a different generation than it started with is
// discarded. That is what keeps a late-arriving profile response from
// resurrecting a session the user already logged out of.
type Session struct {
	mu         sync.RWMutex
	token      string
	profile    *Profile
	isOwner    bool
	isLoading  bool
	generation uint64
}

// Snapshot is an immutable copy of the session at one point in time.
type Snapshot struct {
	Token      string
	Profile    *Profile
	IsOwner    bool
	IsLoading  bool
	Generation uint64
}

// Authenticated reports whether the snapshot carries both token and profile.
func (s Snapshot) Authenticated() bool {
	return s.Token != "" && s.Profile != nil
}

// NewSession returns a session in its bootstrap state: loading, anonymous.
func NewSession() *Session {
	return &Session{isLoading: true}
}

// Snapshot returns a consistent copy of all session fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Token:      s.token,
		Profile:    s.profile,
		IsOwner:    s.isOwner,
		IsLoading:  s.isLoading,
		Generation: s.generation,
	}
}

// Token returns the current bearer token, empty when anonymous. Outbound
// authenticated requests must source the token here, never from the
// credential store, so logout takes effect immediately.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Profile returns the current user profile or nil.
func (s *Session) Profile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// IsOwner reports whether the session has owner/admin privileges.
func (s *Session) IsOwner() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOwner
}

// IsLoading reports whether the initial who-am-I check is still unresolved.
func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

// Authenticated reports whether token and profile are both present.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.profile != nil
}

// setToken installs a fresh credential, drops any previous profile and bumps
// the generation so in-flight fetches for the old credential are discarded.
// ownerHint seeds the owner flag until the profile fetch resolves.
func (s *Session) setToken(token string, ownerHint bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.profile = nil
	s.isOwner = ownerHint
	s.generation++
	return s.generation
}

// setProfile publishes the fetched profile if the session is still on the
// generation the fetch started under. Returns false for stale results.
func (s *Session) setProfile(generation uint64, profile *Profile, owner bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation || s.token == "" {
		return false
	}
	s.profile = profile
	s.isOwner = owner
	return true
}

// clearIf tears the session down if it is still on the given generation.
// Token, profile and owner flag go together; there is no state where the
// token is absent but the profile survives.
func (s *Session) clearIf(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	s.clearLocked()
	return true
}

// reset unconditionally tears the session down. Idempotent.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.token = ""
	s.profile = nil
	s.isOwner = false
	s.generation++
}

// repairOwner promotes the in-memory owner flag. One direction only, and only
// for sessions that are fully authenticated.
func (s *Session) repairOwner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || s.profile == nil {
		return false
	}
	s.isOwner = true
	return true
}

// finishLoading marks the bootstrap check as resolved. It only ever flips
// true to false, so calling it from every completion path is safe.
func (s *Session) finishLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
}
