package session

import "sync"

var _ CredentialStore = &MemoryStore{}

// MemoryStore keeps the credential record in process memory. Useful for
// tests and embedders that do not want credentials to survive a restart.
type MemoryStore struct {
	mu  sync.Mutex
	rec CredentialRecord
	ok  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (CredentialRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, s.ok, nil
}

func (s *MemoryStore) Save(rec CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
	s.ok = true
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = CredentialRecord{}
	s.ok = false
	return nil
}
