package session

import (
	"sync"
	"time"
)

// flowRegistry keeps in-progress registration and reset flows between HTTP
// requests. Entries are pruned by age on every write; codes expire server
// side anyway, the local copy just has to outlive the email round-trip.
type flowRegistry struct {
	mu            sync.Mutex
	ttl           time.Duration
	registrations map[string]*RegistrationFlow
	resets        map[string]*PasswordResetFlow
}

func newFlowRegistry(ttl time.Duration) *flowRegistry {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &flowRegistry{
		ttl:           ttl,
		registrations: map[string]*RegistrationFlow{},
		resets:        map[string]*PasswordResetFlow{},
	}
}

func (r *flowRegistry) putRegistration(flow *RegistrationFlow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.registrations[flow.ID().String()] = flow
}

func (r *flowRegistry) registration(id string) (*RegistrationFlow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flow, ok := r.registrations[id]
	return flow, ok
}

func (r *flowRegistry) dropRegistration(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registrations, id)
}

func (r *flowRegistry) putReset(flow *PasswordResetFlow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.resets[flow.ID().String()] = flow
}

func (r *flowRegistry) reset(id string) (*PasswordResetFlow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flow, ok := r.resets[id]
	return flow, ok
}

func (r *flowRegistry) dropReset(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resets, id)
}

func (r *flowRegistry) pruneLocked() {
	cutoff := time.Now().Add(-r.ttl)
	for id, flow := range r.registrations {
		if flow.machine.UpdatedAt().Before(cutoff) {
			delete(r.registrations, id)
		}
	}
	for id, flow := range r.resets {
		if flow.machine.UpdatedAt().Before(cutoff) {
			delete(r.resets, id)
		}
	}
}
