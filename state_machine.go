package session

import (
	"time"
)

// FlowOption customizes flow construction.
type FlowOption func(*flowMachine)

// WithFlowClock injects a custom clock (useful for tests).
func WithFlowClock(clock func() time.Time) FlowOption {
	return func(m *flowMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// flowMachine is the shared core of the multi-step auth flows: one
// authoritative current stage and an explicit transition graph. Operations
// invoked out of stage order fail locally before any network call.
type flowMachine struct {
	stage       FlowStage
	transitions map[FlowStage]map[FlowStage]struct{}
	now         func() time.Time
	updatedAt   time.Time
}

func newFlowMachine(initial FlowStage, transitions map[FlowStage]map[FlowStage]struct{}, opts ...FlowOption) *flowMachine {
	m := &flowMachine{
		stage:       initial,
		transitions: transitions,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.updatedAt = m.now()
	return m
}

func (m *flowMachine) Stage() FlowStage {
	return m.stage
}

func (m *flowMachine) UpdatedAt() time.Time {
	return m.updatedAt
}

func (m *flowMachine) can(to FlowStage) bool {
	targets, ok := m.transitions[m.stage]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

func (m *flowMachine) transition(to FlowStage) error {
	if !m.can(to) {
		return ErrInvalidStage.WithMetadata(map[string]any{
			"from": m.stage,
			"to":   to,
		})
	}
	m.stage = to
	m.updatedAt = m.now()
	return nil
}

// force moves to a stage without consulting the graph. Used to push a flow
// back to an earlier stage after a local rejection.
func (m *flowMachine) force(to FlowStage) {
	m.stage = to
	m.updatedAt = m.now()
}
