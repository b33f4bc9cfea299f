package session

import (
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// PasswordResetFlow tracks the three-stage recovery sequence: request a code,
// verify it for a short-lived verification token, submit the new password
// with that token. The token is stage-scoped data: it only exists after the
// verify stage and is dropped whenever the flow rewinds.
type PasswordResetFlow struct {
	id         uuid.UUID
	email      string
	resetToken string
	machine    *flowMachine
}

// NewPasswordResetFlow starts a flow in the init stage for the given email.
func NewPasswordResetFlow(email string, opts ...FlowOption) *PasswordResetFlow {
	id, err := hashid.NewUUID(email)
	if err != nil {
		id = uuid.New()
	}

	return &PasswordResetFlow{
		id:    id,
		email: email,
		machine: newFlowMachine(StageInit, map[FlowStage]map[FlowStage]struct{}{
			StageInit: {
				StageCodeSent: {},
			},
			StageCodeSent: {
				StageCodeSent:     {},
				StageCodeVerified: {},
			},
			StageCodeVerified: {
				StageCompleted: {},
			},
		}, opts...),
	}
}

// ID is the deterministic flow identifier.
func (f *PasswordResetFlow) ID() uuid.UUID {
	return f.id
}

// Email is the address the reset is bound to.
func (f *PasswordResetFlow) Email() string {
	return f.email
}

// Stage returns the authoritative current stage.
func (f *PasswordResetFlow) Stage() FlowStage {
	return f.machine.Stage()
}

// VerificationToken returns the stage-2 token, if the verify stage resolved.
func (f *PasswordResetFlow) VerificationToken() (string, bool) {
	if f.machine.Stage() != StageCodeVerified || f.resetToken == "" {
		return "", false
	}
	return f.resetToken, true
}

func (f *PasswordResetFlow) canSendCode() bool {
	return f.machine.can(StageCodeSent)
}

func (f *PasswordResetFlow) markCodeSent() error {
	return f.machine.transition(StageCodeSent)
}

func (f *PasswordResetFlow) markVerified(token string) error {
	if err := f.machine.transition(StageCodeVerified); err != nil {
		return err
	}
	f.resetToken = token
	return nil
}

func (f *PasswordResetFlow) complete() error {
	if err := f.machine.transition(StageCompleted); err != nil {
		return err
	}
	f.resetToken = ""
	return nil
}

// rewind pushes the flow back to the verify stage and drops any token, so
// the caller re-enters the sequence at stage two.
func (f *PasswordResetFlow) rewind() {
	f.resetToken = ""
	f.machine.force(StageCodeSent)
}
