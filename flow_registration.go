package session

import (
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// RegistrationFlow tracks the OTP-backed signup sequence for one email:
// collect profile, send code, verify code, submit. The Gateway drives it;
// the flow itself never touches the network.
type RegistrationFlow struct {
	id       uuid.UUID
	name     string
	email    string
	phone    string
	password string
	machine  *flowMachine
}

// NewRegistrationFlow starts a flow in the collecting stage. The flow ID is
// derived deterministically from the email so a retried signup resumes the
// same flow slot.
func NewRegistrationFlow(name, email, phone, password string, opts ...FlowOption) *RegistrationFlow {
	id, err := hashid.NewUUID(email)
	if err != nil {
		id = uuid.New()
	}

	return &RegistrationFlow{
		id:       id,
		name:     name,
		email:    email,
		phone:    phone,
		password: password,
		machine: newFlowMachine(StageCollecting, map[FlowStage]map[FlowStage]struct{}{
			StageCollecting: {
				StageCodeSent: {},
			},
			StageCodeSent: {
				// resend keeps the flow in place
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
func (f *RegistrationFlow) ID() uuid.UUID {
	return f.id
}

// Email is the address the one-time code is bound to.
func (f *RegistrationFlow) Email() string {
	return f.email
}

// Stage returns the authoritative current stage.
func (f *RegistrationFlow) Stage() FlowStage {
	return f.machine.Stage()
}

// Verified reports whether the one-time code was accepted.
func (f *RegistrationFlow) Verified() bool {
	stage := f.machine.Stage()
	return stage == StageCodeVerified || stage == StageCompleted
}

func (f *RegistrationFlow) canSendCode() bool {
	return f.machine.can(StageCodeSent)
}

func (f *RegistrationFlow) markCodeSent() error {
	return f.machine.transition(StageCodeSent)
}

func (f *RegistrationFlow) markVerified() error {
	return f.machine.transition(StageCodeVerified)
}

func (f *RegistrationFlow) complete() error {
	return f.machine.transition(StageCompleted)
}

// request builds the submission payload. OTPVerified mirrors the stage so a
// flow that skipped verification cannot produce a verified payload.
func (f *RegistrationFlow) request() RegisterRequest {
	return RegisterRequest{
		Name:        f.name,
		Email:       f.email,
		Phone:       f.phone,
		Password:    f.password,
		OTPVerified: f.Verified(),
	}
}
