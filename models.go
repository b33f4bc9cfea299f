package session

// UserRole is the role reported by the remote profile
type UserRole = string

const (
	// RoleCustomer is the ordinary storefront visitor role
	RoleCustomer UserRole = "customer"
	// RoleOwner is the privileged role allowed into the owner console
	RoleOwner UserRole = "owner"
)

// Profile is the user record returned by the remote bookings API.
type Profile struct {
	ID    string   `json:"_id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
	Image string   `json:"image,omitempty"`
}

// IsOwner reports whether the server-issued role grants owner access.
func (p *Profile) IsOwner() bool {
	return p != nil && p.Role == RoleOwner
}

// CredentialRecord is the durable credential written by the Gateway and read
// once during bootstrap.
type CredentialRecord struct {
	Token   string `json:"token"`
	IsAdmin bool   `json:"is_admin"`
}

// FlowStage is the stage of a multi-step auth flow
type FlowStage = string

const (
	// StageCollecting gathers the registration profile
	StageCollecting FlowStage = "collecting"
	// StageInit is the initial password reset stage
	StageInit FlowStage = "init"
	// StageCodeSent means a one-time code was emailed
	StageCodeSent FlowStage = "code-sent"
	// StageCodeVerified means the code was accepted by the server
	StageCodeVerified FlowStage = "code-verified"
	// StageCompleted is the terminal stage
	StageCompleted FlowStage = "completed"
)

// AuthResult is the outcome of a login or registration call against the
// remote API. Token may be empty for registrations that still require a
// separate login.
type AuthResult struct {
	Token   string
	Profile *Profile
	Message string
}

// RegisterRequest is the payload submitted to create an account. OTPVerified
// is only ever true after the verification stage resolved; the server rejects
// submissions without it.
type RegisterRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Password    string `json:"password"`
	OTPVerified bool   `json:"otpVerified"`
}
