package session

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// API is the contract with the remote bookings service. The exact wire format
// is owned by the server; implementations translate it into these calls.
type API interface {
	CurrentUser(ctx context.Context, token string) (*Profile, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	AdminLogin(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) error
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetOTP(ctx context.Context, email, code string) (string, error)
	ResetPassword(ctx context.Context, resetToken, password string) error
}

// CredentialStore is durable, synchronous key/value storage for the
// credential record. Written only by the Gateway, read once at bootstrap.
type CredentialStore interface {
	Load() (CredentialRecord, bool, error)
	Save(rec CredentialRecord) error
	Clear() error
}

// Config holds session options
type Config interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetContextKey() string
	GetCookieDuration() time.Duration
	GetDefaultRoute() string
	GetLoginRoute() string
	GetOwnerHome() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
	GetTrustStoredAdminFlag() bool
}

// LoginPayload is the shape the HTTP layer binds login forms into
type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
	GetAdminConsole() bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
