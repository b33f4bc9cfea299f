package session

import (
	"context"
	"time"
)

// Gateway is the only component allowed to create or destroy credentials.
// Every operation either applies fully (token and profile both set) or not
// at all; failures surface as rich errors with a human-readable message.
type Gateway struct {
	ctrl     *Controller
	intent   *RouteIntent
	logger   Logger
	activity ActivitySink
}

// GatewayOption customizes gateway construction.
type GatewayOption func(*Gateway)

// WithGatewayLogger overrides the gateway logger.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGatewayActivitySink sets the sink used to emit auth events.
func WithGatewayActivitySink(sink ActivitySink) GatewayOption {
	return func(g *Gateway) {
		g.activity = normalizeActivitySink(sink)
	}
}

// WithIntent shares an externally owned intended-route slot.
func WithIntent(intent *RouteIntent) GatewayOption {
	return func(g *Gateway) {
		if intent != nil {
			g.intent = intent
		}
	}
}

// NewGateway returns a gateway bound to the controller's session and store.
func NewGateway(ctrl *Controller, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		ctrl:     ctrl,
		intent:   NewRouteIntent(),
		logger:   defLogger{},
		activity: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Session exposes the state container for read-only consumers.
func (g *Gateway) Session() *Session {
	return g.ctrl.Session()
}

// Intent exposes the intended-route slot.
func (g *Gateway) Intent() *RouteIntent {
	return g.intent
}

// Login authenticates ordinary storefront credentials. On success the token
// is persisted before the profile fetch runs, and login only resolves once
// that fetch does, so the guard never observes a token without a profile for
// longer than one round-trip. Returns the post-login destination.
func (g *Gateway) Login(ctx context.Context, email, password string) (string, error) {
	return g.login(ctx, email, password, false)
}

// LoginAdmin authenticates against the owner console endpoint. Success sets
// the owner flag unconditionally and persists the admin flag.
func (g *Gateway) LoginAdmin(ctx context.Context, email, password string) (string, error) {
	return g.login(ctx, email, password, true)
}

func (g *Gateway) login(ctx context.Context, email, password string, admin bool) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.ctrl.cfg.GetRequestTimeout())
	defer cancel()

	var res *AuthResult
	var err error
	if admin {
		res, err = g.ctrl.api.AdminLogin(callCtx, email, password)
	} else {
		res, err = g.ctrl.api.Login(callCtx, email, password)
	}

	if err != nil {
		g.logger.Error("Login error", "email", email, "admin", admin, "error", err)
		g.emit(ctx, ActivityEventLoginFailure, email, map[string]any{
			"admin": admin,
			"error": err.Error(),
		})
		return "", err
	}

	if err := g.establish(ctx, res.Token, admin); err != nil {
		g.emit(ctx, ActivityEventLoginFailure, email, map[string]any{
			"admin": admin,
			"error": err.Error(),
		})
		return "", err
	}

	g.emit(ctx, ActivityEventLoginSuccess, email, map[string]any{"admin": admin})

	def := g.ctrl.cfg.GetRejectedRouteDefault()
	if admin {
		def = g.ctrl.cfg.GetOwnerHome()
	}
	return g.intent.Consume(def), nil
}

// establish persists the token, installs it in the session, and completes
// the login with a profile fetch. A refresh failure leaves the session torn
// down, never half-applied.
func (g *Gateway) establish(ctx context.Context, token string, admin bool) error {
	if token == "" {
		return ErrNotAuthenticated
	}

	// ordering matters: the profile fetch reads the session token
	if err := g.ctrl.store.Save(CredentialRecord{Token: token, IsAdmin: admin}); err != nil {
		return ErrCredentialStore.WithMetadata(map[string]any{"error": err.Error()})
	}

	g.ctrl.session.setToken(token, admin)

	if err := g.ctrl.RefreshUser(ctx); err != nil {
		return err
	}

	if admin {
		g.ctrl.session.repairOwner()
	}

	return nil
}

// Logout tears down session, owner flag and credential record, and reports
// the anonymous landing route. Calling it twice has no additional effect. A
// profile fetch still in flight from before the logout is discarded when it
// lands (generation moved on).
func (g *Gateway) Logout(ctx context.Context) string {
	snap := g.Session().Snapshot()
	dest := g.ctrl.cfg.GetDefaultRoute()

	if snap.Token == "" && snap.Profile == nil {
		return dest
	}

	g.ctrl.session.reset()
	g.intent.Clear()

	if err := g.ctrl.store.Clear(); err != nil {
		g.logger.Error("Logout failed to clear credential store", "error", err)
	}

	email := ""
	if snap.Profile != nil {
		email = snap.Profile.Email
	}
	g.emit(ctx, ActivityEventLogout, email, nil)

	return dest
}

// SendRegistrationCode requests a one-time code for the flow email. Allowed
// from the collecting stage and as a resend from code-sent.
func (g *Gateway) SendRegistrationCode(ctx context.Context, flow *RegistrationFlow) error {
	if !flow.canSendCode() {
		return ErrInvalidStage.WithMetadata(map[string]any{
			"from": flow.Stage(),
			"to":   StageCodeSent,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, g.ctrl.cfg.GetRequestTimeout())
	defer cancel()

	if err := g.ctrl.api.SendOTP(callCtx, flow.Email()); err != nil {
		return err
	}

	return flow.markCodeSent()
}

// VerifyRegistrationCode submits the emailed code. The flow stays in
// code-sent when the server rejects it.
func (g *Gateway) VerifyRegistrationCode(ctx context.Context, flow *RegistrationFlow, code string) error {
	if !flow.machine.can(StageCodeVerified) {
		return ErrInvalidStage.WithMetadata(map[string]any{
			"from": flow.Stage(),
			"to":   StageCodeVerified,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, g.ctrl.cfg.GetRequestTimeout())
	defer cancel()

	if err := g.ctrl.api.VerifyOTP(callCtx, flow.Email(), code); err != nil {
		return err
	}

	return flow.markVerified()
}

// Register submits the collected profile once the code was verified. When
// the server's response carries a token the call behaves exactly like login;
// otherwise the caller still has to log in and is pointed at the login
// route. Returns the post-registration destination.
func (g *Gateway) Register(ctx context.Context, flow *RegistrationFlow) (string, error) {
	if flow.Stage() != StageCodeVerified {
		return "", ErrInvalidStage.WithMetadata(map[string]any{
			"from": flow.Stage(),
			"to":   StageCompleted,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, g.ctrl.cfg.GetRequestTimeout())
	defer cancel()

	res, err := g.ctrl.api.Register(callCtx, flow.request())
	if err != nil {
		return "", err
	}

	if err := flow.complete(); err != nil {
		return "", err
	}

	g.emit(ctx, ActivityEventRegistrationSuccess, flow.Email(), nil)

	if res.Token == "" {
		g.intent.Clear()
		return g.ctrl.cfg.GetLoginRoute(), nil
	}

	if err := g.establish(ctx, res.Token, false); err != nil {
		return "", err
	}

	return g.intent.Consume(g.ctrl.cfg.GetRejectedRouteDefault()), nil
}

// StartPasswordReset requests a reset code for the flow email.
func (g *Gateway) StartPasswordReset(ctx context.Context, flow *PasswordResetFlow) error {
	if !flow.canSendCode() {
		return ErrInvalidStage.WithMetadata(map[string]any{
			"from": flow.Stage(),
			"to":   StageCodeSent,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, g.ctrl.cfg.GetRequestTimeout())
	defer cancel()

	if err := g.ctrl.api.ForgotPassword(callCtx, flow.Email()); err != nil {
		return err
	}

	return flow.markCodeSent()
}

// VerifyPasswordResetCode exchanges the emailed code for the short-lived
// verification token that authorizes the final stage.
func (g *Gateway) VerifyPasswordResetCode(ctx context.Context, flow *PasswordResetFlow, code string) error {
	if !flow.machine.can(StageCodeVerified) {
		return ErrInvalidStage.WithMetadata(map[string]any{
			"from": flow.Stage(),
			"to":   StageCodeVerified,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, g.ctrl.cfg.GetRequestTimeout())
	defer cancel()

	token, err := g.ctrl.api.VerifyResetOTP(callCtx, flow.Email(), code)
	if err != nil {
		return err
	}

	return flow.markVerified(token)
}

// CompletePasswordReset submits the new password. Invoked without a
// verification token it is rejected locally, before any network call, and the
// flow is pushed back to the verify stage.
func (g *Gateway) CompletePasswordReset(ctx context.Context, flow *PasswordResetFlow, password string) error {
	token, ok := flow.VerificationToken()
	if !ok {
		stage := flow.Stage()
		flow.rewind()
		return ErrMissingResetToken.WithMetadata(map[string]any{"stage": stage})
	}

	callCtx, cancel := context.WithTimeout(ctx, g.ctrl.cfg.GetRequestTimeout())
	defer cancel()

	if err := g.ctrl.api.ResetPassword(callCtx, token, password); err != nil {
		return err
	}

	if err := flow.complete(); err != nil {
		return err
	}

	g.emit(ctx, ActivityEventPasswordResetSuccess, flow.Email(), nil)
	return nil
}

func (g *Gateway) emit(ctx context.Context, eventType ActivityEventType, email string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Email:      email,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if p := g.Session().Profile(); p != nil {
		event.UserID = p.ID
	}

	if err := g.activity.Record(ctx, event); err != nil {
		g.logger.Warn("Activity sink error", "event", eventType, "error", err)
	}
}
