package session

// Decision is the route guard verdict for one navigation attempt.
type Decision string

const (
	// DecisionChecking means the bootstrap check has not resolved yet;
	// render a neutral placeholder, decide nothing.
	DecisionChecking Decision = "checking"
	// DecisionUnauthenticated means no token is present; record the intended
	// route and present a login affordance.
	DecisionUnauthenticated Decision = "unauthenticated"
	// DecisionProfilePending means a token exists but the profile fetch has
	// not landed; render the placeholder.
	DecisionProfilePending Decision = "profile-pending"
	// DecisionAllow renders the protected view.
	DecisionAllow Decision = "allow"
	// DecisionForbidden renders access denied (owner-only views).
	DecisionForbidden Decision = "forbidden"
	// DecisionRedirectAway sends an authenticated visitor off a public-only
	// view such as the login screen.
	DecisionRedirectAway Decision = "redirect-away"
)

// Guard maps session state to a render decision. It is a read-only consumer
// of the session; the single mutation it may perform is the one-directional
// owner flag repair.
type Guard struct {
	session *Session
	store   CredentialStore
	cfg     Config
	logger  Logger
}

// GuardOption customizes guard construction.
type GuardOption func(*Guard)

// WithGuardLogger overrides the guard logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard builds a guard over the controller's session and store.
func NewGuard(ctrl *Controller, opts ...GuardOption) *Guard {
	g := &Guard{
		session: ctrl.Session(),
		store:   ctrl.store,
		cfg:     ctrl.cfg,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Evaluate decides whether a protected view renders. There is no path from
// Unauthenticated straight to Allow: a fresh login must install a token,
// pass through ProfilePending, and resolve a profile first.
func (g *Guard) Evaluate() Decision {
	snap := g.session.Snapshot()

	switch {
	case snap.IsLoading:
		return DecisionChecking
	case snap.Token == "":
		return DecisionUnauthenticated
	case snap.Profile == nil:
		return DecisionProfilePending
	default:
		return DecisionAllow
	}
}

// EvaluateOwner decides for owner-only views. When the in-memory owner flag
// is stale false but the persisted admin flag says true for a fully
// authenticated session, the guard self-heals: it allows the view and
// repairs the flag. The repair never runs the other way, and a session
// without a persisted admin flag and a non-owner role stays Forbidden.
func (g *Guard) EvaluateOwner() Decision {
	decision := g.Evaluate()
	if decision != DecisionAllow {
		return decision
	}

	if g.session.IsOwner() {
		return DecisionAllow
	}

	if g.cfg.GetTrustStoredAdminFlag() {
		if rec, ok, err := g.store.Load(); err == nil && ok && rec.IsAdmin {
			if g.session.repairOwner() {
				g.logger.Warn("Owner flag repaired from persisted admin flag")
				return DecisionAllow
			}
		}
	}

	return DecisionForbidden
}

// EvaluatePublicOnly inverts the rule for views that should not show to an
// authenticated visitor, like the login screen.
func (g *Guard) EvaluatePublicOnly() Decision {
	snap := g.session.Snapshot()

	if snap.IsLoading {
		return DecisionChecking
	}
	if snap.Authenticated() {
		return DecisionRedirectAway
	}
	return DecisionAllow
}
