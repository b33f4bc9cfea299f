package session

import (
	"net/http"
	"net/url"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteGuard wires the Guard and Gateway into go-router handlers: protected
// and owner-only middleware, the public-only inverse, and the
// redirect-after-login bookkeeping.
type RouteGuard struct {
	gateway          *Gateway
	guard            *Guard
	cfg              Config
	cookieDuration   time.Duration
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

// NewRouteGuard builds the HTTP integration for a gateway/guard pair.
func NewRouteGuard(gateway *Gateway, guard *Guard, cfg Config) (*RouteGuard, error) {
	a := &RouteGuard{
		gateway:        gateway,
		guard:          guard,
		cfg:            cfg,
		cookieDuration: cfg.GetCookieDuration(),
		Logger:         defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a RouteGuard) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// Protected gates a view behind an authenticated session.
func (a *RouteGuard) Protected() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			return a.dispatch(c, a.guard.Evaluate(), hf)
		}
	}
}

// OwnerOnly gates owner console views.
func (a *RouteGuard) OwnerOnly() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			return a.dispatch(c, a.guard.EvaluateOwner(), hf)
		}
	}
}

// PublicOnly redirects authenticated visitors away from login-style views.
func (a *RouteGuard) PublicOnly() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if a.guard.EvaluatePublicOnly() == DecisionRedirectAway {
				return c.Redirect(a.cfg.GetRejectedRouteDefault(), router.StatusSeeOther)
			}
			return hf(c)
		}
	}
}

func (a *RouteGuard) dispatch(c router.Context, decision Decision, hf router.HandlerFunc) error {
	switch decision {
	case DecisionAllow:
		snap := a.gateway.Session().Snapshot()
		c.Locals(a.cfg.GetContextKey(), snap)

		stdCtx := WithSnapshot(c.Context(), snap)
		if snap.Profile != nil {
			stdCtx = WithProfile(stdCtx, snap.Profile)
		}
		c.SetContext(stdCtx)

		return hf(c)
	case DecisionChecking, DecisionProfilePending:
		// neutral placeholder until the who-am-I check resolves
		return c.Render("loading", router.ViewContext{
			"path": c.OriginalURL(),
		})
	case DecisionForbidden:
		return c.Status(http.StatusForbidden).Render("errors/403", router.ViewContext{
			"home": a.cfg.GetDefaultRoute(),
		})
	default:
		return a.AuthErrorHandler(c, ErrNotAuthenticated)
	}
}

// Login authenticates the bound payload and returns the destination the
// caller should redirect to, preferring a redirect cookie left by an earlier
// rejected navigation.
func (a *RouteGuard) Login(c router.Context, payload LoginPayload) (string, error) {
	var dest string
	var err error

	if payload.GetAdminConsole() {
		dest, err = a.gateway.LoginAdmin(c.Context(), payload.GetIdentifier(), payload.GetPassword())
	} else {
		dest, err = a.gateway.Login(c.Context(), payload.GetIdentifier(), payload.GetPassword())
	}

	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return "", err
	}

	a.setCookieToken(c, a.gateway.Session().Token(), a.cookieDuration)

	if r := a.consumeRedirectCookie(c); r != "" {
		dest = r
	}

	return dest, nil
}

// Logout tears the session down and clears the token cookie.
func (a *RouteGuard) Logout(c router.Context) string {
	dest := a.gateway.Logout(c.Context())
	a.cookieDel(c, a.cfg.GetContextKey())
	return dest
}

// SetRedirect records the attempted destination in the intent slot and in a
// short-lived cookie so the redirect survives the login page round-trip.
func (a *RouteGuard) SetRedirect(c router.Context) {
	original := c.OriginalURL()

	path, query := splitTarget(original)
	a.gateway.Intent().Remember(path, query)

	rejectedRoute := a.cfg.GetRejectedRouteKey()

	a.Logger.Info("Setting redirect cookie", "key", rejectedRoute, "path", original)

	c.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    original,
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect returns and clears the remembered destination, falling back to
// def when nothing was recorded.
func (a *RouteGuard) GetRedirect(c router.Context, def ...string) string {
	fallback := a.cfg.GetRejectedRouteDefault()
	if len(def) > 0 {
		fallback = def[0]
	}

	if r := a.gateway.Intent().Consume(""); r != "" {
		a.cookieDel(c, a.cfg.GetRejectedRouteKey())
		return r
	}

	if r := a.consumeRedirectCookie(c); r != "" {
		return r
	}

	return fallback
}

func (a *RouteGuard) consumeRedirectCookie(c router.Context) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := c.Cookies(rejectedRoute)
	if r == "" {
		return ""
	}
	a.cookieDel(c, rejectedRoute)
	return r
}

func (a *RouteGuard) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteGuard) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.cfg.GetLoginRoute(), statusCode)
}

func (a *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}

func splitTarget(original string) (string, string) {
	u, err := url.Parse(original)
	if err != nil {
		return original, ""
	}
	return u.Path, u.RawQuery
}
