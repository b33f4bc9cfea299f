package session

import (
	"context"
	"time"
)

// Controller owns the process-wide session: bootstrap at startup, profile
// refresh, and fail-closed teardown when a stored token turns out to be
// invalid.
type Controller struct {
	api      API
	store    CredentialStore
	session  *Session
	cfg      Config
	logger   Logger
	activity ActivitySink
}

// NewController wires the controller to the remote API and credential store.
func NewController(api API, store CredentialStore, cfg Config) *Controller {
	return &Controller{
		api:      api,
		store:    store,
		session:  NewSession(),
		cfg:      cfg,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (c *Controller) WithLogger(logger Logger) *Controller {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithActivitySink configures an ActivitySink for emitting session events.
func (c *Controller) WithActivitySink(sink ActivitySink) *Controller {
	c.activity = normalizeActivitySink(sink)
	return c
}

// Session exposes the state container for read-only consumers.
func (c *Controller) Session() *Session {
	return c.session
}

// Bootstrap establishes the initial session state from the credential store.
// No stored token is the fast path: the session resolves anonymous
// immediately. With a token, the profile fetch decides; either way the
// loading flag flips false exactly once before Bootstrap returns.
func (c *Controller) Bootstrap(ctx context.Context) Snapshot {
	rec, ok, err := c.store.Load()
	if err != nil {
		c.logger.Error("Bootstrap credential load error", "error", err)
	}

	if err != nil || !ok || rec.Token == "" {
		c.session.finishLoading()
		return c.session.Snapshot()
	}

	ownerHint := rec.IsAdmin && c.cfg.GetTrustStoredAdminFlag()
	if !ownerHint {
		// display hint only; the guard still demands a fetched profile
		if role, found := RoleHint(rec.Token); found {
			ownerHint = role == RoleOwner
		}
	}

	c.session.setToken(rec.Token, ownerHint)

	if err := c.RefreshUser(ctx); err != nil {
		c.logger.Warn("Bootstrap session invalidated", "error", err)
	}

	return c.session.Snapshot()
}

// RefreshUser fetches the current profile for the session token. Any failure,
// transport or explicit, tears the whole session down, store included: an
// unverifiable session is treated as no session. The loading flag resolves on
// every path.
func (c *Controller) RefreshUser(ctx context.Context) error {
	defer c.session.finishLoading()

	snap := c.session.Snapshot()
	if snap.Token == "" {
		return ErrNotAuthenticated
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.GetRequestTimeout())
	defer cancel()

	profile, err := c.api.CurrentUser(fetchCtx, snap.Token)
	if err != nil {
		return c.invalidate(snap, err)
	}

	owner := profile.IsOwner()
	if !owner && c.cfg.GetTrustStoredAdminFlag() {
		if rec, ok, err := c.store.Load(); err == nil && ok && rec.IsAdmin {
			owner = true
		}
	}

	if !c.session.setProfile(snap.Generation, profile, owner) {
		// a logout or newer login won the race; drop the stale result
		c.logger.Debug("Discarding stale profile fetch", "user", profile.ID)
		return nil
	}

	return nil
}

// invalidate applies the fail-closed policy: session and credential record go
// together. A stale fetch (generation moved on) invalidates nothing.
func (c *Controller) invalidate(snap Snapshot, cause error) error {
	if !c.session.clearIf(snap.Generation) {
		return nil
	}

	if err := c.store.Clear(); err != nil {
		c.logger.Error("Failed to clear credential store", "error", err)
	}

	c.emit(ActivityEventSessionInvalidated, snap, map[string]any{
		"error": cause.Error(),
	})

	return ErrSessionInvalidated.WithMetadata(map[string]any{
		"cause": cause.Error(),
	})
}

func (c *Controller) emit(eventType ActivityEventType, snap Snapshot, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if snap.Profile != nil {
		event.UserID = snap.Profile.ID
		event.Email = snap.Profile.Email
	}

	if err := c.activity.Record(context.Background(), event); err != nil {
		c.logger.Warn("Activity sink error", "event", eventType, "error", err)
	}
}
