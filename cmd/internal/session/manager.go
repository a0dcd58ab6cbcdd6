package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arcsync/cmd/internal/credstore"
	"arcsync/cmd/internal/telemetry"
	"arcsync/cmd/security/token"
	apiv1 "arcsync/shared/contracts/api/v1"

	"golang.org/x/sync/singleflight"
)

// flightKey identifies the one refresh that may be outstanding.
const flightKey = "refresh"

// LogoutReason says why a session ended.
type LogoutReason string

const (
	ReasonRefreshFailed  LogoutReason = "refresh_failed"
	ReasonNoRefreshToken LogoutReason = "no_refresh_token"
	ReasonUserLogout     LogoutReason = "user_logout"
)

// LogoutFunc is invoked once per ended session. It runs on the goroutine
// that ended the session and must not call Refresh synchronously.
type LogoutFunc func(reason LogoutReason, cause error)

// Manager decides credential validity and serializes refreshes.
type Manager struct {
	cfg       Config
	store     credstore.Store
	refresher Refresher
	log       *slog.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time

	flight singleflight.Group
	bg     sync.WaitGroup

	mu       sync.Mutex
	onLogout LogoutFunc
	stop     chan struct{} // non-nil while the poll loop runs
	done     chan struct{}
	releases []func()
	closed   bool
	// paused is set while a bound Lifecycle is in the background.
	paused bool
}

// Option customizes a Manager.
type Option func(*Manager)

// WithNowFunc overrides the clock.
func WithNowFunc(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mx *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithLogoutFunc registers the logout callback at construction.
func WithLogoutFunc(fn LogoutFunc) Option {
	return func(m *Manager) { m.onLogout = fn }
}

// NewManager builds a Manager. The poll loop is not started; call
// BindLifecycle or StartProactiveRefresh.
func NewManager(cfg Config, store credstore.Store, refresher Refresher, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || refresher == nil {
		return nil, errors.New("session: store and refresher are required")
	}

	m := &Manager{
		cfg:       cfg,
		store:     store,
		refresher: refresher,
		log:       slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// OnLogout replaces the logout callback.
func (m *Manager) OnLogout(fn LogoutFunc) {
	m.mu.Lock()
	m.onLogout = fn
	m.mu.Unlock()
}

// Current returns the stored pair without any renewal.
func (m *Manager) Current(ctx context.Context) (credstore.Pair, bool, error) {
	return m.store.Load(ctx)
}

// GetValidToken returns an access token that is valid now.
//
// An expired token blocks the caller until the shared refresh settles.
// A token inside the renewal threshold is returned at once while a
// background refresh runs.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	p, ok, err := m.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("session: load credentials: %w", err)
	}
	if !ok {
		return "", ErrNotAuthenticated
	}

	left := p.Remaining(m.now())
	switch {
	case left <= 0:
		m.log.Debug("session.token.expired", "expired_for", -left)
		return m.Refresh(ctx, p.AccessToken)
	case left < m.cfg.RenewalThreshold:
		m.renewInBackground(p.AccessToken)
	}
	return p.AccessToken, nil
}

// Refresh performs or joins the in-flight refresh and returns the new
// access token. rejected is the access token the server refused; when the
// stored pair has already moved past it no network call is made. An empty
// rejected always renews. A caller whose ctx ends stops waiting; the shared
// call keeps running under RefreshTimeout for everyone else.
func (m *Manager) Refresh(ctx context.Context, rejected string) (string, error) {
	return m.join(ctx, rejected)
}

// join attaches to the single flight. When seen is non-empty the flight
// skips the network call if the stored access token is no longer seen and
// still valid, which means another caller renewed in between.
func (m *Manager) join(ctx context.Context, seen string) (string, error) {
	ch := m.flight.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
		defer cancel()
		return m.doRefresh(fctx, seen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context, seen string) (string, error) {
	p, ok, err := m.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("session: load credentials: %w", err)
	}
	if !ok {
		m.StopProactiveRefresh()
		return "", ErrNotAuthenticated
	}
	if seen != "" && !token.Equal(p.AccessToken, seen) && p.Remaining(m.now()) > 0 {
		return p.AccessToken, nil
	}
	if p.RefreshToken == "" {
		m.endSession(ctx, ReasonNoRefreshToken, ErrNoRefreshToken)
		return "", ErrNoRefreshToken
	}

	start := m.now()
	resp, err := m.refresher.Refresh(ctx, p.RefreshToken)
	var next credstore.Pair
	if err == nil {
		next, err = m.pairFromResponse(resp)
	}
	if err != nil {
		m.metrics.IncRefresh("failed")
		rerr := &RefreshError{Cause: err}
		var ee *EndpointError
		if errors.As(err, &ee) {
			rerr.Status, rerr.Code = ee.Status, ee.Code
		}
		m.log.Warn("session.refresh.failed",
			"refresh_fp", token.Fingerprint(p.RefreshToken),
			"status", rerr.Status,
			"code", rerr.Code,
			"err", err,
		)
		m.endSession(ctx, ReasonRefreshFailed, rerr)
		return "", rerr
	}

	if err := m.store.Save(ctx, next); err != nil {
		return "", fmt.Errorf("session: save credentials: %w", err)
	}
	m.metrics.IncRefresh("ok")
	m.log.Info("session.refresh.ok",
		"refresh_fp", token.Fingerprint(next.RefreshToken),
		"expires_at", next.ExpiresAt,
		"took", m.now().Sub(start),
	)
	return next.AccessToken, nil
}

// SaveTokens persists a new pair and (re)starts proactive renewal.
func (m *Manager) SaveTokens(ctx context.Context, accessToken, refreshToken string, expiresIn time.Duration) error {
	p := credstore.Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    m.now().Add(expiresIn).UTC(),
	}
	if err := m.store.Save(ctx, p); err != nil {
		return fmt.Errorf("session: save credentials: %w", err)
	}
	m.log.Info("session.tokens.saved",
		"refresh_fp", token.Fingerprint(refreshToken),
		"expires_at", p.ExpiresAt,
	)
	m.mu.Lock()
	paused := m.paused
	m.mu.Unlock()
	if !paused {
		m.StartProactiveRefresh()
	}
	return nil
}

// SaveTokenResponse is SaveTokens for a login or refresh payload.
func (m *Manager) SaveTokenResponse(ctx context.Context, resp apiv1.TokenResponse) error {
	p, err := m.pairFromResponse(resp)
	if err != nil {
		return err
	}
	return m.SaveTokens(ctx, p.AccessToken, p.RefreshToken, p.ExpiresAt.Sub(m.now()))
}

func (m *Manager) pairFromResponse(resp apiv1.TokenResponse) (credstore.Pair, error) {
	now := m.now()
	p := credstore.Pair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	switch {
	case resp.ExpiresIn > 0:
		p.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	default:
		exp, ok := ExpiryFromJWT(resp.AccessToken)
		if !ok {
			return credstore.Pair{}, ErrNoExpiry
		}
		p.ExpiresAt = exp
	}
	if err := p.Validate(); err != nil {
		return credstore.Pair{}, err
	}
	return p, nil
}

// Logout ends the session on user request.
func (m *Manager) Logout(ctx context.Context) error {
	return m.endSession(ctx, ReasonUserLogout, nil)
}

// endSession stops renewal, clears the store and fires the callback.
func (m *Manager) endSession(ctx context.Context, reason LogoutReason, cause error) error {
	m.StopProactiveRefresh()

	err := m.store.Clear(ctx)
	if err != nil {
		m.log.Error("session.logout.clear_failed", "reason", reason, "err", err)
	}

	m.metrics.IncLogout(string(reason))
	m.log.Info("session.logout", "reason", reason, "cause", cause)

	m.mu.Lock()
	fn := m.onLogout
	m.mu.Unlock()
	if fn != nil {
		fn(reason, cause)
	}
	return err
}

// renewInBackground joins or starts a refresh without blocking the caller.
func (m *Manager) renewInBackground(seen string) {
	m.mu.Lock()
	closed := m.closed
	if !closed {
		m.bg.Add(1)
	}
	m.mu.Unlock()
	if closed {
		return
	}

	go func() {
		defer m.bg.Done()
		if _, err := m.join(context.Background(), seen); err != nil {
			m.log.Warn("session.renew.background_failed", "err", err)
		}
	}()
}

// StartProactiveRefresh starts the poll loop. It is a no-op when the loop
// already runs or the manager is closed. The first check runs immediately.
func (m *Manager) StartProactiveRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil || m.closed {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.poll(m.stop, m.done)
	m.log.Debug("session.proactive.start", "interval", m.cfg.PollInterval)
}

// StopProactiveRefresh stops the poll loop and waits for it to exit.
func (m *Manager) StopProactiveRefresh() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	m.log.Debug("session.proactive.stop")
}

// ProactiveRefreshActive reports whether the poll loop runs.
func (m *Manager) ProactiveRefreshActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop != nil
}

func (m *Manager) poll(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	t := time.NewTicker(m.cfg.PollInterval)
	defer t.Stop()

	m.checkRenewal()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			m.checkRenewal()
		}
	}
}

func (m *Manager) checkRenewal() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RefreshTimeout)
	defer cancel()

	p, ok, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("session.proactive.load_failed", "err", err)
		return
	}
	if !ok {
		return
	}
	if p.Remaining(m.now()) < m.cfg.RenewalThreshold {
		m.renewInBackground(p.AccessToken)
	}
}

// BindLifecycle ties the poll loop to foreground/background transitions.
// Polling resumes on foreground only while a pair is stored, and SaveTokens
// does not start it while backgrounded. The returned release func
// unsubscribes and stops the loop; Close calls it too.
func (m *Manager) BindLifecycle(l *Lifecycle) (release func()) {
	unsubscribe := l.Subscribe(func(s AppState) {
		switch s {
		case StateForeground:
			m.setPaused(false)
			m.resumeIfSignedIn()
		case StateBackground:
			m.setPaused(true)
			m.StopProactiveRefresh()
		}
	})

	var once sync.Once
	release = func() {
		once.Do(func() {
			unsubscribe()
			m.setPaused(false)
			m.StopProactiveRefresh()
		})
	}

	m.mu.Lock()
	m.releases = append(m.releases, release)
	m.mu.Unlock()

	if l.State() == StateForeground {
		m.resumeIfSignedIn()
	} else {
		m.setPaused(true)
	}
	return release
}

func (m *Manager) setPaused(v bool) {
	m.mu.Lock()
	m.paused = v
	m.mu.Unlock()
}

// resumeIfSignedIn starts the poll loop when a pair is stored.
func (m *Manager) resumeIfSignedIn() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RefreshTimeout)
	defer cancel()

	_, ok, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("session.proactive.load_failed", "err", err)
		return
	}
	if !ok {
		m.log.Debug("session.proactive.skipped", "reason", "signed_out")
		return
	}
	m.StartProactiveRefresh()
}

// Close releases lifecycle bindings, stops renewal and waits for
// background refreshes to settle.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	releases := m.releases
	m.releases = nil
	m.mu.Unlock()

	for _, r := range releases {
		r()
	}
	m.StopProactiveRefresh()
	m.bg.Wait()
}
