// Package form drives the report form: it owns the draft, the report list
// and the banner/loading state, and talks to the backend through a
// gateway.ReportGateway.
package form

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"shift_report/internal/catalog"
	"shift_report/internal/draft"
	"shift_report/internal/gateway"
	"shift_report/internal/report"
	"shift_report/internal/session"
)

// ConnectivityBanner is shown while the backend cannot be reached.
const ConnectivityBanner = "Could not connect to the server. Check your connection or that the backend is running."

var (
	// ErrSubmitInFlight is returned when Submit is called while an earlier
	// submission has not finished.
	ErrSubmitInFlight = errors.New("a submission is already in progress")
	// ErrNotLoggedIn is returned by operations that need a session.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Authenticator performs the login call. *gateway.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (gateway.LoginResult, error)
}

// Controller is safe for concurrent use. Network calls run without holding
// the state lock, so edits are never blocked by a slow backend.
type Controller struct {
	gw      gateway.ReportGateway
	auth    Authenticator
	source  catalog.Source
	session *session.Session
	catalog *catalog.Cache
	logger  *zap.Logger

	mu         sync.Mutex
	draft      draft.Draft
	reports    []report.Report
	banner     string
	loading    int
	submitting bool
}

// Options wires a Controller. Auth and Source may be nil when the caller
// manages login and catalogs itself.
type Options struct {
	Gateway gateway.ReportGateway
	Auth    Authenticator
	Source  catalog.Source
	Session *session.Session
	Catalog *catalog.Cache
	Logger  *zap.Logger
}

// New builds a controller with an empty draft.
func New(opts Options) *Controller {
	if opts.Session == nil {
		opts.Session = &session.Session{}
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.NewCache()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		gw:      opts.Gateway,
		auth:    opts.Auth,
		source:  opts.Source,
		session: opts.Session,
		catalog: opts.Catalog,
		logger:  opts.Logger,
		draft:   draft.New(opts.Catalog),
	}
}

// Draft returns the current draft.
func (c *Controller) Draft() draft.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Edit applies fn to the draft. When fn fails the draft is left as it was.
func (c *Controller) Edit(fn func(draft.Draft) (draft.Draft, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(c.draft)
	if err != nil {
		return err
	}
	c.draft = next
	return nil
}

// Reports returns the last fetched report list.
func (c *Controller) Reports() []report.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.reports)
}

// Banner is the connectivity message, empty while the backend is reachable.
func (c *Controller) Banner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

// Loading reports whether any backend call is outstanding.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading > 0
}

// Submitting reports whether a submission is outstanding.
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Catalog is the session's catalog cache.
func (c *Controller) Catalog() *catalog.Cache { return c.catalog }

// Session is the auth session the controller acts for.
func (c *Controller) Session() *session.Session { return c.session }

// Login authenticates, starts the session, loads the catalogs and fetches
// the report list for the user's role. Only authentication errors are
// returned.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	if c.auth == nil {
		return errors.New("login is not configured")
	}

	done := c.begin()
	res, err := c.auth.Login(ctx, username, password)
	done(err)
	if err != nil {
		return err
	}

	role, err := session.ParseRole(string(res.Role))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.session.Login(res.Token, role, res.Username)
	c.logger.Info("logged in", zap.String("username", res.Username), zap.String("role", string(role)))

	// The session is live from here on; load failures only show in the
	// banner and the log.
	if err := c.RefreshCatalog(ctx); err != nil {
		c.logger.Warn("catalog refresh failed", zap.Error(err))
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("report list refresh failed", zap.Error(err))
	}
	return nil
}

// Logout ends the session and drops everything tied to it.
func (c *Controller) Logout() {
	c.session.Logout()
	c.catalog.Reset()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = c.draft.Reset()
	c.reports = nil
	c.banner = ""
}

// RefreshCatalog reloads the catalog cache from the configured source.
func (c *Controller) RefreshCatalog(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	done := c.begin()
	err := c.catalog.Refresh(ctx, c.source)
	done(err)
	return err
}

// Refresh fetches the report list: every report for an admin, the user's
// own reports otherwise.
func (c *Controller) Refresh(ctx context.Context) error {
	role, ok := c.session.CurrentRole()
	if !ok {
		return ErrNotLoggedIn
	}

	done := c.begin()
	var (
		reports []report.Report
		err     error
	)
	if role == session.RoleAdmin {
		reports, err = c.gw.ListAll(ctx)
	} else {
		reports, err = c.gw.ListOwn(ctx)
	}
	done(err)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.reports = reports
	c.mu.Unlock()
	return nil
}

// Submit validates the draft and sends it. On success the draft is reset
// and the report list refreshed. On any failure the draft is kept so the
// user can retry.
func (c *Controller) Submit(ctx context.Context) (int64, error) {
	if _, ok := c.session.CurrentRole(); !ok {
		return 0, ErrNotLoggedIn
	}

	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return 0, ErrSubmitInFlight
	}
	current := c.draft
	if res := draft.Validate(current); !res.OK {
		c.mu.Unlock()
		return 0, res.Err()
	}
	c.submitting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	done := c.begin()
	id, err := c.gw.Create(ctx, current.Submission())
	done(err)
	if err != nil {
		c.logger.Warn("submit failed", zap.Error(err))
		return 0, err
	}

	c.mu.Lock()
	c.draft = c.draft.Reset()
	c.mu.Unlock()
	c.logger.Info("report submitted", zap.Int64("id", id))

	if err := c.Refresh(ctx); err != nil {
		return id, fmt.Errorf("report %d saved but the list could not be refreshed: %w", id, err)
	}
	return id, nil
}

// Delete removes a report and refreshes the list.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	if _, ok := c.session.CurrentRole(); !ok {
		return ErrNotLoggedIn
	}

	done := c.begin()
	err := c.gw.Delete(ctx, id)
	done(err)
	if err != nil {
		return err
	}
	c.logger.Info("report deleted", zap.Int64("id", id))
	return c.Refresh(ctx)
}

// begin marks a backend call as outstanding. The returned func must be
// called exactly once with the call's error; it clears the loading mark
// and updates the connectivity banner.
func (c *Controller) begin() func(error) {
	c.mu.Lock()
	c.loading++
	c.mu.Unlock()

	return func(err error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.loading--
		if gateway.IsConnectivity(err) {
			c.banner = ConnectivityBanner
		} else {
			c.banner = ""
		}
	}
}

// UserMessage is the text to show for an error returned by the controller:
// the validation reason, the server's own message, or the banner text.
func UserMessage(err error) string {
	var (
		verr *draft.ValidationError
		serr *gateway.ServerError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Reason
	case errors.As(err, &serr):
		return serr.Message
	case gateway.IsConnectivity(err):
		return ConnectivityBanner
	}
	return err.Error()
}
