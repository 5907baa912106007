package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/eq-labs/interactions-gateway/pkg/config"
)

// contextKey is the echo context key the resolved identity is stored under.
const contextKey = "auth.requestContext"

// Middleware resolves request identity and attaches it to the echo context.
// Resolution order: Authorization bearer token, then the `token` query
// parameter (websocket clients cannot set headers from browsers), then the
// legacy development headers when enabled.
type Middleware struct {
	verifier *Verifier
	cfg      config.AuthConfig
}

// NewMiddleware creates the identity middleware.
func NewMiddleware(verifier *Verifier, cfg config.AuthConfig) *Middleware {
	if verifier == nil {
		panic("auth: verifier is required")
	}
	return &Middleware{verifier: verifier, cfg: cfg}
}

// Resolve is the echo middleware function.
func (m *Middleware) Resolve(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		rc, err := m.Identify(c)
		if err != nil {
			return err
		}
		c.Set(contextKey, rc)
		return next(c)
	}
}

// Identify resolves the request identity without touching the echo context.
// WebSocket handlers call this directly so an auth failure can be reported
// with a close frame instead of an HTTP status.
func (m *Middleware) Identify(c *echo.Context) (*RequestContext, error) {
	rc, err := m.resolve(c)
	if err != nil {
		return nil, err
	}
	if rc.TraceID == "" {
		rc.TraceID = traceID(c)
	}
	if rc.InteractionID == uuid.Nil {
		rc.InteractionID = uuid.New()
	}
	return rc, nil
}

func (m *Middleware) resolve(c *echo.Context) (*RequestContext, error) {
	token := bearerToken(c)
	if token == "" {
		token = c.QueryParam("token")
	}

	if token != "" {
		rc, err := m.verifier.Verify(token)
		switch {
		case err == nil:
			return rc, nil
		case errors.Is(err, ErrTokenExpired):
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "bearer token expired")
		default:
			slog.Warn("Rejected bearer token", "error", err)
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
		}
	}

	if m.cfg.AllowLegacyHeaders {
		if rc, ok := m.legacyIdentity(c); ok {
			return rc, nil
		}
	}

	return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
}

// legacyIdentity builds an identity from development headers, falling back to
// the configured mock identity when the tenant header is absent.
func (m *Middleware) legacyIdentity(c *echo.Context) (*RequestContext, bool) {
	tenantHeader := c.Request().Header.Get("X-Tenant-Id")
	if tenantHeader == "" {
		tenantHeader = m.cfg.MockTenantID
	}
	if tenantHeader == "" {
		return nil, false
	}
	tenantID, err := uuid.Parse(tenantHeader)
	if err != nil {
		return nil, false
	}
	userID := c.Request().Header.Get("X-User-Id")
	if userID == "" {
		userID = m.cfg.MockUserID
	}
	return &RequestContext{
		TenantID:  tenantID,
		UserID:    userID,
		AccountID: c.Request().Header.Get("X-Account-Id"),
		Method:    "header",
	}, true
}

// FromContext returns the identity resolved by Middleware.Resolve.
func FromContext(c *echo.Context) (*RequestContext, bool) {
	rc, ok := c.Get(contextKey).(*RequestContext)
	return rc, ok
}

// SetContext attaches an identity to the echo context directly. Handler tests
// use it to skip the middleware.
func SetContext(c *echo.Context, rc *RequestContext) {
	c.Set(contextKey, rc)
}

func bearerToken(c *echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// traceID honors an inbound X-Trace-Id header when it is a well-formed UUID
// and otherwise mints one.
func traceID(c *echo.Context) string {
	if id := c.Request().Header.Get("X-Trace-Id"); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return uuid.NewString()
}
