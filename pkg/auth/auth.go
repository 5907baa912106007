// Package auth resolves the tenant and user identity of incoming requests.
//
// The primary mechanism is an internal HS256 bearer token minted by the
// frontend. A header-based fallback exists for local development and is
// disabled unless explicitly configured.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/eq-labs/interactions-gateway/pkg/config"
)

var (
	// ErrTokenMissing is returned when no credential is presented.
	ErrTokenMissing = errors.New("missing bearer token")

	// ErrTokenInvalid is returned for malformed, mis-signed, or
	// wrong-claim tokens.
	ErrTokenInvalid = errors.New("invalid bearer token")

	// ErrTokenExpired is returned when the token is outside its validity
	// window beyond the allowed leeway.
	ErrTokenExpired = errors.New("expired bearer token")
)

// Leeway tolerated on exp/nbf/iat checks.
const clockSkewLeeway = 30 * time.Second

// RequestContext is the resolved identity attached to every authenticated
// request. Optional fields are empty strings when the caller did not supply
// them.
type RequestContext struct {
	TenantID uuid.UUID
	UserID   string

	// PgUserID bridges to the secondary user key some callers carry.
	PgUserID  string
	UserName  string
	AccountID string

	// InteractionID is minted per request unless an internal caller passes
	// one through the token.
	InteractionID uuid.UUID
	TraceID       string

	// Method records how the identity was established: "jwt" or "header".
	Method string
}

// Claims is the internal token claim set. Only tenant_id and user_id are
// required; the rest are passed through when present.
type Claims struct {
	TenantID      string `json:"tenant_id"`
	UserID        string `json:"user_id"`
	PgUserID      string `json:"pg_user_id,omitempty"`
	UserName      string `json:"user_name,omitempty"`
	AccountID     string `json:"account_id,omitempty"`
	InteractionID string `json:"interaction_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates internal bearer tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier creates a Verifier. The secret must be at least 32 bytes to
// resist brute force on HS256.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("auth: INTERNAL_JWT_SECRET must be at least 32 characters")
	}
	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
	}, nil
}

// Verify parses and validates a raw token string, returning the resolved
// identity on success.
func (v *Verifier) Verify(tokenString string) (*RequestContext, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(clockSkewLeeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: tenant_id is not a UUID", ErrTokenInvalid)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: user_id claim is missing", ErrTokenInvalid)
	}

	rc := &RequestContext{
		TenantID:  tenantID,
		UserID:    claims.UserID,
		PgUserID:  claims.PgUserID,
		UserName:  claims.UserName,
		AccountID: claims.AccountID,
		Method:    "jwt",
	}
	if id, err := uuid.Parse(claims.InteractionID); err == nil {
		rc.InteractionID = id
	} else {
		rc.InteractionID = uuid.New()
	}
	// A trace id only survives if it is a well-formed UUID; otherwise the
	// middleware mints a fresh one.
	if _, err := uuid.Parse(claims.TraceID); err == nil {
		rc.TraceID = claims.TraceID
	}
	return rc, nil
}
