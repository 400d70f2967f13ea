// Package session issues signed session tokens and resolves requests into tagged session results.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultCookieName carries the session token for browser clients.
	DefaultCookieName = "pr_token"
	// DefaultTTL is how long an issued token stays valid.
	DefaultTTL = 7 * 24 * time.Hour

	issuer              = "promorang"
	bearerScheme        = "Bearer"
	minSigningKeyLength = 32
)

var ErrInvalidConfig = errors.New("invalid session config")

// State tags a Result.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateInvalid
)

func (state State) String() string {
	switch state {
	case StateAuthenticated:
		return "authenticated"
	case StateInvalid:
		return "invalid"
	default:
		return "anonymous"
	}
}

// Result is the outcome of resolving a request's credentials.
type Result struct {
	state  State
	userID economy.UserID
	reason string
}

// Authenticated is a verified session for userID.
func Authenticated(userID economy.UserID) Result {
	return Result{state: StateAuthenticated, userID: userID}
}

// Anonymous is a request without credentials.
func Anonymous() Result {
	return Result{state: StateAnonymous}
}

// Invalid is a request whose credentials failed verification.
func Invalid(reason string) Result {
	return Result{state: StateInvalid, reason: reason}
}

// State returns the tag.
func (result Result) State() State {
	return result.state
}

// UserID returns the user for authenticated results.
func (result Result) UserID() (economy.UserID, bool) {
	return result.userID, result.state == StateAuthenticated
}

// Reason explains an Invalid result.
func (result Result) Reason() string {
	return result.reason
}

// Config configures a Manager.
type Config struct {
	SigningKey string
	CookieName string
	TTL        time.Duration
	Clock      func() time.Time
}

// Manager issues and verifies HS256 session tokens.
type Manager struct {
	signingKey []byte
	cookieName string
	ttl        time.Duration
	clock      func() time.Time
}

// NewManager validates cfg and applies defaults.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) < minSigningKeyLength {
		return nil, fmt.Errorf("%w: signing key must be at least %d bytes", ErrInvalidConfig, minSigningKeyLength)
	}
	manager := &Manager{
		signingKey: []byte(cfg.SigningKey),
		cookieName: strings.TrimSpace(cfg.CookieName),
		ttl:        cfg.TTL,
		clock:      cfg.Clock,
	}
	if manager.cookieName == "" {
		manager.cookieName = DefaultCookieName
	}
	if manager.ttl <= 0 {
		manager.ttl = DefaultTTL
	}
	if manager.clock == nil {
		manager.clock = time.Now
	}
	return manager, nil
}

// CookieName is the name of the session cookie.
func (manager *Manager) CookieName() string {
	return manager.cookieName
}

// TTL is the token lifetime.
func (manager *Manager) TTL() time.Duration {
	return manager.ttl
}

// Issue signs a token for userID.
func (manager *Manager) Issue(userID economy.UserID) (string, error) {
	if userID.IsZero() {
		return "", fmt.Errorf("%w: empty user id", economy.ErrInvalidUserID)
	}
	issuedAt := manager.clock().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(manager.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(manager.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Resolve verifies a raw token. An empty token is Anonymous.
func (manager *Manager) Resolve(rawToken string) Result {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Anonymous()
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		return manager.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(manager.clock),
	)
	if err != nil {
		return Invalid(err.Error())
	}
	if claims.IssuedAt == nil || manager.clock().Sub(claims.IssuedAt.Time) > manager.ttl {
		return Invalid("token issued outside the validity window")
	}
	userID, err := economy.NewUserID(claims.Subject)
	if err != nil {
		return Invalid("token has no subject")
	}
	return Authenticated(userID)
}

// FromRequest resolves the session cookie, falling back to an Authorization bearer token.
func (manager *Manager) FromRequest(request *http.Request) Result {
	if cookie, err := request.Cookie(manager.cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return manager.Resolve(cookie.Value)
	}
	header := strings.TrimSpace(request.Header.Get("Authorization"))
	if header == "" {
		return Anonymous()
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return Invalid("authorization header is not a bearer token")
	}
	return manager.Resolve(strings.TrimSpace(token))
}

// Cookie builds the session cookie for token. secure controls the Secure flag and SameSite policy.
func (manager *Manager) Cookie(token string, secure bool) *http.Cookie {
	cookie := &http.Cookie{
		Name:     manager.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(manager.ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}

// ClearCookie expires the session cookie.
func (manager *Manager) ClearCookie(secure bool) *http.Cookie {
	cookie := manager.Cookie("", secure)
	cookie.MaxAge = -1
	return cookie
}
