package session

import (
	"crypto/sha256"
	"errors"
	"time"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/config"
	"reviewhub/pkg/errutil"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/fx"
)

var Module = fx.Module("session", fx.Provide(NewManager))

type claims struct {
	jwt.Claims
	Role string `json:"role"`
}

// Manager issues and verifies HS256 session tokens.
type Manager struct {
	key    []byte
	issuer string
	ttl    time.Duration
	signer jose.Signer
	now    func() time.Time
}

func NewManager(cfg *config.Config) (*Manager, error) {
	if cfg.Session.Secret == "" {
		return nil, errors.New("SESSION.SECRET is required")
	}
	return newManager(cfg.Session.Secret, cfg.Session.Name, cfg.Session.TTL, time.Now)
}

func newManager(secret, issuer string, ttl time.Duration, now func() time.Time) (*Manager, error) {
	// HS256 wants a 256-bit key whatever the configured secret length is.
	sum := sha256.Sum256([]byte(secret))
	key := sum[:]

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, err
	}

	return &Manager{key: key, issuer: issuer, ttl: ttl, signer: signer, now: now}, nil
}

func (m *Manager) Issue(p authz.Principal) (string, time.Time, error) {
	now := m.now()
	expiry := now.Add(m.ttl)

	token, err := jwt.Signed(m.signer).Claims(claims{
		Claims: jwt.Claims{
			Subject:  p.UserID,
			Issuer:   m.issuer,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(expiry),
		},
		Role: string(p.Role),
	}).Serialize()
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiry, nil
}

// Parse verifies signature, issuer and expiry and returns the principal.
func (m *Manager) Parse(raw string) (authz.Principal, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return authz.Principal{}, errutil.Unauthorized("invalid session", err)
	}

	var c claims
	if err := tok.Claims(m.key, &c); err != nil {
		return authz.Principal{}, errutil.Unauthorized("invalid session", err)
	}

	if err := c.Claims.ValidateWithLeeway(jwt.Expected{Issuer: m.issuer, Time: m.now()}, 0); err != nil {
		return authz.Principal{}, errutil.Unauthorized("session expired", err)
	}

	role, ok := authz.ParseRole(c.Role)
	if !ok || c.Subject == "" {
		return authz.Principal{}, errutil.Unauthorized("invalid session", nil)
	}

	return authz.Principal{UserID: c.Subject, Role: role}, nil
}
