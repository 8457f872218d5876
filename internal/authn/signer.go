package authn

import (
	"crypto/ed25519"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"harmonia.org/internal/fault"
	"harmonia.org/internal/roles"
)

// Signer issues and verifies the Ed25519-signed token pair and shapes the
// cookies they travel in. Both cookies are HttpOnly and SameSite=Strict;
// only TLS deployments should disable Secure.
type Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey

	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	highWaterMark time.Duration
	cookieSecure  bool

	now func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// WithCookieSecure toggles the Secure attribute on issued cookies.
func WithCookieSecure(secure bool) SignerOption {
	return func(s *Signer) { s.cookieSecure = secure }
}

// NewSigner builds a Signer from PEM key material and second-granularity
// lifetimes. The refresh lifetime must exceed the access lifetime so that a
// live refresh token always outlasts the access token it renews.
func NewSigner(privatePEM, publicPEM, issuer string, accessTTL, refreshTTL, highWaterMark time.Duration, opts ...SignerOption) (*Signer, error) {
	private, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	public, err := ParsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}
	if refreshTTL <= accessTTL {
		return nil, fault.Bad("refresh lifetime must exceed access lifetime")
	}
	s := &Signer{
		private:       private,
		public:        public,
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		highWaterMark: highWaterMark,
		cookieSecure:  true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Signer) sign(email string, comp roles.Composition, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		EmailAddress: email,
		Roles:        comp,
		TokenType:    tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.private)
	if err != nil {
		return "", fault.Internal("sign token", err)
	}
	return signed, nil
}

func (s *Signer) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// AccessCookie issues a fresh access token for the principal.
func (s *Signer) AccessCookie(email string, comp roles.Composition) (*http.Cookie, error) {
	value, err := s.sign(email, comp, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	return s.cookie(CookieAccess, value, s.accessTTL), nil
}

// RefreshCookie issues a fresh refresh token for the principal.
func (s *Signer) RefreshCookie(email string, comp roles.Composition) (*http.Cookie, error) {
	value, err := s.sign(email, comp, tokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return s.cookie(CookieRefresh, value, s.refreshTTL), nil
}

// ExpiredCookie returns a cookie that instructs the client to discard the
// named token.
func (s *Signer) ExpiredCookie(name string) *http.Cookie {
	c := s.cookie(name, "", 0)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

func (s *Signer) verify(value, wantType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fault.Bad("unexpected token signing method")
		}
		return s.public, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fault.Unauthorized("token rejected", err)
	}
	if claims.TokenType != wantType {
		return nil, fault.Unauthorized("token type mismatch", nil)
	}
	return claims, nil
}

// VerifyAccess validates an access token end to end.
func (s *Signer) VerifyAccess(value string) (*Claims, error) {
	return s.verify(value, tokenTypeAccess)
}

// VerifyRefresh validates a refresh token end to end.
func (s *Signer) VerifyRefresh(value string) (*Claims, error) {
	return s.verify(value, tokenTypeRefresh)
}

// NearExpiry reports whether the token's remaining lifetime has dipped below
// the high-water mark. The token's expiry is read without signature
// verification; callers must have verified the token already.
func (s *Signer) NearExpiry(value string) (bool, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(value, claims); err != nil {
		return false, fault.Bad("token is not parseable")
	}
	if claims.ExpiresAt == nil {
		return false, fault.Bad("token carries no expiry")
	}
	return !claims.ExpiresAt.Add(-s.highWaterMark).After(s.now()), nil
}
