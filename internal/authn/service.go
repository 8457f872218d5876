package authn

import (
	"context"
	"errors"
	"net/http"
	"time"

	"harmonia.org/internal/fault"
	"harmonia.org/internal/members"
	"harmonia.org/internal/roles"
	"harmonia.org/internal/session"
)

// RoleDirectory answers the role and workgroup lookups composition needs.
type RoleDirectory interface {
	MemberRoles(ctx context.Context, sess *session.Session, memberID int) ([]roles.Role, error)
	MemberWorkgroups(ctx context.Context, sess *session.Session, memberID int) ([]int, error)
	WorkgroupRoles(ctx context.Context, sess *session.Session, workgroupID int) ([]roles.Role, error)
}

// MemberDirectory resolves principals during login and refresh and carries
// the enrollment writes.
type MemberDirectory interface {
	FindExtendedByEmail(ctx context.Context, sess *session.Session, email string) (members.ExtendedMember, error)
	FindByActivation(ctx context.Context, sess *session.Session, activation string) (members.Member, error)
	Activate(ctx context.Context, sess *session.Session, memberID int, secretCipher, nonce []byte) error
}

// Composer computes a member's effective role set: directly associated
// roles, plus roles inherited through every workgroup the member belongs
// to, plus the Public and Member floor every authenticated member holds.
type Composer struct {
	directory RoleDirectory
}

// NewComposer builds a Composer over the given directory.
func NewComposer(directory RoleDirectory) *Composer {
	return &Composer{directory: directory}
}

// Compose resolves the member's effective roles. The result is never empty.
func (c *Composer) Compose(ctx context.Context, sess *session.Session, memberID int) (roles.Composition, error) {
	comp := roles.NewComposition(roles.Public, roles.Member)

	direct, err := c.directory.MemberRoles(ctx, sess, memberID)
	if err != nil {
		return roles.Composition{}, err
	}
	comp = comp.Add(direct...)

	workgroups, err := c.directory.MemberWorkgroups(ctx, sess, memberID)
	if err != nil {
		return roles.Composition{}, err
	}
	for _, wg := range workgroups {
		inherited, err := c.directory.WorkgroupRoles(ctx, sess, wg)
		if err != nil {
			return roles.Composition{}, err
		}
		comp = comp.Add(inherited...)
	}
	return comp, nil
}

// Service implements one-time-code login and the transparent token
// refresh ladder.
type Service struct {
	members  MemberDirectory
	composer *Composer
	signer   *Signer
	cipher   *OTPCipher
	now      func() time.Time
}

// NewService wires the login service.
func NewService(directory MemberDirectory, composer *Composer, signer *Signer, otpCipher *OTPCipher) *Service {
	return &Service{
		members:  directory,
		composer: composer,
		signer:   signer,
		cipher:   otpCipher,
		now:      time.Now,
	}
}

// Signer exposes the token signer for request-gate verification.
func (s *Service) Signer() *Signer { return s.signer }

// LoginResult is the payload of a successful login or refresh.
type LoginResult struct {
	Member         members.Member    `json:"member"`
	CompositeRoles roles.Composition `json:"composite_roles"`

	// Cookies to set on the response; never serialized.
	Cookies []*http.Cookie `json:"-"`
}

// Login validates a one-time code and issues the token pair. Unknown,
// inactive, and unenrolled members all fail identically so the endpoint
// leaks nothing about account state.
func (s *Service) Login(ctx context.Context, sess *session.Session, email, code string) (*LoginResult, error) {
	member, err := s.members.FindExtendedByEmail(ctx, sess, email)
	if err != nil {
		if errors.Is(err, members.ErrNotFound) {
			return nil, fault.Forbidden()
		}
		return nil, err
	}
	if !member.Active || len(member.OTPSecretCipher) == 0 {
		return nil, fault.Forbidden()
	}
	secret, err := s.cipher.DecryptSecret(member.OTPSecretCipher, member.OTPNonce)
	if err != nil {
		return nil, err
	}
	if !CheckCode(secret, code, s.now()) {
		return nil, fault.Forbidden()
	}

	comp, err := s.composer.Compose(ctx, sess, member.ID)
	if err != nil {
		return nil, err
	}
	access, err := s.signer.AccessCookie(member.EmailAddress, comp)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signer.RefreshCookie(member.EmailAddress, comp)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Member:         member.Member,
		CompositeRoles: comp,
		Cookies:        []*http.Cookie{access, refresh},
	}, nil
}

// Refresh renews whichever tokens have sunk below the high-water mark.
// Renewing the refresh token recomputes the role composition from the
// database, so it is also the point where privilege changes surface; a
// renewed access token alone keeps the claims it already carried. When
// neither token is near expiry no cookies are issued.
func (s *Service) Refresh(ctx context.Context, sess *session.Session, accessValue, refreshValue string) (*LoginResult, error) {
	claims, err := s.signer.VerifyRefresh(refreshValue)
	if err != nil {
		return nil, err
	}

	member, err := s.members.FindExtendedByEmail(ctx, sess, claims.EmailAddress)
	if err != nil {
		if errors.Is(err, members.ErrNotFound) {
			return nil, fault.Forbidden()
		}
		return nil, err
	}
	if !member.Active {
		return nil, fault.Forbidden()
	}

	refreshNear, err := s.signer.NearExpiry(refreshValue)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{Member: member.Member, CompositeRoles: claims.Roles}
	if refreshNear {
		comp, err := s.composer.Compose(ctx, sess, member.ID)
		if err != nil {
			return nil, err
		}
		access, err := s.signer.AccessCookie(member.EmailAddress, comp)
		if err != nil {
			return nil, err
		}
		refresh, err := s.signer.RefreshCookie(member.EmailAddress, comp)
		if err != nil {
			return nil, err
		}
		result.CompositeRoles = comp
		result.Cookies = []*http.Cookie{access, refresh}
		return result, nil
	}

	accessNear := true
	if accessValue != "" {
		accessNear, err = s.signer.NearExpiry(accessValue)
		if err != nil {
			accessNear = true
		}
	}
	if accessNear {
		access, err := s.signer.AccessCookie(claims.EmailAddress, claims.Roles)
		if err != nil {
			return nil, err
		}
		result.Cookies = []*http.Cookie{access}
	}
	return result, nil
}

// Enroll burns an activation string: it draws a fresh login secret, seals
// it, activates the member and hands back the otpauth URI the member scans
// into an authenticator. Unknown and expired strings fail identically.
func (s *Service) Enroll(ctx context.Context, sess *session.Session, activation string) (string, error) {
	member, err := s.members.FindByActivation(ctx, sess, activation)
	if err != nil {
		if errors.Is(err, members.ErrNotFound) {
			return "", fault.Forbidden()
		}
		return "", err
	}
	secret, err := GenerateSecret()
	if err != nil {
		return "", err
	}
	sealed, nonce, err := s.cipher.EncryptSecret(secret)
	if err != nil {
		return "", err
	}
	if err := s.members.Activate(ctx, sess, member.ID, sealed, nonce); err != nil {
		return "", err
	}
	return ProvisioningURI(secret, member.EmailAddress), nil
}

// Logout returns the cookie pair that erases both tokens client side.
func (s *Service) Logout() []*http.Cookie {
	return []*http.Cookie{
		s.signer.ExpiredCookie(CookieAccess),
		s.signer.ExpiredCookie(CookieRefresh),
	}
}
