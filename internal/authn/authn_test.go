package authn

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"testing"
	"time"

	"harmonia.org/internal/fault"
	"harmonia.org/internal/members"
	"harmonia.org/internal/roles"
	"harmonia.org/internal/session"
)

func testKeyPair(t *testing.T) (string, string) {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return string(privPEM), string(pubPEM)
}

func testSigner(t *testing.T, now func() time.Time) *Signer {
	t.Helper()
	privPEM, pubPEM := testKeyPair(t)
	s, err := NewSigner(privPEM, pubPEM, "harmonia", 3*time.Minute, 10*time.Minute, 2*time.Minute,
		WithClock(now), WithCookieSecure(false))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

type stubDirectory struct {
	direct     []roles.Role
	workgroups []int
	inherited  map[int][]roles.Role
}

func (d *stubDirectory) MemberRoles(context.Context, *session.Session, int) ([]roles.Role, error) {
	return d.direct, nil
}

func (d *stubDirectory) MemberWorkgroups(context.Context, *session.Session, int) ([]int, error) {
	return d.workgroups, nil
}

func (d *stubDirectory) WorkgroupRoles(_ context.Context, _ *session.Session, wg int) ([]roles.Role, error) {
	return d.inherited[wg], nil
}

type stubMembers struct {
	byEmail map[string]members.ExtendedMember
}

func (m *stubMembers) FindExtendedByEmail(_ context.Context, _ *session.Session, email string) (members.ExtendedMember, error) {
	member, ok := m.byEmail[email]
	if !ok {
		return members.ExtendedMember{}, members.ErrNotFound
	}
	return member, nil
}

func (m *stubMembers) FindByActivation(_ context.Context, _ *session.Session, activation string) (members.Member, error) {
	for _, member := range m.byEmail {
		if member.ActivationString == activation && member.ActivationString != "" {
			return member.Member, nil
		}
	}
	return members.Member{}, members.ErrNotFound
}

func (m *stubMembers) Activate(_ context.Context, _ *session.Session, memberID int, secretCipher, nonce []byte) error {
	for email, member := range m.byEmail {
		if member.ID == memberID {
			member.Active = true
			member.OTPSecretCipher = secretCipher
			member.OTPNonce = nonce
			member.ActivationString = ""
			m.byEmail[email] = member
			return nil
		}
	}
	return members.ErrNotFound
}

func TestComposeBaselineIsPublicAndMember(t *testing.T) {
	composer := NewComposer(&stubDirectory{})
	comp, err := composer.Compose(context.Background(), nil, 7)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	want := []roles.Role{roles.Public, roles.Member}
	got := comp.Slice()
	if len(got) != len(want) {
		t.Fatalf("composition = %v, want %v", got, want)
	}
	for i, r := range want {
		if got[i] != r {
			t.Fatalf("composition = %v, want %v", got, want)
		}
	}
}

func TestComposeUnionsAndDeduplicates(t *testing.T) {
	composer := NewComposer(&stubDirectory{
		direct:     []roles.Role{roles.Director},
		workgroups: []int{1, 2},
		inherited: map[int][]roles.Role{
			1: {roles.OrchestraCommittee, roles.Director},
			2: {roles.OrchestraCommittee},
		},
	})
	comp, err := composer.Compose(context.Background(), nil, 7)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if comp.Len() != 4 {
		t.Fatalf("composition has %d roles, want 4: %v", comp.Len(), comp.Slice())
	}
	for _, r := range []roles.Role{roles.Public, roles.Member, roles.OrchestraCommittee, roles.Director} {
		if !comp.Has(r) {
			t.Fatalf("composition missing %v", r)
		}
	}
}

func TestSignerRoundTrip(t *testing.T) {
	now := time.Now()
	s := testSigner(t, func() time.Time { return now })

	comp := roles.NewComposition(roles.Public, roles.Member)
	cookie, err := s.AccessCookie("ada@example.org", comp)
	if err != nil {
		t.Fatalf("issue access cookie: %v", err)
	}
	if cookie.Name != CookieAccess || !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode || cookie.Path != "/" {
		t.Fatalf("cookie attributes wrong: %+v", cookie)
	}

	claims, err := s.VerifyAccess(cookie.Value)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.EmailAddress != "ada@example.org" {
		t.Fatalf("email = %q", claims.EmailAddress)
	}
	if !claims.HasRole(roles.Member) {
		t.Fatal("member role missing from claims")
	}
	if _, err := s.VerifyRefresh(cookie.Value); err == nil {
		t.Fatal("access token accepted as refresh token")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	start := time.Now()
	now := start
	s := testSigner(t, func() time.Time { return now })

	cookie, err := s.AccessCookie("ada@example.org", roles.Composition{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	now = start.Add(4 * time.Minute)
	if _, err := s.VerifyAccess(cookie.Value); err == nil {
		t.Fatal("expired token accepted")
	} else if fault.KindOf(err) != fault.KindUnauthorized {
		t.Fatalf("kind = %v, want UNAUTHORIZED", fault.KindOf(err))
	}
}

func TestNearExpiryCrossesHighWaterMark(t *testing.T) {
	start := time.Now()
	now := start
	s := testSigner(t, func() time.Time { return now })

	cookie, err := s.AccessCookie("ada@example.org", roles.Composition{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	near, err := s.NearExpiry(cookie.Value)
	if err != nil || near {
		t.Fatalf("fresh token near expiry: near=%v err=%v", near, err)
	}

	// Access lifetime 3m, high-water mark 2m: the token becomes renewable
	// once less than two minutes remain.
	now = start.Add(61 * time.Second)
	near, err = s.NearExpiry(cookie.Value)
	if err != nil || !near {
		t.Fatalf("token with 119s left not near expiry: near=%v err=%v", near, err)
	}
}

func newTestOTPMember(t *testing.T, cipher *OTPCipher, secret []byte) members.ExtendedMember {
	t.Helper()
	sealed, nonce, err := cipher.EncryptSecret(secret)
	if err != nil {
		t.Fatalf("seal secret: %v", err)
	}
	return members.ExtendedMember{
		Member: members.Member{
			ID:           7,
			FirstName:    "Ada",
			LastName:     "Vermeer",
			EmailAddress: "ada@example.org",
			Active:       true,
		},
		OTPSecretCipher: sealed,
		OTPNonce:        nonce,
	}
}

func newTestService(t *testing.T, s *Signer, directory RoleDirectory, secret []byte, now func() time.Time) (*Service, *stubMembers) {
	t.Helper()
	key := make([]byte, 32)
	cipher, err := NewOTPCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	store := &stubMembers{byEmail: map[string]members.ExtendedMember{}}
	if secret != nil {
		store.byEmail["ada@example.org"] = newTestOTPMember(t, cipher, secret)
	}
	svc := NewService(store, NewComposer(directory), s, cipher)
	svc.now = now
	return svc, store
}

func TestLoginIssuesBothCookies(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := testSigner(t, clock)
	secret := []byte("12345678901234567890")
	svc, _ := newTestService(t, s, &stubDirectory{direct: []roles.Role{roles.Director}}, secret, clock)

	result, err := svc.Login(context.Background(), nil, "ada@example.org", CodeAt(secret, now))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(result.Cookies) != 2 {
		t.Fatalf("login set %d cookies, want 2", len(result.Cookies))
	}
	if result.Cookies[0].Name != CookieAccess || result.Cookies[1].Name != CookieRefresh {
		t.Fatalf("cookie names: %s, %s", result.Cookies[0].Name, result.Cookies[1].Name)
	}
	if !result.CompositeRoles.Has(roles.Director) {
		t.Fatalf("composite roles missing Director: %v", result.CompositeRoles.Slice())
	}
	if result.Member.EmailAddress != "ada@example.org" {
		t.Fatalf("member = %+v", result.Member)
	}
}

func TestLoginFailsClosed(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := testSigner(t, clock)
	secret := []byte("12345678901234567890")
	svc, store := newTestService(t, s, &stubDirectory{}, secret, clock)

	cases := []struct {
		name  string
		email string
		code  string
		prep  func()
	}{
		{name: "unknown member", email: "nobody@example.org", code: CodeAt(secret, now)},
		{name: "wrong code", email: "ada@example.org", code: "000000"},
		{name: "inactive member", email: "ada@example.org", code: CodeAt(secret, now), prep: func() {
			m := store.byEmail["ada@example.org"]
			m.Active = false
			store.byEmail["ada@example.org"] = m
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.prep != nil {
				tc.prep()
			}
			_, err := svc.Login(context.Background(), nil, tc.email, tc.code)
			if fault.KindOf(err) != fault.KindForbidden {
				t.Fatalf("kind = %v, want FORBIDDEN", fault.KindOf(err))
			}
		})
	}
}

func TestRefreshLadder(t *testing.T) {
	start := time.Now()
	now := start
	clock := func() time.Time { return now }
	s := testSigner(t, clock)
	secret := []byte("12345678901234567890")
	directory := &stubDirectory{}
	svc, _ := newTestService(t, s, directory, secret, clock)

	login, err := svc.Login(context.Background(), nil, "ada@example.org", CodeAt(secret, now))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	access, refresh := login.Cookies[0].Value, login.Cookies[1].Value

	// Both tokens fresh: nothing to renew.
	result, err := svc.Refresh(context.Background(), nil, access, refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(result.Cookies) != 0 {
		t.Fatalf("fresh tokens produced %d cookies, want 0", len(result.Cookies))
	}

	// Access below the high-water mark, refresh still comfortable: only the
	// access token is renewed, and it keeps the claims it carried.
	directory.direct = []roles.Role{roles.Director}
	now = start.Add(2 * time.Minute)
	result, err = svc.Refresh(context.Background(), nil, access, refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(result.Cookies) != 1 || result.Cookies[0].Name != CookieAccess {
		t.Fatalf("cookies = %v, want one access cookie", result.Cookies)
	}
	if result.CompositeRoles.Has(roles.Director) {
		t.Fatal("access-only renewal recomputed roles")
	}
	access = result.Cookies[0].Value

	// Refresh token at 60s to expiry with a 120s high-water mark: the whole
	// pair is reissued and the new privilege shows up.
	now = start.Add(9 * time.Minute)
	result, err = svc.Refresh(context.Background(), nil, access, refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(result.Cookies) != 2 {
		t.Fatalf("near-expiry refresh produced %d cookies, want 2", len(result.Cookies))
	}
	if !result.CompositeRoles.Has(roles.Director) {
		t.Fatalf("reissued pair missing Director: %v", result.CompositeRoles.Slice())
	}
	claims, err := s.VerifyAccess(result.Cookies[0].Value)
	if err != nil {
		t.Fatalf("verify reissued access: %v", err)
	}
	if !claims.HasRole(roles.Director) {
		t.Fatal("reissued access token missing Director claim")
	}
}

func TestRefreshRejectsExpiredRefreshToken(t *testing.T) {
	start := time.Now()
	now := start
	clock := func() time.Time { return now }
	s := testSigner(t, clock)
	secret := []byte("12345678901234567890")
	svc, _ := newTestService(t, s, &stubDirectory{}, secret, clock)

	login, err := svc.Login(context.Background(), nil, "ada@example.org", CodeAt(secret, now))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	now = start.Add(11 * time.Minute)
	_, err = svc.Refresh(context.Background(), nil, login.Cookies[0].Value, login.Cookies[1].Value)
	if fault.KindOf(err) != fault.KindUnauthorized {
		t.Fatalf("kind = %v, want UNAUTHORIZED", fault.KindOf(err))
	}
}

func TestLogoutErasesBothCookies(t *testing.T) {
	s := testSigner(t, time.Now)
	svc := NewService(&stubMembers{}, NewComposer(&stubDirectory{}), s, mustCipher(t))
	cookies := svc.Logout()
	if len(cookies) != 2 {
		t.Fatalf("logout set %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if c.Value != "" || c.MaxAge != -1 {
			t.Fatalf("cookie %s not erased: %+v", c.Name, c)
		}
	}
}

func mustCipher(t *testing.T) *OTPCipher {
	t.Helper()
	c, err := NewOTPCipher(make([]byte, 32))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return c
}
