package httpapi

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"harmonia.org/internal/authn"
	"harmonia.org/internal/config"
	"harmonia.org/internal/store/pg"
)

type testEnv struct {
	api    *API
	server http.Handler
	mock   sqlmock.Sqlmock
	cipher *authn.OTPCipher
	secret []byte
}

func testConfig() *config.Config {
	return &config.Config{
		Listen: ":0",
		Auth: config.AuthConfig{
			AccessTTLSeconds:     180,
			RefreshTTLSeconds:    600,
			HighWaterMarkSeconds: 120,
			CookieSecure:         false,
		},
		Policy:    config.PolicyConfig{CacheCapacity: 128},
		Search:    config.SearchConfig{PageSize: 10},
		RateLimit: config.RateLimitConfig{Burst: 100, PerSecond: 100},
	}
}

func pemKeyPair(t *testing.T) (string, string) {
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
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
		string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := pg.NewWithDB(db)

	privPEM, pubPEM := pemKeyPair(t)
	signer, err := authn.NewSigner(privPEM, pubPEM, "harmonia",
		cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL(), cfg.Auth.HighWaterMark(),
		authn.WithCookieSecure(false))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	cipher, err := authn.NewOTPCipher(make([]byte, 32))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	svc := authn.NewService(store, authn.NewComposer(store), signer, cipher)

	api, err := New(cfg, store, store.SessionManager(), svc, "test")
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	return &testEnv{
		api:    api,
		server: api.Handler(),
		mock:   mock,
		cipher: cipher,
		secret: []byte("12345678901234567890"),
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return body
}

// expectLoginQueries registers the statements a successful login issues:
// the member lookup plus the three composition lookups, all in one
// transaction.
func (e *testEnv) expectLoginQueries(t *testing.T, directRole int) {
	t.Helper()
	sealed, nonce, err := e.cipher.EncryptSecret(e.secret)
	if err != nil {
		t.Fatalf("seal secret: %v", err)
	}
	e.mock.ExpectBegin()
	e.mock.ExpectQuery(`select .* from members where lower\(email_address\)`).
		WithArgs("ada@example.org").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "first_name", "last_name", "email_address", "phone_number",
			"description", "active", "allow_privacy_info_sharing", "created_at",
			"activation_string", "activation_time", "otp_secret_cipher", "otp_nonce",
		}).AddRow(7, "Ada", "Vermeer", "ada@example.org", "", "", true, false,
			time.Now(), nil, nil, sealed, nonce))
	rolesRows := sqlmock.NewRows([]string{"system_role"})
	if directRole >= 0 {
		rolesRows.AddRow(int64(directRole))
	}
	e.mock.ExpectQuery(`select system_role from member_role_associations`).
		WithArgs(7).
		WillReturnRows(rolesRows)
	e.mock.ExpectQuery(`select workgroup_id from workgroup_member_relationships`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"workgroup_id"}))
	e.mock.ExpectCommit()
}

func (e *testEnv) login(t *testing.T, directRole int) []*http.Cookie {
	t.Helper()
	e.expectLoginQueries(t, directRole)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, map[string]string{
		"email_address": "ada@example.org",
		"one_time_code": authn.CodeAt(e.secret, time.Now()),
	}))
	rr := e.do(t, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rr.Code, rr.Body.String())
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("login set %d cookies, want 2", len(cookies))
	}
	return cookies
}

func TestHealthzIsPublic(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body["service"] != "harmonia-api" {
		t.Fatalf("body = %v", body)
	}
}

func TestGatedRouteRejectsAnonymous(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, httptest.NewRequest(http.MethodGet, "/api/workgroups", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body["kind"] != "UNAUTHORIZED" {
		t.Fatalf("kind = %v", body["kind"])
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatal("error envelope missing request_id")
	}
	// A denied request never touched the pool.
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUndeclaredRouteFailsClosed(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, httptest.NewRequest(http.MethodGet, "/api/internal/debug", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestLoginAndRoleGatedAccess(t *testing.T) {
	e := newTestEnv(t)
	// roles.Director has discriminant 3.
	cookies := e.login(t, 3)

	// The freshly issued access token admits a management route.
	e.mock.ExpectBegin()
	e.mock.ExpectQuery(`insert into workgroups`).
		WithArgs("strings").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow(1, "strings", time.Now()))
	e.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPost, "/api/workgroups", jsonBody(t, map[string]string{"name": "strings"}))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := e.do(t, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/api/workgroups/1" {
		t.Fatalf("Location = %q", loc)
	}
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsufficientRoleIsForbidden(t *testing.T) {
	e := newTestEnv(t)
	// Plain member: no direct roles.
	cookies := e.login(t, -1)

	req := httptest.NewRequest(http.MethodPost, "/api/workgroups", jsonBody(t, map[string]string{"name": "strings"}))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := e.do(t, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body["kind"] != "FORBIDDEN" {
		t.Fatalf("kind = %v", body["kind"])
	}
	// Gate denial happens before the session middleware: no Begin beyond
	// the login transaction.
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLoginWithWrongCodeRollsBack(t *testing.T) {
	e := newTestEnv(t)
	sealed, nonce, err := e.cipher.EncryptSecret(e.secret)
	if err != nil {
		t.Fatalf("seal secret: %v", err)
	}
	e.mock.ExpectBegin()
	e.mock.ExpectQuery(`select .* from members where lower\(email_address\)`).
		WithArgs("ada@example.org").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "first_name", "last_name", "email_address", "phone_number",
			"description", "active", "allow_privacy_info_sharing", "created_at",
			"activation_string", "activation_time", "otp_secret_cipher", "otp_nonce",
		}).AddRow(7, "Ada", "Vermeer", "ada@example.org", "", "", true, false,
			time.Now(), nil, nil, sealed, nonce))
	e.mock.ExpectRollback()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, map[string]string{
		"email_address": "ada@example.org",
		"one_time_code": "000000",
	}))
	rr := e.do(t, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("failed login must not set cookies")
	}
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRefreshRequiresBothCookies(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body["kind"] != "BAD_REQUEST" {
		t.Fatalf("kind = %v", body["kind"])
	}
}

func TestValidationFailureLeavesSessionIdle(t *testing.T) {
	e := newTestEnv(t)
	cookies := e.login(t, 3)

	// Empty workgroup name never reaches SQL: the session stays idle and
	// finalizes without transaction control.
	req := httptest.NewRequest(http.MethodPost, "/api/workgroups", jsonBody(t, map[string]string{"name": "  "}))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := e.do(t, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLogoutExpiresCookies(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("logout set %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if c.Value != "" || c.MaxAge >= 0 {
			t.Fatalf("cookie %s not expired: %+v", c.Name, c)
		}
	}
}
