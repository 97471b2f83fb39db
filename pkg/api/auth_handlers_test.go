package api

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/authgate/pkg/auth"
	"github.com/platinummonkey/authgate/pkg/identity"
	"github.com/platinummonkey/authgate/pkg/observability"
	"github.com/platinummonkey/authgate/pkg/provisioning"
	"github.com/platinummonkey/authgate/pkg/session"
	"github.com/platinummonkey/authgate/pkg/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://accounts.example.com"
	testClientID = "authgate-client"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// downstream records provisioning calls
type downstream struct {
	mu     sync.Mutex
	calls  []map[string]string
	auth   []string
	status int
}

func (d *downstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)

	d.mu.Lock()
	d.calls = append(d.calls, body)
	d.auth = append(d.auth, r.Header.Get("Authorization"))
	status := d.status
	d.mu.Unlock()

	if status == 0 {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
}

func (d *downstream) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type testEnv struct {
	server     *Server
	key        *rsa.PrivateKey
	dir        *users.MemoryDirectory
	downstream *downstream
	metrics    *observability.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier := identity.NewOIDCVerifierWithKeySet(testIssuer,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}},
		identity.Config{ClientID: testClientID})

	issuer, err := session.NewIssuer(testSecret)
	require.NoError(t, err)

	ds := &downstream{}
	dsServer := httptest.NewServer(ds)
	t.Cleanup(dsServer.Close)

	notifier, err := provisioning.NewHTTPNotifier(dsServer.URL, time.Second, nil)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	dir := users.NewMemoryDirectory()

	svc := auth.NewService(verifier, dir, issuer, notifier,
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
	)

	return &testEnv{
		server:     NewServer(svc, logger, WithMetrics(metrics), WithCORSOrigins([]string{"http://localhost:3000"})),
		key:        key,
		dir:        dir,
		downstream: ds,
		metrics:    metrics,
	}
}

func (e *testEnv) idToken(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":     testIssuer,
		"aud":     testClientID,
		"sub":     "google-123",
		"email":   "a@x.com",
		"name":    "A",
		"picture": "http://img/a",
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(e.key)
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

// TestRegisterRoutes verifies all routes are registered
func TestRegisterRoutes(t *testing.T) {
	router := mux.NewRouter()
	NewAuthHandlers(nil).RegisterRoutes(router)

	tests := []struct {
		method string
		path   string
	}{
		{"POST", "/auth/login"},
		{"GET", "/auth/users"},
		{"GET", "/auth/users/123"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			match := &mux.RouteMatch{}
			assert.True(t, router.Match(req, match), "Route should match: %s %s", tt.method, tt.path)
		})
	}
}

func TestLogin_NewUserScenario(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/auth/login", LoginRequest{IDToken: env.idToken(t, nil)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, MessageAccountCreated, resp.Message)
	assert.True(t, resp.IsNewUser)
	assert.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.Equal(t, "A", *resp.User.Name)
	assert.Equal(t, "http://img/a", *resp.User.AvatarURL)
	assert.Equal(t, users.RoleStaff, resp.User.Role)
	assert.Nil(t, resp.User.Department)

	// department is serialized as an explicit null
	var raw map[string]interface{}
	decodeBody(t, w, &raw)
	rawUser, ok := raw["user"].(map[string]interface{})
	require.True(t, ok)
	dept, ok := rawUser["department"]
	assert.True(t, ok)
	assert.Nil(t, dept)

	require.Equal(t, 1, env.downstream.count())
	assert.Equal(t, resp.User.ID, env.downstream.calls[0]["employeeId"])
	assert.Equal(t, "Bearer "+resp.Token, env.downstream.auth[0])
}

func TestLogin_ReturningUserScenario(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, http.MethodPost, "/auth/login", LoginRequest{IDToken: env.idToken(t, nil)})
	require.Equal(t, http.StatusOK, first.Code)
	var firstResp LoginResponse
	decodeBody(t, first, &firstResp)

	second := env.do(t, http.MethodPost, "/auth/login", LoginRequest{IDToken: env.idToken(t, nil)})
	require.Equal(t, http.StatusOK, second.Code)
	var secondResp LoginResponse
	decodeBody(t, second, &secondResp)

	assert.False(t, secondResp.IsNewUser)
	assert.Equal(t, MessageLoginSuccessful, secondResp.Message)
	assert.Equal(t, firstResp.User.ID, secondResp.User.ID)
	assert.Equal(t, 1, env.downstream.count())
}

func TestLogin_RoleClaimIgnored(t *testing.T) {
	env := newTestEnv(t)

	token := env.idToken(t, func(c jwt.MapClaims) { c["role"] = "admin" })
	w := env.do(t, http.MethodPost, "/auth/login", LoginRequest{IDToken: token})
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, users.RoleStaff, resp.User.Role)
}

func TestLogin_WithDepartment(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/auth/login", `{"idToken":"`+env.idToken(t, nil)+`","department":"Engineering"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	decodeBody(t, w, &resp)
	require.NotNil(t, resp.User.Department)
	assert.Equal(t, "Engineering", *resp.User.Department)
}

func TestLogin_InvalidTokens(t *testing.T) {
	env := newTestEnv(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	expired := env.idToken(t, func(c jwt.MapClaims) {
		c["iat"] = time.Now().Add(-2 * time.Hour).Unix()
		c["exp"] = time.Now().Add(-time.Hour).Unix()
	})
	wrongAudience := env.idToken(t, func(c jwt.MapClaims) { c["aud"] = "another-app" })
	claims := jwt.MapClaims{
		"iss": testIssuer, "aud": testClientID, "email": "a@x.com",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	}
	badSignature, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(other)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong audience", wrongAudience},
		{"bad signature", badSignature},
		{"garbage", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/auth/login", LoginRequest{IDToken: tt.token})
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]interface{}
			decodeBody(t, w, &resp)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, MessageInvalidToken, resp["message"])
			assert.NotContains(t, resp, "token")
		})
	}

	all, err := env.dir.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, env.downstream.count())
}

func TestLogin_BadBodies(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed json", `{"idToken":`, MessageInvalidRequestBody},
		{"empty body", ``, MessageInvalidRequestBody},
		{"missing token", `{}`, MessageInvalidToken},
		{"empty token", `{"idToken":""}`, MessageInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/auth/login", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]interface{}
			decodeBody(t, w, &resp)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, tt.message, resp["message"])
		})
	}
}

func TestLogin_DownstreamFailureStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.downstream.status = http.StatusForbidden

	w := env.do(t, http.MethodPost, "/auth/login", LoginRequest{IDToken: env.idToken(t, nil)})
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.IsNewUser)

	get := env.do(t, http.MethodGet, "/auth/users/"+resp.User.ID, nil)
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ProvisioningTotal.WithLabelValues("failure")))
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)

	login := env.do(t, http.MethodPost, "/auth/login", LoginRequest{IDToken: env.idToken(t, nil)})
	require.Equal(t, http.StatusOK, login.Code)
	var loginResp LoginResponse
	decodeBody(t, login, &loginResp)

	w := env.do(t, http.MethodGet, "/auth/users/"+loginResp.User.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp UserResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, loginResp.User.ID, resp.User.ID)
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.NotNil(t, resp.User.CreatedAt)
}

func TestGetUser_UnknownScenario(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/auth/users/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, MessageUserNotFound, resp["message"])
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/auth/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var empty UsersResponse
	decodeBody(t, w, &empty)
	assert.True(t, empty.Success)
	assert.NotNil(t, empty.Users)
	assert.Equal(t, 0, empty.Count)

	for _, email := range []string{"a@x.com", "b@x.com"} {
		email := email
		tok := env.idToken(t, func(c jwt.MapClaims) { c["email"] = email })
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/auth/login", LoginRequest{IDToken: tok}).Code)
	}

	w = env.do(t, http.MethodGet, "/auth/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp UsersResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Users, 2)
}

func TestLogin_CORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// failingService returns internal errors or panics
type failingService struct {
	panic bool
}

func (s failingService) Login(context.Context, auth.LoginRequest) (*auth.LoginResult, error) {
	if s.panic {
		panic("unexpected")
	}
	return nil, errors.Join(auth.ErrInternal, errors.New("db: connection refused"))
}

func (s failingService) GetUser(context.Context, string) (*users.User, error) {
	return nil, errors.Join(auth.ErrInternal, errors.New("db: connection refused"))
}

func (s failingService) ListUsers(context.Context) ([]*users.User, error) {
	return nil, errors.Join(auth.ErrInternal, errors.New("db: connection refused"))
}

func TestInternalErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	for _, panics := range []bool{false, true} {
		server := NewServer(failingService{panic: panics}, logger)

		requests := []*http.Request{
			httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"idToken":"x"}`)),
			httptest.NewRequest(http.MethodGet, "/auth/users/abc", nil),
			httptest.NewRequest(http.MethodGet, "/auth/users", nil),
		}
		for _, req := range requests {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, "Internal server error", resp["message"])
			assert.NotContains(t, w.Body.String(), "connection refused")
		}
	}
}

func TestHTTPMetricsRecorded(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/auth/users/unknown", nil)
	assert.Equal(t, float64(1), testutil.ToFloat64(
		env.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/auth/users/{id}", "404")))
}
