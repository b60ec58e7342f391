package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgecoder/edgeauth/internal/auth/service"
	"github.com/edgecoder/edgeauth/internal/auth/store/drivers/sqlite"
	"github.com/edgecoder/edgeauth/pkg/authsdk"
	"github.com/edgecoder/edgeauth/pkg/cryptox"
)

const testInternalToken = "test-internal-token"

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "edgeauth-http-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testMailer struct {
	mu   sync.Mutex
	Sent []string
}

func (m *testMailer) Send(_ context.Context, _, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, body)
	return nil
}

func (m *testMailer) lastBody(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.Sent)
	return m.Sent[len(m.Sent)-1]
}

var linkTokenPattern = regexp.MustCompile(`token=(\S+)`)

// newTestServer wires a full router over an in-memory store and serves it.
func newTestServer(t *testing.T) (*authsdk.Client, *testMailer, *sqlite.Store) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mailer := &testMailer{}

	sessions := &service.SessionService{Store: st, TTL: time.Hour}
	emailVerify := &service.EmailVerificationService{
		Store: st, Mailer: mailer, BaseURL: "http://localhost", TTL: 24 * time.Hour,
	}

	router := NewRouter("test", st, logger)
	router.InternalToken = testInternalToken
	router.SessionService = sessions
	router.UserService = &service.UserService{Store: st, EmailVerify: emailVerify}
	router.EmailVerifyService = emailVerify
	router.OAuthService = service.NewOAuthService(st, sessions, nil, "http://localhost", "edgecoder://")
	router.NodeService = &service.NodeService{Store: st}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client := authsdk.NewClient(srv.URL)
	client.InternalToken = testInternalToken
	return client, mailer, st
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestServer(t)

	sess, err := client.Signup(ctx, authsdk.SignupRequest{
		Email:       "http-alice@example.com",
		Password:    "Password123!",
		DisplayName: "Alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	require.Equal(t, "http-alice@example.com", sess.User.Email)
	require.False(t, sess.User.EmailVerified)

	me, err := client.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, me.ID)

	require.NoError(t, client.Logout(ctx))

	_, err = client.Me(ctx)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.StatusCode)
}

func TestSignupValidationOverHTTP(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestServer(t)

	_, err := client.Signup(ctx, authsdk.SignupRequest{Email: "x@example.com", Password: "short"})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 400, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeValidation, apiErr.Code)
}

func TestLoginFailureOverHTTP(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestServer(t)

	_, err := client.Signup(ctx, authsdk.SignupRequest{Email: "http-bob@example.com", Password: "Password123!"})
	require.NoError(t, err)

	fresh := authsdk.NewClient(client.BaseURL)
	_, err = fresh.Login(ctx, authsdk.LoginRequest{Email: "http-bob@example.com", Password: "wrong"})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeUnauthenticated, apiErr.Code)
}

func TestEmailVerificationOverHTTP(t *testing.T) {
	ctx := context.Background()
	client, mailer, _ := newTestServer(t)

	sess, err := client.Signup(ctx, authsdk.SignupRequest{Email: "http-carol@example.com", Password: "Password123!"})
	require.NoError(t, err)

	m := linkTokenPattern.FindStringSubmatch(mailer.lastBody(t))
	require.Len(t, m, 2)

	require.NoError(t, client.VerifyEmail(ctx, m[1]))

	me, err := client.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, me.ID)
	require.True(t, me.EmailVerified)

	// The link is one-shot.
	err = client.VerifyEmail(ctx, m[1])
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeChallengeInvalid, apiErr.Code)

	// Resend always reports accepted.
	require.NoError(t, client.ResendVerification(ctx, "ghost@example.com"))
}

func TestNodeTrustOverHTTP(t *testing.T) {
	ctx := context.Background()
	client, mailer, _ := newTestServer(t)

	_, err := client.Signup(ctx, authsdk.SignupRequest{Email: "http-dave@example.com", Password: "Password123!"})
	require.NoError(t, err)

	m := linkTokenPattern.FindStringSubmatch(mailer.lastBody(t))
	require.Len(t, m, 2)
	require.NoError(t, client.VerifyEmail(ctx, m[1]))

	enrolled, err := client.EnrollNode(ctx, authsdk.NodeEnrollRequest{
		NodeID:   "http-agent-1",
		Kind:     "agent",
		DeviceID: "http-dev-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, enrolled.RegistrationToken)
	require.True(t, enrolled.Active)

	verdict, err := client.ValidateNode(ctx, authsdk.NodeValidateRequest{
		NodeID:            "http-agent-1",
		Kind:              "agent",
		RegistrationToken: enrolled.RegistrationToken,
	})
	require.NoError(t, err)
	require.True(t, verdict.Active)

	// A bad token is rejected with the generic credential error.
	_, err = client.ValidateNode(ctx, authsdk.NodeValidateRequest{
		NodeID:            "http-agent-1",
		Kind:              "agent",
		RegistrationToken: "forged",
	})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.StatusCode)

	// Deactivate, then confirm the verdict flips.
	approval, err := client.SetNodeApproval(ctx, "http-agent-1", false)
	require.NoError(t, err)
	require.False(t, approval.Approved)
	require.False(t, approval.Deleted)

	verdict, err = client.ValidateNode(ctx, authsdk.NodeValidateRequest{
		NodeID:            "http-agent-1",
		Kind:              "agent",
		RegistrationToken: enrolled.RegistrationToken,
	})
	require.NoError(t, err)
	require.False(t, verdict.Active)
	require.NotEmpty(t, verdict.BlockedReason)

	nodes, err := client.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes.Nodes, 1)

	require.NoError(t, client.DeleteNode(ctx, "http-agent-1"))

	nodes, err = client.ListNodes(ctx)
	require.NoError(t, err)
	require.Empty(t, nodes.Nodes)
}

func TestInternalEndpointsRequireSharedSecret(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestServer(t)

	bare := authsdk.NewClient(client.BaseURL) // no internal token
	_, err := bare.ValidateNode(ctx, authsdk.NodeValidateRequest{
		NodeID: "x", Kind: "agent", RegistrationToken: "y",
	})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.StatusCode)

	bare.InternalToken = "wrong-token"
	_, err = bare.ValidateNode(ctx, authsdk.NodeValidateRequest{
		NodeID: "x", Kind: "agent", RegistrationToken: "y",
	})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.StatusCode)
}

func TestHealthProbesOverHTTP(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestServer(t)

	require.NoError(t, client.Livez(ctx))
	require.NoError(t, client.Readyz(ctx))
}

func TestBearerTokenAuthenticates(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestServer(t)

	sess, err := client.Signup(ctx, authsdk.SignupRequest{Email: "http-erin@example.com", Password: "Password123!"})
	require.NoError(t, err)

	// A separate client holding only the raw token, the way a native app
	// would after a mobile hand-off.
	native := authsdk.NewClient(client.BaseURL)
	native.SetSessionToken(sess.Token)

	me, err := native.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, me.ID)
}

func TestOAuthRoutesAcceptBothVerbs(t *testing.T) {
	client, _, _ := newTestServer(t)

	// Providers using response_mode=form_post deliver the callback
	// parameters in a form body, so start and callback are registered for
	// both verbs. An unregistered verb would 405 before the handler could
	// reject the unknown provider with a 400.
	cases := []struct {
		method, path, form string
	}{
		{http.MethodGet, "/auth/oauth/nowhere/start", ""},
		{http.MethodPost, "/auth/oauth/nowhere/start", "redirect_uri="},
		{http.MethodGet, "/auth/oauth/nowhere/callback?code=c&state=s", ""},
		{http.MethodPost, "/auth/oauth/nowhere/callback", "code=c&state=s"},
	}

	for _, tc := range cases {
		var body io.Reader
		if tc.form != "" {
			body = strings.NewReader(tc.form)
		}
		req, err := http.NewRequest(tc.method, client.BaseURL+tc.path, body)
		require.NoError(t, err)
		if tc.form != "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}
