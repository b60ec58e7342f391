package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/store/drivers/sqlite"
	"github.com/edgecoder/edgeauth/pkg/cryptox"
	"github.com/edgecoder/edgeauth/pkg/idx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "edgeauth-service-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func createTestUser(t *testing.T, st *sqlite.Store, email string, verified bool) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword("Password123!")
	require.NoError(t, err)

	now := time.Now().UTC()
	user := domain.User{
		ID:            idx.New().String(),
		Email:         NormalizeEmail(email),
		PasswordHash:  hash,
		EmailVerified: verified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), user))
	return user
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// recordingMailer captures outbound mail for assertions.
type recordingMailer struct {
	mu   sync.Mutex
	Sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.Sent)
	return m.Sent[len(m.Sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// extractMailToken pulls the value after "token=" from a mailed link or code
// line. Tokens run to the first whitespace.
func extractMailToken(t *testing.T, body string) string {
	t.Helper()

	idx := strings.Index(body, "token=")
	require.NotEqual(t, -1, idx, "mail body carries no token: %q", body)

	token := body[idx+len("token="):]
	if end := strings.IndexAny(token, " \t\n"); end != -1 {
		token = token[:end]
	}
	require.NotEmpty(t, token)
	return token
}
