package account

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openpress/identity/internal/config"
)

func newTestLogger(t *testing.T) *zap.Logger {
	logger, err := zap.NewDevelopment()
	assert.NoError(t, err)
	return logger
}

func newTestConfig() *config.AuthConfig {
	return &config.AuthConfig{
		AccessTokenSecret:       "test-access-secret",
		RefreshTokenSecret:      "test-refresh-secret",
		VerificationTokenSecret: "test-verification-secret",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTL:         7 * 24 * time.Hour,
		VerificationTokenTTL:    time.Hour,
		DeactivationGracePeriod: 30 * 24 * time.Hour,
	}
}

// testClock is a fake clock shared by every component under test so that
// token expiries and restoration deadlines can be driven deterministically.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentEmail struct {
	Email   string
	Kind    EmailKind
	Payload EmailPayload
}

// captureNotifier records notifications and can be told to fail.
type captureNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	fail bool
}

func (n *captureNotifier) Send(email string, kind EmailKind, payload EmailPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fail {
		return errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, sentEmail{Email: email, Kind: kind, Payload: payload})
	return nil
}

func (n *captureNotifier) last() sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testEnv struct {
	config   *config.AuthConfig
	repo     *mockRepository
	clock    *testClock
	notifier *captureNotifier
	tokens   *TokenService
	verifier *VerificationIssuer
	svc      *Service
}

func newTestEnv(t *testing.T) *testEnv {
	cfg := newTestConfig()
	log := newTestLogger(t)
	repo := newMockRepository()
	clock := newTestClock()
	notifier := &captureNotifier{}

	tokens := NewTokenService(cfg, log, repo)
	tokens.now = clock.Now

	verifier := NewVerificationIssuer(cfg, log, repo, notifier)
	verifier.now = clock.Now

	svc := NewService(cfg, log, repo, tokens, verifier, notifier)
	svc.now = clock.Now

	return &testEnv{
		config:   cfg,
		repo:     repo,
		clock:    clock,
		notifier: notifier,
		tokens:   tokens,
		verifier: verifier,
		svc:      svc,
	}
}

// registerActive registers an account and walks it through email verification.
func (e *testEnv) registerActive(t *testing.T, username, email, password string) *Account {
	_, err := e.svc.Register(username, email, password)
	require.NoError(t, err)

	verified, err := e.svc.VerifyEmail(e.notifier.last().Payload.Token)
	require.NoError(t, err)
	require.True(t, verified.IsVerified)

	return verified
}

// deactivated registers, verifies, and deactivates an account.
func (e *testEnv) deactivated(t *testing.T, username, email, password string) *Account {
	account := e.registerActive(t, username, email, password)
	require.NoError(t, e.svc.Deactivate(account.ID))

	current, err := e.repo.FindByID(account.ID)
	require.NoError(t, err)
	return current
}
