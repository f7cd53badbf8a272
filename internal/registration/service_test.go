package registration_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"cdcam/internal/audit"
	"cdcam/internal/directory"
	"cdcam/internal/platform/metrics"
	"cdcam/internal/registration"
	dErrors "cdcam/pkg/domain-errors"
)

var primaryTenant = directory.Tenant{Name: "us", APIDomain: "us1.gigya.com"}

type stubResolver struct {
	mu       sync.Mutex
	accounts map[string][]directory.Account
	errs     map[string]error
	searches int
}

func (s *stubResolver) SearchAllTenants(_ context.Context, email string) ([]directory.Account, error) {
	s.mu.Lock()
	s.searches++
	s.mu.Unlock()
	if err := s.errs[email]; err != nil {
		return nil, err
	}
	return s.accounts[email], nil
}

func (s *stubResolver) Primary() directory.Tenant { return primaryTenant }

type stubRegistrar struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []directory.LiteAccount
	next  int
}

func (s *stubRegistrar) RegisterLite(_ context.Context, _ directory.Tenant, account directory.LiteAccount) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[account.Email]; err != nil {
		return "", err
	}
	s.calls = append(s.calls, account)
	s.next++
	return fmt.Sprintf("uid-%d", s.next), nil
}

type stubNotifier struct {
	mu     sync.Mutex
	topics []string
}

func (s *stubNotifier) Publish(_ context.Context, topic string, _, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	return nil
}

type fixture struct {
	service   *registration.Service
	resolver  *stubResolver
	registrar *stubRegistrar
	notifier  *stubNotifier
	recorder  *audit.MemoryStore
}

func newFixture(t *testing.T, cfg registration.Config) *fixture {
	t.Helper()
	f := &fixture{
		resolver:  &stubResolver{accounts: map[string][]directory.Account{}, errs: map[string]error{}},
		registrar: &stubRegistrar{errs: map[string]error{}},
		notifier:  &stubNotifier{},
		recorder:  audit.NewMemoryStore(),
	}
	f.service = registration.NewService(
		f.resolver,
		f.registrar,
		f.notifier,
		f.recorder,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		noop.NewTracerProvider().Tracer("test"),
		metrics.New(prometheus.NewRegistry()),
		cfg,
	)
	return f
}

func defaultConfig() registration.Config {
	return registration.Config{RequestLimit: 1000, EmailValidation: true, Concurrency: 4}
}

func users(emails ...string) []registration.User {
	out := make([]registration.User, len(emails))
	for i, e := range emails {
		out[i] = registration.User{Email: e}
	}
	return out
}

func TestRegisterBatchEmpty(t *testing.T) {
	f := newFixture(t, defaultConfig())

	_, err := f.service.RegisterBatch(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	assert.Equal(t, registration.MsgNoUsers, err.Error())
}

func TestRegisterBatchOverLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.RequestLimit = 2
	f := newFixture(t, cfg)

	_, err := f.service.RegisterBatch(context.Background(), users("a@x.com", "b@x.com", "c@x.com"))
	require.Error(t, err)
	assert.Equal(t, "Requested users exceed request limit: 2.", err.Error())
	assert.Zero(t, f.resolver.searches, "no directory call on structural failure")
}

func TestRegisterBatchBlankEmail(t *testing.T) {
	f := newFixture(t, defaultConfig())

	_, err := f.service.RegisterBatch(context.Background(), users("a@x.com", "  ", "c@x.com"))
	require.Error(t, err)
	assert.Equal(t, registration.MsgEmptyEmailList, err.Error())
	assert.Zero(t, f.resolver.searches, "blank email fails the whole batch before any lookup")
}

func TestRegisterBatchNewAccount(t *testing.T) {
	f := newFixture(t, defaultConfig())

	results, err := f.service.RegisterBatch(context.Background(), []registration.User{{
		Email:        "new@example.com",
		FirstName:    "Jane",
		InviterEmail: "inviter@example.com",
		ClientID:     "client-1",
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, registration.StatusCreated, r.Status)
	assert.Equal(t, registration.CodeOK, r.Code)
	assert.Equal(t, registration.MsgOK, r.Message)
	assert.Equal(t, "uid-1", r.UID)
	assert.Equal(t, "us", r.Tenant)

	require.Len(t, f.registrar.calls, 1)
	assert.Equal(t, "Jane", f.registrar.calls[0].FirstName)
	assert.Equal(t, []string{registration.NotificationTopic}, f.notifier.topics)

	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionLiteRegistration, entries[0].Action)
	assert.Equal(t, "new@example.com", entries[0].Email)
}

func TestRegisterBatchExistingAccount(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.resolver.accounts["taken@example.com"] = []directory.Account{
		{UID: "lite-uid", Tenant: "us"},
		{UID: "full-uid", IsRegistered: true, IsActive: true, Tenant: "us"},
	}

	results, err := f.service.RegisterBatch(context.Background(), users("taken@example.com"))
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, registration.StatusExists, r.Status)
	assert.Equal(t, registration.CodeAccountExists, r.Code)
	assert.Equal(t, registration.MsgAccountExists, r.Message)
	assert.Equal(t, "full-uid", r.UID, "the registered account wins over the lite one")
	assert.True(t, r.IsRegistered)
	assert.True(t, r.IsActive)
	assert.Empty(t, f.registrar.calls, "no registration when the email is claimed")
}

func TestRegisterBatchInvalidEmail(t *testing.T) {
	f := newFixture(t, defaultConfig())

	results, err := f.service.RegisterBatch(context.Background(), users("not-an-email", "ok@example.com"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, registration.StatusInvalid, results[0].Status)
	assert.Equal(t, registration.CodeBadRequest, results[0].Code)
	assert.Equal(t, registration.MsgInvalidEmail, results[0].Message)

	assert.Equal(t, registration.StatusCreated, results[1].Status)
}

func TestRegisterBatchValidationDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.EmailValidation = false
	f := newFixture(t, cfg)

	results, err := f.service.RegisterBatch(context.Background(), users("not-an-email"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, registration.StatusCreated, results[0].Status, "format check skipped when disabled")
}

func TestRegisterBatchPerUserIsolation(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.resolver.errs["broken@example.com"] = errors.New("directory down")

	results, err := f.service.RegisterBatch(context.Background(),
		users("first@example.com", "broken@example.com", "third@example.com"))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, registration.StatusCreated, results[0].Status)

	assert.Equal(t, registration.StatusFailed, results[1].Status)
	assert.Equal(t, registration.CodeGenericError, results[1].Code)
	assert.Equal(t, registration.MsgGenericError, results[1].Message)

	assert.Equal(t, registration.StatusCreated, results[2].Status)
}

func TestRegisterBatchPreservesOrder(t *testing.T) {
	f := newFixture(t, defaultConfig())

	var emails []string
	for i := 0; i < 40; i++ {
		emails = append(emails, fmt.Sprintf("user%02d@example.com", i))
	}

	results, err := f.service.RegisterBatch(context.Background(), users(emails...))
	require.NoError(t, err)
	require.Len(t, results, len(emails))
	for i, r := range results {
		assert.Equal(t, emails[i], r.Email)
	}
}

func TestRegisterBatchUpstreamCodePropagated(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.resolver.errs["limited@example.com"] = dErrors.Wrap(
		&directory.APIError{ErrorCode: 403048, Message: "API rate limit exceeded"},
		dErrors.CodeUpstream, "directory request failed")

	results, err := f.service.RegisterBatch(context.Background(), users("limited@example.com"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, registration.StatusFailed, results[0].Status)
	assert.Equal(t, 403048, results[0].Code, "directory error codes surface verbatim")
	assert.Equal(t, "API rate limit exceeded", results[0].Message)
}

func TestRegisterBatchRegistrationFailure(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.registrar.errs["fail@example.com"] = errors.New("init registration rejected")

	results, err := f.service.RegisterBatch(context.Background(), users("fail@example.com"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, registration.StatusFailed, results[0].Status)
	assert.Equal(t, registration.MsgGenericError, results[0].Message)
	assert.Empty(t, f.notifier.topics)
}
