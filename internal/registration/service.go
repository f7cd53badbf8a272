package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"cdcam/internal/audit"
	"cdcam/internal/directory"
	"cdcam/internal/directory/resolver"
	"cdcam/internal/platform/metrics"
	dErrors "cdcam/pkg/domain-errors"
	"cdcam/pkg/requestcontext"
)

// NotificationTopic receives a record for every lite account created.
const NotificationTopic = "cdcam.accounts.lite-registered"

// emailPattern is deliberately loose. It rejects obvious garbage without
// trying to implement the address grammar.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Resolver performs cross-tenant lookups.
type Resolver interface {
	SearchAllTenants(ctx context.Context, email string) ([]directory.Account, error)
	Primary() directory.Tenant
}

// Registrar creates lite accounts.
type Registrar interface {
	RegisterLite(ctx context.Context, tenant directory.Tenant, account directory.LiteAccount) (string, error)
}

// Notifier publishes registration notifications.
type Notifier interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Config tunes the batch pipeline.
type Config struct {
	// RequestLimit caps the batch size.
	RequestLimit int
	// EmailValidation enables per-item email format checks.
	EmailValidation bool
	// Concurrency bounds parallel directory calls per batch. Values below 1
	// mean sequential processing.
	Concurrency int
}

// Service runs the batch lite-registration pipeline.
type Service struct {
	resolver  Resolver
	registrar Registrar
	notifier  Notifier
	recorder  audit.Recorder
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	cfg       Config
}

func NewService(
	res Resolver,
	registrar Registrar,
	notifier Notifier,
	recorder audit.Recorder,
	logger *slog.Logger,
	tracer trace.Tracer,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{
		resolver:  res,
		registrar: registrar,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger,
		tracer:    tracer,
		metrics:   m,
		cfg:       cfg,
	}
}

// RegisterBatch processes the requested users and returns one result per
// input, in input order. A returned error means the batch was structurally
// invalid and nothing was processed; per-user failures are reported in the
// results instead.
func (s *Service) RegisterBatch(ctx context.Context, users []User) ([]Result, error) {
	ctx, span := s.tracer.Start(ctx, "registration.RegisterBatch",
		trace.WithAttributes(attribute.Int("registration.batch_size", len(users))))
	defer span.End()

	if err := s.checkBatch(users); err != nil {
		return nil, err
	}

	out := make([]Result, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, user := range users {
		g.Go(func() error {
			out[i] = s.processUser(gctx, user)
			return nil
		})
	}
	// Workers never return errors; failures are isolated per user.
	_ = g.Wait()

	for _, r := range out {
		s.metrics.LiteRegistrationTotal.WithLabelValues(string(r.Status)).Inc()
	}
	return out, nil
}

// checkBatch validates batch-level preconditions before any directory call.
func (s *Service) checkBatch(users []User) error {
	if len(users) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, MsgNoUsers)
	}
	if len(users) > s.cfg.RequestLimit {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf(MsgRequestLimit, s.cfg.RequestLimit))
	}
	for _, u := range users {
		if strings.TrimSpace(u.Email) == "" {
			return dErrors.New(dErrors.CodeBadRequest, MsgEmptyEmailList)
		}
	}
	return nil
}

func (s *Service) processUser(ctx context.Context, user User) Result {
	user.Email = strings.TrimSpace(user.Email)

	if s.cfg.EmailValidation && !emailPattern.MatchString(user.Email) {
		return Result{
			Email:   user.Email,
			Status:  StatusInvalid,
			Code:    CodeBadRequest,
			Message: MsgInvalidEmail,
		}
	}

	accounts, err := s.resolver.SearchAllTenants(ctx, user.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "account search failed",
			"email_domain", emailDomain(user.Email),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return failedResult(user.Email, err)
	}

	if account, found := resolver.PickAccount(accounts); found {
		return Result{
			Email:        user.Email,
			Status:       StatusExists,
			UID:          account.UID,
			IsRegistered: account.IsRegistered,
			IsActive:     account.IsActive,
			Tenant:       account.Tenant,
			Code:         CodeAccountExists,
			Message:      MsgAccountExists,
		}
	}

	primary := s.resolver.Primary()
	uid, err := s.registrar.RegisterLite(ctx, primary, directory.LiteAccount{
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		InviterEmail: user.InviterEmail,
		Location:     user.Location,
		ClientID:     user.ClientID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "lite registration failed",
			"email_domain", emailDomain(user.Email),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return failedResult(user.Email, err)
	}

	s.afterCreate(ctx, user, uid, primary.Name)

	return Result{
		Email:   user.Email,
		Status:  StatusCreated,
		UID:     uid,
		Tenant:  primary.Name,
		Code:    CodeOK,
		Message: MsgOK,
	}
}

// afterCreate records the audit entry and publishes the notification. Both
// are best effort; a new account is never rolled back over bookkeeping.
func (s *Service) afterCreate(ctx context.Context, user User, uid, tenant string) {
	entry := audit.NewEntry(audit.ActionLiteRegistration)
	entry.Email = user.Email
	entry.UID = uid
	entry.Tenant = tenant
	entry.RequestID = requestcontext.RequestID(ctx)
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", "error", err)
	}

	payload, err := json.Marshal(map[string]string{
		"uid":      uid,
		"email":    user.Email,
		"tenant":   tenant,
		"clientId": user.ClientID,
	})
	if err != nil {
		return
	}
	if err := s.notifier.Publish(ctx, NotificationTopic, []byte(uid), payload); err != nil {
		s.logger.WarnContext(ctx, "registration notification failed", "error", err)
	}
}

// failedResult propagates the directory's own code and message when the
// failure came from the directory, so callers can diagnose it. Anything else
// collapses to the fixed generic error.
func failedResult(email string, err error) Result {
	result := Result{
		Email:   email,
		Status:  StatusFailed,
		Code:    CodeGenericError,
		Message: MsgGenericError,
	}
	var apiErr *directory.APIError
	if errors.As(err, &apiErr) {
		result.Code = apiErr.ErrorCode
		if apiErr.Message != "" {
			result.Message = apiErr.Message
		}
	}
	return result
}

// emailDomain keeps the local part out of logs.
func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
