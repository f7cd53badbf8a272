package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cdcam/internal/registration"
	dErrors "cdcam/pkg/domain-errors"
	"cdcam/pkg/platform/httputil"
	"cdcam/pkg/requestcontext"
)

// Service is the batch registration pipeline.
type Service interface {
	RegisterBatch(ctx context.Context, users []registration.User) ([]registration.Result, error)
}

// Handler exposes the lite-registration endpoints. Three body and response
// shapes are kept alive for existing consumers.
type Handler struct {
	service          Service
	logger           *slog.Logger
	passwordSetupURL string
}

func New(service Service, logger *slog.Logger, passwordSetupURL string) *Handler {
	return &Handler{service: service, logger: logger, passwordSetupURL: passwordSetupURL}
}

// Register mounts the endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/accounts/email-only/users", h.registerV1)
	r.Post("/v2/accounts/lite", h.registerV2)
	r.Post("/v3/accounts/lite", h.registerV3)
}

func (h *Handler) registerV1(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[emailListRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	results, ok := h.runBatch(w, ctx, emailsToUsers(req.Emails))
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toV1(results))
}

func (h *Handler) registerV2(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[emailListRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	results, ok := h.runBatch(w, ctx, emailsToUsers(req.Emails))
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toV2(results))
}

func (h *Handler) registerV3(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[usersRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	results, ok := h.runBatch(w, ctx, req.Users)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toV3(results, req.Users, h.passwordSetupURL))
}

// runBatch invokes the pipeline and translates structural failures into the
// legacy bare-status responses with the Request-Exception header.
func (h *Handler) runBatch(w http.ResponseWriter, ctx context.Context, users []registration.User) ([]registration.Result, bool) {
	results, err := h.service.RegisterBatch(ctx, users)
	if err == nil {
		return results, true
	}

	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) && domainErr.Code == dErrors.CodeBadRequest {
		httputil.WriteExceptionStatus(w, http.StatusBadRequest, domainErr.Message)
		return nil, false
	}

	h.logger.ErrorContext(ctx, "batch registration failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteExceptionStatus(w, http.StatusInternalServerError, registration.MsgGenericError)
	return nil, false
}

func emailsToUsers(emails []string) []registration.User {
	users := make([]registration.User, len(emails))
	for i, email := range emails {
		users[i] = registration.User{Email: email}
	}
	return users
}
