package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cdcam/internal/audit"
	"cdcam/internal/directory"
	"cdcam/internal/lifecycle"
	"cdcam/internal/platform/metrics"
	"cdcam/pkg/requestcontext"
)

// SignatureHeader carries the JWS the directory signs each delivery with.
const SignatureHeader = "x-gigya-sig-jwt"

// maxBodySize caps webhook request bodies.
const maxBodySize = 1 << 20

// KeyProvider supplies the directory's verification key.
type KeyProvider interface {
	Get(ctx context.Context, tenant directory.Tenant) (directory.PublicKey, error)
	Invalidate(ctx context.Context, tenant directory.Tenant)
}

// Dispatcher queues events for asynchronous processing.
type Dispatcher interface {
	Enqueue(event lifecycle.Event) bool
}

// Handler receives webhook deliveries. The endpoint always acknowledges with
// 200: the directory retries aggressively on anything else, and a forged or
// broken delivery should be dropped, not redelivered.
type Handler struct {
	keys       KeyProvider
	dispatcher Dispatcher
	recorder   audit.Recorder
	tenant     directory.Tenant
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewHandler(keys KeyProvider, dispatcher Dispatcher, recorder audit.Recorder, tenant directory.Tenant, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{keys: keys, dispatcher: dispatcher, recorder: recorder, tenant: tenant, logger: logger, metrics: m}
}

// Register mounts the webhook endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/cdc-events", h.receive)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.WarnContext(ctx, "webhook body read failed", "error", err, "request_id", requestID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if !h.verify(ctx, r.Header.Get(SignatureHeader)) {
		h.metrics.WebhookRejectedTotal.Inc()
		h.logger.WarnContext(ctx, "webhook signature rejected", "request_id", requestID)

		entry := audit.NewEntry(audit.ActionWebhookRejected)
		entry.Tenant = h.tenant.Name
		entry.RequestID = requestID
		if err := h.recorder.Record(ctx, entry); err != nil {
			h.logger.WarnContext(ctx, "audit record failed", "error", err)
		}

		w.WriteHeader(http.StatusOK)
		return
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.logger.WarnContext(ctx, "webhook body unparseable", "error", err, "request_id", requestID)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, event := range envelope.Events {
		h.metrics.WebhookEventsTotal.WithLabelValues(event.Type).Inc()
		queued := h.dispatcher.Enqueue(lifecycle.Event{
			Type:      event.Type,
			UID:       event.Data.UID,
			NewUID:    event.Data.NewUID,
			RequestID: requestID,
		})
		if !queued {
			h.logger.ErrorContext(ctx, "lifecycle queue full, event dropped",
				"type", event.Type,
				"event_id", event.ID,
				"request_id", requestID,
			)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// verify checks the delivery signature, refreshing the cached key once in
// case the directory rotated it.
func (h *Handler) verify(ctx context.Context, sigJWT string) bool {
	if sigJWT == "" {
		return false
	}

	key, err := h.keys.Get(ctx, h.tenant)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification key unavailable", "error", err)
		return false
	}
	if VerifySignature(sigJWT, key) {
		return true
	}

	h.keys.Invalidate(ctx, h.tenant)
	key, err = h.keys.Get(ctx, h.tenant)
	if err != nil {
		return false
	}
	return VerifySignature(sigJWT, key)
}
