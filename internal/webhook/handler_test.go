package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdcam/internal/audit"
	"cdcam/internal/directory"
	"cdcam/internal/lifecycle"
	"cdcam/internal/platform/metrics"
)

type stubKeys struct {
	keys        []directory.PublicKey
	err         error
	gets        int
	invalidated int
}

func (s *stubKeys) Get(context.Context, directory.Tenant) (directory.PublicKey, error) {
	if s.err != nil {
		return directory.PublicKey{}, s.err
	}
	i := s.gets
	if i >= len(s.keys) {
		i = len(s.keys) - 1
	}
	s.gets++
	return s.keys[i], nil
}

func (s *stubKeys) Invalidate(context.Context, directory.Tenant) { s.invalidated++ }

type stubDispatcher struct {
	events []lifecycle.Event
	full   bool
}

func (s *stubDispatcher) Enqueue(event lifecycle.Event) bool {
	if s.full {
		return false
	}
	s.events = append(s.events, event)
	return true
}

func newWebhookRouter(keys KeyProvider, dispatcher Dispatcher) (chi.Router, *audit.MemoryStore) {
	recorder := audit.NewMemoryStore()
	h := NewHandler(keys, dispatcher, recorder,
		directory.Tenant{Name: "us", APIDomain: "us1.gigya.com"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics.New(prometheus.NewRegistry()),
	)
	r := chi.NewRouter()
	h.Register(r)
	return r, recorder
}

func postWebhook(router chi.Router, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/cdc-events", strings.NewReader(body))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const envelopeBody = `{
	"events": [
		{"type": "accountRegistered", "id": "e1", "data": {"uid": "uid-1"}},
		{"type": "accountMerged", "id": "e2", "data": {"uid": "uid-old", "newUid": "uid-new"}}
	]
}`

func TestReceiveDispatchesEvents(t *testing.T) {
	priv, pub := generateKey(t)
	dispatcher := &stubDispatcher{}
	router, _ := newWebhookRouter(&stubKeys{keys: []directory.PublicKey{pub}}, dispatcher)

	rec := postWebhook(router, envelopeBody, signToken(t, priv, `{"nonce":"n1"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, dispatcher.events, 2)
	assert.Equal(t, "accountRegistered", dispatcher.events[0].Type)
	assert.Equal(t, "uid-1", dispatcher.events[0].UID)
	assert.Equal(t, "uid-new", dispatcher.events[1].NewUID)
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	_, pub := generateKey(t)
	otherPriv, _ := generateKey(t)
	dispatcher := &stubDispatcher{}
	keys := &stubKeys{keys: []directory.PublicKey{pub}}
	router, recorder := newWebhookRouter(keys, dispatcher)

	rec := postWebhook(router, envelopeBody, signToken(t, otherPriv, `{"nonce":"n1"}`))

	assert.Equal(t, http.StatusOK, rec.Code, "forged deliveries are acknowledged, not retried")
	assert.Empty(t, dispatcher.events)
	assert.Equal(t, 1, keys.invalidated, "a failed check refreshes the key once")

	entries := recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionWebhookRejected, entries[0].Action)
}

func TestReceiveMissingSignature(t *testing.T) {
	_, pub := generateKey(t)
	dispatcher := &stubDispatcher{}
	router, _ := newWebhookRouter(&stubKeys{keys: []directory.PublicKey{pub}}, dispatcher)

	rec := postWebhook(router, envelopeBody, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, dispatcher.events)
}

func TestReceiveKeyRotation(t *testing.T) {
	priv, pub := generateKey(t)
	_, stalePub := generateKey(t)
	dispatcher := &stubDispatcher{}
	keys := &stubKeys{keys: []directory.PublicKey{stalePub, pub}}
	router, _ := newWebhookRouter(keys, dispatcher)

	rec := postWebhook(router, envelopeBody, signToken(t, priv, `{"nonce":"n1"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, dispatcher.events, 2, "verification succeeds after the key refresh")
	assert.Equal(t, 1, keys.invalidated)
}

func TestReceiveKeyUnavailable(t *testing.T) {
	dispatcher := &stubDispatcher{}
	router, _ := newWebhookRouter(&stubKeys{err: errors.New("directory down")}, dispatcher)

	rec := postWebhook(router, envelopeBody, "a.b.c")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, dispatcher.events)
}

func TestReceiveMalformedEnvelope(t *testing.T) {
	priv, pub := generateKey(t)
	dispatcher := &stubDispatcher{}
	router, _ := newWebhookRouter(&stubKeys{keys: []directory.PublicKey{pub}}, dispatcher)

	rec := postWebhook(router, `{"events": not-json`, signToken(t, priv, `{"nonce":"n1"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, dispatcher.events)
}

func TestReceiveQueueFullStillAcknowledges(t *testing.T) {
	priv, pub := generateKey(t)
	dispatcher := &stubDispatcher{full: true}
	router, _ := newWebhookRouter(&stubKeys{keys: []directory.PublicKey{pub}}, dispatcher)

	rec := postWebhook(router, envelopeBody, signToken(t, priv, `{"nonce":"n1"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}
