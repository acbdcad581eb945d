package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saraivavision/booking-api/internal/outbox"
)

const webhookSecret = "test-webhook-secret"

var webhookNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

type stubReconciler struct {
	applied    bool
	err        error
	lastJobID  uuid.UUID
	lastStatus outbox.Status
	calls      int
}

func (r *stubReconciler) ReconcileDelivery(ctx context.Context, id uuid.UUID, status outbox.Status, at time.Time) (bool, error) {
	r.calls++
	r.lastJobID = id
	r.lastStatus = status
	return r.applied, r.err
}

func newWebhookHandler(rec *stubReconciler) *WebhookHandler {
	h := NewWebhookHandler(rec, webhookSecret, 300*time.Second, zerolog.Nop())
	h.now = func() time.Time { return webhookNow }
	return h
}

func sign(secret, body string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + body))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func webhookBody(eventType string, jobID uuid.UUID) string {
	return fmt.Sprintf(`{"type":%q,"data":{"job_id":%q,"timestamp":"2025-01-10T12:00:00Z"}}`, eventType, jobID)
}

func postWebhook(h *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/notifications", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAppliesDeliveredEvent(t *testing.T) {
	reconciler := &stubReconciler{applied: true}
	h := newWebhookHandler(reconciler)

	jobID := uuid.New()
	body := webhookBody("email.delivered", jobID)

	rec := postWebhook(h, body, sign(webhookSecret, body, webhookNow))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobID, reconciler.lastJobID)
	assert.Equal(t, outbox.StatusDelivered, reconciler.lastStatus)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, true, env.Data.(map[string]any)["applied"])
}

func TestWebhookEventStatusMapping(t *testing.T) {
	tests := []struct {
		eventType string
		want      outbox.Status
	}{
		{"email.sent", outbox.StatusSent},
		{"email.bounced", outbox.StatusFailed},
		{"email.complained", outbox.StatusFailed},
		{"sms.delivered", outbox.StatusDelivered},
		{"sms.failed", outbox.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			reconciler := &stubReconciler{applied: true}
			h := newWebhookHandler(reconciler)

			body := webhookBody(tt.eventType, uuid.New())
			rec := postWebhook(h, body, sign(webhookSecret, body, webhookNow))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, reconciler.lastStatus)
		})
	}
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	body := webhookBody("email.delivered", uuid.New())

	tests := []struct {
		name      string
		signature string
	}{
		{"missing header", ""},
		{"wrong secret", sign("other-secret", body, webhookNow)},
		{"malformed header", "v1=deadbeef"},
		{"garbage hex", fmt.Sprintf("t=%d,v1=zzzz", webhookNow.Unix())},
		{"signed different body", sign(webhookSecret, `{"type":"email.delivered"}`, webhookNow)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reconciler := &stubReconciler{}
			h := newWebhookHandler(reconciler)

			rec := postWebhook(h, body, tt.signature)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, 0, reconciler.calls, "unverified payloads must not be processed")

			var env Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, CodeInvalidSignature, env.Error.Code)
		})
	}
}

func TestWebhookAllowsSpacedSignatureHeader(t *testing.T) {
	reconciler := &stubReconciler{applied: true}
	h := newWebhookHandler(reconciler)

	jobID := uuid.New()
	body := webhookBody("email.delivered", jobID)

	// Some providers pad the header parts with a space after the comma.
	header := strings.Replace(sign(webhookSecret, body, webhookNow), ",", ", ", 1)
	rec := postWebhook(h, body, header)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobID, reconciler.lastJobID)
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	reconciler := &stubReconciler{}
	h := newWebhookHandler(reconciler)

	body := webhookBody("email.delivered", uuid.New())

	// Just inside the window passes, just outside fails, both directions.
	rec := postWebhook(h, body, sign(webhookSecret, body, webhookNow.Add(-299*time.Second)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postWebhook(h, body, sign(webhookSecret, body, webhookNow.Add(-301*time.Second)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postWebhook(h, body, sign(webhookSecret, body, webhookNow.Add(301*time.Second)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRejectsUnknownEventType(t *testing.T) {
	reconciler := &stubReconciler{}
	h := newWebhookHandler(reconciler)

	body := webhookBody("email.opened", uuid.New())
	rec := postWebhook(h, body, sign(webhookSecret, body, webhookNow))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, reconciler.calls)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, CodeValidationError, env.Error.Code)
}

func TestWebhookRejectsBadJobID(t *testing.T) {
	h := newWebhookHandler(&stubReconciler{})

	body := `{"type":"email.delivered","data":{"job_id":"not-a-uuid"}}`
	rec := postWebhook(h, body, sign(webhookSecret, body, webhookNow))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUnknownJobAcknowledged(t *testing.T) {
	// Provider retries for jobs we no longer track must still get a 200,
	// otherwise they retry forever.
	reconciler := &stubReconciler{applied: false}
	h := newWebhookHandler(reconciler)

	body := webhookBody("sms.delivered", uuid.New())
	rec := postWebhook(h, body, sign(webhookSecret, body, webhookNow))

	require.Equal(t, http.StatusOK, rec.Code)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, false, env.Data.(map[string]any)["applied"])
}

func TestWebhookReconcilerFailure(t *testing.T) {
	reconciler := &stubReconciler{err: fmt.Errorf("db down")}
	h := newWebhookHandler(reconciler)

	body := webhookBody("email.delivered", uuid.New())
	rec := postWebhook(h, body, sign(webhookSecret, body, webhookNow))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
