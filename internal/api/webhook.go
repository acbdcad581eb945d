package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saraivavision/booking-api/internal/outbox"
)

// SignatureHeader carries the provider's HMAC signature in the form
// "t=<unix>,v1=<hex>", computed over "<t>.<raw body>".
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBody = 64 * 1024

// DeliveryReconciler applies provider delivery-status callbacks to
// notification jobs. Implemented by the outbox repository.
type DeliveryReconciler interface {
	ReconcileDelivery(ctx context.Context, id uuid.UUID, status outbox.Status, at time.Time) (bool, error)
}

// WebhookHandler receives delivery-status callbacks from the notification
// providers and reconciles them against the outbox.
type WebhookHandler struct {
	reconciler DeliveryReconciler
	secret     []byte
	tolerance  time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewWebhookHandler(reconciler DeliveryReconciler, secret string, tolerance time.Duration, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		secret:     []byte(secret),
		tolerance:  tolerance,
		log:        log,
		now:        time.Now,
	}
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		JobID     string `json:"job_id"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
}

// eventStatus maps provider event types onto job statuses.
var eventStatus = map[string]outbox.Status{
	"email.sent":       outbox.StatusSent,
	"email.delivered":  outbox.StatusDelivered,
	"email.bounced":    outbox.StatusFailed,
	"email.complained": outbox.StatusFailed,
	"sms.sent":         outbox.StatusSent,
	"sms.delivered":    outbox.StatusDelivered,
	"sms.failed":       outbox.StatusFailed,
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "could not read request body")
		return
	}

	// The payload is untrusted until the signature checks out.
	if err := h.verifySignature(r.Header.Get(SignatureHeader), body); err != nil {
		h.log.Warn().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, CodeInvalidSignature, "invalid webhook signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "could not parse JSON body")
		return
	}

	status, ok := eventStatus[event.Type]
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, fmt.Sprintf("unknown event type %q", event.Type))
		return
	}

	jobID, err := uuid.Parse(event.Data.JobID)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "job_id must be a valid UUID")
		return
	}

	applied, err := h.reconciler.ReconcileDelivery(r.Context(), jobID, status, h.now())
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID.String()).Msg("reconcile delivery status")
		writeError(w, http.StatusInternalServerError, CodeInternalError, "could not process event")
		return
	}

	// Unknown and already-terminal jobs are acknowledged without effect so
	// provider retries stay idempotent.
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
}

// verifySignature checks the HMAC-SHA256 signature and timestamp freshness.
func (h *WebhookHandler) verifySignature(header string, body []byte) error {
	if len(h.secret) == 0 {
		return fmt.Errorf("webhook secret not configured")
	}
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var tsPart, sigPart string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "t="):
			tsPart = strings.TrimPrefix(part, "t=")
		case strings.HasPrefix(part, "v1="):
			sigPart = strings.TrimPrefix(part, "v1=")
		}
	}
	if tsPart == "" || sigPart == "" {
		return fmt.Errorf("malformed signature header")
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed signature timestamp")
	}

	age := h.now().Sub(time.Unix(ts, 0))
	if age > h.tolerance || age < -h.tolerance {
		return fmt.Errorf("signature timestamp outside freshness window")
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(tsPart))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(sigPart)
	if err != nil {
		return fmt.Errorf("malformed signature value")
	}

	if !hmac.Equal(expected, provided) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
