package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/saraivavision/booking-api/internal/booking"
)

// MessagingSender delivers SMS notifications through the messaging provider's
// HTTP API (Zenvia-style payload).
type MessagingSender struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

func NewMessagingSender(apiURL, apiKey, from string) *MessagingSender {
	return &MessagingSender{
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type messagingRequest struct {
	From     string             `json:"from"`
	To       string             `json:"to"`
	Contents []messagingContent `json:"contents"`
}

type messagingContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *MessagingSender) Send(ctx context.Context, job Job, appt *booking.Appointment) error {
	payload := messagingRequest{
		From: s.from,
		To:   appt.PatientPhone,
		Contents: []messagingContent{
			{Type: "text", Text: s.render(job.EventType, appt)},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-TOKEN", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("call messaging provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("messaging provider returned %d: %s", resp.StatusCode, snippet)
	}

	return nil
}

func (s *MessagingSender) render(eventType string, appt *booking.Appointment) string {
	date := appt.Date.Format("02/01/2006")

	switch eventType {
	case booking.EventBookingReminder:
		return fmt.Sprintf("Saraiva Vision: lembrete de consulta %s as %s. Duvidas? Ligue (33) 99860-1427.",
			date, appt.Time)
	case booking.EventCancellationConfirmation:
		return fmt.Sprintf("Saraiva Vision: sua consulta de %s as %s foi cancelada.",
			date, appt.Time)
	case booking.EventReschedulingConfirmation:
		return fmt.Sprintf("Saraiva Vision: consulta remarcada para %s as %s.",
			date, appt.Time)
	default:
		return fmt.Sprintf("Saraiva Vision: consulta agendada para %s as %s. Confirme pelo link enviado por email.",
			date, appt.Time)
	}
}
