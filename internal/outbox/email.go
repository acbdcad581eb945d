package outbox

import (
	"context"
	"fmt"

	"github.com/go-gomail/gomail"

	"github.com/saraivavision/booking-api/internal/booking"
)

// EmailSender delivers notification emails over SMTP.
type EmailSender struct {
	dialer  *gomail.Dialer
	from    string
	siteURL string
}

func NewEmailSender(host string, port int, username, password, from, siteURL string) *EmailSender {
	return &EmailSender{
		dialer:  gomail.NewDialer(host, port, username, password),
		from:    from,
		siteURL: siteURL,
	}
}

func (s *EmailSender) Send(ctx context.Context, job Job, appt *booking.Appointment) error {
	subject, body := s.render(job.EventType, appt)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", appt.PatientEmail)
	m.SetHeader("Subject", subject)
	m.SetHeader("X-Job-ID", job.ID.String())
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *EmailSender) render(eventType string, appt *booking.Appointment) (subject, body string) {
	date := appt.Date.Format("02/01/2006")
	confirmURL := fmt.Sprintf("%s/agendamento/confirmar?token=%s", s.siteURL, appt.Token)
	cancelURL := fmt.Sprintf("%s/agendamento/cancelar?token=%s", s.siteURL, appt.Token)

	switch eventType {
	case booking.EventBookingReminder:
		subject = "Lembrete de Consulta - Saraiva Vision"
		body = fmt.Sprintf(`
<p>Olá, %s!</p>
<p>Lembrete: sua consulta está marcada para <strong>%s às %s</strong>.</p>
<p>Caso não possa comparecer, cancele pelo link abaixo para liberar o horário:</p>
<p><a href="%s">Cancelar consulta</a></p>`,
			appt.PatientName, date, appt.Time, cancelURL)

	case booking.EventCancellationConfirmation:
		subject = "Consulta Cancelada - Saraiva Vision"
		body = fmt.Sprintf(`
<p>Olá, %s.</p>
<p>Sua consulta de <strong>%s às %s</strong> foi cancelada.</p>
<p>Para marcar um novo horário, acesse <a href="%s/agendamento">nossa agenda</a>.</p>`,
			appt.PatientName, date, appt.Time, s.siteURL)

	case booking.EventReschedulingConfirmation:
		subject = "Consulta Remarcada - Saraiva Vision"
		body = fmt.Sprintf(`
<p>Olá, %s!</p>
<p>Sua consulta foi remarcada para <strong>%s às %s</strong>.</p>
<p><a href="%s">Confirmar presença</a></p>`,
			appt.PatientName, date, appt.Time, confirmURL)

	default: // booking.EventBookingConfirmation
		subject = "Confirmação de Consulta - Saraiva Vision"
		body = fmt.Sprintf(`
<p>Olá, %s!</p>
<p>Sua consulta foi agendada com sucesso para <strong>%s às %s</strong>.</p>
<p><a href="%s">Confirmar presença</a> &nbsp;|&nbsp; <a href="%s">Cancelar</a></p>`,
			appt.PatientName, date, appt.Time, confirmURL, cancelURL)
	}

	return subject, body
}
