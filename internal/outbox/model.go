package outbox

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelMessaging Channel = "messaging"
)

// Channels is the fan-out set: every appointment event produces one job per
// channel.
var Channels = []Channel{ChannelEmail, ChannelMessaging}

type Status string

const (
	StatusPending        Status = "pending"
	StatusSent           Status = "sent"
	StatusDelivered      Status = "delivered"
	StatusFailed         Status = "failed"
	StatusRetryScheduled Status = "retry_scheduled"
)

// Terminal reports whether a job can no longer change. Sent jobs are not
// terminal: the provider may still report delivery or a bounce.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Job is one queued notification delivery. Jobs are never deleted, only
// terminalized, so the table doubles as a delivery audit log.
type Job struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Channel       Channel
	EventType     string
	Status        Status
	RetryCount    int
	LastError     *string
	ScheduledAt   time.Time
	SentAt        *time.Time
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
