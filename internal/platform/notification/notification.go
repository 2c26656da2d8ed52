// Package notification delivers best-effort alerts about referral and bed
// events to hospital staff.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Type string

const (
	TypeReferralReceived   Type = "referral_received"
	TypeReferralAccepted   Type = "referral_accepted"
	TypeReferralRejected   Type = "referral_rejected"
	TypeReferralCompleted  Type = "referral_completed"
	TypeReferralCancelled  Type = "referral_cancelled"
	TypeAdmissionCreated   Type = "admission_created"
	TypeDischargeCreated   Type = "discharge_created"
	TypeReservationExpired Type = "reservation_expired"
)

// Notification targets either a single user or the staff of a hospital holding
// one of Roles.
type Notification struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"user_id,omitempty"`
	HospitalID    uuid.UUID `json:"hospital_id,omitempty"`
	Roles         []string  `json:"roles,omitempty"`
	Type          Type      `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Channel is the pub/sub channel or routing key for n.
func (n Notification) Channel() string {
	if n.UserID != "" {
		return "user:" + n.UserID
	}
	return "hospital:" + n.HospitalID.String()
}

func (n Notification) validate() error {
	if n.UserID == "" && n.HospitalID == uuid.Nil {
		return fmt.Errorf("notification %s has no recipient", n.Type)
	}
	return nil
}

func (n *Notification) stamp() {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
}

func (n Notification) payload() ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return b, nil
}

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier is what domain services call. Delivery failures never reach them.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// BestEffort adapts a Sender into a Notifier that logs failures.
type BestEffort struct {
	sender  Sender
	logger  zerolog.Logger
	timeout time.Duration
}

func NewBestEffort(sender Sender, logger zerolog.Logger, timeout time.Duration) *BestEffort {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &BestEffort{sender: sender, logger: logger, timeout: timeout}
}

func (b *BestEffort) Notify(ctx context.Context, n Notification) {
	n.stamp()
	if err := n.validate(); err != nil {
		b.logger.Warn().Err(err).Msg("notification dropped")
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	if err := b.sender.Send(sctx, n); err != nil {
		b.logger.Warn().Err(err).
			Str("type", string(n.Type)).
			Str("channel", n.Channel()).
			Str("reference_id", n.ReferenceID).
			Msg("notification delivery failed")
	}
}

// LogSender writes notifications to the structured log.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info().
		Str("type", string(n.Type)).
		Str("channel", n.Channel()).
		Strs("roles", n.Roles).
		Str("title", n.Title).
		Str("reference_id", n.ReferenceID).
		Msg("notification")
	return nil
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// Recorder captures notifications in memory; tests use it as a Notifier.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	n.stamp()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
