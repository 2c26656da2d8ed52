// Package audit records an append-only trail of every state transition in the
// bed ledger, reservations, admissions and referrals.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ActionReferralCreate   = "referral.create"
	ActionReferralAccept   = "referral.accept"
	ActionReferralReject   = "referral.reject"
	ActionReferralComplete = "referral.complete"
	ActionReferralCancel   = "referral.cancel"

	ActionReservationCreate   = "reservation.create"
	ActionReservationComplete = "reservation.complete"
	ActionReservationRelease  = "reservation.release"
	ActionReservationExpire   = "reservation.expire"

	ActionAdmissionCreate    = "admission.create"
	ActionAdmissionDischarge = "admission.discharge"

	ActionWardCreate         = "ward.create"
	ActionWardCapacityUpdate = "ward.capacity_update"
)

// Entry is one audit record.
type Entry struct {
	ActorID    string      `json:"actor_id"`
	HospitalID uuid.UUID   `json:"hospital_id"`
	Action     string      `json:"action"`
	Table      string      `json:"table"`
	RecordID   string      `json:"record_id"`
	OldData    interface{} `json:"old_data,omitempty"`
	NewData    interface{} `json:"new_data,omitempty"`
	At         time.Time   `json:"at"`
}

// Sink persists entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Recorder is what domain services call. It never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Async runs a Sink off the request path. Failures are logged and dropped.
type Async struct {
	sink    Sink
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(sink Sink, logger zerolog.Logger, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{sink: sink, logger: logger, timeout: timeout}
}

func (a *Async) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.sink.Write(wctx, e); err != nil {
			a.logger.Error().Err(err).
				Str("action", e.Action).
				Str("table", e.Table).
				Str("record_id", e.RecordID).
				Msg("audit write failed")
		}
	}()
}

// Wait blocks until in-flight writes finish. Call it during shutdown.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

// Memory keeps entries in process. Writes are synchronous, which makes it
// useful as a Recorder in tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Write(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_ = m.Write(ctx, e)
}

// Entries returns a copy of everything recorded so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Actions returns the recorded action names in order.
func (m *Memory) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}
