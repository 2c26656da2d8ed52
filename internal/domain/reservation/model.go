package reservation

import (
	"time"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/internal/domain/ward"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

type Type string

const (
	TypeReferral  Type = "referral"
	TypeEmergency Type = "emergency"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Release reasons. ReasonExpired moves the reservation to StatusExpired, every
// other reason to StatusCancelled.
const (
	ReasonCancelled         = "cancelled"
	ReasonExpired           = "expired"
	ReasonReferralCancelled = "referral_cancelled"
)

// Release outcomes.
const (
	OutcomeReleased        = "released"
	OutcomeAlreadyReleased = "already_released"
)

// Reservation maps to the bed_reservations table. While active it holds one
// bed drawn from its ward's available pool.
type Reservation struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	HospitalID      uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	WardID          uuid.UUID  `db:"ward_id" json:"ward_id"`
	ReferralID      *uuid.UUID `db:"referral_id" json:"referral_id,omitempty"`
	ReservedBy      string     `db:"reserved_by" json:"reserved_by"`
	ReservationType Type       `db:"reservation_type" json:"reservation_type"`
	Priority        Priority   `db:"priority" json:"priority"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	Status          Status     `db:"status" json:"status"`
	ReservedAt      time.Time  `db:"reserved_at" json:"reserved_at"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expires_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt     *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	ReleaseReason   *string    `db:"release_reason" json:"release_reason,omitempty"`
}

// ReserveRequest is the input of Reserve. TTL of zero means the configured
// default.
type ReserveRequest struct {
	WardID     uuid.UUID
	ReferralID *uuid.UUID
	Priority   Priority
	Notes      *string
	TTL        time.Duration
}

// ReleaseResult reports what Release did. Ward is nil when nothing changed.
type ReleaseResult struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	Outcome       string     `json:"outcome"`
	Status        Status     `json:"status"`
	Ward          *ward.Ward `json:"-"`
}

// ListFilter narrows GET /beds/reserved. HospitalID is always the caller's.
type ListFilter struct {
	HospitalID uuid.UUID
	Status     *Status
	WardID     *uuid.UUID
}

type createRequest struct {
	WardID           string  `json:"ward_id"`
	Priority         string  `json:"priority"`
	Notes            *string `json:"notes"`
	ReservationHours *int    `json:"reservation_hours"`
}

type reserveResponse struct {
	Reservation   *Reservation `json:"reservation"`
	AvailableBeds int          `json:"available_beds"`
}
