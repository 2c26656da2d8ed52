package referral

import (
	"time"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/internal/domain/admission"
	"github.com/bedlink/bedlink/internal/domain/ward"
)

// Referral maps to the referrals table.
type Referral struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	FromHospitalID       uuid.UUID  `db:"from_hospital_id" json:"from_hospital_id"`
	FromWardID           uuid.UUID  `db:"from_ward_id" json:"from_ward_id"`
	ToHospitalID         uuid.UUID  `db:"to_hospital_id" json:"to_hospital_id"`
	Status               Status     `db:"status" json:"status"`
	Reason               *string    `db:"reason" json:"reason,omitempty"`
	RejectionReason      *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ReservationID        *uuid.UUID `db:"reservation_id" json:"reservation_id,omitempty"`
	TargetWardID         *uuid.UUID `db:"target_ward_id" json:"target_ward_id,omitempty"`
	ReservationExpiresAt *time.Time `db:"reservation_expires_at" json:"reservation_expires_at,omitempty"`
	AdmissionID          *uuid.UUID `db:"admission_id" json:"admission_id,omitempty"`
	CreatedBy            string     `db:"created_by" json:"created_by"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// ListFilter selects referrals sent (outgoing) or received (incoming) by
// HospitalID.
type ListFilter struct {
	HospitalID uuid.UUID
	Direction  Direction
	Status     *Status
}

type CreateRequest struct {
	PatientID    uuid.UUID
	FromWardID   uuid.UUID
	ToHospitalID uuid.UUID
	Reason       *string
}

type AcceptRequest struct {
	WardID uuid.UUID
	// ReservationHours of zero means the configured default hold.
	ReservationHours int
}

type CreateResult struct {
	Referral              *Referral `json:"referral"`
	HospitalAvailableBeds int       `json:"hospital_available_beds"`
}

type AcceptResult struct {
	Referral      *Referral `json:"referral"`
	AvailableBeds int       `json:"available_beds"`
	Message       string    `json:"message"`
}

type CompleteResult struct {
	Referral  *Referral            `json:"referral"`
	Admission *admission.Admission `json:"admission"`
	Ward      *ward.Ward           `json:"ward,omitempty"`
	Message   string               `json:"message"`
}

type CancelResult struct {
	Referral       *Referral `json:"referral"`
	ReleaseOutcome string    `json:"release_outcome,omitempty"`
	Message        string    `json:"message"`
}

type createBody struct {
	PatientID    string  `json:"patient_id"`
	FromWardID   string  `json:"from_ward_id"`
	ToHospitalID string  `json:"to_hospital_id"`
	Reason       *string `json:"reason"`
}

type acceptBody struct {
	WardID           string `json:"ward_id"`
	ReservationHours *int   `json:"reservation_hours"`
}

type rejectBody struct {
	RejectionReason *string `json:"rejection_reason"`
}

type completeBody struct {
	WardID string `json:"ward_id"`
}
