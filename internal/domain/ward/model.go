package ward

import (
	"time"

	"github.com/google/uuid"
)

// Hospital maps to the hospitals table.
type Hospital struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Region    *string   `db:"region" json:"region,omitempty"`
	District  *string   `db:"district" json:"district,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Ward maps to the wards table. AvailableBeds counts beds that are neither
// occupied nor held by an active reservation.
type Ward struct {
	ID            uuid.UUID `db:"id" json:"id"`
	HospitalID    uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Name          string    `db:"name" json:"name"`
	Type          string    `db:"type" json:"type"`
	TotalBeds     int       `db:"total_beds" json:"total_beds"`
	AvailableBeds int       `db:"available_beds" json:"available_beds"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// InUse is the number of beds drawn from the pool, occupied or reserved.
func (w *Ward) InUse() int {
	return w.TotalBeds - w.AvailableBeds
}

// Availability is the read model for GET /wards/:id/availability.
type Availability struct {
	*Ward
	ReservedBeds int `json:"reserved_beds"`
	OccupiedBeds int `json:"occupied_beds"`
}

type CreateWardRequest struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	TotalBeds  *int       `json:"total_beds"`
	HospitalID *uuid.UUID `json:"hospital_id,omitempty"`
}

type UpdateCapacityRequest struct {
	TotalBeds *int `json:"total_beds"`
}
