package dashboard

import (
	"time"

	"github.com/google/uuid"
)

// WardStat is the raw per-ward input of the dashboard.
type WardStat struct {
	ID            uuid.UUID
	Name          string
	Type          string
	TotalBeds     int
	AvailableBeds int
	ReservedBeds  int
}

// Counts are the per-hospital activity counters of the dashboard.
type Counts struct {
	AdmissionsToday int
	DischargesToday int
	PendingIncoming int
	PendingOutgoing int
}

// SystemCounts aggregate every hospital.
type SystemCounts struct {
	Hospitals        int
	TotalBeds        int
	AvailableBeds    int
	ReservedBeds     int
	AdmissionsToday  int
	PendingReferrals int
}

type Summary struct {
	TotalBeds     int     `json:"total_beds"`
	AvailableBeds int     `json:"available_beds"`
	ReservedBeds  int     `json:"reserved_beds"`
	OccupiedBeds  int     `json:"occupied_beds"`
	OccupancyRate float64 `json:"occupancy_rate"`
}

type Today struct {
	Admissions int `json:"admissions"`
	Discharges int `json:"discharges"`
	NetChange  int `json:"net_change"`
}

type Referrals struct {
	PendingIncoming int `json:"pending_incoming"`
	PendingOutgoing int `json:"pending_outgoing"`
}

type WardBreakdown struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	TotalBeds     int       `json:"total_beds"`
	AvailableBeds int       `json:"available_beds"`
	ReservedBeds  int       `json:"reserved_beds"`
	OccupiedBeds  int       `json:"occupied_beds"`
	OccupancyRate float64   `json:"occupancy_rate"`
}

// Stats is the body of GET /dashboard/stats.
type Stats struct {
	HospitalID  uuid.UUID       `json:"hospital_id"`
	Summary     Summary         `json:"summary"`
	Today       Today           `json:"today"`
	Referrals   Referrals       `json:"referrals"`
	Wards       []WardBreakdown `json:"wards"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// SystemStats is the body of GET /dashboard/system-stats.
type SystemStats struct {
	Hospitals        int       `json:"hospitals"`
	Beds             Summary   `json:"beds"`
	AdmissionsToday  int       `json:"today_admissions"`
	PendingReferrals int       `json:"pending_referrals"`
	GeneratedAt      time.Time `json:"generated_at"`
}
