package admission

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/apperr"
)

type Status string

const (
	StatusAdmitted   Status = "admitted"
	StatusDischarged Status = "discharged"
)

type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
	SexOther  Sex = "Other"
)

// Patient maps to the patients table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FullName    string     `db:"full_name" json:"full_name"`
	Sex         Sex        `db:"sex" json:"sex"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	NationalID  *string    `db:"national_id" json:"national_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// PatientInput is the patient object accepted by admissions and referrals.
type PatientInput struct {
	FullName    string  `json:"full_name"`
	Sex         string  `json:"sex"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	NationalID  *string `json:"national_id,omitempty"`
}

// Validate checks the input and converts it into a new Patient.
func (in PatientInput) Validate() (*Patient, error) {
	name := strings.TrimSpace(in.FullName)
	if len(name) < 2 {
		return nil, apperr.Validation("patient.full_name must be at least 2 characters")
	}
	sex := Sex(in.Sex)
	switch sex {
	case SexMale, SexFemale, SexOther:
	default:
		return nil, apperr.Validation("patient.sex must be one of M, F, Other")
	}

	p := &Patient{
		FullName:   name,
		Sex:        sex,
		Phone:      nonEmpty(in.Phone),
		NationalID: nonEmpty(in.NationalID),
	}
	if dob := nonEmpty(in.DateOfBirth); dob != nil {
		t, err := time.Parse("2006-01-02", *dob)
		if err != nil {
			return nil, apperr.Validation("patient.date_of_birth must be a date in YYYY-MM-DD format")
		}
		p.DateOfBirth = &t
	}
	return p, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Admission maps to the admissions table. An admitted admission holds one bed
// drawn from its ward's pool.
type Admission struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	WardID        uuid.UUID  `db:"ward_id" json:"ward_id"`
	HospitalID    uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	ReservationID *uuid.UUID `db:"reservation_id" json:"reservation_id,omitempty"`
	Status        Status     `db:"status" json:"status"`
	AdmittedAt    time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt  *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	AdmittedBy    string     `db:"admitted_by" json:"admitted_by"`
	DischargedBy  *string    `db:"discharged_by" json:"discharged_by,omitempty"`
}

// PatientRef names an existing patient or describes a new one. Exactly one
// must be set.
type PatientRef struct {
	PatientID *uuid.UUID
	Patient   *PatientInput
}

type AdmitRequest struct {
	WardID uuid.UUID
	PatientRef
}

type AdmitFromReservationRequest struct {
	ReservationID uuid.UUID
	PatientRef
}

// Result is returned by admission and discharge operations.
type Result struct {
	Admission *Admission `json:"admission"`
	Patient   *Patient   `json:"patient,omitempty"`
	Ward      *ward.Ward `json:"ward,omitempty"`
}

type createRequest struct {
	WardID        string        `json:"ward_id"`
	ReservationID string        `json:"reservation_id"`
	PatientID     string        `json:"patient_id"`
	Patient       *PatientInput `json:"patient"`
}

type completeReservationRequest struct {
	PatientID string        `json:"patient_id"`
	Patient   *PatientInput `json:"patient"`
}

type dischargeRequest struct {
	AdmissionID string `json:"admission_id"`
}
