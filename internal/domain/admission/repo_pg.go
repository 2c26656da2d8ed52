package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/db"
)

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, full_name, sex, date_of_birth, phone, national_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		p.ID, p.FullName, string(p.Sex), p.DateOfBirth, p.Phone, p.NationalID).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, full_name, sex, date_of_birth, phone, national_id, created_at
		FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.FullName, &p.Sex, &p.DateOfBirth, &p.Phone, &p.NationalID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

// =========== Admission Repository ===========

type admissionRepoPG struct{ pool *pgxpool.Pool }

func NewAdmissionRepoPG(pool *pgxpool.Pool) AdmissionRepository {
	return &admissionRepoPG{pool: pool}
}

func (r *admissionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const admissionCols = `id, patient_id, ward_id, hospital_id, reservation_id, status,
	admitted_at, discharged_at, admitted_by, discharged_by`

func scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(&a.ID, &a.PatientID, &a.WardID, &a.HospitalID, &a.ReservationID, &a.Status,
		&a.AdmittedAt, &a.DischargedAt, &a.AdmittedBy, &a.DischargedBy)
	return &a, err
}

func (r *admissionRepoPG) Create(ctx context.Context, a *Admission) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO admissions (id, patient_id, ward_id, hospital_id, reservation_id, status, admitted_at, admitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.PatientID, a.WardID, a.HospitalID, a.ReservationID, string(a.Status), a.AdmittedAt, a.AdmittedBy)
	if err != nil {
		return fmt.Errorf("insert admission: %w", err)
	}
	return nil
}

func (r *admissionRepoPG) get(ctx context.Context, query string, id uuid.UUID) (*Admission, error) {
	a, err := scanAdmission(r.conn(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrAdmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admission: %w", err)
	}
	return a, nil
}

func (r *admissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return r.get(ctx, `SELECT `+admissionCols+` FROM admissions WHERE id = $1`, id)
}

func (r *admissionRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return r.get(ctx, `SELECT `+admissionCols+` FROM admissions WHERE id = $1 FOR UPDATE`, id)
}

func (r *admissionRepoPG) MarkDischarged(ctx context.Context, id uuid.UUID, by string, at time.Time) (*Admission, error) {
	a, err := scanAdmission(r.conn(ctx).QueryRow(ctx, `
		UPDATE admissions SET status = 'discharged', discharged_at = $2, discharged_by = $3
		WHERE id = $1 AND status = 'admitted'
		RETURNING `+admissionCols, id, at, by))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("discharge admission: %w", err)
	}
	return a, nil
}
