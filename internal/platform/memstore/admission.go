package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/internal/domain/admission"
	"github.com/bedlink/bedlink/internal/platform/apperr"
)

type patientRepo struct{ s *Store }

func (r patientRepo) Create(ctx context.Context, p *admission.Patient) error {
	defer r.s.lock(ctx)()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = r.s.now().UTC()
	r.s.state.patients[p.ID] = *p
	return nil
}

func (r patientRepo) GetByID(ctx context.Context, id uuid.UUID) (*admission.Patient, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.state.patients[id]
	if !ok {
		return nil, apperr.ErrPatientNotFound
	}
	return &p, nil
}

type admissionRepo struct{ s *Store }

func (r admissionRepo) Create(ctx context.Context, a *admission.Admission) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.state.patients[a.PatientID]; !ok {
		return apperr.ErrPatientNotFound
	}
	if _, ok := r.s.state.wards[a.WardID]; !ok {
		return apperr.ErrWardNotFound
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.s.state.admissions[a.ID] = *a
	return nil
}

func (r admissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*admission.Admission, error) {
	defer r.s.lock(ctx)()
	a, ok := r.s.state.admissions[id]
	if !ok {
		return nil, apperr.ErrAdmissionNotFound
	}
	return &a, nil
}

// GetForUpdate is GetByID: the store mutex already serializes units of work.
func (r admissionRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*admission.Admission, error) {
	return r.GetByID(ctx, id)
}

func (r admissionRepo) MarkDischarged(ctx context.Context, id uuid.UUID, by string, at time.Time) (*admission.Admission, error) {
	defer r.s.lock(ctx)()
	a, ok := r.s.state.admissions[id]
	if !ok || a.Status != admission.StatusAdmitted {
		return nil, nil
	}
	a.Status = admission.StatusDischarged
	a.DischargedAt = &at
	a.DischargedBy = &by
	r.s.state.admissions[id] = a
	return &a, nil
}
