package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bedlink/bedlink/internal/domain/reservation"
	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/audit"
	"github.com/bedlink/bedlink/internal/platform/auth"
	"github.com/bedlink/bedlink/internal/platform/db"
	"github.com/bedlink/bedlink/internal/platform/notification"
	"github.com/bedlink/bedlink/internal/platform/telemetry"
)

type Ledger interface {
	Decrement(ctx context.Context, wardID, hospitalID uuid.UUID, by int) (*ward.Ward, error)
	Release(ctx context.Context, wardID, hospitalID uuid.UUID) (*ward.Ward, error)
	GetWard(ctx context.Context, wardID uuid.UUID) (*ward.Ward, error)
}

// Reservations is the part of the reservation manager admissions consume.
type Reservations interface {
	Complete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*reservation.Reservation, error)
}

type Service struct {
	patients     PatientRepository
	admissions   AdmissionRepository
	ledger       Ledger
	reservations Reservations
	tx           db.TxRunner
	audit        audit.Recorder
	notifier     notification.Notifier
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(patients PatientRepository, admissions AdmissionRepository, ledger Ledger, reservations Reservations, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		patients:     patients,
		admissions:   admissions,
		ledger:       ledger,
		reservations: reservations,
		tx:           tx,
		audit:        audit.Nop{},
		notifier:     notification.Nop{},
		logger:       logger.With().Str("component", "admissions").Logger(),
		now:          time.Now,
	}
}

func (s *Service) SetAudit(r audit.Recorder) { s.audit = r }
func (s *Service) SetNotifier(n notification.Notifier) { s.notifier = n }
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func checkPatientRef(ref PatientRef) (*Patient, error) {
	switch {
	case ref.PatientID != nil && ref.Patient != nil:
		return nil, apperr.Validation("provide either patient_id or patient, not both")
	case ref.PatientID != nil:
		return nil, nil
	case ref.Patient != nil:
		return ref.Patient.Validate()
	default:
		return nil, apperr.Validation("patient is required")
	}
}

// resolvePatient loads the referenced patient or inserts the new one.
func (s *Service) resolvePatient(ctx context.Context, ref PatientRef, fresh *Patient) (*Patient, error) {
	if fresh == nil {
		return s.patients.GetByID(ctx, *ref.PatientID)
	}
	if err := s.patients.Create(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Admit puts a patient into a free bed of the ward. The bed is taken from the
// pool, the patient created when new and the admission inserted in one unit
// of work.
func (s *Service) Admit(ctx context.Context, actor auth.Actor, req AdmitRequest) (*Result, error) {
	if req.WardID == uuid.Nil {
		return nil, apperr.Validation("ward_id is required")
	}
	fresh, err := checkPatientRef(req.PatientRef)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "admission.admit")
	var result *Result
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		w, err := s.ledger.Decrement(ctx, req.WardID, actor.HospitalID, 1)
		if err != nil {
			return err
		}
		p, err := s.resolvePatient(ctx, req.PatientRef, fresh)
		if err != nil {
			return err
		}
		a := &Admission{
			ID:         uuid.New(),
			PatientID:  p.ID,
			WardID:     w.ID,
			HospitalID: w.HospitalID,
			Status:     StatusAdmitted,
			AdmittedAt: s.now().UTC(),
			AdmittedBy: actor.UserID,
		}
		if err := s.admissions.Create(ctx, a); err != nil {
			return err
		}
		result = &Result{Admission: a, Patient: p, Ward: w}
		db.AfterCommit(ctx, func() { s.admitted(ctx, actor, a) })
		return nil
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdmitFromReservation turns an active reservation into an admission. The
// bed was already taken from the pool when the reservation was made, so the
// ledger does not change.
func (s *Service) AdmitFromReservation(ctx context.Context, actor auth.Actor, req AdmitFromReservationRequest) (*Result, error) {
	if req.ReservationID == uuid.Nil {
		return nil, apperr.Validation("reservation_id is required")
	}
	fresh, err := checkPatientRef(req.PatientRef)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "admission.admit_from_reservation")
	var result *Result
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		res, err := s.reservations.Complete(ctx, actor, req.ReservationID)
		if err != nil {
			return err
		}
		p, err := s.resolvePatient(ctx, req.PatientRef, fresh)
		if err != nil {
			return err
		}
		resID := res.ID
		a := &Admission{
			ID:            uuid.New(),
			PatientID:     p.ID,
			WardID:        res.WardID,
			HospitalID:    res.HospitalID,
			ReservationID: &resID,
			Status:        StatusAdmitted,
			AdmittedAt:    s.now().UTC(),
			AdmittedBy:    actor.UserID,
		}
		if err := s.admissions.Create(ctx, a); err != nil {
			return err
		}
		w, err := s.ledger.GetWard(ctx, res.WardID)
		if err != nil {
			return err
		}
		result = &Result{Admission: a, Patient: p, Ward: w}
		db.AfterCommit(ctx, func() { s.admitted(ctx, actor, a) })
		return nil
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) admitted(ctx context.Context, actor auth.Actor, a *Admission) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.UserID,
		HospitalID: a.HospitalID,
		Action:     audit.ActionAdmissionCreate,
		Table:      "admissions",
		RecordID:   a.ID.String(),
		NewData:    a,
	})
	s.notifier.Notify(ctx, notification.Notification{
		HospitalID:    a.HospitalID,
		Roles:         []string{auth.RoleAdmin, auth.RoleNurse},
		Type:          notification.TypeAdmissionCreated,
		Title:         "Patient admitted",
		Message:       "A patient was admitted to a ward",
		ReferenceType: "admission",
		ReferenceID:   a.ID.String(),
	})
}

// Discharge ends an admission and returns its bed to the ward.
func (s *Service) Discharge(ctx context.Context, actor auth.Actor, admissionID uuid.UUID) (*Result, error) {
	if admissionID == uuid.Nil {
		return nil, apperr.Validation("admission_id is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "admission.discharge")
	var result *Result
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.admissions.GetForUpdate(ctx, admissionID)
		if err != nil {
			return err
		}
		// Ownership before status: another hospital gets the mismatch error
		// whatever state the admission is in.
		if a.HospitalID != actor.HospitalID {
			return apperr.ErrAdmissionHospitalMismatch
		}
		if a.Status == StatusDischarged {
			return apperr.ErrAlreadyDischarged
		}

		discharged, err := s.admissions.MarkDischarged(ctx, admissionID, actor.UserID, s.now().UTC())
		if err != nil {
			return err
		}
		if discharged == nil {
			return apperr.ErrAlreadyDischarged
		}
		w, err := s.ledger.Release(ctx, a.WardID, a.HospitalID)
		if err != nil {
			return err
		}
		result = &Result{Admission: discharged, Ward: w}

		db.AfterCommit(ctx, func() {
			s.audit.Record(ctx, audit.Entry{
				ActorID:    actor.UserID,
				HospitalID: a.HospitalID,
				Action:     audit.ActionAdmissionDischarge,
				Table:      "admissions",
				RecordID:   a.ID.String(),
				OldData:    a,
				NewData:    discharged,
			})
			s.notifier.Notify(ctx, notification.Notification{
				HospitalID:    a.HospitalID,
				Roles:         []string{auth.RoleAdmin, auth.RoleNurse},
				Type:          notification.TypeDischargeCreated,
				Title:         "Patient discharged",
				Message:       "A patient was discharged and the bed returned to the ward",
				ReferenceType: "admission",
				ReferenceID:   a.ID.String(),
			})
		})
		return nil
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns an admission with its patient. Admins may read any hospital's
// admissions.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Result, error) {
	a, err := s.admissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.HospitalID != actor.HospitalID && !actor.HasRole(auth.RoleAdmin) {
		return nil, apperr.ErrAdmissionHospitalMismatch
	}
	p, err := s.patients.GetByID(ctx, a.PatientID)
	if err != nil {
		return nil, err
	}
	return &Result{Admission: a, Patient: p}, nil
}

// GetPatient returns a patient by id.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}
