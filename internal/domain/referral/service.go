package referral

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bedlink/bedlink/internal/domain/admission"
	"github.com/bedlink/bedlink/internal/domain/reservation"
	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/audit"
	"github.com/bedlink/bedlink/internal/platform/auth"
	"github.com/bedlink/bedlink/internal/platform/db"
	"github.com/bedlink/bedlink/internal/platform/notification"
	"github.com/bedlink/bedlink/internal/platform/telemetry"
	"github.com/bedlink/bedlink/pkg/pagination"
)

type Ledger interface {
	GetWard(ctx context.Context, wardID uuid.UUID) (*ward.Ward, error)
	GetHospital(ctx context.Context, id uuid.UUID) (*ward.Hospital, error)
	HospitalAvailableBeds(ctx context.Context, hospitalID uuid.UUID) (int, error)
}

type Reservations interface {
	Reserve(ctx context.Context, actor auth.Actor, req reservation.ReserveRequest) (*reservation.Reservation, *ward.Ward, error)
	Release(ctx context.Context, actor *auth.Actor, id uuid.UUID, reason string) (*reservation.ReleaseResult, error)
}

type Admissions interface {
	AdmitFromReservation(ctx context.Context, actor auth.Actor, req admission.AdmitFromReservationRequest) (*admission.Result, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*admission.Patient, error)
}

// Service drives referrals through the state machine in fsm.go. Every
// transition loads the referral FOR UPDATE, checks the acting party and the
// transition table, runs its side effect and writes the new status in a
// single unit of work.
type Service struct {
	repo         Repository
	ledger       Ledger
	reservations Reservations
	admissions   Admissions
	tx           db.TxRunner
	audit        audit.Recorder
	notifier     notification.Notifier
	metrics      *telemetry.Metrics
	logger       zerolog.Logger
}

func NewService(repo Repository, ledger Ledger, reservations Reservations, admissions Admissions, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		ledger:       ledger,
		reservations: reservations,
		admissions:   admissions,
		tx:           tx,
		audit:        audit.Nop{},
		notifier:     notification.Nop{},
		logger:       logger.With().Str("component", "referrals").Logger(),
	}
}

func (s *Service) SetAudit(r audit.Recorder) { s.audit = r }
func (s *Service) SetNotifier(n notification.Notifier) { s.notifier = n }
func (s *Service) SetMetrics(m *telemetry.Metrics) { s.metrics = m }

var partyMessages = map[Action]string{
	ActionCreate:   "only the sending hospital can create this referral",
	ActionAccept:   "only the receiving hospital can accept this referral",
	ActionReject:   "only the receiving hospital can reject this referral",
	ActionComplete: "only the receiving hospital can complete this referral",
	ActionCancel:   "only the sending hospital can cancel this referral",
}

// authorize checks that actor is the party allowed to perform action on ref.
func authorize(actor auth.Actor, ref *Referral, action Action) error {
	party, ok := PartyFor(action)
	if !ok {
		return apperr.Internal("unknown referral action", nil)
	}
	hospital := ref.FromHospitalID
	if party == PartyReceiver {
		hospital = ref.ToHospitalID
	}
	if actor.HospitalID == uuid.Nil || actor.HospitalID != hospital {
		return apperr.Forbidden(partyMessages[action])
	}
	return nil
}

// transition loads the referral for update, authorizes actor, applies mutate
// and persists the result. mutate runs the side effect of the transition and
// may change the fields of ref.
func (s *Service) transition(ctx context.Context, actor auth.Actor, id uuid.UUID, action Action, mutate func(ctx context.Context, ref *Referral) error) (*Referral, Status, error) {
	ctx, span := telemetry.StartSpan(ctx, "referral."+string(action))
	var (
		ref  *Referral
		from Status
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		ref, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, ref, action); err != nil {
			return err
		}
		t, err := Next(ref.Status, action)
		if err != nil {
			return err
		}

		from = ref.Status
		if err := mutate(ctx, ref); err != nil {
			return err
		}
		ref.Status = t.Next
		ok, err := s.repo.Update(ctx, ref, from)
		if err != nil {
			return err
		}
		if !ok {
			current, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			return apperr.InvalidTransition(string(action), string(current.Status))
		}
		return nil
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, "", err
	}
	s.metrics.Transition(ctx, string(action))
	return ref, from, nil
}

func (s *Service) record(ctx context.Context, actor auth.Actor, action string, ref *Referral, oldData, newData interface{}) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.UserID,
		HospitalID: actor.HospitalID,
		Action:     action,
		Table:      "referrals",
		RecordID:   ref.ID.String(),
		OldData:    oldData,
		NewData:    newData,
	})
}

func (s *Service) notify(ctx context.Context, hospitalID uuid.UUID, typ notification.Type, title, message string, ref *Referral) {
	s.notifier.Notify(ctx, notification.Notification{
		HospitalID:    hospitalID,
		Roles:         []string{auth.RoleAdmin, auth.RoleDoctor},
		Type:          typ,
		Title:         title,
		Message:       message,
		ReferenceType: "referral",
		ReferenceID:   ref.ID.String(),
	})
}

// Create opens a pending referral from the actor's hospital. It is allowed
// only while the sending hospital has no available beds in any ward.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*CreateResult, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if req.FromWardID == uuid.Nil {
		return nil, apperr.Validation("from_ward_id is required")
	}
	if req.ToHospitalID == uuid.Nil {
		return nil, apperr.Validation("to_hospital_id is required")
	}
	if req.Reason != nil {
		reason := strings.TrimSpace(*req.Reason)
		if reason == "" {
			req.Reason = nil
		} else if len(reason) < 3 {
			return nil, apperr.Validation("reason must be at least 3 characters")
		} else {
			req.Reason = &reason
		}
	}
	if actor.HospitalID == uuid.Nil {
		return nil, apperr.Forbidden("user is not linked to a hospital")
	}
	if req.ToHospitalID == actor.HospitalID {
		return nil, apperr.Validation("to_hospital_id must be a different hospital")
	}

	available, err := s.ledger.HospitalAvailableBeds(ctx, actor.HospitalID)
	if err != nil {
		return nil, err
	}
	if available > 0 {
		return nil, apperr.ErrBedsStillAvailable.
			WithDetail("hospital_available_beds", available).
			WithHint("admit the patient locally while beds are available")
	}

	w, err := s.ledger.GetWard(ctx, req.FromWardID)
	if err != nil {
		return nil, err
	}
	if w.HospitalID != actor.HospitalID {
		return nil, apperr.ErrHospitalMismatch
	}
	if _, err := s.ledger.GetHospital(ctx, req.ToHospitalID); err != nil {
		return nil, err
	}
	if _, err := s.admissions.GetPatient(ctx, req.PatientID); err != nil {
		return nil, err
	}

	t, err := Next(StatusNone, ActionCreate)
	if err != nil {
		return nil, err
	}
	ref := &Referral{
		ID:             uuid.New(),
		PatientID:      req.PatientID,
		FromHospitalID: actor.HospitalID,
		FromWardID:     req.FromWardID,
		ToHospitalID:   req.ToHospitalID,
		Status:         t.Next,
		Reason:         req.Reason,
		CreatedBy:      actor.UserID,
	}
	if err := s.repo.Create(ctx, ref); err != nil {
		return nil, err
	}
	s.metrics.Transition(ctx, string(ActionCreate))

	s.record(ctx, actor, audit.ActionReferralCreate, ref, nil, ref)
	s.notify(ctx, ref.ToHospitalID, notification.TypeReferralReceived,
		"New referral received", "A hospital has sent a patient referral to your hospital", ref)

	return &CreateResult{Referral: ref, HospitalAvailableBeds: available}, nil
}

// Accept reserves a bed in one of the receiving hospital's wards and moves
// the referral to accepted. If no bed can be reserved the referral stays
// pending and nothing changes.
func (s *Service) Accept(ctx context.Context, actor auth.Actor, id uuid.UUID, req AcceptRequest) (*AcceptResult, error) {
	if req.WardID == uuid.Nil {
		return nil, apperr.Validation("ward_id is required")
	}
	if req.ReservationHours < 0 {
		return nil, apperr.Validation("reservation_hours must be at least 1")
	}

	var available int
	ref, _, err := s.transition(ctx, actor, id, ActionAccept, func(ctx context.Context, ref *Referral) error {
		refID := ref.ID
		res, w, err := s.reservations.Reserve(ctx, actor, reservation.ReserveRequest{
			WardID:     req.WardID,
			ReferralID: &refID,
			Priority:   reservation.PriorityHigh,
			TTL:        time.Duration(req.ReservationHours) * time.Hour,
		})
		if err != nil {
			return err
		}
		available = w.AvailableBeds
		ref.ReservationID = &res.ID
		ref.TargetWardID = &res.WardID
		expires := res.ExpiresAt
		ref.ReservationExpiresAt = &expires
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionReferralAccept, ref,
		map[string]interface{}{"status": StatusPending},
		map[string]interface{}{
			"status":                 StatusAccepted,
			"reservation_id":         ref.ReservationID,
			"target_ward_id":         ref.TargetWardID,
			"reservation_expires_at": ref.ReservationExpiresAt,
		})
	s.notify(ctx, ref.FromHospitalID, notification.TypeReferralAccepted,
		"Referral accepted", "Your referral was accepted and a bed has been reserved", ref)

	return &AcceptResult{
		Referral:      ref,
		AvailableBeds: available,
		Message:       "Referral accepted. Patient can now be transferred.",
	}, nil
}

// Reject declines a pending referral.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, id uuid.UUID, rejectionReason *string) (*Referral, error) {
	if rejectionReason != nil {
		v := strings.TrimSpace(*rejectionReason)
		if v == "" {
			rejectionReason = nil
		} else {
			rejectionReason = &v
		}
	}

	ref, _, err := s.transition(ctx, actor, id, ActionReject, func(_ context.Context, ref *Referral) error {
		ref.RejectionReason = rejectionReason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionReferralReject, ref,
		map[string]interface{}{"status": StatusPending},
		map[string]interface{}{"status": StatusRejected, "rejection_reason": rejectionReason})
	s.notify(ctx, ref.FromHospitalID, notification.TypeReferralRejected,
		"Referral rejected", "Your referral was rejected by the receiving hospital", ref)
	return ref, nil
}

// Complete admits the referred patient into the bed reserved at accept time.
// wardID is optional; when given it must be the reserved ward.
func (s *Service) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID, wardID *uuid.UUID) (*CompleteResult, error) {
	var result *admission.Result
	ref, _, err := s.transition(ctx, actor, id, ActionComplete, func(ctx context.Context, ref *Referral) error {
		if ref.ReservationID == nil || ref.TargetWardID == nil {
			return apperr.Internal("accepted referral has no reservation", nil)
		}
		if wardID != nil && *wardID != *ref.TargetWardID {
			return apperr.Validation("ward_id must be the ward reserved when the referral was accepted").
				WithDetail("target_ward_id", ref.TargetWardID.String())
		}
		w, err := s.ledger.GetWard(ctx, *ref.TargetWardID)
		if err != nil {
			return err
		}
		if w.HospitalID != ref.ToHospitalID {
			return apperr.ErrHospitalMismatch
		}

		patientID := ref.PatientID
		result, err = s.admissions.AdmitFromReservation(ctx, actor, admission.AdmitFromReservationRequest{
			ReservationID: *ref.ReservationID,
			PatientRef:    admission.PatientRef{PatientID: &patientID},
		})
		if err != nil {
			return err
		}
		ref.AdmissionID = &result.Admission.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionReferralComplete, ref,
		map[string]interface{}{"status": StatusAccepted},
		map[string]interface{}{"status": StatusCompleted, "admission_id": ref.AdmissionID})
	s.notify(ctx, ref.FromHospitalID, notification.TypeReferralCompleted,
		"Referral completed", "The referred patient has been admitted at the receiving hospital", ref)

	return &CompleteResult{
		Referral:  ref,
		Admission: result.Admission,
		Ward:      result.Ward,
		Message:   "Referral completed. Patient has been admitted.",
	}, nil
}

// Cancel withdraws a referral that is not yet completed. A bed reserved for
// it is returned to the receiving ward.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (*CancelResult, error) {
	var outcome string
	ref, from, err := s.transition(ctx, actor, id, ActionCancel, func(ctx context.Context, ref *Referral) error {
		if ref.ReservationID != nil {
			released, err := s.reservations.Release(ctx, nil, *ref.ReservationID, reservation.ReasonReferralCancelled)
			if err != nil {
				return err
			}
			outcome = released.Outcome
		}
		ref.ReservationID = nil
		ref.TargetWardID = nil
		ref.ReservationExpiresAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionReferralCancel, ref,
		map[string]interface{}{"status": from},
		map[string]interface{}{"status": StatusCancelled, "release_outcome": outcome})
	s.notify(ctx, ref.ToHospitalID, notification.TypeReferralCancelled,
		"Referral cancelled", "A referral to your hospital was cancelled by the sending hospital", ref)

	return &CancelResult{Referral: ref, ReleaseOutcome: outcome, Message: "Referral cancelled."}, nil
}

// Get returns a referral visible to the actor's hospital as sender or receiver.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Referral, error) {
	ref, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.HospitalID != ref.FromHospitalID && actor.HospitalID != ref.ToHospitalID {
		return nil, apperr.Forbidden("access denied to this referral")
	}
	return ref, nil
}

// List returns referrals sent (outgoing, the default) or received (incoming)
// by the actor's hospital.
func (s *Service) List(ctx context.Context, actor auth.Actor, direction Direction, status *Status, p pagination.Params) ([]*Referral, int, Direction, error) {
	if direction != DirectionIncoming {
		direction = DirectionOutgoing
	}
	if status != nil && !status.Valid() {
		return nil, 0, direction, apperr.Validation("status must be one of pending, accepted, rejected, completed, cancelled")
	}
	items, total, err := s.repo.List(ctx, ListFilter{
		HospitalID: actor.HospitalID,
		Direction:  direction,
		Status:     status,
	}, p.Normalize())
	return items, total, direction, err
}
