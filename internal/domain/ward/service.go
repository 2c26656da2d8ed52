package ward

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/audit"
	"github.com/bedlink/bedlink/internal/platform/auth"
	"github.com/bedlink/bedlink/internal/platform/telemetry"
)

// Service is the bed ledger. All changes to a ward's counters go through it.
type Service struct {
	hospitals HospitalRepository
	wards     WardRepository
	audit     audit.Recorder
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

func NewService(hospitals HospitalRepository, wards WardRepository, logger zerolog.Logger) *Service {
	return &Service{
		hospitals: hospitals,
		wards:     wards,
		audit:     audit.Nop{},
		logger:    logger.With().Str("component", "ledger").Logger(),
	}
}

func (s *Service) SetAudit(r audit.Recorder) { s.audit = r }
func (s *Service) SetMetrics(m *telemetry.Metrics) { s.metrics = m }

// Decrement takes by beds out of the pool.
func (s *Service) Decrement(ctx context.Context, wardID, hospitalID uuid.UUID, by int) (*Ward, error) {
	if by < 1 {
		return nil, apperr.Validation("decrement must be at least 1")
	}
	ctx, span := telemetry.StartSpan(ctx, "ledger.decrement")
	w, err := s.wards.Decrement(ctx, wardID, hospitalID, by)
	telemetry.EndSpan(span, err)
	if err != nil {
		s.metrics.LedgerRejection(ctx, string(apperr.ReasonOf(err)))
		return nil, err
	}
	return w, nil
}

// Increment returns by beds to the pool, clamped at total_beds. When the clamp
// engages the updated ward is returned together with apperr.ErrCapacityExceeded;
// callers log it and carry on.
func (s *Service) Increment(ctx context.Context, wardID, hospitalID uuid.UUID, by int) (*Ward, error) {
	if by < 1 {
		return nil, apperr.Validation("increment must be at least 1")
	}
	ctx, span := telemetry.StartSpan(ctx, "ledger.increment")
	w, clamped, err := s.wards.Increment(ctx, wardID, hospitalID, by)
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if clamped {
		s.metrics.LedgerRejection(ctx, string(apperr.ReasonCapacityExceeded))
		return w, apperr.ErrCapacityExceeded.WithDetail("ward_id", wardID.String())
	}
	return w, nil
}

// Release is Increment for callers that treat the clamp as a warning.
func (s *Service) Release(ctx context.Context, wardID, hospitalID uuid.UUID) (*Ward, error) {
	w, err := s.Increment(ctx, wardID, hospitalID, 1)
	if errors.Is(err, apperr.ErrCapacityExceeded) {
		s.logger.Warn().
			Str("ward_id", wardID.String()).
			Msg("available beds already at total, increment clamped")
		return w, nil
	}
	return w, err
}

func (s *Service) UpdateCapacity(ctx context.Context, actor auth.Actor, wardID uuid.UUID, newTotal int) (*Ward, error) {
	if newTotal < 0 {
		return nil, apperr.Validation("total_beds must be a non-negative integer")
	}
	before, err := s.wards.GetByID(ctx, wardID)
	if err != nil {
		return nil, err
	}
	w, err := s.wards.UpdateCapacity(ctx, wardID, actor.HospitalID, newTotal)
	if err != nil {
		if errors.Is(err, apperr.ErrCapacityBelowOccupied) {
			s.metrics.LedgerRejection(ctx, string(apperr.ReasonCapacityBelowOccupied))
			return nil, apperr.ErrCapacityBelowOccupied.
				WithDetail("occupied_beds", before.InUse()).
				WithHint(fmt.Sprintf("total_beds must be at least %d", before.InUse()))
		}
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.UserID,
		HospitalID: actor.HospitalID,
		Action:     audit.ActionWardCapacityUpdate,
		Table:      "wards",
		RecordID:   w.ID.String(),
		OldData:    before,
		NewData:    w,
	})
	return w, nil
}

func (s *Service) CreateWard(ctx context.Context, actor auth.Actor, req CreateWardRequest) (*Ward, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.TrimSpace(req.Type)
	if len(req.Name) < 2 {
		return nil, apperr.Validation("name must be at least 2 characters")
	}
	if len(req.Type) < 2 {
		return nil, apperr.Validation("type must be at least 2 characters")
	}
	if req.TotalBeds == nil || *req.TotalBeds < 0 {
		return nil, apperr.Validation("total_beds must be a non-negative integer")
	}

	hospitalID := actor.HospitalID
	if req.HospitalID != nil && *req.HospitalID != uuid.Nil {
		if hospitalID != uuid.Nil && *req.HospitalID != hospitalID {
			return nil, apperr.Forbidden("you can only create wards for your own hospital")
		}
		hospitalID = *req.HospitalID
	}
	if hospitalID == uuid.Nil {
		return nil, apperr.Validation("hospital_id is required")
	}
	if _, err := s.hospitals.GetByID(ctx, hospitalID); err != nil {
		return nil, err
	}

	w := &Ward{
		HospitalID:    hospitalID,
		Name:          req.Name,
		Type:          req.Type,
		TotalBeds:     *req.TotalBeds,
		AvailableBeds: *req.TotalBeds,
	}
	if err := s.wards.Create(ctx, w); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.UserID,
		HospitalID: hospitalID,
		Action:     audit.ActionWardCreate,
		Table:      "wards",
		RecordID:   w.ID.String(),
		NewData:    w,
	})
	return w, nil
}

func (s *Service) GetWard(ctx context.Context, wardID uuid.UUID) (*Ward, error) {
	return s.wards.GetByID(ctx, wardID)
}

// GetAvailability splits the beds drawn from the pool into reserved and occupied.
func (s *Service) GetAvailability(ctx context.Context, wardID uuid.UUID) (*Availability, error) {
	w, err := s.wards.GetByID(ctx, wardID)
	if err != nil {
		return nil, err
	}
	reserved, err := s.wards.ReservedCount(ctx, wardID)
	if err != nil {
		return nil, err
	}
	occupied := w.InUse() - reserved
	if occupied < 0 {
		occupied = 0
	}
	return &Availability{Ward: w, ReservedBeds: reserved, OccupiedBeds: occupied}, nil
}

func (s *Service) ListWards(ctx context.Context, hospitalID uuid.UUID) ([]*Ward, error) {
	return s.wards.ListByHospital(ctx, hospitalID)
}

// HospitalAvailableBeds sums available beds across every ward of a hospital.
func (s *Service) HospitalAvailableBeds(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	return s.wards.SumAvailable(ctx, hospitalID)
}

func (s *Service) CreateHospital(ctx context.Context, h *Hospital) error {
	h.Name = strings.TrimSpace(h.Name)
	if len(h.Name) < 2 {
		return apperr.Validation("name must be at least 2 characters")
	}
	return s.hospitals.Create(ctx, h)
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.hospitals.GetByID(ctx, id)
}
