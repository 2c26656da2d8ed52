package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/audit"
	"github.com/bedlink/bedlink/internal/platform/auth"
	"github.com/bedlink/bedlink/internal/platform/db"
	"github.com/bedlink/bedlink/internal/platform/notification"
	"github.com/bedlink/bedlink/internal/platform/telemetry"
	"github.com/bedlink/bedlink/pkg/pagination"
)

// Ledger is the part of the bed ledger reservations draw on.
type Ledger interface {
	Decrement(ctx context.Context, wardID, hospitalID uuid.UUID, by int) (*ward.Ward, error)
	Release(ctx context.Context, wardID, hospitalID uuid.UUID) (*ward.Ward, error)
}

type Config struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	// Grace lets a reservation be completed this long after expires_at.
	Grace time.Duration
}

func DefaultConfig() Config {
	return Config{DefaultTTL: 2 * time.Hour, MaxTTL: 48 * time.Hour}
}

const sweepBatch = 500

type Service struct {
	repo     Repository
	ledger   Ledger
	tx       db.TxRunner
	cfg      Config
	audit    audit.Recorder
	notifier notification.Notifier
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, ledger Ledger, tx db.TxRunner, cfg Config, logger zerolog.Logger) *Service {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if cfg.MaxTTL < cfg.DefaultTTL {
		cfg.MaxTTL = cfg.DefaultTTL
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		tx:       tx,
		cfg:      cfg,
		audit:    audit.Nop{},
		notifier: notification.Nop{},
		logger:   logger.With().Str("component", "reservations").Logger(),
		now:      time.Now,
	}
}

func (s *Service) SetAudit(r audit.Recorder) { s.audit = r }
func (s *Service) SetNotifier(n notification.Notifier) { s.notifier = n }
func (s *Service) SetMetrics(m *telemetry.Metrics) { s.metrics = m }

// SetClock replaces time.Now.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Config() Config { return s.cfg }

// Reserve takes one bed from the ward and records an active reservation for
// it. Both writes share one unit of work, so a failed insert gives the bed
// back.
func (s *Service) Reserve(ctx context.Context, actor auth.Actor, req ReserveRequest) (*Reservation, *ward.Ward, error) {
	if req.WardID == uuid.Nil {
		return nil, nil, apperr.Validation("ward_id is required")
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, nil, apperr.Validation("priority must be one of low, normal, high, critical")
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}
	if ttl < 0 || ttl > s.cfg.MaxTTL {
		return nil, nil, apperr.Validation("reservation ttl must be positive and at most %s", s.cfg.MaxTTL)
	}
	if actor.HospitalID == uuid.Nil {
		return nil, nil, apperr.Forbidden("user is not linked to a hospital")
	}

	ctx, span := telemetry.StartSpan(ctx, "reservation.reserve")
	var (
		res *Reservation
		w   *ward.Ward
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		w, err = s.ledger.Decrement(ctx, req.WardID, actor.HospitalID, 1)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		res = &Reservation{
			ID:              uuid.New(),
			HospitalID:      actor.HospitalID,
			WardID:          req.WardID,
			ReferralID:      req.ReferralID,
			ReservedBy:      actor.UserID,
			ReservationType: TypeEmergency,
			Priority:        req.Priority,
			Notes:           req.Notes,
			Status:          StatusActive,
			ReservedAt:      now,
			ExpiresAt:       now.Add(ttl),
		}
		if req.ReferralID != nil {
			res.ReservationType = TypeReferral
		}
		if err := s.repo.Create(ctx, res); err != nil {
			return err
		}

		db.AfterCommit(ctx, func() {
			s.metrics.Reservation(ctx, "created")
			s.audit.Record(ctx, audit.Entry{
				ActorID:    actor.UserID,
				HospitalID: actor.HospitalID,
				Action:     audit.ActionReservationCreate,
				Table:      "bed_reservations",
				RecordID:   res.ID.String(),
				NewData:    res,
			})
		})
		return nil
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		if errors.Is(err, apperr.ErrNoBedsAvailable) {
			s.metrics.Reservation(ctx, "rejected")
		}
		return nil, nil, err
	}
	return res, w, nil
}

// Complete marks an active reservation owned by the actor's hospital as
// completed. The bed stays drawn: it is now occupied instead of reserved.
func (s *Service) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Reservation, error) {
	var res *Reservation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, apperr.ErrReservationNotFound) {
				return apperr.ErrReservationNotFound
			}
			return err
		}
		if res.HospitalID != actor.HospitalID {
			return apperr.ErrReservationNotFound
		}
		if res.Status == StatusExpired {
			return apperr.ErrReservationExpired.WithDetail("expires_at", res.ExpiresAt)
		}
		if res.Status != StatusActive {
			return apperr.ErrReservationNotFound
		}

		now := s.now().UTC()
		if now.After(res.ExpiresAt.Add(s.cfg.Grace)) {
			return apperr.ErrReservationExpired.
				WithDetail("expires_at", res.ExpiresAt).
				WithHint("the bed is returned to the ward on the next expiry sweep")
		}

		ok, err := s.repo.MarkCompleted(ctx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrReservationNotFound
		}
		res.Status = StatusCompleted
		res.CompletedAt = &now

		db.AfterCommit(ctx, func() {
			s.metrics.Reservation(ctx, "completed")
			s.audit.Record(ctx, audit.Entry{
				ActorID:    actor.UserID,
				HospitalID: actor.HospitalID,
				Action:     audit.ActionReservationComplete,
				Table:      "bed_reservations",
				RecordID:   id.String(),
				OldData:    map[string]interface{}{"status": StatusActive},
				NewData:    map[string]interface{}{"status": StatusCompleted},
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Release ends an active reservation and returns its bed to the ward.
// Releasing a reservation that is no longer active is not an error; the
// result reports OutcomeAlreadyReleased and nothing changes. A nil actor is
// the system (expiry sweep, referral cancellation).
func (s *Service) Release(ctx context.Context, actor *auth.Actor, id uuid.UUID, reason string) (*ReleaseResult, error) {
	if reason == "" {
		reason = ReasonCancelled
	}
	status := StatusCancelled
	if reason == ReasonExpired {
		status = StatusExpired
	}

	var result *ReleaseResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		res, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor != nil && res.HospitalID != actor.HospitalID {
			return apperr.ErrReservationNotFound.WithMessage("reservation not found")
		}
		if res.Status != StatusActive {
			result = &ReleaseResult{ReservationID: id, Outcome: OutcomeAlreadyReleased, Status: res.Status}
			return nil
		}

		released, err := s.repo.MarkReleased(ctx, id, status, reason, s.now().UTC())
		if err != nil {
			return err
		}
		if released == nil {
			result = &ReleaseResult{ReservationID: id, Outcome: OutcomeAlreadyReleased, Status: res.Status}
			return nil
		}

		w, err := s.ledger.Release(ctx, res.WardID, res.HospitalID)
		if err != nil {
			return err
		}
		result = &ReleaseResult{ReservationID: id, Outcome: OutcomeReleased, Status: status, Ward: w}

		actorID := "system"
		if actor != nil {
			actorID = actor.UserID
		}
		action := audit.ActionReservationRelease
		if status == StatusExpired {
			action = audit.ActionReservationExpire
		}
		db.AfterCommit(ctx, func() {
			s.metrics.Reservation(ctx, string(status))
			s.audit.Record(ctx, audit.Entry{
				ActorID:    actorID,
				HospitalID: res.HospitalID,
				Action:     action,
				Table:      "bed_reservations",
				RecordID:   id.String(),
				OldData:    res,
				NewData:    released,
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Outcome == OutcomeAlreadyReleased {
		s.logger.Debug().
			Str("reservation_id", id.String()).
			Str("status", string(result.Status)).
			Msg("release of inactive reservation ignored")
	}
	return result, nil
}

// ExpireOverdue releases every active reservation whose expires_at has
// passed. Each reservation is released in its own unit of work; the
// conditional status update keeps overlapping sweeps from releasing a bed
// twice.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "reservation.expire_overdue")
	defer span.End()

	expired := 0
	for {
		overdue, err := s.repo.ListOverdue(ctx, s.now().UTC(), sweepBatch)
		if err != nil {
			return expired, err
		}
		progressed := false
		for _, res := range overdue {
			if err := ctx.Err(); err != nil {
				return expired, err
			}
			result, err := s.Release(ctx, nil, res.ID, ReasonExpired)
			if err != nil {
				s.logger.Error().Err(err).
					Str("reservation_id", res.ID.String()).
					Msg("failed to expire reservation")
				continue
			}
			if result.Outcome != OutcomeReleased {
				continue
			}
			expired++
			progressed = true
			s.notifier.Notify(ctx, notification.Notification{
				HospitalID:    res.HospitalID,
				Roles:         []string{auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse},
				Type:          notification.TypeReservationExpired,
				Title:         "Bed reservation expired",
				Message:       "A bed reservation expired and the bed was returned to the ward",
				ReferenceType: "bed_reservation",
				ReferenceID:   res.ID.String(),
			})
		}
		if len(overdue) < sweepBatch || !progressed {
			break
		}
	}

	if expired > 0 {
		s.logger.Info().Int("expired", expired).Msg("expired overdue reservations")
	}
	return expired, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Reservation, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.HospitalID != actor.HospitalID {
		return nil, apperr.ErrReservationNotFound.WithMessage("reservation not found")
	}
	return res, nil
}

// List returns the reservations of the actor's hospital.
func (s *Service) List(ctx context.Context, actor auth.Actor, status *Status, wardID *uuid.UUID, p pagination.Params) ([]*Reservation, int, error) {
	if status != nil {
		switch *status {
		case StatusActive, StatusCompleted, StatusCancelled, StatusExpired:
		default:
			return nil, 0, apperr.Validation("status must be one of active, completed, cancelled, expired")
		}
	}
	return s.repo.List(ctx, ListFilter{HospitalID: actor.HospitalID, Status: status, WardID: wardID}, p.Normalize())
}
