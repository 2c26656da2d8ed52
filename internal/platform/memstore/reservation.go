package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/internal/domain/reservation"
	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/pkg/pagination"
)

type reservationRepo struct{ s *Store }

func (r reservationRepo) Create(ctx context.Context, res *reservation.Reservation) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.state.wards[res.WardID]; !ok {
		return apperr.ErrWardNotFound
	}
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	r.s.state.reservations[res.ID] = *res
	return nil
}

func (r reservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	defer r.s.lock(ctx)()
	res, ok := r.s.state.reservations[id]
	if !ok {
		return nil, apperr.ErrReservationNotFound.WithMessage("reservation not found")
	}
	return &res, nil
}

func (r reservationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	return r.GetByID(ctx, id)
}

func (r reservationRepo) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	defer r.s.lock(ctx)()
	res, ok := r.s.state.reservations[id]
	if !ok || res.Status != reservation.StatusActive {
		return false, nil
	}
	res.Status = reservation.StatusCompleted
	res.CompletedAt = &at
	r.s.state.reservations[id] = res
	return true, nil
}

func (r reservationRepo) MarkReleased(ctx context.Context, id uuid.UUID, status reservation.Status, reason string, at time.Time) (*reservation.Reservation, error) {
	defer r.s.lock(ctx)()
	res, ok := r.s.state.reservations[id]
	if !ok || res.Status != reservation.StatusActive {
		return nil, nil
	}
	res.Status = status
	res.ReleaseReason = &reason
	res.CancelledAt = &at
	r.s.state.reservations[id] = res
	return &res, nil
}

func (r reservationRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	defer r.s.lock(ctx)()
	var items []*reservation.Reservation
	for _, res := range r.s.state.reservations {
		if res.Status == reservation.StatusActive && res.ExpiresAt.Before(now) {
			res := res
			items = append(items, &res)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ExpiresAt.Before(items[j].ExpiresAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r reservationRepo) List(ctx context.Context, f reservation.ListFilter, p pagination.Params) ([]*reservation.Reservation, int, error) {
	defer r.s.lock(ctx)()
	var items []*reservation.Reservation
	for _, res := range r.s.state.reservations {
		if res.HospitalID != f.HospitalID {
			continue
		}
		if f.Status != nil && res.Status != *f.Status {
			continue
		}
		if f.WardID != nil && res.WardID != *f.WardID {
			continue
		}
		res := res
		items = append(items, &res)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ReservedAt.After(items[j].ReservedAt) })
	start, end := p.Window(len(items))
	return items[start:end], len(items), nil
}
