package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/internal/domain/reservation"
	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/apperr"
)

type hospitalRepo struct{ s *Store }

func (r hospitalRepo) Create(ctx context.Context, h *ward.Hospital) error {
	defer r.s.lock(ctx)()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.CreatedAt = r.s.now().UTC()
	r.s.state.hospitals[h.ID] = *h
	return nil
}

func (r hospitalRepo) GetByID(ctx context.Context, id uuid.UUID) (*ward.Hospital, error) {
	defer r.s.lock(ctx)()
	h, ok := r.s.state.hospitals[id]
	if !ok {
		return nil, apperr.ErrHospitalNotFound
	}
	return &h, nil
}

type wardRepo struct{ s *Store }

func (r wardRepo) Create(ctx context.Context, w *ward.Ward) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.state.hospitals[w.HospitalID]; !ok {
		return apperr.ErrHospitalNotFound
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := r.s.now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	r.s.state.wards[w.ID] = *w
	return nil
}

func (r wardRepo) GetByID(ctx context.Context, id uuid.UUID) (*ward.Ward, error) {
	defer r.s.lock(ctx)()
	w, ok := r.s.state.wards[id]
	if !ok {
		return nil, apperr.ErrWardNotFound
	}
	return &w, nil
}

func (r wardRepo) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*ward.Ward, error) {
	defer r.s.lock(ctx)()
	var items []*ward.Ward
	for _, w := range r.s.state.wards {
		if w.HospitalID == hospitalID {
			w := w
			items = append(items, &w)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].AvailableBeds != items[j].AvailableBeds {
			return items[i].AvailableBeds > items[j].AvailableBeds
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (r wardRepo) SumAvailable(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()
	n := 0
	for _, w := range r.s.state.wards {
		if w.HospitalID == hospitalID {
			n += w.AvailableBeds
		}
	}
	return n, nil
}

func (r wardRepo) ReservedCount(ctx context.Context, wardID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()
	return r.s.activeReservations(wardID), nil
}

// activeReservations must be called with the lock held.
func (s *Store) activeReservations(wardID uuid.UUID) int {
	n := 0
	for _, res := range s.state.reservations {
		if res.WardID == wardID && res.Status == reservation.StatusActive {
			n++
		}
	}
	return n
}

// owned returns the ward when it exists and belongs to hospitalID. Must be
// called with the lock held.
func (s *Store) owned(id, hospitalID uuid.UUID) (ward.Ward, error) {
	w, ok := s.state.wards[id]
	if !ok {
		return ward.Ward{}, apperr.ErrWardNotFound
	}
	if w.HospitalID != hospitalID {
		return ward.Ward{}, apperr.ErrHospitalMismatch
	}
	return w, nil
}

func (r wardRepo) Decrement(ctx context.Context, id, hospitalID uuid.UUID, by int) (*ward.Ward, error) {
	defer r.s.lock(ctx)()
	w, err := r.s.owned(id, hospitalID)
	if err != nil {
		return nil, err
	}
	if w.AvailableBeds < by {
		return nil, apperr.ErrNoBedsAvailable
	}
	w.AvailableBeds -= by
	w.UpdatedAt = r.s.now().UTC()
	r.s.state.wards[id] = w
	return &w, nil
}

func (r wardRepo) Increment(ctx context.Context, id, hospitalID uuid.UUID, by int) (*ward.Ward, bool, error) {
	defer r.s.lock(ctx)()
	w, err := r.s.owned(id, hospitalID)
	if err != nil {
		return nil, false, err
	}
	clamped := w.AvailableBeds+by > w.TotalBeds
	w.AvailableBeds += by
	if clamped {
		w.AvailableBeds = w.TotalBeds
	}
	w.UpdatedAt = r.s.now().UTC()
	r.s.state.wards[id] = w
	return &w, clamped, nil
}

func (r wardRepo) UpdateCapacity(ctx context.Context, id, hospitalID uuid.UUID, newTotal int) (*ward.Ward, error) {
	defer r.s.lock(ctx)()
	w, err := r.s.owned(id, hospitalID)
	if err != nil {
		return nil, err
	}
	if newTotal < w.InUse() {
		return nil, apperr.ErrCapacityBelowOccupied
	}
	w.AvailableBeds += newTotal - w.TotalBeds
	w.TotalBeds = newTotal
	w.UpdatedAt = r.s.now().UTC()
	r.s.state.wards[id] = w
	return &w, nil
}
