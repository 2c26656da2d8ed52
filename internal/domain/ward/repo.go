package ward

import (
	"context"

	"github.com/google/uuid"
)

type HospitalRepository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
}

// WardRepository owns the bed counters. The mutating methods are single guarded
// statements: they return apperr.ErrWardNotFound, apperr.ErrHospitalMismatch or
// the guard's own error without changing anything when a check fails.
type WardRepository interface {
	Create(ctx context.Context, w *Ward) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ward, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Ward, error)
	SumAvailable(ctx context.Context, hospitalID uuid.UUID) (int, error)
	ReservedCount(ctx context.Context, wardID uuid.UUID) (int, error)

	// Decrement fails with apperr.ErrNoBedsAvailable when fewer than by beds are available.
	Decrement(ctx context.Context, id, hospitalID uuid.UUID, by int) (*Ward, error)
	// Increment adds by, clamped at total_beds. clamped reports whether the clamp engaged.
	Increment(ctx context.Context, id, hospitalID uuid.UUID, by int) (w *Ward, clamped bool, err error)
	// UpdateCapacity fails with apperr.ErrCapacityBelowOccupied when newTotal < total - available.
	UpdateCapacity(ctx context.Context, id, hospitalID uuid.UUID, newTotal int) (*Ward, error)
}
