package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/pkg/pagination"
)

// Repository persists reservations. Status changes are conditional on the
// row still being active so that concurrent releases and sweeps settle on a
// single winner.
type Repository interface {
	Create(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	// GetForUpdate locks the row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Reservation, error)
	// MarkCompleted reports false when the reservation was no longer active.
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// MarkReleased returns nil when the reservation was no longer active.
	MarkReleased(ctx context.Context, id uuid.UUID, status Status, reason string, at time.Time) (*Reservation, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
	List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Reservation, int, error)
}
