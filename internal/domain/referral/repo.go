package referral

import (
	"context"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	// GetForUpdate locks the row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Referral, error)
	// Update writes the mutable fields of r provided the stored status is
	// still from. It reports false when another transition got there first.
	Update(ctx context.Context, r *Referral, from Status) (bool, error)
	List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Referral, int, error)
}
