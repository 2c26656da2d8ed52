package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository reads the aggregates behind the dashboard. since is the start of
// the current day.
type Repository interface {
	WardStats(ctx context.Context, hospitalID uuid.UUID) ([]WardStat, error)
	Counts(ctx context.Context, hospitalID uuid.UUID, since time.Time) (Counts, error)
	SystemCounts(ctx context.Context, since time.Time) (SystemCounts, error)
}
