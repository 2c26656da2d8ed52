package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) WardStats(ctx context.Context, hospitalID uuid.UUID) ([]WardStat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT w.id, w.name, w.type, w.total_beds, w.available_beds, COALESCE(res.n, 0)
		FROM wards w
		LEFT JOIN (
			SELECT ward_id, COUNT(*) AS n FROM bed_reservations WHERE status = 'active' GROUP BY ward_id
		) res ON res.ward_id = w.id
		WHERE w.hospital_id = $1`, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("ward stats: %w", err)
	}
	defer rows.Close()

	var stats []WardStat
	for rows.Next() {
		var s WardStat
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.TotalBeds, &s.AvailableBeds, &s.ReservedBeds); err != nil {
			return nil, fmt.Errorf("scan ward stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *repoPG) Counts(ctx context.Context, hospitalID uuid.UUID, since time.Time) (Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM admissions WHERE hospital_id = $1 AND admitted_at >= $2),
			(SELECT COUNT(*) FROM admissions WHERE hospital_id = $1 AND discharged_at >= $2),
			(SELECT COUNT(*) FROM referrals WHERE to_hospital_id = $1 AND status = 'pending'),
			(SELECT COUNT(*) FROM referrals WHERE from_hospital_id = $1 AND status = 'pending')`,
		hospitalID, since).Scan(&c.AdmissionsToday, &c.DischargesToday, &c.PendingIncoming, &c.PendingOutgoing)
	if err != nil {
		return Counts{}, fmt.Errorf("dashboard counts: %w", err)
	}
	return c, nil
}

func (r *repoPG) SystemCounts(ctx context.Context, since time.Time) (SystemCounts, error) {
	var c SystemCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM hospitals),
			(SELECT COALESCE(SUM(total_beds), 0) FROM wards),
			(SELECT COALESCE(SUM(available_beds), 0) FROM wards),
			(SELECT COUNT(*) FROM bed_reservations WHERE status = 'active'),
			(SELECT COUNT(*) FROM admissions WHERE admitted_at >= $1),
			(SELECT COUNT(*) FROM referrals WHERE status = 'pending')`, since).
		Scan(&c.Hospitals, &c.TotalBeds, &c.AvailableBeds, &c.ReservedBeds, &c.AdmissionsToday, &c.PendingReferrals)
	if err != nil {
		return SystemCounts{}, fmt.Errorf("system counts: %w", err)
	}
	return c, nil
}
