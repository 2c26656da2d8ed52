package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/db"
	"github.com/bedlink/bedlink/pkg/pagination"
)

var dialect = goqu.Dialect("postgres")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const resCols = `id, hospital_id, ward_id, referral_id, reserved_by, reservation_type, priority, notes,
	status, reserved_at, expires_at, completed_at, cancelled_at, release_reason`

var resColumns = []interface{}{
	"id", "hospital_id", "ward_id", "referral_id", "reserved_by", "reservation_type", "priority", "notes",
	"status", "reserved_at", "expires_at", "completed_at", "cancelled_at", "release_reason",
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	err := row.Scan(&res.ID, &res.HospitalID, &res.WardID, &res.ReferralID, &res.ReservedBy,
		&res.ReservationType, &res.Priority, &res.Notes, &res.Status, &res.ReservedAt, &res.ExpiresAt,
		&res.CompletedAt, &res.CancelledAt, &res.ReleaseReason)
	return &res, err
}

func (r *repoPG) Create(ctx context.Context, res *Reservation) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bed_reservations (id, hospital_id, ward_id, referral_id, reserved_by, reservation_type,
			priority, notes, status, reserved_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.ID, res.HospitalID, res.WardID, res.ReferralID, res.ReservedBy, string(res.ReservationType),
		string(res.Priority), res.Notes, string(res.Status), res.ReservedAt, res.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *repoPG) get(ctx context.Context, query string, id uuid.UUID) (*Reservation, error) {
	res, err := scanReservation(r.conn(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrReservationNotFound.WithMessage("reservation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return r.get(ctx, `SELECT `+resCols+` FROM bed_reservations WHERE id = $1`, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return r.get(ctx, `SELECT `+resCols+` FROM bed_reservations WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed_reservations SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'active'`, id, at)
	if err != nil {
		return false, fmt.Errorf("complete reservation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) MarkReleased(ctx context.Context, id uuid.UUID, status Status, reason string, at time.Time) (*Reservation, error) {
	res, err := scanReservation(r.conn(ctx).QueryRow(ctx, `
		UPDATE bed_reservations SET status = $2, release_reason = $3, cancelled_at = $4
		WHERE id = $1 AND status = 'active'
		RETURNING `+resCols, id, string(status), reason, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("release reservation: %w", err)
	}
	return res, nil
}

func (r *repoPG) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Reservation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+resCols+` FROM bed_reservations
		WHERE status = 'active' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue reservations: %w", err)
	}
	return collect(rows)
}

func (r *repoPG) List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Reservation, int, error) {
	ds := dialect.From("bed_reservations").Prepared(true).
		Where(goqu.Ex{"hospital_id": f.HospitalID.String()})
	if f.Status != nil {
		ds = ds.Where(goqu.Ex{"status": string(*f.Status)})
	}
	if f.WardID != nil {
		ds = ds.Where(goqu.Ex{"ward_id": f.WardID.String()})
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}

	query, args, err := p.Apply(ds.Select(resColumns...).Order(goqu.I("reserved_at").Desc())).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}
	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func collect(rows pgx.Rows) ([]*Reservation, error) {
	defer rows.Close()
	var items []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		items = append(items, res)
	}
	return items, rows.Err()
}
