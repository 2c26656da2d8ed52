package ward

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/db"
)

// =========== Hospital Repository ===========

type hospitalRepoPG struct{ pool *pgxpool.Pool }

func NewHospitalRepoPG(pool *pgxpool.Pool) HospitalRepository { return &hospitalRepoPG{pool: pool} }

func (r *hospitalRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *hospitalRepoPG) Create(ctx context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospitals (id, name, region, district, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		h.ID, h.Name, h.Region, h.District, h.Phone).Scan(&h.CreatedAt)
}

func (r *hospitalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	var h Hospital
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, region, district, phone, created_at FROM hospitals WHERE id = $1`, id).
		Scan(&h.ID, &h.Name, &h.Region, &h.District, &h.Phone, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrHospitalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hospital: %w", err)
	}
	return &h, nil
}

// =========== Ward Repository ===========

type wardRepoPG struct{ pool *pgxpool.Pool }

func NewWardRepoPG(pool *pgxpool.Pool) WardRepository { return &wardRepoPG{pool: pool} }

func (r *wardRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const wardCols = `id, hospital_id, name, type, total_beds, available_beds, created_at, updated_at`

func scanWard(row pgx.Row, extra ...interface{}) (*Ward, error) {
	var w Ward
	dest := []interface{}{&w.ID, &w.HospitalID, &w.Name, &w.Type, &w.TotalBeds, &w.AvailableBeds, &w.CreatedAt, &w.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *wardRepoPG) Create(ctx context.Context, w *Ward) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO wards (id, hospital_id, name, type, total_beds, available_beds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		w.ID, w.HospitalID, w.Name, w.Type, w.TotalBeds, w.AvailableBeds).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ward: %w", err)
	}
	return nil
}

func (r *wardRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Ward, error) {
	w, err := scanWard(r.conn(ctx).QueryRow(ctx, `SELECT `+wardCols+` FROM wards WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrWardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ward: %w", err)
	}
	return w, nil
}

func (r *wardRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Ward, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+wardCols+` FROM wards WHERE hospital_id = $1 ORDER BY available_beds DESC, name`, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("list wards: %w", err)
	}
	defer rows.Close()
	var items []*Ward
	for rows.Next() {
		w, err := scanWard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ward: %w", err)
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *wardRepoPG) SumAvailable(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(available_beds), 0) FROM wards WHERE hospital_id = $1`, hospitalID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum available beds: %w", err)
	}
	return n, nil
}

func (r *wardRepoPG) ReservedCount(ctx context.Context, wardID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM bed_reservations WHERE ward_id = $1 AND status = 'active'`, wardID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	return n, nil
}

// classify explains why a guarded UPDATE matched no row.
func (r *wardRepoPG) classify(ctx context.Context, id, hospitalID uuid.UUID, guard *apperr.Error) error {
	var owner uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT hospital_id FROM wards WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrWardNotFound
	}
	if err != nil {
		return fmt.Errorf("load ward: %w", err)
	}
	if owner != hospitalID {
		return apperr.ErrHospitalMismatch
	}
	return guard
}

func (r *wardRepoPG) Decrement(ctx context.Context, id, hospitalID uuid.UUID, by int) (*Ward, error) {
	w, err := scanWard(r.conn(ctx).QueryRow(ctx, `
		UPDATE wards SET available_beds = available_beds - $3, updated_at = NOW()
		WHERE id = $1 AND hospital_id = $2 AND available_beds >= $3
		RETURNING `+wardCols, id, hospitalID, by))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classify(ctx, id, hospitalID, apperr.ErrNoBedsAvailable)
	}
	if err != nil {
		return nil, fmt.Errorf("decrement ward: %w", err)
	}
	return w, nil
}

func (r *wardRepoPG) Increment(ctx context.Context, id, hospitalID uuid.UUID, by int) (*Ward, bool, error) {
	var clamped bool
	w, err := scanWard(r.conn(ctx).QueryRow(ctx, `
		WITH prev AS (
			SELECT id, available_beds FROM wards WHERE id = $1 AND hospital_id = $2 FOR UPDATE
		)
		UPDATE wards w SET available_beds = LEAST(w.available_beds + $3, w.total_beds), updated_at = NOW()
		FROM prev WHERE w.id = prev.id
		RETURNING w.id, w.hospital_id, w.name, w.type, w.total_beds, w.available_beds, w.created_at, w.updated_at,
			prev.available_beds + $3 > w.total_beds`, id, hospitalID, by), &clamped)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, r.classify(ctx, id, hospitalID, apperr.ErrWardNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("increment ward: %w", err)
	}
	return w, clamped, nil
}

func (r *wardRepoPG) UpdateCapacity(ctx context.Context, id, hospitalID uuid.UUID, newTotal int) (*Ward, error) {
	w, err := scanWard(r.conn(ctx).QueryRow(ctx, `
		UPDATE wards
		SET total_beds = $3, available_beds = available_beds + ($3 - total_beds), updated_at = NOW()
		WHERE id = $1 AND hospital_id = $2 AND $3 >= total_beds - available_beds
		RETURNING `+wardCols, id, hospitalID, newTotal))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classify(ctx, id, hospitalID, apperr.ErrCapacityBelowOccupied)
	}
	if err != nil {
		return nil, fmt.Errorf("update ward capacity: %w", err)
	}
	return w, nil
}
