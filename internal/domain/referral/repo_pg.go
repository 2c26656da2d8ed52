package referral

import (
	"context"
	"errors"
	"fmt"

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

const referralCols = `id, patient_id, from_hospital_id, from_ward_id, to_hospital_id, status, reason,
	rejection_reason, reservation_id, target_ward_id, reservation_expires_at, admission_id,
	created_by, created_at, updated_at`

var referralColumns = []interface{}{
	"id", "patient_id", "from_hospital_id", "from_ward_id", "to_hospital_id", "status", "reason",
	"rejection_reason", "reservation_id", "target_ward_id", "reservation_expires_at", "admission_id",
	"created_by", "created_at", "updated_at",
}

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.PatientID, &ref.FromHospitalID, &ref.FromWardID, &ref.ToHospitalID,
		&ref.Status, &ref.Reason, &ref.RejectionReason, &ref.ReservationID, &ref.TargetWardID,
		&ref.ReservationExpiresAt, &ref.AdmissionID, &ref.CreatedBy, &ref.CreatedAt, &ref.UpdatedAt)
	return &ref, err
}

func (r *repoPG) Create(ctx context.Context, ref *Referral) error {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referrals (id, patient_id, from_hospital_id, from_ward_id, to_hospital_id, status, reason, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		ref.ID, ref.PatientID, ref.FromHospitalID, ref.FromWardID, ref.ToHospitalID, string(ref.Status),
		ref.Reason, ref.CreatedBy).Scan(&ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

func (r *repoPG) get(ctx context.Context, query string, id uuid.UUID) (*Referral, error) {
	ref, err := scanReferral(r.conn(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrReferralNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return ref, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return r.get(ctx, `SELECT `+referralCols+` FROM referrals WHERE id = $1`, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return r.get(ctx, `SELECT `+referralCols+` FROM referrals WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) Update(ctx context.Context, ref *Referral, from Status) (bool, error) {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE referrals
		SET status = $3, rejection_reason = $4, reservation_id = $5, target_ward_id = $6,
			reservation_expires_at = $7, admission_id = $8, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`,
		ref.ID, string(from), string(ref.Status), ref.RejectionReason, ref.ReservationID, ref.TargetWardID,
		ref.ReservationExpiresAt, ref.AdmissionID).Scan(&ref.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update referral: %w", err)
	}
	return true, nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Referral, int, error) {
	column := "from_hospital_id"
	if f.Direction == DirectionIncoming {
		column = "to_hospital_id"
	}
	ds := dialect.From("referrals").Prepared(true).
		Where(goqu.Ex{column: f.HospitalID.String()})
	if f.Status != nil {
		ds = ds.Where(goqu.Ex{"status": string(*f.Status)})
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count referrals: %w", err)
	}

	query, args, err := p.Apply(ds.Select(referralColumns...).Order(goqu.I("created_at").Desc())).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	var items []*Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan referral: %w", err)
		}
		items = append(items, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
