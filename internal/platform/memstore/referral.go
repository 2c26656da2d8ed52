package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/internal/domain/referral"
	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/pkg/pagination"
)

type referralRepo struct{ s *Store }

func (r referralRepo) Create(ctx context.Context, ref *referral.Referral) error {
	defer r.s.lock(ctx)()
	if ref.FromHospitalID == ref.ToHospitalID {
		return apperr.Validation("referral must target a different hospital")
	}
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	now := r.s.now().UTC()
	ref.CreatedAt, ref.UpdatedAt = now, now
	r.s.state.referrals[ref.ID] = *ref
	return nil
}

func (r referralRepo) GetByID(ctx context.Context, id uuid.UUID) (*referral.Referral, error) {
	defer r.s.lock(ctx)()
	ref, ok := r.s.state.referrals[id]
	if !ok {
		return nil, apperr.ErrReferralNotFound
	}
	return &ref, nil
}

func (r referralRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*referral.Referral, error) {
	return r.GetByID(ctx, id)
}

func (r referralRepo) Update(ctx context.Context, ref *referral.Referral, from referral.Status) (bool, error) {
	defer r.s.lock(ctx)()
	stored, ok := r.s.state.referrals[ref.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	stored.Status = ref.Status
	stored.RejectionReason = ref.RejectionReason
	stored.ReservationID = ref.ReservationID
	stored.TargetWardID = ref.TargetWardID
	stored.ReservationExpiresAt = ref.ReservationExpiresAt
	stored.AdmissionID = ref.AdmissionID
	stored.UpdatedAt = r.s.now().UTC()
	r.s.state.referrals[ref.ID] = stored
	ref.UpdatedAt = stored.UpdatedAt
	return true, nil
}

func (r referralRepo) List(ctx context.Context, f referral.ListFilter, p pagination.Params) ([]*referral.Referral, int, error) {
	defer r.s.lock(ctx)()
	var items []*referral.Referral
	for _, ref := range r.s.state.referrals {
		hospital := ref.FromHospitalID
		if f.Direction == referral.DirectionIncoming {
			hospital = ref.ToHospitalID
		}
		if hospital != f.HospitalID {
			continue
		}
		if f.Status != nil && ref.Status != *f.Status {
			continue
		}
		ref := ref
		items = append(items, &ref)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	start, end := p.Window(len(items))
	return items[start:end], len(items), nil
}
