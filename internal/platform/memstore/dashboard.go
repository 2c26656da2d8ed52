package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/internal/domain/admission"
	"github.com/bedlink/bedlink/internal/domain/dashboard"
	"github.com/bedlink/bedlink/internal/domain/referral"
	"github.com/bedlink/bedlink/internal/domain/reservation"
)

func (s *Store) Dashboard() dashboard.Repository { return dashboardRepo{s} }

type dashboardRepo struct{ s *Store }

func (r dashboardRepo) WardStats(ctx context.Context, hospitalID uuid.UUID) ([]dashboard.WardStat, error) {
	defer r.s.lock(ctx)()
	var stats []dashboard.WardStat
	for _, w := range r.s.state.wards {
		if w.HospitalID != hospitalID {
			continue
		}
		stats = append(stats, dashboard.WardStat{
			ID:            w.ID,
			Name:          w.Name,
			Type:          w.Type,
			TotalBeds:     w.TotalBeds,
			AvailableBeds: w.AvailableBeds,
			ReservedBeds:  r.s.activeReservations(w.ID),
		})
	}
	return stats, nil
}

func (r dashboardRepo) Counts(ctx context.Context, hospitalID uuid.UUID, since time.Time) (dashboard.Counts, error) {
	defer r.s.lock(ctx)()
	var c dashboard.Counts
	for _, a := range r.s.state.admissions {
		if a.HospitalID != hospitalID {
			continue
		}
		if !a.AdmittedAt.Before(since) {
			c.AdmissionsToday++
		}
		if a.Status == admission.StatusDischarged && a.DischargedAt != nil && !a.DischargedAt.Before(since) {
			c.DischargesToday++
		}
	}
	for _, ref := range r.s.state.referrals {
		if ref.Status != referral.StatusPending {
			continue
		}
		if ref.ToHospitalID == hospitalID {
			c.PendingIncoming++
		}
		if ref.FromHospitalID == hospitalID {
			c.PendingOutgoing++
		}
	}
	return c, nil
}

func (r dashboardRepo) SystemCounts(ctx context.Context, since time.Time) (dashboard.SystemCounts, error) {
	defer r.s.lock(ctx)()
	c := dashboard.SystemCounts{Hospitals: len(r.s.state.hospitals)}
	for _, w := range r.s.state.wards {
		c.TotalBeds += w.TotalBeds
		c.AvailableBeds += w.AvailableBeds
	}
	for _, res := range r.s.state.reservations {
		if res.Status == reservation.StatusActive {
			c.ReservedBeds++
		}
	}
	for _, a := range r.s.state.admissions {
		if !a.AdmittedAt.Before(since) {
			c.AdmissionsToday++
		}
	}
	for _, ref := range r.s.state.referrals {
		if ref.Status == referral.StatusPending {
			c.PendingReferrals++
		}
	}
	return c, nil
}
