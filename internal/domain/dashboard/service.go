package dashboard

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bedlink/bedlink/internal/platform/apperr"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "dashboard").Logger(),
		now:    time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rate returns part/total as a percentage with one decimal.
func rate(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

func occupied(total, available, reserved int) int {
	n := total - available - reserved
	if n < 0 {
		return 0
	}
	return n
}

// Stats builds the dashboard of one hospital. Wards are sorted with the most
// available beds first.
func (s *Service) Stats(ctx context.Context, hospitalID uuid.UUID) (*Stats, error) {
	if hospitalID == uuid.Nil {
		return nil, apperr.Forbidden("user is not linked to a hospital")
	}
	now := s.now()

	var (
		wards  []WardStat
		counts Counts
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		wards, err = s.repo.WardStats(gctx, hospitalID)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.repo.Counts(gctx, hospitalID, startOfDay(now))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal("failed to fetch dashboard stats", err)
	}

	st := &Stats{
		HospitalID: hospitalID,
		Today: Today{
			Admissions: counts.AdmissionsToday,
			Discharges: counts.DischargesToday,
			NetChange:  counts.AdmissionsToday - counts.DischargesToday,
		},
		Referrals: Referrals{
			PendingIncoming: counts.PendingIncoming,
			PendingOutgoing: counts.PendingOutgoing,
		},
		Wards:       make([]WardBreakdown, 0, len(wards)),
		GeneratedAt: now.UTC(),
	}
	for _, w := range wards {
		occ := occupied(w.TotalBeds, w.AvailableBeds, w.ReservedBeds)
		st.Summary.TotalBeds += w.TotalBeds
		st.Summary.AvailableBeds += w.AvailableBeds
		st.Summary.ReservedBeds += w.ReservedBeds
		st.Summary.OccupiedBeds += occ
		st.Wards = append(st.Wards, WardBreakdown{
			ID:            w.ID,
			Name:          w.Name,
			Type:          w.Type,
			TotalBeds:     w.TotalBeds,
			AvailableBeds: w.AvailableBeds,
			ReservedBeds:  w.ReservedBeds,
			OccupiedBeds:  occ,
			OccupancyRate: rate(occ, w.TotalBeds),
		})
	}
	st.Summary.OccupancyRate = rate(st.Summary.OccupiedBeds, st.Summary.TotalBeds)
	sort.SliceStable(st.Wards, func(i, j int) bool {
		if st.Wards[i].AvailableBeds != st.Wards[j].AvailableBeds {
			return st.Wards[i].AvailableBeds > st.Wards[j].AvailableBeds
		}
		return st.Wards[i].Name < st.Wards[j].Name
	})
	return st, nil
}

// SystemStats aggregates every hospital.
func (s *Service) SystemStats(ctx context.Context) (*SystemStats, error) {
	now := s.now()
	c, err := s.repo.SystemCounts(ctx, startOfDay(now))
	if err != nil {
		return nil, apperr.Internal("failed to fetch system stats", err)
	}
	occ := occupied(c.TotalBeds, c.AvailableBeds, c.ReservedBeds)
	return &SystemStats{
		Hospitals: c.Hospitals,
		Beds: Summary{
			TotalBeds:     c.TotalBeds,
			AvailableBeds: c.AvailableBeds,
			ReservedBeds:  c.ReservedBeds,
			OccupiedBeds:  occ,
			OccupancyRate: rate(occ, c.TotalBeds),
		},
		AdmissionsToday:  c.AdmissionsToday,
		PendingReferrals: c.PendingReferrals,
		GeneratedAt:      now.UTC(),
	}, nil
}
