package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedlink/bedlink/internal/domain/admission"
	"github.com/bedlink/bedlink/internal/domain/dashboard"
	"github.com/bedlink/bedlink/internal/domain/reservation"
	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/auth"
	"github.com/bedlink/bedlink/internal/platform/memstore"
)

// seed builds one hospital with two wards:
//
//	Adult    4 beds: one admitted yesterday, one reserved
//	Paeds    2 beds: two admitted today, one of them discharged
func seed(t *testing.T) (*dashboard.Service, auth.Actor) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 13, 22, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s := memstore.New()
	ledger := ward.NewService(s.Hospitals(), s.Wards(), zerolog.Nop())
	reservations := reservation.NewService(s.Reservations(), ledger, s, reservation.DefaultConfig(), zerolog.Nop())
	reservations.SetClock(clock)
	admissions := admission.NewService(s.Patients(), s.Admissions(), ledger, reservations, s, zerolog.Nop())
	admissions.SetClock(clock)
	svc := dashboard.NewService(s.Dashboard(), zerolog.Nop())
	svc.SetClock(clock)

	h := &ward.Hospital{Name: "Mwananyamala"}
	require.NoError(t, ledger.CreateHospital(ctx, h))
	require.NoError(t, ledger.CreateHospital(ctx, &ward.Hospital{Name: "Amana"}))
	actor := auth.Actor{UserID: "admin-1", HospitalID: h.ID, Roles: []string{auth.RoleAdmin}}

	newWard := func(name string, beds int) *ward.Ward {
		w, err := ledger.CreateWard(ctx, actor, ward.CreateWardRequest{Name: name, Type: "general", TotalBeds: &beds})
		require.NoError(t, err)
		return w
	}
	admit := func(w *ward.Ward) *admission.Result {
		r, err := admissions.Admit(ctx, actor, admission.AdmitRequest{
			WardID:     w.ID,
			PatientRef: admission.PatientRef{Patient: &admission.PatientInput{FullName: "Dashboard Patient", Sex: "Other"}},
		})
		require.NoError(t, err)
		return r
	}

	adult := newWard("Adult", 4)
	paeds := newWard("Paeds", 2)
	admit(adult)

	now = time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)
	_, _, err := reservations.Reserve(ctx, actor, reservation.ReserveRequest{WardID: adult.ID})
	require.NoError(t, err)
	admit(paeds)
	r := admit(paeds)
	_, err = admissions.Discharge(ctx, actor, r.Admission.ID)
	require.NoError(t, err)
	return svc, actor
}

func TestStats(t *testing.T) {
	svc, actor := seed(t)

	st, err := svc.Stats(context.Background(), actor.HospitalID)
	require.NoError(t, err)

	assert.Equal(t, dashboard.Summary{
		TotalBeds:     6,
		AvailableBeds: 3,
		ReservedBeds:  1,
		OccupiedBeds:  2,
		OccupancyRate: 33.3,
	}, st.Summary)
	assert.Equal(t, dashboard.Today{Admissions: 2, Discharges: 1, NetChange: 1}, st.Today)

	require.Len(t, st.Wards, 2)
	assert.Equal(t, "Adult", st.Wards[0].Name)
	assert.Equal(t, 2, st.Wards[0].AvailableBeds)
	assert.Equal(t, 1, st.Wards[0].ReservedBeds)
	assert.Equal(t, 1, st.Wards[0].OccupiedBeds)
	assert.Equal(t, 25.0, st.Wards[0].OccupancyRate)
	assert.Equal(t, "Paeds", st.Wards[1].Name)
	assert.Equal(t, 50.0, st.Wards[1].OccupancyRate)
}

func TestStats_RequiresHospital(t *testing.T) {
	svc, _ := seed(t)

	_, err := svc.Stats(context.Background(), uuid.Nil)
	assert.Equal(t, apperr.ReasonForbiddenActor, apperr.ReasonOf(err))
}

func TestStats_EmptyHospital(t *testing.T) {
	svc, _ := seed(t)

	st, err := svc.Stats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Summary.TotalBeds)
	assert.Zero(t, st.Summary.OccupancyRate)
	assert.Empty(t, st.Wards)
}

func TestSystemStats(t *testing.T) {
	svc, _ := seed(t)

	st, err := svc.SystemStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Hospitals)
	assert.Equal(t, 6, st.Beds.TotalBeds)
	assert.Equal(t, 2, st.Beds.OccupiedBeds)
	assert.Equal(t, 2, st.AdmissionsToday)
	assert.Equal(t, 0, st.PendingReferrals)
}
