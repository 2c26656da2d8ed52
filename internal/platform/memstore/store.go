// Package memstore keeps every repository in process memory. A single mutex
// serializes units of work, and a failed unit of work restores the snapshot
// taken when it began. It backs STORE_BACKEND=memory and the package tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bedlink/bedlink/internal/domain/admission"
	"github.com/bedlink/bedlink/internal/domain/referral"
	"github.com/bedlink/bedlink/internal/domain/reservation"
	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/db"
)

type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
}

type state struct {
	hospitals    map[uuid.UUID]ward.Hospital
	wards        map[uuid.UUID]ward.Ward
	patients     map[uuid.UUID]admission.Patient
	admissions   map[uuid.UUID]admission.Admission
	reservations map[uuid.UUID]reservation.Reservation
	referrals    map[uuid.UUID]referral.Referral
}

func newState() state {
	return state{
		hospitals:    map[uuid.UUID]ward.Hospital{},
		wards:        map[uuid.UUID]ward.Ward{},
		patients:     map[uuid.UUID]admission.Patient{},
		admissions:   map[uuid.UUID]admission.Admission{},
		reservations: map[uuid.UUID]reservation.Reservation{},
		referrals:    map[uuid.UUID]referral.Referral{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies the maps. Records are stored by value and their pointer fields
// are never written in place, so a shallow copy of each map is a snapshot.
func (st state) clone() state {
	return state{
		hospitals:    copyMap(st.hospitals),
		wards:        copyMap(st.wards),
		patients:     copyMap(st.patients),
		admissions:   copyMap(st.admissions),
		reservations: copyMap(st.reservations),
		referrals:    copyMap(st.referrals),
	}
}

func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// SetClock replaces time.Now for timestamps the store assigns.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock takes the store mutex unless ctx already runs inside one of this
// store's units of work. Use as defer s.lock(ctx)().
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTx implements db.TxRunner.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, runHooks := db.WithCommitHooks(ctx)
	err := func() error {
		s.mu.Lock()
		snapshot := s.state.clone()
		committed := false
		defer func() {
			if !committed {
				s.state = snapshot
			}
			s.mu.Unlock()
		}()

		if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
			return err
		}
		committed = true
		return nil
	}()
	if err != nil {
		return err
	}
	runHooks()
	return nil
}

var _ db.TxRunner = (*Store)(nil)

func (s *Store) Hospitals() ward.HospitalRepository { return hospitalRepo{s} }
func (s *Store) Wards() ward.WardRepository { return wardRepo{s} }
func (s *Store) Patients() admission.PatientRepository { return patientRepo{s} }
func (s *Store) Admissions() admission.AdmissionRepository { return admissionRepo{s} }
func (s *Store) Reservations() reservation.Repository { return reservationRepo{s} }
func (s *Store) Referrals() referral.Repository { return referralRepo{s} }
