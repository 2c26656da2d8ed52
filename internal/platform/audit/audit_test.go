package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{}

func (failingSink) Write(context.Context, Entry) error { return errors.New("sink down") }

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestAsync_DeliversToSink(t *testing.T) {
	mem := NewMemory()
	a := NewAsync(mem, zerolog.Nop(), time.Second)

	a.Record(context.Background(), Entry{Action: ActionReferralAccept, Table: "referrals", RecordID: "r1"})
	a.Wait()

	entries := mem.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionReferralAccept, entries[0].Action)
	assert.False(t, entries[0].At.IsZero())
}

func TestAsync_SinkFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	a := NewAsync(failingSink{}, zerolog.New(&buf), time.Second)

	a.Record(context.Background(), Entry{Action: ActionWardCreate, Table: "wards", RecordID: "w1"})
	a.Wait()

	assert.Contains(t, buf.String(), "audit write failed")
	assert.Contains(t, buf.String(), "sink down")
}

func TestAsync_SurvivesCancelledRequestContext(t *testing.T) {
	mem := NewMemory()
	a := NewAsync(mem, zerolog.Nop(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Record(ctx, Entry{Action: ActionAdmissionDischarge, Table: "admissions", RecordID: "a1"})
	a.Wait()

	assert.Len(t, mem.Entries(), 1)
}

func TestKafkaSink_KeysByRecordID(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{writer: w}
	hospitalID := uuid.New()

	err := s.Write(context.Background(), Entry{
		ActorID:    "u1",
		HospitalID: hospitalID,
		Action:     ActionReservationCreate,
		Table:      "bed_reservations",
		RecordID:   "res-1",
		NewData:    map[string]int{"available_beds": 2},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "res-1", string(msg.Key))

	var decoded Entry
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, hospitalID, decoded.HospitalID)
	assert.Equal(t, ActionReservationCreate, decoded.Action)
}

func TestLogSink_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(zerolog.New(&buf))

	require.NoError(t, s.Write(context.Background(), Entry{Action: ActionReferralCancel, RecordID: "r9"}))
	assert.Contains(t, buf.String(), `"action":"referral.cancel"`)
	assert.Contains(t, buf.String(), `"record_id":"r9"`)
}

func TestJSONOrNil(t *testing.T) {
	v, err := jsonOrNil(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = jsonOrNil(map[string]string{"status": "accepted"})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.JSONEq(t, `{"status":"accepted"}`, *v)
}
