package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// PGSink appends to the audit_logs table.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) Write(ctx context.Context, e Entry) error {
	oldData, err := jsonOrNil(e.OldData)
	if err != nil {
		return err
	}
	newData, err := jsonOrNil(e.NewData)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, hospital_id, action, table_name, record_id, old_data, new_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8)`,
		e.ActorID, e.HospitalID, e.Action, e.Table, e.RecordID, oldData, newData, e.At)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func jsonOrNil(v interface{}) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit data: %w", err)
	}
	s := string(b)
	return &s, nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries as JSON, keyed by record id so the history of
// one record stays on one partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (s *KafkaSink) Write(ctx context.Context, e Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.RecordID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(e.Action)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish audit entry: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink writes entries to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(_ context.Context, e Entry) error {
	s.logger.Info().
		Str("actor_id", e.ActorID).
		Str("hospital_id", e.HospitalID.String()).
		Str("action", e.Action).
		Str("table", e.Table).
		Str("record_id", e.RecordID).
		Interface("old_data", e.OldData).
		Interface("new_data", e.NewData).
		Time("at", e.At).
		Msg("audit")
	return nil
}
