package kafka

import (
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-catalog-loader/internal/config"
	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

func TestMapMessageToRaw(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("us1001"),
		Value:     []byte(`{"id":"us1001"}`),
		Topic:     "normalized-quake-events",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("us")},
		},
	}

	raw := mapMessageToRaw(msg)

	assert.Equal(t, []byte("us1001"), raw.Key)
	assert.JSONEq(t, `{"id":"us1001"}`, string(raw.Value))
	assert.Equal(t, "normalized-quake-events", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "us", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestReader_MapMessageSetsCommit(t *testing.T) {
	r := &Reader{}
	raw := r.mapMessage(kafkago.Message{Key: []byte("k")})
	assert.NotNil(t, raw.Commit)
	assert.Equal(t, []byte("k"), raw.Key)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	report := domain.Report{
		RunID:       "run-1",
		EventID:     "us1001",
		ProductType: domain.ProductMomentTensor,
		Outcome:     domain.OutcomeRendered,
		TriggerID:   "us7000a",
		Candidates:  1,
		ProcessedAt: now,
	}

	msg, err := serializeToMessage(report)
	require.NoError(t, err)

	assert.Equal(t, []byte("us1001"), msg.Key)
	assert.Contains(t, string(msg.Value), `"outcome":"rendered"`)
	assert.Contains(t, string(msg.Value), `"trigger_id":"us7000a"`)
	require.Len(t, msg.Headers, 4)
	assert.Equal(t, "outcome", msg.Headers[0].Key)
	assert.Equal(t, []byte("rendered"), msg.Headers[0].Value)
	assert.Equal(t, "run_id", msg.Headers[1].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[1].Value)
	assert.Equal(t, []byte("moment-tensor"), msg.Headers[2].Value)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[3].Value)
}

func TestNewWriter_UsesSinkTopic(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaSinkTopic: "quake-product-reports"}
	w := NewWriter(cfg, slog.Default())
	defer w.Close()

	assert.Equal(t, "quake-product-reports", w.writer.Topic)
	assert.Equal(t, kafkago.RequireAll, w.writer.RequiredAcks)
}
