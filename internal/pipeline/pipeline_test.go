package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawMessage
	index   atomic.Int64
	err     error
	errOnce atomic.Bool
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawMessage, error) {
	if m.err != nil && m.errOnce.CompareAndSwap(false, true) {
		return nil, m.err
	}
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   [][]domain.Report
	failures int
}

func (m *mockLoader) LoadBatch(_ context.Context, reports []domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, reports)
	return nil
}

func (m *mockLoader) batches() [][]domain.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.Report(nil), m.loaded...)
}

func runIDs() func() string {
	var n atomic.Int64
	return func() string { return "run-" + strconv.FormatInt(n.Add(1), 10) }
}

func makeMessage(t *testing.T, ev domain.Event, commits *atomic.Int64) domain.RawMessage {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return domain.RawMessage{
		Key:   []byte(ev.ID),
		Value: payload,
		Topic: "normalized-quake-events",
		Commit: func(context.Context) error {
			commits.Add(1)
			return nil
		},
	}
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	freezeClock(t)
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		makeMessage(t, quake("us1001", 34, -118, 0), &commits),
		makeMessage(t, quake("us1002", 34.05, -118, 5*time.Second), &commits),
	}}}
	ldr := &mockLoader{}
	eng, _, metrics := newEngine(t, engineSetup{})

	p := pipeline.New(ext, eng, ldr, runIDs(), slog.Default(), metrics, 50)
	require.Error(t, p.CheckReadiness(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	batches := ldr.batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, domain.OutcomeRendered, batches[0][0].Outcome)
	assert.Equal(t, "run-1", batches[0][0].RunID)
	assert.Equal(t, []string{"us1001"}, batches[0][1].Siblings)
	assert.Equal(t, int64(2), commits.Load())

	require.NoError(t, p.CheckReadiness(context.Background()))
	summary, ok := p.LastSummary()
	require.True(t, ok)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.ByOutcome[domain.OutcomeRendered])
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	ldr := &mockLoader{}
	eng, _, metrics := newEngine(t, engineSetup{})

	p := pipeline.New(ext, eng, ldr, runIDs(), slog.Default(), metrics, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.batches())
	_, ok := p.LastSummary()
	assert.False(t, ok)
}

func TestPipeline_Run_UndecodableMessageIsReported(t *testing.T) {
	freezeClock(t)
	var commits atomic.Int64
	bad := domain.RawMessage{
		Key:    []byte("garbled"),
		Value:  []byte("{not json"),
		Commit: func(context.Context) error { commits.Add(1); return nil },
	}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{bad}}}
	ldr := &mockLoader{}
	eng, _, metrics := newEngine(t, engineSetup{})

	p := pipeline.New(ext, eng, ldr, runIDs(), slog.Default(), metrics, 50)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	batches := ldr.batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "garbled", batches[0][0].EventID)
	assert.Equal(t, domain.OutcomeRejected, batches[0][0].Outcome)
	assert.Equal(t, int64(1), commits.Load(), "rejected messages are committed once reported")
}

func TestPipeline_Run_RetriesLoadWithoutCommitting(t *testing.T) {
	freezeClock(t)
	var commits atomic.Int64
	msg := makeMessage(t, quake("us1001", 34, -118, 0), &commits)
	ext := &mockExtractor{batches: [][]domain.RawMessage{{msg}, {msg}}}
	ldr := &mockLoader{failures: 1}
	eng, _, metrics := newEngine(t, engineSetup{})

	p := pipeline.New(ext, eng, ldr, runIDs(), slog.Default(), metrics, 50)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	// The first batch fails to publish and is not committed; its redelivery
	// finds the document already on disk.
	batches := ldr.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, domain.OutcomeSkippedExisting, batches[0][0].Outcome)
	assert.Equal(t, "run-2", batches[0][0].RunID)
	assert.Equal(t, int64(1), commits.Load())
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	freezeClock(t)
	var commits atomic.Int64
	ext := &mockExtractor{
		batches: [][]domain.RawMessage{{makeMessage(t, quake("us1001", 34, -118, 0), &commits)}},
		err:     errors.New("fetch failed"),
	}
	ldr := &mockLoader{}
	eng, _, metrics := newEngine(t, engineSetup{})

	p := pipeline.New(ext, eng, ldr, runIDs(), slog.Default(), metrics, 50)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	require.Len(t, ldr.batches(), 1)
	assert.Equal(t, int64(1), commits.Load())
}
