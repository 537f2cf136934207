package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rodneyosodo/fedstream/pkg/aggregator"
	"github.com/rodneyosodo/fedstream/pkg/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectorParams(t *testing.T, shape []int) params.ParameterSet {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	ps, err := params.New([]params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: shape, Data: make([]float64, n)}},
	})
	require.NoError(t, err)

	return ps
}

func TestCollectorSubmit(t *testing.T) {
	c := newCollector(2)
	ps := collectorParams(t, []int{2, 2})

	require.NoError(t, c.submit(params.ClientUpdate{ClientID: "a", Params: ps, NumSamples: 1}))
	assert.Equal(t, 1, c.received())

	require.NoError(t, c.submit(params.ClientUpdate{ClientID: "b", Params: ps, NumSamples: 1}))

	// Target reached; wait returns immediately.
	require.NoError(t, c.wait(context.Background(), time.Minute))
}

func TestCollectorAcceptsStragglersAfterTarget(t *testing.T) {
	c := newCollector(2)
	ps := collectorParams(t, []int{2, 2})

	require.NoError(t, c.submit(params.ClientUpdate{ClientID: "a", Params: ps, NumSamples: 1}))
	require.NoError(t, c.submit(params.ClientUpdate{ClientID: "b", Params: ps, NumSamples: 1}))

	// A third client landing before the snapshot is still part of the
	// round and must not disturb the already-full window.
	require.NoError(t, c.submit(params.ClientUpdate{ClientID: "c", Params: ps, NumSamples: 1}))
	require.NoError(t, c.wait(context.Background(), time.Minute))

	updates, failures := c.snapshot()
	assert.Len(t, updates, 3)
	assert.Empty(t, failures)
}

func TestCollectorRejectsDuplicates(t *testing.T) {
	c := newCollector(5)
	ps := collectorParams(t, []int{2})

	require.NoError(t, c.submit(params.ClientUpdate{ClientID: "a", Params: ps, NumSamples: 1}))
	err := c.submit(params.ClientUpdate{ClientID: "a", Params: ps, NumSamples: 1})
	assert.ErrorIs(t, err, aggregator.ErrInvalidUpdate)
	assert.Equal(t, 1, c.received())
}

func TestCollectorRecordsMalformedUpdates(t *testing.T) {
	c := newCollector(5)
	ps := collectorParams(t, []int{2})

	require.NoError(t, c.submit(params.ClientUpdate{ClientID: "a", Params: ps, NumSamples: 1}))

	err := c.submit(params.ClientUpdate{ClientID: "empty", NumSamples: 1})
	assert.ErrorIs(t, err, aggregator.ErrInvalidUpdate)

	err = c.submit(params.ClientUpdate{ClientID: "negative", Params: ps, NumSamples: -3})
	assert.ErrorIs(t, err, aggregator.ErrInvalidUpdate)

	err = c.submit(params.ClientUpdate{ClientID: "mismatch", Params: collectorParams(t, []int{3}), NumSamples: 1})
	assert.ErrorIs(t, err, aggregator.ErrShapeMismatch)

	updates, failures := c.snapshot()
	assert.Len(t, updates, 1)
	assert.Len(t, failures, 3)
}

func TestCollectorClosedAfterSnapshot(t *testing.T) {
	c := newCollector(5)
	ps := collectorParams(t, []int{2})

	require.NoError(t, c.submit(params.ClientUpdate{ClientID: "a", Params: ps, NumSamples: 1}))
	c.snapshot()

	err := c.submit(params.ClientUpdate{ClientID: "late", Params: ps, NumSamples: 1})
	assert.ErrorIs(t, err, ErrRoundClosed)
	assert.Equal(t, 1, c.received())
}

func TestCollectorWaitDeadline(t *testing.T) {
	c := newCollector(5)
	start := time.Now()
	require.NoError(t, c.wait(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCollectorWaitCancelled(t *testing.T) {
	c := newCollector(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.wait(ctx, time.Minute), context.Canceled)
}

func TestCollectorConcurrentSubmissions(t *testing.T) {
	const clients = 20
	c := newCollector(clients)
	ps := collectorParams(t, []int{4})

	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = c.submit(params.ClientUpdate{
				ClientID:   string(rune('a' + id)),
				Params:     ps,
				NumSamples: 1,
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, c.wait(context.Background(), time.Minute))
	updates, failures := c.snapshot()
	assert.Len(t, updates, clients)
	assert.Empty(t, failures)
}
