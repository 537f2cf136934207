package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/rodneyosodo/fedstream/coordinator"
	"github.com/rodneyosodo/fedstream/pkg/params"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) SubmitUpdate(ctx context.Context, update params.ClientUpdate) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit-update").Add(1)
		mm.latency.With("method", "submit-update").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SubmitUpdate(ctx, update)
}

func (mm *metricsMiddleware) SubmitUpdateCBOR(ctx context.Context, data []byte) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit-update-cbor").Add(1)
		mm.latency.With("method", "submit-update-cbor").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SubmitUpdateCBOR(ctx, data)
}

func (mm *metricsMiddleware) CurrentRound(ctx context.Context) (coordinator.RoundInfo, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "current-round").Add(1)
		mm.latency.With("method", "current-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CurrentRound(ctx)
}

func (mm *metricsMiddleware) RoundStatus(ctx context.Context, round uint64) (coordinator.RoundRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "round-status").Add(1)
		mm.latency.With("method", "round-status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.RoundStatus(ctx, round)
}

func (mm *metricsMiddleware) Run(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "run").Add(1)
		mm.latency.With("method", "run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Run(ctx)
}
