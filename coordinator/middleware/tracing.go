package middleware

import (
	"context"

	"github.com/rodneyosodo/fedstream/coordinator"
	"github.com/rodneyosodo/fedstream/pkg/params"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) SubmitUpdate(ctx context.Context, update params.ClientUpdate) error {
	ctx, span := tm.tracer.Start(ctx, "submit-update", trace.WithAttributes(
		attribute.String("client_id", update.ClientID),
		attribute.Int("num_samples", update.NumSamples),
	))
	defer span.End()

	return tm.svc.SubmitUpdate(ctx, update)
}

func (tm *tracing) SubmitUpdateCBOR(ctx context.Context, data []byte) error {
	ctx, span := tm.tracer.Start(ctx, "submit-update-cbor", trace.WithAttributes(
		attribute.Int("payload_bytes", len(data)),
	))
	defer span.End()

	return tm.svc.SubmitUpdateCBOR(ctx, data)
}

func (tm *tracing) CurrentRound(ctx context.Context) (coordinator.RoundInfo, error) {
	ctx, span := tm.tracer.Start(ctx, "current-round")
	defer span.End()

	return tm.svc.CurrentRound(ctx)
}

func (tm *tracing) RoundStatus(ctx context.Context, round uint64) (coordinator.RoundRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "round-status", trace.WithAttributes(
		attribute.Int64("round", int64(round)),
	))
	defer span.End()

	return tm.svc.RoundStatus(ctx, round)
}

func (tm *tracing) Run(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "run")
	defer span.End()

	return tm.svc.Run(ctx)
}
