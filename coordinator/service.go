package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rodneyosodo/fedstream/pkg/aggregator"
	"github.com/rodneyosodo/fedstream/pkg/checkpoint"
	pkgerrors "github.com/rodneyosodo/fedstream/pkg/errors"
	"github.com/rodneyosodo/fedstream/pkg/evaluator"
	"github.com/rodneyosodo/fedstream/pkg/mqtt"
	"github.com/rodneyosodo/fedstream/pkg/params"
	"github.com/rodneyosodo/fedstream/pkg/storage"
)

const (
	defMaxAttempts    = 3
	defPublishRetries = 2
	publishBackoff    = time.Second
	roundKeyTemplate  = "round-%d"
	metricsTopic      = "fedstream/rounds/metrics"
)

type roundRun struct {
	round     *Round
	collector *collector
}

type service struct {
	cfg      Config
	agg      aggregator.Aggregator
	eval     *evaluator.Evaluator
	provider evaluator.SourceProvider
	store    *checkpoint.Store
	records  storage.Storage
	pub      mqtt.Publisher
	labels   map[int]string
	logger   *slog.Logger

	mu           sync.Mutex
	current      *roundRun
	nextRound    uint64
	knownClients map[string]struct{}
}

// NewService builds the coordinator. The evaluation provider may be nil;
// rounds then publish without an evaluation report. The store must be
// opened exclusively by this process.
func NewService(
	cfg Config,
	store *checkpoint.Store,
	records storage.Storage,
	agg aggregator.Aggregator,
	eval *evaluator.Evaluator,
	provider evaluator.SourceProvider,
	pub mqtt.Publisher,
	labels map[int]string,
	logger *slog.Logger,
) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defMaxAttempts
	}
	if cfg.PublishRetries < 0 {
		cfg.PublishRetries = defPublishRetries
	}
	if pub == nil {
		pub = mqtt.NewNoopPublisher()
	}

	rounds, err := store.ListRounds()
	if err != nil {
		return nil, err
	}
	next := uint64(1)
	if len(rounds) > 0 {
		next = rounds[len(rounds)-1] + 1
	}

	return &service{
		cfg:          cfg,
		agg:          agg,
		eval:         eval,
		provider:     provider,
		store:        store,
		records:      records,
		pub:          pub,
		labels:       labels,
		logger:       logger,
		nextRound:    next,
		knownClients: make(map[string]struct{}),
	}, nil
}

func (svc *service) SubmitUpdate(ctx context.Context, update params.ClientUpdate) error {
	svc.mu.Lock()
	run := svc.current
	svc.mu.Unlock()

	if run == nil {
		return ErrRoundClosed
	}

	if err := run.collector.submit(update); err != nil {
		return err
	}

	svc.mu.Lock()
	svc.knownClients[update.ClientID] = struct{}{}
	svc.mu.Unlock()

	return nil
}

func (svc *service) SubmitUpdateCBOR(ctx context.Context, data []byte) error {
	var wire updateWire
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: decode CBOR update: %s", aggregator.ErrInvalidUpdate, err.Error())
	}

	update, err := wire.toClientUpdate()
	if err != nil {
		svc.mu.Lock()
		run := svc.current
		svc.mu.Unlock()
		if run != nil && wire.ClientID != "" {
			run.collector.recordFailure(wire.ClientID, err.Error())
		}

		return err
	}

	return svc.SubmitUpdate(ctx, update)
}

func (svc *service) CurrentRound(ctx context.Context) (RoundInfo, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.current == nil {
		return RoundInfo{
			Round:       svc.nextRound,
			State:       "idle",
			Hyperparams: svc.cfg.Fit,
		}, nil
	}

	return RoundInfo{
		Round:         svc.current.round.Number,
		State:         svc.current.round.State(),
		TargetClients: svc.current.collector.target,
		Received:      svc.current.collector.received(),
		Hyperparams:   svc.cfg.Fit,
	}, nil
}

func (svc *service) RoundStatus(ctx context.Context, round uint64) (RoundRecord, error) {
	data, err := svc.records.Get(ctx, fmt.Sprintf(roundKeyTemplate, round))
	if err != nil {
		return RoundRecord{}, err
	}
	record, ok := data.(RoundRecord)
	if !ok {
		return RoundRecord{}, pkgerrors.ErrInvalidData
	}

	return record, nil
}

// Run drives the configured number of rounds. A failed attempt does not
// advance the round number; the next attempt reuses it. Run returns nil
// after the final round completes, or the last error once a round's
// attempt budget is exhausted.
func (svc *service) Run(ctx context.Context) error {
	for completed := 0; completed < svc.cfg.Rounds; completed++ {
		svc.mu.Lock()
		round := svc.nextRound
		svc.mu.Unlock()

		var lastErr error
		for attempt := 1; attempt <= svc.cfg.MaxAttempts; attempt++ {
			lastErr = svc.runRound(ctx, round)
			if lastErr == nil {
				break
			}
			if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
				return lastErr
			}
			svc.logger.Warn("round attempt failed",
				slog.Uint64("round", round),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", svc.cfg.MaxAttempts),
				slog.Any("error", lastErr),
			)
		}
		if lastErr != nil {
			return fmt.Errorf("round %d failed after %d attempts: %w", round, svc.cfg.MaxAttempts, lastErr)
		}

		svc.mu.Lock()
		svc.nextRound = round + 1
		svc.mu.Unlock()
	}

	return nil
}

func (svc *service) runRound(ctx context.Context, number uint64) error {
	round := NewRound(number, svc.logger)
	col := newCollector(svc.targetClients())

	svc.mu.Lock()
	svc.current = &roundRun{round: round, collector: col}
	svc.mu.Unlock()
	defer func() {
		svc.mu.Lock()
		svc.current = nil
		svc.mu.Unlock()
	}()

	svc.logger.Info("round started",
		slog.Uint64("round", number),
		slog.Int("target_clients", col.target),
		slog.String("deadline", svc.cfg.RoundDeadline.String()),
	)

	if err := col.wait(ctx, svc.cfg.RoundDeadline); err != nil {
		svc.failRound(round, err)

		return err
	}

	updates, failures := col.snapshot()

	if len(updates) < svc.cfg.MinClients {
		err := fmt.Errorf("%w: %d of minimum %d clients submitted in round %d",
			ErrInsufficientClients, len(updates), svc.cfg.MinClients, number)
		svc.failRound(round, err)
		svc.recordRound(ctx, RoundRecord{
			Round:       number,
			NumUpdates:  len(updates),
			Failures:    failures,
			CompletedAt: time.Now().UTC(),
		})

		return err
	}

	svc.event(round, EventCloseWindow)

	aggregated, err := svc.agg.Aggregate(updates)
	if err != nil {
		svc.failRound(round, err)

		return err
	}
	svc.event(round, EventAggregated)

	metrics := svc.roundMetrics(updates)

	report, evalErr := svc.evaluate(ctx, aggregated)
	switch {
	case evalErr != nil:
		metrics["eval_available"] = 0
		svc.logger.Warn("evaluation unavailable, publishing without report",
			slog.Uint64("round", number),
			slog.Any("error", evalErr),
		)
	default:
		metrics["eval_available"] = 1
		for k, v := range report.Fields() {
			metrics[k] = v
		}
		svc.logger.Info("server-side evaluation complete",
			slog.Uint64("round", number),
			slog.Int("samples", report.TotalSamples()),
			slog.Float64("accuracy", report.OverallAccuracy),
			slog.Float64("loss", report.AverageLoss),
		)
	}
	svc.event(round, EventEvaluated)

	ckpt, err := svc.publish(ctx, number, aggregated, metrics)
	if err != nil {
		svc.failRound(round, err)

		return err
	}
	svc.event(round, EventPublished)

	record := RoundRecord{
		Round:         number,
		Completed:     true,
		NumUpdates:    len(updates),
		TotalSamples:  totalSamples(updates),
		Failures:      failures,
		Metrics:       metrics,
		EvalAvailable: evalErr == nil,
		CompletedAt:   ckpt.CreatedAt,
	}
	svc.recordRound(ctx, record)

	if err := svc.pub.Publish(ctx, metricsTopic, record); err != nil {
		svc.logger.Warn("failed to publish round metrics",
			slog.Uint64("round", number),
			slog.Any("error", err),
		)
	}

	svc.logger.Info("round complete",
		slog.Uint64("round", number),
		slog.Int("num_clients", len(updates)),
		slog.Int("num_failures", len(failures)),
	)

	return nil
}

func (svc *service) evaluate(ctx context.Context, aggregated params.ParameterSet) (evaluator.Report, error) {
	if svc.provider == nil {
		return evaluator.Report{}, evaluator.ErrUnavailable
	}

	src, err := svc.provider()
	if err != nil {
		return evaluator.Report{}, err
	}

	return svc.eval.Evaluate(ctx, aggregated, src)
}

// publish retries the checkpoint save with the cached aggregation
// result; aggregation is pure so the retry inputs are identical.
func (svc *service) publish(ctx context.Context, number uint64, aggregated params.ParameterSet, metrics map[string]float64) (checkpoint.Checkpoint, error) {
	var lastErr error
	for attempt := 0; attempt <= svc.cfg.PublishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return checkpoint.Checkpoint{}, ctx.Err()
			case <-time.After(publishBackoff):
			}
		}

		ckpt, err := svc.store.Save(number, aggregated, metrics)
		if err == nil {
			return ckpt, nil
		}
		lastErr = err
		svc.logger.Warn("checkpoint publish failed",
			slog.Uint64("round", number),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}

	return checkpoint.Checkpoint{}, lastErr
}

func (svc *service) roundMetrics(updates []params.ClientUpdate) map[string]float64 {
	metrics := map[string]float64{
		"num_clients":   float64(len(updates)),
		"total_samples": float64(totalSamples(updates)),
	}

	// Sample-weighted mean of the accuracy each client reported from
	// its local evaluation, when present.
	var weighted, weights float64
	for _, u := range updates {
		acc, ok := u.Metrics["accuracy"]
		if !ok {
			continue
		}
		weighted += acc * float64(u.NumSamples)
		weights += float64(u.NumSamples)
	}
	if weights > 0 {
		metrics["client_accuracy"] = weighted / weights
	}

	return metrics
}

func (svc *service) targetClients() int {
	svc.mu.Lock()
	known := len(svc.knownClients)
	svc.mu.Unlock()

	target := int(math.Ceil(svc.cfg.SampleFraction * float64(known)))
	if target < svc.cfg.MinClients {
		target = svc.cfg.MinClients
	}

	return target
}

func (svc *service) recordRound(ctx context.Context, record RoundRecord) {
	key := fmt.Sprintf(roundKeyTemplate, record.Round)
	err := svc.records.Create(ctx, key, record)
	if errors.Is(err, pkgerrors.ErrEntityExists) {
		err = svc.records.Update(ctx, key, record)
	}
	if err != nil {
		svc.logger.Warn("failed to record round",
			slog.Uint64("round", record.Round),
			slog.Any("error", err),
		)
	}
}

func (svc *service) failRound(round *Round, cause error) {
	if err := round.FSM.Event(EventFail, cause); err != nil {
		svc.logger.Warn("round state transition failed",
			slog.Uint64("round", round.Number),
			slog.String("event", EventFail),
			slog.Any("error", err),
		)
	}
}

func (svc *service) event(round *Round, name string) {
	if err := round.FSM.Event(name); err != nil {
		svc.logger.Warn("round state transition failed",
			slog.Uint64("round", round.Number),
			slog.String("event", name),
			slog.Any("error", err),
		)
	}
}

func totalSamples(updates []params.ClientUpdate) int64 {
	var total int64
	for _, u := range updates {
		total += int64(u.NumSamples)
	}

	return total
}
