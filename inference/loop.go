package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rodneyosodo/fedstream/pkg/checkpoint"
	pkgerrors "github.com/rodneyosodo/fedstream/pkg/errors"
	"github.com/rodneyosodo/fedstream/pkg/model"
	"github.com/rodneyosodo/fedstream/pkg/mqtt"
)

const (
	defPollInterval  = 2 * time.Second
	defStreamBackoff = 1 * time.Second
	defMaxFailures   = 30

	predictionsTopic = "fedstream/inference/predictions"
)

// Config holds the tunables of the inference loop.
type Config struct {
	// PollInterval bounds how often the checkpoint store is checked for
	// a newer model.
	PollInterval time.Duration
	// StreamBackoff is the pause between releasing a failed stream and
	// reacquiring it.
	StreamBackoff time.Duration
	// MaxStreamFailures caps consecutive failed reconnect cycles before
	// the loop gives up.
	MaxStreamFailures int
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defPollInterval
	}
	if c.StreamBackoff <= 0 {
		c.StreamBackoff = defStreamBackoff
	}
	if c.MaxStreamFailures <= 0 {
		c.MaxStreamFailures = defMaxFailures
	}
}

// CheckpointSource is the read-side view of the checkpoint store the
// loop needs to track the latest published model.
type CheckpointSource interface {
	LoadLatest() (checkpoint.Checkpoint, error)
	LatestMarker() (checkpoint.Marker, error)
}

// Loop consumes frames from a live stream and classifies them with the
// most recent published model, reloading whenever the checkpoint store
// advances.
type Loop struct {
	cfg       Config
	store     CheckpointSource
	opener    Opener
	processor *Processor
	pub       mqtt.Publisher
	logger    *slog.Logger

	mu     sync.RWMutex
	handle ModelHandle
	marker checkpoint.Marker
}

func NewLoop(cfg Config, store CheckpointSource, opener Opener, processor *Processor, pub mqtt.Publisher, logger *slog.Logger) (*Loop, error) {
	cfg.withDefaults()
	if store == nil || opener == nil || processor == nil {
		return nil, fmt.Errorf("%w: store, opener and processor are required", pkgerrors.ErrConfiguration)
	}
	if pub == nil {
		pub = mqtt.NewNoopPublisher()
	}

	return &Loop{
		cfg:       cfg,
		store:     store,
		opener:    opener,
		processor: processor,
		pub:       pub,
		logger:    logger,
	}, nil
}

// Handle returns the currently loaded model snapshot.
func (l *Loop) Handle() ModelHandle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.handle
}

// Run drives the loop until the context is cancelled. A missing
// checkpoint at startup is fatal; once running, a vanished or failing
// stream is retried with a fixed backoff up to the configured failure
// budget.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.reload(); err != nil {
		return fmt.Errorf("no usable checkpoint at startup: %w", err)
	}

	stream, err := l.opener(ctx)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer func() {
		if stream != nil {
			stream.Release()
		}
	}()

	lastPoll := time.Now()
	meter := newThroughputMeter()
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("stopping inference loop")

			return nil
		}

		if time.Since(lastPoll) >= l.cfg.PollInterval {
			lastPoll = time.Now()
			if err := l.maybeReload(); err != nil {
				l.logger.Warn("model reload check failed", slog.String("error", err.Error()))
			}
		}

		frame, err := stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("stopping inference loop")

				return nil
			}

			failures++
			l.logger.Warn("error reading frame, attempting to reconnect",
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()),
			)
			stream.Release()
			stream = nil

			if failures > l.cfg.MaxStreamFailures {
				return fmt.Errorf("%w: gave up after %d consecutive failures", ErrStreamRead, failures)
			}

			select {
			case <-ctx.Done():
				l.logger.Info("stopping inference loop")

				return nil
			case <-time.After(l.cfg.StreamBackoff):
			}

			stream, err = l.opener(ctx)
			if err != nil {
				l.logger.Warn("failed to reopen stream", slog.String("error", err.Error()))
				stream = &deadStream{}
			}

			continue
		}
		failures = 0

		input, err := l.processor.Preprocess(frame.Image, l.handle.Classifier.InputDim())
		if err != nil {
			l.logger.Warn("failed to preprocess frame", slog.String("error", err.Error()))

			continue
		}

		probs, err := l.handle.Classifier.Predict(input)
		if err != nil {
			l.logger.Warn("prediction failed", slog.String("error", err.Error()))

			continue
		}

		pred := l.processor.GetPrediction(probs)
		l.publishPrediction(ctx, frame, pred)

		if rate, ok := meter.Tick(time.Now()); ok {
			l.logger.Info("inference throughput",
				slog.Float64("frames_per_second", rate),
				slog.Uint64("frames_total", meter.Frames()),
				slog.Uint64("model_version", l.handle.SourceVersion),
			)
		}
	}
}

// maybeReload compares the store marker against the one seen at the last
// load and swaps the model handle when it changed.
func (l *Loop) maybeReload() error {
	marker, err := l.store.LatestMarker()
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil
		}

		return err
	}
	if marker.Equal(l.marker) {
		return nil
	}

	return l.reload()
}

func (l *Loop) reload() error {
	// The marker is captured before the checkpoint is read. If a new
	// round lands in between, the stored marker is older than the loaded
	// model and the next poll reloads; captured the other way round, the
	// loop would pin a stale model under the newest marker.
	marker, err := l.store.LatestMarker()
	if err != nil {
		return err
	}
	ckpt, err := l.store.LoadLatest()
	if err != nil {
		return err
	}

	clf, err := model.FromParams(ckpt.Params)
	if err != nil {
		return fmt.Errorf("failed to materialize model from round %d: %w", ckpt.Round, err)
	}

	l.mu.Lock()
	l.handle = ModelHandle{
		Classifier:    clf,
		SourceVersion: ckpt.Round,
		LoadedAt:      time.Now().UTC(),
	}
	l.marker = marker
	l.mu.Unlock()
	l.logger.Info("model loaded",
		slog.Uint64("round", ckpt.Round),
		slog.Int("num_classes", clf.NumClasses()),
	)

	return nil
}

type predictionEvent struct {
	Label        string    `json:"label"`
	Confidence   float64   `json:"confidence"`
	Class        int       `json:"class"`
	ModelVersion uint64    `json:"model_version"`
	CapturedAt   time.Time `json:"captured_at"`
}

func (l *Loop) publishPrediction(ctx context.Context, frame Frame, pred Prediction) {
	event := predictionEvent{
		Label:        pred.Label,
		Confidence:   pred.Confidence,
		Class:        pred.Class,
		ModelVersion: l.handle.SourceVersion,
		CapturedAt:   frame.CapturedAt,
	}
	if err := l.pub.Publish(ctx, predictionsTopic, event); err != nil {
		l.logger.Warn("failed to publish prediction", slog.String("error", err.Error()))
	}
}

// deadStream stands in for a stream that could not be reopened so the
// next loop iteration counts another failure instead of dereferencing
// nil.
type deadStream struct{}

func (deadStream) Read(context.Context) (Frame, error) {
	return Frame{}, ErrStreamRead
}

func (deadStream) Release() error { return nil }
