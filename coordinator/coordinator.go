// Package coordinator orchestrates federated training rounds: it
// collects client updates, aggregates them into a global model,
// evaluates the result, and publishes a versioned checkpoint.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/rodneyosodo/fedstream/pkg/errors"
	"github.com/rodneyosodo/fedstream/pkg/params"
)

var (
	ErrInsufficientClients = errors.New("insufficient clients for round")
	ErrRoundClosed         = errors.New("round is not accepting updates")
)

// FitConfig is the per-round training configuration handed to clients.
type FitConfig struct {
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
}

// Config is the coordinator's configuration surface.
type Config struct {
	MinClients     int
	SampleFraction float64
	Rounds         int
	SaveDir        string
	RoundDeadline  time.Duration
	MaxAttempts    int
	PublishRetries int
	NumClasses     int
	Fit            FitConfig
}

func (c Config) Validate() error {
	if c.MinClients < 1 {
		return fmt.Errorf("%w: min clients must be at least 1, got %d", pkgerrors.ErrConfiguration, c.MinClients)
	}
	if c.SampleFraction <= 0 || c.SampleFraction > 1 {
		return fmt.Errorf("%w: sample fraction must be in (0,1], got %f", pkgerrors.ErrConfiguration, c.SampleFraction)
	}
	if c.Rounds < 1 {
		return fmt.Errorf("%w: rounds must be at least 1, got %d", pkgerrors.ErrConfiguration, c.Rounds)
	}
	if c.SaveDir == "" {
		return fmt.Errorf("%w: save directory is required", pkgerrors.ErrConfiguration)
	}
	if c.RoundDeadline <= 0 {
		return fmt.Errorf("%w: round deadline must be positive, got %s", pkgerrors.ErrConfiguration, c.RoundDeadline)
	}
	if c.NumClasses < 2 {
		return fmt.Errorf("%w: number of classes must be at least 2, got %d", pkgerrors.ErrConfiguration, c.NumClasses)
	}

	return nil
}

// ClientFailure records one client whose update was rejected during a
// round. Individual failures do not abort the round as long as the
// surviving subset satisfies the minimum client count.
type ClientFailure struct {
	ClientID string `json:"client_id"`
	Reason   string `json:"reason"`
}

// RoundInfo describes the in-progress round to polling clients.
type RoundInfo struct {
	Round         uint64    `json:"round"`
	State         string    `json:"state"`
	TargetClients int       `json:"target_clients"`
	Received      int       `json:"received"`
	Hyperparams   FitConfig `json:"hyperparams"`
}

// RoundRecord is the bookkeeping entry for a finished round attempt.
type RoundRecord struct {
	Round         uint64             `json:"round"`
	Completed     bool               `json:"completed"`
	NumUpdates    int                `json:"num_updates"`
	TotalSamples  int64              `json:"total_samples"`
	Failures      []ClientFailure    `json:"failures,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	EvalAvailable bool               `json:"eval_available"`
	CompletedAt   time.Time          `json:"completed_at"`
}

// Service is the coordinator's operation surface. SubmitUpdate may be
// called concurrently by many clients; Run drives the configured number
// of rounds and returns when they complete or an attempt budget is
// exhausted.
type Service interface {
	SubmitUpdate(ctx context.Context, update params.ClientUpdate) error
	SubmitUpdateCBOR(ctx context.Context, data []byte) error
	CurrentRound(ctx context.Context) (RoundInfo, error)
	RoundStatus(ctx context.Context, round uint64) (RoundRecord, error)
	Run(ctx context.Context) error
}
