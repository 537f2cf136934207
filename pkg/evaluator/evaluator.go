// Package evaluator scores an aggregated model against a held-out
// labeled set, producing overall accuracy, per-class accuracy, and
// prediction-distribution statistics.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rodneyosodo/fedstream/pkg/model"
	"github.com/rodneyosodo/fedstream/pkg/params"
)

var ErrUnavailable = errors.New("evaluation data unavailable")

// Batch is one fixed-size chunk of the held-out set.
type Batch struct {
	Inputs [][]float64 `json:"inputs"`
	Labels []int       `json:"labels"`
}

// BatchSource is a lazy, finite sequence of batches. Next returns io.EOF
// when the sequence is exhausted. The evaluator makes a single pass and
// never re-reads.
type BatchSource interface {
	Next(ctx context.Context) (Batch, error)
}

// LossFunc scores one example given the predicted class probabilities
// and the ground-truth label.
type LossFunc func(probs []float64, label int) float64

// CrossEntropy is the default loss over the class-probability output.
func CrossEntropy(probs []float64, label int) float64 {
	const eps = 1e-12
	if label < 0 || label >= len(probs) {
		return math.Inf(1)
	}

	return -math.Log(probs[label] + eps)
}

type Evaluator struct {
	numClasses int
	loss       LossFunc
}

func New(numClasses int, opts ...Option) *Evaluator {
	e := &Evaluator{
		numClasses: numClasses,
		loss:       CrossEntropy,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

type Option func(*Evaluator)

func WithLoss(loss LossFunc) Option {
	return func(e *Evaluator) {
		e.loss = loss
	}
}

// Evaluate materializes the parameters and makes one pass over the
// held-out set, accumulating per-class sample, correct, and prediction
// counts. It does not mutate the parameter set.
func (e *Evaluator) Evaluate(ctx context.Context, ps params.ParameterSet, src BatchSource) (Report, error) {
	if src == nil {
		return Report{}, fmt.Errorf("%w: no batch source configured", ErrUnavailable)
	}

	clf, err := model.FromParams(ps)
	if err != nil {
		return Report{}, fmt.Errorf("materialize model for evaluation: %w", err)
	}

	report := newReport(e.numClasses)
	var lossSum float64
	var batches int

	for {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Report{}, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
		}
		if len(batch.Inputs) != len(batch.Labels) {
			return Report{}, fmt.Errorf("%w: batch has %d inputs and %d labels", ErrUnavailable, len(batch.Inputs), len(batch.Labels))
		}
		if len(batch.Inputs) == 0 {
			continue
		}

		var batchLoss float64
		for i, input := range batch.Inputs {
			probs, err := clf.Predict(input)
			if err != nil {
				return Report{}, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
			}

			predicted := argmax(probs)
			label := batch.Labels[i]

			report.observe(label, predicted)
			batchLoss += e.loss(probs, label)
		}

		lossSum += batchLoss / float64(len(batch.Inputs))
		batches++
	}

	report.finalize(lossSum, batches)

	return report, nil
}

func argmax(probs []float64) int {
	best := 0
	for i, v := range probs {
		if v > probs[best] {
			best = i
		}
	}

	return best
}
