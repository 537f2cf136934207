// Package model materializes a ParameterSet into an executable
// classifier. The coordinator treats architectures as opaque named
// tensors; only the evaluation and inference paths need a runnable
// model, and both use this package.
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/rodneyosodo/fedstream/pkg/params"
)

const (
	weightLayer = "weight"
	biasLayer   = "bias"
)

var ErrUnsupportedArchitecture = errors.New("unsupported model architecture")

// Classifier maps a preprocessed input vector to class probabilities.
type Classifier interface {
	Predict(input []float64) ([]float64, error)
	NumClasses() int
	InputDim() int
}

// Linear is a softmax classifier over a single dense layer: the layout
// produced by the federated training clients ("weight" [C x D] and
// "bias" [C]).
type Linear struct {
	weights []float64
	bias    []float64
	classes int
	dim     int
}

// FromParams materializes a classifier from a parameter set.
func FromParams(ps params.ParameterSet) (*Linear, error) {
	w, ok := ps.Tensor(weightLayer)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q layer", ErrUnsupportedArchitecture, weightLayer)
	}
	if len(w.Shape) != 2 {
		return nil, fmt.Errorf("%w: %q must be 2-dimensional, got shape %v", ErrUnsupportedArchitecture, weightLayer, w.Shape)
	}

	b, ok := ps.Tensor(biasLayer)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q layer", ErrUnsupportedArchitecture, biasLayer)
	}

	classes, dim := w.Shape[0], w.Shape[1]
	if len(b.Data) != classes {
		return nil, fmt.Errorf("%w: %q has %d entries, expected %d", ErrUnsupportedArchitecture, biasLayer, len(b.Data), classes)
	}

	weights := make([]float64, len(w.Data))
	copy(weights, w.Data)
	bias := make([]float64, len(b.Data))
	copy(bias, b.Data)

	return &Linear{
		weights: weights,
		bias:    bias,
		classes: classes,
		dim:     dim,
	}, nil
}

// Predict returns softmax class probabilities for the input vector.
func (l *Linear) Predict(input []float64) ([]float64, error) {
	if len(input) != l.dim {
		return nil, fmt.Errorf("input has %d features, model expects %d", len(input), l.dim)
	}

	logits := make([]float64, l.classes)
	for c := range logits {
		sum := l.bias[c]
		row := l.weights[c*l.dim : (c+1)*l.dim]
		for i, x := range input {
			sum += row[i] * x
		}
		logits[c] = sum
	}

	return softmax(logits), nil
}

func (l *Linear) NumClasses() int {
	return l.classes
}

func (l *Linear) InputDim() int {
	return l.dim
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}

	return probs
}
