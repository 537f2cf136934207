// Package aggregator combines per-client parameter sets into one global
// set using sample-count-weighted averaging (federated averaging).
package aggregator

import (
	"fmt"

	"github.com/rodneyosodo/fedstream/pkg/params"
)

type Aggregator interface {
	Aggregate(updates []params.ClientUpdate) (params.ParameterSet, error)
}

type FedAvg struct{}

func NewFedAvg() Aggregator {
	return &FedAvg{}
}

// Aggregate computes, per layer, the example-count-weighted mean across
// all updates. It is a pure function: the inputs are not mutated and the
// result is reproducible up to floating-point rounding for any
// permutation of the updates.
func (f *FedAvg) Aggregate(updates []params.ClientUpdate) (params.ParameterSet, error) {
	if len(updates) == 0 {
		return params.ParameterSet{}, ErrNoUpdates
	}

	reference := updates[0].Params
	if reference.Empty() {
		return params.ParameterSet{}, fmt.Errorf("%w: client %q sent no parameters", ErrInvalidUpdate, updates[0].ClientID)
	}

	var totalSamples int64
	for _, u := range updates {
		if u.NumSamples < 0 {
			return params.ParameterSet{}, fmt.Errorf("%w: client %q reported negative sample count %d", ErrInvalidUpdate, u.ClientID, u.NumSamples)
		}
		if !u.Params.SameSignature(reference) {
			return params.ParameterSet{}, fmt.Errorf("%w: client %q", ErrShapeMismatch, u.ClientID)
		}
		totalSamples += int64(u.NumSamples)
	}
	if totalSamples == 0 {
		return params.ParameterSet{}, ErrZeroWeight
	}

	names := reference.Names()
	sums := make(map[string][]float64, len(names))
	for _, name := range names {
		t, _ := reference.Tensor(name)
		sums[name] = make([]float64, len(t.Data))
	}

	for _, u := range updates {
		weight := float64(u.NumSamples)
		for _, name := range names {
			t, _ := u.Params.Tensor(name)
			sum := sums[name]
			for i, v := range t.Data {
				sum[i] += v * weight
			}
		}
	}

	norm := float64(totalSamples)
	layers := make([]params.Layer, 0, len(names))
	for _, name := range names {
		ref, _ := reference.Tensor(name)
		data := sums[name]
		for i := range data {
			data[i] /= norm
		}
		shape := make([]int, len(ref.Shape))
		copy(shape, ref.Shape)
		layers = append(layers, params.Layer{Name: name, Tensor: params.Tensor{Shape: shape, Data: data}})
	}

	aggregated, err := params.New(layers)
	if err != nil {
		return params.ParameterSet{}, fmt.Errorf("%w: %s", ErrInvalidUpdate, err.Error())
	}

	return aggregated, nil
}
