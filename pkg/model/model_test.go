package model_test

import (
	"testing"

	"github.com/rodneyosodo/fedstream/pkg/model"
	"github.com/rodneyosodo/fedstream/pkg/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildParams(t *testing.T, layers []params.Layer) params.ParameterSet {
	t.Helper()
	ps, err := params.New(layers)
	require.NoError(t, err)

	return ps
}

func TestFromParams(t *testing.T) {
	ps := buildParams(t, []params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 3}, Data: []float64{1, 0, 0, 0, 1, 0}}},
		{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: []float64{0, 0}}},
	})

	clf, err := model.FromParams(ps)
	require.NoError(t, err)
	assert.Equal(t, 2, clf.NumClasses())
	assert.Equal(t, 3, clf.InputDim())
}

func TestFromParamsErrors(t *testing.T) {
	tests := []struct {
		name   string
		layers []params.Layer
	}{
		{
			name: "missing weight",
			layers: []params.Layer{
				{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: []float64{0, 0}}},
			},
		},
		{
			name: "missing bias",
			layers: []params.Layer{
				{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}},
			},
		},
		{
			name: "weight not 2d",
			layers: []params.Layer{
				{Name: "weight", Tensor: params.Tensor{Shape: []int{4}, Data: []float64{1, 2, 3, 4}}},
				{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: []float64{0, 0}}},
			},
		},
		{
			name: "bias size mismatch",
			layers: []params.Layer{
				{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}},
				{Name: "bias", Tensor: params.Tensor{Shape: []int{3}, Data: []float64{0, 0, 0}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.FromParams(buildParams(t, tt.layers))
			assert.ErrorIs(t, err, model.ErrUnsupportedArchitecture)
		})
	}
}

func TestPredict(t *testing.T) {
	ps := buildParams(t, []params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: []int{3, 3}, Data: []float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		}}},
		{Name: "bias", Tensor: params.Tensor{Shape: []int{3}, Data: []float64{0, 0, 0}}},
	})
	clf, err := model.FromParams(ps)
	require.NoError(t, err)

	probs, err := clf.Predict([]float64{10, 0, 0})
	require.NoError(t, err)
	require.Len(t, probs, 3)

	var sum float64
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, probs[0], probs[1])
	assert.Greater(t, probs[0], probs[2])
}

func TestPredictDimensionMismatch(t *testing.T) {
	ps := buildParams(t, []params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 4}, Data: make([]float64, 8)}},
		{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: make([]float64, 2)}},
	})
	clf, err := model.FromParams(ps)
	require.NoError(t, err)

	_, err = clf.Predict([]float64{1, 2})
	assert.Error(t, err)
}

func TestPredictNumericallyStable(t *testing.T) {
	ps := buildParams(t, []params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 1}, Data: []float64{1000, -1000}}},
		{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: []float64{0, 0}}},
	})
	clf, err := model.FromParams(ps)
	require.NoError(t, err)

	probs, err := clf.Predict([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, probs[0], 1e-9)
	assert.InDelta(t, 0.0, probs[1], 1e-9)
}
