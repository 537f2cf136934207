package params_test

import (
	"encoding/json"
	"testing"

	"github.com/rodneyosodo/fedstream/pkg/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		layers      []params.Layer
		expectError bool
	}{
		{
			name: "valid layers",
			layers: []params.Layer{
				{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}},
				{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: []float64{0.1, 0.2}}},
			},
			expectError: false,
		},
		{
			name: "empty layer name",
			layers: []params.Layer{
				{Name: "", Tensor: params.Tensor{Shape: []int{1}, Data: []float64{1}}},
			},
			expectError: true,
		},
		{
			name: "duplicate layer name",
			layers: []params.Layer{
				{Name: "weight", Tensor: params.Tensor{Shape: []int{1}, Data: []float64{1}}},
				{Name: "weight", Tensor: params.Tensor{Shape: []int{1}, Data: []float64{2}}},
			},
			expectError: true,
		},
		{
			name: "shape data mismatch",
			layers: []params.Layer{
				{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 3}, Data: []float64{1, 2}}},
			},
			expectError: true,
		},
		{
			name:        "no layers",
			layers:      nil,
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := params.New(tt.layers)
			if tt.expectError {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.layers), ps.Len())
		})
	}
}

func TestParameterSetOrderPreserved(t *testing.T) {
	layers := []params.Layer{
		{Name: "conv1", Tensor: params.Tensor{Shape: []int{1}, Data: []float64{1}}},
		{Name: "conv2", Tensor: params.Tensor{Shape: []int{1}, Data: []float64{2}}},
		{Name: "fc", Tensor: params.Tensor{Shape: []int{1}, Data: []float64{3}}},
	}
	ps, err := params.New(layers)
	require.NoError(t, err)

	assert.Equal(t, []string{"conv1", "conv2", "fc"}, ps.Names())
}

func TestSignature(t *testing.T) {
	a, err := params.New([]params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 3}, Data: make([]float64, 6)}},
		{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: make([]float64, 2)}},
	})
	require.NoError(t, err)

	b, err := params.New([]params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 3}, Data: []float64{9, 9, 9, 9, 9, 9}}},
		{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: []float64{9, 9}}},
	})
	require.NoError(t, err)

	c, err := params.New([]params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: []int{3, 2}, Data: make([]float64, 6)}},
		{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: make([]float64, 2)}},
	})
	require.NoError(t, err)

	assert.Equal(t, "weight:2x3;bias:2", a.Signature())
	assert.True(t, a.SameSignature(b))
	assert.False(t, a.SameSignature(c))
}

func TestCloneIsDeep(t *testing.T) {
	ps, err := params.New([]params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: []int{2}, Data: []float64{1, 2}}},
	})
	require.NoError(t, err)

	clone := ps.Clone()
	ct, ok := clone.Tensor("weight")
	require.True(t, ok)
	ct.Data[0] = 99

	orig, ok := ps.Tensor("weight")
	require.True(t, ok)
	assert.Equal(t, 1.0, orig.Data[0])
}

func TestJSONRoundTrip(t *testing.T) {
	ps, err := params.New([]params.Layer{
		{Name: "weight", Tensor: params.Tensor{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}},
		{Name: "bias", Tensor: params.Tensor{Shape: []int{2}, Data: []float64{0.5, -0.5}}},
	})
	require.NoError(t, err)

	data, err := json.Marshal(ps)
	require.NoError(t, err)

	var decoded params.ParameterSet
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, ps.Names(), decoded.Names())
	assert.Equal(t, ps.Signature(), decoded.Signature())
	dt, ok := decoded.Tensor("weight")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3, 4}, dt.Data)
}

func TestUnmarshalRejectsInvalid(t *testing.T) {
	var decoded params.ParameterSet
	err := json.Unmarshal([]byte(`[{"name":"","tensor":{"shape":[1],"data":[1]}}]`), &decoded)
	assert.Error(t, err)
}
