package coordinator

import (
	"fmt"

	"github.com/rodneyosodo/fedstream/pkg/aggregator"
	"github.com/rodneyosodo/fedstream/pkg/params"
)

// updateWire is the transport-boundary form of a client update: a flat
// list of named layers instead of the internal ParameterSet. Conversion
// happens here and nowhere else.
type updateWire struct {
	ClientID   string             `json:"client_id"`
	Layers     []params.Layer     `json:"params"`
	NumSamples int                `json:"num_samples"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

func (w updateWire) toClientUpdate() (params.ClientUpdate, error) {
	ps, err := params.New(w.Layers)
	if err != nil {
		return params.ClientUpdate{}, fmt.Errorf("%w: %s", aggregator.ErrInvalidUpdate, err.Error())
	}

	return params.ClientUpdate{
		ClientID:   w.ClientID,
		Params:     ps,
		NumSamples: w.NumSamples,
		Metrics:    w.Metrics,
	}, nil
}
