// Package params holds the data-model unit shared by the coordinator and
// the inference side: a model's weights as an ordered collection of named
// tensors. A ParameterSet is immutable once constructed; any change
// produces a new set.
package params

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tensor is a dense numeric tensor in row-major order.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Elements returns the number of elements implied by the shape.
func (t Tensor) Elements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}

	return n
}

func (t Tensor) clone() Tensor {
	c := Tensor{
		Shape: make([]int, len(t.Shape)),
		Data:  make([]float64, len(t.Data)),
	}
	copy(c.Shape, t.Shape)
	copy(c.Data, t.Data)

	return c
}

// Layer pairs a tensor with its name for ordered construction.
type Layer struct {
	Name   string `json:"name"`
	Tensor `json:"tensor"`
}

// ParameterSet is an ordered mapping from layer name to tensor.
type ParameterSet struct {
	names   []string
	tensors map[string]Tensor
}

// New builds a ParameterSet from ordered layers. Every layer must have a
// unique non-empty name and a shape consistent with its data length.
func New(layers []Layer) (ParameterSet, error) {
	ps := ParameterSet{
		names:   make([]string, 0, len(layers)),
		tensors: make(map[string]Tensor, len(layers)),
	}

	for _, l := range layers {
		if l.Name == "" {
			return ParameterSet{}, fmt.Errorf("layer with empty name")
		}
		if _, ok := ps.tensors[l.Name]; ok {
			return ParameterSet{}, fmt.Errorf("duplicate layer %q", l.Name)
		}
		if l.Elements() != len(l.Data) {
			return ParameterSet{}, fmt.Errorf("layer %q: shape %v implies %d elements, got %d", l.Name, l.Shape, l.Elements(), len(l.Data))
		}
		ps.names = append(ps.names, l.Name)
		ps.tensors[l.Name] = l.Tensor
	}

	return ps, nil
}

// Names returns the layer names in construction order.
func (ps ParameterSet) Names() []string {
	names := make([]string, len(ps.names))
	copy(names, ps.names)

	return names
}

// Tensor returns the named tensor. Callers must treat the returned slices
// as read-only; use Clone for a private copy.
func (ps ParameterSet) Tensor(name string) (Tensor, bool) {
	t, ok := ps.tensors[name]

	return t, ok
}

// Len returns the number of layers.
func (ps ParameterSet) Len() int {
	return len(ps.names)
}

// Empty reports whether the set has no layers.
func (ps ParameterSet) Empty() bool {
	return len(ps.names) == 0
}

// Signature returns the layer-name/shape fingerprint of the set. Two sets
// used in the same round must have equal signatures.
func (ps ParameterSet) Signature() string {
	var b strings.Builder
	for i, name := range ps.names {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(name)
		b.WriteByte(':')
		t := ps.tensors[name]
		for j, d := range t.Shape {
			if j > 0 {
				b.WriteByte('x')
			}
			b.WriteString(strconv.Itoa(d))
		}
	}

	return b.String()
}

// SameSignature reports whether both sets share the layer-name set and
// per-layer shapes.
func (ps ParameterSet) SameSignature(other ParameterSet) bool {
	return ps.Signature() == other.Signature()
}

// Clone returns a deep copy of the set.
func (ps ParameterSet) Clone() ParameterSet {
	layers := make([]Layer, 0, len(ps.names))
	for _, name := range ps.names {
		layers = append(layers, Layer{Name: name, Tensor: ps.tensors[name].clone()})
	}
	c, _ := New(layers)

	return c
}

// MarshalJSON encodes the set as an ordered array of layers.
func (ps ParameterSet) MarshalJSON() ([]byte, error) {
	layers := make([]Layer, 0, len(ps.names))
	for _, name := range ps.names {
		layers = append(layers, Layer{Name: name, Tensor: ps.tensors[name]})
	}

	return json.Marshal(layers)
}

// UnmarshalJSON decodes an ordered array of layers.
func (ps *ParameterSet) UnmarshalJSON(data []byte) error {
	var layers []Layer
	if err := json.Unmarshal(data, &layers); err != nil {
		return err
	}

	decoded, err := New(layers)
	if err != nil {
		return err
	}
	*ps = decoded

	return nil
}

// ClientUpdate is one client's locally trained parameters plus its local
// sample count. Produced once per client per round, consumed exactly once
// by the aggregator.
type ClientUpdate struct {
	ClientID   string             `json:"client_id"`
	Params     ParameterSet       `json:"params"`
	NumSamples int                `json:"num_samples"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	ReceivedAt time.Time          `json:"received_at,omitempty"`
}
