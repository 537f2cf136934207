package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// SourceProvider yields a fresh BatchSource for each round, satisfying
// the restartable-sequence contract without requiring any single source
// to support rewinding.
type SourceProvider func() (BatchSource, error)

type fileSource struct {
	batches []Batch
	next    int
}

// NewFileProvider reads a JSON array of batches from path on each call.
// The file is the server-side held-out set; its absence or corruption is
// reported as ErrUnavailable so a round can degrade gracefully.
func NewFileProvider(path string, batchSize int) SourceProvider {
	return func() (BatchSource, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
		}

		var set Batch
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %s", ErrUnavailable, path, err.Error())
		}
		if len(set.Inputs) != len(set.Labels) {
			return nil, fmt.Errorf("%w: %s has %d inputs and %d labels", ErrUnavailable, path, len(set.Inputs), len(set.Labels))
		}
		if batchSize <= 0 {
			batchSize = 64
		}

		var batches []Batch
		for start := 0; start < len(set.Inputs); start += batchSize {
			end := min(start+batchSize, len(set.Inputs))
			batches = append(batches, Batch{
				Inputs: set.Inputs[start:end],
				Labels: set.Labels[start:end],
			})
		}

		return &fileSource{batches: batches}, nil
	}
}

func (f *fileSource) Next(_ context.Context) (Batch, error) {
	if f.next >= len(f.batches) {
		return Batch{}, io.EOF
	}
	batch := f.batches[f.next]
	f.next++

	return batch, nil
}

// SliceSource wraps pre-built batches, mostly for tests.
func SliceSource(batches []Batch) BatchSource {
	return &fileSource{batches: batches}
}
