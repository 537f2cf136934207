package aggregator

import (
	"errors"
	"fmt"
)

var (
	ErrNoUpdates     = errors.New("no updates provided for aggregation")
	ErrInvalidUpdate = errors.New("invalid client update")

	ErrZeroWeight    = fmt.Errorf("%w: total sample count is zero", ErrInvalidUpdate)
	ErrShapeMismatch = fmt.Errorf("%w: parameter signature mismatch", ErrInvalidUpdate)
)
