package checkpoint

import "errors"

var (
	ErrNotFound = errors.New("checkpoint not found")
	ErrWrite    = errors.New("checkpoint write failed")
)
