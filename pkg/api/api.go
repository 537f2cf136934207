package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rodneyosodo/fedstream/coordinator"
	"github.com/rodneyosodo/fedstream/pkg/aggregator"
	pkgerrors "github.com/rodneyosodo/fedstream/pkg/errors"
)

const (
	ContentType     = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Response lets endpoint responses control their HTTP status and headers.
type Response interface {
	Code() int
	Headers() map[string]string
	Empty() bool
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response interface{}) error {
	if ar, ok := response.(Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	switch {
	case errors.Is(err, aggregator.ErrInvalidUpdate),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrInvalidData):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, coordinator.ErrRoundClosed):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, pkgerrors.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	enc := map[string]string{"error": err.Error()}
	if err := json.NewEncoder(w).Encode(enc); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
