package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rodneyosodo/fedstream/coordinator"
	"github.com/rodneyosodo/fedstream/pkg/aggregator"
	"github.com/rodneyosodo/fedstream/pkg/api"
	"github.com/rodneyosodo/fedstream/pkg/params"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxUpdateSize = 1024 * 1024 * 100

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(loggingErrorEncoder(logger)),
	}

	mux.Route("/updates", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			submitUpdateEndpoint(svc),
			decodeUpdateReq,
			api.EncodeResponse,
			opts...,
		), "submit-update").ServeHTTP)
		r.Post("/cbor", otelhttp.NewHandler(kithttp.NewServer(
			submitUpdateCBOREndpoint(svc),
			decodeUpdateCBORReq,
			api.EncodeResponse,
			opts...,
		), "submit-update-cbor").ServeHTTP)
	})

	mux.Route("/rounds", func(r chi.Router) {
		r.Get("/current", otelhttp.NewHandler(kithttp.NewServer(
			currentRoundEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "current-round").ServeHTTP)
		r.Get("/{round}/status", otelhttp.NewHandler(kithttp.NewServer(
			roundStatusEndpoint(svc),
			decodeRoundStatusReq,
			api.EncodeResponse,
			opts...,
		), "round-status").ServeHTTP)
	})

	mux.Get("/health", health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeUpdateReq(ctx context.Context, r *http.Request) (any, error) {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, api.ContentTypeCBOR) {
		return decodeUpdateCBORReq(ctx, r)
	}
	if !strings.Contains(ct, api.ContentType) {
		return nil, errors.Join(aggregator.ErrInvalidUpdate, errors.New("unsupported content type"))
	}

	var wire struct {
		ClientID   string             `json:"client_id"`
		Layers     []params.Layer     `json:"params"`
		NumSamples int                `json:"num_samples"`
		Metrics    map[string]float64 `json:"metrics,omitempty"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateSize)).Decode(&wire); err != nil {
		return nil, errors.Join(aggregator.ErrInvalidUpdate, err)
	}

	ps, err := params.New(wire.Layers)
	if err != nil {
		return nil, errors.Join(aggregator.ErrInvalidUpdate, err)
	}

	return updateReq{
		update: params.ClientUpdate{
			ClientID:   wire.ClientID,
			Params:     ps,
			NumSamples: wire.NumSamples,
			Metrics:    wire.Metrics,
			ReceivedAt: time.Now().UTC(),
		},
	}, nil
}

func decodeUpdateCBORReq(ctx context.Context, r *http.Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateSize))
	if err != nil {
		return nil, errors.Join(aggregator.ErrInvalidUpdate, err)
	}

	return updateCBORReq{payload: data}, nil
}

func decodeEmptyReq(_ context.Context, _ *http.Request) (any, error) {
	return nil, nil
}

func decodeRoundStatusReq(_ context.Context, r *http.Request) (any, error) {
	round, err := strconv.ParseUint(chi.URLParam(r, "round"), 10, 64)
	if err != nil {
		return nil, errors.Join(aggregator.ErrInvalidUpdate, err)
	}

	return roundStatusReq{round: round}, nil
}

func loggingErrorEncoder(logger *slog.Logger) kithttp.ErrorEncoder {
	return func(ctx context.Context, err error, w http.ResponseWriter) {
		logger.WarnContext(ctx, "failed to process request", slog.String("error", err.Error()))
		api.EncodeError(ctx, err, w)
	}
}

func health(service, instanceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		res := map[string]string{
			"status":      "pass",
			"service":     service,
			"instance_id": instanceID,
		}
		w.Header().Set("Content-Type", api.ContentType)
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(res); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}
