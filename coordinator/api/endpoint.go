package api

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/rodneyosodo/fedstream/coordinator"
	pkgerrors "github.com/rodneyosodo/fedstream/pkg/errors"
)

func submitUpdateEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		switch req := request.(type) {
		case updateReq:
			if err := req.validate(); err != nil {
				return updateResponse{}, err
			}
			if err := svc.SubmitUpdate(ctx, req.update); err != nil {
				return updateResponse{}, err
			}
		case updateCBORReq:
			if err := req.validate(); err != nil {
				return updateResponse{}, err
			}
			if err := svc.SubmitUpdateCBOR(ctx, req.payload); err != nil {
				return updateResponse{}, err
			}
		default:
			return updateResponse{}, pkgerrors.ErrInvalidData
		}

		return updateResponse{Status: "accepted"}, nil
	}
}

func submitUpdateCBOREndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(updateCBORReq)
		if !ok {
			return updateResponse{}, pkgerrors.ErrInvalidData
		}
		if err := req.validate(); err != nil {
			return updateResponse{}, err
		}

		if err := svc.SubmitUpdateCBOR(ctx, req.payload); err != nil {
			return updateResponse{}, err
		}

		return updateResponse{Status: "accepted"}, nil
	}
}

func currentRoundEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		info, err := svc.CurrentRound(ctx)
		if err != nil {
			return roundInfoResponse{}, err
		}

		return roundInfoResponse{RoundInfo: info}, nil
	}
}

func roundStatusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(roundStatusReq)
		if !ok {
			return roundStatusResponse{}, pkgerrors.ErrInvalidData
		}
		if err := req.validate(); err != nil {
			return roundStatusResponse{}, err
		}

		record, err := svc.RoundStatus(ctx, req.round)
		if err != nil {
			return roundStatusResponse{}, err
		}

		return roundStatusResponse{RoundRecord: record}, nil
	}
}
