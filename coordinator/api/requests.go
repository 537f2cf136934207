package api

import (
	"fmt"

	"github.com/rodneyosodo/fedstream/pkg/aggregator"
	"github.com/rodneyosodo/fedstream/pkg/params"
)

type updateReq struct {
	update params.ClientUpdate
}

func (r *updateReq) validate() error {
	if r.update.ClientID == "" {
		return fmt.Errorf("%w: missing client ID", aggregator.ErrInvalidUpdate)
	}
	if r.update.Params.Empty() {
		return fmt.Errorf("%w: missing parameters", aggregator.ErrInvalidUpdate)
	}

	return nil
}

type updateCBORReq struct {
	payload []byte
}

func (r *updateCBORReq) validate() error {
	if len(r.payload) == 0 {
		return fmt.Errorf("%w: empty payload", aggregator.ErrInvalidUpdate)
	}

	return nil
}

type roundStatusReq struct {
	round uint64
}

func (r *roundStatusReq) validate() error {
	if r.round == 0 {
		return fmt.Errorf("%w: round number must be positive", aggregator.ErrInvalidUpdate)
	}

	return nil
}
