package api

import (
	"net/http"

	"github.com/rodneyosodo/fedstream/coordinator"
	"github.com/rodneyosodo/fedstream/pkg/api"
)

var (
	_ api.Response = (*updateResponse)(nil)
	_ api.Response = (*roundInfoResponse)(nil)
	_ api.Response = (*roundStatusResponse)(nil)
)

type updateResponse struct {
	Status string `json:"status"`
}

func (u updateResponse) Code() int {
	return http.StatusAccepted
}

func (u updateResponse) Headers() map[string]string {
	return map[string]string{}
}

func (u updateResponse) Empty() bool {
	return false
}

type roundInfoResponse struct {
	coordinator.RoundInfo
}

func (r roundInfoResponse) Code() int {
	return http.StatusOK
}

func (r roundInfoResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundInfoResponse) Empty() bool {
	return false
}

type roundStatusResponse struct {
	coordinator.RoundRecord
}

func (r roundStatusResponse) Code() int {
	return http.StatusOK
}

func (r roundStatusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundStatusResponse) Empty() bool {
	return false
}
