package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rodneyosodo/fedstream/coordinator"
	"github.com/rodneyosodo/fedstream/coordinator/api"
	pkgerrors "github.com/rodneyosodo/fedstream/pkg/errors"
	"github.com/rodneyosodo/fedstream/pkg/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	submitted     []params.ClientUpdate
	submittedCBOR [][]byte
	submitErr     error
	info          coordinator.RoundInfo
	records       map[uint64]coordinator.RoundRecord
}

func (m *mockService) SubmitUpdate(_ context.Context, update params.ClientUpdate) error {
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submitted = append(m.submitted, update)

	return nil
}

func (m *mockService) SubmitUpdateCBOR(_ context.Context, data []byte) error {
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submittedCBOR = append(m.submittedCBOR, data)

	return nil
}

func (m *mockService) CurrentRound(_ context.Context) (coordinator.RoundInfo, error) {
	return m.info, nil
}

func (m *mockService) RoundStatus(_ context.Context, round uint64) (coordinator.RoundRecord, error) {
	record, ok := m.records[round]
	if !ok {
		return coordinator.RoundRecord{}, pkgerrors.ErrNotFound
	}

	return record, nil
}

func (m *mockService) Run(_ context.Context) error {
	return nil
}

func newTestServer(svc coordinator.Service) *httptest.Server {
	return httptest.NewServer(api.MakeHandler(svc, slog.Default(), "test-instance"))
}

func updateBody(t *testing.T) []byte {
	t.Helper()
	body := map[string]any{
		"client_id": "client-1",
		"params": []map[string]any{
			{"name": "weight", "tensor": map[string]any{"shape": []int{1, 2}, "data": []float64{1, 2}}},
			{"name": "bias", "tensor": map[string]any{"shape": []int{1}, "data": []float64{0}}},
		},
		"num_samples": 10,
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	return data
}

func TestSubmitUpdateJSON(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/updates", "application/json", bytes.NewReader(updateBody(t)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, svc.submitted, 1)
	assert.Equal(t, "client-1", svc.submitted[0].ClientID)
	assert.Equal(t, 10, svc.submitted[0].NumSamples)
	w, ok := svc.submitted[0].Params.Tensor("weight")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, w.Data)
}

func TestSubmitUpdateUnsupportedContentType(t *testing.T) {
	srv := newTestServer(&mockService{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/updates", "text/plain", bytes.NewReader([]byte("nope")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitUpdateMalformedJSON(t *testing.T) {
	srv := newTestServer(&mockService{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/updates", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitUpdateRoundClosed(t *testing.T) {
	svc := &mockService{submitErr: coordinator.ErrRoundClosed}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/updates", "application/json", bytes.NewReader(updateBody(t)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSubmitUpdateCBOR(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc)
	defer srv.Close()

	payload, err := cbor.Marshal(map[string]any{"client_id": "client-1"})
	require.NoError(t, err)

	for _, path := range []string{"/updates", "/updates/cbor"} {
		resp, err := http.Post(srv.URL+path, "application/cbor", bytes.NewReader(payload))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	assert.Len(t, svc.submittedCBOR, 2)
}

func TestSubmitUpdateCBORCancelledRequest(t *testing.T) {
	svc := &mockService{}
	handler := api.MakeHandler(svc, slog.Default(), "test-instance")

	payload, err := cbor.Marshal(map[string]any{"client_id": "client-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The request context must reach the decoder on the content-type
	// sniffing path as well; a cancelled request is not handed to the
	// service.
	req := httptest.NewRequest(http.MethodPost, "/updates", bytes.NewReader(payload)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/cbor")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, svc.submittedCBOR)
}

func TestCurrentRound(t *testing.T) {
	svc := &mockService{info: coordinator.RoundInfo{
		Round:         7,
		State:         coordinator.StateAwaitingClients,
		TargetClients: 3,
		Received:      1,
		Hyperparams:   coordinator.FitConfig{Epochs: 2, BatchSize: 16, LearningRate: 0.1},
	}}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/rounds/current")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info coordinator.RoundInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, uint64(7), info.Round)
	assert.Equal(t, 2, info.Hyperparams.Epochs)
}

func TestRoundStatus(t *testing.T) {
	svc := &mockService{records: map[uint64]coordinator.RoundRecord{
		5: {Round: 5, Completed: true, NumUpdates: 4, CompletedAt: time.Now().UTC()},
	}}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/rounds/5/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record coordinator.RoundRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, uint64(5), record.Round)
	assert.True(t, record.Completed)
}

func TestRoundStatusNotFound(t *testing.T) {
	srv := newTestServer(&mockService{records: map[uint64]coordinator.RoundRecord{}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/rounds/9/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoundStatusBadNumber(t *testing.T) {
	srv := newTestServer(&mockService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/rounds/notanumber/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&mockService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "pass", body["status"])
	assert.Equal(t, "test-instance", body["instance_id"])
}
