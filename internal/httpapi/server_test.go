package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/regen-loop/internal/charter"
	"github.com/danielpatrickdp/regen-loop/internal/cycle"
	"github.com/danielpatrickdp/regen-loop/internal/store"
)

// fakeController scripts the orchestrator surface.
type fakeController struct {
	record     cycle.CycleRecord
	triggerErr error
	status     cycle.Status
	statusErr  error
	charter    charter.Charter
	charterErr error

	lastSystemID string
	lastTrigger  string
	lastDeltas   charter.RevisionDeltas
}

func (f *fakeController) TriggerCycle(ctx context.Context, systemID, trigger string) (cycle.CycleRecord, error) {
	f.lastSystemID = systemID
	f.lastTrigger = trigger
	return f.record, f.triggerErr
}

func (f *fakeController) Status(systemID string) (cycle.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeController) ActiveCharter(systemID string) (charter.Charter, error) {
	return f.charter, f.charterErr
}

func (f *fakeController) ProposeCharter(systemID string, deltas charter.RevisionDeltas) (charter.Charter, error) {
	f.lastDeltas = deltas
	return f.charter, f.charterErr
}

func doRequest(t *testing.T, ctrl Controller, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	NewServer(ctrl).Router().ServeHTTP(rr, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func TestTriggerCycleVerdictCodes(t *testing.T) {
	cases := []struct {
		verdict cycle.Verdict
		code    string
	}{
		{cycle.VerdictAccepted, CodeOK},
		{cycle.VerdictNoAction, CodeNoActionNeeded},
		{cycle.VerdictRolledBack, CodeFailedRolledBack},
		{cycle.VerdictEscalated, CodeEscalated},
	}
	for _, tc := range cases {
		ctrl := &fakeController{record: cycle.CycleRecord{CycleID: "cyc-1", Verdict: tc.verdict}}
		rr, resp := doRequest(t, ctrl, http.MethodPost, "/systems/sys-a/cycles", `{"trigger":"manual"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, tc.code, resp.Code)
		require.NotNil(t, resp.Record)
		require.Equal(t, "cyc-1", resp.Record.CycleID)
	}
}

func TestTriggerCycleDefaultsTrigger(t *testing.T) {
	ctrl := &fakeController{record: cycle.CycleRecord{Verdict: cycle.VerdictNoAction}}
	_, _ = doRequest(t, ctrl, http.MethodPost, "/systems/sys-a/cycles", "")

	require.Equal(t, "sys-a", ctrl.lastSystemID)
	require.Equal(t, "manual", ctrl.lastTrigger)
}

func TestTriggerCycleConflictWhileActive(t *testing.T) {
	ctrl := &fakeController{triggerErr: store.ErrCycleActive}
	rr, resp := doRequest(t, ctrl, http.MethodPost, "/systems/sys-a/cycles", "")

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, CodeInvalidRequest, resp.Code)
}

func TestTriggerCycleBadBody(t *testing.T) {
	ctrl := &fakeController{}
	rr, resp := doRequest(t, ctrl, http.MethodPost, "/systems/sys-a/cycles", "{not json")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, CodeInvalidRequest, resp.Code)
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := &fakeController{status: cycle.Status{SystemID: "sys-a", CycleActive: true}}
	rr, resp := doRequest(t, ctrl, http.MethodGet, "/systems/sys-a/status", "")

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, CodeOK, resp.Code)
	require.NotNil(t, resp.Status)
	require.True(t, resp.Status.CycleActive)
}

func TestStatusUnknownSystem(t *testing.T) {
	ctrl := &fakeController{statusErr: store.ErrNotFound}
	rr, resp := doRequest(t, ctrl, http.MethodGet, "/systems/nope/status", "")

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, CodeInvalidRequest, resp.Code)
}

func TestGetCharter(t *testing.T) {
	ctrl := &fakeController{charter: charter.Default("sys-a", map[string]float64{"validation": 0.4})}
	rr, resp := doRequest(t, ctrl, http.MethodGet, "/systems/sys-a/charter", "")

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, resp.Charter)
	require.Equal(t, 1, resp.Charter.Version)
}

func TestProposeCharter(t *testing.T) {
	ctrl := &fakeController{charter: charter.Default("sys-a", map[string]float64{"validation": 0.3})}
	rr, resp := doRequest(t, ctrl, http.MethodPost, "/systems/sys-a/charter",
		`{"thresholds":{"validation":0.3}}`)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, CodeOK, resp.Code)
	require.InDelta(t, 0.3, ctrl.lastDeltas.Thresholds["validation"], 1e-9)
}

func TestProposeCharterEmptyDeltas(t *testing.T) {
	ctrl := &fakeController{}
	rr, resp := doRequest(t, ctrl, http.MethodPost, "/systems/sys-a/charter", `{}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, CodeInvalidRequest, resp.Code)
}

func TestProposeCharterConflictMidCycle(t *testing.T) {
	ctrl := &fakeController{charterErr: store.ErrCycleActive}
	rr, resp := doRequest(t, ctrl, http.MethodPost, "/systems/sys-a/charter",
		`{"thresholds":{"validation":0.3}}`)

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, CodeInvalidRequest, resp.Code)
}
