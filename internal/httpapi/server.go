// Package httpapi exposes the controller's operator surface over HTTP.
package httpapi

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danielpatrickdp/regen-loop/internal/charter"
	"github.com/danielpatrickdp/regen-loop/internal/cycle"
	"github.com/danielpatrickdp/regen-loop/internal/store"
)

// #endregion

// #region codes

// Response codes returned to operators.
const (
	CodeOK               = "OK"
	CodeNoActionNeeded   = "NO_ACTION_NEEDED"
	CodeEscalated        = "ESCALATED"
	CodeFailedRolledBack = "FAILED_ROLLED_BACK"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInternalError    = "INTERNAL_ERROR"
)

// #endregion

// #region controller

// Controller is the orchestrator surface the API depends on.
type Controller interface {
	TriggerCycle(ctx context.Context, systemID, trigger string) (cycle.CycleRecord, error)
	Status(systemID string) (cycle.Status, error)
	ActiveCharter(systemID string) (charter.Charter, error)
	ProposeCharter(systemID string, deltas charter.RevisionDeltas) (charter.Charter, error)
}

// #endregion

// #region response

// Response is the uniform envelope for every endpoint.
type Response struct {
	Code    string             `json:"code"`
	Error   string             `json:"error,omitempty"`
	Record  *cycle.CycleRecord `json:"record,omitempty"`
	Status  *cycle.Status      `json:"status,omitempty"`
	Charter *charter.Charter   `json:"charter,omitempty"`
}

// #endregion

// #region server

// Server routes operator requests to the controller.
type Server struct {
	controller Controller
}

// NewServer creates the API server.
func NewServer(controller Controller) *Server {
	return &Server{controller: controller}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/systems/{systemID}", func(r chi.Router) {
		r.Post("/cycles", s.handleTriggerCycle)
		r.Get("/status", s.handleStatus)
		r.Get("/charter", s.handleGetCharter)
		r.Post("/charter", s.handleProposeCharter)
	})
	return r
}

// #endregion

// #region cycles

type triggerRequest struct {
	Trigger string `json:"trigger"`
}

func (s *Server) handleTriggerCycle(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")

	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Code: CodeInvalidRequest, Error: "bad request body: " + err.Error()})
			return
		}
	}
	if req.Trigger == "" {
		req.Trigger = "manual"
	}

	rec, err := s.controller.TriggerCycle(r.Context(), systemID, req.Trigger)
	if errors.Is(err, store.ErrCycleActive) {
		writeJSON(w, http.StatusConflict, Response{Code: CodeInvalidRequest, Error: "cycle already active for system"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Response{Code: CodeInternalError, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, Response{Code: verdictCode(rec.Verdict), Record: &rec})
}

// verdictCode maps a cycle verdict to its operator-facing code.
func verdictCode(v cycle.Verdict) string {
	switch v {
	case cycle.VerdictAccepted:
		return CodeOK
	case cycle.VerdictNoAction:
		return CodeNoActionNeeded
	case cycle.VerdictRolledBack:
		return CodeFailedRolledBack
	case cycle.VerdictEscalated:
		return CodeEscalated
	}
	return CodeInternalError
}

// #endregion

// #region status

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")

	st, err := s.controller.Status(systemID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, Response{Code: CodeInvalidRequest, Error: "unknown system"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Response{Code: CodeInternalError, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Code: CodeOK, Status: &st})
}

// #endregion

// #region charter

func (s *Server) handleGetCharter(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")

	ch, err := s.controller.ActiveCharter(systemID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Response{Code: CodeInternalError, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Code: CodeOK, Charter: &ch})
}

func (s *Server) handleProposeCharter(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")

	var deltas charter.RevisionDeltas
	if err := json.NewDecoder(r.Body).Decode(&deltas); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Code: CodeInvalidRequest, Error: "bad request body: " + err.Error()})
		return
	}
	if len(deltas.Thresholds) == 0 && len(deltas.SuccessCriteria) == 0 {
		writeJSON(w, http.StatusBadRequest, Response{Code: CodeInvalidRequest, Error: "revision must change thresholds or success criteria"})
		return
	}

	ch, err := s.controller.ProposeCharter(systemID, deltas)
	if errors.Is(err, store.ErrCycleActive) {
		writeJSON(w, http.StatusConflict, Response{Code: CodeInvalidRequest, Error: "cycle active, revision deferred"})
		return
	}
	if err != nil {
		// Validation failures surface as invalid requests.
		writeJSON(w, http.StatusBadRequest, Response{Code: CodeInvalidRequest, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Code: CodeOK, Charter: &ch})
}

// #endregion

// #region helpers

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[API] response encode failed: %v", err)
	}
}

// #endregion
