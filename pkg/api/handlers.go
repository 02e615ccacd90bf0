package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vento-labs/lexops/pkg/classification"
	"github.com/vento-labs/lexops/pkg/deadline"
	"github.com/vento-labs/lexops/pkg/docstore"
	"github.com/vento-labs/lexops/pkg/holiday"
	"github.com/vento-labs/lexops/pkg/plan"
	"github.com/vento-labs/lexops/pkg/service"
)

const maxBodyBytes = 1 << 20 // 1MB

// Server exposes the service over HTTP.
type Server struct {
	svc *service.Service
}

// NewServer creates the HTTP surface for a service.
func NewServer(svc *service.Service) *Server {
	return &Server{svc: svc}
}

// Routes registers all endpoints on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/deadlines/compute", s.handleComputeDeadline)
	mux.HandleFunc("POST /v1/notifications", s.handleCreatePlan)
	mux.HandleFunc("GET /v1/plans", s.handleListPlans)
	mux.HandleFunc("GET /v1/plans/{id}", s.handleGetPlan)
	mux.HandleFunc("POST /v1/plans/{id}/approve", s.handleApprovePlan)
	mux.HandleFunc("POST /v1/plans/{id}/cancel", s.handleCancelPlan)
	mux.HandleFunc("PATCH /v1/plans/{id}/actions/{order}", s.handleEditAction)
	mux.HandleFunc("POST /v1/plans/{id}/execute", s.handleExecutePlan)
	mux.HandleFunc("GET /v1/audit", s.handleAuditTrail)
	return mux
}

// actor resolves the acting user from the request. Authentication sits
// in front of this service; here the header is trusted.
func actor(r *http.Request) string {
	if id := r.Header.Get("X-Actor-ID"); id != "" {
		return id
	}
	return "anonymous"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleComputeDeadline(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req deadline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	result, err := s.svc.ComputeDeadline(r.Context(), actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// createPlanRequest carries the classified notification plus its
// downloaded documents.
type createPlanRequest struct {
	Classification json.RawMessage           `json:"classification"`
	Documents      []classification.Document `json:"documents"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	cls, err := classification.Decode(req.Classification)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	p, err := s.svc.CreatePlan(r.Context(), actor(r), cls, req.Documents)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	status := plan.Status(r.URL.Query().Get("status"))
	plans, err := s.svc.ListPlans(r.Context(), status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleApprovePlan(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.ApprovePlan(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type cancelPlanRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req cancelPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Reason == "" {
		WriteBadRequest(w, "Missing required field: reason")
		return
	}

	p, err := s.svc.CancelPlan(r.Context(), actor(r), r.PathValue("id"), req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type editActionRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Config      plan.ActionConfig `json:"config"`
}

func (s *Server) handleEditAction(w http.ResponseWriter, r *http.Request) {
	order, err := atoiPath(r, "order")
	if err != nil {
		WriteBadRequest(w, "Invalid action order")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req editActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	p, err := s.svc.EditAction(r.Context(), actor(r), r.PathValue("id"), order, req.Title, req.Description, req.Config)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.ExecutePlan(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.AuditTrail()
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if events == nil {
		events = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, events)
}

// writeServiceError maps domain errors onto HTTP problem responses,
// carrying the request path as the problem instance.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, deadline.ErrValidation), errors.Is(err, classification.ErrInvalidPayload):
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, plan.ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, plan.ErrState):
		WriteErrorR(w, r, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, deadline.ErrDependency), errors.Is(err, holiday.ErrUnavailable), errors.Is(err, docstore.ErrStore):
		WriteErrorR(w, r, http.StatusBadGateway, "Bad Gateway", err.Error())
	default:
		WriteInternal(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func atoiPath(r *http.Request, key string) (int, error) {
	return strconv.Atoi(r.PathValue(key))
}
