package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vento-labs/lexops/pkg/audit"
	"github.com/vento-labs/lexops/pkg/deadline"
	"github.com/vento-labs/lexops/pkg/executor"
	"github.com/vento-labs/lexops/pkg/holiday"
	"github.com/vento-labs/lexops/pkg/plan"
	"github.com/vento-labs/lexops/pkg/service"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type emptyProvider struct{}

func (emptyProvider) Holidays(context.Context, string, int) (holiday.Set, error) {
	return holiday.Set{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	clock := fixedClock{now: time.Date(2024, time.May, 20, 9, 0, 0, 0, time.UTC)}
	calc := deadline.NewCalculator(emptyProvider{}, clock)
	store := plan.NewMemoryStore()
	reg := executor.NewRegistry()
	reg.Register(plan.ActionUploadDocument, executor.HandlerFunc(
		func(context.Context, plan.ActionSpec) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		}))
	svc := service.New(calc, plan.NewBuilder(calc), store, executor.New(store, reg, clock),
		service.WithAudit(audit.NewLog(clock)), service.WithClock(clock))
	return NewServer(svc)
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Actor-ID", "lawyer-7")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func validClassification() map[string]any {
	return map[string]any{
		"notification_id":  "LEXNET-2024-001",
		"court":            "Juzgado de Primera Instancia 4 de Valencia",
		"procedure_number": "350/2024",
		"act_type":         "NOTIFICACION",
		"received_at":      "2024-05-20T08:30:00Z",
	}
}

func createPlan(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	rec := doJSON(t, mux, http.MethodPost, "/v1/notifications", map[string]any{
		"classification": validClassification(),
		"documents":      []map[string]string{{"path": "inbox/doc1.pdf", "type": "Notificación"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p plan.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p.ID
}

func TestHealth(t *testing.T) {
	rec := doJSON(t, newTestServer(t).Routes(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestComputeDeadline(t *testing.T) {
	mux := newTestServer(t).Routes()
	rec := doJSON(t, mux, http.MethodPost, "/v1/deadlines/compute", map[string]any{
		"start_date": "2024-05-20T00:00:00Z",
		"day_count":  20,
		"day_kind":   "BUSINESS",
		"scope":      "valencia",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result deadline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, time.Date(2024, time.June, 17, 0, 0, 0, 0, time.UTC), result.DeadlineDate)
}

func TestComputeDeadline_ValidationProblem(t *testing.T) {
	mux := newTestServer(t).Routes()
	rec := doJSON(t, mux, http.MethodPost, "/v1/deadlines/compute", map[string]any{
		"day_count": -1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, "Bad Request", problem.Title)
	assert.Equal(t, "/v1/deadlines/compute", problem.Instance)
}

func TestCreatePlan_InvalidClassificationRejected(t *testing.T) {
	mux := newTestServer(t).Routes()
	rec := doJSON(t, mux, http.MethodPost, "/v1/notifications", map[string]any{
		"classification": map[string]any{"court": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanLifecycleOverHTTP(t *testing.T) {
	mux := newTestServer(t).Routes()
	id := createPlan(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/v1/plans/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/v1/plans/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p plan.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, plan.StatusApproved, p.Status)
	assert.Equal(t, "lawyer-7", p.ApprovedBy)

	rec = doJSON(t, mux, http.MethodPost, "/v1/plans/"+id+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report executor.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, plan.StatusExecuted, report.PlanStatus)
}

func TestExecuteUnapprovedPlanConflicts(t *testing.T) {
	mux := newTestServer(t).Routes()
	id := createPlan(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/v1/plans/"+id+"/execute", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelPlan(t *testing.T) {
	mux := newTestServer(t).Routes()
	id := createPlan(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/v1/plans/"+id+"/cancel", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is mandatory")

	rec = doJSON(t, mux, http.MethodPost, "/v1/plans/"+id+"/cancel", map[string]any{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, rec.Code)
	var p plan.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, plan.StatusCancelled, p.Status)
}

func TestEditActionOverHTTP(t *testing.T) {
	mux := newTestServer(t).Routes()
	id := createPlan(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/v1/plans/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p plan.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	first := p.Actions[0]

	rec = doJSON(t, mux, http.MethodPatch,
		fmt.Sprintf("/v1/plans/%s/actions/%d", id, first.Order),
		map[string]any{"title": "Renamed", "config": first.Config})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Renamed", p.Action(first.Order).Title)
}

func TestGetUnknownPlan(t *testing.T) {
	rec := doJSON(t, newTestServer(t).Routes(), http.MethodGet, "/v1/plans/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPlansFilteredByStatus(t *testing.T) {
	mux := newTestServer(t).Routes()
	createPlan(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/v1/plans?status=PROPOSED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []plan.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plans))
	assert.Len(t, plans, 1)

	rec = doJSON(t, mux, http.MethodGet, "/v1/plans?status=EXECUTED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plans))
	assert.Empty(t, plans)
}

func TestAuditTrailEndpoint(t *testing.T) {
	mux := newTestServer(t).Routes()
	createPlan(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/v1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 1)
}

func TestRateLimitMiddleware(t *testing.T) {
	mux := newTestServer(t).Routes()
	limited := NewGlobalRateLimiter(1, 2).Middleware(mux)

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[2], "burst of 2 exhausted")

	// A different client is unaffected.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.2:12345"
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	reqRetry := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	reqRetry.RemoteAddr = "10.0.0.1:12345"
	limited.ServeHTTP(rec, reqRetry)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"), "one token refills in 1/rps seconds")

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/healthz", problem.Instance)
}
