package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"contact-automation/internal/audit"
	"contact-automation/internal/auth"
	"contact-automation/internal/reporting"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReports struct {
	gotSummary reporting.OutcomesSummaryRequest
	gotLimit   int
	err        error
}

func (s *stubReports) OutcomesSummary(_ context.Context, req reporting.OutcomesSummaryRequest) (reporting.OutcomesSummary, error) {
	s.gotSummary = req
	if s.err != nil {
		return reporting.OutcomesSummary{}, s.err
	}
	return reporting.OutcomesSummary{Range: req.Range, Total: 3, SalesLeads: 2, Waitlist: 1}, nil
}

func (s *stubReports) FailedOutcomes(_ context.Context, limit int) ([]reporting.FailedOutcome, error) {
	s.gotLimit = limit
	return []reporting.FailedOutcome{{Key: "entry:T1", Kind: "sales_lead", Attempts: 2}}, s.err
}

type stubRetrier struct {
	n   int
	err error
}

func (s stubRetrier) RetryFailed(context.Context) (int, error) { return s.n, s.err }

var fixedNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newEngine(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "op-1", "admin"))
		c.Next()
	})
	r.GET("/me", h.Me)
	r.GET("/reports/outcomes", h.OutcomesSummary)
	r.GET("/ledger/failed", h.FailedOutcomes)
	r.POST("/ledger/retry", h.RetryFailed)
	return r
}

func do(r *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestOutcomesSummary_DefaultRange(t *testing.T) {
	rep := &stubReports{}
	r := newEngine(Handlers{Reports: rep, Now: func() time.Time { return fixedNow }})

	w := do(r, http.MethodGet, "/reports/outcomes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), rep.gotSummary.Range.From)
	assert.Equal(t, fixedNow, rep.gotSummary.Range.To)

	var body reporting.OutcomesSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
}

func TestOutcomesSummary_ExplicitRangeAndSource(t *testing.T) {
	rep := &stubReports{}
	r := newEngine(Handlers{Reports: rep})

	w := do(r, http.MethodGet, "/reports/outcomes?from=2025-06-01T00:00:00Z&to=2025-06-02T00:00:00Z&source=orphan")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), rep.gotSummary.Range.From)
	assert.Equal(t, "orphan", rep.gotSummary.Source)
}

func TestOutcomesSummary_BadInput(t *testing.T) {
	r := newEngine(Handlers{Reports: &stubReports{}})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/reports/outcomes?from=yesterday").Code)

	r = newEngine(Handlers{Reports: &stubReports{err: reporting.ErrInvalidRequest}})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/reports/outcomes").Code)

	r = newEngine(Handlers{Reports: &stubReports{err: errors.New("db down")}})
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/reports/outcomes").Code)
}

func TestFailedOutcomes(t *testing.T) {
	rep := &stubReports{}
	r := newEngine(Handlers{Reports: rep})

	w := do(r, http.MethodGet, "/ledger/failed?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, rep.gotLimit)
	assert.Contains(t, w.Body.String(), `"entry:T1"`)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/ledger/failed?limit=x").Code)
}

func TestRetryFailed(t *testing.T) {
	repo := audit.NewMemoryRepo()
	r := newEngine(Handlers{Retrier: stubRetrier{n: 4}, Audit: audit.NewService(repo)})
	w := do(r, http.MethodPost, "/ledger/retry")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"delivered":4}`, w.Body.String())

	evs := repo.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "op-1", evs[0].OperatorID)
	assert.Equal(t, audit.EventTypeLedgerReplay, evs[0].Type)
	assert.JSONEq(t, `{"delivered":4,"failed":false}`, evs[0].Metadata)

	r = newEngine(Handlers{Retrier: stubRetrier{n: 1, err: errors.New("ledger down")}})
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/ledger/retry").Code)
}

func TestMe(t *testing.T) {
	r := newEngine(Handlers{})
	w := do(r, http.MethodGet, "/me")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"operator_id":"op-1","role":"admin"}`, w.Body.String())
}
