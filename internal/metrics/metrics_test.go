package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCalls int

func (f fixedCalls) Active() int { return int(f) }

type fixedFailed int

func (f fixedFailed) CountFailed(context.Context) (int, error) { return int(f), nil }

func TestPipeline_Counters(t *testing.T) {
	p := NewPipeline()
	p.OutcomePersisted("sales_lead", "mail")
	p.OutcomePersisted("sales_lead", "mail")
	p.LeadLost("waitlist")
	p.Correlated("miss")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.outcomes.WithLabelValues("sales_lead", "mail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.leadsLost.WithLabelValues("waitlist")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.correlation.WithLabelValues("miss")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	p := NewPipeline()
	p.OrphanRouted()
	reg, err := NewRegistry(p, NewCollector(fixedCalls(3), fixedFailed(2), time.Now()))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	for _, want := range []string{
		"contact_automation_active_calls 3",
		"contact_automation_failed_outcomes 2",
		"contact_automation_orphaned_calls_total 1",
	} {
		assert.True(t, strings.Contains(body, want), "missing %q", want)
	}
}
