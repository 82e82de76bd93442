package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRecordedSeries(t *testing.T) {
	rec := NewRecorder(nil)
	rec.CacheLookup("stats", "hit")
	rec.CacheLookup("stats", "miss")
	rec.ObserveFetch("stats", 0.042, "ok")
	rec.Mutation("createRule", "ok")
	rec.SessionTeardown()

	server := httptest.NewServer(rec.Handler())
	defer server.Close()

	e := httpexpect.Default(t, server.URL)
	body := e.GET("/").Expect().Status(http.StatusOK).Body()
	body.Contains(`telefwd_cache_lookups_total{outcome="hit",resource="stats"} 1`)
	body.Contains(`telefwd_cache_lookups_total{outcome="miss",resource="stats"} 1`)
	body.Contains(`telefwd_cache_fetch_duration_seconds_count{outcome="ok",resource="stats"} 1`)
	body.Contains(`telefwd_pipeline_mutations_total{operation="createRule",outcome="ok"} 1`)
	body.Contains("telefwd_session_teardowns_total 1")
	body.Contains("go_goroutines")
}

func TestRecordersUseIndependentRegistries(t *testing.T) {
	first := NewRecorder(nil)
	second := NewRecorder(nil)
	first.SessionTeardown()

	families, err := second.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "telefwd_session_teardowns_total" {
			require.Zero(t, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}
