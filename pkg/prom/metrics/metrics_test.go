// Copyright (c) Sony Research Inc. All rights reserved.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SonyResearch/metavision-driver/pkg/driver/stats"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Middleware)
	router.HandleFunc("/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("/v1/stats", "200"))

	req := httptest.NewRequest("GET", "/v1/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("/v1/stats", "200"))
	if after != before+1 {
		t.Errorf("request counter = %v, want %v", after, before+1)
	}
}

func TestObserveReport(t *testing.T) {
	ObserveReport("TEST01", stats.Report{
		AvgRateMevs:   1.5,
		MaxRateMevs:   4.0,
		PercentOn:     62,
		MaxQueueDepth: 9,
		TotalEvents:   1000,
	})

	if got := testutil.ToFloat64(AvgEventRate.WithLabelValues("TEST01")); got != 1.5 {
		t.Errorf("avg rate gauge = %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(MaxQueueDepth.WithLabelValues("TEST01")); got != 9 {
		t.Errorf("queue depth gauge = %v, want 9", got)
	}
	if got := testutil.ToFloat64(PercentOn.WithLabelValues("TEST01")); got != 62 {
		t.Errorf("percent-on gauge = %v, want 62", got)
	}
}
