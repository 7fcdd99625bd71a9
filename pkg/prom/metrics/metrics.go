// Copyright (c) Sony Research Inc. All rights reserved.

package metrics

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/SonyResearch/metavision-driver/logger"
	"github.com/SonyResearch/metavision-driver/pkg/driver/stats"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

var (
	// Pipeline throughput, refreshed once per statistics report
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mv_events_total",
		Help: "Total number of events processed",
	}, []string{"serial"})

	AvgEventRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mv_event_rate_avg_mevs",
		Help: "Average event rate over the last report interval, Mev/s",
	}, []string{"serial"})

	MaxEventRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mv_event_rate_max_mevs",
		Help: "Peak event rate over the last report interval, Mev/s",
	}, []string{"serial"})

	PercentOn = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mv_percent_on",
		Help: "Share of ON-polarity events over the last report interval",
	}, []string{"serial"})

	MaxQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mv_queue_depth_max",
		Help: "Peak transfer queue depth over the last report interval",
	}, []string{"serial"})

	// HTTP API metrics
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// ObserveReport publishes one statistics report to the collectors.
func ObserveReport(serial string, r stats.Report) {
	EventsTotal.WithLabelValues(serial).Add(float64(r.TotalEvents))
	AvgEventRate.WithLabelValues(serial).Set(r.AvgRateMevs)
	MaxEventRate.WithLabelValues(serial).Set(r.MaxRateMevs)
	PercentOn.WithLabelValues(serial).Set(float64(r.PercentOn))
	MaxQueueDepth.WithLabelValues(serial).Set(float64(r.MaxQueueDepth))
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware collects request counts and latencies per mux route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// PushToGateway pushes all collectors to a Pushgateway on a fixed cadence.
// Does nothing when no gateway URL is configured.
func PushToGateway(pushgatewayURL, jobName string, interval time.Duration) {
	if pushgatewayURL == "" {
		logger.Logger.Info("pushgateway URL not set, skipping metrics push")
		return
	}

	pusher := push.New(pushgatewayURL, jobName).
		Collector(EventsTotal).
		Collector(AvgEventRate).
		Collector(MaxEventRate).
		Collector(PercentOn).
		Collector(MaxQueueDepth).
		Collector(RequestsTotal).
		Collector(RequestDuration).
		Grouping("instance", getHostname())

	for {
		<-time.After(interval)
		if err := pusher.Push(); err != nil {
			logger.Logger.Error("error pushing metrics", zap.Error(err))
		}
	}
}

func getHostname() string {
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "unknown"
}
