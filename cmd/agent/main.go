// Copyright (c) Sony Research Inc. All rights reserved.

package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/SonyResearch/metavision-driver/logger"
	"github.com/SonyResearch/metavision-driver/pkg/agent/httpserver"
	"github.com/SonyResearch/metavision-driver/pkg/agent/journal"
	"github.com/SonyResearch/metavision-driver/pkg/driver/device"
	"github.com/SonyResearch/metavision-driver/pkg/driver/event"
	"github.com/SonyResearch/metavision-driver/pkg/driver/playback"
	"github.com/SonyResearch/metavision-driver/pkg/driver/session"
	"github.com/SonyResearch/metavision-driver/pkg/driver/simulator"
	"github.com/SonyResearch/metavision-driver/pkg/driver/stats"
	"github.com/SonyResearch/metavision-driver/pkg/prom/metrics"
	"github.com/SonyResearch/metavision-driver/pkg/rules"
	"github.com/SonyResearch/metavision-driver/pkg/version"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	Port           = flag.String("port", "", "http service listen port, default 8080")
	Source         = flag.String("source", "sim", "event source: sim, or file:<path to a recording>")
	Serial         = flag.String("serial", "", "camera serial number, empty selects the first available device")
	BiasFile       = flag.String("bias-file", "", "bias calibration file, empty uses device defaults")
	SyncMode       = flag.String("sync-mode", "standalone", "camera sync mode: standalone, primary or secondary")
	Dispatch       = flag.String("dispatch", "queued", "event dispatch mode: direct or queued")
	StatInterval   = flag.Duration("stat-interval", time.Second, "camera-time interval between rate reports")
	JournalDir     = flag.String("journal-dir", "", "persistent directory for camera event records. will use $WORK_DIR if unset. use /tmp if $WORK_DIR unset.")
	CheckInterval  = flag.Duration("check-interval", 30*time.Second, "interval between pipeline self-checks, 0 disables")
	PushGatewayURL = flag.String("push-gateway", "", "Pushgateway URL (e.g., http://localhost:9091)")
	JobName        = flag.String("job-name", "metavisiond", "Job name for metrics")
	PushInterval   = flag.Duration("push-interval", 15*time.Second, "Metrics push interval")
)

// journalRecorder adapts the journal to the session's out-of-band sink.
type journalRecorder struct {
	journal *journal.Journal
	serial  string
}

func (r *journalRecorder) Record(kind, message string, severity int32) {
	if _, err := r.journal.Append(journal.Record{
		Serial:   r.serial,
		Kind:     kind,
		Message:  message,
		Severity: severity,
	}); err != nil {
		logger.Logger.Error("journaling device record", zap.Error(err))
	}
}

// logSink is the default publish sink when no downstream consumer is
// attached: it counts what the pipeline delivers and drops the payload.
type logSink struct {
	alive     atomic.Bool
	published atomic.Uint64
}

func (s *logSink) Publish(b event.Batch) {
	s.published.Add(uint64(len(b)))
}

func (s *logSink) KeepRunning() bool {
	return s.alive.Load()
}

func takeSample(ctrl *session.Controller) rules.Sample {
	return rules.Sample{
		TakenAt:    time.Now(),
		State:      ctrl.State().String(),
		QueueDepth: ctrl.QueueDepth(),
		Report:     ctrl.StatsReport(),
	}
}

// selfCheck journals stalled or backed-up pipelines so they are visible to
// a later events query even when nobody was polling stats at the time.
func selfCheck(ctrl *session.Controller, rec session.Recorder, interval time.Duration) {
	prev := takeSample(ctrl)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		cur := takeSample(ctrl)
		for _, f := range rules.Evaluate(prev, cur) {
			logger.Logger.Warn("pipeline self-check finding",
				zap.String("kind", f.Kind), zap.String("message", f.Message))
			rec.Record(f.Kind, f.Message, f.Severity)
		}
		prev = cur
	}
}

func newProvider() device.Provider {
	if strings.HasPrefix(*Source, "file:") {
		path := strings.TrimPrefix(*Source, "file:")
		logger.Logger.Info("replaying events from recording", zap.String("path", path))
		return &playback.Provider{Path: path, Realtime: true}
	}
	if *Source != "sim" {
		logger.Logger.Fatal("unknown event source", zap.String("source", *Source))
	}
	return &simulator.Provider{Config: simulator.Config{Serial: *Serial}}
}

func main() {
	flag.Parse()
	go metrics.PushToGateway(*PushGatewayURL, *JobName, *PushInterval)

	j, err := journal.New(*JournalDir, *Serial, 0)
	if err != nil {
		logger.Logger.Error("Failed to init journal", zap.Error(err))
		os.Exit(1)
	}

	onReport := func(r stats.Report) {
		metrics.ObserveReport(*Serial, r)
	}
	recorder := &journalRecorder{journal: j, serial: *Serial}
	ctrl := session.NewController(newProvider(), session.Config{
		SerialNumber: *Serial,
		BiasFile:     *BiasFile,
		SyncMode:     device.SyncMode(*SyncMode),
		Dispatch:     session.DispatchMode(*Dispatch),
		StatInterval: *StatInterval,
	}, recorder, onReport)

	if err := ctrl.Initialize(); err != nil {
		logger.Logger.Error("Failed to initialize camera", zap.Error(err))
		os.Exit(1)
	}

	sink := &logSink{}
	sink.alive.Store(true)
	if err := ctrl.Start(sink); err != nil {
		logger.Logger.Error("Failed to start acquisition", zap.Error(err))
		ctrl.Stop()
		os.Exit(1)
	}

	if *CheckInterval > 0 {
		go selfCheck(ctrl, recorder, *CheckInterval)
	}

	restartChan := make(chan struct{}, 1)

	// Goroutine to listen for restart signals
	go func() {
		<-restartChan
		logger.Logger.Info("Received restart request. Gracefully stopping...")
		sink.alive.Store(false)
		ctrl.Stop()
		logger.Logger.Info("acquisition stopped",
			zap.Uint64("published_events", sink.published.Load()))

		// Exit the process (restarted by the process manager)
		os.Exit(0)
	}()

	// Operating system signal handling
	go func() {
		stopChan := make(chan os.Signal, 1)
		signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-stopChan
		logger.Logger.Info("Received system signal. Shutting down...", zap.Any("sig", sig))
		sink.alive.Store(false)
		ctrl.Stop()

		os.Exit(0)
	}()

	if *Port == "" {
		*Port = os.Getenv("METAVISIOND_PORT")
	}
	if *Port == "" {
		*Port = "8080"
	}

	lis, err := net.Listen("tcp", ":"+(*Port))
	if err != nil {
		logger.Logger.Fatal("failed to listen", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, _ := errgroup.WithContext(ctx)

	logger.Logger.Info("Starting service",
		zap.String("version", version.Version),
		zap.String("serial", ctrl.SerialNumber()))
	group.Go(func() error {
		router := mux.NewRouter()
		router.Use(metrics.Middleware)

		httpHandler := httpserver.NewDefaultHandler(ctrl, j, restartChan)
		httpHandler.RegisterRoutes(router)

		router.Handle("/metrics", promhttp.Handler())
		router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		httpServer := &http.Server{
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		logger.Logger.Info("HTTP server listening at", zap.String("addr", lis.Addr().String()))
		return httpServer.Serve(lis)
	})

	if err := group.Wait(); err != nil {
		logger.Logger.Error("Server error", zap.Error(err))
	}
}
