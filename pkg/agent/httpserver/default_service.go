// Copyright (c) Sony Research Inc. All rights reserved.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/SonyResearch/metavision-driver/logger"
	"github.com/SonyResearch/metavision-driver/pkg/agent/journal"
	"github.com/SonyResearch/metavision-driver/pkg/driver/device"
	"github.com/SonyResearch/metavision-driver/pkg/driver/session"
	"github.com/SonyResearch/metavision-driver/pkg/version"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultHandler serves the agent API for one camera session.
type DefaultHandler struct {
	session *session.Controller
	journal *journal.Journal
	restart chan<- struct{}
}

// NewDefaultHandler wires a session and its journal into an HTTP handler.
// A restart request sends on restart without blocking; nil disables the
// restart endpoint.
func NewDefaultHandler(s *session.Controller, j *journal.Journal, restart chan<- struct{}) *DefaultHandler {
	return &DefaultHandler{session: s, journal: j, restart: restart}
}

// RegisterRoutes attaches all endpoints to the router.
func (h *DefaultHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/info", h.GetInfo).Methods("GET")
	router.HandleFunc("/v1/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/v1/bias/{name}", h.GetBias).Methods("GET")
	router.HandleFunc("/v1/bias/{name}", h.SetBias).Methods("PUT")
	router.HandleFunc("/v1/biases/save", h.SaveBiases).Methods("POST")
	router.HandleFunc("/v1/events", h.GetEvents).Methods("GET")
	router.HandleFunc("/v1/restart", h.Restart).Methods("POST")
	router.HandleFunc("/v1/version", h.GetVersion).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Logger.Error("encoding response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (h *DefaultHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	width, height := h.session.Geometry()
	writeJSON(w, http.StatusOK, InfoResponse{
		Serial:   h.session.SerialNumber(),
		Width:    width,
		Height:   height,
		State:    h.session.State().String(),
		Dispatch: string(h.session.Dispatch()),
	})
}

func (h *DefaultHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Serial:     h.session.SerialNumber(),
		State:      h.session.State().String(),
		QueueDepth: h.session.QueueDepth(),
		Report:     h.session.StatsReport(),
	})
}

func (h *DefaultHandler) GetBias(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	value, err := h.session.GetBias(name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, device.ErrUnknownBias) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, BiasResponse{Name: name, Value: value})
}

func (h *DefaultHandler) SetBias(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req BiasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	value, err := h.session.SetBias(name, req.Value)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, device.ErrUnknownBias) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, BiasResponse{Name: name, Value: value})
}

func (h *DefaultHandler) SaveBiases(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SaveBiases(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, device.ErrNoBiasFile) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "saved"})
}

// GetEvents queries the journal. Supported query parameters: since, until
// (unix milliseconds), min_severity, kind, unacked=true.
func (h *DefaultHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	records, err := h.journal.Query(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Total: len(records), Records: records})
}

func parseEventFilter(r *http.Request) (journal.Filter, error) {
	var filter journal.Filter
	q := r.URL.Query()

	if v := q.Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.Since = n
	}
	if v := q.Get("until"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.Until = n
	}
	if v := q.Get("min_severity"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return filter, err
		}
		filter.MinSeverity = int32(n)
	}
	filter.Kind = q.Get("kind")
	filter.Unacked = q.Get("unacked") == "true"
	return filter, nil
}

func (h *DefaultHandler) Restart(w http.ResponseWriter, r *http.Request) {
	if h.restart == nil {
		writeJSON(w, http.StatusConflict, StatusResponse{
			Status:  "unavailable",
			Message: "restart not enabled on this agent",
		})
		return
	}

	select {
	case h.restart <- struct{}{}:
		logger.Logger.Info("restart requested over http")
		writeJSON(w, http.StatusOK, StatusResponse{Status: "restarting"})
	default:
		writeJSON(w, http.StatusConflict, StatusResponse{
			Status:  "busy",
			Message: "a restart is already in progress",
		})
	}
}

func (h *DefaultHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version:   version.Version,
		GoVersion: version.GoVersion(),
		BuildTime: version.BuildTime,
	})
}
