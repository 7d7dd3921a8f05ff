// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook serves the intake HTTP surface: inbound message
// admission, queue status and history, and the configuration dry-run
// validation endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/taskbrief/intake/internal/models"
	"github.com/taskbrief/intake/internal/queue"
	"github.com/taskbrief/intake/internal/security"
)

// Handler serves intake HTTP requests.
type Handler struct {
	queue    *queue.Queue
	pipeline *security.Pipeline
	agents   AgentResolver
	metrics  http.Handler
}

// AgentResolver maps a recipient-derived agent name to its owner, for
// the dry-run validation endpoint.
type AgentResolver interface {
	OwnerOf(agentName string) (ownerID, ownerEmail string, ok bool)
}

// NewHandler creates the intake HTTP handler. metricsHandler may be nil
// when metrics are disabled.
func NewHandler(q *queue.Queue, pipeline *security.Pipeline, agents AgentResolver, metricsHandler http.Handler) *Handler {
	return &Handler{
		queue:    q,
		pipeline: pipeline,
		agents:   agents,
		metrics:  metricsHandler,
	}
}

// ServeInbound admits an inbound message. The message is queued, not
// processed inline; the response carries the job ID.
func (h *Handler) ServeInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var msg models.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid message payload: %v", err))
		return
	}
	if msg.MessageID == "" {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}
	if msg.From.Address == "" {
		writeError(w, http.StatusBadRequest, "from.address is required")
		return
	}

	ownerID := r.URL.Query().Get("owner_id")

	jobID, err := h.queue.Enqueue(&msg, ownerID)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "queue full, retry later")
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	slog.Info("inbound message admitted",
		"message_id", msg.MessageID,
		"from", msg.From.Address,
		"job_id", jobID,
	)

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// ServeStatus returns the queue counter snapshot.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.queue.Status())
}

// ServeJobs returns recent job history, newest first. The limit query
// parameter defaults to 50.
func (h *Handler) ServeJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.queue.History(limit))
}

// validateRequest is the dry-run payload: a candidate email plus the
// agent to evaluate it against.
type validateRequest struct {
	Email     models.InboundMessage `json:"email"`
	AgentName string                `json:"agent_name"`
}

// ServeValidate runs the security pipeline against a candidate message
// without admitting it. Used for configuration dry-runs.
func (h *Handler) ServeValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid validate payload: %v", err))
		return
	}
	if req.AgentName == "" {
		writeError(w, http.StatusBadRequest, "agent_name is required")
		return
	}

	pctx := security.Context{}
	if h.agents != nil {
		if ownerID, ownerEmail, ok := h.agents.OwnerOf(req.AgentName); ok {
			pctx = security.Context{OwnerID: ownerID, OwnerEmail: ownerEmail}
		}
	}

	result := h.pipeline.Validate(r.Context(), &req.Email, pctx, req.AgentName)
	writeJSON(w, http.StatusOK, result)
}

// ServeHealth reports liveness.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Mux assembles the route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/inbound", h.ServeInbound)
	mux.HandleFunc("/status", h.ServeStatus)
	mux.HandleFunc("/jobs", h.ServeJobs)
	mux.HandleFunc("/validate", h.ServeValidate)
	mux.HandleFunc("/healthz", h.ServeHealth)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	return mux
}

// Serve starts the intake HTTP server on the given port. It binds the
// port immediately and signals readiness via the returned channel
// before accepting connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler: handler.Mux(),
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind intake port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("intake server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("intake server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("intake server error", "error", err)
		}
	}()

	return ready, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
