// Package handlers implements the HTTP handlers for the IKMS API: the
// SSE chat stream, document ingestion, session lookup, and run
// interruption.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/internal/api/middleware"
	"github.com/Nadil-Dulnidu/IKMS/internal/engine"
	"github.com/Nadil-Dulnidu/IKMS/internal/retrieval"
	"github.com/Nadil-Dulnidu/IKMS/internal/stream"
	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// Handlers bundles the collaborators every endpoint needs.
type Handlers struct {
	Engine   *engine.Engine
	Adapter  *stream.Adapter
	Evidence contracts.EvidenceStore
	Ingester *retrieval.Ingester
}

// Chat starts (or resumes) a run and streams its wire events as SSE.
// POST /api/v1/chat
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	question := req.UserText()
	if question == "" && !req.Resume {
		respondError(w, http.StatusBadRequest, "no user message found")
		return
	}

	if !req.Resume {
		count, err := h.Evidence.Count(r.Context(), userID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "evidence store unavailable")
			return
		}
		if count == 0 {
			respondError(w, http.StatusBadRequest, "no documents found, please upload documents first")
			return
		}
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	run, err := h.Engine.Start(r.Context(), engine.RunRequest{
		ThreadID: threadID,
		UserID:   userID,
		Question: question,
		Resume:   req.Resume,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("x-vercel-ai-ui-message-stream", "v1")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err = h.Adapter.Stream(run.Snapshots, func(ev models.WireEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Client gone; the run context is cancelled with the request.
		log.Warn().Str("thread", threadID).Err(err).Msg("stream aborted")
		return
	}

	fmt.Fprintf(w, "data: %s\n\n", models.DoneSentinel)
	flusher.Flush()
}

// Ingest chunks, embeds, and indexes documents into the caller's namespace.
// POST /api/v1/documents
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		respondError(w, http.StatusBadRequest, "documents are required")
		return
	}

	result, err := h.Ingester.Ingest(r.Context(), userID, &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetSession returns the checkpointed state for a thread.
// GET /api/v1/sessions/{threadID}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	threadID := chi.URLParam(r, "threadID")
	state, err := h.Engine.Session(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, contracts.ErrCheckpointNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if state.UserID != userID {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// InterruptRun requests a human-in-the-loop pause for an active run.
// POST /api/v1/runs/{threadID}/interrupt
func (h *Handlers) InterruptRun(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	threadID := chi.URLParam(r, "threadID")

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "Run paused, awaiting further input."
	}

	if !h.Engine.Interrupt(threadID, body.Reason) {
		respondError(w, http.StatusNotFound, "no active run for thread")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "interrupt requested"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
