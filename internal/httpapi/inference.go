package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/haasonsaas/gateway/internal/orchestrator"
	"github.com/haasonsaas/gateway/internal/variant"
	"github.com/haasonsaas/gateway/pkg/inference"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := 500
	if infErr, ok := inference.AsError(err); ok {
		status = infErr.HTTPStatus()
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleInference(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body inferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if body.FunctionName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "function_name is required"})
		return
	}

	req := body.toOrchestratorRequest()

	if req.Stream {
		s.handleInferStream(w, r, req)
		return
	}

	resp, err := s.orch.Infer(r.Context(), req)
	if err != nil {
		s.logger.Error("infer failed", "function_name", req.FunctionName, "error", err)
		writeError(w, err)
		return
	}
	if resp.JSON != nil {
		writeJSON(w, http.StatusOK, resp.JSON)
		return
	}
	writeJSON(w, http.StatusOK, resp.Chat)
}

// handleInferStream implements spec.md §6.3: each event's data: is a Chunk
// mirroring the non-streaming shape with deltas only, terminated by a
// literal "data: [DONE]" line.
func (s *Server) handleInferStream(w http.ResponseWriter, r *http.Request, req orchestrator.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported"})
		return
	}

	chunks, err := s.orch.InferStream(r.Context(), req)
	if err != nil {
		s.logger.Error("infer_stream failed", "function_name", req.FunctionName, "error", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var last inference.Chunk
	for sc := range chunks {
		if sc.Err != nil {
			writeSSEError(w, sc.Err)
			flusher.Flush()
			return
		}
		if sc.Chunk != nil {
			last = *sc.Chunk
			writeSSEData(w, sc.Chunk)
			flusher.Flush()
		}
		if sc.Outcome != nil {
			writeSSEData(w, terminalChunk(last, sc.Outcome))
			flusher.Flush()
		}
		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func terminalChunk(last inference.Chunk, outcome *variant.StreamOutcome) *inference.Chunk {
	return &inference.Chunk{
		InferenceID:  last.InferenceID,
		EpisodeID:    last.EpisodeID,
		VariantName:  last.VariantName,
		Content:      []inference.ContentBlockChunk{},
		Usage:        &outcome.Usage,
		FinishReason: &outcome.FinishReason,
	}
}

func writeSSEData(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}

func writeSSEError(w http.ResponseWriter, err error) {
	writeSSEData(w, errorResponse{Error: err.Error()})
}
