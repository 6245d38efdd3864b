package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"graphloom/internal/middleware"
	"graphloom/internal/retrieval"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, mode retrieval.Mode, topK int) (*retrieval.EvidenceSet, error)
}

type Handler struct {
	retriever Retriever
}

func NewHandler(r Retriever) *Handler {
	return &Handler{retriever: r}
}

type queryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
	TopK  int    `json:"top_k,omitempty"`
}

type queryResponse struct {
	Mode     string                 `json:"mode"`
	Evidence *retrieval.EvidenceSet `json:"evidence"`
	Meta     map[string]int         `json:"meta"`
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Query is required", http.StatusBadRequest)
		return
	}

	mode, err := retrieval.ParseMode(req.Mode)
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	evidence, err := h.retriever.Retrieve(r.Context(), req.Query, mode, req.TopK)
	if err != nil {
		slog.ErrorContext(r.Context(), "retrieval failed", "mode", mode, "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := queryResponse{
		Mode:     string(mode),
		Evidence: evidence,
		Meta: map[string]int{
			"chunks":    len(evidence.Chunks),
			"entities":  len(evidence.Entities),
			"relations": len(evidence.Relations),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
