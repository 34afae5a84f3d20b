package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// StreamReader reads entries from a durable event stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// StreamHandler pages through the opportunity and execution event streams
// with a cursor, so consumers can follow them without polling history.
type StreamHandler struct {
	reader        StreamReader
	opportunities string
	executions    string
	logger        *slog.Logger
}

// NewStreamHandler creates a StreamHandler over the two named streams.
func NewStreamHandler(reader StreamReader, opportunities, executions string, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		reader:        reader,
		opportunities: opportunities,
		executions:    executions,
		logger:        logger.With(slog.String("handler", "stream")),
	}
}

type streamEvent struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// OpportunityEvents handles GET /api/opportunities/stream?after=&limit=.
func (h *StreamHandler) OpportunityEvents(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.opportunities)
}

// ExecutionEvents handles GET /api/executions/stream?after=&limit=.
func (h *StreamHandler) ExecutionEvents(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.executions)
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, stream string) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0-0"
	}
	if !validStreamID(after) {
		writeError(w, http.StatusBadRequest, "invalid after cursor")
		return
	}

	msgs, err := h.reader.StreamRead(r.Context(), stream, after, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read stream failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read stream")
		return
	}

	events := make([]streamEvent, 0, len(msgs))
	next := after
	for _, m := range msgs {
		data := json.RawMessage(m.Payload)
		if !json.Valid(data) {
			quoted, _ := json.Marshal(string(m.Payload))
			data = quoted
		}
		events = append(events, streamEvent{ID: m.ID, Data: data})
		next = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events), "next": next})
}

// validStreamID accepts "<ms>" or "<ms>-<seq>".
func validStreamID(id string) bool {
	ms, seq, hasSeq := strings.Cut(id, "-")
	if _, err := strconv.ParseUint(ms, 10, 64); err != nil {
		return false
	}
	if hasSeq {
		if _, err := strconv.ParseUint(seq, 10, 64); err != nil {
			return false
		}
	}
	return true
}
