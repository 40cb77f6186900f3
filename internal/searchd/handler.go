package searchd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// statusClientClosedRequest is the nginx convention for a request the client
// abandoned before the response was written.
const statusClientClosedRequest = 499

type Handler struct {
	holder       *Holder
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func NewHandler(holder *Holder, defaultLimit, maxResults int) *Handler {
	return &Handler{
		holder:       holder,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/index/reload", h.Reload)
}

// OccurrenceJSON is one location of a result.
type OccurrenceJSON struct {
	Label  string      `json:"label"`
	Target string      `json:"target"`
	Page   string      `json:"page"`
	Anchor string      `json:"anchor,omitempty"`
	Kind   symbol.Kind `json:"kind"`
}

// ResultJSON is one ranked entry as served to clients.
type ResultJSON struct {
	Key         string           `json:"key"`
	DisplayName string           `json:"displayName"`
	Bucket      symbol.Bucket    `json:"bucket"`
	Tier        query.Tier       `json:"tier"`
	Occurrences []OccurrenceJSON `json:"occurrences"`
}

type searchResponse struct {
	Query          string          `json:"query"`
	Results        []ResultJSON    `json:"results"`
	Degraded       bool            `json:"degraded"`
	MissingBuckets []symbol.Bucket `json:"missingBuckets,omitempty"`
	LatencyMs      float64         `json:"latency_ms"`
	RequestID      string          `json:"request_id,omitempty"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if h.maxResults > 0 && (limit <= 0 || limit > h.maxResults) {
		limit = h.maxResults
	}

	res, err := h.holder.Search(ctx, q, limit)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// The client went away, typically because a newer keystroke
			// replaced this lookup. Nobody reads the response.
			log.Debug("search abandoned by client", "query", q)
			w.WriteHeader(statusClientClosedRequest)
			return
		}
		status := apperrors.HTTPStatusCode(err)
		if ctx.Err() != nil {
			status = http.StatusGatewayTimeout
		}
		if status >= 500 {
			log.Error("search failed", "query", q, "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}

	resp := searchResponse{
		Query:          res.Query,
		Results:        NewResults(res.Matches),
		Degraded:       res.Degraded,
		MissingBuckets: res.MissingBuckets,
		RequestID:      middleware.GetRequestID(ctx),
	}
	resp.LatencyMs = float64(time.Since(start).Microseconds()) / 1000

	log.Info("search completed",
		"query", res.Query,
		"returned", len(resp.Results),
		"degraded", res.Degraded,
		"latency_ms", resp.LatencyMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// NewResults converts ranked matches to their wire form.
func NewResults(matches []query.Match) []ResultJSON {
	out := make([]ResultJSON, 0, len(matches))
	for _, m := range matches {
		out = append(out, toResultJSON(m))
	}
	return out
}

func toResultJSON(m query.Match) ResultJSON {
	out := ResultJSON{
		Key:         m.Entry.Key,
		DisplayName: m.Entry.DisplayName,
		Bucket:      m.Entry.Bucket,
		Tier:        m.Tier,
		Occurrences: make([]OccurrenceJSON, 0, len(m.Entry.Occurrences)),
	}
	for _, occ := range m.Entry.Occurrences {
		out.Occurrences = append(out.Occurrences, OccurrenceJSON{
			Label:  occ.Label,
			Target: occ.Target,
			Page:   occ.Page(),
			Anchor: occ.Anchor(),
			Kind:   occ.Kind,
		})
	}
	return out
}

type statsResponse struct {
	Status  Status       `json:"status"`
	Session *query.Stats `json:"session,omitempty"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Status: h.holder.Status()}
	if s, err := h.holder.Session(); err == nil {
		st := s.Stats()
		resp.Session = &st
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.holder.Reload(r.Context(), "api"); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.Stats(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
