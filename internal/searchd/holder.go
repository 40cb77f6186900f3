// Package searchd serves query sessions over HTTP and swaps in a new session
// whenever a fresh artifact is published.
package searchd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Opener opens a session on the current artifact.
type Opener func(ctx context.Context) (*query.Session, error)

// Status describes the holder's last reload.
type Status struct {
	Available  bool      `json:"available"`
	LoadedAt   time.Time `json:"loaded_at,omitzero"`
	LastReload time.Time `json:"last_reload,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
	Reloads    int       `json:"reloads"`
}

// Holder owns the live session. A failed reload keeps serving the previous
// session; without any session lookups fail with ErrSearchUnavailable.
type Holder struct {
	open    Opener
	metrics *metrics.Metrics
	logger  *slog.Logger

	reloadMu sync.Mutex

	mu      sync.RWMutex
	session *query.Session
	status  Status
	lastErr error
}

func NewHolder(open Opener, m *metrics.Metrics) *Holder {
	return &Holder{
		open:    open,
		metrics: m,
		logger:  slog.Default().With("component", "session-holder"),
	}
}

// Reload opens a new session and makes it current. trigger names what asked
// for the reload and only feeds logs and metrics.
func (h *Holder) Reload(ctx context.Context, trigger string) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	start := time.Now()
	next, err := h.open(ctx)

	h.mu.Lock()
	h.status.LastReload = start.UTC()
	h.status.Reloads++
	if err != nil {
		h.lastErr = err
		h.status.LastError = err.Error()
		available := h.session != nil
		h.mu.Unlock()
		h.metrics.SessionReload(trigger, "error")
		h.logger.Error("reload failed",
			"trigger", trigger,
			"keeping_previous", available,
			"error", err,
		)
		return fmt.Errorf("reloading search session: %w", err)
	}
	prev := h.session
	h.session = next
	h.lastErr = nil
	h.status.LastError = ""
	h.status.Available = true
	h.status.LoadedAt = time.Now().UTC()
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	h.metrics.SessionReload(trigger, "ok")
	st := next.Stats()
	h.logger.Info("search session loaded",
		"trigger", trigger,
		"entries", st.Entries,
		"partitions", st.Partitions,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

// Session returns the live session.
func (h *Holder) Session() (*query.Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		if h.lastErr != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrSearchUnavailable, h.lastErr)
		}
		return nil, apperrors.ErrSearchUnavailable
	}
	return h.session, nil
}

// Search runs a lookup on the live session. A lookup that raced with a reload
// and hit the closed previous session is retried once on the new one.
func (h *Holder) Search(ctx context.Context, q string, limit int) (*query.Result, error) {
	for attempt := 0; ; attempt++ {
		s, err := h.Session()
		if err != nil {
			return nil, err
		}
		res, err := s.Search(ctx, q, limit)
		if errors.Is(err, apperrors.ErrSessionClosed) && attempt == 0 {
			continue
		}
		return res, err
	}
}

func (h *Holder) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Close closes the live session.
func (h *Holder) Close() {
	h.mu.Lock()
	s := h.session
	h.session = nil
	h.status.Available = false
	h.mu.Unlock()
	if s != nil {
		s.Close()
	}
}
