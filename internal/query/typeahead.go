package query

import (
	"context"
	"sync"
	"sync/atomic"
)

// Lookup is a completed typeahead lookup.
type Lookup struct {
	Generation uint64
	Result     *Result
	Err        error
}

// Typeahead runs one lookup per keystroke against a Session. A new keystroke
// cancels the lookup in flight, and a lookup is delivered only if no newer
// keystroke arrived while it ran.
type Typeahead struct {
	session *Session
	limit   int
	results chan Lookup

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	discarded atomic.Int64
}

func NewTypeahead(s *Session, limit int) *Typeahead {
	return &Typeahead{
		session: s,
		limit:   limit,
		results: make(chan Lookup, 1),
	}
}

// Type starts a lookup for q and returns its generation.
func (t *Typeahead) Type(ctx context.Context, q string) uint64 {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	gen := t.gen
	lctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		res, err := t.session.Search(lctx, q, t.limit)
		t.deliver(Lookup{Generation: gen, Result: res, Err: err})
	}()
	return gen
}

// Results delivers the latest lookup. An undelivered older lookup is
// replaced, so a slow reader only ever sees the newest one.
func (t *Typeahead) Results() <-chan Lookup {
	return t.results
}

// Discarded returns how many lookups were dropped as stale.
func (t *Typeahead) Discarded() int64 {
	return t.discarded.Load()
}

func (t *Typeahead) deliver(l Lookup) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l.Generation != t.gen {
		t.drop()
		return
	}
	select {
	case <-t.results:
		t.drop()
	default:
	}
	t.results <- l
}

func (t *Typeahead) drop() {
	t.discarded.Add(1)
	t.session.metrics.LookupDiscarded()
}

// Close cancels the lookup in flight and waits for it to finish. Nothing is
// delivered after Close returns.
func (t *Typeahead) Close() {
	t.mu.Lock()
	t.gen++
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}
