// Package builder turns a stream of raw symbol records into a search index.
// Records are merged per normalised key; the serialised order is always
// re-derived from the keys so the result does not depend on input order.
package builder

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Options controls how a Builder orders what it emits.
type Options struct {
	// PreserveDiscoveryOrder keeps occurrences in the order they were added
	// and keeps the first display name seen for a key. The default orders
	// occurrences by (target, label) and picks the ordinally smallest display
	// name, which makes the output independent of input order.
	PreserveDiscoveryOrder bool
}

type occurrenceKey struct {
	label  string
	target string
}

type entryState struct {
	key         string
	displayName string
	seq         int
	occurrences []symbol.Occurrence
	seen        map[occurrenceKey]int
}

// Builder accumulates records for a single build. It is safe for concurrent
// use, but a build is normally fed from one goroutine.
type Builder struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]*entryState
	nextSeq int
	report  Report
	logger  *slog.Logger
}

// New creates an empty Builder.
func New(opts Options) *Builder {
	return &Builder{
		opts:    opts,
		entries: make(map[string]*entryState),
		report:  Report{RejectReasons: make(map[string]int)},
		logger:  slog.Default().With("component", "index-builder"),
	}
}

// Add consumes one record. A malformed record is rejected, logged and counted;
// the returned error wraps ErrMalformedRecord and the build can continue.
func (b *Builder) Add(rec symbol.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.report.Records++
	if err := symbol.Validate(rec); err != nil {
		b.report.Rejected++
		var verr *symbol.ValidationError
		if apperrors.As(err, &verr) {
			for _, reason := range verr.Reasons() {
				b.report.RejectReasons[reason]++
			}
		}
		b.logger.Warn("record rejected",
			"name", rec.Name,
			"target", rec.Target,
			"kind", rec.Kind.String(),
			"error", err,
		)
		return err
	}

	key := symbol.NormalizeKey(rec.Name)
	e := b.entry(key, strings.TrimSpace(rec.Name))
	occ := symbol.Occurrence{Label: rec.Label, Target: rec.Target, Kind: rec.Kind}
	if b.addOccurrence(e, occ) {
		b.report.Accepted++
	} else {
		b.report.Duplicates++
	}
	return nil
}

// Reject counts a record that could not even be decoded, so it still shows
// up in the report.
func (b *Builder) Reject(reason string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Records++
	b.report.Rejected++
	b.report.RejectReasons[reason]++
	b.logger.Warn("record rejected", "reason", reason, "error", err)
}

// AddAll feeds every record to Add and returns how many were rejected.
func (b *Builder) AddAll(records []symbol.Record) int {
	rejected := 0
	for _, rec := range records {
		if err := b.Add(rec); err != nil {
			rejected++
		}
	}
	return rejected
}

// Merge folds other into b key by key. Occurrences of a key present in both
// builders are combined, never overwritten.
func (b *Builder) Merge(other *Builder) {
	if other == b {
		return
	}
	other.mu.Lock()
	states := make([]*entryState, 0, len(other.entries))
	for _, e := range other.entries {
		states = append(states, e)
	}
	otherReport := other.report.clone()
	other.mu.Unlock()

	sort.Slice(states, func(i, j int) bool { return states[i].seq < states[j].seq })

	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.add(otherReport)
	for _, src := range states {
		dst := b.entry(src.key, src.displayName)
		for _, occ := range src.occurrences {
			if !b.addOccurrence(dst, occ) {
				// counted as accepted in other, but it already existed here
				b.report.Accepted--
				b.report.Duplicates++
			}
		}
	}
}

// Build snapshots the accumulated entries into an Index and returns it with
// the build report. The Builder may keep accepting records afterwards.
func (b *Builder) Build() (*symbol.Index, Report) {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make([]*entryState, 0, len(b.entries))
	for _, e := range b.entries {
		states = append(states, e)
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].key != states[j].key {
			return states[i].key < states[j].key
		}
		return states[i].seq < states[j].seq
	})

	idx := &symbol.Index{}
	for _, e := range states {
		entry := symbol.Entry{
			Key:         e.key,
			DisplayName: e.displayName,
			Bucket:      symbol.BucketOf(e.key),
			Occurrences: append([]symbol.Occurrence(nil), e.occurrences...),
		}
		if !b.opts.PreserveDiscoveryOrder {
			sortOccurrences(entry.Occurrences)
		}
		n := len(idx.Partitions)
		if n == 0 || idx.Partitions[n-1].Bucket != entry.Bucket {
			idx.Partitions = append(idx.Partitions, symbol.Partition{Bucket: entry.Bucket})
			n++
		}
		idx.Partitions[n-1].Entries = append(idx.Partitions[n-1].Entries, entry)
	}
	// Keys sort by their first rune, but the catch-all bucket collects keys
	// from several first runes, so partitions still need an explicit order.
	sort.SliceStable(idx.Partitions, func(i, j int) bool {
		return idx.Partitions[i].Bucket < idx.Partitions[j].Bucket
	})
	idx.Partitions = coalesce(idx.Partitions)

	report := b.report.clone()
	report.Entries = len(states)
	report.Partitions = len(idx.Partitions)

	if report.Rejected > 0 {
		b.logger.Warn("records rejected during build",
			"rejected", report.Rejected,
			"reasons", report.RejectReasons,
		)
	}
	b.logger.Info("index built",
		"records", report.Records,
		"accepted", report.Accepted,
		"duplicates", report.Duplicates,
		"rejected", report.Rejected,
		"entries", report.Entries,
		"partitions", report.Partitions,
	)
	return idx, report
}

// entry returns the state for key, creating it on first sight. Must be called
// with b.mu held.
func (b *Builder) entry(key, displayName string) *entryState {
	e, ok := b.entries[key]
	if !ok {
		e = &entryState{
			key:         key,
			displayName: displayName,
			seq:         b.nextSeq,
			seen:        make(map[occurrenceKey]int),
		}
		b.nextSeq++
		b.entries[key] = e
		return e
	}
	if !b.opts.PreserveDiscoveryOrder && displayName < e.displayName {
		e.displayName = displayName
	}
	return e
}

// addOccurrence appends occ unless an occurrence with the same label and
// target exists. It reports whether occ was new. Must be called with b.mu held.
func (b *Builder) addOccurrence(e *entryState, occ symbol.Occurrence) bool {
	k := occurrenceKey{label: occ.Label, target: occ.Target}
	if i, dup := e.seen[k]; dup {
		if occ.Kind < e.occurrences[i].Kind {
			e.occurrences[i].Kind = occ.Kind
		}
		return false
	}
	e.seen[k] = len(e.occurrences)
	e.occurrences = append(e.occurrences, occ)
	return true
}

func sortOccurrences(occs []symbol.Occurrence) {
	sort.Slice(occs, func(i, j int) bool {
		if occs[i].Target != occs[j].Target {
			return occs[i].Target < occs[j].Target
		}
		if occs[i].Label != occs[j].Label {
			return occs[i].Label < occs[j].Label
		}
		return occs[i].Kind < occs[j].Kind
	})
}

// coalesce joins adjacent partitions that share a bucket. The input must be
// sorted by bucket.
func coalesce(parts []symbol.Partition) []symbol.Partition {
	out := parts[:0]
	for _, p := range parts {
		if n := len(out); n > 0 && out[n-1].Bucket == p.Bucket {
			out[n-1].Entries = append(out[n-1].Entries, p.Entries...)
			continue
		}
		out = append(out, p)
	}
	return out
}
