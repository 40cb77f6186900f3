// Package query answers typeahead lookups against a published search index.
// A Session reads the manifest once and loads bucket partitions lazily, one
// fetch per bucket no matter how many lookups ask for it at the same time.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Scope selects which partitions the substring tier searches.
type Scope string

const (
	// ScopeAll searches every partition, so "dit" finds "linedit".
	ScopeAll Scope = "all"
	// ScopeBucket searches only the partition of the query's first character.
	ScopeBucket Scope = "bucket"
)

// ParseScope accepts "all", "bucket" or "" (ScopeAll).
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeBucket:
		return ScopeBucket, nil
	}
	return "", fmt.Errorf("%w: unknown substring scope %q", apperrors.ErrInvalidInput, s)
}

// Options configures a Session.
type Options struct {
	SubstringScope Scope
	// LoadConcurrency bounds parallel partition loads for one lookup.
	LoadConcurrency int
	Metrics         *metrics.Metrics
}

// Result is the answer to one lookup. Degraded is set when a partition the
// lookup needed could not be loaded; its buckets contributed no matches.
type Result struct {
	Query          string
	Matches        []Match
	Degraded       bool
	MissingBuckets []symbol.Bucket
}

// Stats describes the session's cache.
type Stats struct {
	Source            string `json:"source"`
	Entries           int    `json:"entries"`
	Partitions        int    `json:"partitions"`
	LoadedPartitions  int    `json:"loadedPartitions"`
	MissingPartitions int    `json:"missingPartitions"`
	Fetches           int64  `json:"fetches"`
}

// Session is one client's view of an artifact. It owns its partition cache;
// nothing is shared between sessions.
type Session struct {
	src      artifact.Source
	manifest *artifact.Manifest
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// loads run under ctx, not under the context of whichever lookup started
	// them, so an abandoned lookup does not fail the others sharing the load.
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	group   singleflight.Group
	mu      sync.RWMutex
	loaded  map[symbol.Bucket]*symbol.Partition
	missing map[symbol.Bucket]error
	fetches atomic.Int64
}

// Open reads and checks the manifest of src. A missing or corrupt manifest
// makes the whole artifact unusable and is returned as ErrCorruptArtifact.
func Open(ctx context.Context, src artifact.Source, opts Options) (*Session, error) {
	scope, err := ParseScope(string(opts.SubstringScope))
	if err != nil {
		return nil, err
	}
	opts.SubstringScope = scope
	if opts.LoadConcurrency <= 0 {
		opts.LoadConcurrency = 4
	}

	data, err := src.Manifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading manifest from %s: %w", src, err)
	}
	manifest, err := artifact.DecodeManifest(data)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", src, err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		src:      src,
		manifest: manifest,
		opts:     opts,
		metrics:  opts.Metrics,
		logger:   slog.Default().With("component", "query-session", "source", src.String()),
		ctx:      sctx,
		cancel:   cancel,
		loaded:   make(map[symbol.Bucket]*symbol.Partition),
		missing:  make(map[symbol.Bucket]error),
	}
	s.metrics.IndexShape(manifest.EntryCount, len(manifest.Partitions))
	s.logger.Info("search session opened",
		"entries", manifest.EntryCount,
		"partitions", len(manifest.Partitions),
		"substring_scope", string(opts.SubstringScope),
	)
	return s, nil
}

// Search ranks the entries matching q: exact key first, then keys starting
// with q, then keys containing q, each tier by key length and then key.
// A limit <= 0 returns every match.
func (s *Session) Search(ctx context.Context, q string, limit int) (*Result, error) {
	start := time.Now()
	res, err := s.search(ctx, q, limit)
	resultType := "hit"
	switch {
	case errors.Is(err, context.Canceled):
		resultType = "cancelled"
	case err != nil:
		resultType = "error"
	case res.Degraded:
		resultType = "degraded"
	case len(res.Matches) == 0:
		resultType = "zero_result"
	}
	results := 0
	if res != nil {
		results = len(res.Matches)
	}
	s.metrics.ObserveQuery(resultType, time.Since(start).Seconds(), results)
	return res, err
}

func (s *Session) search(ctx context.Context, q string, limit int) (*Result, error) {
	if s.closed.Load() {
		return nil, apperrors.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nq := symbol.NormalizeQuery(q)
	if nq == "" {
		return nil, fmt.Errorf("%w: empty query", apperrors.ErrInvalidInput)
	}
	home := symbol.BucketOf(nq)
	buckets := []symbol.Bucket{home}
	if s.opts.SubstringScope == ScopeAll {
		for _, ref := range s.manifest.Partitions {
			if ref.Bucket != home {
				buckets = append(buckets, ref.Bucket)
			}
		}
	}

	parts, missing, err := s.loadAll(ctx, buckets)
	if err != nil {
		return nil, err
	}

	res := &Result{Query: nq, MissingBuckets: missing, Degraded: len(missing) > 0}
	for i, b := range buckets {
		if parts[i] == nil {
			continue
		}
		res.Matches = collect(res.Matches, parts[i], nq, b != home)
	}
	rank(res.Matches)
	if limit > 0 && len(res.Matches) > limit {
		res.Matches = res.Matches[:limit]
	}
	s.logger.Debug("lookup served",
		"query", nq,
		"bucket", string(home),
		"partitions", len(buckets),
		"matches", len(res.Matches),
		"degraded", res.Degraded,
	)
	return res, nil
}

// loadAll returns the partitions of buckets in order. A bucket that is not in
// the manifest yields nil; one that failed to load is listed in missing.
// Only cancellation of ctx or a closed session fails the whole load.
func (s *Session) loadAll(ctx context.Context, buckets []symbol.Bucket) ([]*symbol.Partition, []symbol.Bucket, error) {
	parts := make([]*symbol.Partition, len(buckets))
	failed := make([]bool, len(buckets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.LoadConcurrency)
	for i, b := range buckets {
		g.Go(func() error {
			p, err := s.partition(gctx, b)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if errors.Is(err, apperrors.ErrSessionClosed) {
					return err
				}
				// A bucket that cannot be read right now costs this lookup its
				// matches, not the whole index.
				failed[i] = true
				return nil
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var missing []symbol.Bucket
	for i, b := range buckets {
		if failed[i] {
			missing = append(missing, b)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return parts, missing, nil
}

// Stats returns a snapshot of the cache state.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Source:            s.src.String(),
		Entries:           s.manifest.EntryCount,
		Partitions:        len(s.manifest.Partitions),
		LoadedPartitions:  len(s.loaded),
		MissingPartitions: len(s.missing),
		Fetches:           s.fetches.Load(),
	}
}

// Close cancels pending loads and drops the cache. Later lookups fail with
// ErrSessionClosed.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.cancel()
	s.mu.Lock()
	s.loaded = make(map[symbol.Bucket]*symbol.Partition)
	s.missing = make(map[symbol.Bucket]error)
	s.mu.Unlock()
	s.logger.Info("search session closed")
}
