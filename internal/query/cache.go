package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// partition returns the partition for bucket b, loading it on first use.
// A bucket the manifest does not list has no entries and yields nil, nil.
// A bucket whose file is missing or damaged yields ErrMissingPartition for the
// rest of the session.
func (s *Session) partition(ctx context.Context, b symbol.Bucket) (*symbol.Partition, error) {
	if p, ok, err := s.cached(b); ok {
		return p, err
	}
	ref, ok := s.manifest.Lookup(b)
	if !ok {
		return nil, nil
	}

	ch := s.group.DoChan(string(b), func() (any, error) {
		return s.load(ref)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*symbol.Partition), nil
	}
}

func (s *Session) cached(b symbol.Bucket) (*symbol.Partition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.loaded[b]; ok {
		s.metrics.PartitionCacheHit()
		return p, true, nil
	}
	if err, ok := s.missing[b]; ok {
		return nil, true, err
	}
	return nil, false, nil
}

// load fetches and decodes one partition under the session context. Only
// ErrMissingPartition is remembered; transport errors are retried by the next
// lookup.
func (s *Session) load(ref artifact.PartitionRef) (*symbol.Partition, error) {
	// A lookup may reach DoChan just after an earlier load finished.
	if p, ok, err := s.cached(ref.Bucket); ok {
		return p, err
	}
	if s.closed.Load() {
		return nil, apperrors.ErrSessionClosed
	}

	s.fetches.Add(1)
	data, err := s.src.Partition(s.ctx, ref.File)
	var p symbol.Partition
	if err == nil {
		p, err = artifact.DecodePartition(ref, data)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrMissingPartition) {
			s.mu.Lock()
			s.missing[ref.Bucket] = err
			s.mu.Unlock()
			s.metrics.PartitionLoad("missing")
			s.logger.Warn("partition unavailable, bucket disabled for this session",
				"bucket", string(ref.Bucket),
				"file", ref.File,
				"error", err,
			)
			return nil, err
		}
		if s.closed.Load() {
			return nil, apperrors.ErrSessionClosed
		}
		s.metrics.PartitionLoad("error")
		s.logger.Error("partition load failed",
			"bucket", string(ref.Bucket),
			"file", ref.File,
			"error", err,
		)
		return nil, fmt.Errorf("loading bucket %q: %w", ref.Bucket, err)
	}

	if s.closed.Load() {
		return nil, apperrors.ErrSessionClosed
	}
	s.mu.Lock()
	s.loaded[ref.Bucket] = &p
	s.mu.Unlock()
	s.metrics.PartitionLoad("ok")
	s.logger.Debug("partition loaded",
		"bucket", string(ref.Bucket),
		"entries", len(p.Entries),
	)
	return &p, nil
}
