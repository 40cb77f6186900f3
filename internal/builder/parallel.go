package builder

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	"golang.org/x/sync/errgroup"
)

const cancelCheckInterval = 1024

// BuildParallel builds each shard of records on its own goroutine and merges
// the partial results per key. With the default Options the index is
// identical to feeding all shards to one Builder.
func BuildParallel(ctx context.Context, shards [][]symbol.Record, opts Options) (*symbol.Index, Report, error) {
	partials := make([]*Builder, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		g.Go(func() error {
			b := New(opts)
			for n, rec := range shard {
				if n%cancelCheckInterval == 0 && gctx.Err() != nil {
					return fmt.Errorf("building shard %d: %w", i, gctx.Err())
				}
				_ = b.Add(rec)
			}
			partials[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Report{}, err
	}

	merged := New(opts)
	for _, p := range partials {
		merged.Merge(p)
	}
	idx, report := merged.Build()
	return idx, report, nil
}
