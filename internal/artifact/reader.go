package artifact

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

// ReadIndex loads every partition of the artifact behind src. Unlike a query
// session it is strict: a missing or corrupt partition fails the whole read.
func ReadIndex(ctx context.Context, src Source) (*symbol.Index, error) {
	data, err := src.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	m, err := DecodeManifest(data)
	if err != nil {
		return nil, err
	}
	idx := &symbol.Index{Partitions: make([]symbol.Partition, 0, len(m.Partitions))}
	for _, ref := range m.Partitions {
		raw, err := src.Partition(ctx, ref.File)
		if err != nil {
			return nil, fmt.Errorf("reading bucket %q: %w", ref.Bucket, err)
		}
		p, err := DecodePartition(ref, raw)
		if err != nil {
			return nil, err
		}
		idx.Partitions = append(idx.Partitions, p)
	}
	return idx, nil
}
