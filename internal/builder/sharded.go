package builder

import (
	"context"
	"hash/crc32"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

// ShardOf maps a normalised key to one of n shards. Records of one key land
// on the same shard, so the final merge rarely has to combine occurrences.
func ShardOf(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(crc32.ChecksumIEEE([]byte(key)) % uint32(n))
}

// Sharded collects records into n shards for BuildParallel. It accepts the
// same calls as a Builder, so record readers can feed either.
type Sharded struct {
	opts Options

	mu      sync.Mutex
	shards  [][]symbol.Record
	rejects Report
}

func NewSharded(n int, opts Options) *Sharded {
	if n < 1 {
		n = 1
	}
	return &Sharded{
		opts:    opts,
		shards:  make([][]symbol.Record, n),
		rejects: Report{RejectReasons: make(map[string]int)},
	}
}

// Add routes rec to its shard. Validation happens when the shard is built.
func (s *Sharded) Add(rec symbol.Record) error {
	i := ShardOf(symbol.NormalizeKey(rec.Name), len(s.shards))
	s.mu.Lock()
	s.shards[i] = append(s.shards[i], rec)
	s.mu.Unlock()
	return nil
}

// Reject counts an undecodable record.
func (s *Sharded) Reject(reason string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects.Records++
	s.rejects.Rejected++
	s.rejects.RejectReasons[reason]++
}

// Build runs BuildParallel over the collected shards.
func (s *Sharded) Build(ctx context.Context) (*symbol.Index, Report, error) {
	s.mu.Lock()
	shards := s.shards
	rejects := s.rejects.clone()
	s.mu.Unlock()

	idx, report, err := BuildParallel(ctx, shards, s.opts)
	if err != nil {
		return nil, Report{}, err
	}
	report.add(rejects)
	return idx, report, nil
}
