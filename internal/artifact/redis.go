package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

// KV is the read side of the Redis partition store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// KVStore is the write side used by PublishRedis.
type KVStore interface {
	KV
	SetAll(ctx context.Context, values map[string][]byte) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Each publish writes its files under a generation derived from the manifest
// checksum, then flips <prefix>:current to it. Readers pin the generation
// they read the manifest from.
func currentKey(prefix string) string { return prefix + ":current" }

func fileKey(prefix, generation, file string) string {
	return prefix + ":" + generation + ":" + file
}

// PublishRedis stores enc under prefix and makes it the current artifact,
// deleting the previous generation. It returns the new generation.
func PublishRedis(ctx context.Context, store KVStore, prefix string, enc *Encoded) (string, error) {
	logger := slog.Default().With("component", "artifact-publisher", "prefix", prefix)
	generation := Checksum(enc.Manifest)

	values := make(map[string][]byte, len(enc.Partitions)+1)
	values[fileKey(prefix, generation, ManifestFile)] = enc.Manifest
	for _, f := range enc.Partitions {
		values[fileKey(prefix, generation, f.Path)] = f.Data
	}
	if err := store.SetAll(ctx, values); err != nil {
		return "", fmt.Errorf("storing generation %s: %w", generation, err)
	}

	previous, err := store.Get(ctx, currentKey(prefix))
	if err != nil && !pkgredis.IsNilError(err) {
		return "", fmt.Errorf("reading current generation: %w", err)
	}
	if err := store.SetAll(ctx, map[string][]byte{currentKey(prefix): []byte(generation)}); err != nil {
		return "", fmt.Errorf("switching to generation %s: %w", generation, err)
	}
	if old := string(previous); old != "" && old != generation {
		deleted, err := store.FlushByPattern(ctx, prefix+":"+old+":*")
		if err != nil {
			logger.Warn("removing previous generation failed", "generation", old, "error", err)
		} else {
			logger.Info("previous generation removed", "generation", old, "keys_deleted", deleted)
		}
	}
	logger.Info("artifact published",
		"generation", generation,
		"partitions", len(enc.Partitions),
	)
	return generation, nil
}

// RedisSource reads an artifact published with PublishRedis.
type RedisSource struct {
	kv     KV
	prefix string

	mu         sync.RWMutex
	generation string
}

func NewRedisSource(kv KV, prefix string) *RedisSource {
	return &RedisSource{kv: kv, prefix: prefix}
}

func (s *RedisSource) Manifest(ctx context.Context) ([]byte, error) {
	gen, err := s.kv.Get(ctx, currentKey(s.prefix))
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, fmt.Errorf("%w: nothing published under %s", apperrors.ErrCorruptArtifact, s.prefix)
		}
		return nil, fmt.Errorf("reading current generation: %w", err)
	}
	data, err := s.kv.Get(ctx, fileKey(s.prefix, string(gen), ManifestFile))
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, fmt.Errorf("%w: generation %s has no manifest", apperrors.ErrCorruptArtifact, gen)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	s.mu.Lock()
	s.generation = string(gen)
	s.mu.Unlock()
	return data, nil
}

func (s *RedisSource) Partition(ctx context.Context, file string) ([]byte, error) {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()
	if gen == "" {
		return nil, fmt.Errorf("%w: manifest not loaded", apperrors.ErrMissingPartition)
	}
	data, err := s.kv.Get(ctx, fileKey(s.prefix, gen, file))
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, fmt.Errorf("%w: %s (generation %s)", apperrors.ErrMissingPartition, file, gen)
		}
		return nil, fmt.Errorf("reading partition %s: %w", file, err)
	}
	return data, nil
}

func (s *RedisSource) String() string { return "redis:" + s.prefix }
