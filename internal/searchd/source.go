package searchd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// NewOpener returns an Opener for the configured artifact source. kv is only
// used, and required, when cfg.Source is "redis".
func NewOpener(cfg config.SearchConfig, kv artifact.KV, redisPrefix string, m *metrics.Metrics) (Opener, error) {
	scope, err := query.ParseScope(cfg.SubstringScope)
	if err != nil {
		return nil, err
	}
	opts := query.Options{
		SubstringScope:  scope,
		LoadConcurrency: cfg.LoadConcurrency,
		Metrics:         m,
	}

	var src func() artifact.Source
	switch cfg.Source {
	case "dir":
		dir := artifact.DirSource{Root: cfg.ArtifactDir}
		src = func() artifact.Source { return dir }
	case "http":
		retry := resilience.RetryConfig{
			MaxAttempts:    cfg.FetchRetries,
			AttemptTimeout: cfg.FetchTimeout,
		}
		hs, err := artifact.NewHTTPSource(cfg.BaseURL, &http.Client{}, retry, cfg.MaxFetchBytes)
		if err != nil {
			return nil, err
		}
		src = func() artifact.Source { return hs }
	case "redis":
		if kv == nil {
			return nil, fmt.Errorf("search source redis requires a redis client")
		}
		// A RedisSource pins the generation it first sees, so every session
		// gets its own.
		src = func() artifact.Source { return artifact.NewRedisSource(kv, redisPrefix) }
	default:
		return nil, fmt.Errorf("unknown search source %q", cfg.Source)
	}

	return func(ctx context.Context) (*query.Session, error) {
		return query.Open(ctx, src(), opts)
	}, nil
}
