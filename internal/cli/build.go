package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/buildlog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/records"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/spf13/cobra"
)

// BuildOptions is one docindex build.
type BuildOptions struct {
	Inputs                 []string
	FromKafka              bool
	Output                 string
	Shards                 int
	JSExport               bool
	JSDir                  string
	JSRelPrefix            string
	PublishRedis           bool
	PreserveDiscoveryOrder bool
}

// BuildSummary is printed when a build finishes.
type BuildSummary struct {
	Build           buildlog.Build `json:"build"`
	Files           records.Stats  `json:"files"`
	Kafka           *records.Stats `json:"kafka,omitempty"`
	SearchData      []string       `json:"search_data,omitempty"`
	RedisGeneration string         `json:"redis_generation,omitempty"`
	HistoryRecorded bool           `json:"history_recorded"`
	Announced       bool           `json:"announced"`
}

func RunBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := buildOptionsFromFlags(cmd, args, cfg)
	if err != nil {
		return err
	}
	summary, err := Build(cmd.Context(), cfg, opts)
	if err != nil {
		return err
	}
	return printJSON(cmd, summary)
}

func buildOptionsFromFlags(cmd *cobra.Command, args []string, cfg *config.Config) (BuildOptions, error) {
	inputs, err := cmd.Flags().GetStringSlice("input")
	if err != nil {
		return BuildOptions{}, fmt.Errorf("failed to read --input flag: %w", err)
	}
	opts := BuildOptions{
		Inputs:                 append(inputs, args...),
		Output:                 cfg.Builder.OutputDir,
		Shards:                 cfg.Builder.Shards,
		JSExport:               cfg.Builder.JSExport,
		JSRelPrefix:            cfg.Builder.JSRelPrefix,
		PublishRedis:           cfg.Redis.Enabled,
		PreserveDiscoveryOrder: cfg.Builder.PreserveDiscoveryOrder,
	}
	if opts.FromKafka, err = cmd.Flags().GetBool("kafka"); err != nil {
		return opts, fmt.Errorf("failed to read --kafka flag: %w", err)
	}
	if out, _ := OptionalStringFlag(cmd, "out"); out != "" {
		opts.Output = out
	}
	if shards, err := cmd.Flags().GetInt("shards"); err != nil {
		return opts, fmt.Errorf("failed to read --shards flag: %w", err)
	} else if shards > 0 {
		opts.Shards = shards
	}
	if js, _ := cmd.Flags().GetBool("js"); js {
		opts.JSExport = true
	}
	if redis, _ := cmd.Flags().GetBool("redis"); redis {
		opts.PublishRedis = true
	}
	if preserve, _ := cmd.Flags().GetBool("preserve-order"); preserve {
		opts.PreserveDiscoveryOrder = true
	}
	opts.JSDir, _ = OptionalStringFlag(cmd, "js-dir")
	return opts, nil
}

// Build reads every record source, writes the artifact and then runs the
// optional follow-ups. Only reading and writing can fail the build; history
// and announcement failures are logged and reported in the summary.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*BuildSummary, error) {
	if len(opts.Inputs) == 0 && !opts.FromKafka {
		return nil, errors.New("no record source: pass record files or --kafka")
	}
	if opts.Output == "" {
		return nil, errors.New("no output directory")
	}
	logger := slog.Default().With("component", "docindex", "output", opts.Output)
	start := time.Now()

	b := builder.NewSharded(opts.Shards, builder.Options{PreserveDiscoveryOrder: opts.PreserveDiscoveryOrder})
	summary := &BuildSummary{}
	if len(opts.Inputs) > 0 {
		stats, err := records.ReadFiles(opts.Inputs, b)
		if err != nil {
			return nil, err
		}
		summary.Files = stats
	}
	if opts.FromKafka {
		stats, err := records.Consume(ctx, cfg.Kafka, cfg.Kafka.IdleTimeout, b)
		if err != nil {
			return nil, err
		}
		summary.Kafka = &stats
	}

	idx, report, err := b.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	enc, err := artifact.Encode(idx)
	if err != nil {
		return nil, err
	}
	if err := artifact.Write(opts.Output, enc); err != nil {
		return nil, err
	}

	build := buildlog.NewBuild(opts.Output, start)
	build.Generation = artifact.Checksum(enc.Manifest)
	build.Report = report

	if opts.JSExport {
		dir := opts.JSDir
		if dir == "" {
			dir = filepath.Dir(filepath.Clean(opts.Output))
		}
		files, err := artifact.WriteSearchData(dir, idx, opts.JSRelPrefix)
		if err != nil {
			return nil, fmt.Errorf("writing search data: %w", err)
		}
		summary.SearchData = files
	}
	if opts.PublishRedis {
		gen, err := publishToRedis(ctx, cfg.Redis, enc)
		if err != nil {
			return nil, err
		}
		summary.RedisGeneration = gen
	}
	build.FinishedAt = time.Now().UTC()
	summary.Build = build

	if cfg.Postgres.Enabled {
		if err := recordHistory(ctx, cfg.Postgres, build); err != nil {
			logger.Warn("build history not recorded", "error", err)
		} else {
			summary.HistoryRecorded = true
		}
	}
	if cfg.Kafka.Enabled {
		if err := announce(ctx, cfg.Kafka, build); err != nil {
			logger.Warn("index-complete not published", "error", err)
		} else {
			summary.Announced = true
		}
	}

	logger.Info("build complete",
		"build_id", build.ID,
		"generation", build.Generation,
		"records", report.Records,
		"accepted", report.Accepted,
		"duplicates", report.Duplicates,
		"rejected", report.Rejected,
		"entries", report.Entries,
		"partitions", report.Partitions,
		"duration", build.Duration().Round(time.Millisecond).String(),
	)
	return summary, nil
}

func publishToRedis(ctx context.Context, cfg config.RedisConfig, enc *artifact.Encoded) (string, error) {
	client, err := pkgredis.NewClient(cfg)
	if err != nil {
		return "", err
	}
	defer client.Close()
	return artifact.PublishRedis(ctx, client, cfg.Prefix, enc)
}

func recordHistory(ctx context.Context, cfg config.PostgresConfig, build buildlog.Build) error {
	db, err := postgres.New(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	store := buildlog.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	return store.Record(ctx, build)
}

func announce(ctx context.Context, cfg config.KafkaConfig, build buildlog.Build) error {
	producer := kafka.NewProducer(cfg, cfg.Topics.IndexComplete)
	defer producer.Close()
	return producer.Publish(ctx, kafka.Event{Key: build.ID, Value: build.Completed()})
}
