package cli

import (
	"fmt"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/artifact"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/spf13/cobra"
)

type exportSummary struct {
	Artifact string   `json:"artifact"`
	Dir      string   `json:"dir"`
	Files    []string `json:"files"`
}

func RunExportJS(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir, err := OptionalStringFlag(cmd, "artifact")
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Builder.OutputDir
	}
	out, err := OptionalStringFlag(cmd, "out")
	if err != nil {
		return err
	}
	if out == "" {
		out = filepath.Dir(filepath.Clean(dir))
	}
	prefix := cfg.Builder.JSRelPrefix
	if cmd.Flags().Changed("prefix") {
		if prefix, err = cmd.Flags().GetString("prefix"); err != nil {
			return fmt.Errorf("failed to read --prefix flag: %w", err)
		}
	}

	idx, err := artifact.ReadIndex(cmd.Context(), artifact.DirSource{Root: dir})
	if err != nil {
		return fmt.Errorf("reading artifact %s: %w", dir, err)
	}
	files, err := artifact.WriteSearchData(out, idx, prefix)
	if err != nil {
		return fmt.Errorf("writing search data: %w", err)
	}
	return printJSON(cmd, exportSummary{Artifact: dir, Dir: out, Files: files})
}

type publishSummary struct {
	Artifact   string `json:"artifact"`
	Prefix     string `json:"prefix"`
	Generation string `json:"generation"`
	Partitions int    `json:"partitions"`
}

// RunPublish re-encodes the artifact before storing it. Encoding is
// deterministic, so the generation equals the checksum of the manifest on
// disk.
func RunPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir, err := OptionalStringFlag(cmd, "artifact")
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Builder.OutputDir
	}
	ctx := cmd.Context()

	idx, err := artifact.ReadIndex(ctx, artifact.DirSource{Root: dir})
	if err != nil {
		return fmt.Errorf("reading artifact %s: %w", dir, err)
	}
	enc, err := artifact.Encode(idx)
	if err != nil {
		return err
	}
	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()
	gen, err := artifact.PublishRedis(ctx, client, cfg.Redis.Prefix, enc)
	if err != nil {
		return err
	}
	return printJSON(cmd, publishSummary{
		Artifact:   dir,
		Prefix:     cfg.Redis.Prefix,
		Generation: gen,
		Partitions: len(enc.Partitions),
	})
}
