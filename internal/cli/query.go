package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchd"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/spf13/cobra"
)

type queryOutput struct {
	Query          string               `json:"query"`
	Results        []searchd.ResultJSON `json:"results"`
	Degraded       bool                 `json:"degraded"`
	MissingBuckets []symbol.Bucket      `json:"missingBuckets,omitempty"`
	Stats          query.Stats          `json:"stats"`
}

func RunQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	search, err := querySearchConfig(cmd, cfg.Search)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("failed to read --limit flag: %w", err)
	}
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("failed to read --json flag: %w", err)
	}
	ctx := cmd.Context()

	var kv artifact.KV
	if search.Source == "redis" {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		kv = client
	}
	open, err := searchd.NewOpener(search, kv, cfg.Redis.Prefix, nil)
	if err != nil {
		return err
	}
	session, err := open(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	res, err := session.Search(ctx, args[0], limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd, queryOutput{
			Query:          res.Query,
			Results:        searchd.NewResults(res.Matches),
			Degraded:       res.Degraded,
			MissingBuckets: res.MissingBuckets,
			Stats:          session.Stats(),
		})
	}

	out := cmd.OutOrStdout()
	if res.Degraded {
		fmt.Fprintf(out, "warning: partitions unavailable for buckets %v; results may be incomplete\n", res.MissingBuckets)
	}
	if len(res.Matches) == 0 {
		fmt.Fprintf(out, "no matches for %q\n", res.Query)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, m := range res.Matches {
		for i, occ := range m.Entry.Occurrences {
			name, tier := m.Entry.DisplayName, m.Tier.String()
			if i > 0 {
				name, tier = "", ""
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", tier, name, occ.Kind, occ.Target, strings.TrimSpace(occ.Label))
		}
	}
	return tw.Flush()
}

func querySearchConfig(cmd *cobra.Command, search config.SearchConfig) (config.SearchConfig, error) {
	dir, err := OptionalStringFlag(cmd, "artifact")
	if err != nil {
		return search, err
	}
	url, err := OptionalStringFlag(cmd, "url")
	if err != nil {
		return search, err
	}
	fromRedis, err := cmd.Flags().GetBool("from-redis")
	if err != nil {
		return search, fmt.Errorf("failed to read --from-redis flag: %w", err)
	}
	scope, err := OptionalStringFlag(cmd, "scope")
	if err != nil {
		return search, err
	}

	switch {
	case url != "" && fromRedis:
		return search, fmt.Errorf("--url and --from-redis are mutually exclusive")
	case url != "":
		search.Source = "http"
		search.BaseURL = url
	case fromRedis:
		search.Source = "redis"
	case dir != "":
		search.Source = "dir"
		search.ArtifactDir = dir
	}
	if scope != "" {
		search.SubstringScope = scope
	}
	return search, nil
}
