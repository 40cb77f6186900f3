package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/buildlog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	"github.com/spf13/cobra"
)

func RunHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("failed to read --limit flag: %w", err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("failed to read --json flag: %w", err)
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	store := buildlog.NewStore(db)
	if err := store.EnsureSchema(cmd.Context()); err != nil {
		return err
	}
	builds, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd, builds)
	}
	return writeHistory(cmd, builds)
}

func writeHistory(cmd *cobra.Command, builds []buildlog.Build) error {
	out := cmd.OutOrStdout()
	if len(builds) == 0 {
		fmt.Fprintln(out, "no builds recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tGENERATION\tRECORDS\tREJECTED\tENTRIES\tPARTITIONS\tOUTPUT")
	for _, b := range builds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			b.StartedAt.Local().Format(time.DateTime),
			b.Duration().Round(time.Millisecond),
			b.Generation,
			b.Report.Records,
			b.Report.Rejected,
			b.Report.Entries,
			b.Report.Partitions,
			b.Output,
		)
	}
	return tw.Flush()
}
