// Package cli implements the docindex command line: building search artifacts
// from parser records and inspecting, exporting and publishing them.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docindex",
		Short: "Build and query documentation search indexes",
		Long: `docindex turns the symbol records emitted by a doc-comment parser into a
partitioned search artifact: a manifest plus one file per first-character
bucket, so a search client only downloads the partitions it needs.

Logs go to stderr; command results are printed to stdout.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (default: built-in defaults + DOCSEARCH_* env)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level: debug|info|warn|error")

	buildCmd := &cobra.Command{
		Use:   "build [records.jsonl...]",
		Short: "Build a search artifact from JSONL record files and/or the record topic",
		RunE:  RunBuild,
	}
	buildCmd.Flags().StringSliceP("input", "i", []string{}, "JSONL record files (\"-\" reads stdin); positional arguments are added")
	buildCmd.Flags().Bool("kafka", false, "Also consume the whole symbol record topic")
	buildCmd.Flags().StringP("out", "o", "", "Artifact directory (default: builder.outputDir)")
	buildCmd.Flags().Int("shards", 0, "Build shards (default: builder.shards)")
	buildCmd.Flags().Bool("js", false, "Also write Doxygen-compatible search/all_*.js scripts")
	buildCmd.Flags().String("js-dir", "", "Directory the search/ scripts are written below (default: parent of --out)")
	buildCmd.Flags().Bool("redis", false, "Also publish the artifact to Redis")
	buildCmd.Flags().Bool("preserve-order", false, "Keep occurrences in discovery order")

	pushCmd := &cobra.Command{
		Use:   "push [records.jsonl...]",
		Short: "Publish JSONL records to the symbol record topic",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RunPush,
	}
	pushCmd.Flags().Int("batch", 500, "Records per Kafka write")

	exportCmd := &cobra.Command{
		Use:   "export-js",
		Short: "Write Doxygen-compatible search data scripts for an existing artifact",
		RunE:  RunExportJS,
	}
	exportCmd.Flags().String("artifact", "", "Artifact directory (default: builder.outputDir)")
	exportCmd.Flags().StringP("out", "o", "", "Directory the search/ scripts are written below (default: parent of --artifact)")
	exportCmd.Flags().String("prefix", "", "Prefix for every target (default: builder.jsRelPrefix)")

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an artifact directory to Redis as the current generation",
		RunE:  RunPublish,
	}
	publishCmd.Flags().String("artifact", "", "Artifact directory (default: builder.outputDir)")

	queryCmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run one lookup against an artifact",
		Args:  cobra.ExactArgs(1),
		RunE:  RunQuery,
	}
	queryCmd.Flags().String("artifact", "", "Artifact directory (default: search.artifactDir)")
	queryCmd.Flags().String("url", "", "Read the artifact over HTTP from this base URL instead")
	queryCmd.Flags().Bool("from-redis", false, "Read the current artifact generation from Redis instead")
	queryCmd.Flags().Int("limit", 0, "Maximum results (default: search.defaultLimit)")
	queryCmd.Flags().String("scope", "", "Substring scope: all|bucket (default: search.substringScope)")
	queryCmd.Flags().Bool("json", false, "Print machine-readable results")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded builds from PostgreSQL",
		RunE:  RunHistory,
	}
	historyCmd.Flags().Int("limit", 20, "Number of builds to show")
	historyCmd.Flags().Bool("json", false, "Print machine-readable history")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docindex %s\n", version)
		},
	}

	rootCmd.AddCommand(
		buildCmd,
		pushCmd,
		exportCmd,
		publishCmd,
		queryCmd,
		historyCmd,
		versionCmd,
	)

	return rootCmd
}
