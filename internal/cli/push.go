package cli

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/records"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/spf13/cobra"
)

type pushSummary struct {
	Topic     string        `json:"topic"`
	Files     records.Stats `json:"files"`
	Published int           `json:"published"`
	Rejected  int           `json:"rejected"`
}

// RunPush feeds the record topic that "build --kafka" consumes.
func RunPush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	batch, err := cmd.Flags().GetInt("batch")
	if err != nil {
		return fmt.Errorf("failed to read --batch flag: %w", err)
	}

	topic := cfg.Kafka.Topics.SymbolRecords
	producer := kafka.NewProducer(cfg.Kafka, topic)
	defer producer.Close()

	pub := records.NewPublisher(cmd.Context(), producer, batch)
	stats, err := records.ReadFiles(args, pub)
	if err != nil {
		return err
	}
	if err := pub.Flush(); err != nil {
		return err
	}
	return printJSON(cmd, pushSummary{
		Topic:     topic,
		Files:     stats,
		Published: pub.Published(),
		Rejected:  pub.Rejected(),
	})
}
