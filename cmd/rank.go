package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agrilink/fulfillment/app"
	"github.com/agrilink/fulfillment/config"
	"github.com/agrilink/fulfillment/infra/logger"
)

var rankCmd = &cobra.Command{
	Use:   "rank <request-id>",
	Short: "Print the ranked candidate lots for a request",
	Args:  cobra.ExactArgs(1),
	RunE:  rank,
}

func init() {
	rootCmd.AddCommand(rankCmd)
}

func rank(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	logg := logger.New("rank-command")
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	ranked, err := svc.Manager.Rank(context.Background(), args[0])
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		fmt.Println("no candidate lots")
		return nil
	}
	fmt.Printf("%-10s %-12s %-10s %-6s %-10s %s\n",
		"SCORE", "LOT", "REMAINING", "UNIT", "TIER", "SUFFICIENT")
	for _, rb := range ranked {
		fmt.Printf("%-10d %-12s %-10s %-6s %-10s %v\n",
			rb.Score.Composite, rb.Batch.LotCode, rb.Batch.Remaining, rb.Batch.Unit,
			rb.Tier, rb.Sufficient)
	}
	return nil
}
