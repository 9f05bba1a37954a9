package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedkeep/seedkeep/internal/retention"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show disk usage against the configured budget",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("size", "1000GB", "disk budget for downloaded content")
	statusCmd.Flags().Float64("percent", retention.DefaultThresholdPercent, "eviction trigger, percent of budget")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	budget, err := parseSize(cmd.Flag("size").Value.String())
	if err != nil {
		return err
	}
	percent, _ := cmd.Flags().GetFloat64("percent")

	usage, err := retention.MeasureUsage(viper.GetString("main_dir"), budget, percent)
	if err != nil {
		return err
	}

	fmt.Printf("Main directory: %s\n", usage.RootPath)
	fmt.Printf("Limit: %.2f%% (%s) of %s\n", percent,
		humanize.IBytes(uint64(usage.TriggerBytes())), humanize.IBytes(uint64(budget)))
	fmt.Printf("Usage: %.2f%% (%s)\n",
		float64(usage.MeasuredBytes)/float64(budget)*100,
		humanize.IBytes(uint64(usage.MeasuredBytes)))

	if usage.AboveTrigger() {
		fmt.Println(">>> Downloads are above the indicated limit.")
	} else {
		fmt.Println("Downloads are within limits.")
	}
	return nil
}

func parseSize(s string) (int64, error) {
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(bytes), nil
}
