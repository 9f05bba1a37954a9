package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/channel"
	"github.com/seedkeep/seedkeep/internal/integrity"
	"github.com/seedkeep/seedkeep/internal/retention"
	"github.com/seedkeep/seedkeep/internal/subscriptions"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Evict old claims to bring disk usage under budget",
	Long: "When usage exceeds the trigger percentage of the budget, delete the\n" +
		"oldest claims (media files, blobs, or both) until usage falls back\n" +
		"under the budget. Protected channels are never touched.",
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().String("size", "", "disk budget, e.g. 500GB (required)")
	cleanCmd.Flags().Float64("percent", retention.DefaultThresholdPercent, "eviction trigger, percent of budget")
	cleanCmd.Flags().String("what", string(seedkeep.DeleteMedia), "what to delete: media, blobs, or both")
	cleanCmd.Flags().StringSlice("protect", nil, "channels that must never be touched")
	cleanCmd.Flags().String("subscriptions", "", "subscription file; its protected channels are added to --protect")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	sizeFlag, _ := cmd.Flags().GetString("size")
	if sizeFlag == "" {
		// No unconditional cleanup: deleting without a stated target is
		// silent data loss.
		return fmt.Errorf("a disk budget is required, e.g. --size 500GB")
	}
	budget, err := parseSize(sizeFlag)
	if err != nil {
		return err
	}

	what, err := seedkeep.ParseDeleteWhat(cmd.Flag("what").Value.String())
	if err != nil {
		return err
	}
	percent, _ := cmd.Flags().GetFloat64("percent")

	protect, _ := cmd.Flags().GetStringSlice("protect")
	if subsPath, _ := cmd.Flags().GetString("subscriptions"); subsPath != "" {
		subs, err := subscriptions.Load(subsPath)
		if err != nil {
			return err
		}
		protect = append(protect, subs.Protected()...)
	}

	ctx, cancel := commandContext()
	defer cancel()

	client := newClient()
	idx, cache, err := loadIndex(ctx, client)
	if err != nil {
		return err
	}

	inv, err := scanBlobs()
	if err != nil {
		return err
	}

	claims := idx.Sorted()

	// Protection compares resolved identities, so annotate before evicting.
	resolver := newResolver(client, cache)
	mode := channel.Offline
	if len(protect) > 0 {
		mode = channel.Online
	}
	resolver.Annotate(ctx, claims, mode)

	engine := retention.NewEngine(viper.GetString("main_dir"), inv, integrity.NewAnalyzer(inv))
	rep, err := engine.Evict(claims, retention.Request{
		BudgetBytes:      budget,
		ThresholdPercent: percent,
		Protect:          protect,
		What:             what,
	})
	if err != nil {
		return err
	}

	printReport(rep)
	saveCache(cache, resolver, idx)
	return nil
}

func printReport(rep retention.Report) {
	for _, del := range rep.Deletions {
		fmt.Printf("deleted %s: %s (%s, freed %s)\n",
			string(del.What), del.Claim.Name, del.Claim.ID,
			humanize.IBytes(uint64(del.FreedBytes)))
	}
	fmt.Printf("claims deleted: %d, skipped: %d, freed: %s\n",
		len(rep.Deletions), rep.Skipped, humanize.IBytes(uint64(rep.FreedBytes)))
	if rep.Partial {
		fmt.Println(">>> Went through all eligible claims and failed to clear enough space.")
	}
}
