package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/channel"
	"github.com/seedkeep/seedkeep/internal/integrity"
	"github.com/seedkeep/seedkeep/internal/retention"
	"github.com/seedkeep/seedkeep/internal/subscriptions"
)

var cleanChannelsCmd = &cobra.Command{
	Use:   "clean-channels <subscriptions.yaml>",
	Short: "Trim each subscribed channel down to its retention count",
	Long: "For every channel in the subscription file, delete all of its claims\n" +
		"except the newest ones, keeping the per-channel (or default) count.\n" +
		"Channels marked protect are skipped.",
	Args: cobra.ExactArgs(1),
	RunE: runCleanChannels,
}

func init() {
	cleanChannelsCmd.Flags().String("what", string(seedkeep.DeleteMedia), "what to delete: media, blobs, or both")
	cleanChannelsCmd.Flags().Int("number", 0, "override the keep count for every channel")
	rootCmd.AddCommand(cleanChannelsCmd)
}

func runCleanChannels(cmd *cobra.Command, args []string) error {
	subs, err := subscriptions.Load(args[0])
	if err != nil {
		return err
	}

	what, err := seedkeep.ParseDeleteWhat(cmd.Flag("what").Value.String())
	if err != nil {
		return err
	}
	override, _ := cmd.Flags().GetInt("number")

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
	resolver := newResolver(client, cache)
	resolver.Annotate(ctx, claims, channel.Offline)

	engine := retention.NewEngine(viper.GetString("main_dir"), inv, integrity.NewAnalyzer(inv))

	totalDeleted := 0
	for _, sub := range subs.Channels {
		if sub.Protect {
			fmt.Printf("%s: protected, skipping\n", sub.Name)
			continue
		}

		keep := sub.Keep
		if override > 0 {
			keep = override
		}

		rep, err := engine.Evict(claims, retention.Request{
			Scope: retention.Scope{Channel: sub.Name, KeepCount: keep},
			What:  what,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s: deleted %d, kept %d newest\n", sub.Name, len(rep.Deletions), keep)
		totalDeleted += len(rep.Deletions)
	}

	fmt.Printf("channels processed: %d, claims deleted: %d\n", len(subs.Channels), totalDeleted)

	saveCache(cache, resolver, idx)
	return nil
}
