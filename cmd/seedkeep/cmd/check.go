package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/integrity"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Classify blob completeness of downloaded claims",
	Long: "Cross-reference every known claim's manifest against the blob store\n" +
		"and report which claims are complete, incomplete, or missing their manifest.",
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("channel", "", "only check claims from this channel")
	checkCmd.Flags().Bool("online", false, "also verify each claim still resolves on the network")
	checkCmd.Flags().Bool("each", false, "print the classification of every claim")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
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
	if ch, _ := cmd.Flags().GetString("channel"); ch != "" {
		claims = filterByChannel(claims, ch)
		if len(claims) == 0 {
			return fmt.Errorf("no downloaded claims for channel %s", ch)
		}
	}

	if online, _ := cmd.Flags().GetBool("online"); online {
		valid, invalid, failed := idx.CheckAll(ctx, viper.GetInt("threads"))
		fmt.Printf("online: %d valid, %d invalid, %d failed to resolve\n", valid, invalid, failed)
	}

	analyzer := integrity.NewAnalyzer(inv)
	results, sum := analyzer.AnalyzeAll(claims, viper.GetInt("threads"))

	if each, _ := cmd.Flags().GetBool("each"); each {
		for _, res := range results {
			fmt.Printf("%s  %s  %d/%d  %s\n", res.Claim.ID, res.Claim.Name,
				res.Present, res.Expected, res.State)
		}
		fmt.Println()
	}

	fmt.Printf("claims with complete blobs: %d\n", sum.Complete)
	fmt.Printf("claims with incomplete blobs: %d (continue download)\n", sum.Incomplete)
	fmt.Printf("claims with no manifest blob: %d (restart download)\n", sum.ManifestMissing)
	fmt.Printf("blobs present: %d of %d expected\n", sum.BlobsPresent, sum.BlobsExpected)

	saveCache(cache, nil, idx)
	return nil
}

func filterByChannel(claims []*seedkeep.Claim, channelName string) []*seedkeep.Claim {
	if !strings.HasPrefix(channelName, "@") {
		channelName = "@" + channelName
	}
	var filtered []*seedkeep.Claim
	for _, claim := range claims {
		if claim.ChannelName == channelName {
			filtered = append(filtered, claim)
		}
	}
	return filtered
}
