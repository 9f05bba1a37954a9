package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/seedkeep/seedkeep/internal/channel"
	"github.com/seedkeep/seedkeep/internal/integrity"
	"github.com/seedkeep/seedkeep/internal/report"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known claims as machine-parseable records",
	Long: "List every locally known claim, one record per line: claim ID,\n" +
		"channel, release time, blob counts, media presence, and validity.",
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().String("sep", report.DefaultSeparator, "field separator")
	listCmd.Flags().Bool("online", false, "resolve full channel names from the network")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
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

	mode := channel.Offline
	if online, _ := cmd.Flags().GetBool("online"); online {
		mode = channel.Online
	}
	resolver := newResolver(client, cache)
	resolver.Annotate(ctx, claims, mode)

	analyzer := integrity.NewAnalyzer(inv)
	results := make([]integrity.Result, len(claims))
	for i, claim := range claims {
		results[i] = analyzer.Analyze(claim)
	}

	sep, _ := cmd.Flags().GetString("sep")
	writer := report.NewWriter(sep)
	if err := writer.WriteAll(os.Stdout, results); err != nil {
		return err
	}

	saveCache(cache, resolver, idx)
	return nil
}
