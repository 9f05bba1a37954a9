package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/channel"
	"github.com/seedkeep/seedkeep/internal/daemon"
	"github.com/seedkeep/seedkeep/internal/index"
	"github.com/seedkeep/seedkeep/internal/inventory"
	"github.com/seedkeep/seedkeep/internal/rescache"
)

var rootCmd = &cobra.Command{
	Use:   "seedkeep",
	Short: "Local lifecycle manager for downloaded network content",
	Long: "seedkeep tracks which claims exist on local storage, verifies their\n" +
		"blobs, repairs incomplete downloads, and enforces disk-space retention.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var logLevel string

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ~/.config/seedkeep/config.yaml)")
	pf.String("server", daemon.DefaultAddress, "daemon JSON-RPC address")
	pf.String("blob-dir", "", "flat blob store directory")
	pf.String("media-dir", "", "downloaded media directory")
	pf.String("main-dir", "", "partition root holding both media and blobs")
	pf.String("cache-dir", "", "cache directory (default: ~/.local/share/seedkeep)")
	pf.Int("threads", channel.DefaultWorkers, "parallel network calls")
	pf.Duration("timeout", daemon.DefaultTimeout, "per-call network timeout")
	pf.StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	viper.BindPFlag("server", pf.Lookup("server"))
	viper.BindPFlag("blob_dir", pf.Lookup("blob-dir"))
	viper.BindPFlag("media_dir", pf.Lookup("media-dir"))
	viper.BindPFlag("main_dir", pf.Lookup("main-dir"))
	viper.BindPFlag("cache_dir", pf.Lookup("cache-dir"))
	viper.BindPFlag("threads", pf.Lookup("threads"))
	viper.BindPFlag("timeout", pf.Lookup("timeout"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SEEDKEEP")
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	viper.SetDefault("blob_dir", filepath.Join(home, ".local", "share", "lbry", "lbrynet", "blobfiles"))
	viper.SetDefault("media_dir", filepath.Join(home, "Downloads"))
	viper.SetDefault("main_dir", home)
	viper.SetDefault("cache_dir", defaultCacheDir())

	viper.ReadInConfig()
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "seedkeep")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "seedkeep")
	}
	return ".seedkeep"
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "seedkeep")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "seedkeep")
	}
	return ".seedkeep"
}

func newClient() *daemon.HTTPClient {
	client := daemon.New(viper.GetString("server"))
	client.SetTimeout(viper.GetDuration("timeout"))
	return client
}

func scanBlobs() (*inventory.Snapshot, error) {
	return inventory.Scan(viper.GetString("blob_dir"))
}

// loadIndex rebuilds the claim index from the daemon's local records and
// applies cached validity from previous runs.
func loadIndex(ctx context.Context, client daemon.Client) (*index.Index, *rescache.Cache, error) {
	idx := index.New(client)
	if err := idx.LoadLocal(ctx); err != nil {
		return nil, nil, err
	}

	cache, err := rescache.New(viper.GetString("cache_dir"))
	if err != nil {
		log.Warn().Err(err).Msg("resolution cache unavailable")
		return idx, nil, nil
	}

	contents := cache.Load()
	byID := make(map[string]*seedkeep.Claim, idx.Len())
	for claim := range idx.All() {
		byID[claim.ID] = claim
	}
	contents.ApplyValidity(byID)

	return idx, cache, nil
}

// newResolver builds a channel resolver seeded from the cache.
func newResolver(client daemon.Client, cache *rescache.Cache) *channel.Resolver {
	resolver := channel.NewResolver(client, channel.WithWorkers(viper.GetInt("threads")))
	if cache != nil {
		resolver.Seed(cache.Load().ChannelList())
	}
	return resolver
}

// saveCache persists resolution results for the next run.
func saveCache(cache *rescache.Cache, resolver *channel.Resolver, idx *index.Index) {
	if cache == nil {
		return
	}
	contents := rescache.Contents{
		Claims: rescache.FromClaims(idx.Sorted()),
	}
	if resolver != nil {
		contents.Channels = rescache.FromChannels(resolver.Resolved())
	}
	if err := cache.Save(contents); err != nil {
		log.Warn().Err(err).Msg("failed to persist resolution cache")
	}
}

// commonTimeout bounds a whole CLI invocation generously; individual network
// calls carry their own per-call timeout.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 6*time.Hour)
}
