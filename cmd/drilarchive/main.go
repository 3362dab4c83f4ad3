package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/codemasher/dril-archive/internal/archive"
	"github.com/codemasher/dril-archive/internal/config"
	"github.com/codemasher/dril-archive/internal/logging"
	"github.com/codemasher/dril-archive/internal/metrics"
	"github.com/codemasher/dril-archive/internal/twitter"
)

const defaultConfigPath = "./drilarchive.yaml"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "build":
		cmdBuild()
	case "update":
		cmdUpdate()
	case "counters":
		cmdCounters()
	case "render":
		cmdRender()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: drilarchive <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init      Create a config file at " + defaultConfigPath)
	fmt.Println("  build     Compile the timeline from all configured sources")
	fmt.Println("  update    Incremental build seeded from the exported snapshot")
	fmt.Println("  counters  Refresh tweet counters on an existing snapshot")
	fmt.Println("  render    Re-render the static pages from an existing snapshot")
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", defaultConfigPath, "path to write config")
	_ = fs.Parse(os.Args[2:])

	if err := config.Save(*path, config.Default()); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
}

// app bundles the long-lived pieces of one CLI invocation.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	cache    *twitter.Cache
	archiver *archive.Archiver
}

func newApp(cfgPath string) *app {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)

	if cfg.MetricsAddr != "" {
		metrics.StartServer(cfg.MetricsAddr)
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
	}

	var cache *twitter.Cache
	if cfg.Paths.CacheDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Paths.CacheDB), 0o755); err != nil {
			log.Fatal().Err(err).Msg("could not create cache dir")
		}
		cache, err = twitter.OpenCache(cfg.Paths.CacheDB)
		if err != nil {
			log.Fatal().Err(err).Msg("could not open response cache")
		}
	}

	if cfg.Credentials.APIToken == "" {
		log.Warn().Msg("missing TWITTER_BEARER; API calls will fail")
	}

	client := twitter.NewClient(twitter.ClientOptions{
		APIToken:      cfg.Credentials.APIToken,
		AdaptiveToken: cfg.Credentials.AdaptiveToken,
		GuestToken:    cfg.Credentials.AdaptiveGuestToken,
		RetriesOn429:  cfg.Fetch.RetriesOn429,
		PoliteDelay:   cfg.Fetch.PoliteDelay,
		IdleWait:      cfg.Fetch.IdleWait,
		Cache:         cache,
		ReadCache:     cfg.Fetch.FromCachedResponses,
		Logger:        log,
	})

	return &app{
		cfg:      cfg,
		log:      log,
		cache:    cache,
		archiver: archive.New(cfg, client, log),
	}
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

func (a *app) snapshotPath() string {
	return filepath.Join(a.cfg.Paths.OutDir, a.cfg.Account.Handle+".json")
}

func cmdBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	snapshot := fs.String("snapshot", "", "prior snapshot to seed from")
	scanRTs := fs.Bool("scan-retweets", true, "re-resolve retweet stubs from the prior snapshot")
	since := fs.Int64("since", 0, "lookback cutoff (epoch seconds) for retweet re-resolution")
	_ = fs.Parse(os.Args[2:])

	a := newApp(*cfgPath)
	defer a.close()

	tl, err := a.archiver.Compile(context.Background(), archive.CompileOptions{
		SnapshotPath: *snapshot,
		ScanRetweets: *scanRTs,
		Since:        *since,
	})
	if err != nil {
		a.log.Fatal().Err(err).Msg("compile failed")
	}
	if err := a.archiver.Export(tl); err != nil {
		a.log.Fatal().Err(err).Msg("export failed")
	}
}

// update is build seeded from the last exported snapshot, so repeated runs
// only have to resolve what changed inside the lookback window.
func cmdUpdate() {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	snapshot := fs.String("snapshot", "", "prior snapshot (default: the exported one)")
	scanRTs := fs.Bool("scan-retweets", true, "re-resolve retweet stubs from the prior snapshot")
	since := fs.Int64("since", 0, "lookback cutoff (epoch seconds) for retweet re-resolution")
	_ = fs.Parse(os.Args[2:])

	a := newApp(*cfgPath)
	defer a.close()

	path := *snapshot
	if path == "" {
		path = a.snapshotPath()
	}

	tl, err := a.archiver.Compile(context.Background(), archive.CompileOptions{
		SnapshotPath: path,
		ScanRetweets: *scanRTs,
		Since:        *since,
	})
	if err != nil {
		a.log.Fatal().Err(err).Msg("compile failed")
	}
	if err := a.archiver.Export(tl); err != nil {
		a.log.Fatal().Err(err).Msg("export failed")
	}
}

func cmdCounters() {
	fs := flag.NewFlagSet("counters", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	snapshot := fs.String("snapshot", "", "snapshot to refresh (default: the exported one)")
	_ = fs.Parse(os.Args[2:])

	a := newApp(*cfgPath)
	defer a.close()

	path := *snapshot
	if path == "" {
		path = a.snapshotPath()
	}

	tl, err := a.archiver.UpdateCounters(context.Background(), path)
	if err != nil {
		a.log.Fatal().Err(err).Msg("counter refresh failed")
	}
	if err := a.archiver.Export(tl); err != nil {
		a.log.Fatal().Err(err).Msg("export failed")
	}
}

func cmdRender() {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	snapshot := fs.String("snapshot", "", "snapshot to render (default: the exported one)")
	_ = fs.Parse(os.Args[2:])

	a := newApp(*cfgPath)
	defer a.close()

	path := *snapshot
	if path == "" {
		path = a.snapshotPath()
	}

	tl, err := archive.ReadSnapshot(path)
	if err != nil {
		a.log.Fatal().Err(err).Msg("could not read snapshot")
	}
	if err := tl.SortBy("id", true); err != nil {
		a.log.Fatal().Err(err).Msg("invalid sort key")
	}
	if err := a.archiver.Export(tl); err != nil {
		a.log.Fatal().Err(err).Msg("export failed")
	}
}
