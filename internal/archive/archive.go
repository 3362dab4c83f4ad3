package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/codemasher/dril-archive/internal/config"
	"github.com/codemasher/dril-archive/internal/metrics"
	"github.com/codemasher/dril-archive/internal/model"
	"github.com/codemasher/dril-archive/internal/render"
	"github.com/codemasher/dril-archive/internal/twitter"
)

// topPageCount caps the top-liked/top-retweeted cuts to a single page.
const topPageCount = 1

// Archiver orchestrates a compile run: source ingest, the repair passes,
// snapshot export and page rendering.
type Archiver struct {
	cfg    config.Config
	client *twitter.Client
	log    zerolog.Logger
}

func New(cfg config.Config, client *twitter.Client, log zerolog.Logger) *Archiver {
	return &Archiver{cfg: cfg, client: client, log: log}
}

// CompileOptions selects the inputs of one compile run.
type CompileOptions struct {
	// SnapshotPath is a previously exported snapshot to seed from, empty to
	// start cold.
	SnapshotPath string
	// ScanRetweets re-pools snapshot retweet stubs inside the lookback
	// window for re-resolution.
	ScanRetweets bool
	// Since overrides the lookback cutoff, 0 uses the configured default.
	Since int64
}

// defaultSince is the fallback lookback cutoff, Jan 1 2006 UTC. Retweet
// statuses older than that predate the native retweet feature.
var defaultSince = time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

func (a *Archiver) since(opts CompileOptions) int64 {
	if opts.Since != 0 {
		return opts.Since
	}
	if a.cfg.Fetch.RetweetSince != 0 {
		return a.cfg.Fetch.RetweetSince
	}
	return defaultSince
}

// Compile runs the full reconciliation pipeline and returns the finalized
// timeline sorted by ID descending. Unreadable initial inputs are fatal;
// everything downstream degrades to a best effort snapshot.
func (a *Archiver) Compile(ctx context.Context, opts CompileOptions) (*model.Timeline, error) {
	start := time.Now()
	defer metrics.ObserveCompileDuration(start)

	r := NewReconciler(a.client, a.since(opts), a.log)

	if opts.SnapshotPath != "" {
		prior, err := ReadSnapshot(opts.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("read prior snapshot: %w", err)
		}
		r.IngestSnapshot(prior, opts.ScanRetweets)
	}

	if a.cfg.Fetch.FromAdaptiveSearch {
		r.IngestAdaptiveSearch(ctx, a.cfg.Account.Query)
	}
	if a.cfg.Fetch.FromAPISearch {
		r.IngestAPISearch(ctx, a.cfg.Account.Query)
	}

	if a.cfg.Paths.CSV != "" {
		rows, err := ReadCSV(a.cfg.Paths.CSV)
		if err != nil {
			return nil, fmt.Errorf("read csv export: %w", err)
		}
		r.IngestCSV(rows)
	}

	r.ResolveRetweets(ctx)
	r.BackfillCSV(ctx)
	r.RepairEmbeddedLinks(ctx)
	r.ResolveUsers(ctx)

	tl := r.Finalize()
	if err := tl.SortBy("id", true); err != nil {
		return nil, err
	}

	return tl, nil
}

// Export writes the snapshot JSON and the static pages: the paginated
// timeline, a single page holding everything, and the top-retweeted and
// top-liked cuts.
func (a *Archiver) Export(tl *model.Timeline) error {
	handle := a.cfg.Account.Handle
	outDir := a.cfg.Paths.OutDir

	snapshotPath := filepath.Join(outDir, handle+".json")
	if err := WriteSnapshot(snapshotPath, tl); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	a.log.Info().Int("tweets", tl.Len()).Int("users", tl.UserCount()).Str("path", snapshotPath).Msg("exported snapshot")

	if err := render.WritePages(outDir, tl, render.Options{
		Handle:        handle,
		TweetsPerPage: a.cfg.Render.TweetsPerPage,
	}); err != nil {
		return fmt.Errorf("render timeline: %w", err)
	}

	// one page holding the whole timeline
	if err := a.renderSingle(tl, "id", filepath.Join(outDir, handle+".html")); err != nil {
		return err
	}

	// ranking cuts
	if err := a.renderTop(tl, "retweet_count", filepath.Join(outDir, handle+"-top-retweeted.html")); err != nil {
		return err
	}
	if err := a.renderTop(tl, "like_count", filepath.Join(outDir, handle+"-top-liked.html")); err != nil {
		return err
	}

	// restore the export order
	return tl.SortBy("id", true)
}

func (a *Archiver) renderSingle(tl *model.Timeline, key, dest string) error {
	if err := tl.SortBy(key, true); err != nil {
		return err
	}
	if err := render.WritePages(a.cfg.Paths.BuildDir, tl, render.Options{
		Handle:        a.cfg.Account.Handle,
		TweetsPerPage: -1,
	}); err != nil {
		return fmt.Errorf("render %s: %w", dest, err)
	}
	return os.Rename(filepath.Join(a.cfg.Paths.BuildDir, "index.html"), dest)
}

func (a *Archiver) renderTop(tl *model.Timeline, key, dest string) error {
	top, err := tl.TopBy(key, a.cfg.Render.TopCount)
	if err != nil {
		return err
	}
	if err := render.WritePages(a.cfg.Paths.BuildDir, top, render.Options{
		Handle:        a.cfg.Account.Handle,
		TweetsPerPage: a.cfg.Render.TopCount,
		MaxPages:      topPageCount,
	}); err != nil {
		return fmt.Errorf("render %s: %w", dest, err)
	}
	return os.Rename(filepath.Join(a.cfg.Paths.BuildDir, "index.html"), dest)
}

// UpdateCounters refreshes the count fields of an existing snapshot
// without re-resolving identities, then re-exports it.
func (a *Archiver) UpdateCounters(ctx context.Context, snapshotPath string) (*model.Timeline, error) {
	tl, err := ReadSnapshot(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	for i, ids := range chunk(tl.IDs()) {
		statuses, err := a.client.LookupStatuses(ctx, ids)
		if err != nil {
			a.log.Warn().Err(err).Int("batch", i).Msg("could not refresh counters")
			continue
		}
		for j := range statuses {
			s := &statuses[j]
			t := tl.Get(s.ID.Int64())
			if t == nil {
				continue
			}
			fresh := twitter.ParseTweet(s)
			t.RetweetCount = fresh.RetweetCount
			t.FavoriteCount = fresh.FavoriteCount
			t.ReplyCount = fresh.ReplyCount
			t.QuoteCount = fresh.QuoteCount
		}
		a.log.Info().Int("batch", i).Int("tweets", len(ids)).Msg("refreshed counters")
	}

	if err := tl.SortBy("id", true); err != nil {
		return nil, err
	}

	return tl, nil
}
