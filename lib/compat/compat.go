package compat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kubecompat/lib/charts"
	"kubecompat/lib/eol"
	"kubecompat/lib/fetch"
	"kubecompat/lib/helmindex"
	"kubecompat/lib/history"
	"kubecompat/lib/ledger"
	"kubecompat/lib/ledgerstore"
	"kubecompat/lib/scraper"
	"kubecompat/lib/summary"
)

var tracer = otel.Tracer("kubecompat/lib/compat")

// Recorder keeps the outcome of every update.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Updater folds scrape results into the persisted ledgers. every optional
// dependency left nil disables the step it serves.
type Updater struct {
	Store   ledgerstore.Store
	Fetcher fetch.Fetcher

	Images     charts.ImageResolver
	Summarizer summary.Summarizer
	History    Recorder

	// EOLSlugs maps application names to endoflife.date products.
	EOLSlugs   map[string]string
	EOLBaseURL string
}

// Apply merges result into the stored ledger of app and writes it back.
func (u Updater) Apply(ctx context.Context, app string, result scraper.Result) (ledger.Ledger, error) {
	ctx, span := tracer.Start(ctx, "Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("app", app),
		attribute.Int("candidates", len(result.Versions)),
	)

	existing, found, err := u.Store.Load(ctx, app)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load ledger")
		return ledger.Ledger{}, err
	}
	if !found {
		slog.InfoContext(ctx, "no existing ledger, writing new data", "app", app)
	}

	if result.ResetVersions {
		existing.Versions = nil
	}
	if result.HelmRepositoryURL != "" {
		existing.HelmRepositoryURL = result.HelmRepositoryURL
	}
	if result.ChartName != "" {
		existing.ChartName = result.ChartName
	}

	updated := ledger.Reconcile(existing, result.Versions)

	if result.UpdateChartVersions && updated.HelmRepositoryURL != "" {
		_, err := helmindex.UpdateLedger(ctx, u.Fetcher, &updated, app)
		if err != nil {
			slog.WarnContext(ctx, "failed to update chart versions", "app", app, "err", err)
		}
	}

	u.resolveImages(ctx, app, &updated)
	u.enrichEOL(ctx, app, &updated)

	if u.Summarizer != nil {
		added := ledger.ApplySummaries(ctx, &updated, summary.Func(u.Summarizer))
		slog.DebugContext(ctx, "summarized versions", "app", app, "added", added)
	}

	err = u.Store.Save(ctx, app, updated)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save ledger")
		return ledger.Ledger{}, err
	}
	slog.InfoContext(ctx, "updated compatibility info", "app", app, "versions", len(updated.Versions))
	return updated, nil
}

// resolveImages lists the images of every charted record that has none yet.
func (u Updater) resolveImages(ctx context.Context, app string, l *ledger.Ledger) {
	if u.Images == nil || l.HelmRepositoryURL == "" {
		return
	}

	ref := charts.Ref{
		RepoURL: l.HelmRepositoryURL,
		Chart:   l.ChartName,
		Values:  l.HelmValues,
	}
	if ref.Chart == "" {
		ref.Chart = app
	}

	for idx := range l.Versions {
		record := &l.Versions[idx]
		if record.ChartVersion == "" || len(record.Images) > 0 {
			continue
		}
		images, err := u.Images.Images(ctx, ref, record.ChartVersion)
		if err != nil {
			slog.WarnContext(ctx, "failed to resolve chart images", "app", app, "version", record.Version, "err", err)
			continue
		}
		if len(images) > 0 {
			record.Images = images
		}
	}
}

func (u Updater) enrichEOL(ctx context.Context, app string, l *ledger.Ledger) {
	slug := u.EOLSlugs[app]
	if slug == "" || u.Fetcher == nil {
		return
	}
	cycles, err := eol.Fetch(ctx, u.Fetcher, u.EOLBaseURL, slug)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch eol data", "app", app, "slug", slug, "err", err)
		return
	}
	count := eol.Enrich(l, cycles)
	slog.DebugContext(ctx, "enriched versions with eol dates", "app", app, "count", count)
}

// Run scrapes one application and applies the result. the outcome is
// recorded in the history whether or not it succeeded.
func (u Updater) Run(ctx context.Context, env scraper.Env, s scraper.Scraper) error {
	app := s.Name()
	run := history.Run{App: app, StartedAt: time.Now()}

	err := u.run(ctx, env, s, &run)

	run.FinishedAt = time.Now()
	if err != nil {
		run.Error = err.Error()
	}
	if u.History != nil {
		recordErr := u.History.Record(ctx, run)
		if recordErr != nil {
			slog.WarnContext(ctx, "failed to record run", "app", app, "err", recordErr)
		}
	}
	return err
}

func (u Updater) run(ctx context.Context, env scraper.Env, s scraper.Scraper, run *history.Run) error {
	slog.InfoContext(ctx, "scraping", "app", run.App)
	result, err := s.Scrape(ctx, env)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", run.App, err)
	}
	run.Candidates = len(result.Versions)

	updated, err := u.Apply(ctx, run.App, result)
	if err != nil {
		return fmt.Errorf("update %s: %w", run.App, err)
	}
	run.Versions = len(updated.Versions)
	return nil
}
