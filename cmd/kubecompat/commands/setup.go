package commands

import (
	"context"
	"fmt"
	"log/slog"

	"kubecompat/lib/charts"
	"kubecompat/lib/compat"
	"kubecompat/lib/executil"
	"kubecompat/lib/fetch"
	"kubecompat/lib/github"
	"kubecompat/lib/history"
	"kubecompat/lib/kubeversion"
	"kubecompat/lib/ledgerstore"
	"kubecompat/lib/scraper"
	"kubecompat/lib/serviceutil"
	"kubecompat/lib/summary"
	"kubecompat/lib/versionutil"
)

func newFetcher() *fetch.Client {
	client, err := fetch.NewClient(cfg.fetchOptions())
	if err != nil {
		serviceutil.Fatal("failed to create fetch client", err)
	}
	return client
}

func newStore() ledgerstore.FileStore {
	return ledgerstore.NewFileStore(cfg.LedgerDir)
}

func newEnv(ctx context.Context, fetcher fetch.Fetcher) (scraper.Env, error) {
	mode, err := versionutil.ParseExpandMode(cfg.ExpandMode)
	if err != nil {
		return scraper.Env{}, err
	}

	githubFetcher, err := fetch.NewClient(cfg.githubOptions())
	if err != nil {
		return scraper.Env{}, err
	}

	kube, err := kubeversion.Refresh(ctx, fetcher, cfg.KubeVersionURL, cfg.KubeVersionFile)
	if err != nil {
		return scraper.Env{}, fmt.Errorf("determine kube version: %w", err)
	}

	return scraper.Env{
		Fetcher:     fetcher,
		GitHub:      github.NewClient(githubFetcher, cfg.Github.BaseURL),
		Runner:      executil.ExecRunner{},
		KubeVersion: kube,
		ExpandMode:  mode,
	}, nil
}

func openHistory(ctx context.Context) (history.Store, bool) {
	if cfg.History.File == "" && cfg.History.Url == "" {
		return history.Store{}, false
	}
	db, err := cfg.History.OpenDB()
	if err != nil {
		slog.WarnContext(ctx, "failed to open history, runs will not be recorded", "err", err)
		return history.Store{}, false
	}
	store, err := history.NewStore(ctx, db)
	if err != nil {
		db.Close()
		slog.WarnContext(ctx, "failed to initialize history, runs will not be recorded", "err", err)
		return history.Store{}, false
	}
	return store, true
}

// newUpdater wires the updater, the returned func releases its resources.
func newUpdater(ctx context.Context, env scraper.Env) (compat.Updater, func()) {
	updater := compat.Updater{
		Store:      newStore(),
		Fetcher:    env.Fetcher,
		Summarizer: summary.DiffSummarizer{},
		EOLSlugs:   cfg.EOL.Slugs,
		EOLBaseURL: cfg.EOL.BaseURL,
	}
	if !cfg.Helm.SkipImages {
		updater.Images = charts.NewHelmResolver(env.Runner, cfg.Helm.Binary, env.KubeVersion)
	}

	store, ok := openHistory(ctx)
	if !ok {
		return updater, func() {}
	}
	updater.History = store
	return updater, func() {
		err := store.Close()
		if err != nil {
			slog.WarnContext(ctx, "failed to close history", "err", err)
		}
	}
}
