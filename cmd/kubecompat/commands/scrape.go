package commands

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kubecompat/lib/compat"
	"kubecompat/lib/history"
	"kubecompat/lib/notify"
	"kubecompat/lib/scrapers"
	"kubecompat/lib/serviceutil"
)

var scrapeDumpDir *string

func init() {
	scrapeDumpDir = scrapeCmd.Flags().String("dump-http", "", "Write every request and response to this directory.")
	rootCmd.AddCommand(scrapeCmd)
}

// runCollector stamps every run with the batch, keeps it for the report
// and forwards it to the history when there is one.
type runCollector struct {
	batch string
	next  compat.Recorder

	mutex sync.Mutex
	runs  []history.Run
}

func (c *runCollector) Record(ctx context.Context, run history.Run) error {
	run.Batch = c.batch

	c.mutex.Lock()
	c.runs = append(c.runs, run)
	c.mutex.Unlock()

	if c.next == nil {
		return nil
	}
	return c.next.Record(ctx, run)
}

func (c *runCollector) report() notify.Report {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return notify.Report{Batch: c.batch, Runs: append([]history.Run(nil), c.runs...)}
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [apps...]",
	Short: "Scrapes the given applications (all of them by default) and updates their ledgers.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		selected, err := scrapers.Default().Select(args)
		if err != nil {
			serviceutil.Fatal("failed to select applications", err)
		}

		if *scrapeDumpDir != "" {
			cfg.Fetch.DumpDir = *scrapeDumpDir
		}

		env, err := newEnv(ctx, newFetcher())
		if err != nil {
			serviceutil.Fatal("failed to prepare scrape environment", err)
		}
		updater, closeUpdater := newUpdater(ctx, env)
		defer closeUpdater()

		batch, err := history.NewBatch()
		if err != nil {
			serviceutil.Fatal("failed to generate batch id", err)
		}
		collector := &runCollector{batch: batch, next: updater.History}
		updater.History = collector

		var (
			mutex  sync.Mutex
			failed []error
			group  errgroup.Group
		)
		group.SetLimit(cfg.Concurrency)

		start := time.Now()
		for _, s := range selected {
			group.Go(func() error {
				err := updater.Run(ctx, env, s)
				if err != nil {
					slog.ErrorContext(ctx, "failed to update application", "app", s.Name(), "err", err)
					mutex.Lock()
					failed = append(failed, err)
					mutex.Unlock()
					return nil
				}
				slog.InfoContext(ctx, "updated application", "app", s.Name())
				return nil
			})
		}
		group.Wait()

		slog.InfoContext(ctx, "scraping time",
			"batch", batch,
			"seconds", time.Since(start).Seconds(),
			"apps", len(selected),
			"failed", len(failed),
		)

		mailer := notify.NewMailer(cfg.Notify)
		report := collector.report()
		if mailer.ShouldSend(report) {
			err := mailer.Send(ctx, report)
			if err != nil {
				slog.WarnContext(ctx, "failed to send report", "batch", batch, "err", err)
			}
		}

		if len(failed) > 0 {
			closeUpdater()
			serviceutil.Fatal("some applications failed to update", errors.Join(failed...))
		}
	},
}
