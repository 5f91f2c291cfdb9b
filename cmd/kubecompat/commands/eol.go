package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"kubecompat/lib/eol"
	"kubecompat/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(eolCmd)
}

var eolCmd = &cobra.Command{
	Use:   "eol <app>",
	Short: "Fills end of life dates of a ledger from endoflife.date.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		app := args[0]
		store := newStore()

		l, found, err := store.Load(ctx, app)
		if err != nil {
			serviceutil.Fatal("failed to load ledger", err)
		}
		if !found {
			serviceutil.Fatal("failed to load ledger", fmt.Errorf("no ledger for %q", app))
		}

		slug, ok := cfg.EOL.Slugs[app]
		if !ok {
			slug = app
		}
		cycles, err := eol.Fetch(ctx, newFetcher(), cfg.EOL.BaseURL, slug)
		if err != nil {
			serviceutil.Fatal("failed to fetch eol data", err)
		}

		changed := eol.Enrich(&l, cycles)
		if changed > 0 {
			err = store.Save(ctx, app, l)
			if err != nil {
				serviceutil.Fatal("failed to save ledger", err)
			}
		}
		renderLedger(cmd.OutOrStdout(), l)
	},
}
