package commands

import (
	"github.com/spf13/cobra"

	"kubecompat/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the stored ledgers.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		store := newStore()

		apps, err := store.List(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list ledgers", err)
		}

		summaries := make([]ledgerSummary, 0, len(apps))
		for _, app := range apps {
			l, _, err := store.Load(ctx, app)
			if err != nil {
				serviceutil.Fatal("failed to load ledger "+app, err)
			}
			summaries = append(summaries, ledgerSummary{App: app, Ledger: l})
		}
		renderLedgerList(cmd.OutOrStdout(), summaries)
	},
}
