package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"kubecompat/lib/serviceutil"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().IntP("limit", "n", 20, "The maximum number of runs to show.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [app]",
	Short: "Shows the most recent ledger updates.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		store, ok := openHistory(ctx)
		if !ok {
			serviceutil.Fatal("failed to open history", errors.New("history is disabled or unavailable"))
		}
		defer store.Close()

		app := ""
		if len(args) > 0 {
			app = args[0]
		}
		runs, err := store.Recent(ctx, app, *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to read history", err)
		}
		renderRuns(cmd.OutOrStdout(), runs)
	},
}
