package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"kubecompat/lib/helmindex"
	"kubecompat/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(chartsCmd)
}

var chartsCmd = &cobra.Command{
	Use:   "charts <app>",
	Short: "Fills missing chart versions of a ledger from its helm repository index.",
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

		changed, err := helmindex.UpdateLedger(ctx, newFetcher(), &l, app)
		if err != nil {
			serviceutil.Fatal("failed to update chart versions", err)
		}
		if changed > 0 {
			err = store.Save(ctx, app, l)
			if err != nil {
				serviceutil.Fatal("failed to save ledger", err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %d chart versions\n", changed)
	},
}
