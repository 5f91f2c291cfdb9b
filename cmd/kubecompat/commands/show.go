package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"kubecompat/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <app>",
	Short: "Shows every recorded version of an application.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		l, found, err := newStore().Load(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to load ledger", err)
		}
		if !found {
			serviceutil.Fatal("failed to load ledger", fmt.Errorf("no ledger for %q", args[0]))
		}

		out := cmd.OutOrStdout()
		if l.HelmRepositoryURL != "" {
			fmt.Fprintf(out, "chart %s from %s\n", orDash(l.ChartName), l.HelmRepositoryURL)
		}
		renderLedger(out, l)
	},
}
