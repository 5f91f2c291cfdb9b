package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"kubecompat/lib/kubeversion"
	"kubecompat/lib/serviceutil"
)

var kubeVersionOffline *bool

func init() {
	kubeVersionOffline = kubeVersionCmd.Flags().Bool("offline", false, "Print the recorded version without checking for a newer release.")
	rootCmd.AddCommand(kubeVersionCmd)
}

var kubeVersionCmd = &cobra.Command{
	Use:   "kube-version",
	Short: "Records the latest stable kubernetes minor version and prints it.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			version string
			err     error
		)
		if *kubeVersionOffline {
			version, err = kubeversion.Current(cfg.KubeVersionFile)
		} else {
			version, err = kubeversion.Refresh(cmd.Context(), newFetcher(), cfg.KubeVersionURL, cfg.KubeVersionFile)
		}
		if err != nil {
			serviceutil.Fatal("failed to determine kube version", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}
