package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kubecompat/lib/configutil"
	"kubecompat/lib/serviceutil"
	"kubecompat/lib/telemetry"
)

var (
	configPath *string
	verbose    *bool

	cfg Config
	tel telemetry.Telemetry
)

func defaultConfigPath() string {
	if path := os.Getenv("KUBECOMPAT_CONFIG"); path != "" {
		return path
	}
	return "compat.json5"
}

var rootCmd = &cobra.Command{
	Use:   "kubecompat",
	Short: "kubecompat maintains kubernetes compatibility ledgers for third-party applications.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)

		err := configutil.LoadEnv()
		if err != nil {
			serviceutil.Fatal("failed to load environment", err)
		}

		cfg, err = LoadConfig(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		tel, err = telemetry.Setup(cmd.Context(), "kubecompat", telemetry.Config{Otlp: cfg.Otlp})
		if err != nil {
			slog.Warn("failed to setup telemetry, continuing without it", "err", err)
		}
		if tel.Enabled() {
			telemetry.InstrumentPerfStats(cmd.Context(), time.Second*15)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		err := tel.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", defaultConfigPath(), "The configuration file, <name>.local.<ext> overrides are merged in.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
