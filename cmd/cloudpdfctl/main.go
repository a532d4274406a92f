package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cloudpdfctl",
		Short:        "Operator tools for the thesis archive",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "TOML config file (overrides CONFIG_FILE)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path != "" {
			return os.Setenv("CONFIG_FILE", path)
		}
		return nil
	}

	root.AddCommand(newIngestCmd(), newMigrateCmd())
	return root
}
