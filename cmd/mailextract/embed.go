package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xxxsen/mailextract/internal/service"
)

func newEmbedCmd() *cobra.Command {
	var (
		configPath string
		mode       string
	)
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "generate embeddings for every document of the source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfig(configPath); err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.embeddings.GenerateAll(ctx, mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mode=%s total=%d embedded=%d skipped=%d failed=%d\n",
				report.Mode, report.Total, len(report.Embedded), len(report.Skipped), len(report.Failed))
			for _, id := range report.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  failed: %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (json or yaml)")
	cmd.Flags().StringVar(&mode, "mode", service.EmbedModeMissing, "all or missing")
	return cmd
}
