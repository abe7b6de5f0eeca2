package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailextract",
		Short: "email extraction orchestrator",
	}
	rootCmd.AddCommand(newRunCmd(), newEmbedCmd(), newTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func requireConfig(path string) error {
	if path == "" {
		return fmt.Errorf("--config is required")
	}
	return nil
}
