package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/excellent-lang/excellent/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "excellent",
	Short: "Excellent is a template evaluator and flow engine",
	Long: `Excellent evaluates message templates with embedded expressions, e.g.
"Hello @contact.name", and runs flows of messages and rules against them.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	name, _ := cmd.Flags().GetString("log-level")
	return logging.New(logging.ParseLevel(name))
}
