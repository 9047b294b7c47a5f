package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/mark3labs/prdflow/internal/logger"
	"github.com/spf13/cobra"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "prdflow",
	Short: "PRD-driven multi-agent coding pipeline",
	Long: `prdflow drives a multi-agent coding pipeline from a Product Requirements
Document down to a dependency-ordered set of executable work items.

It tracks a Phase → Milestone → Task → Subtask hierarchy, persists it
crash-safely under plan/, detects PRD changes and links delta sessions to
their parent, and schedules items for execution by an external agent under
dependency and status constraints.`,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(initCmd)
}
