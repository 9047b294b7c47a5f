package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/prdflow/internal/config"
	"github.com/spf13/cobra"
)

var initFlags struct {
	project bool
	force   bool
	prd     string
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a prdflow configuration file",
	Long: `Create a prdflow configuration file with sensible defaults.

By default, creates a global config at ~/.config/prdflow/prdflow.yml.
Use --project to create a project-local prdflow.yml in the current
directory; --prd records the PRD path in it.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initFlags.project, "project", "p", false, "Create config in current directory instead of global location")
	initCmd.Flags().BoolVarP(&initFlags.force, "force", "f", false, "Overwrite existing config file")
	initCmd.Flags().StringVar(&initFlags.prd, "prd", "", "PRD file path to record in the config")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetPath := config.GlobalPath()
	if initFlags.project {
		targetPath = config.ProjectPath()
	}

	if !initFlags.force && fileExists(targetPath) {
		return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite", targetPath)
	}

	cfg := &config.Config{
		PRDPath:      initFlags.prd,
		PlanDir:      "plan",
		AgentCommand: "opencode",
		WaitTimeout:  60 * time.Second,
		PollInterval: 500 * time.Millisecond,
		LogLevel:     "info",
		LogFile:      "",
	}

	var err error
	if initFlags.project {
		err = config.WriteProject(cfg)
	} else {
		err = config.WriteGlobal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Config written to: %s\n\n", targetPath)
	fmt.Println("Run 'prdflow run' to get started.")

	return nil
}

// fileExists checks if a file exists (helper for the init command).
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
