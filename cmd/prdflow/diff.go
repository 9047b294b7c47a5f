package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/prdflow/internal/prddiff"
	"github.com/mark3labs/prdflow/internal/store"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show how the PRD has drifted from the session's snapshot",
	Long: `Compare the PRD on disk against the snapshot captured when the current
session was created. A non-empty diff means the next run will create a
delta session.`,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringP("prd", "p", "", "PRD file path")
	diffCmd.Flags().String("plan-dir", "", "Directory holding session state (default: plan)")
	diffCmd.Flags().Bool("save", false, "Also write the diff to the session's artifacts directory")
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.PRDPath == "" {
		return fmt.Errorf("no PRD file configured, use --prd or set prd in prdflow.yml")
	}

	st := store.New(cfg.PRDPath, cfg.PlanDir)
	if err := st.OpenLatest(); err != nil {
		return err
	}

	current, err := os.ReadFile(cfg.PRDPath)
	if err != nil {
		return fmt.Errorf("failed to read PRD: %w", err)
	}

	meta := st.Metadata()
	diff := prddiff.Unified(meta.ID+"/prd.md", cfg.PRDPath, st.PRDSnapshot(), current)
	if diff == "" {
		fmt.Println("PRD matches the session snapshot.")
		return nil
	}

	fmt.Print(diff)

	if save, _ := cmd.Flags().GetBool("save"); save {
		path, err := prddiff.WriteArtifact(st.ArtifactsDir(), diff)
		if err != nil {
			return err
		}
		fmt.Printf("Diff saved to %s\n", path)
	}
	return nil
}
