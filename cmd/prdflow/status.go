package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/mark3labs/prdflow/internal/backlog"
	"github.com/mark3labs/prdflow/internal/store"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the backlog for the current PRD's session",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringP("prd", "p", "", "PRD file path")
	statusCmd.Flags().String("plan-dir", "", "Directory holding session state (default: plan)")
}

var (
	phaseStyle    = color.New(color.Bold)
	completeStyle = color.New(color.FgGreen)
	activeStyle   = color.New(color.FgYellow)
	failedStyle   = color.New(color.FgRed)
	obsoleteStyle = color.New(color.Faint)
)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.PRDPath == "" {
		return fmt.Errorf("no PRD file configured, use --prd or set prd in prdflow.yml")
	}

	st := store.New(cfg.PRDPath, cfg.PlanDir)
	if err := st.OpenExisting(); err != nil {
		return err
	}
	meta := st.Metadata()
	fmt.Printf("Session %s", meta.ID)
	if meta.ParentSession != "" {
		fmt.Printf(" (delta of %s)", meta.ParentSession)
	}
	fmt.Println()

	b, err := st.LoadBacklog()
	if err != nil {
		return err
	}
	if len(b.Phases) == 0 {
		fmt.Println("Backlog is empty.")
		return nil
	}

	for _, p := range b.Phases {
		phaseStyle.Printf("%s %s", p.ID, p.Title)
		fmt.Printf(" [%s]\n", renderStatus(p.Status))
		for _, m := range p.Milestones {
			fmt.Printf("  %s %s [%s]\n", m.ID, m.Title, renderStatus(m.Status))
			for _, t := range m.Tasks {
				fmt.Printf("    %s %s [%s]\n", t.ID, t.Title, renderStatus(t.Status))
				for _, s := range t.Subtasks {
					fmt.Printf("      %s %s (%dsp) [%s]\n",
						s.ID, s.Title, s.StoryPoints, renderStatus(s.Status))
				}
			}
		}
	}
	return nil
}

func renderStatus(s backlog.Status) string {
	switch s {
	case backlog.StatusComplete:
		return completeStyle.Sprint(s)
	case backlog.StatusResearching, backlog.StatusImplementing:
		return activeStyle.Sprint(s)
	case backlog.StatusFailed:
		return failedStyle.Sprint(s)
	case backlog.StatusObsolete:
		return obsoleteStyle.Sprint(s)
	default:
		return string(s)
	}
}
