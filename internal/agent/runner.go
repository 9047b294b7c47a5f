// Package agent runs the external agent subprocess that actually performs
// a subtask's work. The pipeline treats it as an opaque capability: a
// subtask goes in on stdin as a prompt, success or failure comes back as
// the exit status. Output lines are streamed to a callback for display.
package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mark3labs/prdflow/internal/backlog"
	"github.com/mark3labs/prdflow/internal/logger"
)

// maxOutputLine caps a single agent output line.
const maxOutputLine = 4 * 1024 * 1024

// Runner executes one subtask per subprocess invocation.
type Runner struct {
	command string
	args    []string
	workDir string
	env     []string
	onText  func(text string)
}

// RunnerConfig holds configuration for creating a new Runner.
type RunnerConfig struct {
	Command string            // agent binary, e.g. "opencode"
	Args    []string          // extra arguments before the prompt
	WorkDir string            // working directory for the agent
	Env     []string          // extra environment entries, e.g. the MCP URL
	OnText  func(text string) // callback for streamed output lines
}

// NewRunner creates a new Runner instance.
func NewRunner(cfg RunnerConfig) *Runner {
	command := cfg.Command
	if command == "" {
		command = "opencode"
	}
	return &Runner{
		command: command,
		args:    cfg.Args,
		workDir: cfg.WorkDir,
		env:     cfg.Env,
		onText:  cfg.OnText,
	}
}

// ExecuteSubtask runs the agent subprocess for one subtask, sending the
// prompt via stdin and streaming stdout lines to the OnText callback. The
// returned error is the subprocess failure as-is; callers decide how to
// surface it.
func (r *Runner) ExecuteSubtask(ctx context.Context, s *backlog.Subtask) error {
	logger.Debug("Starting agent run for subtask %s", s.ID)

	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Dir = r.workDir
	cmd.Env = append(os.Environ(), r.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", r.command, err)
	}

	prompt := Prompt(s)
	logger.Debug("Sending prompt for %s (length: %d)", s.ID, len(prompt))
	if _, err := io.WriteString(stdin, prompt); err != nil {
		stdin.Close()
		cmd.Wait()
		return fmt.Errorf("failed to write prompt: %w", err)
	}
	stdin.Close()

	scanner := bufio.NewScanner(stdout)
	// Agents emit whole JSON blobs on one line; the default 64KB token
	// limit would abort the run mid-stream.
	scanner.Buffer(make([]byte, 64*1024), maxOutputLine)
	for scanner.Scan() {
		if ctx.Err() != nil {
			logger.Debug("Context cancelled while reading agent output")
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if r.onText != nil {
			r.onText(line)
		}
	}

	if ctx.Err() != nil {
		cmd.Wait()
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		logger.Error("Scanner error: %v", err)
		return fmt.Errorf("failed to read agent output: %w", err)
	}

	logger.Debug("Waiting for agent process to exit")
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("Agent exited with error for %s: %v", s.ID, err)
		return err
	}

	logger.Debug("Subtask %s agent run completed", s.ID)
	return nil
}

// Prompt renders the stdin prompt for one subtask: the id and title, the
// story-point estimate, declared dependencies, and the 4-section context
// scope verbatim.
func Prompt(s *backlog.Subtask) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Execute subtask %s: %s\n\n", s.ID, s.Title)
	fmt.Fprintf(&sb, "Story points: %d\n", s.StoryPoints)
	if len(s.Dependencies) > 0 {
		fmt.Fprintf(&sb, "Completed dependencies: %s\n", strings.Join(s.Dependencies, ", "))
	}
	sb.WriteString("\n")
	sb.WriteString(s.ContextScope)
	sb.WriteString("\n")
	return sb.String()
}
