package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file is not an error", func(t *testing.T) {
		cfg, err := LoadConfig(t.TempDir())
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg != nil {
			t.Errorf("expected nil config for missing file, got %+v", cfg)
		}
	})

	t.Run("valid file", func(t *testing.T) {
		dir := t.TempDir()
		content := "version: 1\nhooks:\n  pre_subtask:\n    command: echo before\n    timeout: 10\n  post_subtask:\n    command: echo after\n"
		if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cfg, err := LoadConfig(dir)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg == nil {
			t.Fatal("expected a config")
		}
		if cfg.Hooks.PreSubtask == nil || cfg.Hooks.PreSubtask.Command != "echo before" {
			t.Errorf("pre_subtask = %+v", cfg.Hooks.PreSubtask)
		}
		if cfg.Hooks.PreSubtask.Timeout != 10 {
			t.Errorf("timeout = %d, want 10", cfg.Hooks.PreSubtask.Timeout)
		}
		if cfg.Hooks.PostSubtask == nil || cfg.Hooks.PostSubtask.Command != "echo after" {
			t.Errorf("post_subtask = %+v", cfg.Hooks.PostSubtask)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("hooks: ["), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if _, err := LoadConfig(dir); err == nil {
			t.Error("expected a parse error")
		}
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	workDir := t.TempDir()
	vars := Variables{Session: "001_abcdef123456", Subtask: "P1.M1.T1.S1"}

	t.Run("nil hook", func(t *testing.T) {
		output, err := Execute(ctx, nil, workDir, vars)
		if err != nil || output != "" {
			t.Errorf("Execute(nil) = (%q, %v), want empty no-op", output, err)
		}
	})

	t.Run("simple command", func(t *testing.T) {
		hook := &HookConfig{Command: "echo 'ready'", Timeout: 5}
		output, err := Execute(ctx, hook, workDir, vars)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if output != "ready\n" {
			t.Errorf("output = %q, want %q", output, "ready\n")
		}
	})

	t.Run("variable expansion", func(t *testing.T) {
		hook := &HookConfig{Command: "echo {{session}} {{subtask}}", Timeout: 5}
		output, err := Execute(ctx, hook, workDir, vars)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !strings.Contains(output, "001_abcdef123456 P1.M1.T1.S1") {
			t.Errorf("variables not expanded: %q", output)
		}
	})

	t.Run("command failure degrades gracefully", func(t *testing.T) {
		hook := &HookConfig{Command: "echo partial && exit 3", Timeout: 5}
		output, err := Execute(ctx, hook, workDir, vars)
		if err != nil {
			t.Fatalf("hook failure should not return an error, got %v", err)
		}
		if !strings.Contains(output, "[Hook command failed") {
			t.Errorf("output should flag the failure: %q", output)
		}
		if !strings.Contains(output, "partial") {
			t.Errorf("output should keep partial stdout: %q", output)
		}
	})

	t.Run("stderr included", func(t *testing.T) {
		hook := &HookConfig{Command: "echo out; echo err >&2", Timeout: 5}
		output, err := Execute(ctx, hook, workDir, vars)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !strings.Contains(output, "[stderr]") || !strings.Contains(output, "err") {
			t.Errorf("stderr should be included: %q", output)
		}
	})
}

func TestExecute_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	hook := &HookConfig{Command: "echo 'test'", Timeout: 5}
	_, err := Execute(ctx, hook, t.TempDir(), Variables{})
	if err == nil {
		t.Error("Execute() expected error for cancelled context, got nil")
	}
}
