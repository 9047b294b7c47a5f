package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

func TestFilesystemError(t *testing.T) {
	underlying := os.ErrNotExist
	err := NewFilesystemError("read", "/tmp/prd.md", underlying)

	msg := err.Error()
	if !strings.Contains(msg, "read") || !strings.Contains(msg, "/tmp/prd.md") {
		t.Errorf("message missing context: %s", msg)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("Unwrap should expose the underlying error")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("P1.M1.T1.S1", "story_points must be 1-21, got 0")
	if !strings.Contains(err.Error(), "P1.M1.T1.S1") {
		t.Errorf("message missing field: %s", err.Error())
	}

	noField := NewValidationError("", "backlog is nil")
	if strings.Contains(noField.Error(), "for") {
		t.Errorf("empty field should not render a field clause: %s", noField.Error())
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("P1.M1.T1.S2", 60*time.Second)
	msg := err.Error()
	if !strings.Contains(msg, "P1.M1.T1.S2") || !strings.Contains(msg, "1m0s") {
		t.Errorf("message missing subtask or timeout: %s", msg)
	}
}

func TestRecoverPassesThroughError(t *testing.T) {
	want := errors.New("plain failure")
	got := Recover(func() error { return want })
	if got != want {
		t.Errorf("error should pass through untouched, got %v", got)
	}

	if err := Recover(func() error { return nil }); err != nil {
		t.Errorf("nil should pass through, got %v", err)
	}
}

func TestRecoverConvertsPanic(t *testing.T) {
	err := Recover(func() error { panic("agent crashed") })
	if err == nil {
		t.Fatal("expected an error from a panic")
	}
	var perr *PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PanicError, got %T", err)
	}
	if perr.Value != "agent crashed" {
		t.Errorf("value = %v, want the panic value", perr.Value)
	}
	if perr.StackTrace == "" {
		t.Error("stack trace should be captured")
	}
}

func TestMultiError(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var m MultiError
		if err := m.ErrorOrNil(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("single", func(t *testing.T) {
		var m MultiError
		want := errors.New("one")
		m.Append(want)
		m.Append(nil)
		if err := m.ErrorOrNil(); err != want {
			t.Errorf("expected the single error back, got %v", err)
		}
	})

	t.Run("joined", func(t *testing.T) {
		var m MultiError
		first := errors.New("first")
		second := fmt.Errorf("second")
		m.Append(first)
		m.Append(second)

		err := m.ErrorOrNil()
		if err == nil {
			t.Fatal("expected a joined error")
		}
		if !errors.Is(err, first) || !errors.Is(err, second) {
			t.Error("joined error should match both members")
		}
	})
}
