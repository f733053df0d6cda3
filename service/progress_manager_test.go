package service

import (
	"bytes"
	"io"
	"testing"

	"github.com/ludo-technologies/pyqc/domain"
)

func TestNewProgressManager_NonInteractive(t *testing.T) {
	// When disabled, should return NoOpProgressManager
	pm := NewProgressManager(false)
	if pm.IsInteractive() {
		t.Error("expected non-interactive progress manager when disabled")
	}

	// Should implement the interface
	var _ domain.ProgressManager = pm
}

func TestNoOpProgressManager(t *testing.T) {
	pm := &NoOpProgressManager{}

	// IsInteractive should return false
	if pm.IsInteractive() {
		t.Error("expected NoOpProgressManager.IsInteractive() to return false")
	}

	// StartTask should return a no-op task
	task := pm.StartTask("test", 100)
	if task == nil {
		t.Fatal("expected non-nil task from StartTask")
	}

	// All operations should be no-ops (not panic)
	task.Increment(10)
	task.Describe("testing")
	task.Complete()

	// Close should be a no-op
	pm.Close()
}

func TestNoOpTaskProgress(t *testing.T) {
	tp := &NoOpTaskProgress{}

	// All operations should be no-ops (not panic)
	tp.Increment(10)
	tp.Describe("testing")
	tp.Complete()

	// Should implement the interface
	var _ domain.TaskProgress = tp
}

func TestProgressManagerImpl_Interface(t *testing.T) {
	// Verify ProgressManagerImpl implements the interface
	var _ domain.ProgressManager = &ProgressManagerImpl{}
	var _ domain.TaskProgress = &TaskProgressImpl{}
}

func TestIsInteractiveEnvironment_CI(t *testing.T) {
	t.Setenv("CI", "true")
	if IsInteractiveEnvironment() {
		t.Error("CI environments should never be interactive")
	}
	if NewProgressManager(true).IsInteractive() {
		t.Error("expected no-op progress manager under CI")
	}
}

func TestProgressManagerImpl_WritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	pm := NewProgressManagerWithWriter(&buf)

	task := pm.StartTask("Checking", 2)
	task.Increment(1)
	task.Describe("Checking a.py")
	task.Increment(1)
	task.Complete()
	pm.Close()

	if buf.Len() == 0 {
		t.Error("expected progress output to be written")
	}
}

func TestProgressManagerImpl_ConcurrentTasks(t *testing.T) {
	pm := NewProgressManagerWithWriter(io.Discard)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			pm.StartTask("Checking", 1).Increment(1)
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	pm.Close()
	pm.Close()
}
