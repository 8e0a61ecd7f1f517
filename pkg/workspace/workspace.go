// Package workspace manages isolated working directories for agent executions.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"conductor/pkg/logx"
)

// Manager creates and removes per-execution working directories under a
// project root. Each execution gets its own directory; the underlying
// project tree is never locked or serialized here.
type Manager struct {
	root   string
	logger *logx.Logger
}

// NewManager creates a workspace manager rooted at projectDir.
// The project directory must exist.
func NewManager(projectDir string) (*Manager, error) {
	info, err := os.Stat(projectDir)
	if err != nil {
		return nil, fmt.Errorf("project directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path is not a directory: %s", projectDir)
	}

	return &Manager{
		root:   projectDir,
		logger: logx.NewLogger("workspace"),
	}, nil
}

// Root returns the project directory this manager operates under.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a scoped, exclusive working directory for one execution.
// The directory lives in <root>/.conductor/work/ so temporary files stay
// within the project and never collide with system /tmp. The returned
// cleanup function removes the directory; it is safe to call more than once.
func (m *Manager) Acquire(executionID string) (string, func(), error) {
	workDir := filepath.Join(m.root, ".conductor", "work",
		fmt.Sprintf("%s-%d", executionID, time.Now().UnixNano()))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	cleanup := func() {
		m.logger.Debug("Removing working directory: %s", workDir)
		if err := os.RemoveAll(workDir); err != nil {
			m.logger.Warn("Failed to remove working directory %s: %v", workDir, err)
		}
	}

	return workDir, cleanup, nil
}

// WithWorkdir acquires a working directory, runs fn with it, and guarantees
// removal on every exit path including panics.
func (m *Manager) WithWorkdir(executionID string, fn func(workDir string) error) error {
	workDir, cleanup, err := m.Acquire(executionID)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(workDir)
}
