package adapter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/agenterrors"
)

func TestRegistrySelection(t *testing.T) {
	r := NewRegistry()

	for _, cap := range []Capability{CapabilityClaude, CapabilityCodex, CapabilityGeneric} {
		a, err := r.ForCapability(cap)
		require.NoError(t, err, "capability %s", cap)
		assert.Equal(t, cap, a.Capability())
	}

	_, err := r.ForCapability("cursor")
	require.Error(t, err)
	assert.Equal(t, agenterrors.ErrorTypeValidation, agenterrors.TypeOf(err))
}

func TestClaudeBuildCommand(t *testing.T) {
	a := NewClaudeAdapter()

	cmd := a.BuildCommand(Request{
		Prompt:    "-add a health endpoint",
		Model:     "claude-sonnet-4",
		SessionID: "sess-123",
	})

	assert.Equal(t, "claude", cmd[0])
	assert.Contains(t, cmd, "--print")
	assert.Contains(t, cmd, "--dangerously-skip-permissions")
	assert.Contains(t, cmd, "--model")
	assert.Contains(t, cmd, "claude-sonnet-4")
	assert.Contains(t, cmd, "--session-id")
	// Prompt must come after the -- separator so leading dashes parse as data.
	assert.Equal(t, "--", cmd[len(cmd)-2])
	assert.Equal(t, "-add a health endpoint", cmd[len(cmd)-1])
}

func TestClaudeBuildCommandOmitsEmptyFlags(t *testing.T) {
	a := NewClaudeAdapter()
	cmd := a.BuildCommand(Request{Prompt: "do it"})
	assert.NotContains(t, cmd, "--model")
	assert.NotContains(t, cmd, "--session-id")
}

func TestCodexBuildCommand(t *testing.T) {
	a := NewCodexAdapter()
	cmd := a.BuildCommand(Request{Prompt: "refactor", Model: "o3"})
	assert.Equal(t, []string{"codex", "exec", "--json", "--skip-git-repo-check", "--model", "o3", "--", "refactor"}, cmd)
}

func TestGenericBuildCommand(t *testing.T) {
	a := NewGenericAdapter("myagent", []string{"run", "--quiet"})
	cmd := a.BuildCommand(Request{Prompt: "fix the bug"})
	assert.Equal(t, []string{"myagent", "run", "--quiet", "fix the bug"}, cmd)
}

func TestDetectFailure(t *testing.T) {
	a := NewClaudeAdapter()

	assert.Empty(t, a.DetectFailure("all done, 3 files changed", ""))
	assert.NotEmpty(t, a.DetectFailure("Internal Error: something broke", ""))
	assert.NotEmpty(t, a.DetectFailure("", "panic: runtime error"))
	assert.Equal(t, "overloaded_error", a.DetectFailure(`{"type":"overloaded_error"}`, ""))
}

func TestShouldRetry(t *testing.T) {
	claude := NewClaudeAdapter()
	assert.True(t, claude.ShouldRetry(errors.New("connection refused")))
	assert.True(t, claude.ShouldRetry(errors.New("model overloaded")))
	assert.False(t, claude.ShouldRetry(errors.New("invalid api key")))
	assert.False(t, claude.ShouldRetry(nil))

	generic := NewGenericAdapter("agent", nil)
	assert.True(t, generic.ShouldRetry(errors.New("http 503")))
	assert.False(t, generic.ShouldRetry(errors.New("bad prompt")))
}

func TestFilterEnv(t *testing.T) {
	environ := []string{
		"PATH=/usr/bin",
		"HOME=/home/user",
		"AWS_SECRET_ACCESS_KEY=abc",
		"GITHUB_TOKEN=ghp_xxx",
		"DB_PASSWORD=hunter2",
		"ANTHROPIC_API_KEY=sk-ant",
		"my_token=lowercase",
		"malformed-no-equals",
	}

	filtered := FilterEnv(environ, []string{"ANTHROPIC_API_KEY"})

	assert.Contains(t, filtered, "PATH=/usr/bin")
	assert.Contains(t, filtered, "HOME=/home/user")
	// Explicitly required secret survives.
	assert.Contains(t, filtered, "ANTHROPIC_API_KEY=sk-ant")
	// Everything secret-shaped is stripped, case-insensitively.
	assert.NotContains(t, filtered, "AWS_SECRET_ACCESS_KEY=abc")
	assert.NotContains(t, filtered, "GITHUB_TOKEN=ghp_xxx")
	assert.NotContains(t, filtered, "DB_PASSWORD=hunter2")
	assert.NotContains(t, filtered, "my_token=lowercase")
	// Malformed entries are dropped.
	assert.NotContains(t, filtered, "malformed-no-equals")
}
