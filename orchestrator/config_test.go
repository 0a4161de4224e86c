// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPolicyFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tool_allowlist: ["echo", "maintainer"]
max_risk: "low"
`), 0o644))

	t.Setenv("ORCHESTRATOR_POLICY_FILE", path)
	t.Setenv("ORCHESTRATOR_MAX_RISK", "medium")

	cfg := LoadConfig()
	assert.ElementsMatch(t, []string{"echo", "maintainer"}, cfg.ToolAllowlist)
	// The env var is set explicitly and must win over the file.
	assert.Equal(t, RiskMedium, cfg.MaxRisk)
}

func TestLoadConfigDefaultsWithoutPolicyFile(t *testing.T) {
	t.Setenv("ORCHESTRATOR_POLICY_FILE", "")
	t.Setenv("ORCHESTRATOR_MAX_RISK", "")
	t.Setenv("ORCHESTRATOR_TOOL_ALLOWLIST", "")

	cfg := LoadConfig()
	assert.Equal(t, RiskHigh, cfg.MaxRisk)
	assert.Empty(t, cfg.ToolAllowlist)
}
