//
//  Copyright © Manetu Inc. All rights reserved.
//

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv sets (or clears, for an empty value) an environment variable for
// the duration of the test.
func withEnv(t *testing.T, key, value string) {
	orig, had := os.LookupEnv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, orig)
		} else {
			_ = os.Unsetenv(key)
		}
	})
	if value == "" {
		_ = os.Unsetenv(key)
	} else {
		_ = os.Setenv(key, value)
	}
}

func TestGetConfigPath(t *testing.T) {
	withEnv(t, ConfigPathEnv, "/custom/config/path")
	assert.Equal(t, "/custom/config/path", getConfigPath())

	withEnv(t, ConfigPathEnv, "")
	assert.Equal(t, ConfigDefaultPath, getConfigPath())
}

func TestGetConfigFileName(t *testing.T) {
	withEnv(t, ConfigFileNameEnv, "custom-config-name")
	assert.Equal(t, "custom-config-name", getConfigFileName())

	withEnv(t, ConfigFileNameEnv, "")
	assert.Equal(t, ConfigDefaultFilename, getConfigFileName())
}

func TestParseDownwardAPIFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "labels")
	require.NoError(t, os.WriteFile(p, []byte("app=\"ace\"\n\nbroken-line\ntier=\"backend\"\n"), 0o600))

	m, err := parseDownwardAPIFile(p)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"app": "ace", "tier": "backend"}, m)

	m, err = parseDownwardAPIFile(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestAuditEnvIncludesPodLabels(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels"), []byte("app=\"ace\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "annotations"), []byte("owner=\"records\"\n"), 0o600))

	withEnv(t, ConfigPathEnv, "/nonexistent")
	withEnv(t, "ACE_AUDIT_K8S_PODINFO", dir)
	ResetConfig()
	defer resetK8sCache()

	env := GetAuditEnv()
	assert.Equal(t, "ace", env["k8s.label.app"])
	assert.Equal(t, "records", env["k8s.annotation.owner"])
}
