//
//  Copyright © Manetu Inc. All rights reserved.
//

package config_test

import (
	"os"
	"testing"

	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig(t *testing.T) {
	os.Setenv(config.ConfigPathEnv, "../../../testdata")
	config.ResetConfig()
	assert.NotNil(t, config.VConfig)
}

func TestConfigDefaults(t *testing.T) {
	os.Setenv(config.ConfigPathEnv, "/nonexistent")
	defer os.Unsetenv(config.ConfigPathEnv)
	config.ResetConfig()

	assert.Equal(t, 3, config.VConfig.GetInt(config.OrgTier))
	assert.Equal(t, "memory", config.VConfig.GetString(config.StoreDriver))
	assert.Equal(t, "memory", config.VConfig.GetString(config.GrantCache))

	settings, err := config.OrgSettings()
	require.NoError(t, err)
	assert.Equal(t, model.Tier3, settings.Tier)
	assert.Equal(t, 7, settings.DefaultGrantDays)
	assert.Equal(t, 30, settings.MaxGrantDays)
	assert.Equal(t, config.DefaultReasons, settings.Reasons)
}

func TestConfigFromFile(t *testing.T) {
	os.Setenv(config.ConfigPathEnv, "../../../testdata")
	defer os.Unsetenv(config.ConfigPathEnv)
	config.ResetConfig()

	settings, err := config.OrgSettings()
	require.NoError(t, err)
	assert.Equal(t, model.Tier3, settings.Tier)
	assert.True(t, settings.ActiveReason("care-coordination"))
	assert.False(t, settings.ActiveReason("retired-reason"))
}

func TestConfigEnvOverride(t *testing.T) {
	os.Setenv(config.ConfigPathEnv, "/nonexistent")
	os.Setenv("ACE_ORG_TIER", "2")
	defer os.Unsetenv(config.ConfigPathEnv)
	defer os.Unsetenv("ACE_ORG_TIER")
	config.ResetConfig()

	settings, err := config.OrgSettings()
	require.NoError(t, err)
	assert.Equal(t, model.Tier2, settings.Tier)
}

func TestConfigBadTier(t *testing.T) {
	os.Setenv(config.ConfigPathEnv, "/nonexistent")
	os.Setenv("ACE_ORG_TIER", "7")
	defer os.Unsetenv(config.ConfigPathEnv)
	defer os.Unsetenv("ACE_ORG_TIER")
	config.ResetConfig()

	_, err := config.OrgSettings()
	assert.Error(t, err)
}

func TestConfigWithCustomFilename(t *testing.T) {
	os.Setenv(config.ConfigPathEnv, "../../../testdata")
	os.Setenv(config.ConfigFileNameEnv, "ace-config")
	defer os.Unsetenv(config.ConfigFileNameEnv)
	defer os.Unsetenv(config.ConfigPathEnv)

	config.ResetConfig()
	assert.Equal(t, "accessengine.audit", config.VConfig.GetString(config.AuditAMQPExchange))
}

func TestGetAuditEnv(t *testing.T) {
	os.Setenv(config.ConfigPathEnv, "../../../testdata")
	os.Setenv("ACE_TEST_POD", "pod-123")
	defer os.Unsetenv(config.ConfigPathEnv)
	defer os.Unsetenv("ACE_TEST_POD")
	config.ResetConfig()

	env := config.GetAuditEnv()
	assert.Equal(t, "pod-123", env["pod"])
}
