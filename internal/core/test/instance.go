//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/caseaccess/accessengine/internal/core/accesslog"
	"github.com/caseaccess/accessengine/internal/core/backend/mock"
	"github.com/caseaccess/accessengine/pkg/core"
	pkgaccesslog "github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/backend/local"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/caseaccess/accessengine/pkg/core/options"
)

// TestConfigFilename is the name of the test configuration file (without extension).
const TestConfigFilename = "ace-config"

// DirectoryFilename is the test directory of units, users and entities.
const DirectoryFilename = "directory.yaml"

// GetTestdataPath returns the absolute path to the testdata directory.
// This uses runtime.Caller to locate the source file and compute the path
// relative to it, ensuring tests work regardless of the working directory.
func GetTestdataPath() string {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		// Fallback to relative path if runtime.Caller fails
		return "testdata"
	}
	// thisFile is internal/core/test/instance.go
	// We need to go up 3 levels to reach the project root, then into testdata
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(thisFile))))
	return filepath.Join(projectRoot, "testdata")
}

// SetupTestConfig configures the environment to use the test configuration.
// This sets both ACE_CONFIG_PATH and ACE_CONFIG_FILENAME to ensure tests
// use the correct configuration regardless of user environment variables.
func SetupTestConfig() error {
	if err := os.Setenv(config.ConfigPathEnv, GetTestdataPath()); err != nil {
		return err
	}
	if err := os.Setenv(config.ConfigFileNameEnv, TestConfigFilename); err != nil {
		return err
	}
	return nil
}

// NewTestAccessEngine instantiates an engine suitable for unit-testing.  It
// uses the test configuration and directory from the testdata directory,
// with a fault-injecting backend: ids containing "networkerror" fail their
// lookups.  Audit events are written to the returned channel.
func NewTestAccessEngine(depth int, engineOptions ...options.EngineOptionsFunc) (core.AccessEngine, chan *pkgaccesslog.AuditEvent, error) {
	if err := SetupTestConfig(); err != nil {
		return nil, nil, err
	}

	d, err := local.Load(filepath.Join(GetTestdataPath(), DirectoryFilename))
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan *pkgaccesslog.AuditEvent, depth)
	opts := append([]options.EngineOptionsFunc{
		options.WithAccessLog(accesslog.NewChannelLogger(ch)),
		func(o *options.EngineOptions) {
			o.BackendFactory = mock.NewDirectoryFactory(d)
		},
	}, engineOptions...)

	engine, err := core.NewAccessEngine(opts...)
	if err != nil {
		return nil, nil, err
	}

	return engine, ch, nil
}
