//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLogging(t *testing.T) {
	logger := newLogger("testmodule")
	var buffer bytes.Buffer
	logger.SetOut(&buffer)
	logger.SetLevel(zapcore.InfoLevel)

	assert.True(t, logger.IsLevelEnabled(zapcore.InfoLevel))
	assert.False(t, logger.IsLevelEnabled(zapcore.DebugLevel))

	actorID := "tester"
	actionID := "evaluate"

	logger.Debug(actorID, actionID, "debug message")
	logger.Debugf(actorID, actionID, "debug message %s", "hello")
	assert.Empty(t, buffer.Bytes())

	for _, fn := range []func(){
		func() { logger.Info(actorID, actionID, "info message") },
		func() { logger.Infof(actorID, actionID, "info message %s", "hello") },
		func() { logger.Warn(actorID, actionID, "warning message") },
		func() { logger.Warnf(actorID, actionID, "warning message %s", "hello") },
		func() { logger.Error(actorID, actionID, "error message") },
		func() { logger.Errorf(actorID, actionID, "error message %s", "hello") },
	} {
		buffer.Reset()
		fn()
		assert.NotEmpty(t, buffer.Bytes())
	}
}

func TestLoggingFields(t *testing.T) {
	logger := newLogger("fieldsmodule")
	var buffer bytes.Buffer
	logger.SetOut(&buffer)

	logger.Warnf("alice", "resolveField", "flag lookup failed for %s", "entity-1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))
	assert.Equal(t, "alice", entry["actor"])
	assert.Equal(t, "resolveField", entry["action"])
	assert.Equal(t, "fieldsmodule", entry["module"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "flag lookup failed for entity-1", entry["msg"])
}

func TestSysLogging(t *testing.T) {
	logger := newLogger("testsysmodule")
	var buffer bytes.Buffer
	logger.SetOut(&buffer)

	logger.SetLevel(zapcore.ErrorLevel)
	assert.True(t, logger.IsLevelEnabled(zapcore.ErrorLevel))
	assert.False(t, logger.IsLevelEnabled(zapcore.DebugLevel))
	assert.False(t, logger.IsLevelEnabled(zapcore.InfoLevel))
	assert.False(t, logger.IsLevelEnabled(zapcore.WarnLevel))

	logger.SysDebug("debug message")
	logger.SysDebugf("debug message %s", "hello")
	logger.SysInfo("info message")
	logger.SysInfof("info message %s", "hello")
	logger.SysWarn("warning message")
	logger.SysWarnf("warning message %s", "hello")
	assert.Empty(t, buffer.Bytes())

	logger.SysError("error message")
	assert.NotEmpty(t, buffer.Bytes())
	buffer.Reset()
	logger.SysErrorf("error message %s", "hello")
	assert.NotEmpty(t, buffer.Bytes())
}
