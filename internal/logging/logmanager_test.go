//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestGetLogger(t *testing.T) {
	resetForTesting()

	l := GetLogger("accessengine.grants")
	assert.NotNil(t, l)
	assert.True(t, l.IsLevelEnabled(zapcore.InfoLevel))
	assert.False(t, l.IsLevelEnabled(zapcore.DebugLevel))
	assert.Same(t, l, GetLogger("accessengine.grants"))
}

func TestUpdateConfigFromString(t *testing.T) {
	var tests = []struct {
		name    string
		config  string
		module  string
		enabled zapcore.Level
		off     zapcore.Level
	}{
		{"module debug", ".:info;grants:debug;consent:warn", "grants", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"module warn", ".:info;grants:debug;consent:warn", "consent", zapcore.WarnLevel, zapcore.InfoLevel},
		{"default applies", ".:info;grants:debug", "safety", zapcore.InfoLevel, zapcore.DebugLevel},
		{"whitespace", "  fields: debug  ;  matrix: error  ;  .: info  ", "matrix", zapcore.ErrorLevel, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetForTesting()
			assert.NoError(t, UpdateLogLevels(tt.config))

			l := GetLogger(tt.module)
			assert.True(t, l.IsLevelEnabled(tt.enabled))
			assert.False(t, l.IsLevelEnabled(tt.off))
		})
	}
}

func TestDefaultLevelUpdatesExistingLoggers(t *testing.T) {
	resetForTesting()

	assert.NoError(t, UpdateLogLevels(".:info"))
	existing := GetLogger("tier")
	assert.False(t, existing.IsLevelEnabled(zapcore.DebugLevel))

	assert.NoError(t, UpdateLogLevels(".:debug"))
	assert.True(t, existing.IsLevelEnabled(zapcore.DebugLevel))
	assert.True(t, GetLogger("decisionpoint").IsLevelEnabled(zapcore.DebugLevel))
}

func TestUnknownLevelReported(t *testing.T) {
	resetForTesting()

	err := UpdateLogLevels("grants:verbose;.:warn")
	assert.Error(t, err)

	// the valid entries are still applied
	l := GetLogger("consent")
	assert.True(t, l.IsLevelEnabled(zapcore.WarnLevel))
	assert.False(t, l.IsLevelEnabled(zapcore.InfoLevel))
}

// zap has no trace level
func TestTraceLevelMapsToDebug(t *testing.T) {
	resetForTesting()

	assert.NoError(t, UpdateLogLevels(".:trace"))

	l := GetLogger("accessengine")
	assert.True(t, l.IsLevelEnabled(zapcore.DebugLevel))
	assert.True(t, l.IsTraceEnabled())
}

func TestRaceCondition(t *testing.T) {
	resetForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			l := GetLogger(fmt.Sprintf("module%d", k))
			l.SysDebug("concurrent lookup")
		}(i % 5)
	}
	wg.Wait()
}
