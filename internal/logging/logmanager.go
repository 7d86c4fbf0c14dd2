//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// LogManager keeps track of all instantiated loggers
type LogManager struct {
	loggers  map[string]*Logger
	defLevel zapcore.Level
}

var (
	manager *LogManager
	mu      sync.RWMutex
	once    sync.Once
)

// resetForTesting resets the manager state - only for testing
func resetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	manager = nil
	once = sync.Once{}
}

func initManager() {
	manager = &LogManager{
		loggers:  make(map[string]*Logger),
		defLevel: zapcore.InfoLevel,
	}
}

// GetLogger returns the logger for the specified module, creating it at the
// current default level on first use.
func GetLogger(module string) *Logger {
	once.Do(initManager)

	mu.RLock()
	l := manager.loggers[module]
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()

	if l := manager.loggers[module]; l != nil {
		return l
	}

	l = newLogger(module)
	l.SetLevel(manager.defLevel)
	manager.loggers[module] = l

	return l
}

func parseLevel(levelStr string) (zapcore.Level, error) {
	switch strings.ToLower(levelStr) {
	case "panic":
		return zapcore.PanicLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "debug", "trace":
		return zapcore.DebugLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", levelStr)
}

// UpdateLogLevels updates log levels from a string of the form
// "mod1:debug;mod2:error;.:info".  The "." module sets the default for every
// logger without an explicit entry.  Whitespace is ignored.  An entry with an
// unknown level is reported after the remaining entries have been applied.
func UpdateLogLevels(logstr string) error {
	once.Do(initManager)

	logstr = strings.Join(strings.Fields(logstr), "")

	mu.Lock()
	defer mu.Unlock()

	var (
		explicit   = make(map[string]bool)
		defLevel   zapcore.Level
		hasDefault bool
		firstErr   error
	)

	for _, entry := range strings.Split(logstr, ";") {
		mod, levelStr, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}

		level, err := parseLevel(levelStr)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("module %s: %w", mod, err)
			}
			continue
		}

		if mod == "." {
			defLevel = level
			hasDefault = true
			continue
		}

		explicit[mod] = true
		l := manager.loggers[mod]
		if l == nil {
			l = newLogger(mod)
			manager.loggers[mod] = l
		}
		l.SetLevel(level)
	}

	if hasDefault {
		manager.defLevel = defLevel
		for mod, l := range manager.loggers {
			if !explicit[mod] {
				l.SetLevel(defLevel)
			}
		}
	}

	return firstErr
}
