//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a module-scoped wrapper around zap.Logger.  Every entry carries the
// acting principal and the engine action that produced it.
type Logger struct {
	module string
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	level  zapcore.Level
	writer io.Writer
}

const (
	actor     = "actor"
	action    = "action"
	module    = "module"
	defActor  = "sys"
	defAction = "unk"
)

// internal function to create a logger without tracking. Application should
// call GetLogger() to retrieve a configured logger.
func newLogger(module string) *Logger {
	l := &Logger{
		module: module,
		level:  zapcore.InfoLevel,
	}
	l.rebuild()
	return l
}

func newEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	if os.Getenv("LOG_FORMATTER") == "text" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// rebuild recreates the zap core after a level or writer change.
func (l *Logger) rebuild() {
	core := zapcore.NewCore(newEncoder(), zapcore.AddSync(l.Out()), l.level)

	options := []zap.Option{
		zap.AddCallerSkip(2), // skip the wrapper and the emit helper
	}
	if os.Getenv("LOG_REPORT_CALLER") != "" {
		options = append(options, zap.AddCaller())
	}

	l.logger = zap.New(core, options...)
	l.sugar = l.logger.Sugar()
}

// IsDebugEnabled returns true if the current logging level is debug or lower.
// Use it to guard debug output that is expensive to compute.
//
//	if logger.IsDebugEnabled() {
//	    logger.Debugf(...)
//	}
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= zapcore.DebugLevel
}

// IsTraceEnabled maps to debug; zap has no trace level.
func (l *Logger) IsTraceEnabled() bool {
	return l.level <= zapcore.DebugLevel
}

// IsLevelEnabled checks if a level is enabled
func (l *Logger) IsLevelEnabled(level zapcore.Level) bool {
	return l.level <= level
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level = level
	l.rebuild()
}

// Out returns the output writer
func (l *Logger) Out() io.Writer {
	if l.writer != nil {
		return l.writer
	}
	return os.Stdout
}

// SetOut redirects output, mostly for tests
func (l *Logger) SetOut(w io.Writer) {
	l.writer = w
	l.rebuild()
}

func (l *Logger) with(actorID, actionID string) *zap.SugaredLogger {
	return l.sugar.With(
		zap.String(actor, actorID),
		zap.String(action, actionID),
		zap.String(module, l.module),
	)
}

func (l *Logger) emit(level zapcore.Level, actorID, actionID string, args []interface{}) {
	if !l.IsLevelEnabled(level) {
		return
	}
	s := l.with(actorID, actionID)
	switch level {
	case zapcore.DebugLevel:
		s.Debug(args...)
	case zapcore.InfoLevel:
		s.Info(args...)
	case zapcore.WarnLevel:
		s.Warn(args...)
	case zapcore.ErrorLevel:
		s.Error(args...)
	default:
		s.Fatal(args...)
	}
}

func (l *Logger) emitf(level zapcore.Level, actorID, actionID string, format string, args []interface{}) {
	if !l.IsLevelEnabled(level) {
		return
	}
	s := l.with(actorID, actionID)
	switch level {
	case zapcore.DebugLevel:
		s.Debugf(format, args...)
	case zapcore.InfoLevel:
		s.Infof(format, args...)
	case zapcore.WarnLevel:
		s.Warnf(format, args...)
	case zapcore.ErrorLevel:
		s.Errorf(format, args...)
	default:
		s.Fatalf(format, args...)
	}
}

// Fatalf logs a fatal message and exits
func (l *Logger) Fatalf(actorID, actionID string, format string, args ...interface{}) {
	l.emitf(zapcore.FatalLevel, actorID, actionID, format, args)
}

// Trace logs a trace message
func (l *Logger) Trace(actorID, actionID string, args ...interface{}) {
	l.emit(zapcore.DebugLevel, actorID, actionID, args)
}

// Tracef logs a trace message
func (l *Logger) Tracef(actorID, actionID string, format string, args ...interface{}) {
	l.emitf(zapcore.DebugLevel, actorID, actionID, format, args)
}

// Debug logs a debug message
func (l *Logger) Debug(actorID, actionID string, args ...interface{}) {
	l.emit(zapcore.DebugLevel, actorID, actionID, args)
}

// Debugf logs a debug message
func (l *Logger) Debugf(actorID, actionID string, format string, args ...interface{}) {
	l.emitf(zapcore.DebugLevel, actorID, actionID, format, args)
}

// Info logs an info message
func (l *Logger) Info(actorID, actionID string, args ...interface{}) {
	l.emit(zapcore.InfoLevel, actorID, actionID, args)
}

// Infof logs an info message
func (l *Logger) Infof(actorID, actionID string, format string, args ...interface{}) {
	l.emitf(zapcore.InfoLevel, actorID, actionID, format, args)
}

// Warn logs a warning message
func (l *Logger) Warn(actorID, actionID string, args ...interface{}) {
	l.emit(zapcore.WarnLevel, actorID, actionID, args)
}

// Warnf logs a warning message
func (l *Logger) Warnf(actorID, actionID string, format string, args ...interface{}) {
	l.emitf(zapcore.WarnLevel, actorID, actionID, format, args)
}

// Error logs an error message
func (l *Logger) Error(actorID, actionID string, args ...interface{}) {
	l.emit(zapcore.ErrorLevel, actorID, actionID, args)
}

// Errorf logs an error message
func (l *Logger) Errorf(actorID, actionID string, format string, args ...interface{}) {
	l.emitf(zapcore.ErrorLevel, actorID, actionID, format, args)
}

// Below are functions using default actor and action

// SysFatalf logs a fatal message with default actor and action
func (l *Logger) SysFatalf(format string, args ...interface{}) {
	l.emitf(zapcore.FatalLevel, defActor, defAction, format, args)
}

// SysDebug logs a debug message with default actor and action
func (l *Logger) SysDebug(args ...interface{}) {
	l.emit(zapcore.DebugLevel, defActor, defAction, args)
}

// SysDebugf logs a debug message with default actor and action
func (l *Logger) SysDebugf(format string, args ...interface{}) {
	l.emitf(zapcore.DebugLevel, defActor, defAction, format, args)
}

// SysInfo logs an info message with default actor and action
func (l *Logger) SysInfo(args ...interface{}) {
	l.emit(zapcore.InfoLevel, defActor, defAction, args)
}

// SysInfof logs an info message with default actor and action
func (l *Logger) SysInfof(format string, args ...interface{}) {
	l.emitf(zapcore.InfoLevel, defActor, defAction, format, args)
}

// SysWarn logs a warning message with default actor and action
func (l *Logger) SysWarn(args ...interface{}) {
	l.emit(zapcore.WarnLevel, defActor, defAction, args)
}

// SysWarnf logs a warning message with default actor and action
func (l *Logger) SysWarnf(format string, args ...interface{}) {
	l.emitf(zapcore.WarnLevel, defActor, defAction, format, args)
}

// SysError logs an error message with default actor and action
func (l *Logger) SysError(args ...interface{}) {
	l.emit(zapcore.ErrorLevel, defActor, defAction, args)
}

// SysErrorf logs an error message with default actor and action
func (l *Logger) SysErrorf(format string, args ...interface{}) {
	l.emitf(zapcore.ErrorLevel, defActor, defAction, format, args)
}
