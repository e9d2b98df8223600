package pkg

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelErrOnly
	LogLevelDebug
)

// SetupLogger installs the global zap logger at the requested level.
// Safe to call more than once; the last call wins.
func SetupLogger(level LogLevel) {
	var cfg zap.Config
	switch level {
	case LogLevelNone:
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.FatalLevel)
	case LogLevelDebug:
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

// Log returns the global sugared logger.
func Log() *zap.SugaredLogger { return zap.S() }
