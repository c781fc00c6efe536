package hwlog

import (
	"io"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is type of log levels
type Level = zapcore.Level

const (
	// DebugLevel level
	DebugLevel Level = zap.DebugLevel
	// InfoLevel level
	InfoLevel Level = zap.InfoLevel
	// WarnLevel level
	WarnLevel Level = zap.WarnLevel
	// ErrorLevel level
	ErrorLevel Level = zap.ErrorLevel
	// PanicLevel level
	PanicLevel Level = zap.PanicLevel
	// FatalLevel level
	FatalLevel Level = zap.FatalLevel
)

type logFormatFunc func(format string, args ...interface{})

var (
	// Debugf logs formatted debug message
	Debugf logFormatFunc
	// Infof logs formatted info message
	Infof logFormatFunc
	// Warnf logs formatted warn message
	Warnf logFormatFunc
	// Errorf logs formatted error message
	Errorf logFormatFunc
	Panicf logFormatFunc
	Fatalf logFormatFunc
	Fatal  func(args ...interface{})
	Panic  func(args ...interface{})

	cfg    zap.Config
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	source string
)

func init() {
	cfg = zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.DebugLevel),
		Encoding:         "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:   "message",
			LevelKey:     "level",
			TimeKey:      "ts",
			EncodeLevel:  zapcore.LowercaseLevelEncoder,
			EncodeTime:   zapcore.ISO8601TimeEncoder,
			LineEnding:   zapcore.DefaultLineEnding,
		},
	}
	rebuild()
}

func rebuild() {
	var err error
	logger, err = cfg.Build()
	if err != nil {
		panic(err)
	}
	if source != "" {
		logger = logger.With(zap.String("source", source))
	}
	setSugar(logger.Sugar())
}

func setSugar(sugar_ *zap.SugaredLogger) {
	sugar = sugar_
	Debugf = sugar.Debugf
	Infof = sugar.Infof
	Warnf = sugar.Warnf
	Errorf = sugar.Errorf
	Panicf = sugar.Panicf
	Panic = sugar.Panic
	Fatalf = sugar.Fatalf
	Fatal = sugar.Fatal
}

// SetSource sets the component name (server/gate) of hwlog module
func SetSource(comp string) {
	source = comp
	rebuild()
}

// SetLevel sets the log level
func SetLevel(lv Level) {
	cfg.Level.SetLevel(lv)
}

// SetOutput sets the output paths, e.g. "stderr" or log file paths
func SetOutput(outputs []string) {
	cfg.OutputPaths = outputs
	rebuild()
}

// GetOutput returns the writer used for stack traces
func GetOutput() io.Writer {
	return os.Stderr
}

// TraceError prints the stack and error
func TraceError(format string, args ...interface{}) {
	GetOutput().Write(debug.Stack())
	Errorf(format, args...)
}

// ParseLevel converts string to log Level
func ParseLevel(s string) Level {
	s = strings.ToLower(s)
	if s == "debug" {
		return DebugLevel
	} else if s == "info" {
		return InfoLevel
	} else if s == "warn" || s == "warning" {
		return WarnLevel
	} else if s == "error" {
		return ErrorLevel
	} else if s == "panic" {
		return PanicLevel
	} else if s == "fatal" {
		return FatalLevel
	}
	Errorf("ParseLevel: unknown level: %s", s)
	return DebugLevel
}
