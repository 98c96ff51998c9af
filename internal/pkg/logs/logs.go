package logs

import "context"

type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// Logger is the minimal logging surface the rest of the codebase depends on.
type Logger interface {
	SetLevel(level LogLevel)
	GetLevel() LogLevel

	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	Fatal(format string, v ...interface{})

	CtxDebug(ctx context.Context, format string, v ...interface{})
	CtxInfo(ctx context.Context, format string, v ...interface{})
	CtxWarn(ctx context.Context, format string, v ...interface{})
	CtxError(ctx context.Context, format string, v ...interface{})
	CtxFatal(ctx context.Context, format string, v ...interface{})

	NewLogID() string
	GetLogID(ctx context.Context) string
	SetLogID(ctx context.Context, logID string) context.Context
}

// Options configures the process-wide logger.
type Options struct {
	Level      string
	Format     string // text, json
	Output     string // stdout, file, both
	File       string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

var logger Logger = newDefaultLogger()

// SetLogger replaces the global logger. Not concurrent-safe; call at startup.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	logger = l
}

func DefaultLogger() Logger {
	return logger
}

// Init builds a logger from opts and installs it globally.
func Init(opts Options) error {
	l, err := newConfiguredLogger(opts)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

func SetLogLevel(level LogLevel) { logger.SetLevel(level) }

func Debug(format string, v ...interface{}) { logger.Debug(format, v...) }
func Info(format string, v ...interface{})  { logger.Info(format, v...) }
func Warn(format string, v ...interface{})  { logger.Warn(format, v...) }
func Error(format string, v ...interface{}) { logger.Error(format, v...) }
func Fatal(format string, v ...interface{}) { logger.Fatal(format, v...) }

func CtxDebug(ctx context.Context, format string, v ...interface{}) {
	logger.CtxDebug(ctx, format, v...)
}

func CtxInfo(ctx context.Context, format string, v ...interface{}) {
	logger.CtxInfo(ctx, format, v...)
}

func CtxWarn(ctx context.Context, format string, v ...interface{}) {
	logger.CtxWarn(ctx, format, v...)
}

func CtxError(ctx context.Context, format string, v ...interface{}) {
	logger.CtxError(ctx, format, v...)
}

func CtxFatal(ctx context.Context, format string, v ...interface{}) {
	logger.CtxFatal(ctx, format, v...)
}

func NewLogID() string { return logger.NewLogID() }

func GetLogID(ctx context.Context) string { return logger.GetLogID(ctx) }

func SetLogID(ctx context.Context, logID string) context.Context {
	return logger.SetLogID(ctx, logID)
}
