package log

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// Options configures the process-wide logger.
type Options struct {
	Level   Level
	Console bool      // human readable output instead of JSON lines
	Out     io.Writer // defaults to os.Stdout
	AppName string
}

var (
	providerMu      sync.RWMutex
	defaultProvider = newZerologProvider(Options{Level: LevelInfo, Out: os.Stdout})
)

// Setup replaces the process-wide logger. It is called once from main.
func Setup(opts Options) {
	p := newZerologProvider(opts)

	providerMu.Lock()
	defaultProvider = p
	providerMu.Unlock()

	warnLogger := p.base.With().Str(ComponentKey, "warnings").Logger()
	errors.SetZerologWarnFunc(func(w error) {
		e := warnLogger.Warn()
		var m zerolog.LogObjectMarshaler
		if errors.As(w, &m) {
			e = e.EmbedObject(m)
		}
		e.Msg(w.Error())
	})
}

// GetLogger returns the default logger instance.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLoggerWithName(name)
}

// SetLevel changes the minimum level of the default provider.
func SetLevel(level Level) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	defaultProvider.SetLevel(level)
}

// ParseLevel converts "debug", "info", "warn" or "error" into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
}

// zerologProvider implements LoggerProvider on top of a zerolog.Logger.
type zerologProvider struct {
	base  zerolog.Logger
	level *levelVar
}

func newZerologProvider(opts Options) *zerologProvider {
	configureErrorStack()

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.AppName != "" {
		ctx = ctx.Str("app", opts.AppName)
	}

	lv := &levelVar{}
	lv.Set(opts.Level)
	return &zerologProvider{base: ctx.Logger(), level: lv}
}

func (p *zerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.base, level: p.level}
}

func (p *zerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger(), level: p.level}
}

func (p *zerologProvider) SetLevel(level Level) {
	p.level.Set(level)
}

// NewZerologLogger builds a standalone Logger writing JSON lines to w.
func NewZerologLogger(w io.Writer, level Level) Logger {
	configureErrorStack()
	lv := &levelVar{}
	lv.Set(level)
	return &zerologLogger{zl: zerolog.New(w).With().Timestamp().Logger(), level: lv}
}

// levelVar is shared by every logger handed out by one provider so that
// SetLevel affects loggers that were created earlier.
type levelVar struct {
	mu    sync.RWMutex
	level Level
}

func (v *levelVar) Set(l Level) {
	v.mu.Lock()
	v.level = l
	v.mu.Unlock()
}

func (v *levelVar) Get() Level {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.level
}

type zerologLogger struct {
	zl    zerolog.Logger
	level *levelVar
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.emit(LevelDebug, msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	l.emit(LevelInfo, msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.emit(LevelWarn, msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	l.emit(LevelError, msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{zl: l.zl.With().Fields(fields).Logger(), level: l.level}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= l.level.Get()
}

func (l *zerologLogger) emit(level Level, msg string, fields []any) {
	if !l.Enabled(context.Background(), level) {
		return
	}

	var e *zerolog.Event
	switch level {
	case LevelDebug:
		e = l.zl.Debug()
	case LevelInfo:
		e = l.zl.Info()
	case LevelWarn:
		e = l.zl.Warn()
	default:
		e = l.zl.Error()
	}

	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e = e.Stack().Err(err)
			var m zerolog.LogObjectMarshaler
			if errors.As(err, &m) {
				e = e.Object(ErrorTypeKey, m)
			}
			fields = fields[1:]
		}
	}
	if len(fields) > 0 {
		e = e.Fields(fields)
	}
	e.Msg(msg)
}
