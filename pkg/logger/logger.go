package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// modulePath is stripped from caller file names reported to the collector.
const modulePath = "StockPulse"

type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

type Config struct {
	Level      string    // debug, info, warn, error
	Format     string    // json or console
	Output     string    // stdout, stderr, or file path
	TimeFormat string    // time format for log messages
	Writer     io.Writer // overrides Output when set
}

func New(cfg *Config) (*Logger, error) {
	lvl := cfg.Level
	if lvl == "" {
		lvl = "info"
	}
	level, err := zerolog.ParseLevel(lvl)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := cfg.Writer
	if output == nil {
		switch cfg.Output {
		case "", "stdout":
			output = os.Stdout
		case "stderr":
			output = os.Stderr
		default:
			file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("could not open log file: %w", err)
			}
			output = file
		}
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
		}
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()

	return &Logger{zl: zl}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Named returns a child logger tagging every entry with component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		collector: l.collector,
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields) }

// log writes one entry and hands errors, and warnings when configured, to
// the collector.
func (l *Logger) log(level zerolog.Level, msg string, fields []Field) {
	event := l.zl.WithLevel(level)
	if event != nil {
		for _, f := range fields {
			f.add(event)
		}
		event.Msg(msg)
	}

	c := l.collector
	if c == nil {
		return
	}
	switch {
	case level == zerolog.ErrorLevel:
	case level == zerolog.WarnLevel && c.config.IncludeWarnings:
	default:
		return
	}

	// log -> Error/Warn -> caller
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		parts := strings.Split(file, modulePath)
		caller = fmt.Sprintf("%s:%d", parts[len(parts)-1], line)
	}
	kv := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		kv[f.Key] = f.Value
	}
	c.AddLog(level.String(), msg, kv, caller)
}

func (l *Logger) AddCollector(config *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(config)
}

func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

// Field is one structured key/value. Value is what the collector ships.
type Field struct {
	Key   string
	Value interface{}
	add   func(e *zerolog.Event)
}

func String(key, value string) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Float64(key, value) }}
}

// Duration logs value in milliseconds.
func Duration(key string, value time.Duration) Field {
	return Int64(key, value.Milliseconds())
}

func Time(key string, value time.Time) Field {
	return String(key, value.Format(time.RFC3339))
}

// Error logs err under "error". The collector receives its text.
func Error(err error) Field {
	f := Field{Key: zerolog.ErrorFieldName, add: func(e *zerolog.Event) { e.Err(err) }}
	if err != nil {
		f.Value = err.Error()
	}
	return f
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Interface(key, value) }}
}
