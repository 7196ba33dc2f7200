// Package logging provides the structured field logger shared by the
// manifest, player and diagnostics packages.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown strings default to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Field is a single structured logging field.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field     { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field       { return Field{Key: key, Value: value} }
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is the interface the rest of the module logs through.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Options configures a Fieldlogger.
type Options struct {
	Level  Level
	Format string // "json" or "text"
	Output io.Writer
}

// FieldLogger writes structured entries in JSON or text form.
type FieldLogger struct {
	level  Level
	format string
	out    io.Writer
	bound  map[string]interface{}
	mu     *sync.Mutex
}

// New creates a FieldLogger. A nil Output defaults to stderr.
func New(opts Options) *FieldLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	format := opts.Format
	if format != "json" && format != "text" {
		format = "text"
	}
	return &FieldLogger{
		level:  opts.Level,
		format: format,
		out:    out,
		bound:  map[string]interface{}{},
		mu:     &sync.Mutex{},
	}
}

// Default returns a text logger at info level on stderr.
func Default() Logger {
	return New(Options{Level: InfoLevel})
}

// Nop returns a logger that discards everything. Used throughout the tests.
func Nop() Logger {
	return New(Options{Level: ErrorLevel, Output: io.Discard})
}

func (l *FieldLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *FieldLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *FieldLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *FieldLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// With returns a child logger with the given fields bound to every entry.
func (l *FieldLogger) With(fields ...Field) Logger {
	bound := make(map[string]interface{}, len(l.bound)+len(fields))
	for k, v := range l.bound {
		bound[k] = v
	}
	for _, f := range fields {
		bound[f.Key] = f.Value
	}
	return &FieldLogger{
		level:  l.level,
		format: l.format,
		out:    l.out,
		bound:  bound,
		mu:     l.mu,
	}
}

type entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *FieldLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		Fields:    make(map[string]interface{}, len(l.bound)+len(fields)),
	}
	for k, v := range l.bound {
		e.Fields[k] = v
	}
	for _, f := range fields {
		e.Fields[f.Key] = f.Value
	}

	var line string
	if l.format == "json" {
		data, err := json.Marshal(e)
		if err != nil {
			line = fmt.Sprintf("{\"level\":\"ERROR\",\"message\":\"log marshal failed: %v\"}", err)
		} else {
			line = string(data)
		}
	} else {
		line = formatText(e)
	}

	l.mu.Lock()
	fmt.Fprintln(l.out, line)
	l.mu.Unlock()
}

func formatText(e entry) string {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format("2006-01-02 15:04:05.000"))
	b.WriteString(" [")
	b.WriteString(e.Level)
	b.WriteString("] ")
	b.WriteString(e.Message)

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
		}
		b.WriteString("}")
	}
	return b.String()
}
