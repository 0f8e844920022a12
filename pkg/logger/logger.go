package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name from configuration into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}

// sink is the shared state behind a logger and all of its children, so that
// SetOutput and SetLevel take effect for WithField loggers created earlier.
type sink struct {
	mu    sync.Mutex
	level Level
	out   io.Writer
}

// Logger is a leveled key/value logger. Fields attached via WithField are
// emitted with every message, which keeps per-session and per-worker context
// out of the message text itself.
type Logger struct {
	sink   *sink
	fields []field
}

type field struct {
	key   string
	value interface{}
}

func New() *Logger {
	return &Logger{sink: &sink{level: INFO, out: os.Stdout}}
}

// SetOutput redirects this logger and every child created with WithField.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out = w
}

func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// WithField returns a child logger carrying one additional context field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(key, value)
}

// WithFields returns a child logger carrying the given key/value pairs.
// An odd trailing key is ignored.
func (l *Logger) WithFields(keyVals ...interface{}) *Logger {
	child := &Logger{
		sink:   l.sink,
		fields: make([]field, 0, len(l.fields)+len(keyVals)/2),
	}
	child.fields = append(child.fields, l.fields...)
	for i := 0; i+1 < len(keyVals); i += 2 {
		child.fields = append(child.fields, field{fmt.Sprintf("%v", keyVals[i]), keyVals[i+1]})
	}
	return child
}

func (l *Logger) Debug(msg string, keyVals ...interface{}) { l.log(DEBUG, msg, keyVals...) }
func (l *Logger) Info(msg string, keyVals ...interface{})  { l.log(INFO, msg, keyVals...) }
func (l *Logger) Warn(msg string, keyVals ...interface{})  { l.log(WARN, msg, keyVals...) }
func (l *Logger) Error(msg string, keyVals ...interface{}) { l.log(ERROR, msg, keyVals...) }

func (l *Logger) Fatal(msg string, keyVals ...interface{}) {
	l.log(ERROR, msg, keyVals...)
	os.Exit(1)
}

func (l *Logger) log(level Level, msg string, keyVals ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if level < l.sink.level {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02T15:04:05.000Z07:00"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)

	kv := make(map[string]interface{}, len(l.fields)+len(keyVals)/2)
	for _, f := range l.fields {
		kv[f.key] = f.value
	}
	for i := 0; i+1 < len(keyVals); i += 2 {
		kv[fmt.Sprintf("%v", keyVals[i])] = keyVals[i+1]
	}
	if len(kv) > 0 {
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(formatValue(kv[k]))
		}
	}
	b.WriteString("\n")

	_, _ = io.WriteString(l.sink.out, b.String())
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		if strings.ContainsAny(v, " \t") {
			return fmt.Sprintf("%q", v)
		}
		return v
	case error:
		return fmt.Sprintf("%q", v.Error())
	case time.Duration:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// global logger for call sites without an injected instance
var global = New()

func Debug(msg string, keyVals ...interface{}) { global.Debug(msg, keyVals...) }
func Info(msg string, keyVals ...interface{})  { global.Info(msg, keyVals...) }
func Warn(msg string, keyVals ...interface{})  { global.Warn(msg, keyVals...) }
func Error(msg string, keyVals ...interface{}) { global.Error(msg, keyVals...) }
func Fatal(msg string, keyVals ...interface{}) { global.Fatal(msg, keyVals...) }

func WithField(key string, value interface{}) *Logger { return global.WithField(key, value) }
func WithFields(keyVals ...interface{}) *Logger       { return global.WithFields(keyVals...) }

func SetLevel(level Level)  { global.SetLevel(level) }
func SetOutput(w io.Writer) { global.SetOutput(w) }
func Default() *Logger      { return global }
