package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	charmLog "github.com/charmbracelet/log"

	"flowbridge/pkg/config"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// levels maps accepted level names onto both sinks.
var levels = map[string]struct {
	slog  slog.Level
	charm charmLog.Level
}{
	"debug":   {slog.LevelDebug, charmLog.DebugLevel},
	"info":    {slog.LevelInfo, charmLog.InfoLevel},
	"warn":    {slog.LevelWarn, charmLog.WarnLevel},
	"warning": {slog.LevelWarn, charmLog.WarnLevel},
	"error":   {slog.LevelError, charmLog.ErrorLevel},
}

// LogEntry is one line of JSON log output. Turn correlation keys are
// top-level so a single conversation can be followed across components.
type LogEntry struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	TurnID    string         `json:"turn_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// overrides are the FLOWBRIDGE_LOG_* variables applied on top of the config file.
type overrides struct {
	Format    string `env:"FLOWBRIDGE_LOG_FORMAT"`
	Level     string `env:"FLOWBRIDGE_LOG_LEVEL"`
	AddSource string `env:"FLOWBRIDGE_LOG_ADD_SOURCE"`
}

type settings struct {
	format    string
	level     string
	addSource bool
}

func resolve(cfg config.LoggingConfig) (settings, error) {
	o, err := env.ParseAs[overrides]()
	if err != nil {
		return settings{}, fmt.Errorf("read log overrides: %w", err)
	}

	s := settings{
		format:    firstNonEmpty(o.Format, cfg.Format, formatText),
		level:     firstNonEmpty(o.Level, cfg.Level, "info"),
		addSource: cfg.AddSource,
	}
	if strings.TrimSpace(o.AddSource) != "" {
		s.addSource = parseBool(o.AddSource)
	}
	return s, nil
}

// New builds the process logger on stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	s, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	level, ok := levels[s.level]
	if !ok {
		return nil, fmt.Errorf("unsupported log level %q", s.level)
	}

	// Upstream errors can echo request headers.
	writer = NewRedactor().Wrap(writer)

	switch s.format {
	case formatText:
		return slog.New(charmLog.NewWithOptions(writer, charmLog.Options{
			Level:           level.charm,
			ReportTimestamp: true,
			ReportCaller:    s.addSource,
			Formatter:       charmLog.TextFormatter,
		})), nil
	case formatJSON:
		return slog.New(&entryHandler{
			level:     level.slog,
			addSource: s.addSource,
			writer:    writer,
			mu:        &sync.Mutex{},
		}), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", s.format)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.ToLower(strings.TrimSpace(value)); v != "" {
			return v
		}
	}
	return ""
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// entryHandler writes one LogEntry per record.
type entryHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	attrs     []slog.Attr
	groups    []string
	mu        *sync.Mutex
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}
	entry := LogEntry{
		Time:    at.UTC().Format(time.RFC3339Nano),
		Level:   strings.ToLower(record.Level.String()),
		Message: record.Message,
	}

	fields := make(map[string]any)
	add := func(attr slog.Attr) bool {
		entry.fold(fields, h.groups, attr)
		return true
	}
	for _, attr := range h.attrs {
		add(attr)
	}
	record.Attrs(add)
	if len(fields) > 0 {
		entry.Fields = fields
	}

	if h.addSource && record.PC != 0 {
		if frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next(); frame.File != "" {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

// fold places attr either on a promoted key or into fields.
func (e *LogEntry) fold(fields map[string]any, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + attr.Key
	}

	if attr.Value.Kind() == slog.KindString {
		if target := e.promoted(key); target != nil {
			*target = attr.Value.String()
			return
		}
	}

	fields[key] = plainValue(attr.Value)
}

func (e *LogEntry) promoted(key string) *string {
	switch key {
	case "component":
		return &e.Component
	case "channel":
		return &e.Channel
	case "user_id":
		return &e.UserID
	case "turn_id":
		return &e.TurnID
	default:
		return nil
	}
}

func plainValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		result := make(map[string]any, len(group))
		for _, item := range group {
			result[item.Key] = plainValue(item.Value.Resolve())
		}
		return result
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.Any()
	}
}
