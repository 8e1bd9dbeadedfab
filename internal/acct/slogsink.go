package acct

import (
	"context"
	"log/slog"
	"os"
)

// Daemon severities that don't map onto slog's four built-in levels,
// expressed as slog.Level offsets per the custom-level recipe in the
// slog package docs.
const (
	levelNotice = slog.LevelInfo + 2
	levelInsane = slog.LevelDebug - 4
)

var toSlogLevel = map[Level]slog.Level{
	Emerg:      slog.LevelError + 8,
	Alert:      slog.LevelError + 6,
	Crit:       slog.LevelError + 4,
	ErrorLevel: slog.LevelError,
	Warning:    slog.LevelWarn,
	Notice:     levelNotice,
	Info:       slog.LevelInfo,
	Debug:      slog.LevelDebug,
	Insane:     levelInsane,
}

// SlogSink is the default Sink: structured logs via log/slog, with
// accounting events logged at Info under a dedicated "acct" attribute
// group so they're easy to filter out of the general log stream.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink builds a SlogSink over logger; a nil logger selects a JSON
// handler writing to os.Stdout.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Log(level Level, message string) {
	lvl, ok := toSlogLevel[level]
	if !ok {
		lvl = slog.LevelInfo
	}
	s.logger.Log(context.Background(), lvl, message, slog.String("severity", level.String()))
}

func (s *SlogSink) Acct(kind EventKind, message string) {
	s.logger.Info(message, slog.Group("acct", slog.String("event", kind.String())))
}
