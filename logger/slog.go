package logger

import (
	"context"
	"log/slog"
)

// SLogLogger adapts a *slog.Logger.
type SLogLogger struct {
	l *slog.Logger
}

func NewSLogLogger(l *slog.Logger) *SLogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SLogLogger{l: l}
}

func (s *SLogLogger) Debug(msg string, keyvals ...any) { s.log(slog.LevelDebug, msg, keyvals) }
func (s *SLogLogger) Info(msg string, keyvals ...any)  { s.log(slog.LevelInfo, msg, keyvals) }
func (s *SLogLogger) Error(msg string, keyvals ...any) { s.log(slog.LevelError, msg, keyvals) }

func (s *SLogLogger) log(level slog.Level, msg string, keyvals []any) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(keyvals)/2)
	eachPair(keyvals, func(k string, v any) {
		switch vv := v.(type) {
		case string:
			attrs = append(attrs, slog.String(k, vv))
		case bool:
			attrs = append(attrs, slog.Bool(k, vv))
		case int:
			attrs = append(attrs, slog.Int(k, vv))
		default:
			attrs = append(attrs, slog.Any(k, vv))
		}
	})
	s.l.LogAttrs(ctx, level, msg, attrs...)
}
