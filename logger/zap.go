package logger

import "go.uber.org/zap"

// ZapLogger adapts a *zap.Logger.
type ZapLogger struct {
	l *zap.Logger
}

func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{l: l}
}

func (z *ZapLogger) Debug(msg string, keyvals ...any) { z.l.Debug(msg, zapFields(keyvals)...) }
func (z *ZapLogger) Info(msg string, keyvals ...any)  { z.l.Info(msg, zapFields(keyvals)...) }
func (z *ZapLogger) Error(msg string, keyvals ...any) { z.l.Error(msg, zapFields(keyvals)...) }

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error { return z.l.Sync() }

func zapFields(keyvals []any) []zap.Field {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	eachPair(keyvals, func(k string, v any) {
		switch vv := v.(type) {
		case string:
			fields = append(fields, zap.String(k, vv))
		case bool:
			fields = append(fields, zap.Bool(k, vv))
		case int:
			fields = append(fields, zap.Int(k, vv))
		case error:
			fields = append(fields, zap.NamedError(k, vv))
		default:
			fields = append(fields, zap.Any(k, vv))
		}
	})
	return fields
}
