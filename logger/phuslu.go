package logger

import (
	phlog "github.com/oarkflow/log"
)

// PhusluLogger writes through the global phlog logger. It is the default.
type PhusluLogger struct{}

func NewPhusluLogger() *PhusluLogger { return &PhusluLogger{} }

func (p *PhusluLogger) Debug(msg string, keyvals ...any) {
	e := phlog.Debug()
	eachPair(keyvals, func(k string, v any) {
		switch vv := v.(type) {
		case string:
			e = e.Str(k, vv)
		case bool:
			e = e.Bool(k, vv)
		case int:
			e = e.Int(k, vv)
		default:
			e = e.Any(k, vv)
		}
	})
	e.Msg(msg)
}

func (p *PhusluLogger) Info(msg string, keyvals ...any) {
	e := phlog.Info()
	eachPair(keyvals, func(k string, v any) {
		switch vv := v.(type) {
		case string:
			e = e.Str(k, vv)
		case bool:
			e = e.Bool(k, vv)
		case int:
			e = e.Int(k, vv)
		default:
			e = e.Any(k, vv)
		}
	})
	e.Msg(msg)
}

func (p *PhusluLogger) Error(msg string, keyvals ...any) {
	e := phlog.Error()
	eachPair(keyvals, func(k string, v any) {
		switch vv := v.(type) {
		case string:
			e = e.Str(k, vv)
		case error:
			e = e.Str(k, vv.Error())
		case int:
			e = e.Int(k, vv)
		default:
			e = e.Any(k, vv)
		}
	})
	e.Msg(msg)
}
