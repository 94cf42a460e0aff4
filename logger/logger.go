// Package logger defines the small structured logging surface used by the
// authorization core and adapters for the logging libraries we ship with.
package logger

import "fmt"

type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// eachPair walks keyvals two at a time. A trailing key without a value is
// dropped.
func eachPair(keyvals []any, fn func(key string, value any)) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			k = fmt.Sprint(keyvals[i])
		}
		fn(k, keyvals[i+1])
	}
}
