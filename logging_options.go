package wsauthz

import (
	"fmt"
	"time"

	"github.com/oarkflow/wsauthz/logger"
)

// Logger is re-exported so callers need not import the logger package.
type Logger = logger.Logger

// WithLogger installs a Logger on the Engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		if l == nil {
			return fmt.Errorf("engine: nil logger")
		}
		e.logger = l
		return nil
	}
}

// WithSessionStore persists sessions across processes.
func WithSessionStore(s SessionStore) EngineOption {
	return func(e *Engine) error {
		e.sessions = s
		return nil
	}
}

// WithBatchLimit caps the goroutines AuthorizeBatch runs at once.
func WithBatchLimit(n int) EngineOption {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("engine: batch limit must be positive, got %d", n)
		}
		e.batchLimit = n
		return nil
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		e.now = now
		return nil
	}
}
