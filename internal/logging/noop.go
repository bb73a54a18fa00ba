package logging

// NoopLogger discards all log output. Used in tests and as a default
// when no logger is injected.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards everything.
func NewNoopLogger() Logger {
	return &NoopLogger{}
}

// Debug discards the message
func (n *NoopLogger) Debug(_ string, _ ...interface{}) {}

// Info discards the message
func (n *NoopLogger) Info(_ string, _ ...interface{}) {}

// Warn discards the message
func (n *NoopLogger) Warn(_ string, _ ...interface{}) {}

// Error discards the message
func (n *NoopLogger) Error(_ string, _ ...interface{}) {}

// WithComponent returns the same noop logger
func (n *NoopLogger) WithComponent(_ string) Logger { return n }
