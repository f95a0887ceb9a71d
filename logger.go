package resilience

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Logger is the minimal structured logging interface the library emits
// debug output through. Keys and values alternate in keysAndValues.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SimpleLogger writes leveled key=value lines to a standard library logger.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a console logger writing to stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...any) {
	l.print("DEBUG", msg, keysAndValues)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...any) {
	l.print("INFO", msg, keysAndValues)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...any) {
	l.print("WARN", msg, keysAndValues)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...any) {
	l.print("ERROR", msg, keysAndValues)
}

func (l *SimpleLogger) print(level, msg string, keysAndValues []any) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	if len(keysAndValues)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", keysAndValues[len(keysAndValues)-1])
	}
	l.logger.Print(b.String())
}

// DebugConfig gates the client's debug logging per concern so insight can
// be enabled without noise.
type DebugConfig struct {
	Enabled      bool
	LogRetries   bool
	LogRateLimit bool
	LogCircuit   bool
	LogDedup     bool

	// RequestIDGen produces the correlation ID attached to every log line
	// and Error for one logical call.
	RequestIDGen func() string
}

// DefaultDebugConfig returns a config with all areas enabled and UUID
// request IDs; Enabled is left off until WithDebug switches it on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRetries:   true,
		LogRateLimit: true,
		LogCircuit:   true,
		LogDedup:     true,
		RequestIDGen: func() string { return uuid.NewString() },
	}
}
