// Package ports defines the interfaces between the encoding pipeline and its
// external collaborators: logging, storage, frame input and the encoder backend.
package ports

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LevelDebug is for detailed debugging information.
	// Used for per-packet and per-box details inside the driver and muxer.
	LevelDebug LogLevel = iota
	// LevelInfo is for informational messages.
	// Used for job progress.
	LevelInfo
	// LevelWarn is for warning messages.
	// Used for problems that don't stop the job, such as a failed cleanup.
	LevelWarn
	// LevelError is for error messages.
	// Used for job failures.
	LevelError
	// LevelQuiet suppresses all log output.
	LevelQuiet
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelQuiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses a string into a LogLevel.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "quiet":
		return LevelQuiet
	default:
		return LevelInfo
	}
}

// Logger abstracts logging operations with multi-language support.
type Logger interface {
	// Debug logs a debug message. msg is a format string and a translation key.
	Debug(msg string, args ...interface{})

	// Info logs job progress.
	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})

	// WithComponent returns a Logger that prefixes messages with the component
	// name, e.g. "mux" or "encoder".
	WithComponent(component string) Logger
}
