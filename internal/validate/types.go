// SPDX-License-Identifier: MIT
package validate

// LogLevel is a level name accepted in configuration.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ErrInvalidLogLevel is returned by ParseLogLevel.
var ErrInvalidLogLevel = &Error{
	Field:   "logLevel",
	Message: "invalid log level (must be: debug, info, warn, error)",
}

func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// ParseLogLevel returns s as a LogLevel or ErrInvalidLogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	if l := LogLevel(s); l.IsValid() {
		return l, nil
	}
	return "", ErrInvalidLogLevel
}
