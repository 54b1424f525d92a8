package modsys

// Logger defines the interface for module system logging. Arguments after the
// message are key-value pairs:
//
//	logger.Info("Module started", "module", "database", "uptime", d)
//
// The lifecycle package declares the same method set, so any Logger can be
// handed to the lifecycle manager unchanged.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
