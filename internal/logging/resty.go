package logging

// RestyLogger implements resty.Logger and routes the HTTP client's internal
// logs through the shared loggers.
type RestyLogger struct{}

// Errorf routes error messages through structured logging.
func (RestyLogger) Errorf(format string, v ...any) {
	Error(format, v...)
}

// Warnf routes warning messages through structured logging.
func (RestyLogger) Warnf(format string, v ...any) {
	Warn(format, v...)
}

// Debugf routes debug messages through structured logging.
func (RestyLogger) Debugf(format string, v ...any) {
	Debug(format, v...)
}
