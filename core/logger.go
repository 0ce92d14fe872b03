package core

// Logger is the application logger.
// args may carry an error, a map[string]interface{} of extras and the account the log is about.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the account a log line is about.
type Person struct {
	ID       string
	Username string
	Email    string
}
