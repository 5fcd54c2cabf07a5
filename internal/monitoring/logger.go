// Package monitoring carries the process-wide diagnostic logging hook shared
// by packages that only emit the occasional operational line.
package monitoring

import "log"

// Logf is the shared diagnostic logger. It defaults to log.Printf; callers
// that need quiet output, such as tests, can replace or mute it via
// SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the shared logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
