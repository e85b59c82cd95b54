// Package monitoring holds the diagnostic logger shared by the capture and
// analysis pipelines.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, defaulting to log.Printf.
// The capture CLI and tests replace it via SetLogger to redirect or mute
// per-round progress output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
