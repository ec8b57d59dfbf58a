// Package debug holds the process-wide verbose-output switches. These are
// deliberately plain prints, not slog: they are emoji-tagged session traces
// a developer watches live, not logs a shipper ingests.
package debug

import "fmt"

// Enabled turns on session traces (state changes, transcripts, tool calls).
// Set from the -debug flag.
var Enabled bool

// Wire additionally turns on per-frame traffic traces (mic chunks, playback
// chunks, raw provider messages). Set from the -debug-wire flag; expect
// thousands of lines per minute.
var Wire bool

// Log prints a session trace when -debug is set.
func Log(format string, args ...any) {
	if Enabled {
		fmt.Printf(format, args...)
	}
}

// Logln prints a one-line session trace when -debug is set.
func Logln(msg string) {
	if Enabled {
		fmt.Println(msg)
	}
}

// WireLog prints a per-frame trace when -debug-wire is set.
func WireLog(format string, args ...any) {
	if Wire {
		fmt.Printf(format, args...)
	}
}
