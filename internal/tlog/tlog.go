// Package tlog provides the leveled loggers used all over giltzarrapo.
// The loggers are plain logrus instances so call sites can use the familiar
// Printf/Println API: tlog.Debug.Printf(...), tlog.Warn.Println(...).
package tlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// prefixFormatter renders "prefix: message\n" with no timestamp. Terminal
// timestamps are noise for a one-shot CLI tool.
type prefixFormatter struct {
	prefix string
}

func (f *prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	msg := e.Message
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}
	if f.prefix == "" {
		return []byte(msg), nil
	}
	return []byte(f.prefix + ": " + msg), nil
}

func newLogger(prefix string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&prefixFormatter{prefix: prefix})
	return l
}

var (
	// Debug logs low-level trace output. Disabled by default, enabled by
	// the "--debug" CLI flag via SetDebug.
	Debug = newLogger("debug", io.Discard)

	// Info logs progress messages (block counts, timings, output and key paths).
	Info = newLogger("", os.Stdout)

	// Warn logs unusual conditions that do not abort the operation.
	Warn = newLogger("warning", os.Stderr)

	// Fatal logs errors right before the caller exits the process.
	Fatal = newLogger("fatal", os.Stderr)
)

// SetDebug enables or disables the Debug logger.
func SetDebug(enabled bool) {
	if enabled {
		Debug.SetOutput(os.Stderr)
	} else {
		Debug.SetOutput(io.Discard)
	}
}

// SetQuiet silences the Info logger. Warnings and fatals stay on.
func SetQuiet(quiet bool) {
	if quiet {
		Info.SetOutput(io.Discard)
	} else {
		Info.SetOutput(os.Stdout)
	}
}
