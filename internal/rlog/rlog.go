// Package rlog provides the simple level-logging facility used to report
// recovered corruption and other diagnostics from the record and chunk
// layers, without forcing a particular logging framework on callers.
package rlog

import (
	"fmt"
	golog "log"
)

// Level is a log verbosity level. An Outputter configured at level L
// emits every message at level M <= L.
type Level int

const (
	// Off never outputs messages.
	Off Level = -2
	// Error outputs error messages, used for recovered corruption.
	Error Level = -1
	// Info is the standard logging level.
	Info Level = 0
	// Debug outputs development diagnostics.
	Debug Level = 1
)

// Outputter is the destination for leveled log output. Embedding apps can
// install their own to route riegeli's diagnostics into their own logging
// framework.
type Outputter interface {
	Level() Level
	Output(level Level, s string) error
}

type gologOutputter struct{ level Level }

func (o gologOutputter) Level() Level { return o.level }

func (o gologOutputter) Output(level Level, s string) error {
	if o.level < level {
		return nil
	}
	return golog.Output(3, s)
}

var out Outputter = gologOutputter{level: Info}

// SetOutputter installs a new outputter, returning the previous one.
// Not safe to call concurrently with logging output.
func SetOutputter(n Outputter) Outputter {
	old := out
	out = n
	return old
}

// At reports whether level is currently logged.
func At(level Level) bool { return level <= out.Level() }

// Errorf logs a formatted message at Error level.
func Errorf(format string, args ...interface{}) {
	if At(Error) {
		_ = out.Output(Error, fmt.Sprintf(format, args...))
	}
}

// Infof logs a formatted message at Info level.
func Infof(format string, args ...interface{}) {
	if At(Info) {
		_ = out.Output(Info, fmt.Sprintf(format, args...))
	}
}

// Debugf logs a formatted message at Debug level.
func Debugf(format string, args ...interface{}) {
	if At(Debug) {
		_ = out.Output(Debug, fmt.Sprintf(format, args...))
	}
}
