// Package monitoring holds the sifter's diagnostic log streams.
//
// Logf is the ops stream: lifecycle events, lost beams, persistence
// failures. Diagf is the verbose per-report stream and is silent unless a
// writer is installed with SetDiagWriter.
package monitoring

import (
	"io"
	"log"
	"sync"
)

// Logf is the package-level ops logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the ops logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var (
	diagMu     sync.RWMutex
	diagLogger *log.Logger
)

// SetDiagWriter installs the destination of the verbose diagnostic stream.
// Pass nil to disable it.
func SetDiagWriter(w io.Writer) {
	diagMu.Lock()
	defer diagMu.Unlock()
	if w == nil {
		diagLogger = nil
		return
	}
	diagLogger = log.New(w, "[diag] ", log.LstdFlags|log.Lmicroseconds)
}

// Diagf logs to the diagnostic stream when one is configured.
func Diagf(format string, v ...interface{}) {
	diagMu.RLock()
	l := diagLogger
	diagMu.RUnlock()
	if l != nil {
		l.Printf(format, v...)
	}
}
