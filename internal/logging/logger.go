// Package logging configures the process-wide logger used by every
// component in this module: a real structured logger in place of ad-hoc
// fmt.Printf tagging, with every log line tagged by which subsystem
// emitted it.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the process-wide log level, e.g. for tests that want
// quiet output or callers that want debug-level frame/latch tracing.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// For returns a logger pre-tagged with component=name, e.g.
// "bufferpool", "txn", "lockmanager".
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}
