package common

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the level used by loggers created in tests.
const TestLogLevel = logrus.DebugLevel

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests. Output written after the test has
// finished, by goroutines that are still winding down, is dropped.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string

	l    sync.Mutex
	done bool
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	a.l.Lock()
	defer a.l.Unlock()

	n := len(d)
	if a.done || n == 0 {
		return n, nil
	}

	if d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		a.t.Log(a.prefix + ": " + string(d))
		return n, nil
	}
	a.t.Log(string(d))
	return n, nil
}

func (a *testLoggerAdapter) finish() {
	a.l.Lock()
	defer a.l.Unlock()
	a.done = true
}

// NewTestLogger returns a logrus Logger that writes to t.Log.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	adapter := &testLoggerAdapter{t: t}
	t.Cleanup(adapter.finish)

	logger := logrus.New()
	logger.Out = adapter
	logger.Level = level
	return logger
}

// NewTestEntry returns a logrus Entry with the "prefix" field set to name.
func NewTestEntry(t testing.TB, name string) *logrus.Entry {
	return NewTestLogger(t, TestLogLevel).WithField("prefix", name)
}
