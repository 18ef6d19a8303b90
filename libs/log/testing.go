package log

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

// TestingLogger returns a Logger that routes output through the test's
// logging facility, so messages surface only for failing tests or when
// run with -v.
func TestingLogger(t testing.TB) Logger {
	t.Helper()

	return defaultLogger{
		Logger: zerolog.New(newTestingWriter(t)).Level(zerolog.DebugLevel),
	}
}

var _ io.Writer = (*testingWriter)(nil)

type testingWriter struct {
	t testing.TB
}

func newTestingWriter(t testing.TB) testingWriter {
	return testingWriter{t: t}
}

func (w testingWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
