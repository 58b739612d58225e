package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// TestLogger captures JSON log output for assertions.
type TestLogger struct {
	zerolog.Logger
	Buffer *bytes.Buffer
}

// NewTestLogger creates a trace-level logger writing into a buffer.
func NewTestLogger(t testing.TB) *TestLogger {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.TraceLevel)
	return &TestLogger{Logger: logger, Buffer: buf}
}

// Context returns ctx carrying the test logger.
func (tl *TestLogger) Context(ctx context.Context) context.Context {
	return WithLogger(ctx, tl.Logger)
}

// Output returns the captured log output.
func (tl *TestLogger) Output() string {
	return tl.Buffer.String()
}

// Contains checks if the log output contains substr.
func (tl *TestLogger) Contains(substr string) bool {
	return strings.Contains(tl.Output(), substr)
}
