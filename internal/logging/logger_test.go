package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"celebrator/internal/observability"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.lines = append(r.lines, "D "+format) }
func (r *recordingLogger) Info(format string, args ...any)  { r.lines = append(r.lines, "I "+format) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.lines = append(r.lines, "W "+format) }
func (r *recordingLogger) Error(format string, args ...any) { r.lines = append(r.lines, "E "+format) }

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var rec *recordingLogger
	var logger Logger = rec
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world")
}

func TestFromObservabilityFormatsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{
		Level:  "info",
		Format: "text",
		Output: buf,
	})

	logger := FromObservabilityWithComponent(base, "supervisor")
	logger.Info("epoch %d started", 3)

	if want := "epoch 3 started"; !strings.Contains(buf.String(), want) {
		t.Fatalf("expected %q in output, got %q", want, buf.String())
	}
	if !strings.Contains(buf.String(), "component=supervisor") {
		t.Fatalf("expected component attribute, got %q", buf.String())
	}
}

func TestFromObservabilityRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{Level: "warn", Output: buf})
	logger := FromObservabilityWithComponent(base, "")
	logger.Info("dropped")
	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info/debug to be filtered, got %q", buf.String())
	}
}

func TestWithLogIDUsesStructuredAttribute(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{Level: "debug", Format: "json", Output: buf})
	logger := WithLogID(FromObservabilityWithComponent(base, "stream"), "abc")
	logger.Debug("frame")
	if !strings.Contains(buf.String(), `"log_id":"abc"`) {
		t.Fatalf("expected log_id attribute, got %q", buf.String())
	}
}

func TestWithLogIDPrefixesPlainLoggers(t *testing.T) {
	rec := &recordingLogger{}
	WithLogID(rec, "xyz").Warn("closing")
	if len(rec.lines) != 1 || rec.lines[0] != "W [log_id=xyz] closing" {
		t.Fatalf("unexpected lines: %v", rec.lines)
	}
}

func TestLogIDRoundTripsThroughContext(t *testing.T) {
	id := NewLogID()
	ctx := ContextWithLogID(context.Background(), id)
	if got := LogIDFromContext(ctx); got != id {
		t.Fatalf("expected %q, got %q", id, got)
	}
	rec := &recordingLogger{}
	FromContext(ctx, rec).Info("hi")
	if len(rec.lines) != 1 || !strings.Contains(rec.lines[0], id) {
		t.Fatalf("expected log id in %v", rec.lines)
	}
}
