package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// lineRecorder collects broadcast lines for assertions.
type lineRecorder struct {
	lines []string
}

func (r *lineRecorder) LogLine(line string) {
	r.lines = append(r.lines, line)
}

// TestBroadcastHandler tests that records reach both the underlying
// handler and the broadcaster.
func TestBroadcastHandler(t *testing.T) {
	t.Parallel()

	t.Run("mirrors records to bus and writer", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		rec := &lineRecorder{}
		logger := New(&buf, false, rec)

		logger.Info("instance ready", "instance_id", 1, "ip", "1.2.3.4")

		if !strings.Contains(buf.String(), "instance ready") {
			t.Errorf("underlying handler output missing message: %q", buf.String())
		}
		if len(rec.lines) != 1 {
			t.Fatalf("expected 1 broadcast line, got %d", len(rec.lines))
		}
		line := rec.lines[0]
		for _, want := range []string{"INFO", "instance ready", "instance_id=1", "ip=1.2.3.4"} {
			if !strings.Contains(line, want) {
				t.Errorf("broadcast line %q missing %q", line, want)
			}
		}
	})

	t.Run("debug suppressed unless verbose", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		rec := &lineRecorder{}
		logger := New(&buf, false, rec)

		logger.Debug("circuit detail")

		if len(rec.lines) != 0 {
			t.Errorf("expected no broadcast for suppressed debug, got %v", rec.lines)
		}
		if buf.Len() != 0 {
			t.Errorf("expected no output for suppressed debug, got %q", buf.String())
		}
	})

	t.Run("verbose enables debug", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		rec := &lineRecorder{}
		logger := New(&buf, true, rec)

		logger.Debug("circuit detail")

		if len(rec.lines) != 1 {
			t.Fatalf("expected 1 broadcast line, got %d", len(rec.lines))
		}
	})

	t.Run("with attrs carried into broadcast line", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		rec := &lineRecorder{}
		logger := New(&buf, false, rec).With("component", "pool")

		logger.Warn("rotation failed")

		if len(rec.lines) != 1 {
			t.Fatalf("expected 1 broadcast line, got %d", len(rec.lines))
		}
		if !strings.Contains(rec.lines[0], "component=pool") {
			t.Errorf("broadcast line %q missing With attribute", rec.lines[0])
		}
	})

	t.Run("nil bus is a pass-through", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := New(&buf, false, nil)

		logger.Info("still logs")

		if !strings.Contains(buf.String(), "still logs") {
			t.Errorf("expected output with nil bus, got %q", buf.String())
		}
	})
}

// TestBroadcastHandlerWithGroup tests group prefixing on broadcast lines.
func TestBroadcastHandlerWithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := &lineRecorder{}
	text := slog.NewTextHandler(&buf, nil)
	logger := slog.New(NewBroadcastHandler(text, rec)).WithGroup("proxy")

	logger.Info("accepted", "remote", "127.0.0.1:54321")

	if len(rec.lines) != 1 {
		t.Fatalf("expected 1 broadcast line, got %d", len(rec.lines))
	}
	if !strings.Contains(rec.lines[0], "proxy.remote=127.0.0.1:54321") {
		t.Errorf("broadcast line %q missing grouped key", rec.lines[0])
	}
}
