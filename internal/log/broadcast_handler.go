package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Broadcaster receives formatted log lines. *event.Bus satisfies it.
type Broadcaster interface {
	LogLine(line string)
}

// BroadcastHandler wraps an slog.Handler and mirrors every record onto a
// Broadcaster as a single formatted line.
type BroadcastHandler struct {
	// handler is the underlying slog handler that receives all records.
	handler slog.Handler

	// bus receives the formatted copy of each record. May be nil, in
	// which case the handler degrades to a plain pass-through.
	bus Broadcaster

	// attrs accumulates WithAttrs attributes so the broadcast line
	// matches what the underlying handler prints.
	attrs []slog.Attr

	// group is the current WithGroup prefix for attribute keys.
	group string
}

// NewBroadcastHandler creates a BroadcastHandler wrapping handler.
// If handler is nil, slog.Default's handler is used.
func NewBroadcastHandler(handler slog.Handler, bus Broadcaster) *BroadcastHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &BroadcastHandler{handler: handler, bus: bus}
}

// Enabled reports whether the underlying handler handles the given level.
func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle passes the record to the underlying handler and publishes the
// formatted line to the bus.
func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.bus != nil {
		h.bus.LogLine(h.formatLine(r))
	}
	return h.handler.Handle(ctx, r)
}

// WithAttrs returns a new handler that includes the given attributes.
func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &BroadcastHandler{
		handler: h.handler.WithAttrs(attrs),
		bus:     h.bus,
		attrs:   combined,
		group:   h.group,
	}
}

// WithGroup returns a new handler with the given group name.
func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	prefix := name
	if h.group != "" {
		prefix = h.group + "." + name
	}
	return &BroadcastHandler{
		handler: h.handler.WithGroup(name),
		bus:     h.bus,
		attrs:   h.attrs,
		group:   prefix,
	}
}

// formatLine renders the record as "LEVEL message key=value ...".
// The timestamp is omitted; the bus stamps events on publish.
func (h *BroadcastHandler) formatLine(r slog.Record) string {
	var sb strings.Builder
	sb.WriteString(r.Level.String())
	sb.WriteString(" ")
	sb.WriteString(r.Message)

	writeAttr := func(a slog.Attr) {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&sb, " %s=%v", key, a.Value)
	}

	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})

	return sb.String()
}

// New creates the application logger. Records go to w as text and are
// mirrored onto bus. When verbose is false, only info and above are
// logged.
func New(w io.Writer, verbose bool, bus Broadcaster) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	text := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewBroadcastHandler(text, bus))
}
