// Package log provides the slog handler used across the proxy rotator.
//
// BroadcastHandler wraps an underlying slog.Handler and republishes every
// record as a formatted line on the event bus, so the front-end log
// console receives the same output the operator sees on stderr without
// scraping the terminal.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because it integrates seamlessly with standard slog APIs and works with
// any underlying handler (text, JSON, etc.).
package log
