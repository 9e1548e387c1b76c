// Package report renders pool status and rotation history for the CLI.
//
// This package contains writers for different output formats:
//   - TableWriter: Human-readable text output for terminal display
//   - MarkdownWriter: Markdown tables for documentation and sharing
//   - JSONWriter: Structured JSON output for tool integration
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably based on the --format flag.
package report
