package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for pipes and CI logs.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
	last   Stage
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:    cfg.Output,
		styles: GetStyles(true),
		last:   -1,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress prints "[STAGE] current/total - file", or the message alone
// when the event carries no count.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	case event.Stage != r.last:
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Stage)
	}
	r.last = event.Stage
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete prints the run summary and the first errors.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	writeSummary(r.out, r.styles, stats)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

// writeSummary is shared by the plain renderer and the TUI's final frame.
func writeSummary(out io.Writer, styles Styles, stats CompletionStats) {
	_, _ = fmt.Fprintf(out, "%s %d files, %d elements indexed in %s\n",
		styles.Success.Render("Complete:"), stats.Files, stats.Elements, stats.Duration.Round(100*time.Millisecond))

	if stats.Stale > 0 {
		if stats.Pruned > 0 {
			_, _ = fmt.Fprintf(out, "Stale elements: %d (%d pruned)\n", stats.Stale, stats.Pruned)
		} else {
			_, _ = fmt.Fprintf(out, "Stale elements: %d (kept, run with --prune to remove)\n", stats.Stale)
		}
	}
	if stats.Backend != "" || stats.Embedder != "" {
		_, _ = fmt.Fprintf(out, "Store: %s, embedder: %s\n", stats.Backend, stats.Embedder)
	}

	if len(stats.Errors) > 0 {
		_, _ = fmt.Fprintln(out, styles.Error.Render(fmt.Sprintf("Errors: %d", len(stats.Errors))))
		for _, line := range ErrorLines(stats.Errors, MaxListedErrors) {
			_, _ = fmt.Fprintf(out, "  %s\n", line)
		}
	}
}
