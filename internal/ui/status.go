package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes the index of one project.
type StatusInfo struct {
	Root      string `json:"root"`
	IndexDir  string `json:"index_dir"`
	Indexed   bool   `json:"indexed"`
	Backend   string `json:"backend"`
	Metric    string `json:"metric"`
	Embedder  string `json:"embedder"`
	Elements  int    `json:"elements"`
	Summaries int    `json:"summaries"`
	StoreSize int64  `json:"store_size"`

	LastRun *LastRun `json:"last_run,omitempty"`
}

// LastRun is the part of the previous run report shown by status.
type LastRun struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
	IndexedFiles  int       `json:"indexed_files"`
	TotalElements int       `json:"total_elements"`
	StaleElements int       `json:"stale_elements"`
	Errors        []string  `json:"errors,omitempty"`
}

// StatusRenderer prints StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// Render writes the human-readable form.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.Root))

	if !info.Indexed {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.styles.Warning.Render("not indexed, run `codeindex index` first"))
		return nil
	}

	_, _ = fmt.Fprintf(r.out, "  Elements:   %d\n", info.Elements)
	_, _ = fmt.Fprintf(r.out, "  Files:      %d\n", info.Summaries)
	_, _ = fmt.Fprintf(r.out, "  Store:      %s (%s, %s)\n", info.Backend, info.Metric, FormatBytes(info.StoreSize))
	_, _ = fmt.Fprintf(r.out, "  Embedder:   %s\n", info.Embedder)
	_, _ = fmt.Fprintf(r.out, "  Index dir:  %s\n", info.IndexDir)

	if run := info.LastRun; run != nil {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "  Last run:   %s (%s)\n", r.formatTime(run.StartedAt),
			(time.Duration(run.DurationMS) * time.Millisecond).Round(100*time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "    Files:    %d\n", run.IndexedFiles)
		_, _ = fmt.Fprintf(r.out, "    Elements: %d\n", run.TotalElements)
		if run.StaleElements > 0 {
			_, _ = fmt.Fprintf(r.out, "    Stale:    %d\n", run.StaleElements)
		}
		if len(run.Errors) > 0 {
			_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Error.Render(fmt.Sprintf("Errors:   %d", len(run.Errors))))
			for _, line := range ErrorLines(run.Errors, MaxListedErrors) {
				_, _ = fmt.Fprintf(r.out, "      %s\n", line)
			}
		}
	}
	return nil
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day") + " ago"
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
