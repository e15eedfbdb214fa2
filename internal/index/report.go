package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReportFileName is written to the index directory after every full run.
const ReportFileName = "indexing_report.json"

// Report is the outcome of one indexing run.
type Report struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	DurationMS     int64     `json:"duration_ms"`
	IndexedFiles   []string  `json:"indexed_files"`
	TotalElements  int       `json:"total_elements"`
	Errors         []string  `json:"errors"`
	StaleElements  int       `json:"stale_elements"`
	PrunedElements int       `json:"pruned_elements"`
}

func newReport(runID string, started time.Time) *Report {
	return &Report{
		RunID:        runID,
		StartedAt:    started,
		IndexedFiles: []string{},
		Errors:       []string{},
	}
}

// addError records a per-file failure as "path: message".
func (r *Report) addError(path string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", path, err))
}

// Write stores the report as indented JSON in dir.
func (r *Report) Write(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ReportFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads the last report from dir. A missing file returns os.ErrNotExist.
func ReadReport(dir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportFileName))
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ReportFileName, err)
	}
	return &r, nil
}
