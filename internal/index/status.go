package index

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/codeindex/internal/config"
	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
	"github.com/Aman-CERP/codeindex/internal/store"
	"github.com/Aman-CERP/codeindex/internal/ui"
)

// Status collects collection counts and the last run report for root.
// A project with no elements collection is reported as not indexed.
func Status(ctx context.Context, st store.VectorStore, cfg *config.Config, root string) (*ui.StatusInfo, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, cierrors.Wrapf(cierrors.ErrCodeInvalidPath, err, "resolve %s", root)
	}
	indexDir := cfg.IndexPath(absRoot)

	info := &ui.StatusInfo{
		Root:     absRoot,
		IndexDir: indexDir,
		Backend:  cfg.Store.Backend,
		Metric:   string(st.Metric()),
	}

	info.Elements, err = st.Count(ctx, store.CollectionElements)
	switch {
	case errors.Is(err, store.ErrCollectionNotFound):
		return info, nil
	case err != nil:
		return nil, cierrors.Wrapf(cierrors.ErrCodeSearchFailed, err, "count %s", store.CollectionElements)
	}
	info.Indexed = true

	info.Summaries, err = st.Count(ctx, store.CollectionSummaries)
	if err != nil && !errors.Is(err, store.ErrCollectionNotFound) {
		return nil, cierrors.Wrapf(cierrors.ErrCodeSearchFailed, err, "count %s", store.CollectionSummaries)
	}
	info.StoreSize = dirSize(indexDir)

	report, err := ReadReport(indexDir)
	if err == nil {
		info.LastRun = &ui.LastRun{
			RunID:         report.RunID,
			StartedAt:     report.StartedAt,
			DurationMS:    report.DurationMS,
			IndexedFiles:  len(report.IndexedFiles),
			TotalElements: report.TotalElements,
			StaleElements: report.StaleElements,
			Errors:        report.Errors,
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, cierrors.Wrap(cierrors.ErrCodeCorruptIndex, err)
	}
	return info, nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
