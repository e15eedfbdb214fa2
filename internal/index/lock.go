package index

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
)

// LockFileName guards the index directory against concurrent writers.
const LockFileName = ".index.lock"

// runLock is an exclusive, non-blocking lock on the index directory.
type runLock struct {
	fl *flock.Flock
}

// acquireLock fails with ERR_507_INDEX_LOCKED when another run holds the lock.
func acquireLock(indexDir string) (*runLock, error) {
	path := filepath.Join(indexDir, LockFileName)
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, cierrors.Wrapf(cierrors.ErrCodeIndexFailed, err, "failed to lock %s", path)
	}
	if !ok {
		return nil, cierrors.New(cierrors.ErrCodeIndexLocked,
			fmt.Sprintf("another indexing run holds %s", path), nil).
			WithSuggestion("Wait for the running index or watch command to finish")
	}
	return &runLock{fl: fl}, nil
}

func (l *runLock) release() {
	_ = l.fl.Unlock()
}
