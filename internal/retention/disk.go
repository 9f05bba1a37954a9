package retention

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/seedkeep/seedkeep"
)

// UsageSnapshot is a point-in-time measurement of disk usage against a
// budget. It is ephemeral: recomputed on demand, never persisted.
type UsageSnapshot struct {
	RootPath         string
	BudgetBytes      int64
	ThresholdPercent float64
	MeasuredBytes    int64
}

// TriggerBytes returns the usage level at which eviction starts.
func (u UsageSnapshot) TriggerBytes() int64 {
	return int64(float64(u.BudgetBytes) * u.ThresholdPercent / 100)
}

// AboveTrigger reports whether usage has crossed the eviction trigger.
func (u UsageSnapshot) AboveTrigger() bool {
	return u.MeasuredBytes >= u.TriggerBytes()
}

// MeasureUsage walks root (the partition holding both the media directory
// and the blob store) and sums file sizes. Files disappearing mid-walk are
// skipped; the trees are shared with the daemon and always in motion.
func MeasureUsage(root string, budget int64, threshold float64) (UsageSnapshot, error) {
	if _, err := os.Stat(root); err != nil {
		return UsageSnapshot{}, fmt.Errorf("%w: %s: %v", seedkeep.ErrStorageUnavailable, root, err)
	}

	var total int64
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})

	return UsageSnapshot{
		RootPath:         root,
		BudgetBytes:      budget,
		ThresholdPercent: threshold,
		MeasuredBytes:    total,
	}, nil
}
