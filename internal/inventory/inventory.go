// Package inventory enumerates the flat blob store.
//
// The store has no directory structure: every file name is a candidate blob
// hash. Names that are not plausible fixed-length hex strings are ignored,
// not errors. The store is shared with the network daemon, which may add or
// remove blobs at any time, so a snapshot is only advisory: a blob gone by
// the time someone acts on the snapshot is treated as already absent.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/seedkeep/seedkeep"
)

// Snapshot is the result of one scan: which blob hashes were present, with
// sizes measured lazily on first use.
type Snapshot struct {
	root string

	mu    sync.Mutex
	sizes map[string]int64 // -1 until measured
}

// Scan enumerates root and returns a snapshot of the present blob hashes.
// It is read-only. Fails with seedkeep.ErrStorageUnavailable when root is
// not a readable directory.
func Scan(root string) (*Snapshot, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", seedkeep.ErrStorageUnavailable, root, err)
	}

	sizes := make(map[string]int64, len(entries))
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() || !seedkeep.IsBlobHash(entry.Name()) {
			skipped++
			continue
		}
		sizes[entry.Name()] = -1
	}

	log.Debug().Str("root", root).Int("blobs", len(sizes)).Int("skipped", skipped).
		Msg("blob store scanned")

	return &Snapshot{root: root, sizes: sizes}, nil
}

// Root returns the scanned blob store path.
func (s *Snapshot) Root() string {
	return s.root
}

// Len returns the number of present blobs.
func (s *Snapshot) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sizes)
}

// Has reports whether the blob was present at scan time.
func (s *Snapshot) Has(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sizes[hash]
	return ok
}

// Size returns the blob's size in bytes, measuring it on first call. A blob
// that disappeared since the scan reports size 0.
func (s *Snapshot) Size(hash string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	size, ok := s.sizes[hash]
	if !ok {
		return 0
	}
	if size >= 0 {
		return size
	}

	info, err := os.Stat(filepath.Join(s.root, hash))
	if err != nil {
		// Deleted between scan and measure; treat as absent.
		delete(s.sizes, hash)
		return 0
	}
	s.sizes[hash] = info.Size()
	return info.Size()
}

// Path returns where the blob lives (or would live) in the store.
func (s *Snapshot) Path(hash string) string {
	return filepath.Join(s.root, hash)
}

// TotalSize measures every present blob and returns the sum in bytes.
func (s *Snapshot) TotalSize() int64 {
	s.mu.Lock()
	hashes := make([]string, 0, len(s.sizes))
	for h := range s.sizes {
		hashes = append(hashes, h)
	}
	s.mu.Unlock()

	var total int64
	for _, h := range hashes {
		total += s.Size(h)
	}
	return total
}
