// Package daemontest provides a configurable fake daemon client for tests.
package daemontest

import (
	"context"
	"fmt"
	"sync"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/daemon"
)

// Fake implements daemon.Client. Unset behaviors fail with ErrNotFound or
// ErrResolutionFailed as appropriate. Every call is counted per method.
type Fake struct {
	ResolveFunc       func(url string) (*daemon.ResolvedClaim, error)
	SearchFunc        func(ref seedkeep.ClaimRef) (*daemon.ResolvedClaim, error)
	FileListFunc      func(channel string) ([]daemon.FileRecord, error)
	FetchBlobFunc     func(hash string) error
	FetchManifestFunc func(hash string) ([]string, error)
	ReconstructFunc   func(claimID string) (string, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ daemon.Client = (*Fake)(nil)

// Calls returns how many times the named method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
}

func (f *Fake) Resolve(_ context.Context, url string) (*daemon.ResolvedClaim, error) {
	f.record("Resolve")
	if f.ResolveFunc == nil {
		return nil, fmt.Errorf("%w: %s", seedkeep.ErrNotFound, url)
	}
	return f.ResolveFunc(url)
}

func (f *Fake) Search(_ context.Context, ref seedkeep.ClaimRef) (*daemon.ResolvedClaim, error) {
	f.record("Search")
	if f.SearchFunc == nil {
		return nil, fmt.Errorf("%w: %s", seedkeep.ErrNotFound, ref.Value)
	}
	return f.SearchFunc(ref)
}

func (f *Fake) FileList(_ context.Context, channel string) ([]daemon.FileRecord, error) {
	f.record("FileList")
	if f.FileListFunc == nil {
		return nil, nil
	}
	return f.FileListFunc(channel)
}

func (f *Fake) FetchBlob(_ context.Context, hash string) error {
	f.record("FetchBlob")
	if f.FetchBlobFunc == nil {
		return fmt.Errorf("%w: blob %s", seedkeep.ErrResolutionFailed, hash)
	}
	return f.FetchBlobFunc(hash)
}

func (f *Fake) FetchManifest(_ context.Context, hash string) ([]string, error) {
	f.record("FetchManifest")
	if f.FetchManifestFunc == nil {
		return nil, fmt.Errorf("%w: manifest %s", seedkeep.ErrResolutionFailed, hash)
	}
	return f.FetchManifestFunc(hash)
}

func (f *Fake) Reconstruct(_ context.Context, claimID string) (string, error) {
	f.record("Reconstruct")
	if f.ReconstructFunc == nil {
		return "", fmt.Errorf("%w: %s", seedkeep.ErrResolutionFailed, claimID)
	}
	return f.ReconstructFunc(claimID)
}
