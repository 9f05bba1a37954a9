package seedkeep

import "errors"

var (
	// ErrStorageUnavailable means a configured root path does not exist or
	// is not readable. It is fatal: operations fail before any work begins.
	ErrStorageUnavailable = errors.New("seedkeep: storage unavailable")

	// ErrNotFound means the claim does not exist, locally or on the network.
	ErrNotFound = errors.New("seedkeep: not found")

	// ErrResolutionFailed means a network resolution call failed or timed
	// out. It is per-claim and non-fatal: batch operations record it on the
	// affected item and continue.
	ErrResolutionFailed = errors.New("seedkeep: resolution failed")

	// ErrManifestMissing means the claim's manifest blob is absent from the
	// local store, so its expected blob list cannot be determined.
	ErrManifestMissing = errors.New("seedkeep: manifest blob missing")
)
