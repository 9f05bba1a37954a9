// Package daemon is the JSON-RPC boundary to the local content-network
// daemon. The daemon owns the actual network protocol; this package only
// issues request/response calls against it and maps the results into the
// domain model.
package daemon

import (
	"context"

	"github.com/seedkeep/seedkeep"
)

// Client is the network-client boundary consumed by the core components.
// Every call may fail or time out; failures are per-call and carry no state.
type Client interface {
	// Resolve resolves a canonical URI (claim or channel) to its metadata.
	// Returns seedkeep.ErrNotFound when the network does not know the URI.
	Resolve(ctx context.Context, url string) (*ResolvedClaim, error)

	// Search resolves a normalized claim reference to its metadata, using
	// the best match for bare names.
	Search(ctx context.Context, ref seedkeep.ClaimRef) (*ResolvedClaim, error)

	// FileList returns the local download records known to the daemon,
	// optionally filtered by base channel name ("" means all).
	FileList(ctx context.Context, channel string) ([]FileRecord, error)

	// FetchBlob asks the daemon to download a single blob into the flat
	// store. The blob appears as a file named by its hash on success.
	FetchBlob(ctx context.Context, hash string) error

	// FetchManifest fetches the manifest blob if needed and returns the
	// data-blob hashes it enumerates.
	FetchManifest(ctx context.Context, hash string) ([]string, error)

	// Reconstruct asks the daemon to reassemble the media file for a claim
	// from its locally present blobs. Returns the media path.
	Reconstruct(ctx context.Context, claimID string) (string, error)
}

// ResolvedClaim is claim metadata as returned by online resolution.
type ResolvedClaim struct {
	ClaimID      string
	Name         string
	CanonicalURL string
	ReleaseTime  int64
	Timestamp    int64
	ManifestHash string

	// ChannelName is the base name of the signing channel, ChannelURL its
	// canonical (disambiguated) form. Both empty for anonymous claims.
	ChannelName string
	ChannelURL  string
}

// FileRecord is a local download record: what the daemon remembers about a
// claim it has (partially) downloaded, with no network round trip.
type FileRecord struct {
	ClaimID        string
	ClaimName      string
	ChannelName    string // base name only; local records keep no suffix
	ReleaseTime    int64
	Timestamp      int64
	ManifestHash   string
	DownloadPath   string
	BlobsCompleted int
	BlobsInStream  int
}

// Claim maps a local download record into the domain model. Claims sourced
// this way stay in validity state unknown until explicitly checked online.
func (r FileRecord) Claim() *seedkeep.Claim {
	return &seedkeep.Claim{
		ID:           r.ClaimID,
		Name:         r.ClaimName,
		ChannelName:  r.ChannelName,
		ReleaseTime:  r.ReleaseTime,
		Timestamp:    r.Timestamp,
		ManifestHash: r.ManifestHash,
		MediaPath:    r.DownloadPath,
	}
}
