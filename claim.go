package seedkeep

import (
	"fmt"
	"sort"
	"strings"
)

// Hash lengths, in hex characters. Claim IDs are RIPEMD-160 sized, blob
// hashes are SHA-384 sized.
const (
	ClaimIDLen  = 40
	BlobHashLen = 96
)

// ValidityState records whether a claim can still be resolved from the
// network. Invalid means the author removed it; the transition to invalid is
// one-way.
type ValidityState int

const (
	ValidityUnknown ValidityState = iota
	ValidityValid
	ValidityInvalid
)

func (v ValidityState) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Claim is a single content record known locally: its network identity, the
// manifest that describes its data blobs, and whatever has been reconstructed
// on disk so far.
type Claim struct {
	ID   string // 40-char hex, globally unique
	Name string // human name, not unique

	// ChannelName is the base channel name from the local download record
	// (no disambiguating suffix). Empty for anonymous claims.
	ChannelName string

	// Channel is the resolved channel identity, set by the channel
	// resolver. Nil until resolution has been attempted.
	Channel *Channel

	// ReleaseTime is the preferred ordering key; Timestamp is the fallback
	// for older claims that never carried a release time.
	ReleaseTime int64
	Timestamp   int64

	// ManifestHash identifies the manifest blob ("sd blob") that enumerates
	// the claim's data blobs.
	ManifestHash string

	// expectedBlobs is populated once, after the manifest blob has been
	// fetched and parsed, and is immutable afterwards.
	expectedBlobs []string

	// MediaPath points at the reconstructed media file, empty if
	// reconstruction has not succeeded (or the file was evicted).
	MediaPath string

	validity ValidityState
}

// EffectiveTime returns the ordering key for the claim: the release time
// when present, otherwise the download timestamp.
func (c *Claim) EffectiveTime() int64 {
	if c.ReleaseTime != 0 {
		return c.ReleaseTime
	}
	return c.Timestamp
}

// Validity returns the claim's current validity state.
func (c *Claim) Validity() ValidityState {
	return c.validity
}

// MarkValid records a successful network resolution. It has no effect on a
// claim already marked invalid; invalidity is final.
func (c *Claim) MarkValid() {
	if c.validity != ValidityInvalid {
		c.validity = ValidityValid
	}
}

// MarkInvalid records that the claim can no longer be resolved from the
// network. The transition is one-way.
func (c *Claim) MarkInvalid() {
	c.validity = ValidityInvalid
}

// ExpectedBlobs returns the ordered data-blob hashes from the claim's
// manifest, or nil if the manifest has not been parsed yet.
func (c *Claim) ExpectedBlobs() []string {
	return c.expectedBlobs
}

// SetExpectedBlobs records the manifest's blob list. The first write wins:
// manifest content does not change after first fetch, so later calls are
// ignored.
func (c *Claim) SetExpectedBlobs(hashes []string) {
	if c.expectedBlobs == nil {
		c.expectedBlobs = hashes
	}
}

// SortByAge orders claims oldest first by effective time, with claim ID as
// the tie-break so that eviction and listing order is deterministic.
func SortByAge(claims []*Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		ti, tj := claims[i].EffectiveTime(), claims[j].EffectiveTime()
		if ti != tj {
			return ti < tj
		}
		return claims[i].ID < claims[j].ID
	})
}

// ResolutionState records whether a channel's full identity is known.
type ResolutionState int

const (
	ChannelUnresolved ResolutionState = iota
	ChannelResolved
)

// UnknownChannel is the placeholder for claims whose channel could not be
// determined at all (anonymous claims, or offline records with no channel).
// It must never be counted as a distinct channel when aggregating.
const UnknownChannel = "@_Unknown_"

// Channel is a publisher identity. Base names may collide; only FullName
// (base name plus disambiguating suffix) is unambiguous.
type Channel struct {
	BaseName string // "@SomeChannel"
	FullName string // "@SomeChannel#3f", only set when resolved
	State    ResolutionState
}

// Name returns the most precise name known for the channel.
func (ch *Channel) Name() string {
	if ch.State == ChannelResolved && ch.FullName != "" {
		return ch.FullName
	}
	return ch.BaseName
}

// IsPlaceholder reports whether the channel is the unknown-channel marker.
func (ch *Channel) IsPlaceholder() bool {
	return ch.BaseName == UnknownChannel
}

// RefKind tags the way a claim reference was written.
type RefKind int

const (
	ByURI RefKind = iota
	ByID
	ByName
)

// ClaimRef is a normalized claim reference. Callers may identify a claim by
// canonical URI, by claim ID, or by bare name; every component accepts only
// the normalized form.
type ClaimRef struct {
	Kind  RefKind
	Value string
}

func (r ClaimRef) String() string {
	return r.Value
}

// ParseRef normalizes a raw identifier into a tagged ClaimRef. A 40-char hex
// string is a claim ID, anything with a URI scheme or channel separator is a
// URI, and the rest is a bare (ambiguous) claim name.
func ParseRef(raw string) (ClaimRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ClaimRef{}, fmt.Errorf("empty claim reference")
	}
	if IsClaimID(raw) {
		return ClaimRef{Kind: ByID, Value: raw}, nil
	}
	if strings.HasPrefix(raw, "lbry://") || strings.ContainsAny(raw, "#/@") {
		return ClaimRef{Kind: ByURI, Value: raw}, nil
	}
	return ClaimRef{Kind: ByName, Value: raw}, nil
}

// IsClaimID reports whether s is a plausible claim ID (40 hex chars).
func IsClaimID(s string) bool {
	return len(s) == ClaimIDLen && isHex(s)
}

// IsBlobHash reports whether s is a plausible blob hash (96 hex chars).
// File names in the flat blob store that fail this test are ignored.
func IsBlobHash(s string) bool {
	return len(s) == BlobHashLen && isHex(s)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// DeleteWhat selects what a deletion removes for a claim.
type DeleteWhat string

const (
	// DeleteMedia removes only the reconstructed media file. The blobs
	// remain, so the content stays seedable and can be reconstructed again.
	DeleteMedia DeleteWhat = "media"
	// DeleteBlobs removes the data blobs. A media file, if present, is left
	// behind (stale but playable).
	DeleteBlobs DeleteWhat = "blobs"
	// DeleteBoth removes both the media file and the blobs.
	DeleteBoth DeleteWhat = "both"
)

// ParseDeleteWhat validates a what selector.
func ParseDeleteWhat(s string) (DeleteWhat, error) {
	switch DeleteWhat(s) {
	case DeleteMedia, DeleteBlobs, DeleteBoth:
		return DeleteWhat(s), nil
	}
	return "", fmt.Errorf("what must be media, blobs, or both, got %q", s)
}
