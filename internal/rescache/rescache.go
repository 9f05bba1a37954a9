// Package rescache persists resolution results between runs.
//
// The claim index itself is rebuilt from local records every run, but two
// things are worth carrying over: resolved channel identities (one network
// round trip each, and some can never be resolved again) and claim validity
// (invalid is one-way). The cache is a single zstd-compressed JSON document
// under the cache directory; a missing or unreadable cache is an empty one.
package rescache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/seedkeep/seedkeep"
)

const cacheFile = "resolutions.json.zst"

// Contents is everything the cache holds.
type Contents struct {
	Channels []ChannelEntry `json:"channels"`
	Claims   []ClaimEntry   `json:"claims"`
}

// ChannelEntry is a persisted channel resolution.
type ChannelEntry struct {
	BaseName string `json:"base_name"`
	FullName string `json:"full_name,omitempty"`
	Resolved bool   `json:"resolved"`
}

// ClaimEntry is a persisted claim validity outcome.
type ClaimEntry struct {
	ClaimID  string `json:"claim_id"`
	Validity string `json:"validity"`
}

// Cache reads and writes the resolution cache in dir.
type Cache struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New returns a cache rooted at dir, creating it if needed.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &Cache{dir: dir, encoder: encoder, decoder: decoder}, nil
}

func (c *Cache) path() string {
	return filepath.Join(c.dir, cacheFile)
}

// Load reads the cached resolution results. A missing or corrupt cache file
// yields empty contents; the cache is an optimization, never a dependency.
func (c *Cache) Load() Contents {
	var contents Contents

	compressed, err := os.ReadFile(c.path())
	if err != nil {
		return contents
	}
	data, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		log.Warn().Str("path", c.path()).Err(err).Msg("resolution cache unreadable, ignoring")
		return contents
	}
	if err := json.Unmarshal(data, &contents); err != nil {
		log.Warn().Str("path", c.path()).Err(err).Msg("resolution cache corrupt, ignoring")
		return Contents{}
	}
	return contents
}

// Save writes the resolution results, replacing any previous cache.
func (c *Cache) Save(contents Contents) error {
	data, err := json.Marshal(contents)
	if err != nil {
		return fmt.Errorf("marshal resolution cache: %w", err)
	}

	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if err := os.WriteFile(c.path(), compressed, 0644); err != nil {
		return fmt.Errorf("write resolution cache: %w", err)
	}
	return nil
}

// ChannelList converts the cached channel entries into domain channels,
// suitable for seeding a resolver.
func (contents Contents) ChannelList() []*seedkeep.Channel {
	channels := make([]*seedkeep.Channel, 0, len(contents.Channels))
	for _, entry := range contents.Channels {
		ch := &seedkeep.Channel{BaseName: entry.BaseName, FullName: entry.FullName}
		if entry.Resolved {
			ch.State = seedkeep.ChannelResolved
		}
		channels = append(channels, ch)
	}
	return channels
}

// FromChannels builds cache entries from resolved channels.
func FromChannels(channels []*seedkeep.Channel) []ChannelEntry {
	entries := make([]ChannelEntry, 0, len(channels))
	for _, ch := range channels {
		if ch == nil || ch.IsPlaceholder() {
			continue
		}
		entries = append(entries, ChannelEntry{
			BaseName: ch.BaseName,
			FullName: ch.FullName,
			Resolved: ch.State == seedkeep.ChannelResolved,
		})
	}
	return entries
}

// ApplyValidity marks claims whose cached validity is invalid. Validity is
// one-way, so applying a stale cache can never un-invalidate a claim.
func (contents Contents) ApplyValidity(claims map[string]*seedkeep.Claim) {
	for _, entry := range contents.Claims {
		if entry.Validity != seedkeep.ValidityInvalid.String() {
			continue
		}
		if claim, ok := claims[entry.ClaimID]; ok {
			claim.MarkInvalid()
		}
	}
}

// FromClaims builds validity entries for claims with a known validity.
func FromClaims(claims []*seedkeep.Claim) []ClaimEntry {
	entries := make([]ClaimEntry, 0, len(claims))
	for _, claim := range claims {
		if claim.Validity() == seedkeep.ValidityUnknown {
			continue
		}
		entries = append(entries, ClaimEntry{
			ClaimID:  claim.ID,
			Validity: claim.Validity().String(),
		})
	}
	return entries
}
