// Package channel resolves channel display identities.
//
// Offline resolution costs nothing but yields only the base name, which may
// collide across channels. Online resolution disambiguates to the full name
// at one network round trip per channel, so batched use goes through a
// bounded worker pool.
//
// Some valid channels can never be resolved online due to an indexing defect
// on the network side. A failed resolution is therefore recorded as a
// permanent unresolved outcome, not retried, and silently omitted from any
// aggregated channel set. Downstream callers rely on the omission.
package channel

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/daemon"
)

// Mode selects how a channel is resolved.
type Mode int

const (
	// Offline uses only the local record: base name, no suffix.
	Offline Mode = iota
	// Online resolves the disambiguated full name from the network.
	Online
)

// DefaultWorkers is the default width of the resolution pool.
const DefaultWorkers = 32

// Resolver resolves channels and caches every outcome, including failures.
// A cached identity is never silently downgraded: once resolved, a channel
// stays resolved.
type Resolver struct {
	client  daemon.Client
	workers int

	mu    sync.Mutex
	cache map[string]cacheEntry // keyed by base name
}

type cacheEntry struct {
	ch     *seedkeep.Channel
	failed bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithWorkers sets the number of parallel online resolutions.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewResolver returns a resolver backed by the given network client.
func NewResolver(client daemon.Client, opts ...Option) *Resolver {
	r := &Resolver{
		client:  client,
		workers: DefaultWorkers,
		cache:   make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves one channel by base name.
//
// It returns nil when the channel cannot be resolved in the requested mode;
// that is a silent omission, not an error. An empty base name resolves to
// the unknown-channel placeholder, which exists for display only and is
// never counted as a distinct channel.
func (r *Resolver) Resolve(ctx context.Context, baseName string, mode Mode) *seedkeep.Channel {
	if baseName == "" || baseName == seedkeep.UnknownChannel {
		return &seedkeep.Channel{BaseName: seedkeep.UnknownChannel}
	}
	if !strings.HasPrefix(baseName, "@") {
		baseName = "@" + baseName
	}

	r.mu.Lock()
	entry, cached := r.cache[baseName]
	r.mu.Unlock()

	if cached {
		if entry.failed {
			return nil
		}
		if mode == Offline || entry.ch.State == seedkeep.ChannelResolved {
			return entry.ch
		}
	}

	if mode == Offline {
		ch := &seedkeep.Channel{BaseName: baseName, State: seedkeep.ChannelUnresolved}
		r.store(baseName, cacheEntry{ch: ch})
		return ch
	}

	resolved, err := r.client.Resolve(ctx, baseName)
	if err != nil {
		// Permanent outcome; see the package comment.
		log.Debug().Str("channel", baseName).Err(err).Msg("channel resolution failed")
		r.store(baseName, cacheEntry{failed: true})
		return nil
	}

	ch := &seedkeep.Channel{
		BaseName: baseName,
		FullName: fullName(resolved),
		State:    seedkeep.ChannelResolved,
	}
	r.store(baseName, cacheEntry{ch: ch})
	return ch
}

// store caches an outcome, upgrading only. A resolved identity is never
// replaced by an unresolved or failed one.
func (r *Resolver) store(baseName string, entry cacheEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.cache[baseName]; ok && !prev.failed &&
		prev.ch.State == seedkeep.ChannelResolved {
		return
	}
	r.cache[baseName] = entry
}

// Seed preloads the cache, typically from persisted resolution results.
func (r *Resolver) Seed(channels []*seedkeep.Channel) {
	for _, ch := range channels {
		if ch.BaseName == "" || ch.IsPlaceholder() {
			continue
		}
		r.store(ch.BaseName, cacheEntry{ch: ch})
	}
}

// Resolved returns the successfully resolved channels currently cached.
func (r *Resolver) Resolved() []*seedkeep.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := make([]*seedkeep.Channel, 0, len(r.cache))
	for _, entry := range r.cache {
		if !entry.failed {
			channels = append(channels, entry.ch)
		}
	}
	return channels
}

// Annotate resolves the channel of every claim and attaches the result to
// claim.Channel, using up to the configured number of parallel calls.
// Claims keep their input order; completion order is arbitrary. Claims whose
// channel fails to resolve are left with a nil Channel.
func (r *Resolver) Annotate(ctx context.Context, claims []*seedkeep.Claim, mode Mode) {
	p := pool.New().WithMaxGoroutines(r.workers)
	for _, claim := range claims {
		p.Go(func() {
			claim.Channel = r.Resolve(ctx, claim.ChannelName, mode)
		})
	}
	p.Wait()
}

// Distinct returns the sorted set of distinct channel names across claims.
// Claims whose channel failed to resolve, and the unknown-channel
// placeholder, are omitted.
func Distinct(claims []*seedkeep.Claim) []string {
	seen := make(map[string]struct{})
	for _, claim := range claims {
		ch := claim.Channel
		if ch == nil || ch.IsPlaceholder() {
			continue
		}
		seen[ch.Name()] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fullName derives the disambiguated channel name from a resolved claim,
// using ':' as the suffix separator for display.
func fullName(resolved *daemon.ResolvedClaim) string {
	url := strings.TrimPrefix(resolved.CanonicalURL, "lbry://")
	if url == "" {
		return resolved.Name
	}
	return strings.ReplaceAll(url, "#", ":")
}
