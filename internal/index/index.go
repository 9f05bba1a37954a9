// Package index is the in-memory catalog of known claims.
//
// The index is rebuilt each run from the daemon's local download records
// plus any cached resolution results; there is no separate on-disk index.
// Claims sourced from local records stay in validity state unknown until
// explicitly checked online.
package index

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/daemon"
)

// Index holds the known claims, keyed by claim ID.
type Index struct {
	client daemon.Client

	mu     sync.RWMutex
	claims map[string]*seedkeep.Claim
}

// New returns an empty index backed by the given network client.
func New(client daemon.Client) *Index {
	return &Index{
		client: client,
		claims: make(map[string]*seedkeep.Claim),
	}
}

// Len returns the number of known claims.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.claims)
}

// Upsert adds or replaces a claim. A replacement never downgrades an
// invalid claim back to valid or unknown.
func (x *Index) Upsert(claim *seedkeep.Claim) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if prev, ok := x.claims[claim.ID]; ok && prev.Validity() == seedkeep.ValidityInvalid {
		claim.MarkInvalid()
	}
	x.claims[claim.ID] = claim
}

// Get looks a claim up by ID first, then by name. Name lookups are
// ambiguous; the oldest matching claim wins, consistent with All ordering.
func (x *Index) Get(idOrName string) (*seedkeep.Claim, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if claim, ok := x.claims[idOrName]; ok {
		return claim, nil
	}

	var match *seedkeep.Claim
	for _, claim := range x.claims {
		if claim.Name != idOrName {
			continue
		}
		if match == nil || claimLess(claim, match) {
			match = claim
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", seedkeep.ErrNotFound, idOrName)
	}
	return match, nil
}

// Remove deletes a claim from the index entirely.
func (x *Index) Remove(claimID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.claims, claimID)
}

// All returns a restartable sequence of the known claims ordered by
// effective time ascending (claim ID as tie-break). The order is computed
// per iteration, so upserts between iterations are picked up.
func (x *Index) All() iter.Seq[*seedkeep.Claim] {
	return func(yield func(*seedkeep.Claim) bool) {
		for _, claim := range x.Sorted() {
			if !yield(claim) {
				return
			}
		}
	}
}

// Sorted returns the known claims oldest first.
func (x *Index) Sorted() []*seedkeep.Claim {
	x.mu.RLock()
	claims := make([]*seedkeep.Claim, 0, len(x.claims))
	for _, claim := range x.claims {
		claims = append(claims, claim)
	}
	x.mu.RUnlock()

	seedkeep.SortByAge(claims)
	return claims
}

// LoadLocal rebuilds the index from the daemon's download records. Existing
// entries are updated in place so validity survives a reload.
func (x *Index) LoadLocal(ctx context.Context) error {
	records, err := x.client.FileList(ctx, "")
	if err != nil {
		return fmt.Errorf("load local records: %w", err)
	}

	for _, record := range records {
		x.Upsert(record.Claim())
	}

	log.Info().Int("claims", len(records)).Msg("claim index loaded")
	return nil
}

// ResolveOnline resolves a claim reference against the network and upserts
// the result. On ErrNotFound an already-known claim is marked invalid (the
// author removed it); on other failures its state is left untouched.
func (x *Index) ResolveOnline(ctx context.Context, ref seedkeep.ClaimRef) (*seedkeep.Claim, error) {
	resolved, err := x.client.Search(ctx, ref)
	if err != nil {
		if errors.Is(err, seedkeep.ErrNotFound) {
			x.markInvalidByRef(ref)
		}
		return nil, err
	}

	claim := x.mergeResolved(resolved)
	return claim, nil
}

// CheckAll resolves every known claim online, up to workers at a time,
// marking each valid or invalid. Failures are per-claim; the batch always
// completes.
func (x *Index) CheckAll(ctx context.Context, workers int) (valid, invalid, failed int) {
	if workers <= 0 {
		workers = 1
	}

	claims := x.Sorted()
	errs := make([]error, len(claims))
	p := pool.New().WithMaxGoroutines(workers)
	for i, claim := range claims {
		p.Go(func() {
			ref := seedkeep.ClaimRef{Kind: seedkeep.ByID, Value: claim.ID}
			_, errs[i] = x.ResolveOnline(ctx, ref)
		})
	}
	p.Wait()

	for i, err := range errs {
		switch {
		case err == nil:
			valid++
		case errors.Is(err, seedkeep.ErrNotFound):
			invalid++
		default:
			failed++
			log.Warn().Str("claim_id", claims[i].ID).Err(err).Msg("online check failed")
		}
	}
	return valid, invalid, failed
}

func (x *Index) mergeResolved(resolved *daemon.ResolvedClaim) *seedkeep.Claim {
	x.mu.Lock()
	defer x.mu.Unlock()

	claim, ok := x.claims[resolved.ClaimID]
	if !ok {
		claim = &seedkeep.Claim{ID: resolved.ClaimID}
		x.claims[resolved.ClaimID] = claim
	}

	claim.Name = resolved.Name
	claim.ChannelName = resolved.ChannelName
	if resolved.ReleaseTime != 0 {
		claim.ReleaseTime = resolved.ReleaseTime
	}
	if resolved.Timestamp != 0 {
		claim.Timestamp = resolved.Timestamp
	}
	if resolved.ManifestHash != "" {
		claim.ManifestHash = resolved.ManifestHash
	}
	claim.MarkValid()
	return claim
}

func (x *Index) markInvalidByRef(ref seedkeep.ClaimRef) {
	x.mu.Lock()
	defer x.mu.Unlock()

	switch ref.Kind {
	case seedkeep.ByID:
		if claim, ok := x.claims[ref.Value]; ok {
			claim.MarkInvalid()
		}
	case seedkeep.ByName:
		for _, claim := range x.claims {
			if claim.Name == ref.Value {
				claim.MarkInvalid()
			}
		}
	case seedkeep.ByURI:
		name, idPrefix := uriClaim(ref.Value)
		for _, claim := range x.claims {
			if idPrefix != "" {
				if strings.HasPrefix(claim.ID, idPrefix) {
					claim.MarkInvalid()
				}
				continue
			}
			if name != "" && claim.Name == name {
				claim.MarkInvalid()
			}
		}
	}
}

// uriClaim extracts the claim portion of a URI: the last path segment split
// into name and claim-ID prefix. Canonical URIs disambiguate with an ID
// prefix after '#' (or ':'); the prefix identifies the claim exactly, the
// bare name only ambiguously. A channel-only URI yields an empty name.
func uriClaim(uri string) (name, idPrefix string) {
	s := strings.TrimPrefix(uri, "lbry://")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexAny(s, "#:"); i >= 0 {
		s, idPrefix = s[:i], s[i+1:]
	}
	if strings.HasPrefix(s, "@") {
		return "", ""
	}
	return s, idPrefix
}

func claimLess(a, b *seedkeep.Claim) bool {
	if a.EffectiveTime() != b.EffectiveTime() {
		return a.EffectiveTime() < b.EffectiveTime()
	}
	return a.ID < b.ID
}
