// Package retention implements the space-budget eviction policy.
//
// Eviction is recency-preserving, not LRU-by-access: when usage crosses the
// trigger, the oldest claims go first (release time ascending, claim ID as
// tie-break) until usage falls back to the budget or the candidate set runs
// out. Protected channels are excluded before the greedy walk, so protection
// always takes precedence over selection order. Running out of candidates
// before reaching the budget is a partial result, not an error.
package retention

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/integrity"
	"github.com/seedkeep/seedkeep/internal/inventory"
)

// DefaultThresholdPercent is the usage fraction of the budget that triggers
// eviction.
const DefaultThresholdPercent = 90

// Scope limits an eviction to one channel with a retention floor. The zero
// Scope means global.
type Scope struct {
	// Channel is a channel identity (full or base name). Empty means all
	// claims are in scope.
	Channel string
	// KeepCount is the number of most recent claims of Channel that are
	// kept unconditionally. It is a count floor, not a byte floor.
	KeepCount int
}

// Global reports whether the scope covers all claims.
func (s Scope) Global() bool {
	return s.Channel == ""
}

// Request describes one eviction call.
type Request struct {
	// BudgetBytes is the usage target. Required for global scope: there is
	// no unconditional global deletion without a stated target. For channel
	// scope, zero means no byte target (the keep count alone decides).
	BudgetBytes int64
	// ThresholdPercent is the trigger: eviction starts once usage exceeds
	// this fraction of the budget. Defaults to DefaultThresholdPercent.
	ThresholdPercent float64
	Scope            Scope
	// Protect lists channel identities whose claims are never touched,
	// whatever the budget.
	Protect []string
	What    seedkeep.DeleteWhat
}

// Deletion records one performed deletion.
type Deletion struct {
	Claim      *seedkeep.Claim
	What       seedkeep.DeleteWhat
	FreedBytes int64
}

// Report is the outcome of one eviction call.
type Report struct {
	Usage      UsageSnapshot
	Deletions  []Deletion
	FreedBytes int64
	// Partial means the candidate set was exhausted before usage reached
	// the budget. A completion status, not an error.
	Partial bool
	// Skipped counts in-scope claims excluded by protection or keep count.
	Skipped int
}

// Engine selects and performs deletions to bring usage under budget.
type Engine struct {
	usageRoot string
	inv       *inventory.Snapshot
	analyzer  *integrity.Analyzer
}

// NewEngine returns an engine measuring usage under usageRoot and deleting
// blobs from the scanned store.
func NewEngine(usageRoot string, inv *inventory.Snapshot, analyzer *integrity.Analyzer) *Engine {
	return &Engine{usageRoot: usageRoot, inv: inv, analyzer: analyzer}
}

// Evict applies the policy to the given claims and performs deletions.
// Claims must carry their channel annotation if protection or channel scope
// is used. Deletions are strictly sequential, oldest first.
func (e *Engine) Evict(claims []*seedkeep.Claim, req Request) (Report, error) {
	if err := e.validate(&req); err != nil {
		return Report{}, err
	}

	usage, err := MeasureUsage(e.usageRoot, req.BudgetBytes, req.ThresholdPercent)
	if err != nil {
		return Report{}, err
	}
	report := Report{Usage: usage}

	// Global eviction is driven purely by space pressure. Channel cleanup
	// enforces its count floor even when usage is fine.
	if req.Scope.Global() && !usage.AboveTrigger() {
		log.Info().
			Str("used", humanize.IBytes(uint64(usage.MeasuredBytes))).
			Str("trigger", humanize.IBytes(uint64(usage.TriggerBytes()))).
			Msg("usage within limits, nothing to clean up")
		return report, nil
	}

	candidates, skipped := e.candidates(claims, req)
	report.Skipped = skipped

	protectedBlobs := e.protectedBlobs(claims, req.Protect)

	remaining := usage.MeasuredBytes
	for _, claim := range candidates {
		if req.BudgetBytes > 0 && remaining <= req.BudgetBytes {
			return report, nil
		}

		freed := e.deleteClaim(claim, req.What, protectedBlobs)
		report.Deletions = append(report.Deletions, Deletion{
			Claim: claim, What: req.What, FreedBytes: freed,
		})
		report.FreedBytes += freed
		remaining -= freed

		log.Info().Str("claim_id", claim.ID).Str("name", claim.Name).
			Str("freed", humanize.IBytes(uint64(freed))).
			Str("remaining", humanize.IBytes(uint64(max(remaining, 0)))).
			Msg("claim evicted")
	}

	if req.BudgetBytes > 0 && remaining > req.BudgetBytes {
		report.Partial = true
		log.Warn().Str("over_budget", humanize.IBytes(uint64(remaining-req.BudgetBytes))).
			Msg("candidate set exhausted before reaching budget")
	}
	return report, nil
}

func (e *Engine) validate(req *Request) error {
	if req.ThresholdPercent == 0 {
		req.ThresholdPercent = DefaultThresholdPercent
	}
	if req.ThresholdPercent < 0 || req.ThresholdPercent > 100 {
		return fmt.Errorf("threshold must be between 0 and 100, got %v", req.ThresholdPercent)
	}
	if req.BudgetBytes < 0 {
		return fmt.Errorf("budget must not be negative, got %d", req.BudgetBytes)
	}
	if req.Scope.Global() && req.BudgetBytes == 0 {
		return fmt.Errorf("global eviction requires an explicit budget")
	}
	if req.Scope.KeepCount < 0 {
		return fmt.Errorf("keep count must not be negative, got %d", req.Scope.KeepCount)
	}
	if _, err := seedkeep.ParseDeleteWhat(string(req.What)); err != nil {
		return err
	}
	return nil
}

// candidates builds the ordered candidate set: claims in scope, minus
// protected channels, minus the keep-count newest of a scoped channel.
func (e *Engine) candidates(claims []*seedkeep.Claim, req Request) ([]*seedkeep.Claim, int) {
	protect := identitySet(req.Protect)

	var inScope []*seedkeep.Claim
	skipped := 0
	for _, claim := range claims {
		if !req.Scope.Global() && !claimInChannel(claim, req.Scope.Channel) {
			continue
		}
		if claimProtected(claim, protect) {
			skipped++
			continue
		}
		inScope = append(inScope, claim)
	}

	seedkeep.SortByAge(inScope)

	if !req.Scope.Global() && req.Scope.KeepCount > 0 {
		keep := min(req.Scope.KeepCount, len(inScope))
		skipped += keep
		inScope = inScope[:len(inScope)-keep]
	}
	return inScope, skipped
}

// protectedBlobs collects every blob hash referenced by a protected claim.
// The flat store is deduplicated across claims, so a candidate's blob may
// also belong to a protected claim; those are never removed.
func (e *Engine) protectedBlobs(claims []*seedkeep.Claim, protect []string) map[string]struct{} {
	set := identitySet(protect)
	if len(set) == 0 {
		return nil
	}

	blobs := make(map[string]struct{})
	for _, claim := range claims {
		if !claimProtected(claim, set) {
			continue
		}
		if claim.ManifestHash != "" {
			blobs[claim.ManifestHash] = struct{}{}
		}
		if claim.ExpectedBlobs() == nil && e.analyzer != nil {
			e.analyzer.Analyze(claim)
		}
		for _, hash := range claim.ExpectedBlobs() {
			blobs[hash] = struct{}{}
		}
	}
	return blobs
}

// deleteClaim removes the claim's media file and/or blobs and returns the
// bytes actually freed. Already-absent files count as freed elsewhere and
// contribute nothing.
func (e *Engine) deleteClaim(claim *seedkeep.Claim, what seedkeep.DeleteWhat, protectedBlobs map[string]struct{}) int64 {
	var freed int64

	if what == seedkeep.DeleteMedia || what == seedkeep.DeleteBoth {
		freed += e.deleteMedia(claim)
	}
	if what == seedkeep.DeleteBlobs || what == seedkeep.DeleteBoth {
		freed += e.deleteBlobs(claim, protectedBlobs)
	}
	return freed
}

func (e *Engine) deleteMedia(claim *seedkeep.Claim) int64 {
	if claim.MediaPath == "" {
		return 0
	}

	var freed int64
	if info, err := os.Stat(claim.MediaPath); err == nil {
		freed = info.Size()
	}
	if err := os.Remove(claim.MediaPath); err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Str("path", claim.MediaPath).Err(err).Msg("media delete failed")
		}
		freed = 0
	}
	claim.MediaPath = ""
	return freed
}

// deleteBlobs removes the claim's data blobs and manifest from the shared
// store. Deletion is claim-scoped best effort: the store tracks no reverse
// references, so only blobs known to belong to protected claims are spared.
func (e *Engine) deleteBlobs(claim *seedkeep.Claim, protectedBlobs map[string]struct{}) int64 {
	if claim.ExpectedBlobs() == nil && e.analyzer != nil {
		e.analyzer.Analyze(claim)
	}

	hashes := claim.ExpectedBlobs()
	if claim.ManifestHash != "" {
		hashes = append(hashes[:len(hashes):len(hashes)], claim.ManifestHash)
	}

	var freed int64
	for _, hash := range hashes {
		if _, ok := protectedBlobs[hash]; ok {
			continue
		}
		if !e.inv.Has(hash) {
			continue
		}
		size := e.inv.Size(hash)
		if err := os.Remove(e.inv.Path(hash)); err != nil {
			// Gone already; the daemon shares this store.
			continue
		}
		freed += size
	}
	return freed
}

// identitySet normalizes channel identities for matching. Each full-form
// name also contributes its base form: claims annotated offline carry base
// names only, and a full-form protection or scope must still reach them.
func identitySet(identities []string) map[string]struct{} {
	if len(identities) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		norm := normalizeChannel(id)
		set[norm] = struct{}{}
		set[baseName(norm)] = struct{}{}
	}
	return set
}

// claimProtected reports whether any known identity of the claim's channel
// is in the protection set.
func claimProtected(claim *seedkeep.Claim, protect map[string]struct{}) bool {
	if len(protect) == 0 {
		return false
	}
	for _, id := range channelIdentities(claim) {
		if _, ok := protect[id]; ok {
			return true
		}
	}
	return false
}

// claimInChannel matches the scope channel against every identity the claim
// is known by. A full-form scope falls back to its base form, so offline
// annotated claims (base names only) are still in scope.
func claimInChannel(claim *seedkeep.Claim, channel string) bool {
	want := normalizeChannel(channel)
	base := baseName(want)
	for _, id := range channelIdentities(claim) {
		if id == want || id == base {
			return true
		}
	}
	return false
}

// channelIdentities lists every normalized name the claim's channel is known
// by: the resolved full name, the base name, and the raw record name.
func channelIdentities(claim *seedkeep.Claim) []string {
	var ids []string
	if ch := claim.Channel; ch != nil && !ch.IsPlaceholder() {
		ids = append(ids, normalizeChannel(ch.Name()), normalizeChannel(ch.BaseName))
	}
	if claim.ChannelName != "" {
		ids = append(ids, normalizeChannel(claim.ChannelName))
	}
	return ids
}

// baseName strips the disambiguating suffix from a normalized channel name.
func baseName(name string) string {
	if i := strings.IndexByte(name, ':'); i > 0 {
		return name[:i]
	}
	return name
}

func normalizeChannel(name string) string {
	name = strings.TrimPrefix(name, "lbry://")
	if name != "" && !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	return strings.ReplaceAll(name, "#", ":")
}
