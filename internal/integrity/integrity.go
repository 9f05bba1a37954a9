// Package integrity classifies claim completeness.
//
// The analyzer is the sole source of truth for whether a claim has
// everything it needs to be seeded or to reconstruct its media file. A
// media file's mere existence proves nothing: a partial file can exist
// mid-download.
package integrity

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/inventory"
)

// State classifies a claim's local blob completeness.
type State int

const (
	// ManifestMissing means the manifest blob is absent, so the expected
	// blob list cannot be determined at all.
	ManifestMissing State = iota
	// Incomplete means at least one expected data blob is absent.
	Incomplete
	// Complete means every expected data blob is present, and there is at
	// least one.
	Complete
)

func (s State) String() string {
	switch s {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	default:
		return "manifest_missing"
	}
}

// Result is the classification of one claim.
type Result struct {
	Claim    *seedkeep.Claim
	State    State
	Present  int
	Expected int
	Missing  []string // expected blob hashes absent from the store
	Err      error    // manifest read/parse failure, nil otherwise
}

// Analyzer cross-references claims against a blob inventory snapshot.
type Analyzer struct {
	inv *inventory.Snapshot
}

// NewAnalyzer returns an analyzer over the given snapshot.
func NewAnalyzer(inv *inventory.Snapshot) *Analyzer {
	return &Analyzer{inv: inv}
}

// Analyze classifies one claim. If the claim's expected blob list is not
// cached yet, the manifest blob is read from the store and parsed to
// populate it; the list is immutable afterwards.
func (a *Analyzer) Analyze(claim *seedkeep.Claim) Result {
	res := Result{Claim: claim}

	if claim.ManifestHash == "" || !a.inv.Has(claim.ManifestHash) {
		res.State = ManifestMissing
		res.Err = fmt.Errorf("%w: claim %s", seedkeep.ErrManifestMissing, claim.ID)
		return res
	}

	expected := claim.ExpectedBlobs()
	if expected == nil {
		data, err := os.ReadFile(a.inv.Path(claim.ManifestHash))
		if err != nil {
			// Manifest vanished between scan and read.
			res.State = ManifestMissing
			res.Err = fmt.Errorf("%w: claim %s: %v", seedkeep.ErrManifestMissing, claim.ID, err)
			return res
		}
		expected, err = seedkeep.ParseManifest(data)
		if err != nil {
			res.State = ManifestMissing
			res.Err = fmt.Errorf("claim %s: %w", claim.ID, err)
			return res
		}
		claim.SetExpectedBlobs(expected)
		expected = claim.ExpectedBlobs()
	}

	res.Expected = len(expected)
	for _, hash := range expected {
		if a.inv.Has(hash) {
			res.Present++
		} else {
			res.Missing = append(res.Missing, hash)
		}
	}

	if res.Expected > 0 && res.Present == res.Expected {
		res.State = Complete
	} else {
		res.State = Incomplete
	}
	return res
}

// FilterMissing returns the subset of hashes absent from the snapshot,
// preserving order.
func (a *Analyzer) FilterMissing(hashes []string) []string {
	var missing []string
	for _, hash := range hashes {
		if !a.inv.Has(hash) {
			missing = append(missing, hash)
		}
	}
	return missing
}

// Summary tallies a batch analysis. Batches always report a complete tally
// even when every claim failed.
type Summary struct {
	Complete        int
	Incomplete      int
	ManifestMissing int
	BlobsPresent    int // manifest blobs included
	BlobsExpected   int
}

// AnalyzeAll classifies claims in parallel, up to workers at a time.
// Results come back in input order regardless of completion order.
func (a *Analyzer) AnalyzeAll(claims []*seedkeep.Claim, workers int) ([]Result, Summary) {
	if workers <= 0 {
		workers = 1
	}

	results := make([]Result, len(claims))
	p := pool.New().WithMaxGoroutines(workers)
	for i, claim := range claims {
		p.Go(func() {
			results[i] = a.Analyze(claim)
		})
	}
	p.Wait()

	var sum Summary
	for _, res := range results {
		switch res.State {
		case Complete:
			sum.Complete++
		case Incomplete:
			sum.Incomplete++
		case ManifestMissing:
			sum.ManifestMissing++
		}
		if res.State != ManifestMissing {
			// One extra for the manifest blob itself.
			sum.BlobsPresent += res.Present + 1
			sum.BlobsExpected += res.Expected + 1
		}
	}

	log.Info().Int("complete", sum.Complete).Int("incomplete", sum.Incomplete).
		Int("manifest_missing", sum.ManifestMissing).Msg("integrity analysis finished")
	return results, sum
}
