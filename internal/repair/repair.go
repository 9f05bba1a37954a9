// Package repair re-fetches missing blobs and reconciles media files.
//
// Repairs are per-claim and independent: a failure is recorded on that
// claim's outcome and the batch always completes. Claims marked invalid
// never touch the network; for them only local reconstruction from blobs
// already on disk is attempted.
package repair

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/daemon"
	"github.com/seedkeep/seedkeep/internal/integrity"
)

// Status is the outcome of one claim repair.
type Status int

const (
	// Unrepairable means nothing could be recovered: no manifest and no way
	// to fetch one, or every fetch failed.
	Unrepairable Status = iota
	// PartiallyRepaired means some blobs were recovered but the claim is
	// still not complete.
	PartiallyRepaired
	// Reconstructed means the claim is complete and its media file was
	// reassembled.
	Reconstructed
)

func (s Status) String() string {
	switch s {
	case Reconstructed:
		return "reconstructed"
	case PartiallyRepaired:
		return "partially_repaired"
	default:
		return "unrepairable"
	}
}

// Outcome records what happened to one claim.
type Outcome struct {
	Claim   *seedkeep.Claim
	Status  Status
	Fetched int   // blobs successfully requested from the network
	Failed  int   // blob fetches that failed
	Err     error // first fatal error for this claim, nil otherwise
}

// DefaultWorkers is the default number of claims repaired in parallel.
const DefaultWorkers = 32

// Scheduler repairs incomplete claims against the network client.
type Scheduler struct {
	client   daemon.Client
	analyzer *integrity.Analyzer
	workers  int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets how many claims are repaired in parallel.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewScheduler returns a scheduler using the given client and analyzer.
func NewScheduler(client daemon.Client, analyzer *integrity.Analyzer, opts ...Option) *Scheduler {
	s := &Scheduler{client: client, analyzer: analyzer, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repair brings one claim as close to complete as possible and attempts
// media reconstruction.
func (s *Scheduler) Repair(ctx context.Context, claim *seedkeep.Claim) Outcome {
	out := Outcome{Claim: claim}
	analysis := s.analyzer.Analyze(claim)

	missing := analysis.Missing
	invalid := claim.Validity() == seedkeep.ValidityInvalid

	switch analysis.State {
	case integrity.ManifestMissing:
		if invalid {
			// No manifest and no network: nothing can be checked or fetched.
			out.Err = analysis.Err
			return out
		}
		expected, err := s.client.FetchManifest(ctx, claim.ManifestHash)
		if err != nil {
			out.Err = fmt.Errorf("fetch manifest for %s: %w", claim.ID, err)
			return out
		}
		claim.SetExpectedBlobs(expected)
		// The manifest was absent, but some data blobs may already be in the
		// store from an earlier partial download.
		missing = s.analyzer.FilterMissing(expected)

	case integrity.Complete:
		return s.reconstruct(ctx, out)
	}

	if invalid {
		// Incomplete and gone from the network. The blobs on disk are all
		// there will ever be.
		out.Status = PartiallyRepaired
		out.Err = fmt.Errorf("%s: claim invalid, %d blobs unrecoverable", claim.ID, len(missing))
		return out
	}

	for _, hash := range missing {
		if err := s.client.FetchBlob(ctx, hash); err != nil {
			out.Failed++
			if out.Err == nil {
				out.Err = fmt.Errorf("fetch blob for %s: %w", claim.ID, err)
			}
			continue
		}
		out.Fetched++
	}

	if out.Failed > 0 {
		if out.Fetched == 0 {
			out.Status = Unrepairable
		} else {
			out.Status = PartiallyRepaired
		}
		return out
	}

	return s.reconstruct(ctx, out)
}

// reconstruct reassembles the media file from the (now complete) blob set.
// Reconstruction is a local daemon operation, safe for invalid claims.
func (s *Scheduler) reconstruct(ctx context.Context, out Outcome) Outcome {
	path, err := s.client.Reconstruct(ctx, out.Claim.ID)
	if err != nil {
		out.Status = PartiallyRepaired
		out.Err = fmt.Errorf("reconstruct %s: %w", out.Claim.ID, err)
		return out
	}
	if path != "" {
		out.Claim.MediaPath = path
	}
	out.Status = Reconstructed
	return out
}

// Summary tallies a batch repair.
type Summary struct {
	Reconstructed int
	Partial       int
	Unrepairable  int
}

// RepairAll repairs claims in parallel, each claim independent of the
// others. Outcomes come back in input order.
func (s *Scheduler) RepairAll(ctx context.Context, claims []*seedkeep.Claim) ([]Outcome, Summary) {
	outcomes := make([]Outcome, len(claims))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i, claim := range claims {
		p.Go(func() {
			outcomes[i] = s.Repair(ctx, claim)
		})
	}
	p.Wait()

	var sum Summary
	for _, out := range outcomes {
		switch out.Status {
		case Reconstructed:
			sum.Reconstructed++
		case PartiallyRepaired:
			sum.Partial++
		default:
			sum.Unrepairable++
		}
	}

	log.Info().Int("reconstructed", sum.Reconstructed).Int("partial", sum.Partial).
		Int("unrepairable", sum.Unrepairable).Msg("repair batch finished")
	return outcomes, sum
}
