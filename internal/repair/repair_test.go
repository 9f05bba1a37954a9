package repair

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/daemon/daemontest"
	"github.com/seedkeep/seedkeep/internal/integrity"
	"github.com/seedkeep/seedkeep/internal/inventory"
)

func blobHash(n int) string {
	return fmt.Sprintf("%096x", n)
}

func claimID(n int) string {
	return fmt.Sprintf("%040x", n)
}

func writeManifest(t *testing.T, dir, manifestHash string, dataHashes ...string) {
	t.Helper()
	doc := `{"blobs":[`
	for i, h := range dataHashes {
		doc += fmt.Sprintf(`{"blob_num":%d,"blob_hash":"%s"},`, i, h)
	}
	doc += fmt.Sprintf(`{"blob_num":%d}]}`, len(dataHashes))
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestHash), []byte(doc+"\n"), 0644))
}

func writeBlob(t *testing.T, dir, hash string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, hash), []byte("data"), 0644))
}

func newScheduler(t *testing.T, dir string, fake *daemontest.Fake) *Scheduler {
	t.Helper()
	snap, err := inventory.Scan(dir)
	require.NoError(t, err)
	return NewScheduler(fake, integrity.NewAnalyzer(snap), WithWorkers(4))
}

func TestRepair_CompleteClaimReconstructs(t *testing.T) {
	dir := t.TempDir()
	manifest, b1 := blobHash(1), blobHash(2)
	writeManifest(t, dir, manifest, b1)
	writeBlob(t, dir, b1)

	fake := &daemontest.Fake{
		ReconstructFunc: func(id string) (string, error) {
			return "/media/" + id + ".mp4", nil
		},
	}
	s := newScheduler(t, dir, fake)
	claim := &seedkeep.Claim{ID: claimID(1), ManifestHash: manifest}

	out := s.Repair(context.Background(), claim)
	assert.Equal(t, Reconstructed, out.Status)
	assert.NoError(t, out.Err)
	assert.Equal(t, "/media/"+claim.ID+".mp4", claim.MediaPath)
	assert.Equal(t, 0, fake.Calls("FetchBlob"))
}

func TestRepair_FetchesMissingBlobs(t *testing.T) {
	dir := t.TempDir()
	manifest, b1, b2 := blobHash(1), blobHash(2), blobHash(3)
	writeManifest(t, dir, manifest, b1, b2)
	writeBlob(t, dir, b1)

	var fetched []string
	fake := &daemontest.Fake{
		FetchBlobFunc: func(hash string) error {
			fetched = append(fetched, hash)
			return nil
		},
		ReconstructFunc: func(id string) (string, error) { return "", nil },
	}
	s := newScheduler(t, dir, fake)

	out := s.Repair(context.Background(), &seedkeep.Claim{ID: claimID(1), ManifestHash: manifest})
	assert.Equal(t, Reconstructed, out.Status)
	assert.Equal(t, 1, out.Fetched)
	assert.Equal(t, 0, out.Failed)
	assert.Equal(t, []string{b2}, fetched)
}

func TestRepair_ManifestMissingFetchesManifestFirst(t *testing.T) {
	dir := t.TempDir()
	manifest, b1 := blobHash(1), blobHash(2)

	fake := &daemontest.Fake{
		FetchManifestFunc: func(hash string) ([]string, error) {
			assert.Equal(t, manifest, hash)
			return []string{b1}, nil
		},
		FetchBlobFunc:   func(hash string) error { return nil },
		ReconstructFunc: func(id string) (string, error) { return "", nil },
	}
	s := newScheduler(t, dir, fake)
	claim := &seedkeep.Claim{ID: claimID(1), ManifestHash: manifest}

	out := s.Repair(context.Background(), claim)
	assert.Equal(t, Reconstructed, out.Status)
	// All expected blobs were treated as missing and fetched.
	assert.Equal(t, 1, out.Fetched)
	assert.Equal(t, []string{b1}, claim.ExpectedBlobs())
}

func TestRepair_ManifestFetchSkipsBlobsAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	manifest, onDisk, absent := blobHash(1), blobHash(2), blobHash(3)
	writeBlob(t, dir, onDisk) // left over from an earlier partial download

	var fetched []string
	fake := &daemontest.Fake{
		FetchManifestFunc: func(hash string) ([]string, error) {
			return []string{onDisk, absent}, nil
		},
		FetchBlobFunc: func(hash string) error {
			fetched = append(fetched, hash)
			return nil
		},
		ReconstructFunc: func(id string) (string, error) { return "", nil },
	}
	s := newScheduler(t, dir, fake)

	out := s.Repair(context.Background(), &seedkeep.Claim{ID: claimID(1), ManifestHash: manifest})
	assert.Equal(t, Reconstructed, out.Status)
	assert.Equal(t, []string{absent}, fetched)
	assert.Equal(t, 1, out.Fetched)
}

func TestRepair_ManifestFetchFailure(t *testing.T) {
	s := newScheduler(t, t.TempDir(), &daemontest.Fake{}) // default: fetches fail

	out := s.Repair(context.Background(), &seedkeep.Claim{ID: claimID(1), ManifestHash: blobHash(1)})
	assert.Equal(t, Unrepairable, out.Status)
	assert.ErrorIs(t, out.Err, seedkeep.ErrResolutionFailed)
}

func TestRepair_AllFetchesFail(t *testing.T) {
	dir := t.TempDir()
	manifest, b1, b2 := blobHash(1), blobHash(2), blobHash(3)
	writeManifest(t, dir, manifest, b1, b2)

	s := newScheduler(t, dir, &daemontest.Fake{})

	out := s.Repair(context.Background(), &seedkeep.Claim{ID: claimID(1), ManifestHash: manifest})
	assert.Equal(t, Unrepairable, out.Status)
	assert.Equal(t, 0, out.Fetched)
	assert.Equal(t, 2, out.Failed)
	assert.Error(t, out.Err)
}

func TestRepair_SomeFetchesFail(t *testing.T) {
	dir := t.TempDir()
	manifest, b1, b2 := blobHash(1), blobHash(2), blobHash(3)
	writeManifest(t, dir, manifest, b1, b2)

	fake := &daemontest.Fake{
		FetchBlobFunc: func(hash string) error {
			if hash == b2 {
				return fmt.Errorf("%w: unavailable", seedkeep.ErrResolutionFailed)
			}
			return nil
		},
	}
	s := newScheduler(t, dir, fake)

	out := s.Repair(context.Background(), &seedkeep.Claim{ID: claimID(1), ManifestHash: manifest})
	assert.Equal(t, PartiallyRepaired, out.Status)
	assert.Equal(t, 1, out.Fetched)
	assert.Equal(t, 1, out.Failed)
	// No reconstruction attempt while blobs are still missing.
	assert.Equal(t, 0, fake.Calls("Reconstruct"))
}

func TestRepair_InvalidClaimNeverTouchesNetwork(t *testing.T) {
	dir := t.TempDir()
	manifest, b1 := blobHash(1), blobHash(2)
	writeManifest(t, dir, manifest, b1) // data blob absent

	fake := &daemontest.Fake{}
	s := newScheduler(t, dir, fake)

	claim := &seedkeep.Claim{ID: claimID(1), ManifestHash: manifest}
	claim.MarkInvalid()

	out := s.Repair(context.Background(), claim)
	assert.Equal(t, PartiallyRepaired, out.Status)
	assert.Error(t, out.Err)
	assert.Equal(t, 0, fake.Calls("FetchBlob"))
	assert.Equal(t, 0, fake.Calls("FetchManifest"))
}

func TestRepair_InvalidClaimNoManifest(t *testing.T) {
	fake := &daemontest.Fake{}
	s := newScheduler(t, t.TempDir(), fake)

	claim := &seedkeep.Claim{ID: claimID(1), ManifestHash: blobHash(1)}
	claim.MarkInvalid()

	out := s.Repair(context.Background(), claim)
	assert.Equal(t, Unrepairable, out.Status)
	assert.ErrorIs(t, out.Err, seedkeep.ErrManifestMissing)
	assert.Equal(t, 0, fake.Calls("FetchManifest"))
}

func TestRepair_InvalidCompleteClaimStillReconstructs(t *testing.T) {
	dir := t.TempDir()
	manifest, b1 := blobHash(1), blobHash(2)
	writeManifest(t, dir, manifest, b1)
	writeBlob(t, dir, b1)

	fake := &daemontest.Fake{
		ReconstructFunc: func(id string) (string, error) { return "/media/out.mp4", nil },
	}
	s := newScheduler(t, dir, fake)

	claim := &seedkeep.Claim{ID: claimID(1), ManifestHash: manifest}
	claim.MarkInvalid()

	// Reconstruction is local, so invalidity is no obstacle.
	out := s.Repair(context.Background(), claim)
	assert.Equal(t, Reconstructed, out.Status)
	assert.Equal(t, 0, fake.Calls("FetchBlob"))
	assert.Equal(t, 1, fake.Calls("Reconstruct"))
}

func TestRepair_ReconstructFailure(t *testing.T) {
	dir := t.TempDir()
	manifest, b1 := blobHash(1), blobHash(2)
	writeManifest(t, dir, manifest, b1)
	writeBlob(t, dir, b1)

	s := newScheduler(t, dir, &daemontest.Fake{
		ReconstructFunc: func(id string) (string, error) {
			return "", fmt.Errorf("%w: daemon busy", seedkeep.ErrResolutionFailed)
		},
	})

	out := s.Repair(context.Background(), &seedkeep.Claim{ID: claimID(1), ManifestHash: manifest})
	assert.Equal(t, PartiallyRepaired, out.Status)
	assert.Error(t, out.Err)
}

func TestRepairAll(t *testing.T) {
	dir := t.TempDir()
	m1, b1 := blobHash(1), blobHash(2)
	m2, b2 := blobHash(3), blobHash(4)
	writeManifest(t, dir, m1, b1)
	writeBlob(t, dir, b1)
	writeManifest(t, dir, m2, b2) // data blob absent, fetches will fail

	fake := &daemontest.Fake{
		ReconstructFunc: func(id string) (string, error) { return "", nil },
	}
	s := newScheduler(t, dir, fake)

	claims := []*seedkeep.Claim{
		{ID: claimID(1), ManifestHash: m1},
		{ID: claimID(2), ManifestHash: m2},
		{ID: claimID(3), ManifestHash: blobHash(9)},
	}

	outcomes, sum := s.RepairAll(context.Background(), claims)
	require.Len(t, outcomes, 3)

	// Outcomes keep input order under the parallel pool.
	assert.Same(t, claims[0], outcomes[0].Claim)
	assert.Same(t, claims[1], outcomes[1].Claim)
	assert.Same(t, claims[2], outcomes[2].Claim)

	assert.Equal(t, 1, sum.Reconstructed)
	assert.Equal(t, 2, sum.Unrepairable)
	assert.Equal(t, 0, sum.Partial)
}
