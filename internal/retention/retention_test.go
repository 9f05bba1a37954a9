package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/integrity"
	"github.com/seedkeep/seedkeep/internal/inventory"
)

func blobHash(n int) string {
	return fmt.Sprintf("%096x", n)
}

func claimID(n int) string {
	return fmt.Sprintf("%040x", n)
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

// fixture builds claims over a single directory serving as both the usage
// root and the blob store. Media files carry non-hex names, so the inventory
// scan ignores them.
type fixture struct {
	t    *testing.T
	root string
	n    int
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, root: t.TempDir()}
}

// claim creates a claim with one manifest blob of 10 bytes and one data blob
// of dataSize bytes on disk.
func (f *fixture) claim(timestamp int64, channel string, dataSize int) *seedkeep.Claim {
	f.n++
	manifest, data := blobHash(f.n*2), blobHash(f.n*2+1)
	writeFile(f.t, filepath.Join(f.root, manifest), 10)
	writeFile(f.t, filepath.Join(f.root, data), dataSize)

	c := &seedkeep.Claim{
		ID:           claimID(f.n),
		Name:         fmt.Sprintf("claim-%d", f.n),
		ChannelName:  channel,
		Timestamp:    timestamp,
		ManifestHash: manifest,
	}
	c.SetExpectedBlobs([]string{data})
	return c
}

func (f *fixture) engine() *Engine {
	snap, err := inventory.Scan(f.root)
	require.NoError(f.t, err)
	return NewEngine(f.root, snap, integrity.NewAnalyzer(snap))
}

func (f *fixture) usage(t *testing.T) int64 {
	u, err := MeasureUsage(f.root, 0, 0)
	require.NoError(t, err)
	return u.MeasuredBytes
}

func TestEvict_OldestFirstUntilBudget(t *testing.T) {
	f := newFixture(t)
	a := f.claim(1, "@Ch", 40) // 50 bytes each with manifest
	b := f.claim(2, "@Ch", 40)
	c := f.claim(3, "@Ch", 40)
	require.Equal(t, int64(150), f.usage(t))

	report, err := f.engine().Evict([]*seedkeep.Claim{c, a, b}, Request{
		BudgetBytes: 100,
		What:        seedkeep.DeleteBlobs,
	})
	require.NoError(t, err)

	// 150 over a 100-byte budget: exactly the oldest claim goes.
	require.Len(t, report.Deletions, 1)
	assert.Same(t, a, report.Deletions[0].Claim)
	assert.Equal(t, int64(50), report.FreedBytes)
	assert.False(t, report.Partial)
	assert.Equal(t, int64(100), f.usage(t))
}

func TestEvict_SecondRunDeletesNothing(t *testing.T) {
	f := newFixture(t)
	claims := []*seedkeep.Claim{
		f.claim(1, "@Ch", 40), f.claim(2, "@Ch", 40), f.claim(3, "@Ch", 40),
	}
	req := Request{BudgetBytes: 100, What: seedkeep.DeleteBlobs}

	first, err := f.engine().Evict(claims, req)
	require.NoError(t, err)
	require.Len(t, first.Deletions, 1)

	// Usage sits at the budget now; above the 90% trigger, but no claim may
	// be deleted while usage does not exceed the budget.
	second, err := f.engine().Evict(claims, req)
	require.NoError(t, err)
	assert.Empty(t, second.Deletions)
	assert.Equal(t, int64(100), f.usage(t))
}

func TestEvict_BelowTriggerNoOp(t *testing.T) {
	f := newFixture(t)
	claims := []*seedkeep.Claim{f.claim(1, "@Ch", 40)}
	require.Equal(t, int64(50), f.usage(t))

	report, err := f.engine().Evict(claims, Request{
		BudgetBytes: 1000,
		What:        seedkeep.DeleteBlobs,
	})
	require.NoError(t, err)
	assert.Empty(t, report.Deletions)
	assert.Equal(t, int64(50), f.usage(t))
}

func TestEvict_ProtectedChannelNeverTouched(t *testing.T) {
	f := newFixture(t)
	protected := f.claim(1, "@Keep", 40) // oldest, would go first
	victim := f.claim(2, "@Other", 40)
	newest := f.claim(3, "@Other", 40)

	report, err := f.engine().Evict([]*seedkeep.Claim{protected, victim, newest}, Request{
		BudgetBytes: 100,
		Protect:     []string{"@Keep"},
		What:        seedkeep.DeleteBlobs,
	})
	require.NoError(t, err)

	require.Len(t, report.Deletions, 1)
	assert.Same(t, victim, report.Deletions[0].Claim)
	assert.Equal(t, 1, report.Skipped)

	// The protected claim's blobs are intact.
	_, err = os.Stat(filepath.Join(f.root, protected.ManifestHash))
	assert.NoError(t, err)
}

func TestEvict_ProtectionMatchesAnyIdentity(t *testing.T) {
	f := newFixture(t)
	claim := f.claim(1, "@Keep", 40)
	claim.Channel = &seedkeep.Channel{
		BaseName: "@Keep", FullName: "@Keep:ab", State: seedkeep.ChannelResolved,
	}
	filler := f.claim(2, "@Other", 200)

	// URI form with the on-chain separator still matches the resolved name.
	report, err := f.engine().Evict([]*seedkeep.Claim{claim, filler}, Request{
		BudgetBytes: 100,
		Protect:     []string{"lbry://@Keep#ab"},
		What:        seedkeep.DeleteBlobs,
	})
	require.NoError(t, err)

	for _, d := range report.Deletions {
		assert.NotSame(t, claim, d.Claim)
	}
	assert.Equal(t, 1, report.Skipped)
}

func TestEvict_SharedBlobOfProtectedClaimSurvives(t *testing.T) {
	f := newFixture(t)
	protected := f.claim(1, "@Keep", 40)
	shared := protected.ExpectedBlobs()[0]

	// The store deduplicates: the victim also references the protected
	// claim's data blob.
	own := blobHash(1000)
	manifest := blobHash(1001)
	writeFile(t, filepath.Join(f.root, own), 40)
	writeFile(t, filepath.Join(f.root, manifest), 10)
	victim := &seedkeep.Claim{
		ID: claimID(1000), ChannelName: "@Other",
		Timestamp: 2, ManifestHash: manifest,
	}
	victim.SetExpectedBlobs([]string{own, shared})

	report, err := f.engine().Evict([]*seedkeep.Claim{protected, victim}, Request{
		BudgetBytes: 10,
		Protect:     []string{"@Keep"},
		What:        seedkeep.DeleteBlobs,
	})
	require.NoError(t, err)
	require.Len(t, report.Deletions, 1)

	_, err = os.Stat(filepath.Join(f.root, shared))
	assert.NoError(t, err, "shared blob must survive")
	_, err = os.Stat(filepath.Join(f.root, own))
	assert.True(t, os.IsNotExist(err), "victim's own blob must be gone")
}

func TestEvict_ChannelScopeKeepCount(t *testing.T) {
	f := newFixture(t)
	c1 := f.claim(1, "@Ch", 40)
	c2 := f.claim(2, "@Ch", 40)
	c3 := f.claim(3, "@Ch", 40)
	c4 := f.claim(4, "@Ch", 40)
	other := f.claim(5, "@Other", 40)

	// Budget 0: the keep count alone decides. Usage level is irrelevant for
	// channel cleanup.
	report, err := f.engine().Evict([]*seedkeep.Claim{c3, other, c1, c4, c2}, Request{
		Scope: Scope{Channel: "@Ch", KeepCount: 2},
		What:  seedkeep.DeleteBoth,
	})
	require.NoError(t, err)

	require.Len(t, report.Deletions, 2)
	assert.Same(t, c1, report.Deletions[0].Claim)
	assert.Same(t, c2, report.Deletions[1].Claim)
	assert.Equal(t, 2, report.Skipped)

	// Out-of-scope claims are untouched.
	_, err = os.Stat(filepath.Join(f.root, other.ManifestHash))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.root, c3.ManifestHash))
	assert.NoError(t, err)
}

func TestEvict_ChannelScopeFullFormName(t *testing.T) {
	f := newFixture(t)
	// Offline annotation: claims carry base names only, no resolved suffix.
	c1 := f.claim(1, "@Ch", 40)
	c2 := f.claim(2, "@Ch", 40)
	c3 := f.claim(3, "@Ch", 40)

	report, err := f.engine().Evict([]*seedkeep.Claim{c1, c2, c3}, Request{
		Scope: Scope{Channel: "@Ch:3f", KeepCount: 1},
		What:  seedkeep.DeleteBlobs,
	})
	require.NoError(t, err)

	require.Len(t, report.Deletions, 2)
	assert.Same(t, c1, report.Deletions[0].Claim)
	assert.Same(t, c2, report.Deletions[1].Claim)
}

func TestEvict_FullFormProtectionCoversOfflineClaims(t *testing.T) {
	f := newFixture(t)
	protected := f.claim(1, "@Keep", 40) // base name only, no Channel set
	filler := f.claim(2, "@Other", 200)

	report, err := f.engine().Evict([]*seedkeep.Claim{protected, filler}, Request{
		BudgetBytes: 100,
		Protect:     []string{"@Keep:3f"},
		What:        seedkeep.DeleteBlobs,
	})
	require.NoError(t, err)

	for _, d := range report.Deletions {
		assert.NotSame(t, protected, d.Claim)
	}
	assert.Equal(t, 1, report.Skipped)
	_, err = os.Stat(filepath.Join(f.root, protected.ManifestHash))
	assert.NoError(t, err)
}

func TestEvict_KeepCountExceedsChannelSize(t *testing.T) {
	f := newFixture(t)
	claims := []*seedkeep.Claim{f.claim(1, "@Ch", 40), f.claim(2, "@Ch", 40)}

	report, err := f.engine().Evict(claims, Request{
		Scope: Scope{Channel: "@Ch", KeepCount: 5},
		What:  seedkeep.DeleteBoth,
	})
	require.NoError(t, err)
	assert.Empty(t, report.Deletions)
	assert.Equal(t, 2, report.Skipped)
}

func TestEvict_PartialWhenCandidatesExhausted(t *testing.T) {
	f := newFixture(t)
	claims := []*seedkeep.Claim{f.claim(1, "@Ch", 40)}
	// An unindexed file keeps usage above the budget no matter what.
	writeFile(t, filepath.Join(f.root, "ballast.bin"), 500)

	report, err := f.engine().Evict(claims, Request{
		BudgetBytes: 100,
		What:        seedkeep.DeleteBlobs,
	})
	require.NoError(t, err)
	assert.Len(t, report.Deletions, 1)
	assert.True(t, report.Partial)
}

func TestEvict_MediaOnly(t *testing.T) {
	f := newFixture(t)
	claim := f.claim(1, "@Ch", 40)
	media := filepath.Join(f.root, "video.mp4")
	writeFile(t, media, 200)
	claim.MediaPath = media

	report, err := f.engine().Evict([]*seedkeep.Claim{claim}, Request{
		BudgetBytes: 100,
		What:        seedkeep.DeleteMedia,
	})
	require.NoError(t, err)

	require.Len(t, report.Deletions, 1)
	assert.Equal(t, int64(200), report.FreedBytes)
	assert.Empty(t, claim.MediaPath)

	_, err = os.Stat(media)
	assert.True(t, os.IsNotExist(err))
	// Blobs stay: the claim remains seedable.
	_, err = os.Stat(filepath.Join(f.root, claim.ManifestHash))
	assert.NoError(t, err)
}

func TestEvict_BothRemovesMediaAndBlobs(t *testing.T) {
	f := newFixture(t)
	claim := f.claim(1, "@Ch", 40)
	media := filepath.Join(f.root, "video.mp4")
	writeFile(t, media, 200)
	claim.MediaPath = media

	report, err := f.engine().Evict([]*seedkeep.Claim{claim}, Request{
		BudgetBytes: 100,
		What:        seedkeep.DeleteBoth,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250), report.FreedBytes)
	assert.Equal(t, int64(0), f.usage(t))
}

func TestEvict_AbsentMediaFreesNothing(t *testing.T) {
	f := newFixture(t)
	claim := f.claim(1, "@Ch", 140)
	claim.MediaPath = filepath.Join(f.root, "never-existed.mp4")

	report, err := f.engine().Evict([]*seedkeep.Claim{claim}, Request{
		BudgetBytes: 100,
		What:        seedkeep.DeleteMedia,
	})
	require.NoError(t, err)
	require.Len(t, report.Deletions, 1)
	assert.Equal(t, int64(0), report.Deletions[0].FreedBytes)
	assert.Empty(t, claim.MediaPath)
}

func TestEvict_Validation(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	cases := []struct {
		name string
		req  Request
	}{
		{"global without budget", Request{What: seedkeep.DeleteBoth}},
		{"negative budget", Request{BudgetBytes: -1, What: seedkeep.DeleteBoth}},
		{"threshold above 100", Request{BudgetBytes: 10, ThresholdPercent: 150, What: seedkeep.DeleteBoth}},
		{"negative keep count", Request{Scope: Scope{Channel: "@Ch", KeepCount: -1}, What: seedkeep.DeleteBoth}},
		{"bad what", Request{BudgetBytes: 10, What: "everything"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Evict(nil, tc.req)
			assert.Error(t, err)
		})
	}
}

func TestEvict_MissingUsageRoot(t *testing.T) {
	snap, err := inventory.Scan(t.TempDir())
	require.NoError(t, err)
	e := NewEngine(filepath.Join(t.TempDir(), "nope"), snap, integrity.NewAnalyzer(snap))

	_, err = e.Evict(nil, Request{BudgetBytes: 10, What: seedkeep.DeleteBoth})
	assert.ErrorIs(t, err, seedkeep.ErrStorageUnavailable)
}

func TestUsageSnapshot_Trigger(t *testing.T) {
	u := UsageSnapshot{BudgetBytes: 1000, ThresholdPercent: 90, MeasuredBytes: 899}
	assert.Equal(t, int64(900), u.TriggerBytes())
	assert.False(t, u.AboveTrigger())

	u.MeasuredBytes = 900
	assert.True(t, u.AboveTrigger())
}
