package report

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/integrity"
)

func TestRecord(t *testing.T) {
	id := fmt.Sprintf("%040x", 7)
	claim := &seedkeep.Claim{
		ID:          id,
		ReleaseTime: 1600000000,
		MediaPath:   "/media/video.mp4",
		Channel: &seedkeep.Channel{
			BaseName: "@Some", FullName: "@Some:3f", State: seedkeep.ChannelResolved,
		},
	}
	claim.MarkValid()

	w := NewWriter("")
	line := w.Record(integrity.Result{
		Claim: claim, State: integrity.Complete, Present: 53, Expected: 53,
	})
	assert.Equal(t,
		id+";@Some:3f;1600000000;53/53;media=true;valid",
		line)
}

func TestRecord_UnresolvedChannelAndManifestMissing(t *testing.T) {
	id := fmt.Sprintf("%040x", 8)
	claim := &seedkeep.Claim{ID: id, Timestamp: 42}

	w := NewWriter("")
	line := w.Record(integrity.Result{Claim: claim, State: integrity.ManifestMissing})
	assert.Equal(t,
		id+";"+seedkeep.UnknownChannel+";42;0/?;media=false;unknown",
		line)
}

func TestRecord_CustomSeparator(t *testing.T) {
	claim := &seedkeep.Claim{ID: fmt.Sprintf("%040x", 9)}
	w := NewWriter(" | ")
	line := w.Record(integrity.Result{Claim: claim, State: integrity.Incomplete})
	assert.Equal(t, 5, strings.Count(line, " | "))
}

func TestWriteAll(t *testing.T) {
	w := NewWriter("")
	results := []integrity.Result{
		{Claim: &seedkeep.Claim{ID: fmt.Sprintf("%040x", 1)}},
		{Claim: &seedkeep.Claim{ID: fmt.Sprintf("%040x", 2)}},
	}

	var buf strings.Builder
	require.NoError(t, w.WriteAll(&buf, results))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], fmt.Sprintf("%040x", 1)))
	assert.True(t, strings.HasPrefix(lines[1], fmt.Sprintf("%040x", 2)))
}
