// Package report renders the machine-parseable claim records consumed by
// the presentation layer. One record per line, fields joined by a
// caller-configurable separator.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/seedkeep/seedkeep"
	"github.com/seedkeep/seedkeep/internal/integrity"
)

// DefaultSeparator joins record fields unless the caller overrides it.
const DefaultSeparator = ";"

// Writer renders claim records.
type Writer struct {
	Sep string
}

// NewWriter returns a writer using sep, or DefaultSeparator if empty.
func NewWriter(sep string) *Writer {
	if sep == "" {
		sep = DefaultSeparator
	}
	return &Writer{Sep: sep}
}

// Record renders one claim as a single line (no trailing newline):
// claim_id, channel full name, release time, blob counts present/expected,
// media presence, validity.
func (w *Writer) Record(res integrity.Result) string {
	claim := res.Claim

	channelName := seedkeep.UnknownChannel
	if ch := claim.Channel; ch != nil {
		channelName = ch.Name()
	}

	blobs := fmt.Sprintf("%d/%d", res.Present, res.Expected)
	if res.State == integrity.ManifestMissing {
		blobs = "0/?"
	}

	fields := []string{
		claim.ID,
		channelName,
		fmt.Sprintf("%d", claim.EffectiveTime()),
		blobs,
		fmt.Sprintf("media=%t", claim.MediaPath != ""),
		claim.Validity().String(),
	}
	return strings.Join(fields, w.Sep)
}

// WriteAll writes one record per line for every result.
func (w *Writer) WriteAll(out io.Writer, results []integrity.Result) error {
	for _, res := range results {
		if _, err := fmt.Fprintln(out, w.Record(res)); err != nil {
			return err
		}
	}
	return nil
}
