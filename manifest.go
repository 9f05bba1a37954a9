package seedkeep

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// manifestDoc is the JSON layout of a manifest ("sd") blob. Only the blob
// list matters here; the rest of the document (stream name, key, suggested
// file name) belongs to the excluded wire format.
type manifestDoc struct {
	Blobs []manifestBlob `json:"blobs"`
}

type manifestBlob struct {
	Num  int    `json:"blob_num"`
	Hash string `json:"blob_hash"`
}

// ParseManifest extracts the ordered data-blob hashes from the content of a
// manifest blob. The final list entry is a stream terminator carrying no
// blob_hash; it is skipped, as is any entry whose hash is not a plausible
// blob hash.
func ParseManifest(data []byte) ([]string, error) {
	// The manifest is a single JSON document on the first line of the blob.
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}

	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(doc.Blobs) == 0 {
		return nil, fmt.Errorf("parse manifest: no blob entries")
	}

	hashes := make([]string, 0, len(doc.Blobs))
	for _, b := range doc.Blobs {
		if b.Hash == "" {
			continue // stream terminator
		}
		if !IsBlobHash(b.Hash) {
			continue
		}
		hashes = append(hashes, b.Hash)
	}
	return hashes, nil
}
