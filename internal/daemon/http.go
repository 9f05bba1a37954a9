package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seedkeep/seedkeep"
)

// DefaultAddress is where the daemon normally listens.
const DefaultAddress = "http://localhost:5279"

// DefaultTimeout bounds a single round trip. A timed-out call is a
// resolution failure for that item only; siblings in a batch continue.
const DefaultTimeout = 2 * time.Minute

// HTTPClient talks JSON-RPC to the daemon over HTTP.
type HTTPClient struct {
	address string
	http    *http.Client
}

var _ Client = (*HTTPClient)(nil)

// New returns a client for the daemon at address, or the default address if
// empty.
func New(address string) *HTTPClient {
	if address == "" {
		address = DefaultAddress
	}
	return &HTTPClient{
		address: address,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout overrides the per-call timeout.
func (c *HTTPClient) SetTimeout(d time.Duration) {
	if d > 0 {
		c.http.Timeout = d
	}
}

// rpcRequest is the JSON-RPC envelope the daemon accepts.
type rpcRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params map[string]any, result any) error {
	body, err := json.Marshal(rpcRequest{Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", seedkeep.ErrResolutionFailed, method, err)
	}
	defer resp.Body.Close()

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", seedkeep.ErrResolutionFailed, method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%w: %s: %s", seedkeep.ErrResolutionFailed, method, envelope.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%w: %s: decode result: %v", seedkeep.ErrResolutionFailed, method, err)
		}
	}
	return nil
}

// flexInt64 accepts both string and number encodings; the daemon emits
// release times as strings inside claim metadata.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt64(n)
	return nil
}

// claimItem is the wire shape of a resolved claim.
type claimItem struct {
	ClaimID      string `json:"claim_id"`
	Name         string `json:"name"`
	CanonicalURL string `json:"canonical_url"`
	Timestamp    int64  `json:"timestamp"`
	Value        struct {
		ReleaseTime flexInt64 `json:"release_time"`
		Source      struct {
			SDHash string `json:"sd_hash"`
		} `json:"source"`
	} `json:"value"`
	SigningChannel *struct {
		Name         string `json:"name"`
		CanonicalURL string `json:"canonical_url"`
	} `json:"signing_channel"`
	Error *struct {
		Name string `json:"name"`
		Text string `json:"text"`
	} `json:"error"`
}

func (item *claimItem) resolved() *ResolvedClaim {
	rc := &ResolvedClaim{
		ClaimID:      item.ClaimID,
		Name:         item.Name,
		CanonicalURL: item.CanonicalURL,
		ReleaseTime:  int64(item.Value.ReleaseTime),
		Timestamp:    item.Timestamp,
		ManifestHash: item.Value.Source.SDHash,
	}
	if ch := item.SigningChannel; ch != nil {
		rc.ChannelName = ch.Name
		rc.ChannelURL = strings.TrimPrefix(ch.CanonicalURL, "lbry://")
	}
	return rc
}

// Resolve resolves a canonical URI through the daemon's resolve call. The
// daemon reports unknown URIs inside the per-URL result, not as a top-level
// error.
func (c *HTTPClient) Resolve(ctx context.Context, url string) (*ResolvedClaim, error) {
	var result map[string]claimItem
	if err := c.call(ctx, "resolve", map[string]any{"urls": url}, &result); err != nil {
		return nil, err
	}

	item, ok := result[url]
	if !ok {
		return nil, fmt.Errorf("%w: resolve returned nothing for %s", seedkeep.ErrResolutionFailed, url)
	}
	if item.Error != nil {
		log.Debug().Str("url", url).Str("error", item.Error.Name).Msg("resolve miss")
		return nil, fmt.Errorf("%w: %s", seedkeep.ErrNotFound, url)
	}
	return item.resolved(), nil
}

// Search resolves a normalized claim reference. URIs go through resolve;
// IDs and bare names through claim_search, taking the best match.
func (c *HTTPClient) Search(ctx context.Context, ref seedkeep.ClaimRef) (*ResolvedClaim, error) {
	if ref.Kind == seedkeep.ByURI {
		return c.Resolve(ctx, ref.Value)
	}

	params := map[string]any{"page_size": 1}
	switch ref.Kind {
	case seedkeep.ByID:
		params["claim_id"] = ref.Value
	case seedkeep.ByName:
		params["name"] = ref.Value
	}

	var result struct {
		Items []claimItem `json:"items"`
	}
	if err := c.call(ctx, "claim_search", params, &result); err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", seedkeep.ErrNotFound, ref.Value)
	}
	return result.Items[0].resolved(), nil
}

// fileItem is the wire shape of a local download record.
type fileItem struct {
	ClaimID        string `json:"claim_id"`
	ClaimName      string `json:"claim_name"`
	ChannelName    string `json:"channel_name"`
	Timestamp      int64  `json:"timestamp"`
	SDHash         string `json:"sd_hash"`
	DownloadPath   string `json:"download_path"`
	BlobsCompleted int    `json:"blobs_completed"`
	BlobsInStream  int    `json:"blobs_in_stream"`
	Metadata       struct {
		ReleaseTime flexInt64 `json:"release_time"`
	} `json:"metadata"`
}

// FileList pages through the daemon's download records.
func (c *HTTPClient) FileList(ctx context.Context, channel string) ([]FileRecord, error) {
	params := map[string]any{"page_size": 99000}
	if channel != "" {
		if !strings.HasPrefix(channel, "@") {
			channel = "@" + channel
		}
		params["channel_name"] = channel
	}

	var result struct {
		Items []fileItem `json:"items"`
	}
	if err := c.call(ctx, "file_list", params, &result); err != nil {
		return nil, err
	}

	records := make([]FileRecord, 0, len(result.Items))
	for _, item := range result.Items {
		records = append(records, FileRecord{
			ClaimID:        item.ClaimID,
			ClaimName:      item.ClaimName,
			ChannelName:    strings.TrimPrefix(item.ChannelName, "lbry://"),
			ReleaseTime:    int64(item.Metadata.ReleaseTime),
			Timestamp:      item.Timestamp,
			ManifestHash:   item.SDHash,
			DownloadPath:   item.DownloadPath,
			BlobsCompleted: item.BlobsCompleted,
			BlobsInStream:  item.BlobsInStream,
		})
	}
	return records, nil
}

// FetchBlob triggers a network download of one blob into the flat store.
func (c *HTTPClient) FetchBlob(ctx context.Context, hash string) error {
	return c.call(ctx, "blob_get", map[string]any{"blob_hash": hash}, nil)
}

// FetchManifest downloads the manifest blob if necessary and returns the
// blob hashes it enumerates.
func (c *HTTPClient) FetchManifest(ctx context.Context, hash string) ([]string, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "blob_get", map[string]any{"blob_hash": hash, "read": true}, &raw); err != nil {
		return nil, err
	}
	hashes, err := seedkeep.ParseManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %v", seedkeep.ErrResolutionFailed, hash, err)
	}
	return hashes, nil
}

// Reconstruct asks the daemon to reassemble the media file from local blobs.
func (c *HTTPClient) Reconstruct(ctx context.Context, claimID string) (string, error) {
	var result fileItem
	err := c.call(ctx, "file_save", map[string]any{"claim_id": claimID}, &result)
	if err != nil {
		return "", err
	}
	return result.DownloadPath, nil
}
