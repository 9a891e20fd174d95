package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// RemoteClient talks to the remote cache service referenced by
// EXPECTED_PARROT_CACHE_URL. The protocol is a small bespoke HTTP API, not a
// generic key-value store, so this is a thin net/http wrapper rather than a
// dependency on a KV client library.
type RemoteClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewRemoteClient builds a client against baseURL, authenticating with
// apiKey as a bearer token when non-empty.
func NewRemoteClient(baseURL, apiKey string) *RemoteClient {
	return &RemoteClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type batchItem struct {
	Key  string `json:"key"`
	Item Entry  `json:"item"`
}

func (c *RemoteClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// FetchAll retrieves every entry known to the remote cache.
func (c *RemoteClient) FetchAll(ctx context.Context) (map[string]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/items/all", nil)
	if err != nil {
		return nil, &RemoteError{Op: "fetch_all", Err: err}
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: "fetch_all", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Op: "fetch_all", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var out map[string]Entry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &RemoteError{Op: "fetch_all", Err: err}
	}
	return out, nil
}

// UploadBatch pushes entries, keyed by fingerprint, to the remote cache.
func (c *RemoteClient) UploadBatch(ctx context.Context, entries map[string]Entry) error {
	if len(entries) == 0 {
		return nil
	}
	items := make([]batchItem, 0, len(entries))
	for fingerprint, entry := range entries {
		items = append(items, batchItem{Key: fingerprint, Item: entry})
	}

	body, err := json.Marshal(items)
	if err != nil {
		return &RemoteError{Op: "upload_batch", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/items/batch", bytes.NewReader(body))
	if err != nil {
		return &RemoteError{Op: "upload_batch", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &RemoteError{Op: "upload_batch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &RemoteError{Op: "upload_batch", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}

// CompareHash asks the remote cache whether its key set hashes to the same
// value as localKeys. The hash is md5 over the sorted, concatenated key
// strings — the same scheme the server expects in its /compare_hash/{md5}
// path segment.
func (c *RemoteClient) CompareHash(ctx context.Context, localKeys []string) (bool, error) {
	hash := HashKeySet(localKeys)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/compare_hash/"+hash, nil)
	if err != nil {
		return false, &RemoteError{Op: "compare_hash", Err: err}
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, &RemoteError{Op: "compare_hash", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &RemoteError{Op: "compare_hash", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var out struct {
		Match bool `json:"match"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, &RemoteError{Op: "compare_hash", Err: err}
	}
	return out.Match, nil
}

// HashKeySet returns the md5 hex digest of the sorted, concatenated key
// strings in keys. Two cache instances with identical fingerprint sets
// always produce the same hash regardless of insertion order.
func HashKeySet(keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	h := md5.New()
	for _, k := range sorted {
		h.Write([]byte(k))
	}
	return hex.EncodeToString(h.Sum(nil))
}
