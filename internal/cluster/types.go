package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
)

// CurrentVersion is the node software version this build advertises to the
// coordinator. Nodes may override it (see cmd/node) to simulate a mixed-version
// cluster during a rolling upgrade.
const CurrentVersion = "8.1.0"

// MinCompatibleShardNodeSupport is the oldest node software version that
// understands the min_compatible_shard_node search option. Requests carrying
// the option against a cluster whose oldest node predates this version fail
// with an unrecognized-parameter error, because such a node would not even
// parse the option.
var MinCompatibleShardNodeSupport = semver.MustParse("8.0.0")

// NodeInfo describes one node in the cluster: its identity, the address it
// serves HTTP on, and the software version it advertises. The version takes
// part in search admission control, so it must parse as a semantic version;
// the registry rejects registrations that do not.
type NodeInfo struct {
	ID      string `json:"id"`
	Addr    string `json:"addr"`
	Version string `json:"version"`
}

// SemVer returns the node's advertised version as a comparable semantic
// version. Pre-release suffixes (8.0.0-SNAPSHOT) order before their release
// per semver rules, which matches how upgrade builds are versioned.
func (n NodeInfo) SemVer() (*semver.Version, error) {
	v, err := semver.NewVersion(n.Version)
	if err != nil {
		return nil, fmt.Errorf("node %s advertises invalid version %q: %w", n.ID, n.Version, err)
	}
	return v, nil
}

// RegisterRequest is the body a node posts to the coordinator's /register
// endpoint when it joins the cluster or restarts with a new version.
type RegisterRequest struct {
	Node NodeInfo `json:"node"`
}

// ShardDocRequest is the body the coordinator sends to a node's /shards/docs
// endpoint when replicating one document write to one shard copy.
type ShardDocRequest struct {
	Index   string          `json:"index"`
	Shard   int             `json:"shard"`
	Primary bool            `json:"primary"`
	DocID   string          `json:"doc_id"`
	Doc     json.RawMessage `json:"doc"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// StatusError is returned by PostJSON/GetJSON when the remote end responds
// with a non-2xx status. The body is retained so callers can surface the
// remote error payload.
type StatusError struct {
	URL  string
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %d", e.URL, e.Code)
}

// PostJSON marshals body, POSTs it to url, and decodes the response into out
// when out is non-nil. Non-2xx responses become a *StatusError.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return &StatusError{URL: url, Code: resp.StatusCode, Body: buf.Bytes()}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PutJSON marshals body, PUTs it to url, and decodes the response into out
// when out is non-nil. Non-2xx responses become a *StatusError.
func PutJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return &StatusError{URL: url, Code: resp.StatusCode, Body: buf.Bytes()}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON performs a GET against url and decodes the response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return &StatusError{URL: url, Code: resp.StatusCode, Body: buf.Bytes()}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
