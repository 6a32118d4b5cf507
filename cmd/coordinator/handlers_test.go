package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dreamware/strata/internal/cluster"
	"github.com/dreamware/strata/internal/search"
	"github.com/dreamware/strata/internal/shard"
	"github.com/dreamware/strata/internal/storage"
)

// fakeNode is an in-memory stand-in for a data node. It hosts real shard
// copies over real stores and serves the two endpoints the coordinator
// dispatches to.
type fakeNode struct {
	t      *testing.T
	mu     sync.Mutex
	shards map[string]*shard.Shard
	srv    *httptest.Server
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	n := &fakeNode{t: t, shards: make(map[string]*shard.Shard)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /shards/search", n.handleSearch)
	mux.HandleFunc("PUT /shards/docs", n.handleDoc)
	n.srv = httptest.NewServer(mux)

	t.Cleanup(func() {
		n.srv.Close()
		n.mu.Lock()
		defer n.mu.Unlock()
		for _, s := range n.shards {
			_ = s.Close()
		}
	})
	return n
}

func (n *fakeNode) getOrCreate(index string, id int) *shard.Shard {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := fmt.Sprintf("%s/%d", index, id)
	if s, ok := n.shards[key]; ok {
		return s
	}
	store, err := storage.OpenBadger("")
	if err != nil {
		n.t.Fatalf("Failed to open store: %v", err)
	}
	s := shard.New(index, id, true, store)
	n.shards[key] = s
	return s
}

func (n *fakeNode) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.ShardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := n.getOrCreate(req.Index, req.Shard).Search(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (n *fakeNode) handleDoc(w http.ResponseWriter, r *http.Request) {
	var req cluster.ShardDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := n.getOrCreate(req.Index, req.Shard).PutDoc(req.DocID, req.Doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// newTestCluster starts one fake node per version and a coordinator server
// with all of them registered. Node IDs order the same as the versions
// slice, which decides primary placement.
func newTestCluster(t *testing.T, versions ...string) *server {
	t.Helper()
	s := newServer(coordinatorConfig{SearchConcurrency: 5}, newLogger("error"))

	for i, version := range versions {
		n := newFakeNode(t)
		info := cluster.NodeInfo{
			ID:      fmt.Sprintf("node-%02d", i),
			Addr:    n.srv.URL,
			Version: version,
		}
		if err := s.registry.Register(info); err != nil {
			t.Fatalf("Failed to register node: %v", err)
		}
	}
	return s
}

func intptr(n int) *int { return &n }

func do(t *testing.T, s *server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, r)
	return w
}

func createIndex(t *testing.T, s *server, name string, shards, replicas int) {
	t.Helper()
	body := createIndexRequest{Settings: indexSettings{NumberOfShards: &shards, NumberOfReplicas: &replicas}}
	w := do(t, s, http.MethodPut, "/"+name, body)
	if w.Code != http.StatusOK {
		t.Fatalf("Failed to create index: %d %s", w.Code, w.Body.String())
	}
}

func indexDocs(t *testing.T, s *server, index string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		doc := map[string]int{"n": i}
		w := do(t, s, http.MethodPut, fmt.Sprintf("/%s/_doc/doc-%02d", index, i), doc)
		if w.Code != http.StatusCreated {
			t.Fatalf("Failed to index doc %d: %d %s", i, w.Code, w.Body.String())
		}
	}
}

// TestSearchEndToEnd covers the happy path: create an index, spread
// documents across shards and nodes, and verify the merged response
// accounting matches what was indexed.
func TestSearchEndToEnd(t *testing.T) {
	s := newTestCluster(t, "8.1.0", "8.1.0", "8.1.0")
	createIndex(t, s, "events", 4, 1)
	indexDocs(t, s, "events", 16)

	w := do(t, s, http.MethodPost, "/events/_search", search.Request{Size: intptr(20)})
	if w.Code != http.StatusOK {
		t.Fatalf("Search failed: %d %s", w.Code, w.Body.String())
	}

	var resp search.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Shards.Total != 4 || resp.Shards.Successful != 4 || resp.Shards.Failed != 0 {
		t.Errorf("Unexpected shard accounting: %+v", resp.Shards)
	}
	if resp.Hits.Total.Value != 16 {
		t.Errorf("Expected 16 hits, got %d", resp.Hits.Total.Value)
	}
	if resp.Hits.Total.Relation != "eq" {
		t.Errorf("Expected relation eq, got %s", resp.Hits.Total.Relation)
	}
}

// TestSearchMinVersionSatisfied verifies that the gate passes when every
// node meets the minimum and ccs_minimize_roundtrips is explicitly false.
func TestSearchMinVersionSatisfied(t *testing.T) {
	s := newTestCluster(t, "8.1.0", "8.1.0")
	createIndex(t, s, "events", 2, 0)
	indexDocs(t, s, "events", 6)

	path := "/events/_search?min_compatible_shard_node=8.0.0&ccs_minimize_roundtrips=false"
	w := do(t, s, http.MethodPost, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Search failed: %d %s", w.Code, w.Body.String())
	}

	var resp search.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Hits.Total.Value != 6 {
		t.Errorf("Expected 6 hits, got %d", resp.Hits.Total.Value)
	}
}

// TestSearchVersionMismatch verifies the 500 envelope when a shard has no
// copy meeting the minimum version: exact leading bytes and the caused_by
// version mismatch, with no partial results.
func TestSearchVersionMismatch(t *testing.T) {
	s := newTestCluster(t, "8.0.0", "8.0.0")
	createIndex(t, s, "events", 2, 0)
	indexDocs(t, s, "events", 4)

	path := "/events/_search?min_compatible_shard_node=8.1.0&ccs_minimize_roundtrips=false"
	w := do(t, s, http.MethodPost, path, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	wantPrefix := `{"error":{"root_cause":[],"type":"search_phase_execution_exception"`
	if !strings.HasPrefix(body, wantPrefix) {
		t.Errorf("Expected body to start with %s, got %s", wantPrefix, body)
	}
	wantCause := `"caused_by":{"type":"version_mismatch_exception","reason":"One of the shards is incompatible with the required minimum version [8.1.0]"}`
	if !strings.Contains(body, wantCause) {
		t.Errorf("Expected caused_by %s in %s", wantCause, body)
	}
	if !strings.Contains(body, `"reason":"all shards failed"`) {
		t.Errorf("Expected all-shards-failed reason in %s", body)
	}
}

// TestSearchCcsConflict verifies the 400 validation envelope when a minimum
// version is combined with ccs_minimize_roundtrips=true, including the
// unset case where it defaults to true.
func TestSearchCcsConflict(t *testing.T) {
	s := newTestCluster(t, "8.1.0", "8.1.0")
	createIndex(t, s, "events", 2, 0)

	paths := []string{
		"/events/_search?min_compatible_shard_node=8.0.0",
		"/events/_search?min_compatible_shard_node=8.0.0&ccs_minimize_roundtrips=true",
	}
	for _, path := range paths {
		w := do(t, s, http.MethodPost, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d %s", path, w.Code, w.Body.String())
		}

		body := w.Body.String()
		wantPrefix := `{"error":{"root_cause":[{"type":"action_request_validation_exception"`
		if !strings.HasPrefix(body, wantPrefix) {
			t.Errorf("%s: expected body to start with %s, got %s", path, wantPrefix, body)
		}
		wantReason := "Validation Failed: 1: [ccs_minimize_roundtrips] cannot be [true] when setting a minimum compatible shard version;"
		if !strings.Contains(body, wantReason) {
			t.Errorf("%s: expected reason %q in %s", path, wantReason, body)
		}
	}
}

// TestSearchLegacyCluster verifies the unrecognized-parameter rejection when
// the oldest node predates the option, whatever ccs says.
func TestSearchLegacyCluster(t *testing.T) {
	s := newTestCluster(t, "7.17.0", "8.1.0")
	createIndex(t, s, "events", 2, 0)

	paths := []string{
		"/events/_search?min_compatible_shard_node=8.0.0",
		"/events/_search?min_compatible_shard_node=8.0.0&ccs_minimize_roundtrips=false",
	}
	for _, path := range paths {
		w := do(t, s, http.MethodPost, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d %s", path, w.Code, w.Body.String())
		}

		body := w.Body.String()
		if !strings.Contains(body, "contains unrecognized parameter: [min_compatible_shard_node]") {
			t.Errorf("%s: missing unrecognized parameter message in %s", path, body)
		}
		if !strings.Contains(body, `"type":"illegal_argument_exception"`) {
			t.Errorf("%s: expected illegal_argument_exception in %s", path, body)
		}
		// The reason names the request, path and parameters included.
		if !strings.Contains(body, "request ["+path+"]") {
			t.Errorf("%s: expected request path in reason, got %s", path, body)
		}
	}
}

// TestSearchInvalidParams verifies parse failures of the two options.
func TestSearchInvalidParams(t *testing.T) {
	s := newTestCluster(t, "8.1.0")
	createIndex(t, s, "events", 1, 0)

	cases := []string{
		"/events/_search?min_compatible_shard_node=banana",
		"/events/_search?ccs_minimize_roundtrips=maybe",
	}
	for _, path := range cases {
		w := do(t, s, http.MethodPost, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d %s", path, w.Code, w.Body.String())
		}
	}
}

// TestSearchUnknownIndex verifies the 404 envelope.
func TestSearchUnknownIndex(t *testing.T) {
	s := newTestCluster(t, "8.1.0")

	w := do(t, s, http.MethodPost, "/missing/_search", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"type":"index_not_found_exception"`) {
		t.Errorf("Expected index_not_found_exception in %s", w.Body.String())
	}
}

// TestCreateIndexLifecycle verifies creation, existence checks, and the
// duplicate rejection.
func TestCreateIndexLifecycle(t *testing.T) {
	s := newTestCluster(t, "8.1.0", "8.1.0")

	if w := do(t, s, http.MethodHead, "/events", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before creation, got %d", w.Code)
	}

	createIndex(t, s, "events", 2, 1)

	if w := do(t, s, http.MethodHead, "/events", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 after creation, got %d", w.Code)
	}

	shards, replicas := 2, 1
	body := createIndexRequest{Settings: indexSettings{NumberOfShards: &shards, NumberOfReplicas: &replicas}}
	w := do(t, s, http.MethodPut, "/events", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for duplicate index, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "resource_already_exists_exception") {
		t.Errorf("Expected resource_already_exists_exception in %s", w.Body.String())
	}
}

// TestIndexDocReplication verifies a write lands on both copies of its
// shard: drop one node and the document is still searchable from the other.
func TestIndexDocReplication(t *testing.T) {
	s := newTestCluster(t, "8.1.0", "8.1.0")
	createIndex(t, s, "events", 1, 1)

	w := do(t, s, http.MethodPut, "/events/_doc/doc-1", map[string]int{"n": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("Failed to index doc: %d %s", w.Code, w.Body.String())
	}

	var created struct {
		Shards search.Shards `json:"_shards"`
		Result string        `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode index response: %v", err)
	}
	if created.Result != "created" {
		t.Errorf("Expected result created, got %s", created.Result)
	}
	if created.Shards.Total != 2 || created.Shards.Successful != 2 {
		t.Errorf("Expected write on both copies, got %+v", created.Shards)
	}

	// With the primary's node gone, the replica still serves the doc.
	s.registry.Remove("node-00")

	sw := do(t, s, http.MethodPost, "/events/_search", nil)
	if sw.Code != http.StatusOK {
		t.Fatalf("Search after node loss failed: %d %s", sw.Code, sw.Body.String())
	}
	var resp search.Response
	if err := json.Unmarshal(sw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Hits.Total.Value != 1 {
		t.Errorf("Expected doc served by surviving copy, got %d hits", resp.Hits.Total.Value)
	}
}

// TestRegisterAndListNodes verifies the membership endpoints.
func TestRegisterAndListNodes(t *testing.T) {
	s := newServer(coordinatorConfig{SearchConcurrency: 5}, newLogger("error"))

	reg := cluster.RegisterRequest{Node: cluster.NodeInfo{ID: "node-1", Addr: "http://localhost:9999", Version: "8.1.0"}}
	if w := do(t, s, http.MethodPost, "/register", reg); w.Code != http.StatusNoContent {
		t.Fatalf("Register failed: %d %s", w.Code, w.Body.String())
	}

	bad := cluster.RegisterRequest{Node: cluster.NodeInfo{ID: "node-2", Addr: "http://x", Version: "nope"}}
	if w := do(t, s, http.MethodPost, "/register", bad); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid version, got %d", w.Code)
	}

	w := do(t, s, http.MethodGet, "/nodes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("List nodes failed: %d", w.Code)
	}
	var listed struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("Failed to decode node list: %v", err)
	}
	if listed.Count != 1 || listed.Nodes[0].ID != "node-1" {
		t.Errorf("Unexpected node list: %+v", listed)
	}
}
