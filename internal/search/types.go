// Package search defines the wire types of the Strata search API: request
// bodies, shard-level sub-requests, merged responses, and the error envelopes
// returned to clients. The JSON shapes are compatibility surface; field order
// and exact reason strings are relied upon by clients that match on raw
// bodies, so the structs here are ordered deliberately.
package search

import "encoding/json"

// DefaultSize is the number of hits returned when a request does not set one.
const DefaultSize = 10

// Request is the parsed body of a search request. An empty body is a
// match_all search returning sources.
type Request struct {
	Query  *Query `json:"query,omitempty"`
	Source *bool  `json:"_source,omitempty"`
	Size   *int   `json:"size,omitempty"`
}

// WantSource reports whether hit sources should be returned.
func (r Request) WantSource() bool {
	return r.Source == nil || *r.Source
}

// WantSize returns the requested page size, or DefaultSize.
func (r Request) WantSize() int {
	if r.Size == nil || *r.Size < 0 {
		return DefaultSize
	}
	return *r.Size
}

// Query is the supported query container. Only match_all is implemented;
// an absent query defaults to match_all.
type Query struct {
	MatchAll *MatchAllQuery `json:"match_all,omitempty"`
}

// MatchAllQuery matches every document in the index.
type MatchAllQuery struct{}

// ShardRequest is the sub-request the coordinator dispatches to the node
// hosting one shard copy.
type ShardRequest struct {
	Index         string `json:"index"`
	Shard         int    `json:"shard"`
	Query         *Query `json:"query,omitempty"`
	IncludeSource bool   `json:"include_source"`
	Size          int    `json:"size"`
}

// Hit is one matching document.
type Hit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source,omitempty"`
}

// ShardResult is what one shard copy returns for a ShardRequest.
type ShardResult struct {
	Shard int   `json:"shard"`
	Total int   `json:"total"`
	Hits  []Hit `json:"hits"`
}

// Shards summarizes per-shard fan-out accounting in a response.
// Total always equals the number of distinct shards targeted, no matter how
// many copies were tried per shard.
type Shards struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// TotalHits is the hit count with its relation ("eq" when exact).
type TotalHits struct {
	Value    int    `json:"value"`
	Relation string `json:"relation"`
}

// Hits is the hits section of a response.
type Hits struct {
	Total    TotalHits `json:"total"`
	MaxScore *float64  `json:"max_score"`
	Hits     []Hit     `json:"hits"`
}

// Response is a successful search response.
type Response struct {
	Took     int64  `json:"took"`
	TimedOut bool   `json:"timed_out"`
	Shards   Shards `json:"_shards"`
	Hits     Hits   `json:"hits"`
}
