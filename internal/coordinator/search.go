package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/strata/internal/search"
)

// DefaultMaxConcurrentShardRequests bounds the per-search shard fan-out when
// no limit is configured.
const DefaultMaxConcurrentShardRequests = 5

// Executor dispatches a shard-level search to the node hosting one copy of
// that shard. Implementations do the network round trip; the coordinator
// never talks to nodes directly.
type Executor interface {
	SearchShard(ctx context.Context, cp ShardCopy, req search.ShardRequest) (*search.ShardResult, error)
}

// OutcomeKind classifies how a shard's query ended.
type OutcomeKind int

const (
	// OutcomeSuccess means a copy was admitted and answered.
	OutcomeSuccess OutcomeKind = iota + 1
	// OutcomeVersionIncompatible means no copy satisfied the minimum
	// version constraint (and none of the admitted ones, if any, answered).
	OutcomeVersionIncompatible
	// OutcomeFailure means every admitted copy failed for a non-version
	// reason.
	OutcomeFailure
)

// ShardOutcome is the single final outcome of one shard's query, regardless
// of how many candidate copies were tried along the way.
type ShardOutcome struct {
	ID     ShardID
	Kind   OutcomeKind
	NodeID string
	Result *search.ShardResult
	Err    error
}

// AggregateResult combines the per-shard outcomes of one search. Total
// always equals the number of distinct shards targeted. Outcomes are in
// router order (ascending shard number), never completion order, so cause
// selection is deterministic across runs.
type AggregateResult struct {
	Total      int
	Successful int
	Failed     int
	Outcomes   []ShardOutcome
}

// Cause returns the representative failure of the aggregate: the first
// version-incompatible outcome in shard order if any exists, otherwise the
// first generic failure. Version mismatches win over generic failures so an
// upgrade-related refusal is never masked by an unrelated transient error.
func (a AggregateResult) Cause() error {
	for _, o := range a.Outcomes {
		if o.Kind == OutcomeVersionIncompatible {
			return o.Err
		}
	}
	for _, o := range a.Outcomes {
		if o.Kind == OutcomeFailure {
			return o.Err
		}
	}
	return nil
}

// SearchPhaseError is the aggregate failure of a search whose shard phase
// did not fully succeed. Any failed shard fails the whole search; there is
// no partial success with silently omitted shards.
type SearchPhaseError struct {
	Phase     string
	Aggregate AggregateResult
	Cause     error
}

func (e *SearchPhaseError) Error() string {
	if e.Aggregate.Failed == e.Aggregate.Total {
		return "all shards failed"
	}
	return "partial shards failure"
}

func (e *SearchPhaseError) Unwrap() error { return e.Cause }

// SearchCoordinator orchestrates one search: validate, route, gate and
// dispatch per shard, then aggregate. Shards are queried concurrently up to
// maxConcurrent; within a shard, candidate copies form a sequential fallback
// chain.
type SearchCoordinator struct {
	registry      *NodeRegistry
	router        *ShardRouter
	executor      Executor
	maxConcurrent int
	log           *logrus.Logger
}

// NewSearchCoordinator wires a search coordinator. maxConcurrent <= 0 uses
// DefaultMaxConcurrentShardRequests.
func NewSearchCoordinator(registry *NodeRegistry, router *ShardRouter, executor Executor, maxConcurrent int, log *logrus.Logger) *SearchCoordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentShardRequests
	}
	if log == nil {
		log = logrus.New()
	}
	return &SearchCoordinator{
		registry:      registry,
		router:        router,
		executor:      executor,
		maxConcurrent: maxConcurrent,
		log:           log,
	}
}

// Execute runs one search against an index under the given constraints.
//
// The search is a small state machine:
//
//  1. Validating: constraints are checked against each other and the
//     topology snapshot; a failure here is terminal and nothing is
//     dispatched.
//  2. Routing: the index resolves to shards and ordered candidate copies;
//     a failure here is also terminal and pre-dispatch.
//  3. Gating+Dispatch: each shard walks its candidates through the version
//     gate and the executor until one answers or all are exhausted.
//  4. Aggregating: outcomes reduce to either a merged response or a single
//     *SearchPhaseError whose cause follows shard order.
func (c *SearchCoordinator) Execute(ctx context.Context, index string, req search.Request, constraints SearchConstraints) (*search.Response, error) {
	start := time.Now()
	topo := c.registry.Snapshot()

	if err := ValidateConstraints(constraints, topo); err != nil {
		return nil, err
	}

	routes, err := c.router.Route(index, topo)
	if err != nil {
		return nil, err
	}

	outcomes := c.dispatch(ctx, routes, req, constraints)
	agg := reduce(outcomes)

	if agg.Failed > 0 {
		cause := agg.Cause()
		c.log.WithFields(logrus.Fields{
			"index":  index,
			"failed": agg.Failed,
			"total":  agg.Total,
		}).Warn("search phase failed")
		return nil, &SearchPhaseError{Phase: "query", Aggregate: agg, Cause: cause}
	}

	return c.merge(req, agg, time.Since(start)), nil
}

// dispatch fans the shard queries out, bounded by maxConcurrent. Outcomes
// land in route order: the slice index, not completion order, decides where
// a result is stored.
func (c *SearchCoordinator) dispatch(ctx context.Context, routes []ShardRoute, req search.Request, constraints SearchConstraints) []ShardOutcome {
	shardReq := search.ShardRequest{
		Query:         req.Query,
		IncludeSource: req.WantSource(),
		Size:          req.WantSize(),
	}

	outcomes := make([]ShardOutcome, len(routes))
	sem := make(chan struct{}, c.maxConcurrent)
	var wg sync.WaitGroup

	for i, route := range routes {
		wg.Add(1)
		go func(i int, route ShardRoute) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sr := shardReq
			sr.Index = route.ID.Index
			sr.Shard = route.ID.Shard
			outcomes[i] = c.searchShard(ctx, route, sr, constraints)
		}(i, route)
	}
	wg.Wait()
	return outcomes
}

// searchShard walks one shard's candidate copies in order. The gate runs
// before any dispatch, so a copy that would be rejected never costs a round
// trip. A version rejection is never retried against the same copy but falls
// through to the next candidate; a non-version failure likewise falls
// through (the ordinary primary-to-replica retry). The shard's final outcome
// is version-incompatible when no candidate answered and at least one was
// version-rejected, which keeps upgrade refusals visible in the aggregate.
func (c *SearchCoordinator) searchShard(ctx context.Context, route ShardRoute, req search.ShardRequest, constraints SearchConstraints) ShardOutcome {
	var firstMismatch *VersionMismatchError
	var lastErr error
	var lastNode string

	for _, cp := range route.Copies {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		if rej := AdmitCopy(cp, constraints); rej != nil {
			if firstMismatch == nil {
				firstMismatch = rej
			}
			c.log.WithFields(logrus.Fields{
				"shard":    route.ID.String(),
				"node":     cp.Node.ID,
				"version":  cp.Node.Version,
				"required": constraints.MinCompatibleShardNode,
			}).Debug("shard copy rejected by version gate")
			continue
		}

		result, err := c.executor.SearchShard(ctx, cp, req)
		if err != nil {
			lastErr = err
			lastNode = cp.Node.ID
			c.log.WithFields(logrus.Fields{
				"shard": route.ID.String(),
				"node":  cp.Node.ID,
			}).WithError(err).Debug("shard copy query failed, trying next candidate")
			continue
		}
		return ShardOutcome{ID: route.ID, Kind: OutcomeSuccess, NodeID: cp.Node.ID, Result: result}
	}

	if firstMismatch != nil {
		return ShardOutcome{ID: route.ID, Kind: OutcomeVersionIncompatible, NodeID: firstMismatch.NodeID, Err: firstMismatch}
	}
	if lastErr == nil {
		// Route guarantees at least one copy, so this only happens when a
		// caller hands in an empty route by mistake.
		lastErr = &RoutingError{Index: route.ID.Index, Shard: route.ID.Shard, Err: ErrNoAvailableCopy}
	}
	return ShardOutcome{ID: route.ID, Kind: OutcomeFailure, NodeID: lastNode, Err: lastErr}
}

// reduce folds outcomes into aggregate counts. Outcomes stay in shard order.
func reduce(outcomes []ShardOutcome) AggregateResult {
	agg := AggregateResult{Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Kind == OutcomeSuccess {
			agg.Successful++
		} else {
			agg.Failed++
		}
	}
	return agg
}

// merge builds the client response from an all-successful aggregate. Hits
// are concatenated in shard order and truncated to the requested size, so
// repeated runs against the same data return the same page.
func (c *SearchCoordinator) merge(req search.Request, agg AggregateResult, took time.Duration) *search.Response {
	size := req.WantSize()
	total := 0
	hits := make([]search.Hit, 0, size)
	var maxScore *float64

	for _, o := range agg.Outcomes {
		total += o.Result.Total
		for _, h := range o.Result.Hits {
			if len(hits) < size {
				hits = append(hits, h)
			}
			if maxScore == nil || h.Score > *maxScore {
				score := h.Score
				maxScore = &score
			}
		}
	}

	return &search.Response{
		Took: took.Milliseconds(),
		Shards: search.Shards{
			Total:      agg.Total,
			Successful: agg.Successful,
		},
		Hits: search.Hits{
			Total:    search.TotalHits{Value: total, Relation: "eq"},
			MaxScore: maxScore,
			Hits:     hits,
		},
	}
}
