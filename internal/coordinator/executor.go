package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/dreamware/strata/internal/cluster"
	"github.com/dreamware/strata/internal/search"
)

// HTTPExecutor dispatches shard searches to nodes over HTTP. Each node gets
// its own circuit breaker: a node that keeps timing out stops being dialed
// for a cooldown window, and its shards fall through to replica copies on
// other nodes instead of stalling every search.
type HTTPExecutor struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	log      *logrus.Logger
}

// NewHTTPExecutor creates an executor with per-node circuit breaking.
func NewHTTPExecutor(log *logrus.Logger) *HTTPExecutor {
	if log == nil {
		log = logrus.New()
	}
	return &HTTPExecutor{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      log,
	}
}

// SearchShard implements Executor by POSTing the shard request to the
// owning node's /shards/search endpoint through that node's breaker.
func (e *HTTPExecutor) SearchShard(ctx context.Context, cp ShardCopy, req search.ShardRequest) (*search.ShardResult, error) {
	cb := e.breakerFor(cp.Node.ID)

	out, err := cb.Execute(func() (interface{}, error) {
		var result search.ShardResult
		if err := cluster.PostJSON(ctx, cp.Node.Addr+"/shards/search", req, &result); err != nil {
			return nil, err
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*search.ShardResult), nil
}

// breakerFor returns the circuit breaker for a node, creating it on first
// use. Breakers survive topology changes; a node that re-registers keeps its
// failure history until the interval rolls over.
func (e *HTTPExecutor) breakerFor(nodeID string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[nodeID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        nodeID,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.log.WithFields(logrus.Fields{
				"node": name,
				"from": from.String(),
				"to":   to.String(),
			}).Warn("node circuit breaker state change")
		},
	})
	e.breakers[nodeID] = cb
	return cb
}
