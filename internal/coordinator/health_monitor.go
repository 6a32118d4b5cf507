package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/strata/internal/cluster"
)

// NodeHealth tracks the probe history for a single node.
// Thread-safe: protected by HealthMonitor's mutex when accessed.
type NodeHealth struct {
	LastCheck        time.Time // Timestamp of the last probe attempt
	LastHealthy      time.Time // Timestamp of the last successful probe
	NodeID           string    // Unique identifier of the node
	Status           string    // Current status: "healthy", "unhealthy", "unknown"
	ConsecutiveFails int       // Number of consecutive failed probes
}

// HealthMonitor periodically probes every registered node's /info endpoint.
// A successful probe returns the node's self-reported identity, which the
// monitor feeds back into the registry so version changes from a node
// restarting mid-upgrade are picked up without re-registration. A node that
// fails maxFailures probes in a row is evicted from the registry so the
// router stops handing out its copies.
//
// Thread-safe: all methods are safe for concurrent access.
type HealthMonitor struct {
	registry    *NodeRegistry                                // Registry to refresh and evict from
	nodes       map[string]*NodeHealth                       // Probe history per node
	probeFunc   func(addr string) (*cluster.NodeInfo, error) // Probe implementation, overridable in tests
	onEvict     func(nodeID string)                          // Optional callback after eviction
	ctx         context.Context                              // Internal context for Stop
	cancel      context.CancelFunc                           // Cancels the monitoring loop
	log         *logrus.Logger                               // Structured logger
	interval    time.Duration                                // How often to probe
	timeout     time.Duration                                // Per-probe HTTP timeout
	mu          sync.RWMutex                                 // Protects nodes map
	wg          sync.WaitGroup                               // For graceful shutdown
	maxFailures int                                          // Consecutive failures before eviction
}

// NewHealthMonitor creates a monitor that probes each registered node every
// interval and evicts nodes after 3 consecutive failed probes.
func NewHealthMonitor(registry *NodeRegistry, interval time.Duration, log *logrus.Logger) *HealthMonitor {
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &HealthMonitor{
		registry:    registry,
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		nodes:       make(map[string]*NodeHealth),
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
	h.probeFunc = h.defaultProbe
	return h
}

// SetOnEvict sets a callback invoked (in its own goroutine) after a node has
// been evicted from the registry.
func (h *HealthMonitor) SetOnEvict(callback func(nodeID string)) {
	h.onEvict = callback
}

// SetProbeFunction overrides the default /info probe. Used in tests.
func (h *HealthMonitor) SetProbeFunction(probe func(addr string) (*cluster.NodeInfo, error)) {
	h.probeFunc = probe
}

// Start runs the monitoring loop until the context is canceled or Stop is
// called. It blocks; run it in a goroutine.
func (h *HealthMonitor) Start(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.WithField("interval", h.interval).Info("health monitor started")

	// Probe immediately so a fresh cluster converges without waiting a tick.
	h.checkAllNodes()

	for {
		select {
		case <-ticker.C:
			h.checkAllNodes()
		case <-ctx.Done():
			h.log.Info("health monitor stopping")
			return
		case <-h.ctx.Done():
			h.log.Info("health monitor stopping")
			return
		}
	}
}

// Stop cancels the monitoring loop and waits for it to finish.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

// checkAllNodes probes every node in the current topology snapshot and drops
// probe history for nodes that have left the cluster.
func (h *HealthMonitor) checkAllNodes() {
	topo := h.registry.Snapshot()

	current := make(map[string]bool, len(topo.Nodes))
	for _, node := range topo.Nodes {
		current[node.ID] = true
		h.checkNode(node)
	}

	h.mu.Lock()
	for nodeID := range h.nodes {
		if !current[nodeID] {
			delete(h.nodes, nodeID)
		}
	}
	h.mu.Unlock()
}

// checkNode probes a single node and updates its health record. A successful
// probe that reports a different version than the registry holds triggers a
// re-registration with the new version. Crossing the failure threshold
// evicts the node.
func (h *HealthMonitor) checkNode(node cluster.NodeInfo) {
	h.mu.Lock()
	health, exists := h.nodes[node.ID]
	if !exists {
		health = &NodeHealth{
			NodeID:      node.ID,
			Status:      "unknown",
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.nodes[node.ID] = health
	}
	h.mu.Unlock()

	info, err := h.probeFunc(node.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		h.log.WithFields(logrus.Fields{
			"node":    node.ID,
			"attempt": health.ConsecutiveFails,
			"max":     h.maxFailures,
			"error":   err,
		}).Warn("node probe failed")

		if health.ConsecutiveFails >= h.maxFailures && health.Status != "unhealthy" {
			health.Status = "unhealthy"
			h.registry.Remove(node.ID)
			h.log.WithField("node", node.ID).Warn("node evicted after repeated probe failures")
			if h.onEvict != nil {
				// Run outside the lock.
				go h.onEvict(node.ID)
			}
		}
		return
	}

	if health.Status == "unhealthy" {
		h.log.WithField("node", node.ID).Info("node recovered")
	}
	health.Status = "healthy"
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()

	// A node restarted with a new build reports a new version; fold it back
	// into the registry so version gating sees the upgraded node.
	if info != nil && info.Version != node.Version {
		updated := node
		updated.Version = info.Version
		if err := h.registry.Register(updated); err != nil {
			h.log.WithFields(logrus.Fields{
				"node":  node.ID,
				"error": err,
			}).Warn("failed to refresh node version")
		} else {
			h.log.WithFields(logrus.Fields{
				"node": node.ID,
				"from": node.Version,
				"to":   info.Version,
			}).Info("node version refreshed")
		}
	}
}

// defaultProbe fetches the node's /info endpoint and decodes its
// self-reported identity.
func (h *HealthMonitor) defaultProbe(addr string) (*cluster.NodeInfo, error) {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = fmt.Sprintf("http://%s", url)
	}
	url = strings.TrimRight(url, "/") + "/info"

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var info cluster.NodeInfo
	if err := cluster.GetJSON(ctx, url, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetNodeHealth returns a copy of the health record for a node, or nil if
// the node is not being monitored.
func (h *HealthMonitor) GetNodeHealth(nodeID string) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// IsHealthy reports whether a node's last probes succeeded. Unknown nodes
// are not healthy.
func (h *HealthMonitor) IsHealthy(nodeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	if !exists {
		return false
	}
	return health.Status == "healthy"
}
