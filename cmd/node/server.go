package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/strata/internal/cluster"
	"github.com/dreamware/strata/internal/search"
	"github.com/dreamware/strata/internal/shard"
	"github.com/dreamware/strata/internal/storage"
)

type nodeConfig struct {
	ID          string
	Listen      string
	Addr        string
	Coordinator string
	Version     string
	DataDir     string
	LogLevel    string
}

// node holds the runtime state of one data node: its identity and the shard
// copies it hosts. Copies are created on demand the first time the
// coordinator routes a write or search to them, so no explicit assignment
// protocol is needed between coordinator and node.
type node struct {
	info cluster.NodeInfo
	cfg  nodeConfig
	log  *logrus.Logger

	mu     sync.RWMutex
	shards map[string]*shard.Shard // keyed by index/shard
}

func newNode(cfg nodeConfig, log *logrus.Logger) *node {
	return &node{
		info: cluster.NodeInfo{
			ID:      cfg.ID,
			Addr:    cfg.Addr,
			Version: cfg.Version,
		},
		cfg:    cfg,
		log:    log,
		shards: make(map[string]*shard.Shard),
	}
}

func shardKey(index string, id int) string {
	return fmt.Sprintf("%s/%d", index, id)
}

// getOrCreateShard returns the local copy of [index][id], opening its store
// on first use. Primary status is recorded from whichever request created
// the copy; it only affects listings, not behavior.
func (n *node) getOrCreateShard(index string, id int, primary bool) (*shard.Shard, error) {
	key := shardKey(index, id)

	n.mu.RLock()
	s := n.shards[key]
	n.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if s := n.shards[key]; s != nil {
		return s, nil
	}

	path := ""
	if n.cfg.DataDir != "" {
		path = filepath.Join(n.cfg.DataDir, index, fmt.Sprintf("%d", id))
	}
	store, err := storage.OpenBadger(path)
	if err != nil {
		return nil, fmt.Errorf("open store for [%s][%d]: %w", index, id, err)
	}

	s = shard.New(index, id, primary, store)
	n.shards[key] = s
	n.log.WithFields(logrus.Fields{
		"index":   index,
		"shard":   id,
		"primary": primary,
	}).Info("shard copy created on demand")
	return s, nil
}

func (n *node) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /info", n.handleInfo)
	mux.HandleFunc("GET /shards", n.handleListShards)
	mux.HandleFunc("POST /shards/search", n.handleShardSearch)
	mux.HandleFunc("PUT /shards/docs", n.handleShardDoc)
	return mux
}

// handleInfo reports the node's identity. The coordinator's health monitor
// reads this to detect version changes after a restart.
func (n *node) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, n.info)
}

func (n *node) handleListShards(w http.ResponseWriter, _ *http.Request) {
	n.mu.RLock()
	copies := make([]*shard.Shard, 0, len(n.shards))
	for _, s := range n.shards {
		copies = append(copies, s)
	}
	n.mu.RUnlock()

	infos := make([]shard.Info, 0, len(copies))
	for _, s := range copies {
		info, err := s.Describe()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		infos = append(infos, info)
	}

	writeJSON(w, http.StatusOK, struct {
		Shards []shard.Info `json:"shards"`
		Count  int          `json:"count"`
	}{Shards: infos, Count: len(infos)})
}

// handleShardSearch executes one shard-level search and returns the shard's
// hits and total. The coordinator merges results across shards.
func (n *node) handleShardSearch(w http.ResponseWriter, r *http.Request) {
	var req search.ShardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid shard search request", http.StatusBadRequest)
		return
	}

	s, err := n.getOrCreateShard(req.Index, req.Shard, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result, err := s.Search(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleShardDoc stores one replicated document write on the local copy.
func (n *node) handleShardDoc(w http.ResponseWriter, r *http.Request) {
	var req cluster.ShardDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid shard doc request", http.StatusBadRequest)
		return
	}
	if req.Index == "" || req.DocID == "" {
		http.Error(w, "index and doc_id are required", http.StatusBadRequest)
		return
	}

	s, err := n.getOrCreateShard(req.Index, req.Shard, req.Primary)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.PutDoc(req.DocID, req.Doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// register announces the node to the coordinator, retrying to ride out
// coordinator startup. Registration failure is fatal: an unregistered node
// never receives traffic.
func (n *node) register(ctx context.Context) error {
	body := cluster.RegisterRequest{Node: n.info}
	var lastErr error
	for i := 0; i < 10; i++ {
		lastErr = cluster.PostJSON(ctx, n.cfg.Coordinator+"/register", body, nil)
		if lastErr == nil {
			n.log.WithField("coordinator", n.cfg.Coordinator).Info("registered with coordinator")
			return nil
		}
		n.log.WithFields(logrus.Fields{
			"attempt": i + 1,
			"error":   lastErr,
		}).Warn("registration failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(400 * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to register with coordinator: %w", lastErr)
}

func (n *node) closeShards() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for key, s := range n.shards {
		if err := s.Close(); err != nil {
			n.log.WithFields(logrus.Fields{"shard": key, "error": err}).Warn("failed to close shard")
		}
	}
	n.shards = make(map[string]*shard.Shard)
}

func runNode(ctx context.Context, cfg nodeConfig) error {
	cfg.ID = nodeID(cfg.ID)
	log := newLogger(cfg.LogLevel)

	if _, err := (cluster.NodeInfo{ID: cfg.ID, Version: cfg.Version}).SemVer(); err != nil {
		return err
	}

	nd := newNode(cfg, log)
	defer nd.closeShards()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           nd.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"node":    cfg.ID,
			"listen":  cfg.Listen,
			"addr":    cfg.Addr,
			"version": cfg.Version,
		}).Info("node listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if err := nd.register(ctx); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}
	log.Info("node stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
