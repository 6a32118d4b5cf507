package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/strata/internal/cluster"
	"github.com/dreamware/strata/internal/coordinator"
	"github.com/dreamware/strata/internal/search"
)

// handleRegister adds or refreshes a node in the cluster topology.
//
// Endpoint: POST /register
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid register request", http.StatusBadRequest)
		return
	}
	if err := s.registry.Register(req.Node); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListNodes returns the current topology snapshot.
//
// Endpoint: GET /nodes
func (s *server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	topo := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, struct {
		Nodes      []cluster.NodeInfo `json:"nodes"`
		Count      int                `json:"count"`
		Generation uint64             `json:"generation"`
	}{Nodes: topo.Nodes, Count: topo.Size(), Generation: topo.Gen})
}

// handleHealth reports coordinator liveness.
//
// Endpoint: GET /health
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Nodes  int    `json:"nodes"`
	}{Status: "ok", Nodes: s.registry.Len()})
}

type indexSettings struct {
	NumberOfShards   *int `json:"number_of_shards"`
	NumberOfReplicas *int `json:"number_of_replicas"`
}

type createIndexRequest struct {
	Settings indexSettings `json:"settings"`
}

// handleCreateIndex creates an index and assigns its shard copies across the
// registered nodes. Shard and replica counts default to 1 each when the
// settings omit them.
//
// Endpoint: PUT /{index}
func (s *server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")

	var req createIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, newEnvelope(search.TypeIllegalArgument, "invalid index settings body", http.StatusBadRequest))
		return
	}

	meta := coordinator.IndexMetadata{Name: index, NumShards: 1, NumReplicas: 1}
	if req.Settings.NumberOfShards != nil {
		meta.NumShards = *req.Settings.NumberOfShards
	}
	if req.Settings.NumberOfReplicas != nil {
		meta.NumReplicas = *req.Settings.NumberOfReplicas
	}

	if err := s.indices.CreateIndex(meta, s.registry.Snapshot()); err != nil {
		switch {
		case errors.Is(err, coordinator.ErrIndexExists):
			writeError(w, newEnvelope("resource_already_exists_exception", err.Error(), http.StatusBadRequest))
		case errors.Is(err, coordinator.ErrNoNodes):
			writeError(w, newEnvelope(search.TypeNoShardAvailable, err.Error(), http.StatusServiceUnavailable))
		default:
			writeError(w, newEnvelope(search.TypeIllegalArgument, err.Error(), http.StatusBadRequest))
		}
		return
	}

	s.log.WithFields(logrus.Fields{
		"index":    index,
		"shards":   meta.NumShards,
		"replicas": meta.NumReplicas,
	}).Info("index created")

	writeJSON(w, http.StatusOK, struct {
		Acknowledged       bool   `json:"acknowledged"`
		ShardsAcknowledged bool   `json:"shards_acknowledged"`
		Index              string `json:"index"`
	}{Acknowledged: true, ShardsAcknowledged: true, Index: index})
}

// handleIndexExists reports index existence with a bare status code.
//
// Endpoint: HEAD /{index}
func (s *server) handleIndexExists(w http.ResponseWriter, r *http.Request) {
	if s.indices.Exists(r.PathValue("index")) {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

// handleIndexDoc stores one document. The document ID hashes to a shard and
// the write replicates to every live copy of that shard, primary first, so
// any copy can later serve searches over it.
//
// Endpoint: PUT /{index}/_doc/{id}
func (s *server) handleIndexDoc(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	docID := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, newEnvelope(search.TypeIllegalArgument, "failed to read document body", http.StatusBadRequest))
		return
	}
	if !json.Valid(body) {
		writeError(w, newEnvelope(search.TypeIllegalArgument, "document body is not valid JSON", http.StatusBadRequest))
		return
	}

	if !s.indices.Exists(index) {
		writeError(w, search.NewIndexNotFound(index))
		return
	}

	shardNum, err := s.indices.ShardForDoc(index, docID)
	if err != nil {
		writeError(w, search.NewIndexNotFound(index))
		return
	}

	route, err := s.router.RouteShard(index, shardNum, s.registry.Snapshot())
	if err != nil {
		writeError(w, newEnvelope(search.TypeNoShardAvailable, err.Error(), http.StatusServiceUnavailable))
		return
	}

	successful := 0
	var lastErr error
	for _, cp := range route.Copies {
		docReq := cluster.ShardDocRequest{
			Index:   index,
			Shard:   shardNum,
			Primary: cp.Primary,
			DocID:   docID,
			Doc:     body,
		}
		if err := cluster.PutJSON(r.Context(), cp.Node.Addr+"/shards/docs", docReq, nil); err != nil {
			lastErr = err
			s.log.WithFields(logrus.Fields{
				"index": index,
				"shard": shardNum,
				"node":  cp.Node.ID,
			}).WithError(err).Warn("shard copy write failed")
			continue
		}
		successful++
	}

	// The write must land on the primary's copy chain; all-copy failure
	// means the document is nowhere.
	if successful == 0 {
		reason := "failed to write document to any shard copy"
		if lastErr != nil {
			reason += ": " + lastErr.Error()
		}
		writeError(w, newEnvelope(search.TypeGenericException, reason, http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Index   string        `json:"_index"`
		ID      string        `json:"_id"`
		Version int           `json:"_version"`
		Result  string        `json:"result"`
		Shards  search.Shards `json:"_shards"`
	}{
		Index:   index,
		ID:      docID,
		Version: 1,
		Result:  "created",
		Shards: search.Shards{
			Total:      len(route.Copies),
			Successful: successful,
			Failed:     len(route.Copies) - successful,
		},
	})
}

// handleSearch runs a distributed search over one index.
//
// Endpoint: POST /{index}/_search
//
// Query parameters:
//   - min_compatible_shard_node: semantic version; shard copies on older
//     nodes are skipped, and the search fails if any shard has no
//     new-enough copy
//   - ccs_minimize_roundtrips: defaults to true; must be explicitly false
//     when a minimum version is set
func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")
	params := r.URL.Query()

	constraints := coordinator.SearchConstraints{CcsMinimizeRoundtrips: true}

	if raw := params.Get(coordinator.OptionMinCompatibleShardNode); raw != "" {
		v, err := semver.NewVersion(raw)
		if err != nil {
			reason := "failed to parse [" + coordinator.OptionMinCompatibleShardNode + "] value [" + raw + "] as a version"
			writeError(w, newEnvelope(search.TypeIllegalArgument, reason, http.StatusBadRequest))
			return
		}
		constraints.MinCompatibleShardNode = v
	}

	if raw := params.Get(coordinator.OptionCcsMinimizeRoundtrips); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			reason := "failed to parse [" + coordinator.OptionCcsMinimizeRoundtrips + "] value [" + raw + "] as a boolean"
			writeError(w, newEnvelope(search.TypeIllegalArgument, reason, http.StatusBadRequest))
			return
		}
		constraints.CcsMinimizeRoundtrips = b
	}

	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, newEnvelope(search.TypeIllegalArgument, "invalid search request body", http.StatusBadRequest))
		return
	}

	resp, err := s.searcher.Execute(r.Context(), index, req, constraints)
	if err != nil {
		s.writeSearchError(w, r, index, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeSearchError maps a search failure onto its wire envelope. The
// classification mirrors where the failure arose: validation and routing
// failures reject the request before dispatch (4xx), shard phase failures
// report execution trouble (5xx).
func (s *server) writeSearchError(w http.ResponseWriter, r *http.Request, index string, err error) {
	var ve *coordinator.ValidationError
	if errors.As(err, &ve) {
		writeError(w, search.NewValidationFailure(ve.Error()))
		return
	}

	var ue *coordinator.UnsupportedOptionError
	if errors.As(err, &ue) {
		writeError(w, search.NewUnrecognizedParameter(r.URL.RequestURI(), ue.Param))
		return
	}

	var re *coordinator.RoutingError
	if errors.As(err, &re) {
		if errors.Is(re, coordinator.ErrIndexNotFound) {
			writeError(w, search.NewIndexNotFound(index))
			return
		}
		writeError(w, newEnvelope(search.TypeNoShardAvailable, re.Error(), http.StatusServiceUnavailable))
		return
	}

	var pe *coordinator.SearchPhaseError
	if errors.As(err, &pe) {
		failures := make([]search.ShardFailure, 0, pe.Aggregate.Failed)
		for _, o := range pe.Aggregate.Outcomes {
			if o.Kind == coordinator.OutcomeSuccess {
				continue
			}
			failures = append(failures, search.ShardFailure{
				Shard:  o.ID.Shard,
				Index:  o.ID.Index,
				Node:   o.NodeID,
				Reason: causeFor(o.Err),
			})
		}
		writeError(w, search.NewSearchPhaseFailure(pe.Phase, pe.Error(), failures, causeFor(pe.Cause)))
		return
	}

	writeError(w, newEnvelope(search.TypeGenericException, err.Error(), http.StatusInternalServerError))
}

// causeFor types an execution error for the wire. Version mismatches keep
// their dedicated type so clients can distinguish upgrade refusals from
// ordinary shard failures.
func causeFor(err error) search.ErrorCause {
	if err == nil {
		return search.ErrorCause{Type: search.TypeGenericException, Reason: "unknown failure"}
	}
	var vm *coordinator.VersionMismatchError
	if errors.As(err, &vm) {
		return search.ErrorCause{Type: search.TypeVersionMismatch, Reason: vm.Error()}
	}
	return search.ErrorCause{Type: search.TypeGenericException, Reason: err.Error()}
}

func newEnvelope(typ, reason string, status int) search.ErrorBody {
	cause := search.ErrorCause{Type: typ, Reason: reason}
	return search.ErrorBody{
		Error: search.ErrorDetails{
			RootCause: []search.ErrorCause{cause},
			Type:      typ,
			Reason:    reason,
		},
		Status: status,
	}
}

func writeError(w http.ResponseWriter, body search.ErrorBody) {
	writeJSON(w, body.Status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
