package search

import "fmt"

// Error type identifiers carried in error envelopes. Clients match on these
// strings, so they are part of the wire contract.
const (
	TypeValidation       = "action_request_validation_exception"
	TypeIllegalArgument  = "illegal_argument_exception"
	TypeIndexNotFound    = "index_not_found_exception"
	TypeNoShardAvailable = "no_shard_available_action_exception"
	TypeSearchPhase      = "search_phase_execution_exception"
	TypeVersionMismatch  = "version_mismatch_exception"
	TypeGenericException = "exception"
)

// ErrorCause is one typed reason inside an error envelope. Field order is
// deliberate: type precedes reason in the encoded JSON.
type ErrorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ShardFailure describes one failed shard inside a search phase error.
type ShardFailure struct {
	Shard  int        `json:"shard"`
	Index  string     `json:"index"`
	Node   string     `json:"node,omitempty"`
	Reason ErrorCause `json:"reason"`
}

// ErrorDetails is the "error" object of an error envelope. root_cause is
// always present (an empty array for search phase errors), and caused_by is
// appended last, matching the field order clients scan for.
type ErrorDetails struct {
	RootCause    []ErrorCause   `json:"root_cause"`
	Type         string         `json:"type"`
	Reason       string         `json:"reason"`
	Phase        string         `json:"phase,omitempty"`
	Grouped      *bool          `json:"grouped,omitempty"`
	FailedShards []ShardFailure `json:"failed_shards,omitempty"`
	CausedBy     *ErrorCause    `json:"caused_by,omitempty"`
}

// ErrorBody is a complete error response body.
type ErrorBody struct {
	Error  ErrorDetails `json:"error"`
	Status int          `json:"status"`
}

// NewValidationFailure builds the 400 envelope for a request that failed
// validation. The reason carries the full "Validation Failed: ..." message
// and is repeated in root_cause.
func NewValidationFailure(reason string) ErrorBody {
	cause := ErrorCause{Type: TypeValidation, Reason: reason}
	return ErrorBody{
		Error: ErrorDetails{
			RootCause: []ErrorCause{cause},
			Type:      TypeValidation,
			Reason:    reason,
		},
		Status: 400,
	}
}

// NewUnrecognizedParameter builds the 400 envelope a legacy cluster returns
// when a request names an option its oldest node does not understand at all.
func NewUnrecognizedParameter(path, param string) ErrorBody {
	reason := fmt.Sprintf("request [%s] contains unrecognized parameter: [%s]", path, param)
	cause := ErrorCause{Type: TypeIllegalArgument, Reason: reason}
	return ErrorBody{
		Error: ErrorDetails{
			RootCause: []ErrorCause{cause},
			Type:      TypeIllegalArgument,
			Reason:    reason,
		},
		Status: 400,
	}
}

// NewIndexNotFound builds the 404 envelope for a search against a missing
// index.
func NewIndexNotFound(index string) ErrorBody {
	reason := fmt.Sprintf("no such index [%s]", index)
	cause := ErrorCause{Type: TypeIndexNotFound, Reason: reason}
	return ErrorBody{
		Error: ErrorDetails{
			RootCause: []ErrorCause{cause},
			Type:      TypeIndexNotFound,
			Reason:    reason,
		},
		Status: 404,
	}
}

// NewSearchPhaseFailure builds the 500 envelope for a search that failed
// during shard execution. root_cause is intentionally an empty array here:
// the representative cause travels in caused_by instead, and clients match
// on the literal `"root_cause":[]` prefix.
func NewSearchPhaseFailure(phase, reason string, failures []ShardFailure, cause ErrorCause) ErrorBody {
	grouped := true
	return ErrorBody{
		Error: ErrorDetails{
			RootCause:    []ErrorCause{},
			Type:         TypeSearchPhase,
			Reason:       reason,
			Phase:        phase,
			Grouped:      &grouped,
			FailedShards: failures,
			CausedBy:     &cause,
		},
		Status: 500,
	}
}
