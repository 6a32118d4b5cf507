package coordinator

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/dreamware/strata/internal/cluster"
)

// Search option names as they appear on the request. They are spelled out in
// validation messages, so callers can correct the offending option.
const (
	OptionMinCompatibleShardNode = "min_compatible_shard_node"
	OptionCcsMinimizeRoundtrips  = "ccs_minimize_roundtrips"
)

// SearchConstraints are the admission-control options of one search request,
// parsed once and immutable for the lifetime of the search.
//
// CcsMinimizeRoundtrips defaults to true when the request leaves it unset,
// which is why a request that only sets the minimum version still fails
// validation unless it also passes ccs_minimize_roundtrips=false.
type SearchConstraints struct {
	MinCompatibleShardNode *semver.Version
	CcsMinimizeRoundtrips  bool
}

// ValidationError is a request-level validation failure: the request is
// structurally invalid and is rejected before any shard is contacted.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("Validation Failed: ")
	for i, msg := range e.Errors {
		fmt.Fprintf(&b, "%d: %s;", i+1, msg)
	}
	return b.String()
}

// UnsupportedOptionError reports an option the cluster cannot evaluate at
// all: its oldest node predates the option's existence and would reject the
// whole request as carrying an unrecognized parameter. This is distinct from
// a version-compatibility rejection, where the option is understood but a
// shard fails the check.
type UnsupportedOptionError struct {
	Param string
}

func (e *UnsupportedOptionError) Error() string {
	return fmt.Sprintf("contains unrecognized parameter: [%s]", e.Param)
}

// ValidateConstraints checks a request's options against each other and
// against the cluster's oldest node, before execution begins. It performs no
// network calls.
//
// The legacy-node check runs first: a node that does not know the option
// rejects the request outright, before it would ever evaluate option
// combinations.
func ValidateConstraints(c SearchConstraints, topo Topology) error {
	if c.MinCompatibleShardNode == nil {
		return nil
	}

	if oldest, ok := topo.OldestVersion(); ok && oldest.LessThan(cluster.MinCompatibleShardNodeSupport) {
		return &UnsupportedOptionError{Param: OptionMinCompatibleShardNode}
	}

	if c.CcsMinimizeRoundtrips {
		return &ValidationError{Errors: []string{
			fmt.Sprintf("[%s] cannot be [true] when setting a minimum compatible shard version", OptionCcsMinimizeRoundtrips),
		}}
	}
	return nil
}
