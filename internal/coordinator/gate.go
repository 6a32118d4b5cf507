package coordinator

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// VersionMismatchError reports a shard copy that was rejected because its
// node runs software older than the search's required minimum. The message
// is wire contract: it is what clients see as the caused_by reason of a
// failed search.
type VersionMismatchError struct {
	Shard       ShardID
	NodeID      string
	NodeVersion *semver.Version
	Required    *semver.Version
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("One of the shards is incompatible with the required minimum version [%s]", e.Required)
}

// AdmitCopy decides whether a shard copy may serve a search under the given
// constraints. With no minimum version constraint every copy is admitted.
// Otherwise the copy is admitted iff its node's version is at or above the
// minimum; a rejection carries the shard, the node's actual version, and the
// required minimum.
//
// This is a pure in-memory comparison and is evaluated before any network
// dispatch, so a copy that would be rejected never costs a round trip.
func AdmitCopy(cp ShardCopy, c SearchConstraints) *VersionMismatchError {
	if c.MinCompatibleShardNode == nil {
		return nil
	}
	v, err := cp.Node.SemVer()
	if err != nil || v.LessThan(c.MinCompatibleShardNode) {
		return &VersionMismatchError{
			Shard:       cp.ID,
			NodeID:      cp.Node.ID,
			NodeVersion: v,
			Required:    c.MinCompatibleShardNode,
		}
	}
	return nil
}
