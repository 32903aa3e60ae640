package syncmgr

import (
	"github.com/cockroachdb/errors"

	"github.com/chn0318/partsync/partition"
)

// CheckExecutable rejects an operation whose partition role does not permit
// it. role is the role this node currently plays for pID. Requests may only
// land on the owner; downstream traffic on the downstream role; acks on the
// counter-party of the sending op. Timeouts and drops are always legal.
func (m *Manager) CheckExecutable(op Operation, pID PartitionID, role partition.Role) error {
	if pID >= m.pt.PartitionNum() {
		return errors.Wrapf(ErrInvalidPartition, "pId=%d", pID)
	}

	var allowed bool
	switch op {
	case OpShorttermSyncRequest, OpLongtermSyncRequest:
		allowed = role == partition.RoleOwner

	case OpShorttermSyncStart, OpShorttermSyncLog, OpShorttermSyncEnd:
		allowed = role == partition.RoleBackup

	case OpLongtermSyncStart, OpLongtermSyncChunk, OpLongtermSyncLog:
		allowed = role == partition.RoleCatchup

	case OpShorttermSyncStartAck, OpShorttermSyncLogAck, OpShorttermSyncEndAck,
		OpLongtermSyncStartAck, OpLongtermSyncPrepareAck,
		OpLongtermSyncChunkAck, OpLongtermSyncLogAck:
		allowed = role == partition.RoleOwner

	case OpSyncTimeout, OpDropPartition:
		allowed = true

	default:
		allowed = false
	}

	if !allowed {
		return errors.Wrapf(ErrIllegalOperation, "op=%s pId=%d role=%s", op, pID, role)
	}
	return nil
}
