package syncmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chn0318/partsync/partition"
)

func TestCheckExecutableRoleMap(t *testing.T) {
	h := newTestHarness(t, 4)

	cases := []struct {
		op      Operation
		role    partition.Role
		allowed bool
	}{
		{OpShorttermSyncRequest, partition.RoleOwner, true},
		{OpShorttermSyncRequest, partition.RoleBackup, false},
		{OpLongtermSyncRequest, partition.RoleOwner, true},
		{OpLongtermSyncRequest, partition.RoleCatchup, false},

		{OpShorttermSyncStart, partition.RoleBackup, true},
		{OpShorttermSyncStart, partition.RoleOwner, false},
		{OpShorttermSyncLog, partition.RoleBackup, true},
		{OpShorttermSyncEnd, partition.RoleBackup, true},
		{OpShorttermSyncEnd, partition.RoleCatchup, false},

		{OpLongtermSyncStart, partition.RoleCatchup, true},
		{OpLongtermSyncStart, partition.RoleBackup, false},
		{OpLongtermSyncChunk, partition.RoleCatchup, true},
		{OpLongtermSyncLog, partition.RoleCatchup, true},
		{OpLongtermSyncLog, partition.RoleOwner, false},

		{OpShorttermSyncStartAck, partition.RoleOwner, true},
		{OpShorttermSyncStartAck, partition.RoleBackup, false},
		{OpShorttermSyncLogAck, partition.RoleOwner, true},
		{OpShorttermSyncEndAck, partition.RoleOwner, true},
		{OpLongtermSyncStartAck, partition.RoleOwner, true},
		{OpLongtermSyncPrepareAck, partition.RoleOwner, true},
		{OpLongtermSyncChunkAck, partition.RoleOwner, true},
		{OpLongtermSyncChunkAck, partition.RoleCatchup, false},
		{OpLongtermSyncLogAck, partition.RoleOwner, true},

		{OpSyncTimeout, partition.RoleNone, true},
		{OpSyncTimeout, partition.RoleOwner, true},
		{OpDropPartition, partition.RoleNone, true},
		{OpDropPartition, partition.RoleCatchup, true},
	}

	for _, tc := range cases {
		err := h.mgr.CheckExecutable(tc.op, 0, tc.role)
		if tc.allowed {
			assert.NoError(t, err, "op=%s role=%s", tc.op, tc.role)
		} else {
			assert.ErrorIs(t, err, ErrIllegalOperation, "op=%s role=%s", tc.op, tc.role)
		}
	}
}

func TestCheckExecutableRejectsBadPartition(t *testing.T) {
	h := newTestHarness(t, 4)
	err := h.mgr.CheckExecutable(OpSyncTimeout, 99, partition.RoleOwner)
	assert.ErrorIs(t, err, ErrInvalidPartition)
}
