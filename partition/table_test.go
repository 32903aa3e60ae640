package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleStatus(t *testing.T) {
	pt := NewTable(4, 2)

	require.NoError(t, pt.SetAssignment(0, Assignment{
		Owner: 2, Backups: []NodeID{1}, Revision: 1,
	}))
	require.NoError(t, pt.SetAssignment(1, Assignment{
		Owner: 1, Backups: []NodeID{2, 3}, Revision: 1,
	}))
	require.NoError(t, pt.SetAssignment(2, Assignment{
		Owner: 1, Catchups: []NodeID{2}, Revision: 1,
	}))

	assert.Equal(t, RoleOwner, pt.RoleStatus(0))
	assert.Equal(t, RoleBackup, pt.RoleStatus(1))
	assert.Equal(t, RoleCatchup, pt.RoleStatus(2))
	assert.Equal(t, RoleNone, pt.RoleStatus(3))
}

func TestSetAssignmentRejectsOutOfRange(t *testing.T) {
	pt := NewTable(2, 0)
	err := pt.SetAssignment(5, Assignment{Owner: 0, Revision: 1})
	assert.Error(t, err)
}

func TestStaleRevisionIgnored(t *testing.T) {
	pt := NewTable(2, 0)
	require.NoError(t, pt.SetAssignment(0, Assignment{Owner: 0, Revision: 5}))
	require.NoError(t, pt.SetAssignment(0, Assignment{Owner: 1, Revision: 3}))

	assert.Equal(t, NodeID(0), pt.Assignment(0).Owner)
	assert.Equal(t, Revision(5), pt.Revision(0))
}

func TestPromoteCatchup(t *testing.T) {
	pt := NewTable(2, 0)
	require.NoError(t, pt.SetAssignment(0, Assignment{
		Owner: 0, Backups: []NodeID{1}, Catchups: []NodeID{2}, Revision: 1,
	}))

	pt.PromoteCatchup(0, 2)
	a := pt.Assignment(0)
	assert.Empty(t, a.Catchups)
	assert.ElementsMatch(t, []NodeID{1, 2}, a.Backups)

	// Promoting an unknown node changes nothing.
	pt.PromoteCatchup(0, 9)
	assert.Len(t, pt.Assignment(0).Backups, 2)
}

func TestAssignmentReturnsCopy(t *testing.T) {
	pt := NewTable(1, 0)
	require.NoError(t, pt.SetAssignment(0, Assignment{
		Owner: 0, Backups: []NodeID{1, 2}, Revision: 1,
	}))

	a := pt.Assignment(0)
	a.Backups[0] = 99
	assert.Equal(t, NodeID(1), pt.Assignment(0).Backups[0])
}

func TestNodeAddrs(t *testing.T) {
	pt := NewTable(1, 0)
	pt.SetNodeAddr(3, "10.0.0.3:50061")

	addr, ok := pt.NodeAddr(3)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.3:50061", addr)

	_, ok = pt.NodeAddr(4)
	assert.False(t, ok)
}
