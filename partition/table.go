package partition

import (
	"fmt"
	"sync"
)

// ID addresses a single partition in [0, PartitionNum).
type ID = uint32

// NodeID identifies a cluster member. UndefNodeID marks an unset peer.
type NodeID = int32

// LSN is the monotonically non-decreasing log position of one partition.
type LSN = uint64

// Revision is the membership revision stamp attached to a role assignment.
type Revision = uint64

const (
	UndefID     ID     = ^ID(0)
	UndefNodeID NodeID = -1
	UndefLSN    LSN    = ^LSN(0)
)

// Role is the role of one replica of a partition on one node.
type Role int8

const (
	RoleNone Role = iota
	RoleOwner
	RoleBackup
	RoleCatchup
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "OWNER"
	case RoleBackup:
		return "BACKUP"
	case RoleCatchup:
		return "CATCHUP"
	default:
		return "NONE"
	}
}

// Assignment is the replica set of one partition at one revision.
type Assignment struct {
	Owner    NodeID
	Backups  []NodeID
	Catchups []NodeID
	Revision Revision
}

// Table tracks the role assignment of every partition as seen by this node.
// The membership layer replaces assignments wholesale; readers are the sync
// manager and its services.
type Table struct {
	mu           sync.RWMutex
	self         NodeID
	partitionNum uint32
	assignments  []Assignment
	addrs        map[NodeID]string
}

// NewTable creates a table for partitionNum partitions on node self.
func NewTable(partitionNum uint32, self NodeID) *Table {
	t := &Table{
		self:         self,
		partitionNum: partitionNum,
		assignments:  make([]Assignment, partitionNum),
		addrs:        make(map[NodeID]string),
	}
	for i := range t.assignments {
		t.assignments[i].Owner = UndefNodeID
	}
	return t
}

func (t *Table) PartitionNum() uint32 { return t.partitionNum }

func (t *Table) SelfNodeID() NodeID { return t.self }

// SetAssignment installs the replica set for pID. Revisions only move
// forward; a stale revision is ignored.
func (t *Table) SetAssignment(pID ID, a Assignment) error {
	if pID >= t.partitionNum {
		return fmt.Errorf("partition %d out of range (partitionNum=%d)", pID, t.partitionNum)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if a.Revision < t.assignments[pID].Revision {
		return nil
	}
	t.assignments[pID] = Assignment{
		Owner:    a.Owner,
		Backups:  append([]NodeID(nil), a.Backups...),
		Catchups: append([]NodeID(nil), a.Catchups...),
		Revision: a.Revision,
	}
	return nil
}

// Assignment returns a copy of the replica set for pID.
func (t *Table) Assignment(pID ID) Assignment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a := t.assignments[pID]
	return Assignment{
		Owner:    a.Owner,
		Backups:  append([]NodeID(nil), a.Backups...),
		Catchups: append([]NodeID(nil), a.Catchups...),
		Revision: a.Revision,
	}
}

// RoleStatus returns the role this node currently plays for pID.
func (t *Table) RoleStatus(pID ID) Role {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a := &t.assignments[pID]
	if a.Owner == t.self {
		return RoleOwner
	}
	for _, n := range a.Backups {
		if n == t.self {
			return RoleBackup
		}
	}
	for _, n := range a.Catchups {
		if n == t.self {
			return RoleCatchup
		}
	}
	return RoleNone
}

// Revision returns the current membership revision of pID.
func (t *Table) Revision(pID ID) Revision {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.assignments[pID].Revision
}

// PromoteCatchup moves node from the catchup set to the backup set of pID.
// Called when a long-term sync finishes and the cluster accepts the replica.
func (t *Table) PromoteCatchup(pID ID, node NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := &t.assignments[pID]
	kept := a.Catchups[:0]
	found := false
	for _, n := range a.Catchups {
		if n == node {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	a.Catchups = kept
	if found {
		a.Backups = append(a.Backups, node)
	}
}

// SetNodeAddr records the transport address of a cluster member.
func (t *Table) SetNodeAddr(node NodeID, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrs[node] = addr
}

// NodeAddr returns the transport address of node, if known.
func (t *Table) NodeAddr(node NodeID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.addrs[node]
	return addr, ok
}
