// Package storage provides the in-memory log and chunk store backing a
// sync node. It implements the collaborator interfaces the sync manager
// consumes; durable engines plug in behind the same interfaces.
package storage

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/chn0318/partsync/partition"
)

type logRecord struct {
	lsn  partition.LSN
	data []byte
}

type partitionState struct {
	records []logRecord
	tail    partition.LSN

	chunks      [][]byte
	snapshot    [][]byte
	snapshotLSN partition.LSN
}

// MemStore keeps per-partition redo log records and storage chunks in
// memory, guarded by a single RWMutex.
type MemStore struct {
	mu        sync.RWMutex
	parts     map[partition.ID]*partitionState
	blockSize int32
}

// NewMemStore creates an empty store cutting chunks of blockSize bytes.
func NewMemStore(blockSize int32) *MemStore {
	return &MemStore{
		parts:     make(map[partition.ID]*partitionState),
		blockSize: blockSize,
	}
}

func (s *MemStore) state(pID partition.ID) *partitionState {
	ps, ok := s.parts[pID]
	if !ok {
		ps = &partitionState{}
		s.parts[pID] = ps
	}
	return ps
}

// Append adds one record to the partition's log and returns its LSN.
func (s *MemStore) Append(pID partition.ID, data []byte) partition.LSN {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.state(pID)
	ps.tail++
	ps.records = append(ps.records, logRecord{lsn: ps.tail, data: append([]byte(nil), data...)})
	return ps.tail
}

// TailLSN returns the largest LSN written to pID so far.
func (s *MemStore) TailLSN(pID partition.ID) partition.LSN {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ps, ok := s.parts[pID]; ok {
		return ps.tail
	}
	return 0
}

// Read returns up to maxBytes of encoded log from pID starting at LSN
// from, and the [start, end] range read. The first record is always
// returned whole, even when its frame alone exceeds maxBytes. Each record
// is framed as lsn(8) | len(4) | payload.
func (s *MemStore) Read(pID partition.ID, from partition.LSN, maxBytes int32) ([]byte, partition.LSN, partition.LSN, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, ok := s.parts[pID]
	if !ok {
		return nil, 0, 0, nil
	}

	var out []byte
	var start, end partition.LSN
	for _, rec := range ps.records {
		if rec.lsn < from {
			continue
		}
		frame := 12 + len(rec.data)
		if len(out) > 0 && len(out)+frame > int(maxBytes) {
			break
		}
		var hdr [12]byte
		binary.BigEndian.PutUint64(hdr[0:8], rec.lsn)
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(rec.data)))
		out = append(out, hdr[:]...)
		out = append(out, rec.data...)
		if start == 0 {
			start = rec.lsn
		}
		end = rec.lsn
	}
	return out, start, end, nil
}

// Apply replays an encoded log slice onto pID, advancing its tail to end.
func (s *MemStore) Apply(pID partition.ID, data []byte, end partition.LSN) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps := s.state(pID)
	for len(data) > 0 {
		if len(data) < 12 {
			return errors.Newf("truncated log frame on pId=%d", pID)
		}
		lsn := binary.BigEndian.Uint64(data[0:8])
		size := binary.BigEndian.Uint32(data[8:12])
		if len(data) < 12+int(size) {
			return errors.Newf("truncated log payload on pId=%d", pID)
		}
		if lsn > ps.tail {
			ps.records = append(ps.records, logRecord{
				lsn:  lsn,
				data: append([]byte(nil), data[12:12+size]...),
			})
			ps.tail = lsn
		}
		data = data[12+size:]
	}
	if end > ps.tail {
		ps.tail = end
	}
	return nil
}

// SetChunks seeds the live chunk set of pID.
func (s *MemStore) SetChunks(pID partition.ID, chunks [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.state(pID)
	ps.chunks = ps.chunks[:0]
	for _, c := range chunks {
		ps.chunks = append(ps.chunks, append([]byte(nil), c...))
	}
}

// Checkpoint freezes the live chunk set as the snapshot a long-term sync
// streams from, and records the log position it covers.
func (s *MemStore) Checkpoint(pID partition.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.state(pID)
	ps.snapshot = ps.snapshot[:0]
	for _, c := range ps.chunks {
		ps.snapshot = append(ps.snapshot, append([]byte(nil), c...))
	}
	ps.snapshotLSN = ps.tail
}

// ChunkCount returns the number of chunks in the frozen snapshot of pID.
func (s *MemStore) ChunkCount(pID partition.ID) int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ps, ok := s.parts[pID]; ok {
		return int32(len(ps.snapshot))
	}
	return 0
}

// SnapshotLSN returns the log position the snapshot of pID covers.
func (s *MemStore) SnapshotLSN(pID partition.ID) partition.LSN {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ps, ok := s.parts[pID]; ok {
		return ps.snapshotLSN
	}
	return 0
}

// ReadChunk fills buf with the chunkNo-th snapshot chunk of pID, zero
// padded to len(buf). buf is the caller's staging block and is reused
// across reads.
func (s *MemStore) ReadChunk(pID partition.ID, chunkNo int32, buf []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, ok := s.parts[pID]
	if !ok || chunkNo < 0 || chunkNo >= int32(len(ps.snapshot)) {
		return errors.Newf("chunk %d out of range on pId=%d", chunkNo, pID)
	}
	for i := range buf {
		buf[i] = 0
	}
	copy(buf, ps.snapshot[chunkNo])
	return nil
}

// Prepare clears the local replica state of pID ahead of a snapshot
// install.
func (s *MemStore) Prepare(pID partition.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.state(pID)
	ps.records = ps.records[:0]
	ps.tail = 0
	ps.chunks = ps.chunks[:0]
	return nil
}

// Install applies a batch of chunkNum chunks of chunkSize bytes to pID.
func (s *MemStore) Install(pID partition.ID, data []byte, chunkSize, chunkNum int32) error {
	if chunkSize <= 0 || int(chunkSize)*int(chunkNum) > len(data) {
		return errors.Newf("malformed chunk batch on pId=%d", pID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.state(pID)
	for i := int32(0); i < chunkNum; i++ {
		chunk := data[int(i)*int(chunkSize) : int(i+1)*int(chunkSize)]
		ps.chunks = append(ps.chunks, append([]byte(nil), chunk...))
	}
	return nil
}
