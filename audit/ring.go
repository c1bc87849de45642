// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import "sync"

// DefaultRingCapacity holds enough recent records for the gateway's
// events endpoint to backfill a reconnecting dashboard.
const DefaultRingCapacity = 4096

// Ring is a fixed-capacity circular store of the most recent records
// with sequence-number tracking. The sequence is a monotonically
// increasing count of records ever written, so observers can request
// "everything since sequence N" for reconnection gap-fill. New
// records overwrite the oldest when the ring is full.
//
// All methods are safe for concurrent use.
type Ring struct {
	mu       sync.Mutex
	records  []Record
	capacity int
	// next is the position the next record is written to.
	next int
	// total is the number of records ever written. The ring holds
	// records with sequence numbers [total-stored, total), where
	// stored = min(total, capacity).
	total uint64
}

// NewRing creates a ring holding up to capacity records. Use
// DefaultRingCapacity for the standard size.
func NewRing(capacity int) *Ring {
	return &Ring{
		records:  make([]Record, capacity),
		capacity: capacity,
	}
}

// Record appends a record, overwriting the oldest when full.
func (r *Ring) Record(record Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[r.next] = record
	r.next = (r.next + 1) % r.capacity
	r.total++
}

// Since returns all stored records with sequence number >= seq, oldest
// first, along with the sequence number of the next record to be
// written. Passing the returned sequence back retrieves only newer
// records.
func (r *Ring) Since(seq uint64) ([]Record, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.total
	if stored > uint64(r.capacity) {
		stored = uint64(r.capacity)
	}
	oldest := r.total - stored
	if seq < oldest {
		seq = oldest
	}
	if seq >= r.total {
		return nil, r.total
	}

	count := int(r.total - seq)
	out := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		index := (r.next - count + i + r.capacity) % r.capacity
		out = append(out, r.records[index])
	}
	return out, r.total
}
