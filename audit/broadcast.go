// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import "sync"

// Broadcast fans records out to live subscribers. Each subscriber gets
// a buffered channel; a subscriber that falls behind has records
// dropped rather than blocking the security pipeline. The gateway's
// SSE endpoint subscribes here.
type Broadcast struct {
	mu          sync.Mutex
	subscribers map[chan Record]struct{}
	buffer      int
}

// NewBroadcast creates a broadcast hub. Each subscriber channel is
// buffered with the given capacity.
func NewBroadcast(buffer int) *Broadcast {
	return &Broadcast{
		subscribers: make(map[chan Record]struct{}),
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber. Call the returned cancel
// function to unsubscribe; the channel is closed by cancel.
func (b *Broadcast) Subscribe() (<-chan Record, func()) {
	ch := make(chan Record, b.buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Record delivers the record to every subscriber that has buffer
// space. Never blocks.
func (b *Broadcast) Record(record Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- record:
		default:
			// Subscriber lagged; drop rather than stall a security
			// decision.
		}
	}
}
