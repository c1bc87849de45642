// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// handleEvents streams audit records as server-sent events. The ring
// is the source of truth (sequence numbers give a stable resume
// cursor via Last-Event-ID); the broadcast only wakes the loop when
// new records land, so a reconnecting client never misses or
// duplicates a record that is still in the ring.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var seq uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			seq = parsed + 1
		}
	} else if v := r.URL.Query().Get("since"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			seq = parsed
		}
	}

	wake, cancel := s.config.Broadcast.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	flush := func() {
		records, next := s.config.Ring.Since(seq)
		// The ring may have evicted part of the requested range;
		// number from the first record actually returned.
		first := next - uint64(len(records))
		for i, record := range records {
			data, err := json.Marshal(record)
			if err != nil {
				s.log.Error("marshaling audit record", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\ndata: %s\n\n", first+uint64(i), data)
		}
		seq = next
		flusher.Flush()
	}

	flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-wake:
			if !ok {
				return
			}
			flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
