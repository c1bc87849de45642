// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func testRecord(i int) Record {
	return Record{
		Time:     time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC),
		Kind:     KindAuthorization,
		Tool:     fmt.Sprintf("tool-%d", i),
		Decision: "allow",
		Reason:   "auto-approved",
	}
}

func TestRingSince(t *testing.T) {
	ring := NewRing(4)
	for i := range 3 {
		ring.Record(testRecord(i))
	}

	records, seq := ring.Since(0)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Tool != "tool-0" || records[2].Tool != "tool-2" {
		t.Errorf("records out of order: %v", records)
	}
	if seq != 3 {
		t.Errorf("seq = %d, want 3", seq)
	}

	// Nothing new since seq.
	records, _ = ring.Since(seq)
	if len(records) != 0 {
		t.Errorf("Since(%d) returned %d records, want 0", seq, len(records))
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	ring := NewRing(2)
	for i := range 5 {
		ring.Record(testRecord(i))
	}
	records, seq := ring.Since(0)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Tool != "tool-3" || records[1].Tool != "tool-4" {
		t.Errorf("ring kept wrong records: %v", records)
	}
	if seq != 5 {
		t.Errorf("seq = %d, want 5", seq)
	}
}

func TestBroadcastDeliversAndDrops(t *testing.T) {
	hub := NewBroadcast(1)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Record(testRecord(0))
	hub.Record(testRecord(1)) // buffer full, dropped

	got := <-ch
	if got.Tool != "tool-0" {
		t.Errorf("got %q, want tool-0", got.Tool)
	}
	select {
	case unexpected := <-ch:
		t.Errorf("dropped record was delivered: %v", unexpected)
	default:
	}
}

func TestBroadcastCancelClosesChannel(t *testing.T) {
	hub := NewBroadcast(1)
	ch, cancel := hub.Subscribe()
	cancel()
	cancel() // idempotent

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	// Recording after cancel must not panic.
	hub.Record(testRecord(0))
}

func TestLogRoundTripAndChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log.zst")
	writer, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	for i := range 10 {
		writer.Record(testRecord(i))
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := VerifyLog(path)
	if err != nil {
		t.Fatalf("VerifyLog: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("got %d records, want 10", len(records))
	}
	for i, record := range records {
		if record.Tool != fmt.Sprintf("tool-%d", i) {
			t.Errorf("record %d: tool = %q", i, record.Tool)
		}
	}
}

func TestTeeFansOut(t *testing.T) {
	ring1 := NewRing(2)
	ring2 := NewRing(2)
	Tee{ring1, ring2}.Record(testRecord(0))

	for name, ring := range map[string]*Ring{"first": ring1, "second": ring2} {
		if records, _ := ring.Since(0); len(records) != 1 {
			t.Errorf("%s ring got %d records, want 1", name, len(records))
		}
	}
}
