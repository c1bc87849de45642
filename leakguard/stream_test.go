// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package leakguard

import (
	"strings"
	"testing"

	"github.com/warden-project/warden/lib/policy"
)

func TestStreamBuffersUntilClose(t *testing.T) {
	var transport strings.Builder
	stream := NewStream(&transport, defaultSnapshot())

	// The credential only exists across the fragment boundary.
	for _, fragment := range []string{"sk-", "AbC123secret"} {
		if _, err := stream.Write([]byte(fragment)); err != nil {
			t.Fatalf("Write(%q): %v", fragment, err)
		}
		if transport.Len() != 0 {
			t.Fatalf("transport received bytes before Close: %q", transport.String())
		}
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := transport.String(); got != Placeholder {
		t.Fatalf("transport got %q, want %q", got, Placeholder)
	}
	if stream.Result().Redacted != 1 {
		t.Errorf("Result().Redacted = %d, want 1", stream.Result().Redacted)
	}
}

func TestStreamBlockMode(t *testing.T) {
	snapshot := defaultSnapshot()
	snapshot.OutboundLeakGuard.Action = policy.LeakBlock

	var transport strings.Builder
	stream := NewStream(&transport, snapshot)
	stream.Write([]byte("partial AKIAIOSFO"))
	stream.Write([]byte("DNN7EXAMPLE trailing"))
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if transport.String() != FallbackMessage {
		t.Fatalf("transport got %q, want fallback", transport.String())
	}
	if !stream.Result().Blocked {
		t.Error("Result().Blocked = false")
	}
}

func TestStreamCleanTextDeliveredWhole(t *testing.T) {
	var transport strings.Builder
	stream := NewStream(&transport, defaultSnapshot())
	stream.Write([]byte("hello "))
	stream.Write([]byte("world"))
	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}
	if transport.String() != "hello world" {
		t.Fatalf("transport got %q", transport.String())
	}
}

func TestStreamRejectsWriteAfterClose(t *testing.T) {
	stream := NewStream(&strings.Builder{}, defaultSnapshot())
	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := stream.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}
