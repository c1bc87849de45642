// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"testing"
	"time"

	"github.com/warden-project/warden/audit"
	"github.com/warden-project/warden/lib/clock"
	"github.com/warden-project/warden/lib/policy"
	"github.com/warden-project/warden/lib/secret"
	"github.com/warden-project/warden/lib/testutil"
)

func newVerifier(t *testing.T) *OTPVerifier {
	t.Helper()
	seed, err := secret.NewFromBytes([]byte("12345678901234567890"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	verifier := NewOTPVerifier(seed, policy.Default().OTP)
	t.Cleanup(func() { verifier.Close() })
	return verifier
}

func TestOTPAcceptsCurrentCode(t *testing.T) {
	verifier := newVerifier(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !verifier.Verify(verifier.CodeAt(now), now) {
		t.Error("current code rejected")
	}
}

func TestOTPAcceptsAdjacentStep(t *testing.T) {
	verifier := newVerifier(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Code from one step earlier is inside the default skew of 1.
	if !verifier.Verify(verifier.CodeAt(now.Add(-30*time.Second)), now) {
		t.Error("adjacent-step code rejected")
	}
	// Two steps out is beyond the skew.
	if verifier.Verify(verifier.CodeAt(now.Add(-90*time.Second)), now) {
		t.Error("stale code accepted")
	}
}

func TestOTPRejectsWrongCode(t *testing.T) {
	verifier := newVerifier(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if verifier.Verify("000000", now) && verifier.Verify("999999", now) {
		t.Error("arbitrary codes accepted")
	}
	if verifier.Verify("", now) {
		t.Error("empty code accepted")
	}
}

func TestOTPKnownVectors(t *testing.T) {
	// RFC 6238 appendix B vectors for the 20-byte SHA-1 seed, with
	// 8-digit codes.
	seed, err := secret.NewFromBytes([]byte("12345678901234567890"))
	if err != nil {
		t.Fatal(err)
	}
	verifier := NewOTPVerifier(seed, policy.OTP{Digits: 8, Step: 30 * time.Second, Skew: 0})
	defer verifier.Close()

	vectors := map[int64]string{
		59:          "94287082",
		1111111109:  "07081804",
		1234567890:  "89005924",
		20000000000: "65353130",
	}
	for epoch, want := range vectors {
		if got := verifier.CodeAt(time.Unix(epoch, 0)); got != want {
			t.Errorf("CodeAt(%d) = %s, want %s", epoch, got, want)
		}
	}
}

func TestResolveOTPGrantsPending(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	verifier := newVerifier(t)
	engine := New(fake, audit.Discard{}, verifier)
	snapshot := policy.Default()

	results, id := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, Session{ID: "s1"}, snapshot)

	// A wrong code leaves the request pending for retry.
	if err := engine.ResolveOTP(id, "000000"); err == nil {
		t.Fatal("wrong OTP code accepted")
	}
	if len(engine.Pending()) != 1 {
		t.Fatal("wrong code should leave the request pending")
	}

	if err := engine.ResolveOTP(id, verifier.CodeAt(fake.Now())); err != nil {
		t.Fatalf("ResolveOTP: %v", err)
	}
	result := testutil.RequireReceive(t, results, 5*time.Second, "granted outcome")
	if result.outcome.Status != StatusGranted {
		t.Fatalf("status = %v, want granted", result.outcome.Status)
	}
}
