// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/warden-project/warden/audit"
	"github.com/warden-project/warden/lib/clock"
	"github.com/warden-project/warden/lib/policy"
	"github.com/warden-project/warden/lib/testutil"
)

type authResult struct {
	outcome Outcome
	err     error
}

// startAuthorize runs Authorize in its own goroutine and returns the
// result channel plus the request ID once the call is pending.
func startAuthorize(t *testing.T, engine *Engine, call ToolCall, session Session, snapshot policy.Snapshot) (<-chan authResult, string) {
	t.Helper()
	results := make(chan authResult, 1)
	go func() {
		outcome, err := engine.Authorize(context.Background(), call, session, snapshot)
		results <- authResult{outcome, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for id := range engine.Pending() {
			return results, id
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Authorize never reached AwaitingApproval")
	return nil, ""
}

func newTestEngine() (*Engine, *clock.FakeClock, *audit.Ring) {
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ring := audit.NewRing(64)
	return New(fake, ring, nil), fake, ring
}

func TestAutoApprovedBelowCeiling(t *testing.T) {
	engine, _, _ := newTestEngine()
	snapshot := policy.Default() // supervised: moderate and below

	outcome, err := engine.Authorize(context.Background(), ToolCall{Tool: "fs/read"}, Session{ID: "s1"}, snapshot)
	if err != nil || outcome.Status != StatusAutoApproved {
		t.Fatalf("Authorize(fs/read) = %v, %v; want auto-approved", outcome.Status, err)
	}
}

func TestGatedActionNeverAutoApproves(t *testing.T) {
	engine, _, _ := newTestEngine()
	snapshot := policy.Default()
	snapshot.Autonomy = policy.AutonomyFull
	snapshot.GatedActions = []string{"fs/**"}

	// Gated pattern outranks full autonomy: the call must suspend.
	results, id := startAuthorize(t, engine, ToolCall{Tool: "fs/read"}, Session{ID: "s1"}, snapshot)
	if err := engine.Resolve(id, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	result := testutil.RequireReceive(t, results, 5*time.Second, "granted outcome")
	if result.err != nil || result.outcome.Status != StatusGranted {
		t.Fatalf("got %v, %v; want granted", result.outcome.Status, result.err)
	}
}

func TestHighRiskStaticRejection(t *testing.T) {
	engine, _, _ := newTestEngine()
	snapshot := policy.Default()
	snapshot.Autonomy = policy.AutonomyFull
	snapshot.BlockHighRiskCommands = true

	call := ToolCall{Tool: "shell/exec", Command: "rm -rf /"}
	outcome, err := engine.Authorize(context.Background(), call, Session{ID: "s1"}, snapshot)

	var highRisk *HighRiskError
	if !errors.As(err, &highRisk) {
		t.Fatalf("err = %v, want *HighRiskError", err)
	}
	if outcome.Status != StatusRejected {
		t.Errorf("status = %v, want rejected", outcome.Status)
	}
}

func TestExplicitDenial(t *testing.T) {
	engine, _, _ := newTestEngine()
	snapshot := policy.Default()

	results, id := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, Session{ID: "s1"}, snapshot)
	if err := engine.Resolve(id, false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	result := testutil.RequireReceive(t, results, 5*time.Second, "denied outcome")
	if !errors.Is(result.err, ErrDenied) || result.outcome.Status != StatusDenied {
		t.Fatalf("got %v, %v; want denied", result.outcome.Status, result.err)
	}
}

func TestTimeoutExpiresDistinctly(t *testing.T) {
	engine, fake, _ := newTestEngine()
	snapshot := policy.Default()

	results, id := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, Session{ID: "s1"}, snapshot)
	fake.Advance(snapshot.ApprovalTimeout + time.Second)

	result := testutil.RequireReceive(t, results, 5*time.Second, "expired outcome")
	if !errors.Is(result.err, ErrExpired) || result.outcome.Status != StatusExpired {
		t.Fatalf("got %v, %v; want expired", result.outcome.Status, result.err)
	}

	// A decision arriving after expiry is discarded, not applied.
	if err := engine.Resolve(id, true); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("late Resolve = %v, want ErrUnknownRequest", err)
	}
}

func TestContextCancelExpires(t *testing.T) {
	engine, _, _ := newTestEngine()
	snapshot := policy.Default()

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan authResult, 1)
	go func() {
		outcome, err := engine.Authorize(ctx, ToolCall{Tool: "shell/exec"}, Session{ID: "s1"}, snapshot)
		results <- authResult{outcome, err}
	}()
	cancel()

	result := testutil.RequireReceive(t, results, 5*time.Second, "cancelled outcome")
	if !errors.Is(result.err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired (never silent allow)", result.err)
	}
}

func TestDoubleResolveIsNoOp(t *testing.T) {
	engine, _, _ := newTestEngine()
	snapshot := policy.Default()

	results, id := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, Session{ID: "s1"}, snapshot)
	if err := engine.Resolve(id, true); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	// The second decision must not grant twice, whichever error it
	// maps to depends on whether the waiter has finished cleanup.
	if err := engine.Resolve(id, false); err == nil {
		t.Fatal("second Resolve succeeded, want no-op error")
	}
	result := testutil.RequireReceive(t, results, 5*time.Second, "granted outcome")
	if result.outcome.Status != StatusGranted {
		t.Fatalf("status = %v, want granted from the first decision", result.outcome.Status)
	}
}

func TestSessionGrantFastPath(t *testing.T) {
	engine, _, _ := newTestEngine()
	snapshot := policy.Default()
	session := Session{ID: "chan-42", Interactive: false}

	results, id := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, session, snapshot)
	if err := engine.Resolve(id, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result := testutil.RequireReceive(t, results, 5*time.Second, "granted"); result.outcome.Status != StatusGranted {
		t.Fatalf("status = %v, want granted", result.outcome.Status)
	}

	// Second call for the same session and tool: no new approval
	// record, no suspension — even with the fake clock frozen, the
	// call returns immediately.
	outcome, err := engine.Authorize(context.Background(), ToolCall{Tool: "shell/exec"}, session, snapshot)
	if err != nil || outcome.Status != StatusSessionGranted {
		t.Fatalf("second Authorize = %v, %v; want session-granted", outcome.Status, err)
	}
	if pending := engine.Pending(); len(pending) != 0 {
		t.Errorf("fast path created approval records: %v", pending)
	}
}

func TestInteractiveSessionsGetNoGrant(t *testing.T) {
	engine, fake, _ := newTestEngine()
	snapshot := policy.Default()
	session := Session{ID: "cli", Interactive: true}

	results, id := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, session, snapshot)
	if err := engine.Resolve(id, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	testutil.RequireReceive(t, results, 5*time.Second, "granted")

	// The next identical call must prompt again.
	results2, _ := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, session, snapshot)
	fake.Advance(snapshot.ApprovalTimeout + time.Second)
	result := testutil.RequireReceive(t, results2, 5*time.Second, "expired")
	if result.outcome.Status != StatusExpired {
		t.Fatalf("status = %v, want expired (no grant for interactive sessions)", result.outcome.Status)
	}
}

func TestRevokeSession(t *testing.T) {
	engine, fake, _ := newTestEngine()
	snapshot := policy.Default()
	session := Session{ID: "chan-42"}

	results, id := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, session, snapshot)
	if err := engine.Resolve(id, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	testutil.RequireReceive(t, results, 5*time.Second, "granted")

	engine.RevokeSession(session.ID)

	results2, _ := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, session, snapshot)
	fake.Advance(snapshot.ApprovalTimeout + time.Second)
	result := testutil.RequireReceive(t, results2, 5*time.Second, "expired")
	if result.outcome.Status != StatusExpired {
		t.Fatalf("status = %v, want expired after revocation", result.outcome.Status)
	}
}

func TestConcurrentApprovalsAreIndependent(t *testing.T) {
	engine, _, _ := newTestEngine()
	snapshot := policy.Default()

	resultsA, idA := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, Session{ID: "a"}, snapshot)

	// Start a second pending call; poll until both are visible.
	resultsB := make(chan authResult, 1)
	go func() {
		outcome, err := engine.Authorize(context.Background(), ToolCall{Tool: "browser/open"}, Session{ID: "b"}, snapshot)
		resultsB <- authResult{outcome, err}
	}()
	var idB string
	deadline := time.Now().Add(5 * time.Second)
	for idB == "" && time.Now().Before(deadline) {
		for id, tool := range engine.Pending() {
			if tool == "browser/open" {
				idB = id
			}
		}
		time.Sleep(time.Millisecond)
	}
	if idB == "" {
		t.Fatal("second call never became pending")
	}

	if err := engine.Resolve(idB, false); err != nil {
		t.Fatalf("Resolve(B): %v", err)
	}
	if err := engine.Resolve(idA, true); err != nil {
		t.Fatalf("Resolve(A): %v", err)
	}

	resultA := testutil.RequireReceive(t, resultsA, 5*time.Second, "outcome A")
	resultB := testutil.RequireReceive(t, resultsB, 5*time.Second, "outcome B")
	if resultA.outcome.Status != StatusGranted {
		t.Errorf("A = %v, want granted", resultA.outcome.Status)
	}
	if resultB.outcome.Status != StatusDenied {
		t.Errorf("B = %v, want denied", resultB.outcome.Status)
	}
}

func TestAuditTrailCoversTransitions(t *testing.T) {
	engine, _, ring := newTestEngine()
	snapshot := policy.Default()

	results, id := startAuthorize(t, engine, ToolCall{Tool: "shell/exec"}, Session{ID: "s1"}, snapshot)
	if err := engine.Resolve(id, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	testutil.RequireReceive(t, results, 5*time.Second, "granted")

	records, _ := ring.Since(0)
	var decisions []string
	for _, record := range records {
		decisions = append(decisions, record.Decision)
	}
	want := []string{"proposed", "awaiting-approval", "granted"}
	if len(decisions) != len(want) {
		t.Fatalf("decisions = %v, want %v", decisions, want)
	}
	for i := range want {
		if decisions[i] != want[i] {
			t.Fatalf("decisions = %v, want %v", decisions, want)
		}
	}
}
