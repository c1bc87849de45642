// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package approval is the authorization engine gating every tool call
// the agent proposes. Each call moves through a small state machine:
//
//	Proposed → AutoApproved → Executed
//	Proposed → SessionGranted → Executed
//	Proposed → AwaitingApproval → Granted | Denied | Expired
//	Proposed → Rejected                      (static high-risk deny)
//
// Only AwaitingApproval suspends: the caller blocks until a human
// decision, an OTP challenge success, or the configured timeout.
// Expiry is terminal — a decision that arrives after a request has
// expired is discarded, never applied retroactively.
//
// Concurrent Authorize calls are independent: each call owns its own
// pending record, and the shared pending and session-grant tables
// serialize their mutations behind one mutex.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-project/warden/audit"
	"github.com/warden-project/warden/lib/clock"
	"github.com/warden-project/warden/lib/policy"
)

// Status is the terminal authorization status of one tool call.
type Status string

const (
	StatusAutoApproved   Status = "auto-approved"
	StatusSessionGranted Status = "session-granted"
	StatusGranted        Status = "granted"
	StatusDenied         Status = "denied"
	StatusExpired        Status = "expired"
	StatusRejected       Status = "rejected"
)

// Sentinel errors callers branch on. Denials and expiry are terminal
// for the operation: retrying without a policy or input change cannot
// succeed.
var (
	// ErrDenied means a human explicitly denied the request.
	ErrDenied = errors.New("approval denied")

	// ErrExpired means no decision arrived before the timeout (or the
	// waiting context was cancelled). Reported distinctly from
	// ErrDenied so callers can say "no response" vs "explicit denial".
	ErrExpired = errors.New("approval expired")

	// ErrAlreadyResolved means a decision arrived for a request that
	// has already reached a terminal state. The late decision is a
	// no-op.
	ErrAlreadyResolved = errors.New("approval already resolved")

	// ErrUnknownRequest means the request ID is not pending.
	ErrUnknownRequest = errors.New("unknown approval request")
)

// HighRiskError reports a tool call rejected by the static high-risk
// deny override.
type HighRiskError struct {
	Tool    string
	Pattern string
}

func (e *HighRiskError) Error() string {
	return fmt.Sprintf("%s rejected: matches high-risk pattern %q", e.Tool, e.Pattern)
}

// ToolCall is one proposed tool invocation.
type ToolCall struct {
	// ID identifies the call within its turn. Assigned by the loop.
	ID string

	// Tool is the hierarchical tool name (fs/write, shell/exec).
	Tool string

	// Command is the command line for shell tools; empty otherwise.
	// Used only for the static high-risk check, never logged.
	Command string
}

// Session identifies the conversation a tool call belongs to.
type Session struct {
	ID string

	// Interactive is true for CLI sessions where the operator is
	// present. Grants are only recorded for non-interactive sessions,
	// where a repeat prompt would otherwise go unanswered.
	Interactive bool
}

// Outcome is the result of Authorize.
type Outcome struct {
	Status Status

	// RequestID is set when an approval record was created
	// (AwaitingApproval path), for correlation with audit records.
	RequestID string
}

// sessionGrant records a prior approval for a session/tool pair.
type sessionGrant struct {
	grantedAt time.Time
}

// decision is a human or OTP resolution of a pending request.
type decision struct {
	granted bool
}

// pending is one AwaitingApproval record. The engine owns it
// exclusively for its lifetime; terminal transitions happen under the
// engine mutex exactly once.
type pending struct {
	id        string
	tool      string
	tier      Tier
	session   Session
	createdAt time.Time

	// ch carries at most one decision. Buffered so Resolve never
	// blocks on the suspended caller.
	ch chan decision

	// terminal is set under the engine mutex when the request reaches
	// Granted, Denied, or Expired. Late resolutions observe it and
	// become no-ops.
	terminal bool
}

// Engine owns authorization decisions, the pending-approval table, and
// the session-grant table.
type Engine struct {
	clock    clock.Clock
	recorder audit.Recorder
	otp      *OTPVerifier // nil when OTP challenges are not configured

	mu      sync.Mutex
	pending map[string]*pending
	grants  map[string]map[string]sessionGrant // session ID → tool → grant
}

// New creates an engine. The recorder receives one record per state
// transition. otp may be nil to disable OTP resolution.
func New(clk clock.Clock, recorder audit.Recorder, otp *OTPVerifier) *Engine {
	return &Engine{
		clock:    clk,
		recorder: recorder,
		otp:      otp,
		pending:  make(map[string]*pending),
		grants:   make(map[string]map[string]sessionGrant),
	}
}

// Authorize decides one tool call under the given policy snapshot.
// It returns a nil error only for the allowed statuses (AutoApproved,
// SessionGranted, Granted); denials return ErrDenied, ErrExpired, or
// *HighRiskError with the matching status in the outcome.
//
// The call suspends only on the AwaitingApproval path, bounded by
// snapshot.ApprovalTimeout and ctx. Cancellation of ctx while waiting
// resolves to Expired, never to a silent allow.
func (e *Engine) Authorize(ctx context.Context, call ToolCall, session Session, snapshot policy.Snapshot) (Outcome, error) {
	tier := RiskTier(call.Tool)
	e.trace(audit.Record{Tool: call.Tool, Session: session.ID, Decision: "proposed", Reason: tier.String()})

	// Static high-risk deny runs before any approval step, regardless
	// of autonomy level.
	if snapshot.BlockHighRiskCommands && call.Command != "" {
		if pattern := HighRiskCommand(call.Command); pattern != "" {
			e.trace(audit.Record{Tool: call.Tool, Session: session.ID, Decision: string(StatusRejected), Reason: "high-risk: " + pattern})
			return Outcome{Status: StatusRejected}, &HighRiskError{Tool: call.Tool, Pattern: pattern}
		}
	}

	gated := matchAny(snapshot.GatedActions, call.Tool)

	// Auto-approval: explicit pattern, or below the autonomy ceiling.
	// Gated actions never auto-approve.
	if !gated && (matchAny(snapshot.AutoApprove, call.Tool) || tier <= ceiling(snapshot.Autonomy)) {
		e.trace(audit.Record{Tool: call.Tool, Session: session.ID, Decision: string(StatusAutoApproved), Reason: tier.String()})
		return Outcome{Status: StatusAutoApproved}, nil
	}

	// Session-grant fast path: a previously approved non-interactive
	// session has already satisfied the policy requirement. This path
	// must not suspend or prompt.
	if e.hasGrant(session.ID, call.Tool) {
		e.trace(audit.Record{Tool: call.Tool, Session: session.ID, Decision: string(StatusSessionGranted)})
		return Outcome{Status: StatusSessionGranted}, nil
	}

	// AwaitingApproval: create the record and suspend.
	request := &pending{
		id:        uuid.NewString(),
		tool:      call.Tool,
		tier:      tier,
		session:   session,
		createdAt: e.clock.Now(),
		ch:        make(chan decision, 1),
	}
	// Register the timeout before the request becomes visible in the
	// pending table, so a decision (or a test clock advance) observed
	// after the request appears cannot slip in ahead of the timer.
	timeout := e.clock.After(snapshot.ApprovalTimeout)
	e.mu.Lock()
	e.pending[request.id] = request
	e.mu.Unlock()
	e.trace(audit.Record{Tool: call.Tool, Session: session.ID, Decision: "awaiting-approval", Reason: request.id})

	var resolved decision
	var expired bool
	select {
	case resolved = <-request.ch:
	case <-timeout:
		expired = true
	case <-ctx.Done():
		expired = true
	}

	if expired {
		// Mark terminal under the lock. If Resolve won the race and
		// already delivered a decision, honor it — it arrived before
		// expiry took effect.
		e.mu.Lock()
		select {
		case resolved = <-request.ch:
			expired = false
		default:
			request.terminal = true
		}
		e.mu.Unlock()
	}

	// The record has reached a terminal state either way; drop it
	// from the pending table. Late Resolve calls see ErrUnknownRequest
	// and are discarded.
	e.mu.Lock()
	delete(e.pending, request.id)
	e.mu.Unlock()

	switch {
	case expired:
		e.trace(audit.Record{Tool: call.Tool, Session: session.ID, Decision: string(StatusExpired), Reason: request.id})
		return Outcome{Status: StatusExpired, RequestID: request.id}, ErrExpired
	case !resolved.granted:
		e.trace(audit.Record{Tool: call.Tool, Session: session.ID, Decision: string(StatusDenied), Reason: request.id})
		return Outcome{Status: StatusDenied, RequestID: request.id}, ErrDenied
	}

	// Granted. Record a session grant for non-interactive sessions so
	// the next identical call skips the prompt.
	if !session.Interactive {
		e.addGrant(session.ID, call.Tool)
	}
	e.trace(audit.Record{Tool: call.Tool, Session: session.ID, Decision: string(StatusGranted), Reason: request.id})
	return Outcome{Status: StatusGranted, RequestID: request.id}, nil
}

// Resolve delivers a human decision for a pending request. A request
// that already reached a terminal state returns ErrAlreadyResolved
// and the decision is discarded — there is no retroactive grant.
func (e *Engine) Resolve(requestID string, granted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	request, ok := e.pending[requestID]
	if !ok {
		return ErrUnknownRequest
	}
	if request.terminal {
		return ErrAlreadyResolved
	}
	request.terminal = true
	request.ch <- decision{granted: granted}
	return nil
}

// ResolveOTP grants a pending request if code passes the OTP
// challenge. A wrong code leaves the request pending (the operator can
// retry until the timeout); a missing verifier rejects outright.
func (e *Engine) ResolveOTP(requestID string, code string) error {
	if e.otp == nil {
		return errors.New("otp challenge not configured")
	}
	if !e.otp.Verify(code, e.clock.Now()) {
		return errors.New("otp code rejected")
	}
	return e.Resolve(requestID, true)
}

// Pending returns the IDs and tool names of requests currently
// awaiting a decision, for operator surfaces.
func (e *Engine) Pending() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.pending))
	for id, request := range e.pending {
		out[id] = request.tool
	}
	return out
}

// RevokeSession removes every grant recorded for a session. Called
// when the session ends or the operator revokes it explicitly.
func (e *Engine) RevokeSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, sessionID)
}

func (e *Engine) hasGrant(sessionID, tool string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.grants[sessionID][tool]
	return ok
}

func (e *Engine) addGrant(sessionID, tool string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	table, ok := e.grants[sessionID]
	if !ok {
		table = make(map[string]sessionGrant)
		e.grants[sessionID] = table
	}
	table[tool] = sessionGrant{grantedAt: e.clock.Now()}
}

func (e *Engine) trace(record audit.Record) {
	record.Time = e.clock.Now()
	record.Kind = audit.KindAuthorization
	e.recorder.Record(record)
}
