// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent runs the tool-call loop: every proposed call is
// authorized before it executes, file tools run behind the access
// guard, and every piece of output passes through the outbound leak
// guard before it leaves the loop.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warden-project/warden/approval"
	"github.com/warden-project/warden/audit"
	"github.com/warden-project/warden/leakguard"
	"github.com/warden-project/warden/lib/policy"
)

// Call is one proposed tool invocation.
type Call struct {
	// ID correlates the result (and any approval request) back to
	// the proposing turn.
	ID string `json:"id"`

	// Tool is the hierarchical tool name (fs/read, shell/exec).
	Tool string `json:"tool"`

	// Arguments is the raw JSON argument object.
	Arguments json.RawMessage `json:"arguments"`
}

// Result is the outcome of one call. Denied calls carry a
// category-only refusal in Output; successful calls carry the tool
// output after leak guarding.
type Result struct {
	ID     string          `json:"id"`
	Tool   string          `json:"tool"`
	Status approval.Status `json:"status"`
	Output string          `json:"output"`
	Denied bool            `json:"denied,omitempty"`
	Failed bool            `json:"failed,omitempty"`
}

// Loop dispatches authorized tool calls and guards their output.
type Loop struct {
	engine   *approval.Engine
	registry *Registry
	recorder audit.Recorder
	log      *slog.Logger
}

func NewLoop(engine *approval.Engine, registry *Registry, recorder audit.Recorder, log *slog.Logger) *Loop {
	return &Loop{engine: engine, registry: registry, recorder: recorder, log: log}
}

// Execute runs one batch of proposed calls for a session. Calls run
// concurrently up to the snapshot's tool concurrency limit; results
// come back in call order. A denied or failed call never aborts its
// siblings.
func (l *Loop) Execute(ctx context.Context, session approval.Session, snapshot policy.Snapshot, calls []Call) []Result {
	results := make([]Result, len(calls))

	limit := snapshot.ToolConcurrency
	if limit < 1 {
		limit = 1
	}
	var group errgroup.Group
	group.SetLimit(limit)
	for i, call := range calls {
		i, call := i, call
		group.Go(func() error {
			results[i] = l.run(ctx, session, snapshot, call)
			return nil
		})
	}
	group.Wait()
	return results
}

func (l *Loop) run(ctx context.Context, session approval.Session, snapshot policy.Snapshot, call Call) Result {
	result := Result{ID: call.ID, Tool: call.Tool}

	outcome, err := l.engine.Authorize(ctx, approval.ToolCall{
		ID:      call.ID,
		Tool:    call.Tool,
		Command: commandOf(call),
	}, session, snapshot)
	result.Status = outcome.Status
	if err != nil {
		result.Denied = true
		result.Output = refusalMessage(err)
		return result
	}

	tool, ok := l.registry.Lookup(call.Tool)
	if !ok {
		result.Denied = true
		result.Status = approval.StatusRejected
		result.Output = fmt.Sprintf("unknown tool %q", call.Tool)
		return result
	}

	output, err := tool.Run(ctx, call.Arguments, snapshot)
	if err != nil {
		var denied *DeniedError
		if errors.As(err, &denied) {
			result.Denied = true
			result.Output = denied.Message
			return result
		}
		result.Failed = true
		result.Output = l.guard(call, err.Error(), snapshot)
		return result
	}
	result.Output = l.guard(call, output, snapshot)
	return result
}

// guard passes text through the outbound leak guard and records any
// action taken.
func (l *Loop) guard(call Call, text string, snapshot policy.Snapshot) string {
	guarded := leakguard.Guard(text, snapshot)
	if guarded.Blocked || guarded.Redacted > 0 {
		decision := "redact"
		if guarded.Blocked {
			decision = "block"
		}
		l.recorder.Record(audit.Record{
			Time:     time.Now(),
			Kind:     audit.KindLeakGuard,
			Tool:     call.Tool,
			Decision: decision,
			Reason:   fmt.Sprintf("%d findings", len(guarded.Findings)),
		})
		l.log.Warn("leak guard acted on tool output",
			"tool", call.Tool,
			"call", call.ID,
			"decision", decision,
			"findings", len(guarded.Findings))
	}
	return guarded.Text
}

// commandOf extracts the shell command line from the call arguments,
// when present, so the authorization request carries it.
func commandOf(call Call) string {
	var a struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ""
	}
	return a.Command
}

// refusalMessage maps an authorization error to the message a
// requester may see. These name the denial category only.
func refusalMessage(err error) string {
	var highRisk *approval.HighRiskError
	switch {
	case errors.As(err, &highRisk):
		return "call rejected: command matches a blocked high-risk pattern"
	case errors.Is(err, approval.ErrDenied):
		return "call denied by the operator"
	case errors.Is(err, approval.ErrExpired):
		return "approval request expired without a decision"
	default:
		return "call not authorized"
	}
}
