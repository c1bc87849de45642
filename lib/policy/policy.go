// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy defines the immutable policy snapshot that every
// security check receives. A Snapshot is constructed once per
// operation from the live configuration and passed by value: an
// operation uses one consistent snapshot for its whole lifetime, so a
// configuration change mid-operation cannot affect a decision already
// in flight. There is no ambient global policy state.
package policy

import "time"

// LeakAction selects what the outbound leak guard does when a finding
// crosses the sensitivity threshold.
type LeakAction string

const (
	// LeakRedact replaces each matched span with a placeholder and
	// delivers the rest unchanged.
	LeakRedact LeakAction = "redact"

	// LeakBlock discards the entire response and substitutes a fixed
	// fallback message.
	LeakBlock LeakAction = "block"
)

// Autonomy is the configured ceiling on what risk tier of tool call
// may execute without human approval.
type Autonomy string

const (
	// AutonomyReadOnly auto-approves nothing beyond low-risk reads.
	AutonomyReadOnly Autonomy = "read-only"

	// AutonomySupervised auto-approves low and moderate risk; higher
	// tiers require approval.
	AutonomySupervised Autonomy = "supervised"

	// AutonomyFull auto-approves everything except the static
	// high-risk block list.
	AutonomyFull Autonomy = "full"
)

// LeakGuard configures the outbound leak guard.
type LeakGuard struct {
	Enabled bool
	Action  LeakAction

	// Sensitivity is the confidence threshold in [0,1]: findings
	// scored at or above it trigger Action.
	Sensitivity float64
}

// OTP configures the one-time-password approval challenge.
type OTP struct {
	// Digits is the code length (default 6).
	Digits int

	// Step is the TOTP time step (default 30s).
	Step time.Duration

	// Skew is how many adjacent steps are accepted on either side of
	// the current one (default 1).
	Skew int
}

// Snapshot is the read-only policy value consulted by the file access
// guard, the approval engine, and the leak guard. Safe to share across
// concurrent operations; never mutated after construction.
type Snapshot struct {
	// AllowSensitiveFileReads permits reading classifier-flagged
	// paths. Off by default.
	AllowSensitiveFileReads bool

	// AllowSensitiveFileWrites permits writing or editing
	// classifier-flagged paths. Off by default.
	AllowSensitiveFileWrites bool

	// OutboundLeakGuard configures response scanning.
	OutboundLeakGuard LeakGuard

	// Autonomy is the auto-approval ceiling.
	Autonomy Autonomy

	// GatedActions are tool-name glob patterns that always require
	// approval regardless of risk tier.
	GatedActions []string

	// AutoApprove are tool-name glob patterns approved without any
	// prompt regardless of risk tier (but still subject to
	// BlockHighRiskCommands).
	AutoApprove []string

	// BlockHighRiskCommands statically rejects high-risk command
	// classes before any approval step.
	BlockHighRiskCommands bool

	// ApprovalTimeout bounds how long a tool call waits for a human
	// or OTP decision before expiring.
	ApprovalTimeout time.Duration

	// ToolConcurrency bounds parallel tool execution within one agent
	// turn. 1 means sequential.
	ToolConcurrency int

	// OTP holds challenge parameters.
	OTP OTP
}

// Default returns the snapshot used when no configuration overrides
// are present: sensitive file access denied, leak guard on in redact
// mode at 0.7 sensitivity, supervised autonomy, sequential tools.
func Default() Snapshot {
	return Snapshot{
		AllowSensitiveFileReads:  false,
		AllowSensitiveFileWrites: false,
		OutboundLeakGuard: LeakGuard{
			Enabled:     true,
			Action:      LeakRedact,
			Sensitivity: 0.7,
		},
		Autonomy:        AutonomySupervised,
		ApprovalTimeout: 2 * time.Minute,
		ToolConcurrency: 1,
		OTP: OTP{
			Digits: 6,
			Step:   30 * time.Second,
			Skew:   1,
		},
	}
}
