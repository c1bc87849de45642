// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit is the trace sink for security decisions. Every
// authorization transition and every access-guard denial emits exactly
// one Record; operators consume them through structured logs, the
// gateway's event stream, or the append-only audit log.
//
// Records carry the tool or path and the reason category, never the
// sensitive content that triggered a denial.
package audit

import (
	"log/slog"
	"time"
)

// Kind identifies what produced a record.
type Kind string

const (
	// KindAuthorization covers every approval-engine transition.
	KindAuthorization Kind = "authorization"

	// KindFileAccess covers file-access-guard denials.
	KindFileAccess Kind = "file-access"

	// KindLeakGuard covers outbound leak guard actions.
	KindLeakGuard Kind = "leak-guard"
)

// Record is one audit event. Fields not applicable to the kind are
// left empty.
type Record struct {
	Time time.Time `cbor:"time" json:"time"`
	Kind Kind      `cbor:"kind" json:"kind"`

	// Tool is the tool name for authorization and execution records.
	Tool string `cbor:"tool,omitempty" json:"tool,omitempty"`

	// Path is the triggering path for file-access records.
	Path string `cbor:"path,omitempty" json:"path,omitempty"`

	// Session identifies the owning session, when known.
	Session string `cbor:"session,omitempty" json:"session,omitempty"`

	// Decision is the outcome: "allow", "deny", "redact", "block",
	// or an approval-state name.
	Decision string `cbor:"decision" json:"decision"`

	// Reason is the machine-readable reason code.
	Reason string `cbor:"reason,omitempty" json:"reason,omitempty"`
}

// Recorder receives audit records. Implementations must be safe for
// concurrent use; Record must not block the caller on slow consumers.
type Recorder interface {
	Record(record Record)
}

// Tee fans a record out to several recorders.
type Tee []Recorder

// Record sends the record to every recorder in order.
func (t Tee) Record(record Record) {
	for _, recorder := range t {
		recorder.Record(record)
	}
}

// Discard is a Recorder that drops everything. Useful in tests that
// do not assert on audit output.
type Discard struct{}

func (Discard) Record(Record) {}

// Logger adapts a slog.Logger into a Recorder.
type Logger struct {
	Log *slog.Logger
}

// Record writes the record as one structured log line.
func (l Logger) Record(record Record) {
	l.Log.Info("audit",
		"kind", string(record.Kind),
		"tool", record.Tool,
		"path", record.Path,
		"session", record.Session,
		"decision", record.Decision,
		"reason", record.Reason,
	)
}
