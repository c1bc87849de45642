// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package leakguard

import (
	"bytes"
	"fmt"
	"io"

	"github.com/warden-project/warden/lib/policy"
)

// Stream guards an incrementally produced response. The guard cannot
// run per fragment — a credential can straddle fragment boundaries —
// so Stream buffers every Write and emits nothing to the underlying
// transport until Close, which scans the complete text and forwards
// only the guarded result. This trades streaming latency for the
// guarantee that no byte of raw model output reaches the transport
// unscanned; partial emission would defeat the guard entirely.
type Stream struct {
	transport io.Writer
	snapshot  policy.Snapshot
	buffer    bytes.Buffer
	closed    bool
	result    Result
}

// NewStream wraps the transport writer. The caller must Close the
// stream to release the buffered text; abandoning it delivers
// nothing.
func NewStream(transport io.Writer, snapshot policy.Snapshot) *Stream {
	return &Stream{transport: transport, snapshot: snapshot}
}

// Write accumulates one fragment. It never forwards to the transport.
func (s *Stream) Write(fragment []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("leakguard: write to closed stream")
	}
	return s.buffer.Write(fragment)
}

// Close scans the accumulated text, applies the policy action, and
// writes the guarded result to the transport in one piece. Idempotent
// after the first call.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.result = Guard(s.buffer.String(), s.snapshot)
	_, err := io.WriteString(s.transport, s.result.Text)
	return err
}

// Result returns the guard decision. Valid only after Close.
func (s *Stream) Result() Result { return s.result }
