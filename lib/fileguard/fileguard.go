// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package fileguard is the filesystem access guard wrapped around the
// read, write, and edit tools. Every operation runs the same fixed
// check sequence, aborting at the first failure:
//
//  1. Classify the input path exactly as the caller gave it.
//  2. Canonicalize (follow symlinks, normalize ".." and relative
//     segments).
//  3. Classify the canonical path — this catches symlinks whose target
//     is sensitive even when the link's own name is innocuous.
//  4. If the target exists, run the hard-link guard against the
//     canonical path. A positive result denies unconditionally: there
//     is no policy override for hard-link escape, because it is a
//     provenance question configuration cannot answer.
//
// Only after all four checks pass may the underlying I/O proceed, and
// then exactly once, with the canonical path returned by Check. No
// verdict is cached across calls; the filesystem is re-examined every
// time.
package fileguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warden-project/warden/lib/linkguard"
	"github.com/warden-project/warden/lib/policy"
	"github.com/warden-project/warden/lib/sensitive"
)

// Op is the kind of file mutation being guarded.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpEdit
)

// String returns the tool-facing operation name.
func (op Op) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "edit"
	}
}

// SensitiveBlockedError reports an operation denied because the
// classifier flagged a path and policy does not allow the access. The
// error text names the path and reason category only — never file
// content.
type SensitiveBlockedError struct {
	Op     Op
	Path   string
	Reason sensitive.Reason

	// Canonical is true when the canonical path (rather than the
	// caller's input path) triggered the match.
	Canonical bool
}

func (e *SensitiveBlockedError) Error() string {
	stage := "path"
	if e.Canonical {
		stage = "resolved path"
	}
	return fmt.Sprintf("%s blocked: %s %s matches sensitive %s rule", e.Op, stage, e.Path, e.Reason)
}

// Check runs the guard sequence for op against path and returns the
// canonical path the I/O must use. Denials are *SensitiveBlockedError
// or *linkguard.LinkEscapeError; a write is never partially applied
// because no I/O happens until Check has returned.
func Check(op Op, path string, snapshot policy.Snapshot) (string, error) {
	allowed := snapshot.AllowSensitiveFileWrites
	if op == OpRead {
		allowed = snapshot.AllowSensitiveFileReads
	}

	// Step 1: the input path as given, before any resolution.
	if verdict := sensitive.Classify(path); verdict.Sensitive && !allowed {
		return "", &SensitiveBlockedError{Op: op, Path: path, Reason: verdict.Reason}
	}

	// Step 2: canonical form.
	canonical, exists, err := canonicalize(path)
	if err != nil {
		return "", fmt.Errorf("%s %s: resolving path: %w", op, path, err)
	}

	// Step 3: the canonical path, independently.
	if verdict := sensitive.Classify(canonical); verdict.Sensitive && !allowed {
		return "", &SensitiveBlockedError{Op: op, Path: canonical, Reason: verdict.Reason, Canonical: true}
	}

	// Step 4: hard-link escape, existing targets only. No policy
	// override.
	if exists {
		if err := linkguard.Check(canonical); err != nil {
			return "", err
		}
	}

	return canonical, nil
}

// canonicalize resolves path to an absolute form with symlinks
// followed and relative segments normalized. For targets that do not
// exist yet (a write creating a new file), the deepest existing
// ancestor is resolved and the remaining segments are rejoined, so a
// symlinked parent directory still points the verdict at the real
// destination.
func canonicalize(path string) (canonical string, exists bool, err error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", false, err
	}

	resolved, err := filepath.EvalSymlinks(absolute)
	if err == nil {
		return resolved, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", false, err
	}

	// Walk up to the deepest ancestor that exists.
	remainder := ""
	current := absolute
	for {
		parent := filepath.Dir(current)
		remainder = filepath.Join(filepath.Base(current), remainder)
		if parent == current {
			// Hit the filesystem root without finding anything.
			return filepath.Join(parent, remainder), false, nil
		}
		resolved, err := filepath.EvalSymlinks(parent)
		if err == nil {
			return filepath.Join(resolved, remainder), false, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", false, err
		}
		current = parent
	}
}
