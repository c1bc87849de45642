// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package linkguard detects hard-link escapes: a workspace file that is
// a second name for an inode whose other name lives outside the
// workspace. Canonicalization defeats symlink bypasses but not this
// one — the link target IS the inode, so there is nothing to resolve.
// A link count of exactly one is a necessary (not sufficient, but
// cheap and practically strong) condition for "this file has no other
// names."
//
// The guard is fail-closed: a stat failure is reported as a link-guard
// block rather than a generic I/O error, because an unreadable file on
// this code path is itself suspicious.
package linkguard

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LinkEscapeError reports a file rejected by the hard-link check.
type LinkEscapeError struct {
	// Path is the path that was checked.
	Path string

	// Links is the observed hard-link count. Zero when the metadata
	// read itself failed.
	Links uint64

	// Err is the underlying stat error, if any.
	Err error
}

func (e *LinkEscapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("link guard: cannot verify %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("link guard: %s has %d hard links", e.Path, e.Links)
}

func (e *LinkEscapeError) Unwrap() error { return e.Err }

// Check verifies that an existing regular file has exactly one hard
// link. Returns a *LinkEscapeError when the link count exceeds one or
// when the metadata cannot be read at all. Non-regular paths pass:
// link counts are only meaningful for regular files — a directory
// carries one link per child ("." and "..") and cannot be hard-linked
// by userspace anyway. The result is never cached: the link count can
// change between invocations, so callers re-check on every use.
func Check(path string) error {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return &LinkEscapeError{Path: path, Err: err}
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFREG {
		return nil
	}
	if links := uint64(stat.Nlink); links > 1 {
		return &LinkEscapeError{Path: path, Links: links}
	}
	return nil
}
