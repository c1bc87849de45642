// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package linkguard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSingleLinkPasses(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "single.txt")
	if err := os.WriteFile(file, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Check(file); err != nil {
		t.Fatalf("Check(single-link file) = %v, want nil", err)
	}
}

func TestHardLinkedFileBlocked(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "original.txt")
	linked := filepath.Join(dir, "linked.txt")
	if err := os.WriteFile(original, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(original, linked); err != nil {
		t.Skipf("filesystem does not support hard links: %v", err)
	}

	err := Check(original)
	var escape *LinkEscapeError
	if !errors.As(err, &escape) {
		t.Fatalf("Check(hard-linked file) = %v, want *LinkEscapeError", err)
	}
	if escape.Links != 2 {
		t.Errorf("Links = %d, want 2", escape.Links)
	}
}

func TestDirectoriesPass(t *testing.T) {
	// Directories always have nlink >= 2 ("." plus "..", one more
	// per subdirectory); the link check must not treat that as an
	// escape.
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "child"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := Check(dir); err != nil {
		t.Fatalf("Check(directory with subdirectory) = %v, want nil", err)
	}
}

func TestMissingFileFailsClosed(t *testing.T) {
	err := Check(filepath.Join(t.TempDir(), "absent"))
	var escape *LinkEscapeError
	if !errors.As(err, &escape) {
		t.Fatalf("Check(missing file) = %v, want *LinkEscapeError", err)
	}
	if escape.Err == nil {
		t.Error("expected the underlying stat error to be preserved")
	}
}

func TestIdempotent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "stable.txt")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	for range 5 {
		if err := Check(file); err != nil {
			t.Fatalf("verdict changed on unchanged file: %v", err)
		}
	}
}
