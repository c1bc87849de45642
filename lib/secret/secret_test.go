// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestBufferRoundTrip(t *testing.T) {
	source := []byte("hunter2")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !bytes.Equal(buffer.Bytes(), []byte("hunter2")) {
		t.Error("buffer does not hold the secret")
	}
	if !bytes.Equal(source, make([]byte, len(source))) {
		t.Error("source slice was not zeroed")
	}
	if !buffer.Equal([]byte("hunter2")) {
		t.Error("Equal(same) = false")
	}
	if buffer.Equal([]byte("hunter3")) {
		t.Error("Equal(different) = true")
	}
}

func TestBufferCloseZerosAndPanicsOnRead(t *testing.T) {
	buffer, err := NewFromBytes([]byte("token"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes after Close should panic")
		}
	}()
	buffer.Bytes()
}

func TestBufferRejectsEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Error("NewFromBytes(nil) should fail")
	}
	if _, err := New(0); err == nil {
		t.Error("New(0) should fail")
	}
}

func TestRedactedFormatting(t *testing.T) {
	wrapped := NewRedacted("sk-live-abcdef")

	for _, formatted := range []string{
		fmt.Sprint(wrapped),
		fmt.Sprintf("%v", wrapped),
		fmt.Sprintf("%s", wrapped),
		fmt.Sprintf("%#v", wrapped),
	} {
		if strings.Contains(formatted, "abcdef") {
			t.Errorf("formatted output leaked the secret: %q", formatted)
		}
		if !strings.Contains(formatted, Placeholder) {
			t.Errorf("formatted output missing placeholder: %q", formatted)
		}
	}

	if wrapped.Reveal() != "sk-live-abcdef" {
		t.Error("Reveal did not return the wrapped value")
	}
}

func TestRedactedInSlog(t *testing.T) {
	var output strings.Builder
	logger := slog.New(slog.NewJSONHandler(&output, nil))
	logger.Info("pairing", "token", NewRedacted("sk-live-abcdef"))

	if strings.Contains(output.String(), "abcdef") {
		t.Errorf("slog output leaked the secret: %s", output.String())
	}
}

func TestRedactedEqual(t *testing.T) {
	wrapped := NewRedacted("code-123456")
	if !wrapped.Equal("code-123456") {
		t.Error("Equal(same) = false")
	}
	if wrapped.Equal("code-000000") {
		t.Error("Equal(different) = true")
	}
}
