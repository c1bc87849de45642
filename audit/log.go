// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. The same record always
// produces identical bytes, which the hash chain depends on.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("audit: CBOR encoder initialization failed: " + err.Error())
	}
}

// entry is the on-disk envelope for one record. Record holds the
// deterministic CBOR encoding of the audit record itself; hashing the
// stored bytes (rather than a re-encoding) keeps verification
// independent of time-precision round-trips. Parent is the chain hash
// of the previous entry (zero for the first), and Hash is
// blake3(Parent || Record). An attacker who edits or removes an entry
// breaks every later hash.
type entry struct {
	Record cbor.RawMessage `cbor:"record"`
	Parent []byte          `cbor:"parent"`
	Hash   []byte          `cbor:"hash"`
}

// LogWriter appends records to a zstd-compressed, blake3-chained audit
// log. Safe for concurrent use. Close flushes the compressor; the
// file is only readable by VerifyLog after Close.
type LogWriter struct {
	mu      sync.Mutex
	file    io.WriteCloser
	zstd    *zstd.Encoder
	encoder *cbor.Encoder
	parent  []byte
	closed  bool
}

// OpenLog creates (or truncates) the audit log at path.
func OpenLog(path string) (*LogWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	compressor, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("audit: zstd writer: %w", err)
	}
	return &LogWriter{
		file:    file,
		zstd:    compressor,
		encoder: cbor.NewEncoder(compressor),
		parent:  make([]byte, 32),
	}, nil
}

// Record appends one record to the log. Errors are reported through
// Close; Record itself never blocks the security pipeline on fsync.
func (w *LogWriter) Record(record Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	encoded, err := encMode.Marshal(record)
	if err != nil {
		return
	}
	hasher := blake3.New()
	hasher.Write(w.parent)
	hasher.Write(encoded)
	hash := hasher.Sum(nil)

	if err := w.encoder.Encode(entry{
		Record: cbor.RawMessage(encoded),
		Parent: w.parent,
		Hash:   hash,
	}); err != nil {
		return
	}
	w.parent = hash
}

// Close flushes and closes the log. Idempotent.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstError error
	if err := w.zstd.Close(); err != nil {
		firstError = err
	}
	if err := w.file.Close(); err != nil && firstError == nil {
		firstError = err
	}
	return firstError
}

// VerifyLog reads the log at path and checks every entry's chain
// hash. Returns the records in order, or an error naming the first
// entry whose hash does not verify.
func VerifyLog(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer file.Close()

	decompressor, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("audit: zstd reader: %w", err)
	}
	defer decompressor.Close()

	decoder := cbor.NewDecoder(decompressor)
	parent := make([]byte, 32)
	var records []Record
	for index := 0; ; index++ {
		var e entry
		if err := decoder.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("audit: decoding entry %d: %w", index, err)
		}
		if !bytes.Equal(e.Parent, parent) {
			return nil, fmt.Errorf("audit: entry %d: parent hash mismatch", index)
		}
		hasher := blake3.New()
		hasher.Write(parent)
		hasher.Write(e.Record)
		if !bytes.Equal(hasher.Sum(nil), e.Hash) {
			return nil, fmt.Errorf("audit: entry %d: chain hash mismatch", index)
		}
		parent = e.Hash

		var record Record
		if err := cbor.Unmarshal(e.Record, &record); err != nil {
			return nil, fmt.Errorf("audit: decoding record %d: %w", index, err)
		}
		records = append(records, record)
	}
}
