// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Pairing-token verification. The configuration stores only an
// argon2id hash of the token; the token itself exists in the config
// of whatever dashboard or client paired with the gate. A leaked
// config file therefore does not grant access.

const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	saltLen      = 16
)

// HashPairingToken derives the encoded argon2id hash stored in the
// configuration. Output follows the reference encoding:
// $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash> with unpadded
// standard base64.
func HashPairingToken(token string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// pairingHash is a parsed encoded hash.
type pairingHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	hash    []byte
}

// parsePairingHash parses the encoded form produced by
// HashPairingToken (or any compatible argon2id tool).
func parsePairingHash(encoded string) (*pairingHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, fmt.Errorf("pairing hash: not an argon2id encoded hash")
	}
	if parts[2] != "v=19" {
		return nil, fmt.Errorf("pairing hash: unsupported version %q", parts[2])
	}
	var p pairingHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, fmt.Errorf("pairing hash: parsing parameters %q: %w", parts[3], err)
	}
	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("pairing hash: decoding salt: %w", err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("pairing hash: decoding hash: %w", err)
	}
	if len(p.hash) == 0 {
		return nil, fmt.Errorf("pairing hash: empty digest")
	}
	return &p, nil
}

// verify reports whether token matches the stored hash. Constant-time
// on the digest comparison; the argon2 derivation dominates anyway.
func (p *pairingHash) verify(token string) bool {
	derived := argon2.IDKey([]byte(token), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(derived, p.hash) == 1
}
