// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package sensitive classifies filesystem paths that appear to target
// secret-bearing material: credential files, private keys, and the
// well-known directories cloud and SSH tooling keep secrets in.
//
// Classify is the single source of truth for every file tool — read,
// write, and edit all consult the same deny-lists, so there is no
// per-tool drift in what counts as sensitive. The check is pure and
// deterministic; callers may invoke it concurrently without locking.
//
// Matching is intentionally conservative and ASCII case-insensitive to
// reduce accidental credential exposure through tool I/O.
package sensitive

import (
	"path/filepath"
	"strings"
)

// Reason identifies which deny-list matched a path.
type Reason int

const (
	// ReasonNone means no deny-list matched.
	ReasonNone Reason = iota

	// ReasonExactName means the filename matched the exact-name list
	// (including the ".env.*" family).
	ReasonExactName

	// ReasonSuffix means the filename carries a private-key-like
	// extension.
	ReasonSuffix

	// ReasonPathComponent means some directory component of the path
	// is a known secret-bearing directory.
	ReasonPathComponent
)

// String returns a stable reason code for audit records.
func (r Reason) String() string {
	switch r {
	case ReasonExactName:
		return "exact-name"
	case ReasonSuffix:
		return "suffix"
	case ReasonPathComponent:
		return "path-component"
	default:
		return "none"
	}
}

// Verdict is the classifier's judgment about a single path. Derived
// per call and never persisted: the same path must be re-classified on
// every use because the filesystem underneath can change.
type Verdict struct {
	Sensitive bool
	Reason    Reason
}

// exactNames are filenames that denote credential material regardless
// of where they live.
var exactNames = []string{
	".env",
	".envrc",
	".secret_key",
	".npmrc",
	".pypirc",
	".git-credentials",
	"credentials",
	"credentials.json",
	"auth-profiles.json",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// suffixes are filename extensions that typically carry private keys
// or access configuration.
var suffixes = []string{
	".pem",
	".key",
	".p12",
	".pfx",
	".ovpn",
	".kubeconfig",
	".netrc",
}

// components are directory names whose entire contents are treated as
// sensitive.
var components = []string{
	".ssh", ".aws", ".gnupg", ".kube", ".docker", ".azure", ".secrets",
}

// Classify reports whether path appears to target secret-bearing
// material. Lists are checked in a fixed order — exact filename,
// ".env.*" family, suffix, then path component — and the first match
// wins. The path is not resolved or statted: callers that need
// symlink-safe classification must classify both the input path and
// its canonical form (see lib/fileguard).
func Classify(path string) Verdict {
	name := strings.ToLower(filepath.Base(path))

	for _, exact := range exactNames {
		if name == exact {
			return Verdict{Sensitive: true, Reason: ReasonExactName}
		}
	}
	// ".env.production", ".env.local", and friends.
	if strings.HasPrefix(name, ".env.") {
		return Verdict{Sensitive: true, Reason: ReasonExactName}
	}

	for _, suffix := range suffixes {
		if strings.HasSuffix(name, suffix) {
			return Verdict{Sensitive: true, Reason: ReasonSuffix}
		}
	}

	for _, element := range strings.Split(filepath.ToSlash(path), "/") {
		lower := strings.ToLower(element)
		for _, component := range components {
			if lower == component {
				return Verdict{Sensitive: true, Reason: ReasonPathComponent}
			}
		}
	}

	return Verdict{}
}
