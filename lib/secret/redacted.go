// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/subtle"
	"log/slog"
)

// Placeholder is what every default formatting path of a Redacted
// value produces.
const Placeholder = "[REDACTED]"

// Redacted wraps a secret string so that accidental formatting —
// fmt verbs, %#v, error chains, structured log attributes — never
// emits the secret. The wrapped value is recovered only through an
// explicit Reveal call at the single site that needs it.
type Redacted struct {
	value string
}

// NewRedacted wraps value.
func NewRedacted(value string) Redacted {
	return Redacted{value: value}
}

// Reveal returns the wrapped secret. Call this only at the point of
// use; never store or log the result.
func (r Redacted) Reveal() string { return r.value }

// Equal compares the wrapped secret against other in constant time.
func (r Redacted) Equal(other string) bool {
	return subtle.ConstantTimeCompare([]byte(r.value), []byte(other)) == 1
}

// String implements fmt.Stringer.
func (r Redacted) String() string { return Placeholder }

// GoString implements fmt.GoStringer, covering the %#v verb.
func (r Redacted) GoString() string { return "secret.Redacted(" + Placeholder + ")" }

// LogValue implements slog.LogValuer so structured logs carry the
// placeholder, never the secret.
func (r Redacted) LogValue() slog.Value { return slog.StringValue(Placeholder) }

// MarshalText blocks accidental serialization through encoding
// interfaces: the placeholder is emitted instead of the secret.
func (r Redacted) MarshalText() ([]byte, error) { return []byte(Placeholder), nil }
