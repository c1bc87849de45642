// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/warden-project/warden/lib/policy"
	"github.com/warden-project/warden/lib/secret"
)

// OTPVerifier checks time-based one-time passwords (RFC 6238,
// HMAC-SHA1) against a shared seed held in protected memory. The
// operator's authenticator app holds the same seed; a valid code
// resolves a pending approval without a channel round-trip.
type OTPVerifier struct {
	seed   *secret.Buffer
	params policy.OTP
}

// NewOTPVerifier wraps a seed. The verifier takes ownership of the
// buffer; close the verifier, not the buffer.
func NewOTPVerifier(seed *secret.Buffer, params policy.OTP) *OTPVerifier {
	return &OTPVerifier{seed: seed, params: params}
}

// Close releases the seed material.
func (v *OTPVerifier) Close() error { return v.seed.Close() }

// Verify reports whether code is valid at the given time, accepting
// the configured number of adjacent time steps on either side to
// absorb clock drift.
func (v *OTPVerifier) Verify(code string, now time.Time) bool {
	counter := now.Unix() / int64(v.params.Step/time.Second)
	valid := false
	for offset := -int64(v.params.Skew); offset <= int64(v.params.Skew); offset++ {
		expected := v.generate(counter + offset)
		// Accumulate instead of early-returning so verification time
		// does not depend on which step matched.
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			valid = true
		}
	}
	return valid
}

// CodeAt returns the valid code for the given time. Used when
// provisioning the seed (showing the operator a code to confirm their
// authenticator matches) and by tests.
func (v *OTPVerifier) CodeAt(now time.Time) string {
	return v.generate(now.Unix() / int64(v.params.Step/time.Second))
}

// generate computes the code for one counter value: HMAC-SHA1 over
// the big-endian counter, dynamic truncation, modulo 10^digits.
func (v *OTPVerifier) generate(counter int64) string {
	var message [8]byte
	binary.BigEndian.PutUint64(message[:], uint64(counter))

	mac := hmac.New(sha1.New, v.seed.Bytes())
	mac.Write(message[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	modulus := uint32(1)
	for range v.params.Digits {
		modulus *= 10
	}
	return fmt.Sprintf("%0*d", v.params.Digits, truncated%modulus)
}
