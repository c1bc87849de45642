// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package leakguard

import (
	"strings"

	"github.com/warden-project/warden/lib/policy"
)

// Placeholder replaces each redacted span.
const Placeholder = "[REDACTED]"

// FallbackMessage replaces the entire response in block mode. Nothing
// from the original text is delivered alongside it.
const FallbackMessage = "Response withheld: it appeared to contain credential material."

// Result is the guard's decision for one complete response.
type Result struct {
	// Text is what may be delivered: the input unchanged, the
	// redacted form, or FallbackMessage.
	Text string

	// Blocked is true when block mode discarded the response.
	Blocked bool

	// Redacted is the number of spans replaced in redact mode.
	Redacted int

	// Findings are the spans that crossed the sensitivity threshold.
	Findings []Finding
}

// Guard scans a complete response under the policy snapshot and
// applies the configured action. When the guard is disabled the text
// passes unchanged. Callers deliver Result.Text and nothing else; for
// incrementally produced responses use Stream, which buffers fully
// before scanning.
func Guard(text string, snapshot policy.Snapshot) Result {
	settings := snapshot.OutboundLeakGuard
	if !settings.Enabled {
		return Result{Text: text}
	}

	var acting []Finding
	for _, finding := range Scan(text) {
		if finding.Confidence >= settings.Sensitivity {
			acting = append(acting, finding)
		}
	}
	if len(acting) == 0 {
		return Result{Text: text}
	}

	if settings.Action == policy.LeakBlock {
		return Result{Text: FallbackMessage, Blocked: true, Findings: acting}
	}

	spans := mergeSpans(acting)
	var builder strings.Builder
	last := 0
	for _, span := range spans {
		builder.WriteString(text[last:span[0]])
		builder.WriteString(Placeholder)
		last = span[1]
	}
	builder.WriteString(text[last:])
	return Result{Text: builder.String(), Redacted: len(spans), Findings: acting}
}

// mergeSpans collapses overlapping or adjacent finding spans so a
// byte flagged by two detectors is redacted once.
func mergeSpans(findings []Finding) [][2]int {
	var spans [][2]int
	for _, finding := range findings {
		if n := len(spans); n > 0 && finding.Start <= spans[n-1][1] {
			if finding.End > spans[n-1][1] {
				spans[n-1][1] = finding.End
			}
			continue
		}
		spans = append(spans, [2]int{finding.Start, finding.End})
	}
	return spans
}
