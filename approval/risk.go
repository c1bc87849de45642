// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"path"
	"strings"

	"github.com/warden-project/warden/lib/policy"
)

// Tier is the risk tier of a tool call. Higher tiers require more
// deliberate authorization.
type Tier int

const (
	// TierLow covers read-only operations inside the workspace.
	TierLow Tier = iota

	// TierModerate covers workspace mutations and outbound fetches.
	TierModerate

	// TierHigh covers arbitrary command execution and message sends.
	TierHigh

	// TierCritical covers command classes that can destroy the host
	// or exfiltrate wholesale.
	TierCritical
)

// String returns the tier name used in audit records.
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierModerate:
		return "moderate"
	case TierHigh:
		return "high"
	default:
		return "critical"
	}
}

// riskTable maps tool-name patterns to tiers. Tool names are
// hierarchical, "/"-separated (fs/read, shell/exec, net/fetch).
// First match wins; unknown tools default to TierHigh so a new tool
// cannot silently run unreviewed.
var riskTable = []struct {
	pattern string
	tier    Tier
}{
	{"fs/read", TierLow},
	{"fs/list", TierLow},
	{"fs/write", TierModerate},
	{"fs/edit", TierModerate},
	{"net/fetch", TierModerate},
	{"message/send", TierModerate},
	{"shell/**", TierHigh},
	{"browser/**", TierHigh},
}

// RiskTier classifies a tool name. Unknown tools are TierHigh.
func RiskTier(tool string) Tier {
	for _, row := range riskTable {
		if matchPattern(row.pattern, tool) {
			return row.tier
		}
	}
	return TierHigh
}

// ceiling returns the highest tier the autonomy level auto-approves.
func ceiling(autonomy policy.Autonomy) Tier {
	switch autonomy {
	case policy.AutonomyReadOnly:
		return TierLow
	case policy.AutonomyFull:
		return TierHigh
	default:
		return TierModerate
	}
}

// highRiskCommands are shell command classes with a static deny
// override: when BlockHighRiskCommands is set they are rejected before
// any approval step, regardless of autonomy level. Patterns match
// against the whitespace-normalized command line.
var highRiskCommands = []string{
	"rm -rf /*",
	"rm -rf ~*",
	"mkfs*",
	"dd if=* of=/dev/*",
	"shutdown*",
	"reboot*",
	"halt*",
	":(){*",
	"chmod -R 777 /*",
	"* > /dev/sda*",
}

// HighRiskCommand reports the matching deny pattern for a shell
// command line, or "" when none matches. Matching runs on the
// whitespace-normalized form so extra spacing cannot dodge a pattern.
func HighRiskCommand(command string) string {
	normalized := strings.Join(strings.Fields(command), " ")
	for _, pattern := range highRiskCommands {
		if matchCommandGlob(pattern, normalized) {
			return pattern
		}
	}
	return ""
}

// matchCommandGlob matches a command-line pattern where "*" matches
// any run of characters, including spaces and slashes.
func matchCommandGlob(pattern, command string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == command
	}
	if !strings.HasPrefix(command, parts[0]) {
		return false
	}
	command = command[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		index := strings.Index(command, part)
		if index == -1 {
			return false
		}
		command = command[index+len(part):]
	}
	return strings.HasSuffix(command, parts[len(parts)-1])
}

// matchPattern matches a hierarchical glob pattern against a
// "/"-separated tool name: "*" matches one segment, "**" matches any
// number of segments (including zero), "?" matches a single
// non-separator character. Malformed patterns match nothing.
func matchPattern(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	if pattern[0] == "**" {
		// Zero segments, or consume one and retry.
		if matchSegments(pattern[1:], name) {
			return true
		}
		return len(name) > 0 && matchSegments(pattern, name[1:])
	}
	if len(name) == 0 {
		return false
	}
	matched, err := path.Match(pattern[0], name[0])
	if err != nil || !matched {
		return false
	}
	return matchSegments(pattern[1:], name[1:])
}

// matchAny reports whether any pattern in the set matches the tool
// name.
func matchAny(patterns []string, tool string) bool {
	for _, pattern := range patterns {
		if matchPattern(pattern, tool) {
			return true
		}
	}
	return false
}
