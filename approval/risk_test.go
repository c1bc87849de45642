// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package approval

import "testing"

func TestRiskTiers(t *testing.T) {
	cases := []struct {
		tool string
		want Tier
	}{
		{"fs/read", TierLow},
		{"fs/write", TierModerate},
		{"fs/edit", TierModerate},
		{"net/fetch", TierModerate},
		{"shell/exec", TierHigh},
		{"shell/background", TierHigh},
		{"browser/open", TierHigh},
		{"totally/new/tool", TierHigh}, // unknown defaults high
	}
	for _, c := range cases {
		if got := RiskTier(c.tool); got != c.want {
			t.Errorf("RiskTier(%q) = %v, want %v", c.tool, got, c.want)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"fs/write", "fs/write", true},
		{"fs/*", "fs/write", true},
		{"fs/*", "fs/sub/deep", false},
		{"fs/**", "fs/sub/deep", true},
		{"fs/**", "fs", true}, // ** matches zero segments
		{"**", "anything/at/all", true},
		{"**/exec", "shell/exec", true},
		{"shell/**/run", "shell/bg/jobs/run", true},
		{"fs/rea?", "fs/read", true},
		{"net/*", "fs/read", false},
		{"[", "fs/read", false}, // malformed pattern matches nothing
	}
	for _, c := range cases {
		if got := matchPattern(c.pattern, c.name); got != c.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}

func TestHighRiskCommands(t *testing.T) {
	for _, command := range []string{
		"rm -rf /",
		"rm   -rf   /var",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"shutdown -h now",
		":(){ :|:& };:",
	} {
		if HighRiskCommand(command) == "" {
			t.Errorf("HighRiskCommand(%q) = none, want a match", command)
		}
	}
	for _, command := range []string{
		"ls -la",
		"rm build/output.txt",
		"echo reboot schedule",
		"git status",
	} {
		if pattern := HighRiskCommand(command); pattern != "" {
			t.Errorf("HighRiskCommand(%q) matched %q, want none", command, pattern)
		}
	}
}
