// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Warden.
//
// Configuration is loaded from a single file specified by:
//   - WARDEN_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery, and environment
// variables never override file values. This keeps the security
// policy deterministic and auditable with no hidden overrides.
//
// YAML is the primary format; ".json" and ".jsonc" files are accepted
// too (comments and trailing commas stripped before parsing, since
// YAML is a JSON superset).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/warden-project/warden/lib/policy"
)

// Config is the on-disk configuration for the Warden gate.
type Config struct {
	// Files controls sensitive-file access. Both flags default to
	// false: sensitive paths are blocked unless explicitly opened up.
	Files FilesConfig `yaml:"files"`

	// LeakGuard controls outbound response scanning.
	LeakGuard LeakGuardConfig `yaml:"leak_guard"`

	// Approval controls the authorization engine.
	Approval ApprovalConfig `yaml:"approval"`

	// Gateway controls the HTTP delivery surface.
	Gateway GatewayConfig `yaml:"gateway"`

	// Workspace is the root directory the file tools operate in.
	// Default: the current working directory.
	Workspace string `yaml:"workspace"`

	// AuditLog is the path of the append-only audit log. Empty
	// disables file logging (records still reach slog and the event
	// stream).
	AuditLog string `yaml:"audit_log"`
}

// FilesConfig controls the file access guard.
type FilesConfig struct {
	AllowSensitiveReads  bool `yaml:"allow_sensitive_reads"`
	AllowSensitiveWrites bool `yaml:"allow_sensitive_writes"`
}

// LeakGuardConfig controls the outbound leak guard.
type LeakGuardConfig struct {
	// Enabled defaults to true; set to false only for closed test
	// environments.
	Enabled *bool `yaml:"enabled"`

	// Action is "redact" or "block". Default: redact.
	Action string `yaml:"action"`

	// Sensitivity is the confidence threshold in [0,1]. Default: 0.7.
	Sensitivity *float64 `yaml:"sensitivity"`
}

// ApprovalConfig controls the authorization engine.
type ApprovalConfig struct {
	// Autonomy is "read-only", "supervised", or "full".
	// Default: supervised.
	Autonomy string `yaml:"autonomy"`

	// GatedActions are tool-name glob patterns that always require
	// approval.
	GatedActions []string `yaml:"gated_actions"`

	// AutoApprove are tool-name glob patterns approved without a
	// prompt.
	AutoApprove []string `yaml:"auto_approve"`

	// BlockHighRiskCommands rejects destructive command classes
	// outright. Default: true.
	BlockHighRiskCommands *bool `yaml:"block_high_risk_commands"`

	// Timeout is how long a call waits for a decision. Default: 2m.
	Timeout time.Duration `yaml:"timeout"`

	// ToolConcurrency bounds parallel tool execution. Default: 1.
	ToolConcurrency int `yaml:"tool_concurrency"`

	// OTP configures the one-time-password challenge. The seed file
	// is read into protected memory at startup; an empty path
	// disables OTP resolution.
	OTP OTPConfig `yaml:"otp"`
}

// OTPConfig configures TOTP approval challenges.
type OTPConfig struct {
	SeedFile string        `yaml:"seed_file"`
	Digits   int           `yaml:"digits"`
	Step     time.Duration `yaml:"step"`
	Skew     *int          `yaml:"skew"`
}

// GatewayConfig controls the HTTP delivery surface.
type GatewayConfig struct {
	// Listen is the bind address. Default: 127.0.0.1:7777.
	Listen string `yaml:"listen"`

	// PairingTokenHash is the argon2id hash of the dashboard pairing
	// token, in the encoded form produced by `warden-gate --pair`.
	// Empty restricts the gateway to loopback requests.
	PairingTokenHash string `yaml:"pairing_token_hash"`

	// Upstream is the base URL of the OpenAI-compatible model
	// backend (e.g. "https://api.example.com/v1"). Empty runs the
	// gate with a local echo responder, for pairing and smoke tests.
	Upstream string `yaml:"upstream"`

	// UpstreamKeyFile is a file holding the upstream API key. The key
	// is read into protected memory and never appears in the config
	// itself.
	UpstreamKeyFile string `yaml:"upstream_key_file"`
}

// Load loads configuration from the WARDEN_CONFIG environment
// variable. Fails when it is unset; there is no search path.
func Load() (*Config, error) {
	path := os.Getenv("WARDEN_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("WARDEN_CONFIG environment variable not set; " +
			"set it to the path of your warden.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".jsonc") {
		data = jsonc.ToJSON(data)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks field values. Returns the first problem found,
// qualified by the field path.
func (c *Config) Validate() error {
	switch c.LeakGuard.Action {
	case "", string(policy.LeakRedact), string(policy.LeakBlock):
	default:
		return fmt.Errorf("leak_guard.action: %q is not \"redact\" or \"block\"", c.LeakGuard.Action)
	}
	if s := c.LeakGuard.Sensitivity; s != nil && (*s < 0 || *s > 1) {
		return fmt.Errorf("leak_guard.sensitivity: %v is outside [0,1]", *s)
	}
	switch c.Approval.Autonomy {
	case "", string(policy.AutonomyReadOnly), string(policy.AutonomySupervised), string(policy.AutonomyFull):
	default:
		return fmt.Errorf("approval.autonomy: %q is not a known autonomy level", c.Approval.Autonomy)
	}
	if c.Approval.Timeout < 0 {
		return fmt.Errorf("approval.timeout: must not be negative")
	}
	if c.Approval.ToolConcurrency < 0 {
		return fmt.Errorf("approval.tool_concurrency: must not be negative")
	}
	if d := c.Approval.OTP.Digits; d != 0 && (d < 6 || d > 10) {
		return fmt.Errorf("approval.otp.digits: %d is outside [6,10]", d)
	}
	return nil
}

// Policy materializes the policy snapshot from the configuration,
// applying documented defaults for unset fields. Each call returns an
// independent value: callers take one snapshot per operation and the
// snapshot never changes underneath them.
func (c *Config) Policy() policy.Snapshot {
	snapshot := policy.Default()

	snapshot.AllowSensitiveFileReads = c.Files.AllowSensitiveReads
	snapshot.AllowSensitiveFileWrites = c.Files.AllowSensitiveWrites

	if c.LeakGuard.Enabled != nil {
		snapshot.OutboundLeakGuard.Enabled = *c.LeakGuard.Enabled
	}
	if c.LeakGuard.Action != "" {
		snapshot.OutboundLeakGuard.Action = policy.LeakAction(c.LeakGuard.Action)
	}
	if c.LeakGuard.Sensitivity != nil {
		snapshot.OutboundLeakGuard.Sensitivity = *c.LeakGuard.Sensitivity
	}

	if c.Approval.Autonomy != "" {
		snapshot.Autonomy = policy.Autonomy(c.Approval.Autonomy)
	}
	snapshot.GatedActions = append([]string(nil), c.Approval.GatedActions...)
	snapshot.AutoApprove = append([]string(nil), c.Approval.AutoApprove...)
	if c.Approval.BlockHighRiskCommands != nil {
		snapshot.BlockHighRiskCommands = *c.Approval.BlockHighRiskCommands
	} else {
		snapshot.BlockHighRiskCommands = true
	}
	if c.Approval.Timeout > 0 {
		snapshot.ApprovalTimeout = c.Approval.Timeout
	}
	if c.Approval.ToolConcurrency > 0 {
		snapshot.ToolConcurrency = c.Approval.ToolConcurrency
	}

	if c.Approval.OTP.Digits > 0 {
		snapshot.OTP.Digits = c.Approval.OTP.Digits
	}
	if c.Approval.OTP.Step > 0 {
		snapshot.OTP.Step = c.Approval.OTP.Step
	}
	if c.Approval.OTP.Skew != nil {
		snapshot.OTP.Skew = *c.Approval.OTP.Skew
	}

	return snapshot
}
