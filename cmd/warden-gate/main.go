// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Warden-gate is the guard daemon between an agent's model backend
// and the host: it classifies sensitive resources, gates risky tool
// calls behind approval, scans outbound responses for credential
// leaks, and serves the audit event stream.
package main

import (
	"bufio"
	"context"
	"encoding/base32"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/warden-project/warden/agent"
	"github.com/warden-project/warden/approval"
	"github.com/warden-project/warden/audit"
	"github.com/warden-project/warden/gateway"
	"github.com/warden-project/warden/lib/clock"
	"github.com/warden-project/warden/lib/config"
	"github.com/warden-project/warden/lib/secret"
	"github.com/warden-project/warden/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var listen string
	var workspace string
	var pair bool
	var showVersion bool

	flagSet := pflag.NewFlagSet("warden-gate", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $WARDEN_CONFIG)")
	flagSet.StringVar(&listen, "listen", "", "listen address override")
	flagSet.StringVar(&workspace, "workspace", "", "workspace root override for file tools")
	flagSet.BoolVar(&pair, "pair", false, "prompt for a pairing token, print its hash, and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("warden-gate %s\n", version.Info())
		return nil
	}
	if pair {
		return runPair()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	address := cfg.Gateway.Listen
	if listen != "" {
		address = listen
	}
	if address == "" {
		address = "127.0.0.1:7777"
	}
	root := cfg.Workspace
	if workspace != "" {
		root = workspace
	}
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return fmt.Errorf("resolving workspace: %w", err)
		}
	}

	logger.Info("starting warden-gate",
		"version", version.Info(),
		"listen", address,
		"workspace", root,
	)

	// Audit sinks: structured log, in-memory ring for backfill,
	// broadcast for live subscribers, and the tamper-evident file log
	// when configured.
	ring := audit.NewRing(audit.DefaultRingCapacity)
	broadcast := audit.NewBroadcast(64)
	recorder := audit.Tee{audit.Logger{Log: logger}, ring, broadcast}
	if cfg.AuditLog != "" {
		logWriter, err := audit.OpenLog(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer logWriter.Close()
		recorder = append(recorder, logWriter)
	}

	var otp *approval.OTPVerifier
	if seedFile := cfg.Approval.OTP.SeedFile; seedFile != "" {
		seed, err := loadOTPSeed(seedFile)
		if err != nil {
			return fmt.Errorf("loading OTP seed: %w", err)
		}
		otp = approval.NewOTPVerifier(seed, cfg.Policy().OTP)
		defer otp.Close()
		logger.Info("otp challenge enabled")
	}

	engine := approval.New(clock.Real(), recorder, otp)

	registry := agent.NewRegistry()
	for _, tool := range agent.FileTools(root, recorder) {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	if err := registry.Register(agent.ShellTool(agent.ExecShell)); err != nil {
		return err
	}
	loop := agent.NewLoop(engine, registry, recorder, logger)

	var responder gateway.Responder
	if cfg.Gateway.Upstream != "" {
		var key secret.Redacted
		if cfg.Gateway.UpstreamKeyFile != "" {
			data, err := os.ReadFile(cfg.Gateway.UpstreamKeyFile)
			if err != nil {
				return fmt.Errorf("reading upstream key: %w", err)
			}
			key = secret.NewRedacted(strings.TrimSpace(string(data)))
		}
		responder = newUpstreamResponder(cfg.Gateway.Upstream, key, registry.Names())
		logger.Info("using upstream responder", "upstream", cfg.Gateway.Upstream)
	} else {
		responder = echoResponder{}
		logger.Warn("no upstream configured, using echo responder")
	}

	server, err := gateway.New(gateway.Config{
		Address:          address,
		PairingTokenHash: cfg.Gateway.PairingTokenHash,
		Policy:           cfg.Policy,
		Engine:           engine,
		Loop:             loop,
		Ring:             ring,
		Broadcast:        broadcast,
		Responder:        responder,
		Recorder:         recorder,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx)
}

// runPair reads a pairing token (without echo when stdin is a
// terminal) and prints the argon2id hash to store under
// gateway.pairing_token_hash.
func runPair() error {
	var token string
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Pairing token: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		token = string(raw)
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("reading token: %w", scanner.Err())
		}
		token = scanner.Text()
	}
	if token == "" {
		return fmt.Errorf("pairing token is empty")
	}

	hash, err := gateway.HashPairingToken(token)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// loadOTPSeed reads the shared TOTP seed into protected memory.
// Seeds are stored base32-encoded (the form authenticator apps
// import); raw bytes are accepted as a fallback.
func loadOTPSeed(path string) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.ToUpper(strings.TrimSpace(string(data)))
	if decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(trimmed); err == nil {
		for i := range data {
			data[i] = 0
		}
		return secret.NewFromBytes(decoded)
	}
	return secret.NewFromBytes(data)
}
