// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warden-project/warden/audit"
	"github.com/warden-project/warden/lib/fileguard"
	"github.com/warden-project/warden/lib/linkguard"
	"github.com/warden-project/warden/lib/policy"
)

// Tool executes one named capability. Arguments arrive as the raw
// JSON object from the tool call; the snapshot is the policy in force
// for the whole operation.
type Tool interface {
	Name() string
	Run(ctx context.Context, args json.RawMessage, snapshot policy.Snapshot) (string, error)
}

// DeniedError is a refusal that may be shown to the requester
// verbatim. Its message names the denial category only, never the
// content or classification detail that triggered it.
type DeniedError struct {
	Message string
}

func (e *DeniedError) Error() string { return e.Message }

// Registry holds the tools a loop may dispatch to.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fileTool is the shared base of the fs/* tools: it resolves the
// argument path against the workspace root, runs the access guard,
// and turns guard denials into category-only refusals plus an audit
// record.
type fileTool struct {
	root     string
	recorder audit.Recorder
}

// FileTools returns the workspace file tools (fs/read, fs/list,
// fs/write, fs/edit), all rooted at root. Relative argument paths are
// resolved against root; absolute paths are taken as-is and still
// pass through the access guard.
func FileTools(root string, recorder audit.Recorder) []Tool {
	base := fileTool{root: root, recorder: recorder}
	return []Tool{
		&readTool{base},
		&listTool{base},
		&writeTool{base},
		&editTool{base},
	}
}

// guard resolves and checks one path. The returned path is the
// canonical form the caller must operate on, so the checked file and
// the accessed file cannot diverge.
func (t *fileTool) guard(tool string, op fileguard.Op, arg string, snapshot policy.Snapshot) (string, error) {
	if arg == "" {
		return "", errors.New("path argument is required")
	}
	path := arg
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.root, path)
	}
	canonical, err := fileguard.Check(op, path, snapshot)
	if err != nil {
		t.recorder.Record(audit.Record{
			Time:     time.Now(),
			Kind:     audit.KindFileAccess,
			Tool:     tool,
			Path:     path,
			Decision: "deny",
			Reason:   denialReason(err),
		})
		return "", &DeniedError{Message: fmt.Sprintf("%s denied: %s", op, denialReason(err))}
	}
	return canonical, nil
}

// denialReason maps a guard error to its category name. The category
// is all a requester learns; the classifier match itself stays in the
// audit trail.
func denialReason(err error) string {
	var blocked *fileguard.SensitiveBlockedError
	if errors.As(err, &blocked) {
		return "sensitive resource (" + blocked.Reason.String() + ")"
	}
	var escape *linkguard.LinkEscapeError
	if errors.As(err, &escape) {
		return "link escape"
	}
	return "access check failed"
}

type readTool struct{ fileTool }

func (t *readTool) Name() string { return "fs/read" }

func (t *readTool) Run(ctx context.Context, args json.RawMessage, snapshot policy.Snapshot) (string, error) {
	var a struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}
	path, err := t.guard("fs/read", fileguard.OpRead, a.Path, snapshot)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

type listTool struct{ fileTool }

func (t *listTool) Name() string { return "fs/list" }

func (t *listTool) Run(ctx context.Context, args json.RawMessage, snapshot policy.Snapshot) (string, error) {
	var a struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}
	if a.Path == "" {
		a.Path = "."
	}
	path, err := t.guard("fs/list", fileguard.OpRead, a.Path, snapshot)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", path, err)
	}
	var b strings.Builder
	for _, entry := range entries {
		b.WriteString(entry.Name())
		if entry.IsDir() {
			b.WriteByte('/')
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

type writeTool struct{ fileTool }

func (t *writeTool) Name() string { return "fs/write" }

func (t *writeTool) Run(ctx context.Context, args json.RawMessage, snapshot policy.Snapshot) (string, error) {
	var a struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}
	path, err := t.guard("fs/write", fileguard.OpWrite, a.Path, snapshot)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return fmt.Sprintf("wrote %d bytes", len(a.Content)), nil
}

type editTool struct{ fileTool }

func (t *editTool) Name() string { return "fs/edit" }

func (t *editTool) Run(ctx context.Context, args json.RawMessage, snapshot policy.Snapshot) (string, error) {
	var a struct {
		Path string `json:"path"`
		Old  string `json:"old"`
		New  string `json:"new"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}
	if a.Old == "" {
		return "", errors.New("old argument is required")
	}
	path, err := t.guard("fs/edit", fileguard.OpEdit, a.Path, snapshot)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(data)
	count := strings.Count(content, a.Old)
	if count == 0 {
		return "", fmt.Errorf("old text not found in %s", path)
	}
	if count > 1 {
		return "", fmt.Errorf("old text matches %d locations in %s, need exactly one", count, path)
	}
	content = strings.Replace(content, a.Old, a.New, 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return "edited 1 location", nil
}

// CommandRunner executes one shell command line and returns its
// combined output.
type CommandRunner func(ctx context.Context, command string) (string, error)

// ExecShell runs the command under /bin/sh. This is the production
// runner; tests substitute their own.
func ExecShell(ctx context.Context, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", command).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("command failed: %w", err)
	}
	return string(out), nil
}

type shellTool struct {
	run CommandRunner
}

// ShellTool returns the shell/exec tool backed by the given runner.
// The command line travels in the authorization request, so the
// static high-risk deny list and any human approver both see exactly
// what would run.
func ShellTool(run CommandRunner) Tool {
	return &shellTool{run: run}
}

func (t *shellTool) Name() string { return "shell/exec" }

func (t *shellTool) Run(ctx context.Context, args json.RawMessage, snapshot policy.Snapshot) (string, error) {
	var a struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}
	if a.Command == "" {
		return "", errors.New("command argument is required")
	}
	return t.run(ctx, a.Command)
}
