// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/warden-project/warden/agent"
	"github.com/warden-project/warden/gateway"
	"github.com/warden-project/warden/lib/secret"
)

// upstreamResponder proxies chat turns to an OpenAI-compatible model
// backend. Tool names cross the wire with "." separators (upstream
// APIs reject "/" in function names) and map back to the registry's
// hierarchical form on the way in.
type upstreamResponder struct {
	base   string
	key    secret.Redacted
	tools  []string
	client *http.Client
}

func newUpstreamResponder(base string, key secret.Redacted, tools []string) *upstreamResponder {
	return &upstreamResponder{
		base:   strings.TrimRight(base, "/"),
		key:    key,
		tools:  tools,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type upstreamToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func (u *upstreamResponder) Respond(ctx context.Context, messages []gateway.ChatMessage) (gateway.ChatReply, error) {
	payload := map[string]any{
		"messages": messages,
	}
	if len(u.tools) > 0 {
		tools := make([]map[string]any, 0, len(u.tools))
		for _, name := range u.tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name": strings.ReplaceAll(name, "/", "."),
				},
			})
		}
		payload["tools"] = tools
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return gateway.ChatReply{}, fmt.Errorf("encoding upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return gateway.ChatReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := u.key.Reveal(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return gateway.ChatReply{}, fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// Upstream error bodies can carry request echoes; report the
		// status only.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return gateway.ChatReply{}, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content   string             `json:"content"`
				ToolCalls []upstreamToolCall `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return gateway.ChatReply{}, fmt.Errorf("decoding upstream response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return gateway.ChatReply{}, fmt.Errorf("upstream returned no choices")
	}

	message := parsed.Choices[0].Message
	reply := gateway.ChatReply{Text: message.Content}
	for _, call := range message.ToolCalls {
		reply.Calls = append(reply.Calls, agent.Call{
			ID:        call.ID,
			Tool:      strings.ReplaceAll(call.Function.Name, ".", "/"),
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}
	return reply, nil
}

// echoResponder answers with the last user message. It stands in for
// an upstream during pairing and smoke tests.
type echoResponder struct{}

func (echoResponder) Respond(ctx context.Context, messages []gateway.ChatMessage) (gateway.ChatReply, error) {
	if len(messages) == 0 {
		return gateway.ChatReply{}, nil
	}
	return gateway.ChatReply{Text: messages[len(messages)-1].Content}, nil
}
