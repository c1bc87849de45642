// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/warden-project/warden/approval"
	"github.com/warden-project/warden/audit"
	"github.com/warden-project/warden/leakguard"
	"github.com/warden-project/warden/lib/policy"
)

// ChatMessage is one message in an OpenAI-style conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// handleChat serves POST /v1/chat/completions. The responder proposes
// a turn; any tool calls run through the authorization engine and the
// tool registry; the assembled text passes through the leak guard
// before a single byte reaches the client. The streaming variant is
// identical except for delivery: it buffers the complete guarded text
// and then re-chunks it, so no prefix of a credential can escape in
// an early chunk.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages is required", http.StatusBadRequest)
		return
	}

	// One snapshot per request: a config reload mid-request must not
	// change the rules this request runs under.
	snapshot := s.config.Policy()
	session := approval.Session{ID: r.Header.Get("X-Warden-Session")}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	reply, err := s.config.Responder.Respond(r.Context(), req.Messages)
	if err != nil {
		s.log.Error("responder failed", "error", err)
		http.Error(w, "upstream failure", http.StatusBadGateway)
		return
	}

	var parts []string
	if reply.Text != "" {
		parts = append(parts, reply.Text)
	}
	if len(reply.Calls) > 0 {
		results := s.config.Loop.Execute(r.Context(), session, snapshot, reply.Calls)
		for _, result := range results {
			parts = append(parts, fmt.Sprintf("[%s] %s", result.Tool, result.Output))
		}
	}
	assembled := strings.Join(parts, "\n")

	id := "chatcmpl-" + uuid.NewString()
	if req.Stream {
		s.streamChat(w, r, id, req.Model, assembled, snapshot)
		return
	}

	guarded := s.guardOutbound("chat", assembled, snapshot)
	stop := "stop"
	writeJSON(w, http.StatusOK, chatResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      &ChatMessage{Role: "assistant", Content: guarded},
			FinishReason: &stop,
		}},
	})
}

// streamChat delivers one guarded completion as SSE chunks. The text
// goes through a leak-guard stream whose transport re-chunks only
// after Close has produced the final guarded form.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, id, model, text string, snapshot policy.Snapshot) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	chunker := &sseChunker{w: w, id: id, model: model}
	stream := leakguard.NewStream(chunker, snapshot)
	stream.Write([]byte(text))
	if err := stream.Close(); err != nil {
		s.log.Error("writing chat stream", "error", err)
		return
	}
	s.recordGuard("chat", stream.Result())

	stop := "stop"
	final := chatResponse{
		ID: id, Object: "chat.completion.chunk", Created: time.Now().Unix(), Model: model,
		Choices: []chatChoice{{Delta: &ChatMessage{}, FinishReason: &stop}},
	}
	data, _ := json.Marshal(final)
	fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", data)
	flusher.Flush()
}

// guardOutbound applies the leak guard to assembled response text and
// records any action taken.
func (s *Server) guardOutbound(surface, text string, snapshot policy.Snapshot) string {
	result := leakguard.Guard(text, snapshot)
	s.recordGuard(surface, result)
	return result.Text
}

func (s *Server) recordGuard(surface string, result leakguard.Result) {
	if !result.Blocked && result.Redacted == 0 {
		return
	}
	decision := "redact"
	if result.Blocked {
		decision = "block"
	}
	s.config.Recorder.Record(audit.Record{
		Time:     time.Now(),
		Kind:     audit.KindLeakGuard,
		Tool:     surface,
		Decision: decision,
		Reason:   fmt.Sprintf("%d findings", len(result.Findings)),
	})
}

// sseChunker splits one final guarded text into OpenAI-style
// completion chunks. It only ever receives fully guarded bytes.
type sseChunker struct {
	w     http.ResponseWriter
	id    string
	model string
}

const streamChunkSize = 64

func (c *sseChunker) Write(p []byte) (int, error) {
	flusher, _ := c.w.(http.Flusher)
	text := string(p)
	for len(text) > 0 {
		n := streamChunkSize
		if n > len(text) {
			n = len(text)
		}
		// Back off to a rune boundary so a chunk never splits a
		// multi-byte character. Bounded to one rune's worth of
		// bytes: guarded text can be invalid UTF-8 (a file tool
		// reading a binary), and an unbounded walk would never find
		// a boundary. Such chunks go out as-is.
		for back := 0; back < utf8.UTFMax-1 && n > 1 && n < len(text) && !utf8.RuneStart(text[n]); back++ {
			n--
		}
		chunk := chatResponse{
			ID: c.id, Object: "chat.completion.chunk", Created: time.Now().Unix(), Model: c.model,
			Choices: []chatChoice{{Delta: &ChatMessage{Role: "assistant", Content: text[:n]}}},
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return 0, err
		}
		if _, err := fmt.Fprintf(c.w, "data: %s\n\n", data); err != nil {
			return 0, err
		}
		if flusher != nil {
			flusher.Flush()
		}
		text = text[n:]
	}
	return len(p), nil
}
