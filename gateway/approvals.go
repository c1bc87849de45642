// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/warden-project/warden/approval"
)

type approvalView struct {
	ID   string `json:"id"`
	Tool string `json:"tool"`
}

// handleListApprovals returns the requests currently awaiting a
// decision.
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	pending := s.config.Engine.Pending()
	views := make([]approvalView, 0, len(pending))
	for id, tool := range pending {
		views = append(views, approvalView{ID: id, Tool: tool})
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": views})
}

type resolveRequest struct {
	// Granted approves or denies directly. Ignored when OTP is set.
	Granted *bool `json:"granted,omitempty"`

	// OTP approves via the one-time-password challenge.
	OTP string `json:"otp,omitempty"`
}

// handleResolveApproval resolves one pending request, either by a
// direct grant/deny or by an OTP code.
func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	switch {
	case req.OTP != "":
		err = s.config.Engine.ResolveOTP(id, req.OTP)
	case req.Granted != nil:
		err = s.config.Engine.Resolve(id, *req.Granted)
	default:
		http.Error(w, "granted or otp is required", http.StatusBadRequest)
		return
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"resolved": true})
	case errors.Is(err, approval.ErrUnknownRequest):
		http.Error(w, "unknown approval request", http.StatusNotFound)
	case errors.Is(err, approval.ErrAlreadyResolved):
		http.Error(w, "approval already resolved", http.StatusConflict)
	default:
		// OTP rejection lands here. No detail beyond the category.
		s.log.Warn("approval resolution rejected", "request", id, "error", err)
		http.Error(w, "approval resolution rejected", http.StatusForbidden)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
