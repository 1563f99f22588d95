package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"groupwarden/internal/platform"
	"groupwarden/internal/policy"

	"github.com/rs/zerolog/log"
)

// PolicyEngine evaluates users against a group's rule set.
type PolicyEngine interface {
	Evaluate(ctx context.Context, user platform.User, groupID string, opts policy.EvaluateOptions) policy.ScanResult
	AddToWhitelist(ctx context.Context, groupID, ruleID, userID, userGroupID string) (bool, error)
}

// ScanRequest is the payload for POST /api/groups/{groupID}/scan.
type ScanRequest struct {
	User                  platform.User `json:"user"`
	AllowMissingTrustData bool          `json:"allowMissingTrustData,omitempty"`
}

// HandleScan evaluates a user snapshot against a group's rules and returns
// the resulting action.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	if groupID == "" {
		http.Error(w, "Group id is required", http.StatusBadRequest)
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.User.ID == "" {
		http.Error(w, "User id is required", http.StatusBadRequest)
		return
	}

	result := h.engine.Evaluate(r.Context(), req.User, groupID, policy.EvaluateOptions{
		AllowMissingTrustData: req.AllowMissingTrustData,
	})

	writeJSON(w, result, "scan")
}

// WhitelistRequest is the payload for the whitelist endpoint. At least one
// of UserID and UserGroupID must be set.
type WhitelistRequest struct {
	UserID      string `json:"userId,omitempty"`
	UserGroupID string `json:"userGroupId,omitempty"`
}

// WhitelistResponse reports whether the entry was newly added.
type WhitelistResponse struct {
	Added bool `json:"added"`
}

// HandleWhitelistAdd appends a user or group exemption to a rule's
// whitelist and persists the updated configuration.
func (h *Handler) HandleWhitelistAdd(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	ruleID := r.PathValue("ruleID")
	if groupID == "" || ruleID == "" {
		http.Error(w, "Group id and rule id are required", http.StatusBadRequest)
		return
	}

	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" && req.UserGroupID == "" {
		http.Error(w, "userId or userGroupId is required", http.StatusBadRequest)
		return
	}

	added, err := h.engine.AddToWhitelist(r.Context(), groupID, ruleID, req.UserID, req.UserGroupID)
	if errors.Is(err, policy.ErrRuleNotFound) {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to update whitelist", http.StatusInternalServerError)
		log.Error().Err(err).Str("group_id", groupID).Str("rule_id", ruleID).
			Msg("Failed to add whitelist entry")
		return
	}

	writeJSON(w, WhitelistResponse{Added: added}, "whitelist")
}
