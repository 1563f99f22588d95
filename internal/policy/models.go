// Package policy implements the moderation rule engine: per-group rule sets
// evaluated against user snapshots, first match wins.
package policy

import (
	"encoding/json"
	"fmt"
)

// RuleType identifies a rule's evaluation semantics.
type RuleType string

const (
	RuleKeywordBlock            RuleType = "KEYWORD_BLOCK"
	RuleTrustCheck              RuleType = "TRUST_CHECK"
	RuleBlacklistedGroups       RuleType = "BLACKLISTED_GROUPS"
	RuleAgeVerification         RuleType = "AGE_VERIFICATION"
	RuleInstancePermissionGuard RuleType = "INSTANCE_PERMISSION_GUARD"
)

// ActionType is the enforcement action a matching rule requests.
type ActionType string

const (
	ActionReject     ActionType = "REJECT"
	ActionAutoBlock  ActionType = "AUTO_BLOCK"
	ActionNotifyOnly ActionType = "NOTIFY_ONLY"
	ActionAllow      ActionType = "ALLOW"
)

// Rule is one moderation rule within a group's configuration. Rules are
// priority-ordered by list position; disabled rules are never evaluated.
type Rule struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    RuleType        `json:"type"`
	Enabled bool            `json:"enabled"`
	Action  ActionType      `json:"actionType"`
	Config  json.RawMessage `json:"config,omitempty"`

	// Exemptions appended by the evaluation path (self-healing).
	WhitelistedUserIDs  []string `json:"whitelistedUserIds,omitempty"`
	WhitelistedGroupIDs []string `json:"whitelistedGroupIds,omitempty"`
}

// GroupConfig is a group's full moderation configuration.
type GroupConfig struct {
	GroupID string `json:"groupId"`
	Rules   []Rule `json:"rules"`
}

// FindRule returns the rule with the given id, or nil.
func (c *GroupConfig) FindRule(ruleID string) *Rule {
	for i := range c.Rules {
		if c.Rules[i].ID == ruleID {
			return &c.Rules[i]
		}
	}
	return nil
}

// MatchMode selects how keywords are matched against scanned text.
type MatchMode string

const (
	MatchPartial   MatchMode = "PARTIAL"
	MatchWholeWord MatchMode = "WHOLE_WORD"
)

// KeywordConfig is the typed configuration for KEYWORD_BLOCK rules.
type KeywordConfig struct {
	Keywords       []string  `json:"keywords"`
	WhitelistTerms []string  `json:"whitelistTerms,omitempty"`
	MatchMode      MatchMode `json:"matchMode,omitempty"`
	ScanBio        bool      `json:"scanBio,omitempty"`
	ScanStatus     bool      `json:"scanStatus,omitempty"`
	ScanPronouns   bool      `json:"scanPronouns,omitempty"`
	ScanGroups     bool      `json:"scanGroups,omitempty"`
}

// TrustConfig is the typed configuration for TRUST_CHECK rules.
type TrustConfig struct {
	// MinimumLevel names the required trust level; resolved by substring
	// match against the ladder names.
	MinimumLevel string `json:"minimumLevel"`
}

// BlacklistConfig is the typed configuration for BLACKLISTED_GROUPS rules.
type BlacklistConfig struct {
	GroupIDs []string `json:"groupIds"`
}

// ScanResult is the outcome of evaluating a user against a group's rules.
type ScanResult struct {
	Action   ActionType `json:"action"`
	Reason   string     `json:"reason,omitempty"`
	RuleName string     `json:"ruleName,omitempty"`
	RuleID   string     `json:"ruleId,omitempty"`
}

// Allow is the default result when no rule matches.
func Allow() ScanResult {
	return ScanResult{Action: ActionAllow}
}

func decodeConfig(rule *Rule, out any) error {
	if len(rule.Config) == 0 {
		return fmt.Errorf("rule %s has no config", rule.ID)
	}
	if err := json.Unmarshal(rule.Config, out); err != nil {
		return fmt.Errorf("failed to parse config for rule %s: %w", rule.ID, err)
	}
	return nil
}
