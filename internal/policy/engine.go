package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"groupwarden/internal/cache"
	"groupwarden/internal/metrics"
	"groupwarden/internal/platform"

	"github.com/rs/zerolog/log"
)

// ErrRuleNotFound is returned by AddToWhitelist when no rule with the given
// id exists in the group's configuration.
var ErrRuleNotFound = errors.New("policy: rule not found")

// ConfigStore persists per-group rule configuration.
type ConfigStore interface {
	GetGroupConfig(ctx context.Context, groupID string) (*GroupConfig, error)
	SaveGroupConfig(ctx context.Context, cfg *GroupConfig) error
}

// GroupLister fetches a user's group memberships.
type GroupLister interface {
	GetUserGroups(ctx context.Context, userID string) ([]platform.UserGroup, error)
}

// Engine evaluates users against a group's rule set. Safe for concurrent
// use across callers; the only shared mutation is the append-only whitelist
// path in AddToWhitelist.
type Engine struct {
	configs   ConfigStore
	groups    GroupLister
	ruleCache *cache.TTL[string, *CompiledRuleView]
}

// EngineOptions configures the engine's derived-config cache.
type EngineOptions struct {
	// RuleCacheSize bounds the compiled-rule cache. If zero, 512 is used.
	RuleCacheSize int

	// RuleCacheTTL bounds how long compiled configs are reused. If zero,
	// 5 minutes is used.
	RuleCacheTTL time.Duration
}

// NewEngine creates a rule evaluation engine.
func NewEngine(configs ConfigStore, groups GroupLister, opts EngineOptions) *Engine {
	if opts.RuleCacheSize == 0 {
		opts.RuleCacheSize = 512
	}
	if opts.RuleCacheTTL == 0 {
		opts.RuleCacheTTL = 5 * time.Minute
	}
	return &Engine{
		configs:   configs,
		groups:    groups,
		ruleCache: cache.NewTTL[string, *CompiledRuleView](opts.RuleCacheSize, opts.RuleCacheTTL),
	}
}

// EvaluateOptions adjust evaluation for a single call.
type EvaluateOptions struct {
	// AllowMissingTrustData skips TRUST_CHECK rules for users carrying no
	// trust tags at all, instead of treating absence as low trust.
	AllowMissingTrustData bool
}

// Evaluate runs the group's enabled rules against a user snapshot, in
// stored order; the first matching rule wins. The engine never fails
// upward: internal errors resolve to ALLOW with a logged diagnostic.
func (e *Engine) Evaluate(ctx context.Context, user platform.User, groupID string, opts EvaluateOptions) ScanResult {
	result := e.evaluate(ctx, user, groupID, opts)
	metrics.PolicyEvaluationsTotal.WithLabelValues(string(result.Action)).Inc()
	return result
}

func (e *Engine) evaluate(ctx context.Context, user platform.User, groupID string, opts EvaluateOptions) ScanResult {
	cfg, err := e.configs.GetGroupConfig(ctx, groupID)
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).
			Msg("policy: failed to load group config, allowing user")
		return Allow()
	}
	if cfg == nil || len(cfg.Rules) == 0 {
		return Allow()
	}

	// Lazily fetched, at most once per evaluation
	var (
		userGroups    []platform.UserGroup
		groupsFetched bool
		groupsTried   bool
	)
	fetchGroups := func() ([]platform.UserGroup, bool) {
		if groupsTried {
			return userGroups, groupsFetched
		}
		groupsTried = true
		groups, err := e.groups.GetUserGroups(ctx, user.ID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).
				Msg("policy: failed to fetch user groups")
			return nil, false
		}
		userGroups = groups
		groupsFetched = true
		return userGroups, true
	}

	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		if !rule.Enabled {
			continue
		}

		matched, reason, err := e.evaluateRule(ctx, rule, user, opts, fetchGroups)
		if err != nil {
			// A rule that errors is treated as non-matching; evaluation
			// continues with the remaining rules.
			metrics.PolicyRuleErrorsTotal.Inc()
			log.Warn().Err(err).Str("group_id", groupID).Str("rule_id", rule.ID).
				Msg("policy: rule evaluation error, treating as non-matching")
			continue
		}
		if matched {
			metrics.PolicyRuleMatchesTotal.WithLabelValues(string(rule.Type)).Inc()
			return ScanResult{
				Action:   rule.Action,
				Reason:   reason,
				RuleName: rule.Name,
				RuleID:   rule.ID,
			}
		}
	}

	return Allow()
}

type groupFetcher func() ([]platform.UserGroup, bool)

func (e *Engine) evaluateRule(ctx context.Context, rule *Rule, user platform.User, opts EvaluateOptions, fetchGroups groupFetcher) (bool, string, error) {
	switch rule.Type {
	case RuleKeywordBlock:
		return e.evaluateKeywordRule(rule, user, fetchGroups)
	case RuleTrustCheck:
		return e.evaluateTrustRule(rule, user, opts)
	case RuleBlacklistedGroups:
		return e.evaluateBlacklistRule(ctx, rule, user)
	case RuleAgeVerification:
		if ageVerificationCheck(user) {
			return true, "Age verification required", nil
		}
		return false, "", nil
	case RuleInstancePermissionGuard:
		// Enforced by the guard loop, not the join/scan path
		return false, "", nil
	default:
		return false, "", fmt.Errorf("unknown rule type %q", rule.Type)
	}
}

func (e *Engine) evaluateKeywordRule(rule *Rule, user platform.User, fetchGroups groupFetcher) (bool, string, error) {
	// User-level exemption skips the user entirely for this rule
	if slices.Contains(rule.WhitelistedUserIDs, user.ID) {
		return false, "", nil
	}

	view, err := e.compiledView(rule)
	if err != nil {
		return false, "", err
	}

	var (
		userGroups    []platform.UserGroup
		groupsFetched bool
	)
	if view.ScanGroups {
		userGroups, groupsFetched = fetchGroups()
	}

	// Group-level exemption, only when membership data is actually available
	if groupsFetched && len(rule.WhitelistedGroupIDs) > 0 {
		for _, g := range userGroups {
			if slices.Contains(rule.WhitelistedGroupIDs, g.GroupID) {
				return false, "", nil
			}
		}
	}

	for _, field := range view.scanFields(user, userGroups, groupsFetched) {
		if kw, ok := view.matchText(field.text); ok {
			return true, fmt.Sprintf("Keyword %q found in %s", kw, field.label), nil
		}
	}

	// The age gate rides along with every enabled keyword rule, independent
	// of the keyword outcome.
	if ageVerificationCheck(user) {
		return true, "Age verification required", nil
	}

	return false, "", nil
}

func (e *Engine) evaluateTrustRule(rule *Rule, user platform.User, opts EvaluateOptions) (bool, string, error) {
	var cfg TrustConfig
	if err := decodeConfig(rule, &cfg); err != nil {
		return false, "", err
	}

	required := resolveTrustLevel(cfg.MinimumLevel)
	if required < 0 {
		return false, "", fmt.Errorf("unknown minimum trust level %q", cfg.MinimumLevel)
	}

	position, hasTrustData := userTrustLevel(user.Tags)
	if !hasTrustData {
		if opts.AllowMissingTrustData {
			return false, "", nil
		}
		return true, fmt.Sprintf("Trust level below required %q", trustLevelName(required)), nil
	}

	if position < required {
		return true, fmt.Sprintf("Trust level %q is below required %q",
			trustLevelName(position), trustLevelName(required)), nil
	}
	return false, "", nil
}

func (e *Engine) evaluateBlacklistRule(ctx context.Context, rule *Rule, user platform.User) (bool, string, error) {
	var cfg BlacklistConfig
	if err := decodeConfig(rule, &cfg); err != nil {
		return false, "", err
	}
	if len(cfg.GroupIDs) == 0 {
		return false, "", nil
	}

	groups, err := e.groups.GetUserGroups(ctx, user.ID)
	if err != nil {
		return false, "", fmt.Errorf("failed to fetch groups for %s: %w", user.ID, err)
	}

	blacklist := make(map[string]struct{}, len(cfg.GroupIDs))
	for _, id := range cfg.GroupIDs {
		blacklist[id] = struct{}{}
	}

	for _, g := range groups {
		if _, ok := blacklist[g.GroupID]; ok {
			return true, fmt.Sprintf("Member of blacklisted group %q", g.Name), nil
		}
	}
	return false, "", nil
}

// compiledView returns the cached compiled form of a keyword rule,
// recompiling when the raw config content changed.
func (e *Engine) compiledView(rule *Rule) (*CompiledRuleView, error) {
	key := configFingerprint(rule)
	if view, ok := e.ruleCache.Get(key); ok {
		return view, nil
	}
	view, err := compileKeywordRule(rule)
	if err != nil {
		return nil, err
	}
	e.ruleCache.Set(key, view)
	return view, nil
}

// AddToWhitelist appends a user and/or group exemption to a rule and
// persists the updated configuration. Returns whether a change was made.
func (e *Engine) AddToWhitelist(ctx context.Context, groupID, ruleID, userID, userGroupID string) (bool, error) {
	cfg, err := e.configs.GetGroupConfig(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to load config for group %s: %w", groupID, err)
	}
	if cfg == nil {
		return false, fmt.Errorf("%w: %s in group %s", ErrRuleNotFound, ruleID, groupID)
	}

	rule := cfg.FindRule(ruleID)
	if rule == nil {
		return false, fmt.Errorf("%w: %s in group %s", ErrRuleNotFound, ruleID, groupID)
	}

	changed := false
	if userID != "" && !slices.Contains(rule.WhitelistedUserIDs, userID) {
		rule.WhitelistedUserIDs = append(rule.WhitelistedUserIDs, userID)
		changed = true
	}
	if userGroupID != "" && !slices.Contains(rule.WhitelistedGroupIDs, userGroupID) {
		rule.WhitelistedGroupIDs = append(rule.WhitelistedGroupIDs, userGroupID)
		changed = true
	}

	if !changed {
		return false, nil
	}

	if err := e.configs.SaveGroupConfig(ctx, cfg); err != nil {
		return false, fmt.Errorf("failed to save config for group %s: %w", groupID, err)
	}

	log.Info().
		Str("group_id", groupID).
		Str("rule_id", ruleID).
		Str("user_id", userID).
		Str("user_group_id", userGroupID).
		Msg("policy: whitelist updated")

	return true, nil
}
