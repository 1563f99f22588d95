package policy

import (
	"encoding/json"
	"testing"

	"groupwarden/internal/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keywordRule(t *testing.T, cfg KeywordConfig) *Rule {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return &Rule{
		ID:      "rule_kw",
		Name:    "Keyword filter",
		Type:    RuleKeywordBlock,
		Enabled: true,
		Action:  ActionReject,
		Config:  raw,
	}
}

func TestCompileKeywordRule(t *testing.T) {
	rule := keywordRule(t, KeywordConfig{
		Keywords:       []string{"Spam", "  scam  ", ""},
		WhitelistTerms: []string{"Spamalot"},
		MatchMode:      MatchWholeWord,
	})

	view, err := compileKeywordRule(rule)
	require.NoError(t, err)

	assert.Equal(t, []string{"spam", "scam"}, view.Keywords)
	assert.Equal(t, []string{"spamalot"}, view.WhitelistTerms)
	assert.True(t, view.WholeWord)
	assert.Len(t, view.matchers, 2)
}

func TestCompileKeywordRule_BadConfig(t *testing.T) {
	rule := &Rule{ID: "rule_bad", Type: RuleKeywordBlock, Config: json.RawMessage(`{"keywords": "not-a-list"}`)}
	_, err := compileKeywordRule(rule)
	assert.Error(t, err)

	rule = &Rule{ID: "rule_empty", Type: RuleKeywordBlock}
	_, err = compileKeywordRule(rule)
	assert.Error(t, err)
}

func TestMatchText_PartialMode(t *testing.T) {
	view, err := compileKeywordRule(keywordRule(t, KeywordConfig{
		Keywords:  []string{"ban"},
		MatchMode: MatchPartial,
	}))
	require.NoError(t, err)

	kw, ok := view.matchText("banana stand")
	assert.True(t, ok, "partial mode matches inside words")
	assert.Equal(t, "ban", kw)

	_, ok = view.matchText("clean name")
	assert.False(t, ok)
}

func TestMatchText_WholeWordMode(t *testing.T) {
	view, err := compileKeywordRule(keywordRule(t, KeywordConfig{
		Keywords:  []string{"ban"},
		MatchMode: MatchWholeWord,
	}))
	require.NoError(t, err)

	_, ok := view.matchText("banana stand")
	assert.False(t, ok, "whole-word mode must not match inside banana")

	kw, ok := view.matchText("instant BAN incoming")
	assert.True(t, ok, "whole-word match is case-insensitive")
	assert.Equal(t, "ban", kw)
}

func TestMatchText_WhitelistOverride(t *testing.T) {
	view, err := compileKeywordRule(keywordRule(t, KeywordConfig{
		Keywords:       []string{"spam"},
		WhitelistTerms: []string{"spamalot"},
		MatchMode:      MatchPartial,
	}))
	require.NoError(t, err)

	// Keyword present but whitelist term in the same field suppresses it
	_, ok := view.matchText("Sir Spamalot")
	assert.False(t, ok)

	// Without the whitelist term the keyword matches
	_, ok = view.matchText("spam king")
	assert.True(t, ok)
}

func TestMatchText_EmptyText(t *testing.T) {
	view, err := compileKeywordRule(keywordRule(t, KeywordConfig{Keywords: []string{"spam"}}))
	require.NoError(t, err)

	_, ok := view.matchText("")
	assert.False(t, ok)
}

func TestScanFields_Order(t *testing.T) {
	view := &CompiledRuleView{ScanBio: true, ScanStatus: true, ScanPronouns: true, ScanGroups: true}
	user := platform.User{
		DisplayName:       "name",
		Bio:               "bio",
		Status:            "status",
		StatusDescription: "detail",
		Pronouns:          "they/them",
	}
	groups := []platform.UserGroup{{GroupID: "grp_1", Name: "Crew", ShortCode: "CRW"}}

	fields := view.scanFields(user, groups, true)
	labels := make([]string, len(fields))
	for i, f := range fields {
		labels[i] = f.label
	}
	assert.Equal(t, []string{
		"Display Name", "Bio", "Status", "Status Description", "Pronouns",
		"Group Name", "Group Short Code",
	}, labels)

	// Group fields are omitted when membership data was not fetched
	fields = view.scanFields(user, nil, false)
	assert.Len(t, fields, 5)
}

func TestScanFields_TogglesOff(t *testing.T) {
	view := &CompiledRuleView{}
	fields := view.scanFields(platform.User{DisplayName: "n", Bio: "b"}, nil, false)
	assert.Len(t, fields, 1)
	assert.Equal(t, "Display Name", fields[0].label)
}

func TestAgeVerificationCheck(t *testing.T) {
	check := func(status string) bool {
		return ageVerificationCheck(platform.User{AgeVerificationStatus: status})
	}

	assert.False(t, check(""), "absent status is not a violation")
	assert.False(t, check(AgeVerificationVerified))
	assert.False(t, check(AgeVerificationHidden))
	assert.True(t, check("unverified"))
	assert.True(t, check("pending"))
}

func TestConfigFingerprint_ChangesWithConfig(t *testing.T) {
	a := keywordRule(t, KeywordConfig{Keywords: []string{"spam"}})
	b := keywordRule(t, KeywordConfig{Keywords: []string{"scam"}})

	assert.NotEqual(t, configFingerprint(a), configFingerprint(b),
		"editing config must change the cache key even for the same rule id")
	assert.Equal(t, configFingerprint(a), configFingerprint(a))
}
