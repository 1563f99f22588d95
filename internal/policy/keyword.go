package policy

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"groupwarden/internal/platform"

	"github.com/rs/zerolog/log"
)

// CompiledRuleView is the derived, cache-only form of a KEYWORD_BLOCK
// config: keywords lowercased, whole-word matchers precompiled. It must be
// recomputed whenever the raw config content changes, so the cache key
// includes a fingerprint of the config, not just the rule id.
type CompiledRuleView struct {
	Keywords       []string
	WhitelistTerms []string
	WholeWord      bool
	ScanBio        bool
	ScanStatus     bool
	ScanPronouns   bool
	ScanGroups     bool

	// matchers maps keyword -> word-boundary regexp. A keyword whose
	// pattern failed to compile is absent and falls back to a substring test.
	matchers map[string]*regexp.Regexp
}

// configFingerprint hashes a rule's raw config so edits within the cache
// TTL still miss.
func configFingerprint(rule *Rule) string {
	h := fnv.New64a()
	h.Write(rule.Config)
	return rule.ID + ":" + strconv.FormatUint(h.Sum64(), 16)
}

func compileKeywordRule(rule *Rule) (*CompiledRuleView, error) {
	var cfg KeywordConfig
	if err := decodeConfig(rule, &cfg); err != nil {
		return nil, err
	}

	view := &CompiledRuleView{
		WholeWord:    cfg.MatchMode == MatchWholeWord,
		ScanBio:      cfg.ScanBio,
		ScanStatus:   cfg.ScanStatus,
		ScanPronouns: cfg.ScanPronouns,
		ScanGroups:   cfg.ScanGroups,
		matchers:     make(map[string]*regexp.Regexp),
	}

	for _, kw := range cfg.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		view.Keywords = append(view.Keywords, kw)
		if view.WholeWord {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
			if err != nil {
				// Fall back to a substring test for this keyword only
				log.Warn().Err(err).Str("keyword", kw).Str("rule", rule.ID).
					Msg("policy: keyword matcher failed to compile, using substring match")
				continue
			}
			view.matchers[kw] = re
		}
	}

	for _, term := range cfg.WhitelistTerms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			view.WhitelistTerms = append(view.WhitelistTerms, term)
		}
	}

	return view, nil
}

// matchText returns the first keyword found in text, honoring the match
// mode. A hit is suppressed when any whitelist term occurs in the same text.
func (v *CompiledRuleView) matchText(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)

	for _, kw := range v.Keywords {
		var hit bool
		if v.WholeWord {
			if re, ok := v.matchers[kw]; ok {
				hit = re.MatchString(text)
			} else {
				hit = strings.Contains(lower, kw)
			}
		} else {
			hit = strings.Contains(lower, kw)
		}
		if !hit {
			continue
		}

		// Whitelist terms override keyword hits within the same field
		for _, term := range v.WhitelistTerms {
			if strings.Contains(lower, term) {
				return "", false
			}
		}
		return kw, true
	}
	return "", false
}

// scanField pairs a text value with the human-readable label used in
// rejection reasons.
type scanField struct {
	label string
	text  string
}

// scanFields lists the texts to scan, in priority order. Group fields are
// appended only when membership data was actually fetched.
func (v *CompiledRuleView) scanFields(user platform.User, groups []platform.UserGroup, groupsFetched bool) []scanField {
	fields := []scanField{{"Display Name", user.DisplayName}}
	if v.ScanBio {
		fields = append(fields, scanField{"Bio", user.Bio})
	}
	if v.ScanStatus {
		fields = append(fields,
			scanField{"Status", user.Status},
			scanField{"Status Description", user.StatusDescription},
		)
	}
	if v.ScanPronouns {
		fields = append(fields, scanField{"Pronouns", user.Pronouns})
	}
	if v.ScanGroups && groupsFetched {
		for _, g := range groups {
			fields = append(fields,
				scanField{"Group Name", g.Name},
				scanField{"Group Short Code", g.ShortCode},
			)
		}
	}
	return fields
}

// Age verification constants. A status that is present but neither fully
// verified nor explicitly hidden requires verification.
const (
	AgeVerificationVerified = "18+"
	AgeVerificationHidden   = "hidden"
)

// ageVerificationCheck reports whether the user's age-verification status
// requires action. This check historically piggybacks on KEYWORD_BLOCK
// evaluation in addition to the dedicated AGE_VERIFICATION rule type; it is
// isolated here so both call sites share one definition.
func ageVerificationCheck(user platform.User) bool {
	status := user.AgeVerificationStatus
	if status == "" || status == AgeVerificationVerified || status == AgeVerificationHidden {
		return false
	}
	return true
}
