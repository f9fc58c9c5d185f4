package services

import (
	"context"
	"strings"

	"stagesync/internal/models"
)

// MatchOutcome 消息处理的终态
type MatchOutcome string

const (
	OutcomeNoActiveRules     MatchOutcome = "no_active_rules"
	OutcomeNoMatch           MatchOutcome = "no_match"
	OutcomeMatched           MatchOutcome = "matched"
	OutcomeMatchedAndSynced  MatchOutcome = "matched_and_synced"
	OutcomeMatchedSyncFailed MatchOutcome = "matched_sync_failed"
)

// MatchResult is the transient result of evaluating one text.
type MatchResult struct {
	Rule    *models.AutomationRule
	Outcome MatchOutcome
}

// ActiveRuleLister is the read side of the rule repository used for matching.
type ActiveRuleLister interface {
	ListActive(ctx context.Context, ownerID string) ([]models.AutomationRule, error)
}

// Matcher selects at most one rule for a text.
//
// Policy is first-match in repository order (most recently created first): a
// rule matches when any of its keywords is a substring of the lower-cased text.
// When two rules overlap on the same input the older one is never reported.
type Matcher struct {
	rules ActiveRuleLister
}

func NewMatcher(rules ActiveRuleLister) *Matcher {
	return &Matcher{rules: rules}
}

// Match evaluates text against the owner's active rules. It performs no
// external I/O besides reading the rule repository.
func (m *Matcher) Match(ctx context.Context, ownerID, text string) (*MatchResult, error) {
	rules, err := m.rules.ListActive(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return &MatchResult{Outcome: OutcomeNoActiveRules}, nil
	}
	if rule := FirstMatch(rules, text); rule != nil {
		return &MatchResult{Rule: rule, Outcome: OutcomeMatched}, nil
	}
	return &MatchResult{Outcome: OutcomeNoMatch}, nil
}

// FirstMatch returns a copy of the first active rule in rules whose keywords
// occur in text. Keywords are expected to be normalized already.
func FirstMatch(rules []models.AutomationRule, text string) *models.AutomationRule {
	lowered := strings.ToLower(text)
	for i := range rules {
		if !rules[i].Active {
			continue
		}
		for _, kw := range rules[i].Keywords {
			if kw != "" && strings.Contains(lowered, kw) {
				rule := rules[i]
				return &rule
			}
		}
	}
	return nil
}
