package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"stagesync/internal/models"

	"github.com/sirupsen/logrus"
)

type staticRules struct {
	rules []models.AutomationRule
	err   error
}

func (s staticRules) ListActive(context.Context, string) ([]models.AutomationRule, error) {
	return s.rules, s.err
}

func TestFirstMatch(t *testing.T) {
	rules := []models.AutomationRule{
		{ID: "off", Keywords: []string{"price"}, Active: false},
		{ID: "newer", Keywords: []string{"buy"}, Active: true},
		{ID: "older", Keywords: []string{"price", "buy"}, Active: true},
	}

	tests := []struct {
		text string
		want string
	}{
		{"What's your PRICE?", "older"},
		{"I want to BUY", "newer"},
		{"the buyer is here", "newer"},
		{"hello there", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := FirstMatch(rules, tt.text)
		if tt.want == "" {
			if got != nil {
				t.Errorf("FirstMatch(%q) = %s, want nil", tt.text, got.ID)
			}
			continue
		}
		if got == nil || got.ID != tt.want {
			t.Errorf("FirstMatch(%q) = %v, want %s", tt.text, got, tt.want)
		}
	}
}

func TestFirstMatch_Deterministic(t *testing.T) {
	rules := []models.AutomationRule{
		{ID: "a", Keywords: []string{"demo"}, Active: true},
		{ID: "b", Keywords: []string{"demo"}, Active: true},
	}
	for i := 0; i < 50; i++ {
		if got := FirstMatch(rules, "book a demo"); got == nil || got.ID != "a" {
			t.Fatalf("iteration %d: expected a, got %v", i, got)
		}
	}
}

func TestMatcher_Outcomes(t *testing.T) {
	ctx := context.Background()

	res, err := NewMatcher(staticRules{}).Match(ctx, "o", "anything")
	if err != nil || res.Outcome != OutcomeNoActiveRules || res.Rule != nil {
		t.Fatalf("expected no_active_rules, got %+v %v", res, err)
	}

	m := NewMatcher(staticRules{rules: []models.AutomationRule{{ID: "r", Keywords: []string{"pricing"}, Active: true}}})
	res, err = m.Match(ctx, "o", "Pricing please")
	if err != nil || res.Outcome != OutcomeMatched || res.Rule.ID != "r" {
		t.Fatalf("expected matched, got %+v %v", res, err)
	}
	res, err = m.Match(ctx, "o", "hello")
	if err != nil || res.Outcome != OutcomeNoMatch {
		t.Fatalf("expected no_match, got %+v %v", res, err)
	}

	boom := errors.New("db down")
	if _, err := NewMatcher(staticRules{err: boom}).Match(ctx, "o", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected repository error, got %v", err)
	}
}

func TestMatcher_NewestRuleWinsWithRepository(t *testing.T) {
	svc := NewRuleService(newStageTestDB(t), logrus.New())
	svc.now = tickClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, _ = svc.Create(ctx, "o", &RuleRequest{Name: "old", Keywords: []string{"demo"}, PipelineID: "p", StageID: "s-old"})
	newer, _ := svc.Create(ctx, "o", &RuleRequest{Name: "new", Keywords: []string{"demo"}, PipelineID: "p", StageID: "s-new"})

	res, err := NewMatcher(svc).Match(ctx, "o", "Can I get a DEMO?")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Rule == nil || res.Rule.ID != newer.ID {
		t.Fatalf("expected most recent rule to win, got %+v", res.Rule)
	}
}
