package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"stagesync/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type processorFixture struct {
	db        *gorm.DB
	rules     *RuleService
	creds     *CredentialService
	crm       *crmStub
	processor *MessageProcessor
}

func newProcessorFixture(t *testing.T, crmStatus int) *processorFixture {
	db := newStageTestDB(t)
	logger := logrus.New()
	rules := NewRuleService(db, logger)
	rules.now = tickClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	creds := NewCredentialService(db, logger)
	crm := newCRMStub(t, crmStatus)
	sync := NewPipelineSyncService(crm.client(), nil, logger)
	return &processorFixture{
		db:        db,
		rules:     rules,
		creds:     creds,
		crm:       crm,
		processor: NewMessageProcessor(db, NewMatcher(rules), creds, sync, logger),
	}
}

func (f *processorFixture) connectCRM(t *testing.T, owner string) {
	_, err := f.creds.ConnectAPIKey(context.Background(), owner, "ghl-key")
	require.NoError(t, err)
}

func (f *processorFixture) addRule(t *testing.T, owner, name string, keywords ...string) *models.AutomationRule {
	rule, err := f.rules.Create(context.Background(), owner, &RuleRequest{Name: name, Keywords: keywords, PipelineID: "P1", StageID: "S1"})
	require.NoError(t, err)
	return rule
}

func TestMessageProcessor_MatchedAndSynced(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	f.connectCRM(t, "owner")
	f.addRule(t, "owner", "rule-name", "interested", "pricing")

	res, err := f.processor.Process(context.Background(), &ProcessRequest{OwnerID: "owner", Text: "Hi, I've sent the pricing info", OpportunityID: "opp-42"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatchedAndSynced, res.Outcome)
	assert.Equal(t, "rule-name", res.RuleName)
	assert.Equal(t, "P1", res.PipelineID)
	assert.Equal(t, "S1", res.StageID)
	assert.Equal(t, 1, f.crm.Hits())
	assert.Equal(t, "PUT /pipelines/P1/opportunities/opp-42", f.crm.path.Load())

	runs, total, err := f.processor.ListRuns(context.Background(), "owner", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, string(OutcomeMatchedAndSynced), runs[0].Outcome)
}

func TestMessageProcessor_NoActiveRules(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	f.connectCRM(t, "owner")

	res, err := f.processor.Process(context.Background(), &ProcessRequest{OwnerID: "owner", Text: "pricing", OpportunityID: "opp"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveRules, res.Outcome)
	assert.Equal(t, 0, f.crm.Hits())
}

func TestMessageProcessor_NoMatch(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	f.addRule(t, "owner", "r", "pricing")

	res, err := f.processor.Process(context.Background(), &ProcessRequest{OwnerID: "owner", Text: "good morning", OpportunityID: "opp"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.Empty(t, res.RuleName)
	assert.Equal(t, 0, f.crm.Hits())
}

func TestMessageProcessor_IntegrationMissing(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	f.addRule(t, "owner", "r", "pricing")

	_, err := f.processor.Process(context.Background(), &ProcessRequest{OwnerID: "owner", Text: "PRICING?", OpportunityID: "opp"})
	assert.True(t, errors.Is(err, ErrIntegrationMissing), "got %v", err)
	assert.Equal(t, KindIntegrationMissing, ErrorKind(err))
	assert.Equal(t, 0, f.crm.Hits())
}

func TestMessageProcessor_SyncFailedCarriesUpstreamStatus(t *testing.T) {
	f := newProcessorFixture(t, http.StatusBadRequest)
	f.connectCRM(t, "owner")
	f.addRule(t, "owner", "r", "pricing")

	res, err := f.processor.Process(context.Background(), &ProcessRequest{OwnerID: "owner", Text: "pricing", OpportunityID: "opp"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncFailed))
	require.NotNil(t, res)
	assert.Equal(t, OutcomeMatchedSyncFailed, res.Outcome)
	assert.Equal(t, KindSyncFailed, res.ErrorKind)
	assert.Equal(t, http.StatusBadRequest, res.UpstreamStatus)
	assert.NotEqual(t, OutcomeNoMatch, res.Outcome)

	runs, _, err := f.processor.ListRuns(context.Background(), "owner", &RunListRequest{Outcome: string(OutcomeMatchedSyncFailed)})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, http.StatusBadRequest, runs[0].UpstreamStatus)
}

func TestMessageProcessor_MatchedWithoutOpportunity(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	f.connectCRM(t, "owner")
	f.addRule(t, "owner", "r", "demo")

	res, err := f.processor.Process(context.Background(), &ProcessRequest{OwnerID: "owner", Text: "book a demo"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, 0, f.crm.Hits())
}

func TestMessageProcessor_InputValidation(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	ctx := context.Background()

	_, err := f.processor.Process(ctx, nil)
	assert.True(t, errors.Is(err, ErrInput))
	_, err = f.processor.Process(ctx, &ProcessRequest{Text: "x"})
	assert.True(t, errors.Is(err, ErrInput))
	_, err = f.processor.Process(ctx, &ProcessRequest{OwnerID: "o", Text: "  "})
	assert.True(t, errors.Is(err, ErrInput))
}

func TestMessageProcessor_ExpiredCredentialIsUnavailable(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	f.addRule(t, "owner", "r", "pricing")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, f.creds.Upsert(context.Background(), &models.PlatformCredential{OwnerID: "owner", Platform: models.PlatformCRM, AccessToken: "t", ExpiresAt: &past}))

	res, err := f.processor.Process(context.Background(), &ProcessRequest{OwnerID: "owner", Text: "pricing", OpportunityID: "opp"})
	assert.True(t, errors.Is(err, ErrCredentialUnavailable))
	assert.Equal(t, KindCredentialUnavailable, res.ErrorKind)
	assert.Equal(t, 0, f.crm.Hits())
}

func TestMessageProcessor_ListRunsPagination(t *testing.T) {
	f := newProcessorFixture(t, http.StatusOK)
	f.connectCRM(t, "owner")
	f.addRule(t, "owner", "r", "demo")
	for i := 0; i < 3; i++ {
		_, err := f.processor.Process(context.Background(), &ProcessRequest{OwnerID: "owner", Text: "demo"})
		require.NoError(t, err)
	}

	runs, total, err := f.processor.ListRuns(context.Background(), "owner", &RunListRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, runs, 1)

	runs, total, err = f.processor.ListRuns(context.Background(), "someone-else", nil)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, runs)
}
