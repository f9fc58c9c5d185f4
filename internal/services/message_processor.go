package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stagesync/internal/metrics"
	"stagesync/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CredentialGetter 读取凭证
type CredentialGetter interface {
	Get(ctx context.Context, ownerID string, platform models.Platform) (*models.PlatformCredential, error)
}

// OpportunityMover 执行 CRM 阶段变更
type OpportunityMover interface {
	MoveOpportunity(ctx context.Context, cred *models.PlatformCredential, pipelineID, stageID, opportunityID string) error
}

// ProcessRequest 一条外发消息
type ProcessRequest struct {
	OwnerID       string `json:"-"`
	Text          string `json:"text" binding:"required"`
	OpportunityID string `json:"opportunity_id"`
}

// ProcessResult 处理结果；未匹配时只有 Outcome
type ProcessResult struct {
	Outcome        MatchOutcome `json:"outcome"`
	RuleID         string       `json:"rule_id,omitempty"`
	RuleName       string       `json:"rule_name,omitempty"`
	PipelineID     string       `json:"pipeline_id,omitempty"`
	StageID        string       `json:"stage_id,omitempty"`
	ErrorKind      string       `json:"error_kind,omitempty"`
	UpstreamStatus int          `json:"upstream_status,omitempty"`
}

// RunListRequest 执行记录查询
type RunListRequest struct {
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
	RuleID   string `form:"rule_id"`
	Outcome  string `form:"outcome"`
}

// MessageProcessor 消息 → 规则匹配 → CRM 同步
type MessageProcessor struct {
	db      *gorm.DB
	matcher *Matcher
	creds   CredentialGetter
	sync    OpportunityMover
	logger  *logrus.Logger
}

func NewMessageProcessor(db *gorm.DB, matcher *Matcher, creds CredentialGetter, sync OpportunityMover, logger *logrus.Logger) *MessageProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	return &MessageProcessor{db: db, matcher: matcher, creds: creds, sync: sync, logger: logger}
}

// Process runs one message through the state machine. No-match outcomes are
// successful results. A failed stage move returns both the result
// (matched_sync_failed) and the error.
func (p *MessageProcessor) Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if req == nil || strings.TrimSpace(req.OwnerID) == "" {
		return nil, inputError("owner required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, inputError("text required")
	}

	match, err := p.matcher.Match(ctx, req.OwnerID, req.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to match message: %w", err)
	}
	if match.Rule == nil {
		metrics.IncMessageProcessed(string(match.Outcome))
		return &ProcessResult{Outcome: match.Outcome}, nil
	}

	rule := match.Rule
	result := &ProcessResult{
		Outcome:    OutcomeMatched,
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		PipelineID: rule.PipelineID,
		StageID:    rule.StageID,
	}
	log := p.logger.WithFields(logrus.Fields{"owner_id": req.OwnerID, "rule_id": rule.ID})

	cred, err := p.creds.Get(ctx, req.OwnerID, models.PlatformCRM)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		err := fmt.Errorf("crm credential: %w", ErrIntegrationMissing)
		metrics.IncMessageProcessed(KindIntegrationMissing)
		p.recordRun(ctx, req, rule, KindIntegrationMissing, 0, err.Error())
		log.Warn("rule matched but crm is not connected")
		return nil, err
	}

	if strings.TrimSpace(req.OpportunityID) == "" {
		metrics.IncMessageProcessed(string(OutcomeMatched))
		p.recordRun(ctx, req, rule, string(OutcomeMatched), 0, "")
		return result, nil
	}

	if err := p.sync.MoveOpportunity(ctx, cred, rule.PipelineID, rule.StageID, req.OpportunityID); err != nil {
		result.Outcome = OutcomeMatchedSyncFailed
		result.ErrorKind = ErrorKind(err)
		var syncErr *SyncError
		if errors.As(err, &syncErr) {
			result.UpstreamStatus = syncErr.Status
		}
		metrics.IncMessageProcessed(string(result.Outcome))
		p.recordRun(ctx, req, rule, string(result.Outcome), result.UpstreamStatus, err.Error())
		return result, err
	}

	result.Outcome = OutcomeMatchedAndSynced
	metrics.IncMessageProcessed(string(result.Outcome))
	p.recordRun(ctx, req, rule, string(result.Outcome), 0, "")
	log.WithField("opportunity_id", req.OpportunityID).Info("message matched and synced")
	return result, nil
}

func (p *MessageProcessor) recordRun(ctx context.Context, req *ProcessRequest, rule *models.AutomationRule, outcome string, upstream int, message string) {
	if p.db == nil {
		return
	}
	run := &models.AutomationRun{
		OwnerID:        req.OwnerID,
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		OpportunityID:  req.OpportunityID,
		Outcome:        outcome,
		UpstreamStatus: upstream,
		Message:        message,
		CreatedAt:      time.Now(),
	}
	if err := p.db.WithContext(ctx).Create(run).Error; err != nil {
		p.logger.Warnf("automation: record run failed: %v", err)
	}
}

// ListRuns 分页查询执行记录，最新在前
func (p *MessageProcessor) ListRuns(ctx context.Context, ownerID string, req *RunListRequest) ([]models.AutomationRun, int64, error) {
	if req == nil {
		req = &RunListRequest{}
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := p.db.WithContext(ctx).Model(&models.AutomationRun{}).Where("owner_id = ?", ownerID)
	if req.RuleID != "" {
		query = query.Where("rule_id = ?", req.RuleID)
	}
	if req.Outcome != "" {
		query = query.Where("outcome = ?", req.Outcome)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	var runs []models.AutomationRun
	if err := query.Order("id DESC").Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, total, nil
}
