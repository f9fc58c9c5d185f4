package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stagesync/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RuleService 管理用户的关键词自动化规则
type RuleService struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

// RuleRequest 创建/编辑规则的请求（编辑为整体替换）
type RuleRequest struct {
	Name string `json:"name" binding:"required"`
	// Keywords takes precedence; KeywordsText is the comma-separated form used by the web form.
	Keywords     []string `json:"keywords"`
	KeywordsText string   `json:"keywords_text"`
	PipelineID   string   `json:"pipeline_id" binding:"required"`
	StageID      string   `json:"stage_id" binding:"required"`
	Active       *bool    `json:"active"`
}

func NewRuleService(db *gorm.DB, logger *logrus.Logger) *RuleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleService{db: db, logger: logger, now: time.Now}
}

// NormalizeKeywords trims, lower-cases and drops empty keywords while keeping order.
// Matching relies on stored keywords already being in this form.
func NormalizeKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out = append(out, k)
	}
	return out
}

func (r *RuleRequest) keywords() []string {
	if len(r.Keywords) > 0 {
		return NormalizeKeywords(r.Keywords)
	}
	return NormalizeKeywords(strings.Split(r.KeywordsText, ","))
}

type ruleFields struct {
	name       string
	keywords   []string
	pipelineID string
	stageID    string
}

func validateRule(req *RuleRequest) (*ruleFields, error) {
	if req == nil {
		return nil, inputError("request required")
	}
	f := &ruleFields{
		name:       strings.TrimSpace(req.Name),
		keywords:   req.keywords(),
		pipelineID: strings.TrimSpace(req.PipelineID),
		stageID:    strings.TrimSpace(req.StageID),
	}
	switch {
	case f.name == "":
		return nil, inputError("name required")
	case len(f.keywords) == 0:
		return nil, inputError("at least one keyword required")
	case f.pipelineID == "":
		return nil, inputError("pipeline_id required")
	case f.stageID == "":
		return nil, inputError("stage_id required")
	}
	return f, nil
}

// ListActive 返回用户启用的规则，最新创建的在前
func (s *RuleService) ListActive(ctx context.Context, ownerID string) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND active = ?", ownerID, true).
		Order("created_at DESC").Order("id DESC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	return rules, nil
}

// List 返回用户全部规则（含停用）
func (s *RuleService) List(ctx context.Context, ownerID string) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// Get 读取单条规则
func (s *RuleService) Get(ctx context.Context, ownerID, id string) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	return &rule, nil
}

// Create 新建规则，默认启用
func (s *RuleService) Create(ctx context.Context, ownerID string, req *RuleRequest) (*models.AutomationRule, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, inputError("owner required")
	}
	f, err := validateRule(req)
	if err != nil {
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	now := s.now()
	rule := &models.AutomationRule{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       f.name,
		Keywords:   f.keywords,
		PipelineID: f.pipelineID,
		StageID:    f.stageID,
		Active:     active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"owner_id": ownerID, "rule_id": rule.ID}).Info("automation rule created")
	return rule, nil
}

// Update 整体替换名称、关键词和目标阶段
func (s *RuleService) Update(ctx context.Context, ownerID, id string, req *RuleRequest) (*models.AutomationRule, error) {
	f, err := validateRule(req)
	if err != nil {
		return nil, err
	}
	// single statement so a concurrent edit of the same row cannot interleave
	res := s.db.WithContext(ctx).Model(&models.AutomationRule{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Select("name", "keywords", "pipeline_id", "stage_id", "updated_at").
		Updates(&models.AutomationRule{
			Name:       f.name,
			Keywords:   f.keywords,
			PipelineID: f.pipelineID,
			StageID:    f.stageID,
			UpdatedAt:  s.now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return s.Get(ctx, ownerID, id)
}

// Toggle 翻转启用状态
func (s *RuleService) Toggle(ctx context.Context, ownerID, id string) (*models.AutomationRule, error) {
	res := s.db.WithContext(ctx).Model(&models.AutomationRule{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]interface{}{
			"active":     gorm.Expr("NOT active"),
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to toggle rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	rule, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"owner_id": ownerID, "rule_id": id, "active": rule.Active}).Info("automation rule toggled")
	return rule, nil
}

// Delete 删除规则
func (s *RuleService) Delete(ctx context.Context, ownerID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.AutomationRule{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}
