package models

import "time"

// AutomationRule 关键词 → 管道阶段规则
type AutomationRule struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID    string    `gorm:"index;not null;size:64" json:"owner_id"`
	Name       string    `gorm:"not null" json:"name"`
	Keywords   []string  `gorm:"type:text;serializer:json" json:"keywords"` // lower-cased, trimmed, never empty
	PipelineID string    `gorm:"not null" json:"pipeline_id"`
	StageID    string    `gorm:"not null" json:"stage_id"`
	Active     bool      `gorm:"not null" json:"active"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AutomationRun 执行记录用于审计
type AutomationRun struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OwnerID        string    `gorm:"index;size:64" json:"owner_id"`
	RuleID         string    `gorm:"index;size:36" json:"rule_id"`
	RuleName       string    `json:"rule_name"`
	OpportunityID  string    `json:"opportunity_id,omitempty"`
	Outcome        string    `gorm:"index" json:"outcome"` // matched, matched_and_synced, matched_sync_failed
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Message        string    `gorm:"type:text" json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
