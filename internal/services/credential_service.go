package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stagesync/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialService 存储每个用户每个平台的访问凭证
type CredentialService struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

// CredentialSummary 返回给 API 的脱敏凭证信息
type CredentialSummary struct {
	Platform          models.Platform `json:"platform"`
	Active            bool            `json:"active"`
	Expired           bool            `json:"expired"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	ExternalAccountID string          `json:"external_account_id,omitempty"`
	ExternalUsername  string          `json:"external_username,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func NewCredentialService(db *gorm.DB, logger *logrus.Logger) *CredentialService {
	if logger == nil {
		logger = logrus.New()
	}
	return &CredentialService{db: db, logger: logger, now: time.Now}
}

// Summarize builds the redacted view of cred evaluated at now.
func Summarize(cred *models.PlatformCredential, now time.Time) *CredentialSummary {
	return &CredentialSummary{
		Platform:          cred.Platform,
		Active:            cred.Active,
		Expired:           cred.ExpiredAt(now),
		ExpiresAt:         cred.ExpiresAt,
		ExternalAccountID: cred.ExternalAccountID,
		ExternalUsername:  cred.ExternalUsername,
		UpdatedAt:         cred.UpdatedAt,
	}
}

// Get 查询凭证；未连接时返回 nil, nil。不做过期判断，也不访问网络。
func (s *CredentialService) Get(ctx context.Context, ownerID string, platform models.Platform) (*models.PlatformCredential, error) {
	var cred models.PlatformCredential
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND platform = ? AND active = ?", ownerID, platform, true).
		First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return &cred, nil
}

// List 返回用户所有平台凭证（脱敏）
func (s *CredentialService) List(ctx context.Context, ownerID string) ([]*CredentialSummary, error) {
	var creds []models.PlatformCredential
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("platform").Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	now := s.now()
	out := make([]*CredentialSummary, 0, len(creds))
	for i := range creds {
		out = append(out, Summarize(&creds[i], now))
	}
	return out, nil
}

// Upsert 覆盖同一 (owner, platform) 的已有凭证
func (s *CredentialService) Upsert(ctx context.Context, cred *models.PlatformCredential) error {
	if cred == nil || strings.TrimSpace(cred.OwnerID) == "" {
		return inputError("owner required")
	}
	if !cred.Platform.Valid() {
		return inputError("unsupported platform %q", cred.Platform)
	}
	now := s.now()
	cred.Active = true
	cred.CreatedAt = now
	cred.UpdatedAt = now
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"api_key", "access_token", "refresh_token", "expires_at",
			"external_account_id", "external_username", "active", "updated_at",
		}),
	}).Create(cred).Error
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"owner_id": cred.OwnerID, "platform": cred.Platform}).Info("credential stored")
	return nil
}

// ConnectAPIKey 保存 CRM API Key
func (s *CredentialService) ConnectAPIKey(ctx context.Context, ownerID, apiKey string) (*CredentialSummary, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, inputError("api_key required")
	}
	cred := &models.PlatformCredential{
		OwnerID:  ownerID,
		Platform: models.PlatformCRM,
		APIKey:   apiKey,
	}
	if err := s.Upsert(ctx, cred); err != nil {
		return nil, err
	}
	return Summarize(cred, s.now()), nil
}

// Delete 断开集成
func (s *CredentialService) Delete(ctx context.Context, ownerID string, platform models.Platform) error {
	if !platform.Valid() {
		return inputError("unsupported platform %q", platform)
	}
	res := s.db.WithContext(ctx).
		Where("owner_id = ? AND platform = ?", ownerID, platform).
		Delete(&models.PlatformCredential{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s credential: %w", platform, ErrIntegrationMissing)
	}
	return nil
}

// IsExpired 过期判断；nil 凭证视为不可用
func IsExpired(cred *models.PlatformCredential, now time.Time) bool {
	return cred == nil || cred.ExpiredAt(now)
}
