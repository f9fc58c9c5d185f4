package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stagesync/internal/metrics"
	"stagesync/internal/models"
	"stagesync/pkg/meta"

	"github.com/sirupsen/logrus"
)

// UnknownUsername 账号信息查询失败时的占位
const UnknownUsername = "unknown"

const shortLivedTokenTTL = time.Hour

// AuthorizationStart 授权跳转信息
type AuthorizationStart struct {
	AuthURL   string    `json:"auth_url"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OAuthService Instagram 授权码换取、长期令牌升级和续期
type OAuthService struct {
	provider    meta.Provider
	states      *StateCodec
	creds       *CredentialService
	redirectURI string
	logger      *logrus.Logger
	now         func() time.Time
}

func NewOAuthService(provider meta.Provider, states *StateCodec, creds *CredentialService, redirectURI string, logger *logrus.Logger) *OAuthService {
	if logger == nil {
		logger = logrus.New()
	}
	return &OAuthService{
		provider:    provider,
		states:      states,
		creds:       creds,
		redirectURI: redirectURI,
		logger:      logger,
		now:         time.Now,
	}
}

func exchangeError(step string, err error) error {
	metrics.IncOAuthExchange("failure")
	if err == nil {
		return fmt.Errorf("%w: %s", ErrExchangeFailed, step)
	}
	return fmt.Errorf("%w: %s: %w", ErrExchangeFailed, step, err)
}

// BeginAuthorization 生成授权地址；state 绑定 owner 且在 TTL 后失效
func (s *OAuthService) BeginAuthorization(ctx context.Context, ownerID string) (*AuthorizationStart, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, inputError("owner required")
	}
	state, err := s.states.Issue(ownerID)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"owner_id": ownerID, "provider": s.provider.Name()}).Info("oauth authorization started")
	return &AuthorizationStart{
		AuthURL:   s.provider.AuthorizationURL(state, s.redirectURI),
		State:     state,
		ExpiresAt: s.states.now().Add(s.states.ttl),
	}, nil
}

// CompleteAuthorization 处理回调：校验并消费 state，换取令牌，尽量升级为长期令牌，
// 查询账号信息后保存 social 凭证。任何失败都不落库。
func (s *OAuthService) CompleteAuthorization(ctx context.Context, code, state string) (*CredentialSummary, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(state) == "" {
		return nil, exchangeError("missing authorization code or state", nil)
	}
	ownerID, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, exchangeError("state rejected", err)
	}
	log := s.logger.WithFields(logrus.Fields{"owner_id": ownerID, "provider": s.provider.Name()})

	short, err := s.provider.ExchangeCode(ctx, code, s.redirectURI)
	if err != nil {
		log.WithError(err).Warn("authorization code exchange failed")
		return nil, exchangeError("code exchange", err)
	}

	now := s.now()
	token := short
	if long, err := s.provider.UpgradeToken(ctx, short.AccessToken); err != nil {
		log.WithError(err).Warn("long-lived token upgrade failed, keeping short-lived token")
	} else {
		token = long
	}

	expiresAt := token.ExpiresAt(now)
	if token == short && expiresAt == nil {
		// 短期令牌通常不返回 expires_in，按一小时保守计算
		exp := now.Add(shortLivedTokenTTL)
		expiresAt = &exp
	}

	cred := &models.PlatformCredential{
		OwnerID:           ownerID,
		Platform:          models.PlatformSocial,
		AccessToken:       token.AccessToken,
		ExpiresAt:         expiresAt,
		ExternalAccountID: short.UserID,
		ExternalUsername:  UnknownUsername,
	}
	if acct, err := s.provider.LookupAccount(ctx, token.AccessToken); err != nil {
		log.WithError(err).Warn("account lookup failed, storing placeholder identity")
	} else {
		if acct.ID != "" {
			cred.ExternalAccountID = acct.ID
		}
		if acct.Username != "" {
			cred.ExternalUsername = acct.Username
		}
	}

	if err := s.creds.Upsert(ctx, cred); err != nil {
		metrics.IncOAuthExchange("failure")
		return nil, err
	}
	metrics.IncOAuthExchange("success")
	log.WithField("username", cred.ExternalUsername).Info("instagram integration connected")
	return Summarize(cred, now), nil
}

// Refresh 续期已保存的长期 social 令牌
func (s *OAuthService) Refresh(ctx context.Context, ownerID string) (*CredentialSummary, error) {
	cred, err := s.creds.Get(ctx, ownerID, models.PlatformSocial)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("social credential: %w", ErrIntegrationMissing)
	}
	now := s.now()
	if IsExpired(cred, now) {
		return nil, fmt.Errorf("social credential expired, re-authorization required: %w", ErrCredentialUnavailable)
	}

	token, err := s.provider.RefreshToken(ctx, cred.AccessToken)
	if err != nil {
		s.logger.WithField("owner_id", ownerID).WithError(err).Warn("token refresh failed")
		return nil, exchangeError("token refresh", err)
	}

	refreshed := &models.PlatformCredential{
		OwnerID:           ownerID,
		Platform:          models.PlatformSocial,
		AccessToken:       token.AccessToken,
		RefreshToken:      cred.RefreshToken,
		ExpiresAt:         token.ExpiresAt(now),
		ExternalAccountID: cred.ExternalAccountID,
		ExternalUsername:  cred.ExternalUsername,
	}
	if err := s.creds.Upsert(ctx, refreshed); err != nil {
		return nil, err
	}
	metrics.IncOAuthExchange("refreshed")
	s.logger.WithField("owner_id", ownerID).Info("social token refreshed")
	return Summarize(refreshed, now), nil
}
