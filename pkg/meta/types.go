package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// 授权流程类型
const (
	ProviderInstagramBasic = "instagram_basic"
	ProviderFacebookGraph  = "facebook_graph"
)

// Config Meta 应用配置。各 BaseURL 为空时使用官方地址，测试时指向 httptest。
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	GraphVersion string
	Timeout      time.Duration

	AuthBaseURL  string // api.instagram.com / www.facebook.com
	TokenBaseURL string // api.instagram.com / graph.facebook.com
	GraphBaseURL string // graph.instagram.com / graph.facebook.com
}

// Token 授权服务器返回的访问令牌
type Token struct {
	AccessToken string
	// ExpiresIn 秒；0 表示服务器未给出有效期
	ExpiresIn int64
	UserID    string
}

// ExpiresAt returns nil when the provider gave no lifetime.
func (t *Token) ExpiresAt(now time.Time) *time.Time {
	if t == nil || t.ExpiresIn <= 0 {
		return nil
	}
	exp := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &exp
}

// Account 已授权的 Instagram 账号
type Account struct {
	ID       string
	Username string
}

// Provider 是两种 Meta 授权流程的共同接口
type Provider interface {
	Name() string
	AuthorizationURL(state, redirectURI string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error)
	// UpgradeToken 短期令牌换长期令牌
	UpgradeToken(ctx context.Context, accessToken string) (*Token, error)
	RefreshToken(ctx context.Context, accessToken string) (*Token, error)
	LookupAccount(ctx context.Context, accessToken string) (*Account, error)
}

// APIError non-2xx 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%d]: %s", e.StatusCode, e.Body)
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	UserID      json.Number `json:"user_id"`
}

func (r *tokenResponse) token() (*Token, error) {
	if r.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &Token{AccessToken: r.AccessToken, ExpiresIn: r.ExpiresIn, UserID: r.UserID.String()}, nil
}

// NewProvider 根据配置选择授权流程
func NewProvider(name string, cfg *Config, opts ...Option) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("meta config required")
	}
	switch name {
	case "", ProviderInstagramBasic:
		return NewBasicDisplayProvider(cfg, opts...), nil
	case ProviderFacebookGraph:
		return NewGraphProvider(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}
