package meta

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrNoBusinessAccount 授权的 Facebook 主页都没有关联 Instagram 商业账号
var ErrNoBusinessAccount = errors.New("no instagram business account linked")

// GraphProvider Facebook Login 授权，通过主页找到 Instagram 商业账号
type GraphProvider struct {
	cfg       *Config
	version   string
	authBase  string
	graphBase string
	client    *httpClient
}

func NewGraphProvider(cfg *Config, opts ...Option) *GraphProvider {
	version := cfg.GraphVersion
	if version == "" {
		version = "v19.0"
	}
	return &GraphProvider{
		cfg:       cfg,
		version:   version,
		authBase:  baseOr(cfg.AuthBaseURL, "https://www.facebook.com"),
		graphBase: baseOr(cfg.GraphBaseURL, baseOr(cfg.TokenBaseURL, "https://graph.facebook.com")),
		client:    newHTTPClient(cfg.Timeout, opts),
	}
}

func (p *GraphProvider) Name() string { return ProviderFacebookGraph }

func (p *GraphProvider) endpoint(path string) string {
	return p.graphBase + "/" + p.version + path
}

func (p *GraphProvider) AuthorizationURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(p.cfg.Scopes, ","))
	q.Set("response_type", "code")
	q.Set("state", state)
	return p.authBase + "/" + p.version + "/dialog/oauth?" + q.Encode()
}

func (p *GraphProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("client_secret", p.cfg.ClientSecret)
	q.Set("redirect_uri", redirectURI)
	q.Set("code", code)

	var resp tokenResponse
	if err := p.client.getJSON(ctx, p.endpoint("/oauth/access_token"), q, &resp); err != nil {
		return nil, err
	}
	return resp.token()
}

func (p *GraphProvider) exchangeLongLived(ctx context.Context, accessToken string) (*Token, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", p.cfg.ClientID)
	q.Set("client_secret", p.cfg.ClientSecret)
	q.Set("fb_exchange_token", accessToken)

	var resp tokenResponse
	if err := p.client.getJSON(ctx, p.endpoint("/oauth/access_token"), q, &resp); err != nil {
		return nil, err
	}
	return resp.token()
}

func (p *GraphProvider) UpgradeToken(ctx context.Context, accessToken string) (*Token, error) {
	return p.exchangeLongLived(ctx, accessToken)
}

// RefreshToken 长期用户令牌再次走 fb_exchange_token 即可续期
func (p *GraphProvider) RefreshToken(ctx context.Context, accessToken string) (*Token, error) {
	return p.exchangeLongLived(ctx, accessToken)
}

func (p *GraphProvider) LookupAccount(ctx context.Context, accessToken string) (*Account, error) {
	q := url.Values{}
	q.Set("fields", "instagram_business_account{id,username}")
	q.Set("access_token", accessToken)

	var resp struct {
		Data []struct {
			ID                        string `json:"id"`
			InstagramBusinessAccount *struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	if err := p.client.getJSON(ctx, p.endpoint("/me/accounts"), q, &resp); err != nil {
		return nil, err
	}
	for _, page := range resp.Data {
		if iba := page.InstagramBusinessAccount; iba != nil && iba.ID != "" {
			return &Account{ID: iba.ID, Username: iba.Username}, nil
		}
	}
	return nil, ErrNoBusinessAccount
}
