package meta

import (
	"context"
	"net/url"
	"strings"
)

// BasicDisplayProvider Instagram 直连授权（api.instagram.com + graph.instagram.com）
type BasicDisplayProvider struct {
	cfg       *Config
	authBase  string
	tokenBase string
	graphBase string
	client    *httpClient
}

func NewBasicDisplayProvider(cfg *Config, opts ...Option) *BasicDisplayProvider {
	return &BasicDisplayProvider{
		cfg:       cfg,
		authBase:  baseOr(cfg.AuthBaseURL, "https://api.instagram.com"),
		tokenBase: baseOr(cfg.TokenBaseURL, "https://api.instagram.com"),
		graphBase: baseOr(cfg.GraphBaseURL, "https://graph.instagram.com"),
		client:    newHTTPClient(cfg.Timeout, opts),
	}
}

func (p *BasicDisplayProvider) Name() string { return ProviderInstagramBasic }

func (p *BasicDisplayProvider) AuthorizationURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(p.cfg.Scopes, ","))
	q.Set("response_type", "code")
	q.Set("state", state)
	return p.authBase + "/oauth/authorize?" + q.Encode()
}

func (p *BasicDisplayProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)
	form.Set("code", code)

	var resp tokenResponse
	if err := p.client.postForm(ctx, p.tokenBase+"/oauth/access_token", form, &resp); err != nil {
		return nil, err
	}
	return resp.token()
}

func (p *BasicDisplayProvider) UpgradeToken(ctx context.Context, accessToken string) (*Token, error) {
	q := url.Values{}
	q.Set("grant_type", "ig_exchange_token")
	q.Set("client_secret", p.cfg.ClientSecret)
	q.Set("access_token", accessToken)

	var resp tokenResponse
	if err := p.client.getJSON(ctx, p.graphBase+"/access_token", q, &resp); err != nil {
		return nil, err
	}
	return resp.token()
}

func (p *BasicDisplayProvider) RefreshToken(ctx context.Context, accessToken string) (*Token, error) {
	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", accessToken)

	var resp tokenResponse
	if err := p.client.getJSON(ctx, p.graphBase+"/refresh_access_token", q, &resp); err != nil {
		return nil, err
	}
	return resp.token()
}

func (p *BasicDisplayProvider) LookupAccount(ctx context.Context, accessToken string) (*Account, error) {
	q := url.Values{}
	q.Set("fields", "id,username")
	q.Set("access_token", accessToken)

	var resp struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := p.client.getJSON(ctx, p.graphBase+"/me", q, &resp); err != nil {
		return nil, err
	}
	return &Account{ID: resp.ID, Username: resp.Username}, nil
}
