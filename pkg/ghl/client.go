package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxErrorBody 错误响应体截断长度
const maxErrorBody = 2048

// Client GoHighLevel REST 客户端；凭证按调用传入，客户端本身不持有用户密钥
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient 创建客户端
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// ListPipelines GET /pipelines/
func (c *Client) ListPipelines(ctx context.Context, token string) ([]Pipeline, error) {
	req, err := c.createRequest(ctx, http.MethodGet, "/pipelines/", token, nil)
	if err != nil {
		return nil, err
	}
	var resp pipelinesResponse
	if err := c.doRequest(req, &resp); err != nil {
		return nil, err
	}
	if resp.Pipelines == nil {
		resp.Pipelines = []Pipeline{}
	}
	return resp.Pipelines, nil
}

// MoveOpportunity PUT /pipelines/{pipelineId}/opportunities/{opportunityId}，单次请求，不重试
func (c *Client) MoveOpportunity(ctx context.Context, token, pipelineID, stageID, opportunityID string) error {
	endpoint := fmt.Sprintf("/pipelines/%s/opportunities/%s", url.PathEscape(pipelineID), url.PathEscape(opportunityID))
	req, err := c.createRequest(ctx, http.MethodPut, endpoint, token, moveStageRequest{StageID: stageID})
	if err != nil {
		return err
	}
	return c.doRequest(req, nil)
}

func (c *Client) createRequest(ctx context.Context, method, endpoint, token string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("GHL API %s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(body)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: text}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
