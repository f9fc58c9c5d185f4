package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"stagesync/internal/metrics"
	"stagesync/internal/models"
	"stagesync/pkg/ghl"

	"github.com/sirupsen/logrus"
)

var errCircuitOpen = errors.New("circuit open")

// CRMClient GoHighLevel 调用接口
type CRMClient interface {
	ListPipelines(ctx context.Context, token string) ([]ghl.Pipeline, error)
	MoveOpportunity(ctx context.Context, token, pipelineID, stageID, opportunityID string) error
}

// PipelineSyncService 把匹配结果同步到 CRM，不做重试
type PipelineSyncService struct {
	client  CRMClient
	breaker *CircuitBreaker
	logger  *logrus.Logger
	now     func() time.Time
}

// NewPipelineSyncService breaker may be nil.
func NewPipelineSyncService(client CRMClient, breaker *CircuitBreaker, logger *logrus.Logger) *PipelineSyncService {
	if logger == nil {
		logger = logrus.New()
	}
	return &PipelineSyncService{client: client, breaker: breaker, logger: logger, now: time.Now}
}

func (s *PipelineSyncService) usable(cred *models.PlatformCredential) error {
	if cred == nil {
		return fmt.Errorf("crm credential missing: %w", ErrCredentialUnavailable)
	}
	if IsExpired(cred, s.now()) {
		return fmt.Errorf("crm credential expired at %s: %w", cred.ExpiresAt.Format(time.RFC3339), ErrCredentialUnavailable)
	}
	if cred.BearerToken() == "" {
		return fmt.Errorf("crm credential has no secret: %w", ErrCredentialUnavailable)
	}
	return nil
}

// MoveOpportunity moves one opportunity to stageID. An unusable credential fails
// before any network call; CRM rejections come back as *SyncError.
func (s *PipelineSyncService) MoveOpportunity(ctx context.Context, cred *models.PlatformCredential, pipelineID, stageID, opportunityID string) error {
	if err := s.usable(cred); err != nil {
		return err
	}
	err := s.call(ctx, "move_opportunity", func(ctx context.Context) error {
		return s.client.MoveOpportunity(ctx, cred.BearerToken(), pipelineID, stageID, opportunityID)
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"pipeline_id":    pipelineID,
			"stage_id":       stageID,
			"opportunity_id": opportunityID,
		}).WithError(err).Warn("crm stage update failed")
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"pipeline_id":    pipelineID,
		"stage_id":       stageID,
		"opportunity_id": opportunityID,
	}).Info("crm opportunity moved")
	return nil
}

// ListPipelines 读取 CRM 管道和阶段
func (s *PipelineSyncService) ListPipelines(ctx context.Context, cred *models.PlatformCredential) ([]ghl.Pipeline, error) {
	if err := s.usable(cred); err != nil {
		return nil, err
	}
	var pipelines []ghl.Pipeline
	err := s.call(ctx, "list_pipelines", func(ctx context.Context) error {
		var err error
		pipelines, err = s.client.ListPipelines(ctx, cred.BearerToken())
		return err
	})
	if err != nil {
		return nil, err
	}
	return pipelines, nil
}

func (s *PipelineSyncService) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if !s.breaker.Allow() {
		metrics.ObserveCRMRequest(operation, "circuit_open", 0)
		return &SyncError{Err: errCircuitOpen}
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if err == nil {
		s.breaker.OnSuccess()
		metrics.ObserveCRMRequest(operation, "2xx", elapsed)
		return nil
	}

	var apiErr *ghl.APIError
	if errors.As(err, &apiErr) {
		metrics.ObserveCRMRequest(operation, strconv.Itoa(apiErr.StatusCode), elapsed)
		// 4xx 说明 CRM 可用，只有 5xx 和 429 计入熔断
		if apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests {
			s.breaker.OnFailure()
		} else {
			s.breaker.OnSuccess()
		}
		return &SyncError{Status: apiErr.StatusCode, Body: apiErr.Body, Err: err}
	}

	// 调用方取消或超时不代表 CRM 故障
	if ctx.Err() != nil {
		metrics.ObserveCRMRequest(operation, "canceled", elapsed)
		s.breaker.Release()
		return &SyncError{Err: err}
	}
	metrics.ObserveCRMRequest(operation, "error", elapsed)
	s.breaker.OnFailure()
	return &SyncError{Err: err}
}
