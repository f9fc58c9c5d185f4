package ghl

import (
	"fmt"
	"time"
)

// Config GoHighLevel 客户端配置
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://rest.gohighlevel.com/v1",
		Timeout: 15 * time.Second,
	}
}

// Pipeline 销售管道
type Pipeline struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Stages []Stage `json:"stages"`
}

// Stage 管道阶段
type Stage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type pipelinesResponse struct {
	Pipelines []Pipeline `json:"pipelines"`
}

type moveStageRequest struct {
	StageID string `json:"stageId"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%d]: %s", e.StatusCode, e.Body)
}
