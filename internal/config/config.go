package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt" yaml:"jwt"`
	OAuth      OAuthConfig      `mapstructure:"oauth" yaml:"oauth"`
	CRM        CRMConfig        `mapstructure:"crm" yaml:"crm"`
	Sync       SyncConfig       `mapstructure:"sync" yaml:"sync"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// PublicURL is the externally reachable origin used to build OAuth redirect URIs.
	PublicURL string `mapstructure:"public_url" yaml:"public_url"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Name            string        `mapstructure:"name" yaml:"name"`
	SSLMode         string        `mapstructure:"sslmode" yaml:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DSN 构建 Postgres 连接串
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, sslmode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	PoolSize int    `mapstructure:"pool_size" yaml:"pool_size"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret    string        `mapstructure:"secret" yaml:"secret"`
	ExpiresIn time.Duration `mapstructure:"expires_in" yaml:"expires_in"`
}

// OAuthConfig Instagram/Meta 授权配置
type OAuthConfig struct {
	// Provider selects the flow: instagram_basic or facebook_graph.
	Provider     string        `mapstructure:"provider" yaml:"provider"`
	ClientID     string        `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string        `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectPath string        `mapstructure:"redirect_path" yaml:"redirect_path"`
	Scopes       []string      `mapstructure:"scopes" yaml:"scopes"`
	GraphVersion string        `mapstructure:"graph_version" yaml:"graph_version"`
	StateSecret  string        `mapstructure:"state_secret" yaml:"state_secret"`
	StateTTL     time.Duration `mapstructure:"state_ttl" yaml:"state_ttl"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RedirectURI returns the callback URL registered with the identity provider.
func (c *Config) RedirectURI() string {
	return strings.TrimRight(c.Server.PublicURL, "/") + c.OAuth.RedirectPath
}

// CRMConfig GoHighLevel 接口配置
type CRMConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type SyncConfig struct {
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxFailures     int           `mapstructure:"max_failures" yaml:"max_failures"`
	ResetTimeout    time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
	HalfOpenMaxReqs int           `mapstructure:"half_open_max_requests" yaml:"half_open_max_requests"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	Output     string `mapstructure:"output" yaml:"output"` // stdout, file, both
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // MB
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // days
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // number of backup files
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type MonitoringConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath string        `mapstructure:"metrics_path" yaml:"metrics_path"`
	Tracing     TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`         // OTLP gRPC 端点，例如 http://otel-collector:4317
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`         // 是否使用明文（本地/开发）
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"` // 采样率 0.0~1.0
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
}

type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors" yaml:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting" yaml:"rate_limiting"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
}

type RateLimitingConfig struct {
	Enabled           bool                `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int                 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int                 `mapstructure:"burst" yaml:"burst"`
	Paths             []PathRateLimitRule `mapstructure:"paths" yaml:"paths"`
}

// PathRateLimitRule overrides the global limit for requests under Prefix.
type PathRateLimitRule struct {
	Prefix            string `mapstructure:"prefix" yaml:"prefix"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int    `mapstructure:"burst" yaml:"burst"`
}

const (
	ProviderInstagramBasic = "instagram_basic"
	ProviderFacebookGraph  = "facebook_graph"
)

// 仅用于本地开发，Validate 会拒绝
const (
	defaultJWTSecret   = "default-secret-key"
	defaultStateSecret = "default-state-secret"
)

// Load 从 viper 读取配置，未设置的字段使用默认值
func Load() *Config {
	config := GetDefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		panic(err)
	}
	return config
}

// Validate 检查运行所需的关键配置
func (c *Config) Validate() error {
	var missing []string
	if c.JWT.Secret == "" {
		missing = append(missing, "jwt.secret")
	}
	if c.OAuth.ClientID == "" {
		missing = append(missing, "oauth.client_id")
	}
	if c.OAuth.ClientSecret == "" {
		missing = append(missing, "oauth.client_secret")
	}
	if c.OAuth.StateSecret == "" {
		missing = append(missing, "oauth.state_secret")
	}
	if c.Server.PublicURL == "" {
		missing = append(missing, "server.public_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.JWT.Secret == defaultJWTSecret || c.OAuth.StateSecret == defaultStateSecret {
		return fmt.Errorf("jwt.secret and oauth.state_secret must not use the built-in defaults")
	}
	if c.JWT.Secret == c.OAuth.StateSecret {
		return fmt.Errorf("jwt.secret and oauth.state_secret must differ")
	}
	switch c.OAuth.Provider {
	case ProviderInstagramBasic, ProviderFacebookGraph:
	default:
		return fmt.Errorf("unsupported oauth.provider %q", c.OAuth.Provider)
	}
	return nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			PublicURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "stagesync",
			SSLMode:         "disable",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: 3600 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     6379,
			DB:       0,
			PoolSize: 10,
		},
		JWT: JWTConfig{
			Secret:    defaultJWTSecret,
			ExpiresIn: 24 * time.Hour,
		},
		OAuth: OAuthConfig{
			Provider:     ProviderInstagramBasic,
			RedirectPath: "/api/v1/oauth/instagram/callback",
			Scopes: []string{
				"user_profile",
				"user_media",
				"instagram_basic",
				"pages_read_engagement",
				"instagram_manage_messages",
			},
			GraphVersion: "v19.0",
			StateSecret:  defaultStateSecret,
			StateTTL:     10 * time.Minute,
			Timeout:      15 * time.Second,
		},
		CRM: CRMConfig{
			BaseURL: "https://rest.gohighlevel.com/v1",
			Timeout: 15 * time.Second,
		},
		Sync: SyncConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:         true,
				MaxFailures:     5,
				ResetTimeout:    60 * time.Second,
				HalfOpenMaxReqs: 1,
			},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/stagesync.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "stagesync",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
			},
			RateLimiting: RateLimitingConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             20,
			},
		},
	}
}
