package cli

import (
	"testing"

	"stagesync/internal/config"

	"github.com/spf13/viper"
)

func TestInitConfig_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("STAGESYNC_JWT_SECRET", "from-env")
	t.Setenv("STAGESYNC_SERVER_PORT", "9090")
	t.Setenv("STAGESYNC_OAUTH_PROVIDER", "facebook_graph")

	cfgFile = ""
	initConfig()
	cfg := config.Load()

	if cfg.JWT.Secret != "from-env" {
		t.Fatalf("jwt secret = %q", cfg.JWT.Secret)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.OAuth.Provider != config.ProviderFacebookGraph {
		t.Fatalf("provider = %q", cfg.OAuth.Provider)
	}
	// 未设置的字段保持默认值
	if cfg.CRM.BaseURL != "https://rest.gohighlevel.com/v1" {
		t.Fatalf("crm base url = %q", cfg.CRM.BaseURL)
	}
}
