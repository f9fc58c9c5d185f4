package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

var envKeys = []string{
	"server.host", "server.port", "server.public_url",
	"database.host", "database.port", "database.user", "database.password", "database.name", "database.sslmode",
	"redis.enabled", "redis.host", "redis.port", "redis.password",
	"jwt.secret",
	"oauth.provider", "oauth.client_id", "oauth.client_secret", "oauth.state_secret",
	"crm.base_url",
	"log.level", "log.format",
	"monitoring.tracing.enabled", "monitoring.tracing.endpoint",
}

var rootCmd = &cobra.Command{
	Use:   "stagesync",
	Short: "Move CRM opportunities between pipeline stages from outgoing messages",
	Long: `stagesync watches outgoing Instagram messages for configured keywords and
moves the matching GoHighLevel opportunity to the rule's pipeline stage.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// STAGESYNC_OAUTH_CLIENT_SECRET -> oauth.client_secret
	viper.SetEnvPrefix("STAGESYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Unmarshal 只认识已注册的 key，部署时常用的变量需要显式绑定
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Println("Error reading config file:", err)
		}
	}
}
