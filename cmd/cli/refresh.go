package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"stagesync/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var flagRefreshOwner string

// refreshCmd 手动续期某个用户的 Instagram 长期令牌
var refreshCmd = &cobra.Command{
	Use:   "refresh-token",
	Short: "Refresh the stored Instagram long-lived token for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagRefreshOwner == "" {
			return fmt.Errorf("--owner is required")
		}
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.InitLogger(cfg); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		a, err := newApp(ctx, cfg, logrus.StandardLogger())
		if err != nil {
			return err
		}
		defer a.close()

		summary, err := a.oauth.Refresh(ctx, flagRefreshOwner)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().StringVar(&flagRefreshOwner, "owner", "", "owner id whose token should be refreshed")
}
