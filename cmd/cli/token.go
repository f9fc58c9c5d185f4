package cli

import (
	"fmt"
	"strings"
	"time"

	"stagesync/internal/config"
	"stagesync/internal/middleware"

	"github.com/spf13/cobra"
)

var (
	flagOwner  string
	flagTTLMin int
)

// tokenCmd generates an HS256 API token for testing/admin usage.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a JWT (HS256) for API authentication",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is empty; set it in config")
		}
		owner := strings.TrimSpace(flagOwner)
		if owner == "" {
			return fmt.Errorf("--owner is required")
		}
		tok, err := middleware.IssueToken(cfg.JWT.Secret, owner, time.Duration(flagTTLMin)*time.Minute, time.Now())
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

var tokenDecodeCmd = &cobra.Command{
	Use:   "decode <token>",
	Short: "Verify a token and print its owner id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		owner, err := middleware.ParseToken(cfg.JWT.Secret, args[0])
		if err != nil {
			return err
		}
		fmt.Println(owner)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenDecodeCmd)
	tokenCmd.Flags().StringVar(&flagOwner, "owner", "", "owner (user) id to embed as sub")
	tokenCmd.Flags().IntVar(&flagTTLMin, "ttl", 60, "token time-to-live in minutes")
}
