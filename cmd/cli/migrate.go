package cli

import (
	"stagesync/internal/config"
	"stagesync/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := config.InitLogger(cfg); err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		logrus.Info("Starting database migration...")
		if err := db.AutoMigrate(models.All()...); err != nil {
			return err
		}

		// 执行记录按用户倒序分页
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_runs_owner_id_desc ON automation_runs(owner_id, id DESC)").Error; err != nil {
			logrus.Warnf("create run index: %v", err)
		}
		logrus.Info("Database migration completed successfully!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
