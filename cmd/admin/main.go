package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/database"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
)

var configPath string

// openDB 子命令取数据库连接，测试中替换为 sqlite
var openDB = func() (*gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Log, "admin")
	return database.Open(&cfg.Database)
}

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "PixelChat administration commands",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to config file")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(promoCmd)
	rootCmd.AddCommand(accountCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
