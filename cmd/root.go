package cmd

import (
	"fmt"
	"os"

	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "videoflow-gin",
	Short: "AI video marketplace API server",
	Long: `VideoFlow Gin is the backend of an AI video marketplace.
It runs the creator review workflow, reconciles payment callbacks
and keeps processing tasks in sync with the external video providers.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: search in current directory, ./config, or $HOME/.videoflow-gin)")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 加载配置并初始化全局日志
func loadConfig(cmd *cobra.Command) (*config.Config, string, *logrus.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewFromConfig(&cfg.Log)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	return cfg, configPath, log, nil
}
