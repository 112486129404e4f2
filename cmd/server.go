package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/api"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/container"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the VideoFlow API server.
The server listens on the configured host and port, serves the review,
order and payment callback APIs, and runs the reconciliation sweep,
event publisher and metrics collector in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		cfg, configPath, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if host, _ := cmd.Flags().GetString("host"); cmd.Flags().Changed("host") {
			cfg.Server.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}
		if cfg.Env == "production" {
			gin.SetMode(gin.ReleaseMode)
		}

		// 2. 链路追踪
		if cfg.Tracing.Enabled {
			if err := api.InitTracing(cfg.Tracing, cfg.Env); err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = api.ShutdownTracing(ctx)
			}()
		}

		// 3. 初始化容器
		ctr, err := container.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		ctx, stop := context.WithCancel(cmd.Context())
		defer stop()
		ctr.Start(ctx)

		// 4. 配置热更新
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath, log)
			watcher.OnConfigChange(ctr.ApplyConfig)
			if err := watcher.Start(); err != nil {
				log.WithError(err).Warn("Config hot reload disabled")
			} else {
				defer watcher.Stop()
			}
		}

		// 5. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           ctr.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.WithField("addr", addr).Info("Server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			log.WithField("signal", sig.String()).Info("Shutting down server...")
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		}

		// 优雅关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
