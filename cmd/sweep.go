package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/mautops/videoflow-gin/internal/container"
	"github.com/spf13/cobra"
)

// sweepCmd 手动执行一次对账巡检，适合由外部定时任务调用
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reconciliation sweep and exit",
	Long: `Run the task reconciliation sweep once: poll the AI and VOD
providers for active tasks, time out stale tasks and retry paid orders
that never got a task. The summary is printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctr, err := container.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		summary, err := ctr.Sweeper().Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
