package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peptide-index/stockwatch/internal/model"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on its cron schedule",
	Long:  "Keeps the process resident and runs the Tier-1 sweep, Tier-2 verification, and self-review on their configured cron expressions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		c := cron.New()
		jobs := []struct {
			name string
			spec string
			run  func(ctx context.Context, triggeredBy string) (model.RunSummary, error)
		}{
			{"check", cfg.Schedule.Check, env.checker.Run},
			{"verify", cfg.Schedule.Verify, env.verifier.Run},
			{"review", cfg.Schedule.Review, env.reviewer.Run},
		}
		for _, job := range jobs {
			job := job
			if _, err := c.AddFunc(job.spec, func() {
				if _, err := job.run(ctx, "cron"); err != nil {
					zap.L().Error("scheduled job failed",
						zap.String("job", job.name),
						zap.Error(err),
					)
				}
			}); err != nil {
				return err
			}
			zap.L().Info("job scheduled", zap.String("job", job.name), zap.String("cron", job.spec))
		}

		c.Start()
		<-ctx.Done()
		zap.L().Info("stopping scheduler")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
