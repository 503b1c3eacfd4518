package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/Bondifuzz/api-gateway/task"
)

// Logging returns middleware that logs submission start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, s *task.Submission, next Handler) error {
		logger.Info("submission started",
			slog.String("task_id", s.ID.String()),
			slog.String("kind", s.Kind),
			slog.String("engine", s.Triple.Engine),
			slog.String("image", s.Triple.Image),
			slog.Bool("background", s.Background),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("submission failed",
				slog.String("task_id", s.ID.String()),
				slog.String("kind", s.Kind),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("submission completed",
				slog.String("task_id", s.ID.String()),
				slog.String("kind", s.Kind),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
