package daemon

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

// startPeriodic schedules fn every interval on a gocron scheduler. A run
// still in progress when the next tick arrives is not overlapped.
func startPeriodic(name string, interval time.Duration, fn func()) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create scheduler").Build()
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to schedule periodic job").
			WithContext("job", name).WithContext("interval", interval.String()).Build()
	}
	s.Start()
	slog.Info("Scheduled periodic job", slog.String("job", name), slog.Duration("interval", interval))
	return s, nil
}
