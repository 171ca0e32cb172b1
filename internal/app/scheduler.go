package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
	"github.com/atvirokodosprendimai/recordvault/internal/core/usecase"
)

// Scheduler runs diagnostics on a cron schedule. With autoFix enabled it
// runs the repair sequence whenever a pass reports issues; AutoFix is
// idempotent, so overlapping state changes only mean another pass.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func StartScheduler(diag *usecase.DiagnosticsService, spec string, autoFix bool, log zerolog.Logger) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		runScheduledDiagnostics(diag, autoFix, log)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	log.Info().Str("schedule", spec).Bool("auto_fix", autoFix).Msg("diagnostics scheduler started")
	return &Scheduler{cron: c, log: log}, nil
}

func (s *Scheduler) Close() error {
	<-s.cron.Stop().Done()
	return nil
}

func runScheduledDiagnostics(diag *usecase.DiagnosticsService, autoFix bool, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report, err := diag.RunDiagnostics(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduled diagnostics failed")
		return
	}

	event := log.Info()
	if report.Health != domain.HealthOK {
		event = log.Warn()
	}
	for name, check := range report.Checks {
		if !check.OK {
			event = event.Str("failed_"+name, check.Error)
		}
	}
	event.Str("health", string(report.Health)).
		Dur("latency", report.Connection.Latency).
		Msg("scheduled diagnostics")

	if report.Health == domain.HealthOK || !autoFix {
		return
	}

	fixes, err := diag.AutoFix(ctx)
	if err != nil {
		log.Error().Err(err).Msg("auto fix failed")
		return
	}
	for _, fix := range fixes {
		log.Info().Str("fix", fix).Msg("auto fix applied")
	}
}
