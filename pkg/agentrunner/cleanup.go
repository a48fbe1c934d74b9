package agentrunner

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor periodically purges old terminal runs from the registry.
type Janitor struct {
	cron      *cron.Cron
	registry  *Registry
	retention time.Duration
	logger    zerolog.Logger
}

// NewJanitor creates a janitor sweeping on the given cron schedule. An
// empty schedule defaults to hourly; a zero retention defaults to 7 days.
func NewJanitor(registry *Registry, schedule string, retention time.Duration, logger zerolog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = "@hourly"
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	j := &Janitor{
		cron:      cron.New(),
		registry:  registry,
		retention: retention,
		logger:    logger,
	}

	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the sweep schedule.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info().Dur("retention", j.retention).Msg("Agent registry janitor started")
}

// Stop halts the schedule, waiting for an in-flight sweep.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info().Msg("Agent registry janitor stopped")
}

func (j *Janitor) sweep() {
	removed, err := j.registry.Cleanup(j.retention.Milliseconds())
	if err != nil {
		j.logger.Error().Err(err).Msg("Agent registry sweep failed")
		return
	}
	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("Purged old agent runs")
	}
}
