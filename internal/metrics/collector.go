package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
// Nil fields are skipped.
type StatsSource struct {
	ProcessedEventCount func() int
	AuthorizedGroups    func() int
	AuditRecordCount    func() int
	GuardPaused         func() bool
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	// Do an initial collection immediately
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	if src.ProcessedEventCount != nil {
		ProcessedEventsSize.Set(float64(src.ProcessedEventCount()))
	}
	if src.AuthorizedGroups != nil {
		AuthorizedGroupsTotal.Set(float64(src.AuthorizedGroups()))
	}
	if src.AuditRecordCount != nil {
		AuditRecordsTotal.Set(float64(src.AuditRecordCount()))
	}
	if src.GuardPaused != nil {
		if src.GuardPaused() {
			GuardPausedState.Set(1)
		} else {
			GuardPausedState.Set(0)
		}
	}
}
