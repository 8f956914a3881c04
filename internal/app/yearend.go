/**
 * @description
 * Scheduled job implementations for the subscription-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// SweepStore defines the database operations the year-end job needs.
type SweepStore interface {
	SweepRolloverDue(ctx context.Context, now time.Time) (int64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	subs   SweepStore
	logger *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(subs SweepStore, logger *slog.Logger) *Jobs {
	return &Jobs{subs: subs, logger: logger}
}

// ProcessYearEndRollover suspends every still-current Active record whose
// rollover date has passed. Suspended records stay current so downstream
// lookups keep resolving the profile until a renewal event replaces them.
func (j *Jobs) ProcessYearEndRollover() {
	j.logger.Info("starting year-end rollover job")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	processed, err := j.subs.SweepRolloverDue(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("year-end rollover sweep failed", "error", err)
		return
	}

	j.logger.Info("year-end rollover job completed", "suspended", processed)
}
