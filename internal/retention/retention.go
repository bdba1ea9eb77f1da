// Package retention runs the periodic invitation expiry sweep.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DevSchedule runs the sweep every minute.
const DevSchedule = "* * * * *"

// Expirer moves overdue PENDING invitations to EXPIRED.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// RunExpiryJob runs one sweep. It is idempotent; a second run right after
// the first expires nothing.
func RunExpiryJob(ctx context.Context, expirer Expirer, auditor *audit.Writer) (int64, error) {
	start := time.Now()

	expired, err := expirer.ExpireOverdue(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}

	if expired > 0 && auditor != nil {
		if err := auditor.LogInvitationsExpired(ctx, expired); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
	}

	log.Info().
		Int64("expired", expired).
		Dur("duration", time.Since(start)).
		Msg("Expiry sweep completed")

	return expired, nil
}

// Schedule registers the sweep on c. A panicking run is logged and does not
// stop the scheduler.
func Schedule(c *cron.Cron, schedule string, expirer Expirer, auditor *audit.Writer) error {
	_, err := c.AddFunc(schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Expiry sweep panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := RunExpiryJob(ctx, expirer, auditor); err != nil {
			log.Error().Err(err).Msg("Expiry sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	return nil
}
