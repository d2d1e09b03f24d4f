package worker

// expiry_cron.go
// Background goroutine that periodically expires batches whose expiry date
// has passed, so they stop counting toward available stock.

import (
	"context"
	"time"

	"clinicrx/internal/dto"

	"github.com/rs/zerolog/log"
)

// BatchExpirer is implemented by service.InventoryService.
type BatchExpirer interface {
	ExpireBatches(ctx context.Context, asOf time.Time) (*dto.ExpirySweepResponse, error)
}

// StartExpiryCron runs one sweep immediately and then one per interval until
// ctx is cancelled.
func StartExpiryCron(ctx context.Context, expirer BatchExpirer, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("expiry_cron: started")
		runExpirySweep(ctx, expirer, time.Now())

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("expiry_cron: shutting down")
				return
			case now := <-ticker.C:
				runExpirySweep(ctx, expirer, now)
			}
		}
	}()
}

func runExpirySweep(ctx context.Context, expirer BatchExpirer, now time.Time) {
	resp, err := expirer.ExpireBatches(ctx, now)
	if err != nil {
		// a busy inventory is retried on the next tick
		log.Warn().Err(err).Msg("expiry_cron: sweep failed")
		return
	}
	if resp.Expired > 0 {
		log.Info().Int("expired", resp.Expired).Str("as_of", resp.AsOf).Msg("expiry_cron: batches expired")
	}
}
