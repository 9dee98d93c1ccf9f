package race

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/database"
	"github.com/intermernet/relayrace/internal/laptime"
	"github.com/intermernet/relayrace/internal/realtime"
)

// FinishedLap is a lap that just received its duration.
type FinishedLap struct {
	Lap        *database.Lap
	DurationMs int64
	// PersonalRecord is set when the lap beat the runner's previous best.
	PersonalRecord *realtime.PREvent
}

func elapsed(start, now time.Time) int64 {
	return laptime.Elapsed(start, now)
}

// Finalize closes out the lap with id lapID using the current time. A lap
// can be finalized once; later calls fail with ErrLapFinalized and leave the
// stored duration alone.
func (c *Controller) Finalize(ctx context.Context, lapID int64) (*FinishedLap, error) {
	now := c.now()
	var finished *FinishedLap
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		lap, err := c.store.GetLap(ctx, tx, lapID)
		if err != nil {
			return notFound(err, fmt.Sprintf("lap %d", lapID))
		}
		finished, err = c.finalize(ctx, tx, lap, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.announce(finished)
	return finished, nil
}

// finalizeCurrent finalizes the lap on the track. It returns nil when the
// track is idle.
func (c *Controller) finalizeCurrent(ctx context.Context, tx *sql.Tx, now time.Time) (*FinishedLap, error) {
	lap, err := c.store.GetInProgressLap(ctx, tx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read current lap: %w", err)
	}
	return c.finalize(ctx, tx, lap, now)
}

func (c *Controller) finalize(ctx context.Context, tx *sql.Tx, lap *database.Lap, now time.Time) (*FinishedLap, error) {
	if lap.Finished() {
		return nil, ErrLapFinalized
	}
	duration := elapsed(lap.StartedAt, now)

	oldBest, err := c.store.BestFinishedLap(ctx, tx, lap.RunnerID, lap.ID)
	if err != nil {
		return nil, fmt.Errorf("could not read best lap of runner %d: %w", lap.RunnerID, err)
	}

	if err := c.store.FinalizeLap(ctx, tx, lap.ID, duration); err != nil {
		if errors.Is(err, database.ErrNoRowsAffected) {
			return nil, ErrLapFinalized
		}
		return nil, err
	}
	lap.State = database.LapFinalized
	lap.DurationMs = duration

	finished := &FinishedLap{Lap: lap, DurationMs: duration}
	// A first lap has nothing to beat; a tie is not a record.
	if oldBest.Valid && duration < oldBest.Int64 {
		finished.PersonalRecord = &realtime.PREvent{
			RunnerID: lap.RunnerID,
			OldBest:  laptime.Format(oldBest.Int64),
			NewBest:  laptime.Format(duration),
		}
		if lap.Runner != nil {
			finished.PersonalRecord.RunnerName = lap.Runner.FullName()
		}
	}
	return finished, nil
}

// announce publishes the personal record of a committed lap. Delivery is best
// effort and never fails the operation.
func (c *Controller) announce(finished *FinishedLap) {
	if finished == nil || finished.PersonalRecord == nil || c.events == nil {
		return
	}
	pr := finished.PersonalRecord
	e, err := realtime.NewEvent(realtime.EventPR, pr)
	if err != nil {
		log.Error().Err(err).Int64("runner", pr.RunnerID).Msg("could not build personal record event")
		return
	}
	c.events.Publish(e)
	log.Info().Int64("runner", pr.RunnerID).Str("old", pr.OldBest).Str("new", pr.NewBest).Msg("personal record")
}
