// Package race implements race control: the waiting queue, the runner on the
// track, lap timing with personal-record detection and the shift check-in
// performed when a runner joins the queue.
//
// Every state change runs inside one store write transaction. The store is the
// only place queue and lap state live; nothing is cached between calls.
package race

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/database"
	"github.com/intermernet/relayrace/internal/realtime"
)

// Controller is the entry point for every race-control operation.
type Controller struct {
	store   *database.Service
	events  realtime.Publisher
	matcher *Matcher
	zone    *time.Location
	now     func() time.Time
}

// NewController wires the core to its store and to the publisher that
// receives personal-record events. zone is the event's civil time zone.
func NewController(store *database.Service, events realtime.Publisher, zone *time.Location) *Controller {
	return &Controller{
		store:   store,
		events:  events,
		matcher: NewMatcher(store, zone),
		zone:    zone,
		now:     time.Now,
	}
}

// SetClock replaces the source of the current time.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Zone is the civil time zone the controller evaluates wall-clock rules in.
func (c *Controller) Zone() *time.Location {
	return c.zone
}

// notFound turns the store's "nothing matched" errors into ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, database.ErrNoRowsAffected) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// Transition describes what a start-next, skip or stop did to the track.
type Transition struct {
	Finished *FinishedLap
	Started  *database.Lap
	Skipped  *database.Runner
}

// StartNext finishes the current lap, if any, and puts the head of the queue
// on the track. It fails with ErrQueueEmpty, changing nothing, when nobody is
// waiting.
func (c *Controller) StartNext(ctx context.Context) (*Transition, error) {
	now := c.now()
	t := &Transition{}
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		*t = Transition{}
		head, err := c.store.QueueHead(ctx, tx, 1)
		if err != nil {
			return err
		}
		if len(head) == 0 {
			return ErrQueueEmpty
		}

		if t.Finished, err = c.finalizeCurrent(ctx, tx, now); err != nil {
			return err
		}
		if t.Started, err = c.promote(ctx, tx, &head[0], now); err != nil {
			return err
		}
		return c.remember(ctx, tx, opStartNext, t, []database.QueueEntry{head[0]}, now)
	})
	if err != nil {
		return nil, err
	}

	c.announce(t.Finished)
	log.Info().Int64("runner", t.Started.RunnerID).Int64("lap", t.Started.ID).Msg("runner started")
	return t, nil
}

// SkipCurrent finishes the current lap, removes the head of the queue without
// running it and starts the second entry. With fewer than two runners waiting
// it fails with ErrInsufficientQueue and changes nothing.
func (c *Controller) SkipCurrent(ctx context.Context) (*Transition, error) {
	now := c.now()
	t := &Transition{}
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		*t = Transition{}
		head, err := c.store.QueueHead(ctx, tx, 2)
		if err != nil {
			return err
		}
		if len(head) < 2 {
			return ErrInsufficientQueue
		}

		if t.Finished, err = c.finalizeCurrent(ctx, tx, now); err != nil {
			return err
		}
		if err := c.store.DeleteQueueEntry(ctx, tx, head[0].ID); err != nil {
			return err
		}
		t.Skipped = head[0].Runner
		if t.Started, err = c.promote(ctx, tx, &head[1], now); err != nil {
			return err
		}
		return c.remember(ctx, tx, opSkip, t, head, now)
	})
	if err != nil {
		return nil, err
	}

	c.announce(t.Finished)
	log.Info().Int64("skipped", t.Skipped.ID).Int64("runner", t.Started.RunnerID).Msg("runner skipped")
	return t, nil
}

// StopCurrent finishes the current lap without starting anyone.
func (c *Controller) StopCurrent(ctx context.Context) (*Transition, error) {
	now := c.now()
	t := &Transition{}
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		*t = Transition{}
		var err error
		if t.Finished, err = c.finalizeCurrent(ctx, tx, now); err != nil {
			return err
		}
		if t.Finished == nil {
			return ErrNotRunning
		}
		return c.remember(ctx, tx, opStop, t, nil, now)
	})
	if err != nil {
		return nil, err
	}

	c.announce(t.Finished)
	log.Info().Int64("runner", t.Finished.Lap.RunnerID).Msg("track stopped")
	return t, nil
}

// promote removes entry from the queue and starts a lap for its runner.
func (c *Controller) promote(ctx context.Context, tx *sql.Tx, entry *database.QueueEntry, now time.Time) (*database.Lap, error) {
	raining, err := c.store.GetRaining(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("could not read weather: %w", err)
	}
	if err := c.store.DeleteQueueEntry(ctx, tx, entry.ID); err != nil {
		return nil, err
	}
	lap, err := c.store.CreateLap(ctx, tx, entry.RunnerID, now, raining)
	if err != nil {
		return nil, fmt.Errorf("could not start lap for runner %d: %w", entry.RunnerID, err)
	}
	lap.Runner = entry.Runner
	return lap, nil
}

// Raining reports the current weather flag.
func (c *Controller) Raining(ctx context.Context) (bool, error) {
	return c.store.GetRaining(ctx, c.store.DB())
}

// SetRaining changes the weather flag recorded on laps started from now on.
func (c *Controller) SetRaining(ctx context.Context, raining bool) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		return c.store.SetRaining(ctx, tx, raining)
	})
}

// Controls is what the race-control station displays.
type Controls struct {
	Previous   *database.Lap
	Current    *database.Lap
	ElapsedMs  int64
	Next       *database.QueueEntry
	SecondNext *database.QueueEntry
	Raining    bool
}

// ControlsSnapshot reads the previous, current and next two runners.
func (c *Controller) ControlsSnapshot(ctx context.Context) (*Controls, error) {
	db := c.store.DB()
	snap := &Controls{}

	current, err := c.store.GetInProgressLap(ctx, db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		snap.Current = current
		snap.ElapsedMs = elapsed(current.StartedAt, c.now())
	}

	previous, err := c.store.LatestFinalizedLap(ctx, db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		snap.Previous = previous
	}

	head, err := c.store.QueueHead(ctx, db, 2)
	if err != nil {
		return nil, err
	}
	if len(head) > 0 {
		snap.Next = &head[0]
	}
	if len(head) > 1 {
		snap.SecondNext = &head[1]
	}

	if snap.Raining, err = c.store.GetRaining(ctx, db); err != nil {
		return nil, err
	}
	return snap, nil
}
