package race

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/database"
)

// DefaultPeek is how many queue entries PeekHead returns when asked for none.
const DefaultPeek = 10

// Enqueued is the result of adding a runner to the queue.
type Enqueued struct {
	Entry     *database.QueueEntry
	CheckedIn []database.ShiftCheckIn
}

// Enqueue appends the runner to the tail of the queue and checks in any shift
// the runner is due for. Both happen in one transaction.
func (c *Controller) Enqueue(ctx context.Context, runnerID int64) (*Enqueued, error) {
	if runnerID <= 0 {
		return nil, ErrMissingRunnerID
	}

	now := c.now()
	res := &Enqueued{}
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		runner, err := c.store.GetRunnerByID(ctx, tx, runnerID)
		if err != nil {
			return notFound(err, fmt.Sprintf("runner %d", runnerID))
		}

		if _, err := c.store.GetQueueEntryByRunner(ctx, tx, runnerID); err == nil {
			return ErrAlreadyQueued
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		current, err := c.store.GetInProgressLap(ctx, tx)
		if err == nil && current.RunnerID == runnerID {
			return ErrAlreadyRunning
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		last, err := c.store.MaxQueuePlace(ctx, tx)
		if err != nil {
			return err
		}
		entry, err := c.store.InsertQueueEntry(ctx, tx, runnerID, last+1, now)
		if err != nil {
			return fmt.Errorf("could not queue runner %d: %w", runnerID, err)
		}
		entry.Runner = runner

		checkedIn, err := c.matcher.Evaluate(ctx, tx, runnerID, now)
		if err != nil {
			return err
		}
		res.Entry, res.CheckedIn = entry, checkedIn
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("runner", runnerID).Int64("place", res.Entry.QueuePlace).Int("checked_in", len(res.CheckedIn)).Msg("runner queued")
	return res, nil
}

// PeekHead returns the first n waiting entries in queue order.
func (c *Controller) PeekHead(ctx context.Context, n int) ([]database.QueueEntry, error) {
	if n <= 0 {
		n = DefaultPeek
	}
	return c.store.QueueHead(ctx, c.store.DB(), n)
}

// DequeueHead removes the first waiting entry and returns its runner.
func (c *Controller) DequeueHead(ctx context.Context) (*database.Runner, error) {
	var runner *database.Runner
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		head, err := c.store.QueueHead(ctx, tx, 1)
		if err != nil {
			return err
		}
		if len(head) == 0 {
			return ErrQueueEmpty
		}
		runner = head[0].Runner
		return c.store.DeleteQueueEntry(ctx, tx, head[0].ID)
	})
	if err != nil {
		return nil, err
	}
	return runner, nil
}

// Remove deletes a queue entry and returns the runner it belonged to.
func (c *Controller) Remove(ctx context.Context, entryID int64) (*database.Runner, error) {
	var runner *database.Runner
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		entry, err := c.store.GetQueueEntry(ctx, tx, entryID)
		if err != nil {
			return err
		}
		runner = entry.Runner
		return c.store.DeleteQueueEntry(ctx, tx, entryID)
	})
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("queue entry %d", entryID))
	}
	log.Info().Int64("entry", entryID).Int64("runner", runner.ID).Msg("queue entry removed")
	return runner, nil
}

// Placement moves one queue entry to a new place.
type Placement struct {
	EntryID int64
	Place   int64
}

// Reorder rewrites the places of the listed entries in one transaction.
// Entries not listed keep their place. The whole reorder is rejected if it
// would leave two entries on the same place.
func (c *Controller) Reorder(ctx context.Context, placements []Placement) error {
	if len(placements) == 0 {
		return fmt.Errorf("no placements given: %w", ErrInvalidInput)
	}
	seen := make(map[int64]bool, len(placements))
	for _, p := range placements {
		if p.EntryID <= 0 || p.Place <= 0 {
			return fmt.Errorf("entry %d to place %d: %w", p.EntryID, p.Place, ErrInvalidInput)
		}
		if seen[p.EntryID] {
			return fmt.Errorf("entry %d listed twice: %w", p.EntryID, ErrInvalidInput)
		}
		seen[p.EntryID] = true
	}

	return c.store.Write(ctx, func(tx *sql.Tx) error {
		for _, p := range placements {
			if err := c.store.UpdateQueuePlace(ctx, tx, p.EntryID, p.Place); err != nil {
				return notFound(err, fmt.Sprintf("queue entry %d", p.EntryID))
			}
		}
		dup, err := c.store.CountDuplicateQueuePlaces(ctx, tx)
		if err != nil {
			return err
		}
		if dup > 0 {
			return fmt.Errorf("reorder leaves %d shared places: %w", dup, ErrInvalidInput)
		}
		return nil
	})
}
