package race

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/intermernet/relayrace/internal/database"
)

const (
	opStartNext = "start-next"
	opSkip      = "skip"
	opStop      = "stop"
)

// controlSnapshot is what is needed to reverse the last track operation.
type controlSnapshot struct {
	FinalizedLapID int64          `msgpack:"finalized_lap_id"`
	StartedLapID   int64          `msgpack:"started_lap_id"`
	Removed        []removedEntry `msgpack:"removed"`
}

type removedEntry struct {
	RunnerID    int64 `msgpack:"runner_id"`
	Place       int64 `msgpack:"place"`
	CreatedAtMs int64 `msgpack:"created_at_ms"`
}

// remember replaces the undo history with the effects of t.
func (c *Controller) remember(ctx context.Context, tx *sql.Tx, op string, t *Transition, removed []database.QueueEntry, now time.Time) error {
	snap := controlSnapshot{}
	if t.Finished != nil {
		snap.FinalizedLapID = t.Finished.Lap.ID
	}
	if t.Started != nil {
		snap.StartedLapID = t.Started.ID
	}
	for _, e := range removed {
		snap.Removed = append(snap.Removed, removedEntry{
			RunnerID:    e.RunnerID,
			Place:       e.QueuePlace,
			CreatedAtMs: e.CreatedAt.UnixMilli(),
		})
	}

	buf, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("could not encode %s history: %w", op, err)
	}
	return c.store.SaveControlHistory(ctx, tx, op, buf, now)
}

// Undone describes what Undo restored.
type Undone struct {
	Operation string
	// Reopened is the lap put back on the track, if the operation finished one.
	Reopened *database.Lap
	// Requeued are the runners returned to the queue, in queue order.
	Requeued []database.QueueEntry
}

// Undo reverses the most recent start-next, skip or stop. The lap it started
// is deleted, the lap it finished is put back on the track and the runners it
// took off the queue are returned to the front of the queue, on their old places
// when those still sort first. Only one step is kept:
// a second Undo fails with ErrNothingToUndo. A personal record that was
// already announced is not withdrawn.
func (c *Controller) Undo(ctx context.Context) (*Undone, error) {
	undone := &Undone{}
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		*undone = Undone{}
		op, buf, err := c.store.PopControlHistory(ctx, tx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNothingToUndo
		}
		if err != nil {
			return err
		}
		var snap controlSnapshot
		if err := msgpack.Unmarshal(buf, &snap); err != nil {
			return fmt.Errorf("could not decode %s history: %w", op, err)
		}
		undone.Operation = op

		if snap.StartedLapID != 0 {
			if err := c.store.DeleteLap(ctx, tx, snap.StartedLapID); err != nil {
				return notFound(err, fmt.Sprintf("lap %d", snap.StartedLapID))
			}
		}
		if snap.FinalizedLapID != 0 {
			if err := c.store.ReopenLap(ctx, tx, snap.FinalizedLapID); err != nil {
				return notFound(err, fmt.Sprintf("lap %d", snap.FinalizedLapID))
			}
			if undone.Reopened, err = c.store.GetLap(ctx, tx, snap.FinalizedLapID); err != nil {
				return err
			}
			// The runner is back on the track and cannot also be waiting.
			if err := c.withdraw(ctx, tx, undone.Reopened.RunnerID); err != nil {
				return err
			}
		}

		undone.Requeued, err = c.requeue(ctx, tx, snap.Removed)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("operation", undone.Operation).Int("requeued", len(undone.Requeued)).Msg("race control undone")
	return undone, nil
}

// requeue puts removed entries back at the front of the queue, in their old
// order. Old places are kept when they still sort before the current head.
func (c *Controller) requeue(ctx context.Context, tx *sql.Tx, removed []removedEntry) ([]database.QueueEntry, error) {
	if len(removed) == 0 {
		return []database.QueueEntry{}, nil
	}

	// A skipped runner may have queued again in the meantime.
	for _, r := range removed {
		if err := c.withdraw(ctx, tx, r.RunnerID); err != nil {
			return nil, err
		}
	}

	places := make([]int64, len(removed))
	var highest int64
	for i, r := range removed {
		places[i] = r.Place
		highest = max(highest, r.Place)
	}
	count, err := c.store.CountQueueEntries(ctx, tx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		head, err := c.store.MinQueuePlace(ctx, tx)
		if err != nil {
			return nil, err
		}
		if highest >= head {
			for i := range places {
				places[i] = head - int64(len(removed)-i)
			}
		}
	}

	requeued := make([]database.QueueEntry, 0, len(removed))
	for i, r := range removed {
		entry, err := c.store.InsertQueueEntry(ctx, tx, r.RunnerID, places[i], time.UnixMilli(r.CreatedAtMs))
		if err != nil {
			return nil, fmt.Errorf("could not requeue runner %d: %w", r.RunnerID, err)
		}
		if entry.Runner, err = c.store.GetRunnerByID(ctx, tx, r.RunnerID); err != nil {
			return nil, err
		}
		requeued = append(requeued, *entry)
	}
	return requeued, nil
}

// withdraw deletes the runner's queue entry, if there is one.
func (c *Controller) withdraw(ctx context.Context, tx *sql.Tx, runnerID int64) error {
	existing, err := c.store.GetQueueEntryByRunner(ctx, tx, runnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.store.DeleteQueueEntry(ctx, tx, existing.ID)
}
