package race

import (
	"context"
	"fmt"
	"time"

	"github.com/intermernet/relayrace/internal/database"
	"github.com/intermernet/relayrace/internal/shift"
)

// Matcher marks a runner's volunteer shifts as attended when they join the
// queue during (or shortly before) the shift.
type Matcher struct {
	store *database.Service
	zone  *time.Location
}

// NewMatcher reads wall-clock times in zone.
func NewMatcher(store *database.Service, zone *time.Location) *Matcher {
	return &Matcher{store: store, zone: zone}
}

// Evaluate checks in every pending shift of runnerID whose slot contains now,
// read as wall-clock time in the event zone. It runs on db so that it can
// share the enqueue transaction, and returns the shifts it checked in.
func (m *Matcher) Evaluate(ctx context.Context, db database.DBorTx, runnerID int64, now time.Time) ([]database.ShiftCheckIn, error) {
	pending, err := m.store.PendingShiftCheckIns(ctx, db, runnerID)
	if err != nil {
		return nil, fmt.Errorf("could not load shifts of runner %d: %w", runnerID, err)
	}

	minute := shift.MinuteOfDay(now, m.zone)
	checkedIn := []database.ShiftCheckIn{}
	for _, c := range pending {
		slot := shift.Slot{
			Label:           c.TimeSlot,
			StartMinute:     c.StartMinute,
			EndMinute:       c.EndMinute,
			CrossesMidnight: c.EndMinute < c.StartMinute,
		}
		if !slot.Contains(minute) {
			continue
		}
		if err := m.store.SetShiftCheckedIn(ctx, db, c.ID, true); err != nil {
			return nil, fmt.Errorf("could not check in shift %d: %w", c.ID, err)
		}
		c.CheckedIn = true
		checkedIn = append(checkedIn, c)
	}
	return checkedIn, nil
}
