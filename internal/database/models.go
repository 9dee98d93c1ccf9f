package database

import (
	"database/sql"
	"time"
)

// Runner represents a record in the 'runners' table.
// FacultyID and GroupNumber are NULL for runners without an affiliation.
type Runner struct {
	ID               int64
	Identification   string
	FirstName        string
	LastName         string
	PhoneNumber      string
	FacultyID        sql.NullInt64
	GroupNumber      sql.NullInt64
	TestTime         string
	FirstYear        bool
	Reward1Collected bool
	Reward2Collected bool
	Reward3Collected bool
	RegisteredAt     time.Time
}

// FullName is how runners are shown on the dashboards.
func (r *Runner) FullName() string {
	return r.FirstName + " " + r.LastName
}

// Faculty represents a record in the 'faculties' table.
type Faculty struct {
	ID   int64
	Name string
}

// Group represents a record in the 'runner_groups' table.
type Group struct {
	ID          int64
	GroupNumber int64
	Name        string
}

// QueueEntry represents a runner waiting in line. Lower QueuePlace runs first.
type QueueEntry struct {
	ID         int64
	RunnerID   int64
	QueuePlace int64
	CreatedAt  time.Time

	// Populated by the joined head-of-queue query.
	Runner *Runner
	// Duration of the runner's most recent finished lap, if any.
	LastLapMs sql.NullInt64
}

// LapState says whether a lap is still on the track.
type LapState string

const (
	LapInProgress LapState = "in_progress"
	LapFinalized  LapState = "finalized"
)

// Lap represents a record in the 'laps' table. DurationMs is only meaningful
// when State is LapFinalized.
type Lap struct {
	ID         int64
	RunnerID   int64
	StartedAt  time.Time
	State      LapState
	DurationMs int64
	Raining    bool

	// Populated by joined queries.
	Runner *Runner
}

// Finished reports whether the lap has a final duration.
func (l *Lap) Finished() bool {
	return l.State == LapFinalized
}

// ShiftCheckIn represents a record in the 'shift_checkins' table. TimeSlot is
// the display label; StartMinute and EndMinute are the parsed boundaries.
type ShiftCheckIn struct {
	ID            int64
	RunnerID      int64
	TimeSlot      string
	StartMinute   int
	EndMinute     int
	CheckedIn     bool
	AlreadyCalled bool
	CreatedAt     time.Time

	Runner *Runner
}

// RunnerLapCount pairs a runner with their number of finished laps.
type RunnerLapCount struct {
	Runner Runner
	Laps   int
}

// GroupLapCount is the number of finished laps run by members of a group.
type GroupLapCount struct {
	GroupNumber int64
	Name        string
	Laps        int
}

// RunnerBest is a runner's fastest finished lap.
type RunnerBest struct {
	Runner Runner
	BestMs int64
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
