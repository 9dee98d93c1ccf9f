package api

import (
	"database/sql"
	"time"

	"github.com/intermernet/relayrace/internal/database"
	"github.com/intermernet/relayrace/internal/importer"
	"github.com/intermernet/relayrace/internal/laptime"
	"github.com/intermernet/relayrace/internal/race"
	"github.com/intermernet/relayrace/internal/realtime"
)

// Durations leave the API as M:SS.HH strings; nullable values become null.

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func lapTime(v sql.NullInt64) *string {
	if !v.Valid {
		return nil
	}
	s := laptime.Format(v.Int64)
	return &s
}

// RunnerResponse is the public view of a runner.
type RunnerResponse struct {
	ID               int64     `json:"id"`
	Identification   string    `json:"identification"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Name             string    `json:"name"`
	PhoneNumber      string    `json:"phoneNumber"`
	FacultyID        *int64    `json:"facultyId"`
	GroupNumber      *int64    `json:"groupNumber"`
	TestTime         string    `json:"testTime"`
	FirstYear        bool      `json:"firstYear"`
	Reward1Collected bool      `json:"reward1Collected"`
	Reward2Collected bool      `json:"reward2Collected"`
	Reward3Collected bool      `json:"reward3Collected"`
	RegisteredAt     time.Time `json:"registeredAt"`
}

func toRunnerResponse(r *database.Runner) *RunnerResponse {
	if r == nil {
		return nil
	}
	return &RunnerResponse{
		ID:               r.ID,
		Identification:   r.Identification,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		Name:             r.FullName(),
		PhoneNumber:      r.PhoneNumber,
		FacultyID:        nullInt(r.FacultyID),
		GroupNumber:      nullInt(r.GroupNumber),
		TestTime:         r.TestTime,
		FirstYear:        r.FirstYear,
		Reward1Collected: r.Reward1Collected,
		Reward2Collected: r.Reward2Collected,
		Reward3Collected: r.Reward3Collected,
		RegisteredAt:     r.RegisteredAt.UTC(),
	}
}

// RunnerSummaryResponse adds lap aggregates to a runner.
type RunnerSummaryResponse struct {
	RunnerResponse
	LastLapTime   *string `json:"lastLapTime"`
	CompletedLaps int     `json:"completedLaps"`
}

func toRunnerSummaryList(summaries []database.RunnerSummary) []RunnerSummaryResponse {
	list := make([]RunnerSummaryResponse, len(summaries))
	for i := range summaries {
		list[i] = RunnerSummaryResponse{
			RunnerResponse: *toRunnerResponse(&summaries[i].Runner),
			LastLapTime:    lapTime(summaries[i].LastLapMs),
			CompletedLaps:  summaries[i].CompletedLaps,
		}
	}
	return list
}

// QueueEntryResponse is a waiting runner.
type QueueEntryResponse struct {
	ID          int64           `json:"id"`
	RunnerID    int64           `json:"runnerId"`
	QueuePlace  int64           `json:"queuePlace"`
	CreatedAt   time.Time       `json:"createdAt"`
	Runner      *RunnerResponse `json:"runner,omitempty"`
	LastLapTime *string         `json:"lastLapTime"`
}

func toQueueEntryResponse(e *database.QueueEntry) *QueueEntryResponse {
	if e == nil {
		return nil
	}
	return &QueueEntryResponse{
		ID:          e.ID,
		RunnerID:    e.RunnerID,
		QueuePlace:  e.QueuePlace,
		CreatedAt:   e.CreatedAt.UTC(),
		Runner:      toRunnerResponse(e.Runner),
		LastLapTime: lapTime(e.LastLapMs),
	}
}

func toQueueEntryList(entries []database.QueueEntry) []QueueEntryResponse {
	list := make([]QueueEntryResponse, len(entries))
	for i := range entries {
		list[i] = *toQueueEntryResponse(&entries[i])
	}
	return list
}

// LapResponse is one lap. LapTime is null while the lap is in progress.
type LapResponse struct {
	ID        int64           `json:"id"`
	RunnerID  int64           `json:"runnerId"`
	Runner    *RunnerResponse `json:"runner,omitempty"`
	StartTime time.Time       `json:"startTime"`
	State     string          `json:"state"`
	LapTime   *string         `json:"lapTime"`
	Raining   bool            `json:"raining"`
}

func toLapResponse(l *database.Lap) *LapResponse {
	if l == nil {
		return nil
	}
	resp := &LapResponse{
		ID:        l.ID,
		RunnerID:  l.RunnerID,
		Runner:    toRunnerResponse(l.Runner),
		StartTime: l.StartedAt.UTC(),
		State:     string(l.State),
		Raining:   l.Raining,
	}
	if l.Finished() {
		resp.LapTime = lapTime(sql.NullInt64{Int64: l.DurationMs, Valid: true})
	}
	return resp
}

func toLapList(laps []database.Lap) []LapResponse {
	list := make([]LapResponse, len(laps))
	for i := range laps {
		list[i] = *toLapResponse(&laps[i])
	}
	return list
}

// TransitionResponse reports a start-next, skip or stop.
type TransitionResponse struct {
	FinishedLap    *LapResponse      `json:"finishedLap"`
	PersonalRecord *realtime.PREvent `json:"personalRecord"`
	StartedLap     *LapResponse      `json:"startedLap"`
	StartedRunner  *RunnerResponse   `json:"startedRunner"`
	SkippedRunner  *RunnerResponse   `json:"skippedRunner"`
}

func toTransitionResponse(t *race.Transition) TransitionResponse {
	resp := TransitionResponse{
		StartedLap:    toLapResponse(t.Started),
		SkippedRunner: toRunnerResponse(t.Skipped),
	}
	if t.Started != nil {
		resp.StartedRunner = toRunnerResponse(t.Started.Runner)
	}
	if t.Finished != nil {
		resp.FinishedLap = toLapResponse(t.Finished.Lap)
		resp.PersonalRecord = t.Finished.PersonalRecord
	}
	return resp
}

// UndoResponse reports what an undo restored.
type UndoResponse struct {
	Operation   string               `json:"operation"`
	ReopenedLap *LapResponse         `json:"reopenedLap"`
	Requeued    []QueueEntryResponse `json:"requeued"`
}

func toUndoResponse(u *race.Undone) UndoResponse {
	return UndoResponse{
		Operation:   u.Operation,
		ReopenedLap: toLapResponse(u.Reopened),
		Requeued:    toQueueEntryList(u.Requeued),
	}
}

// ControlsResponse is the race-control station view.
type ControlsResponse struct {
	PreviousRunner   *RunnerResponse `json:"previousRunner"`
	PreviousLapTime  *string         `json:"previousLapTime"`
	CurrentRunner    *RunnerResponse `json:"currentRunner"`
	CurrentStartTime *time.Time      `json:"currentStartTime"`
	ElapsedMs        int64           `json:"elapsedMs"`
	Elapsed          *string         `json:"elapsed"`
	NextRunner       *RunnerResponse `json:"nextRunner"`
	SecondNextRunner *RunnerResponse `json:"secondNextRunner"`
	Raining          bool            `json:"raining"`
}

func toControlsResponse(c *race.Controls) ControlsResponse {
	resp := ControlsResponse{Raining: c.Raining}
	if c.Previous != nil {
		resp.PreviousRunner = toRunnerResponse(c.Previous.Runner)
		resp.PreviousLapTime = toLapResponse(c.Previous).LapTime
	}
	if c.Current != nil {
		start := c.Current.StartedAt.UTC()
		resp.CurrentRunner = toRunnerResponse(c.Current.Runner)
		resp.CurrentStartTime = &start
		resp.ElapsedMs = c.ElapsedMs
		resp.Elapsed = lapTime(sql.NullInt64{Int64: c.ElapsedMs, Valid: true})
	}
	if c.Next != nil {
		resp.NextRunner = toRunnerResponse(c.Next.Runner)
	}
	if c.SecondNext != nil {
		resp.SecondNextRunner = toRunnerResponse(c.SecondNext.Runner)
	}
	return resp
}

type runnerBestResponse struct {
	Runner  RunnerResponse `json:"runner"`
	BestLap string         `json:"bestLap"`
}

type runnerCountResponse struct {
	Runner RunnerResponse `json:"runner"`
	Laps   int            `json:"laps"`
}

type runnerPointsResponse struct {
	Runner RunnerResponse `json:"runner"`
	Points int            `json:"points"`
}

type groupCountResponse struct {
	GroupNumber int64  `json:"groupNumber"`
	Name        string `json:"name"`
	Laps        int    `json:"laps"`
}

// StatisticsResponse is the dashboard view.
type StatisticsResponse struct {
	CurrentLap    *LapResponse           `json:"currentLap"`
	ElapsedMs     int64                  `json:"elapsedMs"`
	RecentLaps    []LapResponse          `json:"recentLaps"`
	FastestLaps   []runnerBestResponse   `json:"fastestLaps"`
	Queue         []QueueEntryResponse   `json:"queue"`
	GroupLaps     []groupCountResponse   `json:"groupLaps"`
	TopRunners    []runnerCountResponse  `json:"topRunners"`
	TopFirstYears []runnerCountResponse  `json:"topFirstYears"`
	LapPoints     []runnerPointsResponse `json:"lapPoints"`
}

func countList(counts []database.RunnerLapCount) []runnerCountResponse {
	list := make([]runnerCountResponse, len(counts))
	for i := range counts {
		list[i] = runnerCountResponse{Runner: *toRunnerResponse(&counts[i].Runner), Laps: counts[i].Laps}
	}
	return list
}

func toStatisticsResponse(st *race.Statistics) StatisticsResponse {
	resp := StatisticsResponse{
		CurrentLap:    toLapResponse(st.Current),
		ElapsedMs:     st.CurrentElapsedMs,
		RecentLaps:    toLapList(st.RecentLaps),
		FastestLaps:   make([]runnerBestResponse, len(st.Fastest)),
		Queue:         toQueueEntryList(st.Queue),
		GroupLaps:     make([]groupCountResponse, len(st.Groups)),
		TopRunners:    countList(st.TopRunners),
		TopFirstYears: countList(st.TopFirstYears),
		LapPoints:     make([]runnerPointsResponse, len(st.Points)),
	}
	for i, b := range st.Fastest {
		resp.FastestLaps[i] = runnerBestResponse{Runner: *toRunnerResponse(&b.Runner), BestLap: laptime.Format(b.BestMs)}
	}
	for i, g := range st.Groups {
		resp.GroupLaps[i] = groupCountResponse{GroupNumber: g.GroupNumber, Name: g.Name, Laps: g.Laps}
	}
	for i, p := range st.Points {
		resp.LapPoints[i] = runnerPointsResponse{Runner: *toRunnerResponse(&p.Runner), Points: p.Points}
	}
	return resp
}

// ShiftCheckInResponse is one runner's assignment to a shift.
type ShiftCheckInResponse struct {
	ID              int64           `json:"id"`
	RunnerID        int64           `json:"runnerId"`
	Runner          *RunnerResponse `json:"runner,omitempty"`
	TimeSlot        string          `json:"timeSlot"`
	StartMinute     int             `json:"startMinute"`
	EndMinute       int             `json:"endMinute"`
	CrossesMidnight bool            `json:"crossesMidnight"`
	CheckedIn       bool            `json:"checkedIn"`
	AlreadyCalled   bool            `json:"alreadyCalled"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func toShiftCheckInResponse(c *database.ShiftCheckIn) ShiftCheckInResponse {
	return ShiftCheckInResponse{
		ID:              c.ID,
		RunnerID:        c.RunnerID,
		Runner:          toRunnerResponse(c.Runner),
		TimeSlot:        c.TimeSlot,
		StartMinute:     c.StartMinute,
		EndMinute:       c.EndMinute,
		CrossesMidnight: c.EndMinute < c.StartMinute,
		CheckedIn:       c.CheckedIn,
		AlreadyCalled:   c.AlreadyCalled,
		CreatedAt:       c.CreatedAt.UTC(),
	}
}

func toShiftCheckInList(checkIns []database.ShiftCheckIn) []ShiftCheckInResponse {
	list := make([]ShiftCheckInResponse, len(checkIns))
	for i := range checkIns {
		list[i] = toShiftCheckInResponse(&checkIns[i])
	}
	return list
}

// ImportResponse is the outcome of a runner sheet upload.
type ImportResponse struct {
	Success bool             `json:"success"`
	Details *importer.Result `json:"details"`
}
