package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intermernet/relayrace/internal/auth"
	"github.com/intermernet/relayrace/internal/config"
	"github.com/intermernet/relayrace/internal/database"
	"github.com/intermernet/relayrace/internal/race"
	"github.com/intermernet/relayrace/internal/realtime"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testServer struct {
	*httptest.Server
	api    *Server
	broker *realtime.Broker
	clock  *testClock
	token  string
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	zone, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	frontend, err := url.Parse("http://localhost:3000")
	require.NoError(t, err)

	cfg := &config.Config{
		FrontendURL:       frontend.String(),
		ParsedFrontendURL: frontend,
		DBDriver:          database.DriverSQLite,
		EventTimezone:     "Europe/Brussels",
		Location:          zone,
		PingInterval:      time.Hour,
	}
	for _, m := range mutate {
		m(cfg)
	}

	store, err := database.NewService(database.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.InitSchema(context.Background()))

	clk := &testClock{t: time.Date(2025, 5, 14, 20, 5, 0, 0, zone)}
	broker := realtime.NewBroker()
	ctrl := race.NewController(store, broker, zone)
	ctrl.SetClock(clk.now)

	srv := NewServer(cfg, store, ctrl, broker)
	srv.now = clk.now

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, api: srv, broker: broker, clock: clk}
}

// do sends body as JSON and decodes the response into out when given.
func (ts *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, ts.URL+"/api/v1"+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (ts *testServer) createRunner(t *testing.T, first, last string) RunnerResponse {
	t.Helper()
	var out struct {
		Runner RunnerResponse `json:"runner"`
	}
	status := ts.do(t, http.MethodPost, "/runners", map[string]any{"firstName": first, "lastName": last}, &out)
	require.Equal(t, http.StatusCreated, status)
	return out.Runner
}

func (ts *testServer) enqueue(t *testing.T, runnerID int64) {
	t.Helper()
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/queue", map[string]any{"runnerId": runnerID}, nil))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEnqueueWithoutRunnerID(t *testing.T) {
	ts := newTestServer(t)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/queue", map[string]any{}, &body))
	assert.Equal(t, "MissingRunnerId", body.Code)

	body = errorBody{}
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/queue", nil, &body))
	assert.Equal(t, "MissingRunnerId", body.Code)
}

func TestEnqueueRejections(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.createRunner(t, "Ann", "Peeters")

	var body errorBody
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/queue", map[string]any{"runnerId": 999}, &body))
	assert.Equal(t, "NotFound", body.Code)

	ts.enqueue(t, ann.ID)
	body = errorBody{}
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/queue", map[string]any{"runnerId": ann.ID}, &body))
	assert.Equal(t, "AlreadyQueued", body.Code)
}

func TestCreateRunnerGeneratesIdentification(t *testing.T) {
	ts := newTestServer(t)
	r := ts.createRunner(t, "Ann", "Peeters")
	assert.NotEmpty(t, r.Identification)
	assert.Equal(t, "Ann Peeters", r.Name)

	var body errorBody
	status := ts.do(t, http.MethodPost, "/runners", map[string]any{
		"firstName": "Other", "lastName": "Person", "identification": r.Identification,
	}, &body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "AlreadyExists", body.Code)
}

func TestRaceControlErrors(t *testing.T) {
	ts := newTestServer(t)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/race/start-next", nil, &body))
	assert.Equal(t, "QueueEmpty", body.Code)

	ann := ts.createRunner(t, "Ann", "Peeters")
	ts.enqueue(t, ann.ID)

	body = errorBody{}
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/race/skip", nil, &body))
	assert.Equal(t, "InsufficientQueue", body.Code)

	body = errorBody{}
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/race/undo", nil, &body))
	assert.Equal(t, "NothingToUndo", body.Code)

	body = errorBody{}
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/queue/999", nil, &body))
	assert.Equal(t, "NotFound", body.Code)
}

func TestSkipAndControls(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createRunner(t, "Ann", "Peeters")
	b := ts.createRunner(t, "Bram", "Janssens")
	c := ts.createRunner(t, "Cas", "Maes")
	for _, r := range []RunnerResponse{a, b, c} {
		ts.enqueue(t, r.ID)
	}

	var skipped TransitionResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/race/skip", nil, &skipped))
	require.NotNil(t, skipped.SkippedRunner)
	require.NotNil(t, skipped.StartedRunner)
	assert.Equal(t, a.ID, skipped.SkippedRunner.ID)
	assert.Equal(t, b.ID, skipped.StartedRunner.ID)

	ts.clock.advance(78230 * time.Millisecond)
	var controls ControlsResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/race/controls", nil, &controls))
	require.NotNil(t, controls.CurrentRunner)
	assert.Equal(t, b.ID, controls.CurrentRunner.ID)
	require.NotNil(t, controls.Elapsed)
	assert.Equal(t, "1:18.23", *controls.Elapsed)
	require.NotNil(t, controls.NextRunner)
	assert.Equal(t, c.ID, controls.NextRunner.ID)
	assert.Nil(t, controls.SecondNextRunner)
	assert.Nil(t, controls.PreviousRunner)

	var queue struct {
		Queue []QueueEntryResponse `json:"queue"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/queue", nil, &queue))
	require.Len(t, queue.Queue, 1)
	assert.Equal(t, c.ID, queue.Queue[0].RunnerID)
}

func TestReorderQueue(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createRunner(t, "Ann", "Peeters")
	b := ts.createRunner(t, "Bram", "Janssens")
	ts.enqueue(t, a.ID)
	ts.enqueue(t, b.ID)

	var queue struct {
		Queue []QueueEntryResponse `json:"queue"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/queue", nil, &queue))
	require.Len(t, queue.Queue, 2)

	order := []map[string]int64{
		{"entryId": queue.Queue[0].ID, "place": 2},
		{"entryId": queue.Queue[1].ID, "place": 1},
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/queue/order", order, &queue))
	require.Len(t, queue.Queue, 2)
	assert.Equal(t, b.ID, queue.Queue[0].RunnerID)
	assert.Equal(t, a.ID, queue.Queue[1].RunnerID)
}

func TestWeather(t *testing.T) {
	ts := newTestServer(t)

	var weather struct {
		Raining bool `json:"raining"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/weather", nil, &weather))
	assert.False(t, weather.Raining)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/weather", map[string]bool{"raining": true}, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/weather", nil, &weather))
	assert.True(t, weather.Raining)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/weather", map[string]any{}, &body))
	assert.Equal(t, "InvalidInput", body.Code)
}

func TestAssignShiftsAndAutoCheckIn(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.createRunner(t, "Ann", "Van den Broeck")

	var assigned struct {
		TimeSlot string   `json:"timeSlot"`
		Added    []string `json:"added"`
		NotFound []string `json:"notFound"`
	}
	payload := map[string]string{"timeSlot": "20u30 - 22u", "runnersList": "ann van den broeck\nNobody Here\n\n"}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/shift-checkins", payload, &assigned))
	assert.Equal(t, "20u30-22u", assigned.TimeSlot)
	assert.Equal(t, []string{"Ann Van den Broeck"}, assigned.Added)
	assert.Equal(t, []string{"Nobody Here"}, assigned.NotFound)

	// Assigning again is a no-op.
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/shift-checkins", payload, &assigned))
	assert.Empty(t, assigned.Added)

	var enqueued struct {
		CheckedIn []ShiftCheckInResponse `json:"checkedIn"`
	}
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/queue", map[string]any{"runnerId": ann.ID}, &enqueued))
	require.Len(t, enqueued.CheckedIn, 1)
	assert.True(t, enqueued.CheckedIn[0].CheckedIn)

	var list struct {
		CheckIns []ShiftCheckInResponse `json:"checkIns"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/shift-checkins?timeSlot=20u30-22u", nil, &list))
	require.Len(t, list.CheckIns, 1)
	id := list.CheckIns[0].ID

	var toggled struct {
		CheckIn ShiftCheckInResponse `json:"checkIn"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/shift-checkins/"+strconv.FormatInt(id, 10)+"/toggle-called", nil, &toggled))
	assert.True(t, toggled.CheckIn.AlreadyCalled)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/shift-checkins", map[string]string{"timeSlot": "late", "runnersList": ""}, &body))
	assert.Equal(t, "InvalidInput", body.Code)
}

func TestRewards(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.createRunner(t, "Ann", "Peeters")

	var out struct {
		Runner RunnerResponse `json:"runner"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/rewards/"+strconv.FormatInt(ann.ID, 10)+"/2", map[string]bool{"collected": true}, &out))
	assert.True(t, out.Runner.Reward2Collected)
	assert.False(t, out.Runner.Reward1Collected)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/rewards/"+strconv.FormatInt(ann.ID, 10)+"/4", map[string]bool{"collected": true}, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, "/rewards/999/1", map[string]bool{"collected": true}, nil))
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"ann", "pee"}, searchTerms(`["ann","pee"]`))
	assert.Equal(t, []string{"ann", "pee"}, searchTerms("  ann  pee "))
	assert.Empty(t, searchTerms(""))
}

func TestStaffAuth(t *testing.T) {
	hash, err := auth.HashPassword("letmein")
	require.NoError(t, err)
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.JwtSecret = "test-secret"
		cfg.StaffPasswordHash = hash
	})

	var body errorBody
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/race/start-next", nil, &body))
	assert.Equal(t, "Unauthorized", body.Code)

	// The kiosk does not log in.
	ann := ts.createRunnerAsStaff(t, "Ann", "Peeters")
	ts.enqueue(t, ann.ID)

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/auth/login", map[string]string{"password": "wrong"}, nil))

	var login struct {
		Token string `json:"token"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/auth/login", map[string]string{"password": "letmein", "station": "finish"}, &login))
	require.NotEmpty(t, login.Token)
	ts.token = login.Token
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/race/start-next", nil, nil))
}

// createRunnerAsStaff logs in for a single request.
func (ts *testServer) createRunnerAsStaff(t *testing.T, first, last string) RunnerResponse {
	t.Helper()
	token, err := auth.IssueToken(ts.api.config.JwtSecret, "registration", ts.clock.now(), time.Hour)
	require.NoError(t, err)
	ts.token = token
	defer func() { ts.token = "" }()
	return ts.createRunner(t, first, last)
}

func TestLoginDisabledWithoutStaffAuth(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/auth/login", map[string]string{"password": "x"}, nil))
}

// readEvent returns the next named SSE event and its data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestSSEPing(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.PingInterval = 20 * time.Millisecond })

	resp, err := http.Get(ts.URL + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	first, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "retry: 5000\n", first)

	name, data := readEvent(t, r)
	assert.Equal(t, realtime.EventPing, name)
	assert.Equal(t, "{}", data)
}

func TestSSEPersonalRecord(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createRunner(t, "Ann", "Peeters")
	b := ts.createRunner(t, "Bram", "Janssens")

	resp, err := http.Get(ts.URL + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return ts.broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	// Ann runs 1:20.00, Bram a lap, then Ann runs 1:15.00.
	ts.enqueue(t, a.ID)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/race/start-next", nil, nil))
	ts.enqueue(t, b.ID)
	ts.clock.advance(80 * time.Second)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/race/start-next", nil, nil))
	ts.enqueue(t, a.ID)
	ts.clock.advance(90 * time.Second)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/race/start-next", nil, nil))
	ts.clock.advance(75 * time.Second)

	var stopped TransitionResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/race/stop", nil, &stopped))
	require.NotNil(t, stopped.PersonalRecord)

	name, data := readEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, realtime.EventPR, name)
	var pr realtime.PREvent
	require.NoError(t, json.Unmarshal([]byte(data), &pr))
	assert.Equal(t, realtime.PREvent{RunnerID: a.ID, RunnerName: "Ann Peeters", OldBest: "1:20.00", NewBest: "1:15.00"}, pr)

	var avg struct {
		AverageTime *string `json:"averageTime"`
		Laps        int     `json:"laps"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/statistics/average-lap-time", nil, &avg))
	require.NotNil(t, avg.AverageTime)
	assert.Equal(t, 3, avg.Laps)
	assert.Equal(t, "1:21.66", *avg.AverageTime)

	var stats StatisticsResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/statistics", nil, &stats))
	assert.Nil(t, stats.CurrentLap)
	require.Len(t, stats.FastestLaps, 2)
	assert.Equal(t, "1:15.00", stats.FastestLaps[0].BestLap)
}

func TestWebSocketStream(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.PingInterval = 20 * time.Millisecond })

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var e realtime.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, realtime.EventPing, e.Name)

	require.Eventually(t, func() bool { return ts.broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	pr, err := realtime.NewEvent(realtime.EventPR, realtime.PREvent{RunnerID: 7, RunnerName: "Ann Peeters", OldBest: "1:20.00", NewBest: "1:15.00"})
	require.NoError(t, err)
	ts.broker.Publish(pr)

	for {
		require.NoError(t, conn.ReadJSON(&e))
		if e.Name == realtime.EventPR {
			break
		}
	}
	assert.JSONEq(t, string(pr.Data), string(e.Data))

	conn.Close()
	require.Eventually(t, func() bool { return ts.broker.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRemoveFromQueueReportsRunner(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.createRunner(t, "Ann", "Peeters")
	var enqueued struct {
		QueueEntry QueueEntryResponse `json:"queueEntry"`
	}
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/queue", map[string]any{"runnerId": ann.ID}, &enqueued))

	var removed struct {
		RemovedRunner RunnerResponse `json:"removedRunner"`
	}
	path := "/queue/" + strconv.FormatInt(enqueued.QueueEntry.ID, 10)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, path, nil, &removed))
	assert.Equal(t, ann.ID, removed.RemovedRunner.ID)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, path, nil, nil))
}
