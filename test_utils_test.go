package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Logger
// ============================================================================

// TestLogger wraps AppLogger for test use with testing.T integration
type TestLogger struct {
	*AppLogger
}

// NewTestLogger creates a test logger from environment variables
func NewTestLogger(t *testing.T) *TestLogger {
	al := &AppLogger{
		outputDir: os.Getenv("TEST_OUTPUT_DIR"),
		logDB:     os.Getenv("TEST_LOG_DB") == "1",
		logWS:     os.Getenv("TEST_LOG_WS") == "1",
		debug:     os.Getenv("TEST_DEBUG") == "1",
	}
	if al.logDB {
		if path := os.Getenv("TEST_DB_LOG"); path != "" {
			if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
				al.dbLog = f
			}
		}
	}
	al.debugf = t.Logf
	return &TestLogger{AppLogger: al}
}

// ============================================================================
// Manual scheduler
// ============================================================================

// manualScheduler records armed tasks instead of starting timers, so tests
// decide when a phase ends.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []ScheduledTask
}

func (s *manualScheduler) Schedule(task ScheduledTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

func (s *manualScheduler) Stop() {}

func (s *manualScheduler) armed() []ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScheduledTask(nil), s.tasks...)
}

// latest returns the most recently armed task for the game.
func (s *manualScheduler) latest(t *testing.T, gameID string) ScheduledTask {
	t.Helper()
	tasks := s.armed()
	for i := len(tasks) - 1; i >= 0; i-- {
		if tasks[i].GameID == gameID {
			return tasks[i]
		}
	}
	t.Fatalf("no task armed for game %s", gameID)
	return ScheduledTask{}
}

// ============================================================================
// Mock storyteller
// ============================================================================

type mockStoryteller struct {
	mu      sync.Mutex
	story   string
	err     error
	history [][]string
}

func (m *mockStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, history)
	if onChunk != nil && m.story != "" {
		onChunk(m.story)
	}
	return m.story, m.err
}

func (m *mockStoryteller) calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.history...)
}

// ============================================================================
// Test environment
// ============================================================================

// testEnv is one isolated engine: its own in-memory database, a manual
// scheduler and a frozen clock.
type testEnv struct {
	t      *testing.T
	logger *TestLogger
	sched  *manualScheduler
	now    time.Time
}

var testStart = time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := NewTestLogger(t)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	conn, err := openDB(dsn)
	require.NoError(t, err)

	prevDB, prevSched, prevClock, prevTiming := db, scheduler, clock, timing
	prevLogger, prevTeller, prevRand := appLogger, globalStoryteller, randIntn

	env := &testEnv{t: t, logger: logger, sched: &manualScheduler{}, now: testStart}
	db = conn
	scheduler = env.sched
	clock = func() time.Time { return env.now }
	timing = defaultTiming()
	appLogger = logger.AppLogger
	globalStoryteller = nil

	require.NoError(t, initDB())
	logger.LogDB("after initDB")

	t.Cleanup(func() {
		storiesInFlight.Wait()
		conn.Close()
		db, scheduler, clock, timing = prevDB, prevSched, prevClock, prevTiming
		appLogger, globalStoryteller, randIntn = prevLogger, prevTeller, prevRand
	})
	return env
}

// seatPlayers opens a lobby hosted by the first name and seats the rest.
// It returns the game id and the user ids in seat order.
func (e *testEnv) seatPlayers(names ...string) (string, []string) {
	e.t.Helper()
	users := make([]string, len(names))
	for i := range names {
		users[i] = "user-" + names[i]
	}
	created, err := createGame(users[0], names[0])
	require.NoError(e.t, err)
	for i := 1; i < len(names); i++ {
		_, err := joinGame(created.RoomCode, users[i], names[i])
		require.NoError(e.t, err)
	}
	return created.GameID, users
}

// startWithRoles starts a game with one player per role, seated and dealt
// in the given order. Night 1 is open when it returns.
func (e *testEnv) startWithRoles(roles ...Role) (string, []Player) {
	e.t.Helper()
	names := make([]string, len(roles))
	for i := range roles {
		names[i] = fmt.Sprintf("P%d", i+1)
	}
	gameID, users := e.seatPlayers(names...)
	require.NoError(e.t, startGame(gameID, users[0]))

	players, err := getPlayersByGameID(db, gameID)
	require.NoError(e.t, err)
	require.Len(e.t, players, len(roles))
	for i := range players {
		players[i].Role = roles[i]
		players[i].Team = roles[i].Team()
		players[i].RoleData = roles[i].InitialData()
		require.NoError(e.t, updatePlayer(db, players[i]))
	}
	e.logger.Debug("Dealt %v in game %s", roles, gameID)
	return gameID, players
}

func (e *testEnv) game(gameID string) Game {
	e.t.Helper()
	g, err := getGame(db, gameID)
	require.NoError(e.t, err)
	return g
}

func (e *testEnv) player(gameID, playerID string) Player {
	e.t.Helper()
	p, err := getPlayerInGame(db, gameID, playerID)
	require.NoError(e.t, err)
	return p
}

// endPhase ends whatever phase the game is in, as its timer would.
func (e *testEnv) endPhase(gameID string) {
	e.t.Helper()
	g := e.game(gameID)
	require.NoError(e.t, transitionPhase(gameID, g.TurnNumber, g.Phase))
}

// act submits an action for a player and requires it to be accepted.
func (e *testEnv) act(gameID string, actor Player, actionType ActionType, target Player) {
	e.t.Helper()
	_, err := submitAction(gameID, actor.ID, target.ID, actionType)
	require.NoError(e.t, err, "%s %s -> %s", actor.Name, actionType, target.Name)
}

// systemLines returns the global chat written by the engine, in order.
func (e *testEnv) systemLines(gameID string) []string {
	e.t.Helper()
	msgs, err := getChatMessages(db, gameID)
	require.NoError(e.t, err)
	var lines []string
	for _, m := range msgs {
		if m.SenderName == systemSenderName && m.Channel == ChannelGlobal {
			lines = append(lines, m.Content)
		}
	}
	return lines
}

func (e *testEnv) channelLines(gameID string, channel Channel) []string {
	e.t.Helper()
	msgs, err := getChatMessages(db, gameID)
	require.NoError(e.t, err)
	var lines []string
	for _, m := range msgs {
		if m.Channel == channel {
			lines = append(lines, m.Content)
		}
	}
	return lines
}
