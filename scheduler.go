package main

import (
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// ScheduledTask is a fire-once phase-end callback. It carries the
// (turn, phase) the game was in when it was armed; firing it against any
// other state is a no-op.
type ScheduledTask struct {
	ID            string `db:"id"`
	GameID        string `db:"game_id"`
	ExpectedTurn  int    `db:"expected_turn"`
	ExpectedPhase Phase  `db:"expected_phase"`
	RunAt         int64  `db:"run_at"`
	Done          bool   `db:"done"`
}

// Scheduler arms tasks that have already been persisted.
// There is no cancellation; stale tasks are made harmless by the state guard.
type Scheduler interface {
	Schedule(task ScheduledTask)
	Stop()
}

var scheduler Scheduler

func init() {
	scheduler = newTimerScheduler(runScheduledTask)
}

type timerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	fire    func(ScheduledTask)
	stopped bool
}

func newTimerScheduler(fire func(ScheduledTask)) *timerScheduler {
	return &timerScheduler{
		timers: make(map[string]*time.Timer),
		fire:   fire,
	}
}

func (s *timerScheduler) Schedule(task ScheduledTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	delay := time.Duration(task.RunAt-nowMillis()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	s.timers[task.ID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, task.ID)
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		s.fire(task)
	})
	DebugLog("scheduler", "Armed %s end for game %s turn %d in %s", task.ExpectedPhase, task.GameID, task.ExpectedTurn, delay)
}

// Stop disarms every pending timer. Tasks stay undone in the database and
// are re-armed by recoverScheduledTasks on the next start.
func (s *timerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *timerScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// runScheduledTask is the timer body: mark the task done and attempt the
// transition it was armed for, in one transaction.
func runScheduledTask(task ScheduledTask) {
	err := runMutation("runScheduledTask", func(m *mutation) error {
		if err := markTaskDone(m.tx, task.ID); err != nil {
			return err
		}
		return applyTransition(m, task.GameID, task.ExpectedTurn, task.ExpectedPhase)
	})
	if err != nil {
		log.Printf("Scheduled %s end for game %s turn %d failed: %v", task.ExpectedPhase, task.GameID, task.ExpectedTurn, err)
	}
}

// recoverScheduledTasks re-arms every task that never fired. Overdue tasks fire immediately.
func recoverScheduledTasks(s Scheduler) (int, error) {
	var tasks []ScheduledTask
	err := db.Select(&tasks, `SELECT id, game_id, expected_turn, expected_phase, run_at, done
		FROM scheduled_task WHERE done = 0 ORDER BY run_at`)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		s.Schedule(task)
	}
	if len(tasks) > 0 {
		log.Printf("Scheduler: re-armed %d pending phase timers", len(tasks))
	}
	return len(tasks), nil
}

func insertScheduledTask(q sqlx.Execer, task ScheduledTask) error {
	_, err := q.Exec(`INSERT INTO scheduled_task (id, game_id, expected_turn, expected_phase, run_at, done)
		VALUES (?, ?, ?, ?, ?, 0)`,
		task.ID, task.GameID, task.ExpectedTurn, task.ExpectedPhase, task.RunAt)
	return err
}

func markTaskDone(q sqlx.Execer, taskID string) error {
	_, err := q.Exec(`UPDATE scheduled_task SET done = 1 WHERE id = ?`, taskID)
	return err
}

func deleteScheduledTasks(q sqlx.Execer, gameID string) error {
	_, err := q.Exec(`DELETE FROM scheduled_task WHERE game_id = ?`, gameID)
	return err
}
