package main

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// writeMu serialises every mutation. SQLite allows a single writer anyway;
// holding the lock across read-check-write keeps each mutation atomic.
var writeMu sync.Mutex

// clock is the engine's time source. Tests may replace it.
var clock = time.Now

func nowMillis() int64 {
	return clock().UnixMilli()
}

// mutation is one transaction plus the effects to run once it has committed.
type mutation struct {
	tx    *sqlx.Tx
	after []func()
}

// afterCommit queues fn to run after the transaction commits and the write
// lock is released. Nothing queued runs if the mutation fails.
func (m *mutation) afterCommit(fn func()) {
	m.after = append(m.after, fn)
}

// broadcast pushes fresh views to every client of the game after commit.
func (m *mutation) broadcast(gameID string) {
	m.afterCommit(func() { broadcastGameUpdate(gameID) })
}

// schedule persists a phase-end task with this transaction and arms it after commit.
func (m *mutation) schedule(gameID string, expectedTurn int, expectedPhase Phase, runAt int64) error {
	task := ScheduledTask{
		ID:            newID(),
		GameID:        gameID,
		ExpectedTurn:  expectedTurn,
		ExpectedPhase: expectedPhase,
		RunAt:         runAt,
	}
	if err := insertScheduledTask(m.tx, task); err != nil {
		return fmt.Errorf("schedule %s turn %d: %w", expectedPhase, expectedTurn, err)
	}
	m.afterCommit(func() { scheduler.Schedule(task) })
	return nil
}

// postMessage appends a chat message authored by the engine.
func (m *mutation) postMessage(gameID string, channel Channel, sender, content string) error {
	return insertChatMessage(m.tx, ChatMessage{
		ID:         newID(),
		GameID:     gameID,
		SenderName: sender,
		Content:    content,
		Channel:    channel,
		Timestamp:  nowMillis(),
	})
}

func (m *mutation) postSystem(gameID string, content string) error {
	return m.postMessage(gameID, ChannelGlobal, systemSenderName, content)
}

// runMutation executes fn inside a single transaction under the write lock.
// Either everything fn wrote commits, or nothing does.
func runMutation(context string, fn func(m *mutation) error) error {
	writeMu.Lock()
	m, err := commitMutation(fn)
	writeMu.Unlock()
	if err != nil {
		switch {
		case isConfigError(err):
			logConfigError(context, err)
		case statusForError(err) == http.StatusInternalServerError:
			logError(context, err)
		}
		return err
	}

	for _, effect := range m.after {
		effect()
	}
	return nil
}

func commitMutation(fn func(m *mutation) error) (*mutation, error) {
	tx, err := db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	m := &mutation{tx: tx}
	if err := fn(m); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}
