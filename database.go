package main

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type GameStatus string

const (
	StatusLobby  GameStatus = "lobby"
	StatusActive GameStatus = "active"
	StatusEnded  GameStatus = "ended"
)

type Phase string

const (
	PhaseNight         Phase = "night"
	PhaseDay           Phase = "day"
	PhaseVoting        Phase = "voting"
	PhaseHunterRevenge Phase = "hunter_revenge"
)

type Game struct {
	ID               string     `db:"id" json:"id"`
	RoomCode         string     `db:"room_code" json:"roomCode"`
	Status           GameStatus `db:"status" json:"status"`
	HostID           string     `db:"host_id" json:"hostId"`
	TurnNumber       int        `db:"turn_number" json:"turnNumber"`
	Phase            Phase      `db:"phase" json:"phase,omitempty"`
	PhaseEndTime     *int64     `db:"phase_end_time" json:"phaseEndTime,omitempty"`
	WinningTeam      Team       `db:"winning_team" json:"winningTeam,omitempty"`
	EndReason        string     `db:"end_reason" json:"endReason,omitempty"`
	StartCountdownAt *int64     `db:"start_countdown_at" json:"startCountdownAt,omitempty"`
	Mode             string     `db:"mode" json:"mode,omitempty"`
	ResumePhase      Phase      `db:"resume_phase" json:"-"`
	PendingHunterID  string     `db:"pending_hunter_id" json:"pendingHunterId,omitempty"`
	CreatedAt        int64      `db:"created_at" json:"createdAt"`
}

// RoleData holds the role-specific counters. Stored as JSON.
type RoleData struct {
	Bullets         int    `json:"bullets,omitempty"`
	LastProtectedID string `json:"lastProtectedId,omitempty"`
	HasBitten       bool   `json:"hasBitten,omitempty"`
	IsRevealed      bool   `json:"isRevealed,omitempty"`
	HealUsed        bool   `json:"healUsed,omitempty"`
	PoisonUsed      bool   `json:"poisonUsed,omitempty"`
}

func (d RoleData) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *RoleData) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = RoleData{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("role_data: unexpected type %T", src)
	}
	if len(raw) == 0 {
		*d = RoleData{}
		return nil
	}
	return json.Unmarshal(raw, d)
}

type Player struct {
	ID              string   `db:"id" json:"id"`
	GameID          string   `db:"game_id" json:"gameId"`
	UserID          string   `db:"user_id" json:"userId"`
	Name            string   `db:"name" json:"name"`
	Role            Role     `db:"role" json:"role,omitempty"`
	Team            Team     `db:"team" json:"team,omitempty"`
	IsAlive         bool     `db:"is_alive" json:"isAlive"`
	IsHost          bool     `db:"is_host" json:"isHost"`
	RoleData        RoleData `db:"role_data" json:"roleData"`
	WasConverted    bool     `db:"was_converted" json:"wasConverted,omitempty"`
	ConvertedAtTurn *int     `db:"converted_at_turn" json:"convertedAtTurn,omitempty"`
	IsReady         bool     `db:"is_ready" json:"isReady"`
	IsMuted         bool     `db:"is_muted" json:"isMuted"`
	JoinedAt        int64    `db:"joined_at" json:"joinedAt"`
}

type ActionType string

const (
	ActionVote        ActionType = "vote"
	ActionKill        ActionType = "kill"
	ActionSave        ActionType = "save"
	ActionScan        ActionType = "scan"
	ActionShoot       ActionType = "shoot"
	ActionInvestigate ActionType = "investigate"
	ActionConvert     ActionType = "convert"
	ActionMute        ActionType = "mute"
	ActionRevenge     ActionType = "revenge"
	ActionSkipMute    ActionType = "skipMute"
	ActionAbsorb      ActionType = "absorb"
	ActionHeal        ActionType = "heal"
	ActionPoison      ActionType = "poison"
)

type Action struct {
	ID         string     `db:"id" json:"id"`
	GameID     string     `db:"game_id" json:"gameId"`
	TurnNumber int        `db:"turn_number" json:"turnNumber"`
	Phase      Phase      `db:"phase" json:"phase"`
	Type       ActionType `db:"type" json:"type"`
	ActorID    string     `db:"actor_id" json:"actorId"`
	TargetID   string     `db:"target_id" json:"targetId"`
	TargetID2  string     `db:"target_id2" json:"targetId2,omitempty"`
	CreatedAt  int64      `db:"created_at" json:"createdAt"`
}

type Channel string

const (
	ChannelGlobal Channel = "global"
	ChannelWolves Channel = "wolves"
	ChannelDead   Channel = "dead"
)

const (
	systemSenderName      = "System"
	storytellerSenderName = "Storyteller"
)

type ChatMessage struct {
	ID         string  `db:"id" json:"id"`
	GameID     string  `db:"game_id" json:"gameId"`
	SenderID   string  `db:"sender_id" json:"senderId"`
	SenderName string  `db:"sender_name" json:"senderName"`
	Content    string  `db:"content" json:"content"`
	Channel    Channel `db:"channel" json:"channel"`
	Timestamp  int64   `db:"timestamp" json:"timestamp"`
}

const gameColumns = `id, room_code, status, host_id, turn_number, phase, phase_end_time,
	winning_team, end_reason, start_countdown_at, mode, resume_phase, pending_hunter_id, created_at`

const playerColumns = `id, game_id, user_id, name, role, team, is_alive, is_host, role_data,
	was_converted, converted_at_turn, is_ready, is_muted, joined_at`

const actionColumns = `id, game_id, turn_number, phase, type, actor_id, target_id, target_id2, created_at`

func newID() string {
	return uuid.NewString()
}

func getGame(q sqlx.Queryer, gameID string) (Game, error) {
	var game Game
	err := sqlx.Get(q, &game, `SELECT `+gameColumns+` FROM game WHERE id = ?`, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return game, ErrGameNotFound
	}
	return game, err
}

// getOpenGameByRoomCode finds the game holding a room code. Ended games release their code.
func getOpenGameByRoomCode(q sqlx.Queryer, roomCode string) (Game, error) {
	var game Game
	err := sqlx.Get(q, &game, `SELECT `+gameColumns+` FROM game
		WHERE room_code = ? AND status != ? ORDER BY created_at DESC LIMIT 1`, roomCode, StatusEnded)
	if errors.Is(err, sql.ErrNoRows) {
		return game, ErrRoomNotFound
	}
	return game, err
}

func insertGame(q sqlx.Execer, g Game) error {
	_, err := q.Exec(`INSERT INTO game (`+gameColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.RoomCode, g.Status, g.HostID, g.TurnNumber, g.Phase, g.PhaseEndTime,
		g.WinningTeam, g.EndReason, g.StartCountdownAt, g.Mode, g.ResumePhase, g.PendingHunterID, g.CreatedAt)
	return err
}

func updateGame(q sqlx.Execer, g Game) error {
	_, err := q.Exec(`UPDATE game SET room_code = ?, status = ?, host_id = ?, turn_number = ?, phase = ?,
			phase_end_time = ?, winning_team = ?, end_reason = ?, start_countdown_at = ?,
			mode = ?, resume_phase = ?, pending_hunter_id = ?
		WHERE id = ?`,
		g.RoomCode, g.Status, g.HostID, g.TurnNumber, g.Phase, g.PhaseEndTime, g.WinningTeam, g.EndReason,
		g.StartCountdownAt, g.Mode, g.ResumePhase, g.PendingHunterID, g.ID)
	return err
}

func getPlayersByGameID(q sqlx.Queryer, gameID string) ([]Player, error) {
	var players []Player
	err := sqlx.Select(q, &players, `SELECT `+playerColumns+` FROM player
		WHERE game_id = ? ORDER BY joined_at, rowid`, gameID)
	return players, err
}

func getPlayerInGame(q sqlx.Queryer, gameID, playerID string) (Player, error) {
	var player Player
	err := sqlx.Get(q, &player, `SELECT `+playerColumns+` FROM player
		WHERE game_id = ? AND id = ?`, gameID, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return player, ErrPlayerNotFound
	}
	return player, err
}

func getPlayerByUser(q sqlx.Queryer, gameID, userID string) (Player, error) {
	var player Player
	err := sqlx.Get(q, &player, `SELECT `+playerColumns+` FROM player
		WHERE game_id = ? AND user_id = ?`, gameID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return player, ErrPlayerNotFound
	}
	return player, err
}

func insertPlayer(q sqlx.Execer, p Player) error {
	_, err := q.Exec(`INSERT INTO player (`+playerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GameID, p.UserID, p.Name, p.Role, p.Team, p.IsAlive, p.IsHost, p.RoleData,
		p.WasConverted, p.ConvertedAtTurn, p.IsReady, p.IsMuted, p.JoinedAt)
	return err
}

func updatePlayer(q sqlx.Execer, p Player) error {
	_, err := q.Exec(`UPDATE player SET name = ?, role = ?, team = ?, is_alive = ?, is_host = ?,
			role_data = ?, was_converted = ?, converted_at_turn = ?, is_ready = ?, is_muted = ?
		WHERE id = ?`,
		p.Name, p.Role, p.Team, p.IsAlive, p.IsHost, p.RoleData, p.WasConverted,
		p.ConvertedAtTurn, p.IsReady, p.IsMuted, p.ID)
	return err
}

func getActionsForTurn(q sqlx.Queryer, gameID string, turn int) ([]Action, error) {
	var actions []Action
	err := sqlx.Select(q, &actions, `SELECT `+actionColumns+` FROM game_action
		WHERE game_id = ? AND turn_number = ? ORDER BY rowid`, gameID, turn)
	return actions, err
}

// findAction returns the effective action for (actor, turn, type), if any.
func findAction(q sqlx.Queryer, gameID string, turn int, actorID string, actionType ActionType) (Action, bool, error) {
	var action Action
	err := sqlx.Get(q, &action, `SELECT `+actionColumns+` FROM game_action
		WHERE game_id = ? AND turn_number = ? AND actor_id = ? AND type = ?`,
		gameID, turn, actorID, actionType)
	if errors.Is(err, sql.ErrNoRows) {
		return action, false, nil
	}
	if err != nil {
		return action, false, err
	}
	return action, true, nil
}

// upsertAction patches the target of an existing (actor, turn, type) action in
// place, or inserts a new one. Returns the effective action id.
func upsertAction(q sqlx.Ext, a Action) (string, error) {
	existing, found, err := findAction(q, a.GameID, a.TurnNumber, a.ActorID, a.Type)
	if err != nil {
		return "", err
	}
	if found {
		_, err = q.Exec(`UPDATE game_action SET target_id = ?, target_id2 = ?, phase = ? WHERE id = ?`,
			a.TargetID, a.TargetID2, a.Phase, existing.ID)
		return existing.ID, err
	}
	if a.ID == "" {
		a.ID = newID()
	}
	_, err = q.Exec(`INSERT INTO game_action (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.GameID, a.TurnNumber, a.Phase, a.Type, a.ActorID, a.TargetID, a.TargetID2, a.CreatedAt)
	return a.ID, err
}

func deleteAction(q sqlx.Execer, actionID string) error {
	_, err := q.Exec(`DELETE FROM game_action WHERE id = ?`, actionID)
	return err
}

func insertChatMessage(q sqlx.Execer, m ChatMessage) error {
	_, err := q.Exec(`INSERT INTO chat_message (id, game_id, sender_id, sender_name, content, channel, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.GameID, m.SenderID, m.SenderName, m.Content, m.Channel, m.Timestamp)
	return err
}

func getChatMessages(q sqlx.Queryer, gameID string) ([]ChatMessage, error) {
	var messages []ChatMessage
	err := sqlx.Select(q, &messages, `SELECT id, game_id, sender_id, sender_name, content, channel, timestamp
		FROM chat_message WHERE game_id = ? ORDER BY timestamp, rowid`, gameID)
	return messages, err
}

func initDB() error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS game (
		id TEXT PRIMARY KEY,
		room_code TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'lobby',
		host_id TEXT NOT NULL,
		turn_number INTEGER NOT NULL DEFAULT 0,
		phase TEXT NOT NULL DEFAULT '',
		phase_end_time INTEGER,
		winning_team TEXT NOT NULL DEFAULT '',
		end_reason TEXT NOT NULL DEFAULT '',
		start_countdown_at INTEGER,
		mode TEXT NOT NULL DEFAULT 'classic',
		resume_phase TEXT NOT NULL DEFAULT '',
		pending_hunter_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_game_room_code ON game(room_code, status);

	CREATE TABLE IF NOT EXISTS player (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		team TEXT NOT NULL DEFAULT '',
		is_alive INTEGER NOT NULL DEFAULT 1,
		is_host INTEGER NOT NULL DEFAULT 0,
		role_data TEXT NOT NULL DEFAULT '{}',
		was_converted INTEGER NOT NULL DEFAULT 0,
		converted_at_turn INTEGER,
		is_ready INTEGER NOT NULL DEFAULT 0,
		is_muted INTEGER NOT NULL DEFAULT 0,
		joined_at INTEGER NOT NULL,
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS game_action (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		turn_number INTEGER NOT NULL,
		phase TEXT NOT NULL,
		type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		target_id2 TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, turn_number, actor_id, type)
	);
	CREATE INDEX IF NOT EXISTS idx_game_action_turn ON game_action(game_id, turn_number);

	CREATE TABLE IF NOT EXISTS chat_message (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		sender_id TEXT NOT NULL DEFAULT '',
		sender_name TEXT NOT NULL,
		content TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT 'global',
		timestamp INTEGER NOT NULL,
		FOREIGN KEY (game_id) REFERENCES game(id)
	);
	CREATE INDEX IF NOT EXISTS idx_chat_game ON chat_message(game_id, timestamp);

	CREATE TABLE IF NOT EXISTS scheduled_task (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		expected_turn INTEGER NOT NULL,
		expected_phase TEXT NOT NULL,
		run_at INTEGER NOT NULL,
		done INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_scheduled_task_pending ON scheduled_task(done, run_at);

	CREATE TABLE IF NOT EXISTS session (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	if err != nil {
		log.Printf("initDB error: %v", err)
		return err
	}
	log.Printf("Database initialized successfully")
	return nil
}
