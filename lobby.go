package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
)

const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 4
	roomCodeAttempts = 32
	maxNameLength    = 24
)

type CreatedGame struct {
	GameID   string `json:"gameId"`
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type JoinedGame struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func generateRoomCode() string {
	var b strings.Builder
	for i := 0; i < roomCodeLength; i++ {
		b.WriteByte(roomCodeAlphabet[randIntn(len(roomCodeAlphabet))])
	}
	return b.String()
}

// allocateRoomCode draws codes until one is not held by any open game.
func allocateRoomCode(q sqlx.Queryer) (string, error) {
	for i := 0; i < roomCodeAttempts; i++ {
		code := generateRoomCode()
		_, err := getOpenGameByRoomCode(q, code)
		if errors.Is(err, ErrRoomNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
		DebugLog("allocateRoomCode", "Room code %s is taken, retrying", code)
	}
	return "", ErrRoomCodesExhausted
}

// createGame opens a lobby with the caller as host and first player.
func createGame(hostUserID, hostName string) (CreatedGame, error) {
	name, err := cleanName(hostName)
	if err != nil {
		return CreatedGame{}, err
	}

	var created CreatedGame
	err = runMutation("createGame", func(m *mutation) error {
		code, err := allocateRoomCode(m.tx)
		if err != nil {
			return err
		}
		now := nowMillis()
		game := Game{
			ID:        newID(),
			RoomCode:  code,
			Status:    StatusLobby,
			HostID:    hostUserID,
			Mode:      "classic",
			CreatedAt: now,
		}
		if err := insertGame(m.tx, game); err != nil {
			return fmt.Errorf("insert game: %w", err)
		}
		host := Player{
			ID:       newID(),
			GameID:   game.ID,
			UserID:   hostUserID,
			Name:     name,
			IsAlive:  true,
			IsHost:   true,
			JoinedAt: now,
		}
		if err := insertPlayer(m.tx, host); err != nil {
			return fmt.Errorf("insert host: %w", err)
		}
		if err := m.postSystem(game.ID, fmt.Sprintf("%s opened the room. Share the code %s.", name, code)); err != nil {
			return err
		}
		created = CreatedGame{GameID: game.ID, RoomCode: code, PlayerID: host.ID}
		return nil
	})
	if err != nil {
		return CreatedGame{}, err
	}
	log.Printf("Game %s created by '%s' with room code %s", created.GameID, name, created.RoomCode)
	return created, nil
}

// joinGame adds the caller to the lobby behind roomCode. Joining again
// returns the existing seat.
func joinGame(roomCode, userID, name string) (JoinedGame, error) {
	name, err := cleanName(name)
	if err != nil {
		return JoinedGame{}, err
	}
	code := strings.ToUpper(strings.TrimSpace(roomCode))

	var joined JoinedGame
	err = runMutation("joinGame", func(m *mutation) error {
		game, err := getOpenGameByRoomCode(m.tx, code)
		if err != nil {
			return err
		}
		existing, err := getPlayerByUser(m.tx, game.ID, userID)
		if err == nil {
			joined = JoinedGame{GameID: game.ID, PlayerID: existing.ID}
			return nil
		}
		if !errors.Is(err, ErrPlayerNotFound) {
			return err
		}

		if game.Status != StatusLobby {
			return ErrGameNotInLobby
		}
		players, err := getPlayersByGameID(m.tx, game.ID)
		if err != nil {
			return err
		}
		if len(players) >= maxPlayers {
			return ErrGameFull
		}

		player := Player{
			ID:       newID(),
			GameID:   game.ID,
			UserID:   userID,
			Name:     name,
			IsAlive:  true,
			JoinedAt: nowMillis(),
		}
		if err := insertPlayer(m.tx, player); err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		if err := m.postSystem(game.ID, fmt.Sprintf("%s joined the village.", name)); err != nil {
			return err
		}
		DebugLog("joinGame", "Player '%s' joined game %s (%d/%d)", name, game.ID, len(players)+1, maxPlayers)
		joined = JoinedGame{GameID: game.ID, PlayerID: player.ID}
		m.broadcast(game.ID)
		return nil
	})
	return joined, err
}

// leaveGame removes the caller from a lobby. The host seat passes to the
// longest-waiting player; an empty lobby is abandoned.
func leaveGame(gameID, userID string) error {
	return runMutation("leaveGame", func(m *mutation) error {
		game, err := getGame(m.tx, gameID)
		if err != nil {
			return err
		}
		if game.Status != StatusLobby {
			return ErrGameNotInLobby
		}
		leaving, err := getPlayerByUser(m.tx, gameID, userID)
		if err != nil {
			return err
		}
		if _, err := m.tx.Exec(`DELETE FROM player WHERE id = ?`, leaving.ID); err != nil {
			return fmt.Errorf("delete player: %w", err)
		}
		if err := m.postSystem(gameID, fmt.Sprintf("%s left the village.", leaving.Name)); err != nil {
			return err
		}

		remaining, err := getPlayersByGameID(m.tx, gameID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			log.Printf("Game %s abandoned", gameID)
			return endGame(m, &game, "", endReasonAbandoned)
		}
		if leaving.IsHost {
			next := remaining[0]
			next.IsHost = true
			if err := updatePlayer(m.tx, next); err != nil {
				return err
			}
			game.HostID = next.UserID
			if err := updateGame(m.tx, game); err != nil {
				return err
			}
			if err := m.postSystem(gameID, fmt.Sprintf("%s is now the host.", next.Name)); err != nil {
				return err
			}
		}
		m.broadcast(gameID)
		return nil
	})
}

func setReady(gameID, userID string, ready bool) error {
	return runMutation("setReady", func(m *mutation) error {
		game, err := getGame(m.tx, gameID)
		if err != nil {
			return err
		}
		if game.Status != StatusLobby {
			return ErrGameNotInLobby
		}
		player, err := getPlayerByUser(m.tx, gameID, userID)
		if err != nil {
			return err
		}
		player.IsReady = ready
		if err := updatePlayer(m.tx, player); err != nil {
			return err
		}
		m.broadcast(gameID)
		return nil
	})
}

// startGame deals the roles and opens night 1. Only the host may start,
// only from the lobby, and only with a supported number of players.
func startGame(gameID, requesterUserID string) error {
	return runMutation("startGame", func(m *mutation) error {
		game, err := getGame(m.tx, gameID)
		if err != nil {
			return err
		}
		if game.Status != StatusLobby {
			return ErrGameNotInLobby
		}
		if game.HostID != requesterUserID {
			return ErrNotHost
		}
		players, err := getPlayersByGameID(m.tx, gameID)
		if err != nil {
			return err
		}
		if len(players) < minPlayers || len(players) > maxPlayers {
			return ErrPlayerCount
		}
		if err := assignRoles(players); err != nil {
			return fmt.Errorf("start game %s: %w", gameID, err)
		}
		for _, p := range players {
			p.IsAlive = true
			p.IsMuted = false
			p.WasConverted = false
			p.ConvertedAtTurn = nil
			if err := updatePlayer(m.tx, p); err != nil {
				return fmt.Errorf("deal role to %s: %w", p.Name, err)
			}
		}

		now := nowMillis()
		game.Status = StatusActive
		game.TurnNumber = 1
		game.StartCountdownAt = &now
		game.WinningTeam = ""
		game.EndReason = ""
		if err := m.postSystem(gameID, "The game has begun. Night falls on the village."); err != nil {
			return err
		}
		if err := enterPhase(m, &game, PhaseNight); err != nil {
			return err
		}

		log.Printf("Game %s started with %d players", gameID, len(players))
		m.afterCommit(func() { gamesStarted.Inc() })
		m.afterCommit(func() { LogDBState("after game start") })
		return nil
	})
}

// resetGame brings an ended game back to its lobby with the same players.
func resetGame(gameID, requesterUserID string) error {
	return runMutation("resetGame", func(m *mutation) error {
		game, err := getGame(m.tx, gameID)
		if err != nil {
			return err
		}
		if game.HostID != requesterUserID {
			return ErrNotHost
		}
		if game.Status != StatusEnded {
			return ErrGameNotEnded
		}

		if other, err := getOpenGameByRoomCode(m.tx, game.RoomCode); err == nil && other.ID != game.ID {
			code, err := allocateRoomCode(m.tx)
			if err != nil {
				return err
			}
			game.RoomCode = code
		} else if err != nil && !errors.Is(err, ErrRoomNotFound) {
			return err
		}

		if _, err := m.tx.Exec(`UPDATE player SET role = '', team = '', is_alive = 1, role_data = '{}',
				was_converted = 0, converted_at_turn = NULL, is_ready = 0, is_muted = 0
			WHERE game_id = ?`, gameID); err != nil {
			return fmt.Errorf("reset players: %w", err)
		}
		if _, err := m.tx.Exec(`DELETE FROM game_action WHERE game_id = ?`, gameID); err != nil {
			return fmt.Errorf("clear actions: %w", err)
		}
		if err := deleteScheduledTasks(m.tx, gameID); err != nil {
			return fmt.Errorf("clear timers: %w", err)
		}

		game.Status = StatusLobby
		game.TurnNumber = 0
		game.Phase = ""
		game.PhaseEndTime = nil
		game.WinningTeam = ""
		game.EndReason = ""
		game.StartCountdownAt = nil
		game.ResumePhase = ""
		game.PendingHunterID = ""
		if err := updateGame(m.tx, game); err != nil {
			return err
		}
		if err := m.postSystem(gameID, fmt.Sprintf("The host reset the game. Room code: %s", game.RoomCode)); err != nil {
			return err
		}

		log.Printf("Game %s reset to lobby", gameID)
		m.broadcast(gameID)
		return nil
	})
}
