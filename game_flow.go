package main

import (
	"errors"
	"fmt"
	"log"
	"time"
)

const (
	endReasonVictory   = "victory"
	endReasonRoundCap  = "round_cap"
	endReasonAbandoned = "abandoned"
)

// GameTiming holds the phase clock.
type GameTiming struct {
	Night     time.Duration
	Day       time.Duration
	Voting    time.Duration
	Revenge   time.Duration
	MaxRounds int
}

func defaultTiming() GameTiming {
	return GameTiming{
		Night:     30 * time.Second,
		Day:       60 * time.Second,
		Voting:    15 * time.Second,
		Revenge:   15 * time.Second,
		MaxRounds: 10,
	}
}

var timing = defaultTiming()

func (t GameTiming) duration(phase Phase) time.Duration {
	switch phase {
	case PhaseNight:
		return t.Night
	case PhaseDay:
		return t.Day
	case PhaseVoting:
		return t.Voting
	case PhaseHunterRevenge:
		return t.Revenge
	}
	return 0
}

// transitionPhase ends the phase the game is in, provided it is still the
// (turn, phase) the caller expects. Any other state means the call is stale
// and nothing happens.
func transitionPhase(gameID string, expectedTurn int, expectedPhase Phase) error {
	return runMutation("transitionPhase", func(m *mutation) error {
		return applyTransition(m, gameID, expectedTurn, expectedPhase)
	})
}

func applyTransition(m *mutation, gameID string, expectedTurn int, expectedPhase Phase) error {
	game, err := getGame(m.tx, gameID)
	if errors.Is(err, ErrGameNotFound) {
		DebugLog("transitionPhase", "Game %s no longer exists", gameID)
		return nil
	}
	if err != nil {
		return err
	}
	if game.Status != StatusActive || game.TurnNumber != expectedTurn || game.Phase != expectedPhase {
		DebugLog("transitionPhase", "Stale call for game %s: expected turn %d %s, game is %s turn %d %s",
			gameID, expectedTurn, expectedPhase, game.Status, game.TurnNumber, game.Phase)
		m.afterCommit(func() { staleTransitions.Inc() })
		return nil
	}

	players, err := getPlayersByGameID(m.tx, game.ID)
	if err != nil {
		return err
	}
	actions, err := getActionsForTurn(m.tx, game.ID, game.TurnNumber)
	if err != nil {
		return err
	}

	log.Printf("Game %s: turn %d %s ended (%d actions)", game.ID, game.TurnNumber, game.Phase, len(actions))
	m.afterCommit(func() { phaseTransitions.WithLabelValues(string(expectedPhase)).Inc() })
	m.afterCommit(func() { LogDBState("after " + string(expectedPhase) + " resolution") })

	switch game.Phase {
	case PhaseNight:
		return endNight(m, &game, players, actions)
	case PhaseDay:
		return enterPhase(m, &game, PhaseVoting)
	case PhaseVoting:
		return endVoting(m, &game, players, actions)
	case PhaseHunterRevenge:
		return endRevenge(m, &game, players, actions)
	}
	return fmt.Errorf("game %s is in unknown phase %q", game.ID, game.Phase)
}

func endNight(m *mutation, game *Game, players []Player, actions []Action) error {
	out := resolveNight(players, actions)
	if err := applyResolution(m, game, players, out.Players, out.Announcements); err != nil {
		return err
	}
	if out.Killed != "" {
		m.afterCommit(storyFor(*game, nameOf(out.Players, out.Killed), "killed by the wolves during the night"))
	}
	if winner := evaluateWin(out.Players); winner != "" {
		return endGame(m, game, winner, endReasonVictory)
	}
	if out.Hunter != "" {
		return enterRevenge(m, game, out.Players, out.Hunter, PhaseDay)
	}
	return enterPhase(m, game, PhaseDay)
}

func endVoting(m *mutation, game *Game, players []Player, actions []Action) error {
	out := resolveVoting(players, actions)
	if err := applyResolution(m, game, players, out.Players, out.Announcements); err != nil {
		return err
	}
	if out.Eliminated != "" {
		m.afterCommit(storyFor(*game, nameOf(out.Players, out.Eliminated), "eliminated by the village vote"))
	}
	if winner := evaluateWin(out.Players); winner != "" {
		return endGame(m, game, winner, endReasonVictory)
	}
	if out.Hunter != "" {
		return enterRevenge(m, game, out.Players, out.Hunter, PhaseNight)
	}
	return advanceToNight(m, game, out.Players)
}

func endRevenge(m *mutation, game *Game, players []Player, actions []Action) error {
	out := resolveRevenge(players, actions, game.PendingHunterID)
	if err := applyResolution(m, game, players, out.Players, out.Announcements); err != nil {
		return err
	}
	if out.Killed != "" {
		m.afterCommit(storyFor(*game, nameOf(out.Players, out.Killed), "shot by the dying hunter"))
	}

	resume := game.ResumePhase
	game.ResumePhase = ""
	game.PendingHunterID = ""
	if winner := evaluateWin(out.Players); winner != "" {
		return endGame(m, game, winner, endReasonVictory)
	}
	if resume == PhaseNight {
		return advanceToNight(m, game, out.Players)
	}
	return enterPhase(m, game, PhaseDay)
}

// applyResolution writes changed players and posts the announcements.
func applyResolution(m *mutation, game *Game, before, after []Player, announcements []Announcement) error {
	for _, p := range newRoster(after).changed(before) {
		if err := updatePlayer(m.tx, p); err != nil {
			return fmt.Errorf("update player %s: %w", p.Name, err)
		}
	}
	for _, a := range announcements {
		if err := m.postMessage(game.ID, a.Channel, systemSenderName, a.Content); err != nil {
			return err
		}
	}
	return nil
}

// advanceToNight starts the next turn, or ends the game once the round cap is reached.
func advanceToNight(m *mutation, game *Game, players []Player) error {
	if game.TurnNumber >= timing.MaxRounds {
		if err := m.postSystem(game.ID, fmt.Sprintf("%d rounds have passed. The hunt is over.", game.TurnNumber)); err != nil {
			return err
		}
		return endGame(m, game, roundCapWinner(players), endReasonRoundCap)
	}
	if err := clearMutes(m, game.ID); err != nil {
		return err
	}
	game.TurnNumber++
	log.Printf("Game %s: turn %d ended, night %d begins", game.ID, game.TurnNumber-1, game.TurnNumber)
	return enterPhase(m, game, PhaseNight)
}

func clearMutes(m *mutation, gameID string) error {
	_, err := m.tx.Exec(`UPDATE player SET is_muted = 0 WHERE game_id = ?`, gameID)
	return err
}

// enterPhase moves the game into phase, stamps its end time and arms the
// one timer that will end it.
func enterPhase(m *mutation, game *Game, phase Phase) error {
	end := clock().Add(timing.duration(phase)).UnixMilli()
	game.Phase = phase
	game.PhaseEndTime = &end
	if err := updateGame(m.tx, *game); err != nil {
		return fmt.Errorf("enter %s: %w", phase, err)
	}
	if err := m.schedule(game.ID, game.TurnNumber, phase, end); err != nil {
		return err
	}
	DebugLog("enterPhase", "Game %s entered turn %d %s", game.ID, game.TurnNumber, phase)
	m.broadcast(game.ID)
	return nil
}

// enterRevenge gives a freshly killed hunter one last shot before the game
// continues with resume.
func enterRevenge(m *mutation, game *Game, players []Player, hunterID string, resume Phase) error {
	game.PendingHunterID = hunterID
	game.ResumePhase = resume
	name := nameOf(players, hunterID)
	if err := m.postSystem(game.ID, fmt.Sprintf("%s was the hunter and may take one last shot.", name)); err != nil {
		return err
	}
	log.Printf("Game %s: hunter '%s' is taking aim", game.ID, name)
	return enterPhase(m, game, PhaseHunterRevenge)
}

// endGame marks the game as ended with a winner
func endGame(m *mutation, game *Game, winner Team, reason string) error {
	game.Status = StatusEnded
	game.WinningTeam = winner
	game.EndReason = reason
	game.PhaseEndTime = nil
	game.ResumePhase = ""
	game.PendingHunterID = ""
	if err := updateGame(m.tx, *game); err != nil {
		return fmt.Errorf("end game: %w", err)
	}
	if winner != "" {
		if err := m.postSystem(game.ID, winnerAnnouncement(winner)); err != nil {
			return err
		}
	}

	log.Printf("Game %s finished, winner: %q (%s)", game.ID, winner, reason)
	m.afterCommit(func() { gamesEnded.WithLabelValues(string(winner), reason).Inc() })
	m.broadcast(game.ID)
	return nil
}

func winnerAnnouncement(winner Team) string {
	if winner == TeamGood {
		return "The village wins! Every wolf has been found."
	}
	return "The wolves win! The village has fallen."
}

func nameOf(players []Player, id string) string {
	for _, p := range players {
		if p.ID == id {
			return p.Name
		}
	}
	return "Someone"
}
