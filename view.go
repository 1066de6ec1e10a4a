package main

import (
	"errors"

	"github.com/jmoiron/sqlx"
)

// PlayerView is a player as one particular viewer is allowed to see them.
type PlayerView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsAlive      bool      `json:"isAlive"`
	IsHost       bool      `json:"isHost"`
	IsReady      bool      `json:"isReady"`
	IsMuted      bool      `json:"isMuted"`
	Role         Role      `json:"role,omitempty"`
	Team         Team      `json:"team,omitempty"`
	RoleData     *RoleData `json:"roleData,omitempty"`
	WasConverted bool      `json:"wasConverted,omitempty"`
}

// GameView is everything one client needs to draw the game.
type GameView struct {
	Game            Game             `json:"game"`
	Me              *PlayerView      `json:"me,omitempty"`
	Players         []PlayerView     `json:"players"`
	Chat            []ChatMessage    `json:"chat"`
	Voters          []string         `json:"voters"`
	SeerResult      *SeerResult      `json:"seerResult,omitempty"`
	DetectiveResult *DetectiveResult `json:"detectiveResult,omitempty"`
	ServerTime      int64            `json:"serverTime"`
}

// roleVisible reports whether viewer may see p's role: their own, everyone's
// once the game is over, fellow wolves, and a gunner who has fired.
func roleVisible(game Game, viewer *Player, p Player) bool {
	switch {
	case game.Status == StatusEnded:
		return true
	case p.RoleData.IsRevealed:
		return true
	case viewer == nil:
		return false
	case viewer.ID == p.ID:
		return true
	}
	return viewer.Team == TeamBad && p.Team == TeamBad
}

func viewPlayer(game Game, viewer *Player, p Player) PlayerView {
	v := PlayerView{
		ID:      p.ID,
		Name:    p.Name,
		IsAlive: p.IsAlive,
		IsHost:  p.IsHost,
		IsReady: p.IsReady,
		IsMuted: p.IsMuted,
	}
	if game.Status == StatusLobby || !roleVisible(game, viewer, p) {
		return v
	}
	v.Role = p.Role
	v.Team = p.Team
	v.WasConverted = p.WasConverted
	if viewer != nil && (viewer.ID == p.ID || game.Status == StatusEnded) {
		data := p.RoleData
		v.RoleData = &data
	}
	return v
}

// buildGameView assembles the view of gameID for userID. A user who is not
// seated in the game gets the spectator view.
func buildGameView(q sqlx.Queryer, gameID, userID string) (GameView, error) {
	game, err := getGame(q, gameID)
	if err != nil {
		return GameView{}, err
	}
	players, err := getPlayersByGameID(q, gameID)
	if err != nil {
		return GameView{}, err
	}

	var viewer *Player
	for i := range players {
		if players[i].UserID == userID {
			viewer = &players[i]
			break
		}
	}

	view := GameView{
		Game:       game,
		Players:    make([]PlayerView, 0, len(players)),
		ServerTime: nowMillis(),
	}
	for _, p := range players {
		pv := viewPlayer(game, viewer, p)
		if viewer != nil && p.ID == viewer.ID {
			me := pv
			view.Me = &me
		}
		view.Players = append(view.Players, pv)
	}

	messages, err := getChatMessages(q, gameID)
	if err != nil {
		return GameView{}, err
	}
	view.Chat = visibleChat(game, viewer, messages)

	view.Voters = []string{}
	if game.Status == StatusActive && game.Phase == PhaseVoting {
		if view.Voters, err = getVotersThisTurn(q, gameID); err != nil {
			return GameView{}, err
		}
	}

	if viewer != nil && game.Status == StatusActive {
		switch viewer.Role {
		case RoleSeer:
			view.SeerResult, err = getSeerResult(q, gameID, viewer.ID)
		case RoleDetective:
			view.DetectiveResult, err = getDetectiveResult(q, gameID, viewer.ID)
		}
		if err != nil && !errors.Is(err, ErrPlayerNotFound) {
			return GameView{}, err
		}
	}
	return view, nil
}
