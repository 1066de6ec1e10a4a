package main

import (
	"github.com/jmoiron/sqlx"
)

// Read-only projections over the action ledger.

type SeerResult struct {
	TargetID   string `json:"targetId"`
	TargetName string `json:"targetName"`
	IsWolf     bool   `json:"isWolf"`
}

type DetectiveResult struct {
	TargetIDs [2]string `json:"targetIds"`
	Names     [2]string `json:"names"`
	SameTeam  bool      `json:"sameTeam"`
}

// getSeerResult returns the seer's scan for the current turn, or nil if none was made.
func getSeerResult(q sqlx.Queryer, gameID, actorID string) (*SeerResult, error) {
	game, err := getGame(q, gameID)
	if err != nil {
		return nil, err
	}
	scan, found, err := findAction(q, gameID, game.TurnNumber, actorID, ActionScan)
	if err != nil || !found {
		return nil, err
	}
	target, err := getPlayerInGame(q, gameID, scan.TargetID)
	if err != nil {
		return nil, err
	}
	return &SeerResult{TargetID: target.ID, TargetName: target.Name, IsWolf: target.Team == TeamBad}, nil
}

// getDetectiveResult returns the detective's comparison for the current turn, or nil.
func getDetectiveResult(q sqlx.Queryer, gameID, actorID string) (*DetectiveResult, error) {
	game, err := getGame(q, gameID)
	if err != nil {
		return nil, err
	}
	inv, found, err := findAction(q, gameID, game.TurnNumber, actorID, ActionInvestigate)
	if err != nil || !found {
		return nil, err
	}
	first, err := getPlayerInGame(q, gameID, inv.TargetID)
	if err != nil {
		return nil, err
	}
	second, err := getPlayerInGame(q, gameID, inv.TargetID2)
	if err != nil {
		return nil, err
	}
	return &DetectiveResult{
		TargetIDs: [2]string{first.ID, second.ID},
		Names:     [2]string{first.Name, second.Name},
		SameTeam:  first.Team == second.Team,
	}, nil
}

// getVotersThisTurn lists the players who have voted in the current turn.
func getVotersThisTurn(q sqlx.Queryer, gameID string) ([]string, error) {
	game, err := getGame(q, gameID)
	if err != nil {
		return nil, err
	}
	voters := []string{}
	err = sqlx.Select(q, &voters, `SELECT actor_id FROM game_action
		WHERE game_id = ? AND turn_number = ? AND type = ? ORDER BY rowid`,
		gameID, game.TurnNumber, ActionVote)
	return voters, err
}

func getShootCount(q sqlx.Queryer, gameID, actorID string, turn int) (int, error) {
	var n int
	err := sqlx.Get(q, &n, `SELECT COUNT(*) FROM game_action
		WHERE game_id = ? AND actor_id = ? AND turn_number = ? AND type = ?`,
		gameID, actorID, turn, ActionShoot)
	return n, err
}
