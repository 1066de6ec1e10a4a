package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// shootGun is the gunner's daytime shot. It reveals the gunner, kills the
// target on the spot and can end the game outside the phase timer.
func shootGun(gameID, actorID, targetID string) (string, error) {
	res, err := submit(actionRequest{gameID: gameID, actorID: actorID, targetID: targetID, actionType: ActionShoot})
	if err != nil {
		return "", err
	}
	return res.TargetName, nil
}

// applyVote records the vote and ends the voting phase early once every
// living player has voted. The early end goes through the same turn/phase
// guard as the timer, so whichever comes second is a no-op.
func applyVote(c *actionContext) error {
	if err := c.record(); err != nil {
		return err
	}
	alive, voted, err := votingProgress(c.m.tx, c.game.ID, c.game.TurnNumber)
	if err != nil {
		return err
	}
	if voted >= alive {
		gameID, turn := c.game.ID, c.game.TurnNumber
		DebugLog("applyVote", "All %d living players voted in game %s turn %d, ending voting early", alive, gameID, turn)
		c.m.afterCommit(func() { transitionPhase(gameID, turn, PhaseVoting) })
	}
	return nil
}

// votingProgress counts living players and how many of them have voted this turn.
func votingProgress(q sqlx.Queryer, gameID string, turn int) (alive, voted int, err error) {
	err = sqlx.Get(q, &alive, `SELECT COUNT(*) FROM player WHERE game_id = ? AND is_alive = 1`, gameID)
	if err != nil {
		return 0, 0, err
	}
	err = sqlx.Get(q, &voted, `
		SELECT COUNT(DISTINCT a.actor_id) FROM game_action a
		JOIN player p ON p.id = a.actor_id
		WHERE a.game_id = ? AND a.turn_number = ? AND a.type = ? AND p.is_alive = 1`,
		gameID, turn, ActionVote)
	return alive, voted, err
}

func validateShoot(c *actionContext) error {
	if c.actor.RoleData.Bullets <= 0 {
		return ErrNoBullets
	}
	if !c.target.IsAlive {
		return ErrTargetDead
	}
	if c.target.ID == c.actor.ID {
		return ErrSelfTarget
	}
	shots, err := getShootCount(c.m.tx, c.game.ID, c.actor.ID, c.game.TurnNumber)
	if err != nil {
		return err
	}
	if shots > 0 {
		return ErrAlreadyShot
	}
	return nil
}

func applyShoot(c *actionContext) error {
	c.actor.RoleData.Bullets--
	c.actor.RoleData.IsRevealed = true
	if err := updatePlayer(c.m.tx, c.actor); err != nil {
		return fmt.Errorf("spend bullet: %w", err)
	}
	c.target.IsAlive = false
	if err := updatePlayer(c.m.tx, c.target); err != nil {
		return fmt.Errorf("kill target: %w", err)
	}
	if err := c.m.postSystem(c.game.ID, fmt.Sprintf("%s drew a gun and shot %s!", c.actor.Name, c.target.Name)); err != nil {
		return err
	}
	if err := c.record(); err != nil {
		return err
	}
	DebugLog("applyShoot", "Gunner '%s' shot '%s' (%d bullets left)", c.actor.Name, c.target.Name, c.actor.RoleData.Bullets)

	players, err := getPlayersByGameID(c.m.tx, c.game.ID)
	if err != nil {
		return err
	}
	c.m.afterCommit(storyFor(c.game, c.target.Name, "shot by the gunner "+c.actor.Name))
	if winner := evaluateWin(players); winner != "" {
		return endGame(c.m, &c.game, winner, endReasonVictory)
	}
	return nil
}

func validateRevenge(c *actionContext) error {
	taken, err := hasTakenRevenge(c.m.tx, c.game.ID, c.actor.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrRevengeTaken
	}
	if c.game.PendingHunterID != c.actor.ID {
		return ErrWrongPhase
	}
	if !c.target.IsAlive {
		return ErrTargetDead
	}
	if c.target.ID == c.actor.ID {
		return ErrSelfTarget
	}
	return nil
}

// applyRevenge records the shot and resolves the revenge phase at once.
func applyRevenge(c *actionContext) error {
	if err := c.record(); err != nil {
		return err
	}
	gameID, turn := c.game.ID, c.game.TurnNumber
	c.m.afterCommit(func() { transitionPhase(gameID, turn, PhaseHunterRevenge) })
	return nil
}

func hasTakenRevenge(q sqlx.Queryer, gameID, actorID string) (bool, error) {
	var n int
	err := sqlx.Get(q, &n, `SELECT COUNT(*) FROM game_action WHERE game_id = ? AND actor_id = ? AND type = ?`,
		gameID, actorID, ActionRevenge)
	return n > 0, err
}

// VoteOutcome is the result of resolving one voting phase.
type VoteOutcome struct {
	Players       []Player
	Eliminated    string
	TopVotes      int
	Majority      int
	Hunter        string
	Announcements []Announcement
}

// resolveVoting eliminates the most-voted player if they reach a strict
// majority of the living, floor(alive/2)+1.
func resolveVoting(players []Player, actions []Action) VoteOutcome {
	r := newRoster(players)
	votes := newTally()
	for _, a := range actions {
		if a.Type != ActionVote || a.Phase != PhaseVoting {
			continue
		}
		if !r.alive(a.ActorID) || !r.alive(a.TargetID) {
			continue
		}
		votes.add(a.TargetID)
	}

	out := VoteOutcome{Majority: r.aliveCount()/2 + 1}
	target, count := votes.top()
	out.TopVotes = count

	var headline string
	switch {
	case votes.total() == 0:
		headline = "No votes were cast. Nobody was eliminated."
	case count >= out.Majority:
		victim := r.get(target)
		victim.IsAlive = false
		out.Eliminated = victim.ID
		out.Hunter = revengeCandidate(r, victim.ID)
		headline = fmt.Sprintf("%s was eliminated by the village with %d votes.", victim.Name, count)
	default:
		headline = fmt.Sprintf("No majority was reached (%d of %d votes needed). Nobody was eliminated.", count, out.Majority)
	}
	out.Announcements = []Announcement{{Channel: ChannelGlobal, Content: headline}}
	out.Players = r.players
	return out
}

// RevengeOutcome is the result of a hunter's revenge phase.
type RevengeOutcome struct {
	Players       []Player
	Killed        string
	Announcements []Announcement
}

// resolveRevenge applies the pending hunter's shot, if one was taken.
// A hunter killed by a revenge shot gets no revenge of their own.
func resolveRevenge(players []Player, actions []Action, hunterID string) RevengeOutcome {
	r := newRoster(players)
	var out RevengeOutcome

	hunter := r.get(hunterID)
	hunterName := "The hunter"
	if hunter != nil {
		hunterName = hunter.Name
	}

	for _, a := range actions {
		if a.Type != ActionRevenge || a.ActorID != hunterID || !r.alive(a.TargetID) {
			continue
		}
		victim := r.get(a.TargetID)
		victim.IsAlive = false
		out.Killed = victim.ID
		break
	}

	headline := fmt.Sprintf("%s held their fire.", hunterName)
	if out.Killed != "" {
		headline = fmt.Sprintf("With a final breath, %s shot %s.", hunterName, r.get(out.Killed).Name)
	}
	out.Announcements = []Announcement{{Channel: ChannelGlobal, Content: headline}}
	out.Players = r.players
	return out
}
