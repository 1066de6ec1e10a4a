package main

import (
	"errors"
	"fmt"
)

// actionContext is everything a rule needs to judge and record one submission.
// It is built inside the mutation, so every check sees committed state.
type actionContext struct {
	m          *mutation
	actionType ActionType
	game       Game
	actor      Player
	target     Player
	target2    *Player
	result     actionResult
}

// actionResult is what a submission hands back to its caller.
type actionResult struct {
	ActionID   string
	TargetName string
	SameTeam   bool
	Names      [2]string
}

// actionRule is one row of the legality table. The phase and the actor's
// role capability are checked generically; validate holds the rest.
type actionRule struct {
	phase     Phase
	deadActor bool
	twoTarget bool
	validate  func(c *actionContext) error
	apply     func(c *actionContext) error
}

var actionRules map[ActionType]actionRule

func init() {
	actionRules = map[ActionType]actionRule{
		ActionKill:        {phase: PhaseNight, validate: validateKill},
		ActionSave:        {phase: PhaseNight, validate: validateSave},
		ActionScan:        {phase: PhaseNight, validate: validateAliveTarget},
		ActionInvestigate: {phase: PhaseNight, twoTarget: true, validate: validateInvestigate, apply: applyInvestigate},
		ActionConvert:     {phase: PhaseNight, validate: validateConvert, apply: applyConvert},
		ActionMute:        {phase: PhaseNight, validate: validateMute, apply: applyMute},
		ActionSkipMute:    {phase: PhaseNight, validate: validateSkipMute, apply: applySkipMute},
		ActionVote:        {phase: PhaseVoting, validate: validateAliveTarget, apply: applyVote},
		ActionShoot:       {phase: PhaseDay, validate: validateShoot, apply: applyShoot},
		ActionRevenge:     {phase: PhaseHunterRevenge, deadActor: true, validate: validateRevenge, apply: applyRevenge},
	}
}

type actionRequest struct {
	gameID     string
	actorID    string
	targetID   string
	targetID2  string
	actionType ActionType
}

// submitAction records a player's action for the current turn. A second
// submission of the same type by the same actor retargets the first.
func submitAction(gameID, actorID, targetID string, actionType ActionType) (string, error) {
	res, err := submit(actionRequest{gameID: gameID, actorID: actorID, targetID: targetID, actionType: actionType})
	return res.ActionID, err
}

// convertPlayer is the kitten wolf's bite.
func convertPlayer(gameID, actorID, targetID string) (string, error) {
	return submitAction(gameID, actorID, targetID, ActionConvert)
}

func submit(req actionRequest) (actionResult, error) {
	rule, ok := actionRules[req.actionType]
	if !ok {
		return actionResult{}, fmt.Errorf("%w: %q", ErrUnsupportedAction, req.actionType)
	}
	if req.actionType == ActionSkipMute {
		req.targetID = req.actorID
	}

	var result actionResult
	err := runMutation("submitAction", func(m *mutation) error {
		c, err := loadActionContext(m, req, rule)
		if err != nil {
			return err
		}
		if err := rule.validate(c); err != nil {
			return err
		}
		if rule.apply != nil {
			err = rule.apply(c)
		} else {
			err = c.record()
		}
		if err != nil {
			return err
		}
		result = c.result
		m.broadcast(c.game.ID)
		m.afterCommit(func() { actionsSubmitted.WithLabelValues(string(req.actionType)).Inc() })
		return nil
	})
	if err != nil {
		DebugLog("submitAction", "Rejected %s by %s: %v", req.actionType, req.actorID, err)
		return actionResult{}, err
	}
	return result, nil
}

func loadActionContext(m *mutation, req actionRequest, rule actionRule) (*actionContext, error) {
	game, err := getGame(m.tx, req.gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != StatusActive {
		return nil, ErrGameNotActive
	}

	actor, err := getPlayerInGame(m.tx, game.ID, req.actorID)
	if err != nil {
		return nil, err
	}
	if rule.deadActor && actor.IsAlive {
		return nil, ErrActorAlive
	}
	if !rule.deadActor && !actor.IsAlive {
		return nil, ErrActorDead
	}

	target, err := loadTarget(m, game.ID, req.targetID)
	if err != nil {
		return nil, err
	}
	c := &actionContext{m: m, actionType: req.actionType, game: game, actor: actor, target: target}
	if rule.twoTarget {
		target2, err := loadTarget(m, game.ID, req.targetID2)
		if err != nil {
			return nil, err
		}
		c.target2 = &target2
	}

	if game.Phase != rule.phase {
		return nil, ErrWrongPhase
	}
	if !actor.Role.Can(req.actionType) {
		return nil, ErrWrongRole
	}
	return c, nil
}

func loadTarget(m *mutation, gameID, targetID string) (Player, error) {
	if targetID == "" {
		return Player{}, ErrTargetNotFound
	}
	target, err := getPlayerInGame(m.tx, gameID, targetID)
	if errors.Is(err, ErrPlayerNotFound) {
		return target, ErrTargetNotFound
	}
	return target, err
}

// record upserts the action described by the context.
func (c *actionContext) record() error {
	a := Action{
		GameID:     c.game.ID,
		TurnNumber: c.game.TurnNumber,
		Phase:      c.game.Phase,
		Type:       c.actionType,
		ActorID:    c.actor.ID,
		TargetID:   c.target.ID,
		CreatedAt:  nowMillis(),
	}
	if c.target2 != nil {
		a.TargetID2 = c.target2.ID
	}
	id, err := upsertAction(c.m.tx, a)
	if err != nil {
		return fmt.Errorf("record %s: %w", c.actionType, err)
	}
	c.result.ActionID = id
	c.result.TargetName = c.target.Name
	return nil
}

// existing returns the actor's action of the given type for this turn.
func (c *actionContext) existing(actionType ActionType) (Action, bool, error) {
	return findAction(c.m.tx, c.game.ID, c.game.TurnNumber, c.actor.ID, actionType)
}

// retract removes the actor's action of the given type for this turn, if any.
func (c *actionContext) retract(actionType ActionType) error {
	a, found, err := c.existing(actionType)
	if err != nil || !found {
		return err
	}
	DebugLog("submitAction", "Retracting %s by %s (target %s)", actionType, c.actor.Name, a.TargetID)
	return deleteAction(c.m.tx, a.ID)
}

func validateAliveTarget(c *actionContext) error {
	if !c.target.IsAlive {
		return ErrTargetDead
	}
	return nil
}

// actAs resolves userID to their seat in the game and submits the action,
// returning what the acting player learns from it.
func actAs(gameID, userID string, actionType ActionType, targetID, targetID2 string) (any, error) {
	player, err := getPlayerByUser(db, gameID, userID)
	if err != nil {
		return nil, err
	}
	switch actionType {
	case ActionInvestigate:
		return investigatePlayers(gameID, player.ID, targetID, targetID2)
	case ActionShoot:
		killed, err := shootGun(gameID, player.ID, targetID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"killed": killed}, nil
	case ActionConvert:
		id, err := convertPlayer(gameID, player.ID, targetID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"actionId": id}, nil
	}
	id, err := submitAction(gameID, player.ID, targetID, actionType)
	if err != nil {
		return nil, err
	}
	return map[string]string{"actionId": id}, nil
}
