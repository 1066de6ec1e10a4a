package main

import "fmt"

// InvestigationResult is what the detective learns about two players.
type InvestigationResult struct {
	ActionID string    `json:"actionId"`
	SameTeam bool      `json:"sameTeam"`
	Names    [2]string `json:"names"`
}

// investigatePlayers compares the teams of two players for the detective.
func investigatePlayers(gameID, actorID, targetID1, targetID2 string) (InvestigationResult, error) {
	res, err := submit(actionRequest{
		gameID:     gameID,
		actorID:    actorID,
		targetID:   targetID1,
		targetID2:  targetID2,
		actionType: ActionInvestigate,
	})
	if err != nil {
		return InvestigationResult{}, err
	}
	return InvestigationResult{ActionID: res.ActionID, SameTeam: res.SameTeam, Names: res.Names}, nil
}

func validateKill(c *actionContext) error {
	if !c.target.IsAlive {
		return ErrTargetDead
	}
	if c.target.Team == TeamBad {
		return ErrFriendlyFire
	}
	_, converting, err := c.existing(ActionConvert)
	if err != nil {
		return err
	}
	if converting {
		return ErrKillConvertClash
	}
	return nil
}

func validateSave(c *actionContext) error {
	if !c.target.IsAlive {
		return ErrTargetDead
	}
	if c.target.ID == c.actor.RoleData.LastProtectedID {
		return ErrRepeatProtection
	}
	return nil
}

func validateInvestigate(c *actionContext) error {
	if c.target.ID == c.target2.ID {
		return ErrSameTargets
	}
	return nil
}

func applyInvestigate(c *actionContext) error {
	if err := c.record(); err != nil {
		return err
	}
	c.result.SameTeam = c.target.Team == c.target2.Team
	c.result.Names = [2]string{c.target.Name, c.target2.Name}
	return nil
}

// validateConvert allows one bite per game. Retargeting tonight's bite is
// still allowed after it has been spent.
func validateConvert(c *actionContext) error {
	if !c.target.IsAlive {
		return ErrTargetDead
	}
	if c.target.Team == TeamBad {
		return ErrFriendlyFire
	}
	if c.actor.RoleData.HasBitten {
		_, retarget, err := c.existing(ActionConvert)
		if err != nil {
			return err
		}
		if !retarget {
			return ErrBiteUsed
		}
	}
	return nil
}

// applyConvert spends the bite and drops the actor's kill for this turn:
// a kitten wolf either kills or bites, never both.
func applyConvert(c *actionContext) error {
	if !c.actor.RoleData.HasBitten {
		c.actor.RoleData.HasBitten = true
		if err := updatePlayer(c.m.tx, c.actor); err != nil {
			return fmt.Errorf("spend bite: %w", err)
		}
	}
	if err := c.retract(ActionKill); err != nil {
		return err
	}
	return c.record()
}

func validateMute(c *actionContext) error {
	if !c.target.IsAlive {
		return ErrTargetDead
	}
	if c.target.ID == c.actor.ID {
		return ErrSelfTarget
	}
	if c.target.Team == TeamBad {
		return ErrFriendlyFire
	}
	return nil
}

func applyMute(c *actionContext) error {
	if err := c.retract(ActionSkipMute); err != nil {
		return err
	}
	return c.record()
}

// skipMute is always aimed at the actor.
func validateSkipMute(c *actionContext) error {
	return nil
}

func applySkipMute(c *actionContext) error {
	if err := c.retract(ActionMute); err != nil {
		return err
	}
	return c.record()
}

// NightOutcome is the result of resolving one night.
type NightOutcome struct {
	Players       []Player
	Attacked      string
	Killed        string
	Saved         bool
	Converted     string
	Muted         string
	Hunter        string
	Announcements []Announcement
}

// resolveNight turns the night's actions into roster changes. Saves land
// first, then the wolves' pick (first-seen plurality), then the bite, then
// the mute. It never touches the input slices.
func resolveNight(players []Player, actions []Action) NightOutcome {
	r := newRoster(players)
	var out NightOutcome

	saved := make(map[string]bool)
	kills := newTally()
	var converts, mutes []Action

	for _, a := range actions {
		actor := r.get(a.ActorID)
		if actor == nil || !actor.IsAlive || a.Phase != PhaseNight || !actor.Role.Can(a.Type) {
			continue
		}
		switch a.Type {
		case ActionSave:
			actor.RoleData.LastProtectedID = a.TargetID
			saved[a.TargetID] = true
		case ActionKill:
			if actor.Team == TeamBad && r.alive(a.TargetID) {
				kills.add(a.TargetID)
			}
		case ActionConvert:
			converts = append(converts, a)
		case ActionMute:
			mutes = append(mutes, a)
		}
	}

	if target, votes := kills.top(); votes > 0 {
		out.Attacked = target
		if saved[target] {
			out.Saved = true
		} else {
			r.get(target).IsAlive = false
			out.Killed = target
			out.Hunter = revengeCandidate(r, target)
		}
	}

	var packNews []Announcement
	for _, a := range converts {
		t := r.get(a.TargetID)
		if t == nil || !t.IsAlive || saved[t.ID] || t.Team == TeamBad {
			continue
		}
		turn := a.TurnNumber
		t.Role = RoleWolf
		t.Team = TeamBad
		t.RoleData = RoleWolf.InitialData()
		t.WasConverted = true
		t.ConvertedAtTurn = &turn
		out.Converted = t.ID
		packNews = append(packNews, Announcement{
			Channel: ChannelWolves,
			Content: fmt.Sprintf("%s has been bitten and now hunts with the pack.", t.Name),
		})
	}

	for _, a := range mutes {
		t := r.get(a.TargetID)
		if t == nil || !t.IsAlive {
			continue
		}
		t.IsMuted = true
		out.Muted = t.ID
	}

	var headline string
	switch {
	case out.Killed != "":
		headline = fmt.Sprintf("%s was killed during the night.", r.get(out.Killed).Name)
	case out.Saved:
		headline = "The wolves attacked during the night, but their victim survived."
	default:
		headline = "The night passed peacefully. Nobody was targeted."
	}
	out.Announcements = append([]Announcement{{Channel: ChannelGlobal, Content: headline}}, packNews...)
	out.Players = r.players
	return out
}
