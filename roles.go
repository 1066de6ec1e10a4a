package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

type Team string

const (
	TeamGood    Team = "good"
	TeamBad     Team = "bad"
	TeamNeutral Team = "neutral"
)

type Role string

const (
	RoleWolf       Role = "wolf"
	RoleKittenWolf Role = "kittenWolf"
	RoleShadowWolf Role = "shadowWolf"
	RoleSeer       Role = "seer"
	RoleDoctor     Role = "doctor"
	RoleGunner     Role = "gunner"
	RoleDetective  Role = "detective"
	RoleHunter     Role = "hunter"
	RoleVillager   Role = "villager"
)

// roleVariant describes what a role is: its team, the actions it carries and
// the role data it starts the game with.
type roleVariant struct {
	team     Team
	actions  []ActionType
	initData func() RoleData
}

var roleVariants = map[Role]roleVariant{
	RoleWolf:       {team: TeamBad, actions: []ActionType{ActionKill}},
	RoleKittenWolf: {team: TeamBad, actions: []ActionType{ActionKill, ActionConvert}},
	RoleShadowWolf: {team: TeamBad, actions: []ActionType{ActionKill, ActionMute, ActionSkipMute}},
	RoleSeer:       {team: TeamGood, actions: []ActionType{ActionScan}},
	RoleDoctor:     {team: TeamGood, actions: []ActionType{ActionSave}},
	RoleGunner: {team: TeamGood, actions: []ActionType{ActionShoot}, initData: func() RoleData {
		return RoleData{Bullets: 2, IsRevealed: false}
	}},
	RoleDetective: {team: TeamGood, actions: []ActionType{ActionInvestigate}},
	RoleHunter:    {team: TeamGood, actions: []ActionType{ActionRevenge}},
	RoleVillager:  {team: TeamGood},
}

// Can reports whether the role carries the given action capability.
// Voting is not a role capability; every living player has it.
func (r Role) Can(action ActionType) bool {
	if action == ActionVote {
		return true
	}
	v, ok := roleVariants[r]
	if !ok {
		return false
	}
	for _, a := range v.actions {
		if a == action {
			return true
		}
	}
	return false
}

func (r Role) Team() Team {
	return roleVariants[r].team
}

func (r Role) IsWolf() bool {
	return r.Team() == TeamBad
}

func (r Role) InitialData() RoleData {
	v := roleVariants[r]
	if v.initData == nil {
		return RoleData{}
	}
	return v.initData()
}

// RoleDistribution is one row of the distribution table.
type RoleDistribution map[Role]int

func (d RoleDistribution) Total() int {
	total := 0
	for _, n := range d {
		total += n
	}
	return total
}

const (
	minPlayers = 5
	maxPlayers = 12
)

// roleDistributions is fixed per player count; every row sums to its key.
var roleDistributions = map[int]RoleDistribution{
	5:  {RoleWolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleVillager: 2},
	6:  {RoleWolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleGunner: 1, RoleVillager: 2},
	7:  {RoleWolf: 2, RoleSeer: 1, RoleDoctor: 1, RoleGunner: 1, RoleVillager: 2},
	8:  {RoleWolf: 1, RoleKittenWolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleGunner: 1, RoleDetective: 1, RoleVillager: 2},
	9:  {RoleWolf: 1, RoleKittenWolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleGunner: 1, RoleDetective: 1, RoleHunter: 1, RoleVillager: 2},
	10: {RoleWolf: 1, RoleKittenWolf: 1, RoleShadowWolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleGunner: 1, RoleDetective: 1, RoleHunter: 1, RoleVillager: 2},
	11: {RoleWolf: 2, RoleKittenWolf: 1, RoleShadowWolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleGunner: 1, RoleDetective: 1, RoleHunter: 1, RoleVillager: 2},
	12: {RoleWolf: 2, RoleKittenWolf: 1, RoleShadowWolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleGunner: 1, RoleDetective: 1, RoleHunter: 1, RoleVillager: 3},
}

// roleOrder keeps the flattened role pool deterministic before shuffling.
var roleOrder = []Role{
	RoleWolf, RoleKittenWolf, RoleShadowWolf, RoleSeer, RoleDoctor,
	RoleGunner, RoleDetective, RoleHunter, RoleVillager,
}

type roleSlot struct {
	Role Role
	Team Team
}

// buildRolePool flattens the distribution for n players into role slots.
func buildRolePool(n int) ([]roleSlot, error) {
	dist, ok := roleDistributions[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d players", ErrUnsupportedPlayerCount, n)
	}
	var pool []roleSlot
	for _, role := range roleOrder {
		for i := 0; i < dist[role]; i++ {
			pool = append(pool, roleSlot{Role: role, Team: role.Team()})
		}
	}
	return pool, nil
}

// assignRoles shuffles the pool for len(players) and writes role, team and
// initial role data onto each player in order.
func assignRoles(players []Player) error {
	pool, err := buildRolePool(len(players))
	if err != nil {
		return err
	}
	shuffleRoles(pool)
	if len(pool) != len(players) {
		return fmt.Errorf("%w: %d roles for %d players", ErrRoleCountMismatch, len(pool), len(players))
	}
	for i := range players {
		players[i].Role = pool[i].Role
		players[i].Team = pool[i].Team
		players[i].RoleData = pool[i].Role.InitialData()
	}
	return nil
}

// randIntn returns a uniform int in [0, n). Tests may replace it.
var randIntn = func(n int) int {
	jBig, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(jBig.Int64())
}

// shuffleRoles is a Fisher-Yates shuffle of the role pool.
func shuffleRoles(roles []roleSlot) {
	for i := len(roles) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		roles[i], roles[j] = roles[j], roles[i]
	}
}
