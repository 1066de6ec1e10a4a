package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voteAction(actor, target string) Action {
	return Action{TurnNumber: 1, Phase: PhaseVoting, Type: ActionVote, ActorID: actor, TargetID: target}
}

// toVoting plays out a quiet night and the day discussion.
func (e *testEnv) toVoting(gameID string) {
	e.t.Helper()
	e.endPhase(gameID)
	e.endPhase(gameID)
	require.Equal(e.t, PhaseVoting, e.game(gameID).Phase)
}

// ============================================================================
// Pure resolution
// ============================================================================

func TestResolveVotingMajority(t *testing.T) {
	players := []Player{seat("a", RoleWolf), seat("b", RoleSeer), seat("c", RoleVillager), seat("d", RoleVillager), seat("e", RoleVillager)}

	out := resolveVoting(players, []Action{voteAction("b", "a"), voteAction("c", "a"), voteAction("d", "a"), voteAction("a", "b")})
	assert.Equal(t, 3, out.Majority)
	assert.Equal(t, "a", out.Eliminated)
	assert.Equal(t, "a was eliminated by the village with 3 votes.", out.Announcements[0].Content)

	out = resolveVoting(players, []Action{voteAction("b", "a"), voteAction("c", "a"), voteAction("a", "b"), voteAction("d", "b")})
	assert.Empty(t, out.Eliminated)
	assert.Equal(t, "No majority was reached (2 of 3 votes needed). Nobody was eliminated.", out.Announcements[0].Content)

	out = resolveVoting(players, nil)
	assert.Equal(t, "No votes were cast. Nobody was eliminated.", out.Announcements[0].Content)
}

func TestResolveVotingIgnoresDeadVoters(t *testing.T) {
	dead := seat("d", RoleVillager)
	dead.IsAlive = false
	players := []Player{seat("a", RoleWolf), seat("b", RoleSeer), seat("c", RoleVillager), dead}

	out := resolveVoting(players, []Action{voteAction("b", "a"), voteAction("d", "a")})
	assert.Equal(t, 2, out.Majority)
	assert.Empty(t, out.Eliminated, "the dead vote does not count")
}

func TestResolveRevenge(t *testing.T) {
	hunter := seat("h", RoleHunter)
	hunter.IsAlive = false
	players := []Player{seat("w", RoleWolf), hunter, seat("v", RoleVillager)}

	out := resolveRevenge(players, []Action{{Type: ActionRevenge, ActorID: "h", TargetID: "w"}}, "h")
	assert.Equal(t, "w", out.Killed)
	assert.Equal(t, "With a final breath, h shot w.", out.Announcements[0].Content)

	out = resolveRevenge(players, nil, "h")
	assert.Empty(t, out.Killed)
	assert.Equal(t, "h held their fire.", out.Announcements[0].Content)
}

// ============================================================================
// Voting
// ============================================================================

func TestVillageVotesOutLastWolf(t *testing.T) {
	env := newTestEnv(t)
	gameID, p := env.startWithRoles(RoleWolf, RoleDoctor, RoleSeer, RoleVillager, RoleVillager)
	env.toVoting(gameID)

	for _, voter := range p[1:4] {
		env.act(gameID, voter, ActionVote, p[0])
	}
	voters, err := getVotersThisTurn(db, gameID)
	require.NoError(t, err)
	assert.Equal(t, []string{p[1].ID, p[2].ID, p[3].ID}, voters)

	env.endPhase(gameID)
	g := env.game(gameID)
	assert.Equal(t, StatusEnded, g.Status)
	assert.Equal(t, TeamGood, g.WinningTeam)
	assert.Equal(t, endReasonVictory, g.EndReason)
	assert.Nil(t, g.PhaseEndTime)

	lines := env.systemLines(gameID)
	assert.Contains(t, lines, "P1 was eliminated by the village with 3 votes.")
	assert.Equal(t, "The village wins! Every wolf has been found.", lines[len(lines)-1])
}

func TestNoMajorityMovesToNextNight(t *testing.T) {
	env := newTestEnv(t)
	gameID, p := env.startWithRoles(RoleWolf, RoleDoctor, RoleSeer, RoleVillager, RoleVillager)
	env.toVoting(gameID)

	env.act(gameID, p[1], ActionVote, p[0])
	env.act(gameID, p[0], ActionVote, p[1])
	env.endPhase(gameID)

	g := env.game(gameID)
	assert.Equal(t, StatusActive, g.Status)
	assert.Equal(t, PhaseNight, g.Phase)
	assert.Equal(t, 2, g.TurnNumber)
	assert.Contains(t, env.systemLines(gameID), "No majority was reached (1 of 3 votes needed). Nobody was eliminated.")
}

func TestLastVoteEndsVotingEarly(t *testing.T) {
	env := newTestEnv(t)
	gameID, p := env.startWithRoles(RoleWolf, RoleDoctor, RoleSeer, RoleVillager, RoleVillager)
	env.toVoting(gameID)
	votingTask := env.sched.latest(t, gameID)

	env.act(gameID, p[0], ActionVote, p[4])
	env.act(gameID, p[1], ActionVote, p[4])
	env.act(gameID, p[2], ActionVote, p[4])
	// A vote may be changed until the phase ends.
	env.act(gameID, p[3], ActionVote, p[0])
	env.act(gameID, p[3], ActionVote, p[4])
	require.Equal(t, PhaseVoting, env.game(gameID).Phase)

	env.act(gameID, p[4], ActionVote, p[0])

	g := env.game(gameID)
	assert.Equal(t, PhaseNight, g.Phase, "everyone voted, so voting ended without the timer")
	assert.Equal(t, 2, g.TurnNumber)
	assert.False(t, env.player(gameID, p[4].ID).IsAlive)

	// The voting timer still fires later and must change nothing.
	runScheduledTask(votingTask)
	after := env.game(gameID)
	assert.Equal(t, g.Phase, after.Phase)
	assert.Equal(t, g.TurnNumber, after.TurnNumber)
}

func TestVoteRules(t *testing.T) {
	env := newTestEnv(t)
	gameID, p := env.startWithRoles(RoleWolf, RoleDoctor, RoleSeer, RoleVillager, RoleVillager)
	env.act(gameID, p[0], ActionKill, p[4])
	env.endPhase(gameID)
	env.endPhase(gameID)

	_, err := submitAction(gameID, p[4].ID, p[0].ID, ActionVote)
	assert.ErrorIs(t, err, ErrActorDead)
	_, err = submitAction(gameID, p[1].ID, p[4].ID, ActionVote)
	assert.ErrorIs(t, err, ErrTargetDead)
	_, err = submitAction(gameID, p[1].ID, p[0].ID, ActionKill)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

// ============================================================================
// Gunner
// ============================================================================

func TestGunnerShootsDuringDay(t *testing.T) {
	env := newTestEnv(t)
	gameID, p := env.startWithRoles(RoleWolf, RoleGunner, RoleSeer, RoleDoctor, RoleVillager, RoleVillager)
	gunner := p[1]

	_, err := shootGun(gameID, gunner.ID, p[4].ID)
	assert.ErrorIs(t, err, ErrWrongPhase, "no shooting at night")

	env.endPhase(gameID)
	_, err = shootGun(gameID, gunner.ID, gunner.ID)
	assert.ErrorIs(t, err, ErrSelfTarget)

	killed, err := shootGun(gameID, gunner.ID, p[4].ID)
	require.NoError(t, err)
	assert.Equal(t, "P5", killed)
	assert.False(t, env.player(gameID, p[4].ID).IsAlive)
	assert.Contains(t, env.systemLines(gameID), "P2 drew a gun and shot P5!")

	_, err = shootGun(gameID, gunner.ID, p[5].ID)
	assert.ErrorIs(t, err, ErrAlreadyShot)

	shot := env.player(gameID, gunner.ID)
	assert.Equal(t, 1, shot.RoleData.Bullets)
	assert.True(t, shot.RoleData.IsRevealed)

	view, err := buildGameView(db, gameID, p[2].UserID)
	require.NoError(t, err)
	for _, pv := range view.Players {
		if pv.ID == gunner.ID {
			assert.Equal(t, RoleGunner, pv.Role, "a gunner who fired is known to all")
		}
		if pv.ID == p[0].ID {
			assert.Empty(t, pv.Role)
		}
	}

	env.endPhase(gameID) // day -> voting
	env.endPhase(gameID) // voting -> night 2
	env.endPhase(gameID) // night 2 -> day 2
	_, err = shootGun(gameID, gunner.ID, p[5].ID)
	require.NoError(t, err)

	env.endPhase(gameID)
	env.endPhase(gameID)
	env.endPhase(gameID)
	_, err = shootGun(gameID, gunner.ID, p[3].ID)
	assert.ErrorIs(t, err, ErrNoBullets)
}

func TestGunnerShotCanEndTheGame(t *testing.T) {
	env := newTestEnv(t)
	gameID, p := env.startWithRoles(RoleWolf, RoleGunner, RoleSeer, RoleDoctor, RoleVillager, RoleVillager)
	env.endPhase(gameID)

	_, err := shootGun(gameID, p[1].ID, p[0].ID)
	require.NoError(t, err)

	g := env.game(gameID)
	assert.Equal(t, StatusEnded, g.Status)
	assert.Equal(t, TeamGood, g.WinningTeam)

	// The day timer fires after the game is over and is ignored.
	require.NoError(t, transitionPhase(gameID, 1, PhaseDay))
	assert.Equal(t, StatusEnded, env.game(gameID).Status)
}

// ============================================================================
// Hunter
// ============================================================================

func TestHunterRevengeAfterVote(t *testing.T) {
	env := newTestEnv(t)
	gameID, p := env.startWithRoles(RoleWolf, RoleHunter, RoleSeer, RoleDoctor, RoleVillager, RoleVillager)
	hunter := p[1]
	env.toVoting(gameID)

	for _, voter := range []Player{p[0], p[2], p[3], p[4]} {
		env.act(gameID, voter, ActionVote, hunter)
	}
	env.endPhase(gameID)

	g := env.game(gameID)
	require.Equal(t, PhaseHunterRevenge, g.Phase)
	assert.Equal(t, hunter.ID, g.PendingHunterID)
	assert.Contains(t, env.systemLines(gameID), "P2 was the hunter and may take one last shot.")

	_, err := submitAction(gameID, p[2].ID, p[0].ID, ActionRevenge)
	assert.ErrorIs(t, err, ErrActorAlive)

	env.act(gameID, hunter, ActionRevenge, p[0])

	g = env.game(gameID)
	assert.Equal(t, StatusEnded, g.Status, "the revenge shot resolves at once")
	assert.Equal(t, TeamGood, g.WinningTeam)
	assert.Contains(t, env.systemLines(gameID), "With a final breath, P2 shot P1.")
}

func TestHunterHoldsFireAndNightFollows(t *testing.T) {
	env := newTestEnv(t)
	gameID, p := env.startWithRoles(RoleWolf, RoleHunter, RoleSeer, RoleDoctor, RoleVillager, RoleVillager)
	env.toVoting(gameID)
	for _, voter := range []Player{p[0], p[2], p[3], p[4]} {
		env.act(gameID, voter, ActionVote, p[1])
	}
	env.endPhase(gameID)
	require.Equal(t, PhaseHunterRevenge, env.game(gameID).Phase)

	env.endPhase(gameID)
	g := env.game(gameID)
	assert.Equal(t, PhaseNight, g.Phase)
	assert.Equal(t, 2, g.TurnNumber)
	assert.Empty(t, g.PendingHunterID)
	assert.Contains(t, env.systemLines(gameID), "P2 held their fire.")

	_, err := submitAction(gameID, p[1].ID, p[0].ID, ActionRevenge)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestHunterKilledAtNightResumesDay(t *testing.T) {
	env := newTestEnv(t)
	gameID, p := env.startWithRoles(RoleWolf, RoleHunter, RoleSeer, RoleDoctor, RoleVillager, RoleVillager)
	env.act(gameID, p[0], ActionKill, p[1])
	env.endPhase(gameID)
	require.Equal(t, PhaseHunterRevenge, env.game(gameID).Phase)

	env.act(gameID, p[1], ActionRevenge, p[4])
	g := env.game(gameID)
	assert.Equal(t, PhaseDay, g.Phase)
	assert.Equal(t, 1, g.TurnNumber)
	assert.False(t, env.player(gameID, p[4].ID).IsAlive)

	_, err := submitAction(gameID, p[1].ID, p[5].ID, ActionRevenge)
	assert.ErrorIs(t, err, ErrWrongPhase, "one shot only")
}

// ============================================================================
// Round cap
// ============================================================================

func TestRoundCapEndsTheGame(t *testing.T) {
	env := newTestEnv(t)
	timing.MaxRounds = 2
	gameID, _ := env.startWithRoles(RoleWolf, RoleDoctor, RoleSeer, RoleVillager, RoleVillager)

	for turn := 1; turn <= 2; turn++ {
		require.Equal(t, turn, env.game(gameID).TurnNumber)
		env.toVoting(gameID)
		env.endPhase(gameID)
	}

	g := env.game(gameID)
	assert.Equal(t, StatusEnded, g.Status)
	assert.Equal(t, endReasonRoundCap, g.EndReason)
	assert.Equal(t, TeamGood, g.WinningTeam)
	assert.Contains(t, env.systemLines(gameID), "2 rounds have passed. The hunt is over.")
}
