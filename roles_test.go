package main

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleDistributionsSumToPlayerCount(t *testing.T) {
	for n := minPlayers; n <= maxPlayers; n++ {
		dist, ok := roleDistributions[n]
		require.True(t, ok, "no row for %d players", n)
		assert.Equal(t, n, dist.Total(), "row for %d players", n)
		assert.GreaterOrEqual(t, dist[RoleWolf]+dist[RoleKittenWolf]+dist[RoleShadowWolf], 1)
	}
}

func TestBuildRolePoolRejectsUnsupportedCounts(t *testing.T) {
	for _, n := range []int{0, 1, 4, 13, 40} {
		_, err := buildRolePool(n)
		assert.ErrorIs(t, err, ErrUnsupportedPlayerCount, "%d players", n)
		assert.True(t, isConfigError(err))
	}
}

// Every dealt game holds exactly the table's multiset of roles, with teams
// and starting data derived from the role.
func TestAssignRolesMatchesDistribution(t *testing.T) {
	f := func(seed uint8) bool {
		n := int(seed%8) + minPlayers
		players := make([]Player, n)
		if err := assignRoles(players); err != nil {
			t.Logf("assignRoles(%d): %v", n, err)
			return false
		}
		got := RoleDistribution{}
		for _, p := range players {
			got[p.Role]++
			if p.Team != p.Role.Team() || p.RoleData != p.Role.InitialData() {
				return false
			}
		}
		want := roleDistributions[n]
		for role, count := range want {
			if got[role] != count {
				return false
			}
		}
		return len(got) == countNonZero(want)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 50}); err != nil {
		t.Error(err)
	}
}

func countNonZero(d RoleDistribution) int {
	n := 0
	for _, c := range d {
		if c > 0 {
			n++
		}
	}
	return n
}

func TestShuffleRolesIsAPermutation(t *testing.T) {
	f := func(seed uint8) bool {
		pool, err := buildRolePool(int(seed%8) + minPlayers)
		if err != nil {
			return false
		}
		before := map[Role]int{}
		for _, s := range pool {
			before[s.Role]++
		}
		shuffleRoles(pool)
		for _, s := range pool {
			before[s.Role]--
		}
		for _, c := range before {
			if c != 0 {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 25}); err != nil {
		t.Error(err)
	}
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, RoleVillager.Can(ActionVote), "every role votes")
	assert.True(t, RoleWolf.Can(ActionKill))
	assert.False(t, RoleWolf.Can(ActionConvert))
	assert.True(t, RoleKittenWolf.Can(ActionConvert))
	assert.True(t, RoleShadowWolf.Can(ActionMute))
	assert.True(t, RoleShadowWolf.Can(ActionSkipMute))
	assert.False(t, RoleSeer.Can(ActionKill))
	assert.True(t, RoleHunter.Can(ActionRevenge))
	assert.False(t, Role("jester").Can(ActionKill))

	assert.Equal(t, 2, RoleGunner.InitialData().Bullets)
	assert.True(t, RoleKittenWolf.IsWolf())
	assert.False(t, RoleDetective.IsWolf())
}
