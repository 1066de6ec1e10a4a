package main

// Announcement is a chat line produced by a resolution.
type Announcement struct {
	Channel Channel
	Content string
}

// tally counts targets in iteration order and returns the first target to
// reach the highest count. Ties therefore go to whichever target was voted
// for first.
type tally struct {
	counts map[string]int
	order  []string
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(targetID string) {
	if _, seen := t.counts[targetID]; !seen {
		t.order = append(t.order, targetID)
	}
	t.counts[targetID]++
}

func (t *tally) total() int {
	total := 0
	for _, n := range t.counts {
		total += n
	}
	return total
}

func (t *tally) top() (string, int) {
	var best string
	bestCount := 0
	for _, id := range t.order {
		if t.counts[id] > bestCount {
			best, bestCount = id, t.counts[id]
		}
	}
	return best, bestCount
}

// roster is a mutable copy of the player list with lookup by id.
// Resolutions work on a roster so the caller's slice is never touched.
type roster struct {
	players []Player
	index   map[string]int
}

func newRoster(players []Player) *roster {
	r := &roster{
		players: make([]Player, len(players)),
		index:   make(map[string]int, len(players)),
	}
	copy(r.players, players)
	for i, p := range r.players {
		r.index[p.ID] = i
	}
	return r
}

func (r *roster) get(id string) *Player {
	i, ok := r.index[id]
	if !ok {
		return nil
	}
	return &r.players[i]
}

func (r *roster) alive(id string) bool {
	p := r.get(id)
	return p != nil && p.IsAlive
}

func (r *roster) aliveCount() int {
	n := 0
	for _, p := range r.players {
		if p.IsAlive {
			n++
		}
	}
	return n
}

// changed returns the players whose stored row differs from before.
func (r *roster) changed(before []Player) []Player {
	var out []Player
	for _, old := range before {
		now := r.get(old.ID)
		if now != nil && !samePlayerState(old, *now) {
			out = append(out, *now)
		}
	}
	return out
}

func samePlayerState(a, b Player) bool {
	sameTurn := (a.ConvertedAtTurn == nil) == (b.ConvertedAtTurn == nil) &&
		(a.ConvertedAtTurn == nil || *a.ConvertedAtTurn == *b.ConvertedAtTurn)
	return a.Role == b.Role && a.Team == b.Team && a.IsAlive == b.IsAlive &&
		a.RoleData == b.RoleData && a.WasConverted == b.WasConverted &&
		a.IsMuted == b.IsMuted && sameTurn
}

// revengeCandidate returns the id of a hunter who has just died, if any.
func revengeCandidate(r *roster, died string) string {
	p := r.get(died)
	if p == nil || p.IsAlive || !p.Role.Can(ActionRevenge) {
		return ""
	}
	return p.ID
}
