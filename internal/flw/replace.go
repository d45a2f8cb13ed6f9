package flw

// ReplaceLeaders promotes, in every group, the fittest follower over a leader
// it strictly beats. The promoted follower takes the leader slot and the old
// leader joins the end of the follower band; nobody moves. Groups without
// followers are left alone. It returns the number of swaps.
func ReplaceLeaders(pop *Population) int {
	swaps := 0
	for _, g := range pop.Groups {
		if len(g.Followers) == 0 {
			continue
		}
		bi := pop.argmin(g.Followers)
		best := pop.Agents[g.Followers[bi]]
		leader := pop.Agents[g.Leader]
		if !(leader.Fitness > best.Fitness) {
			continue
		}

		g.Followers = append(g.Followers[:bi], g.Followers[bi+1:]...)
		g.Followers = append(g.Followers, g.Leader)
		g.Leader = best.ID
		best.Role = RoleLeader
		leader.Role = RoleFollower
		swaps++
	}
	return swaps
}

// PromoteWalker copies the best walker's position into the best leader when
// the walker is strictly fitter. The leader keeps its identity and group; only
// its position (and the fitness that goes with it) changes. It returns the
// group whose leader was overwritten.
func PromoteWalker(pop *Population) (group int, ok bool) {
	if len(pop.Walkers) == 0 || len(pop.Groups) == 0 {
		return NoGroup, false
	}

	leaders := make([]int, len(pop.Groups))
	for i, g := range pop.Groups {
		leaders[i] = g.Leader
	}
	bg := pop.argmin(leaders)
	leader := pop.Agents[leaders[bg]]
	walker := pop.Agents[pop.Walkers[pop.argmin(pop.Walkers)]]

	if !(walker.Fitness < leader.Fitness) {
		return NoGroup, false
	}
	leader.Position = copyVec(walker.Position)
	leader.Fitness = walker.Fitness
	return pop.Groups[bg].ID, true
}

// Elitism overwrites one walker's position with a copy of best so the
// incumbent optimum re-enters the search. It returns the index of the walker
// it wrote to, or -1 when the walker band is empty.
func Elitism(pop *Population, best Solution, sel ElitismSelection, rng Rand) int {
	if len(pop.Walkers) == 0 {
		return -1
	}
	idx := pop.Walkers[0]
	if sel == ElitismRandom {
		idx = pop.Walkers[rng.Intn(len(pop.Walkers))]
	}
	pop.Agents[idx].Position = copyVec(best.Position)
	return idx
}
