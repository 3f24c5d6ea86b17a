// Package search implements the per-unit bounded-depth path planner of
// spec.md §4.C: a forward dynamic-programming search over a shared Clone
// that finds the trajectory maximizing halite gained per elapsed turn
// against a target dropoff.
//
// It is grounded on the teacher's negamax in internal/engine/search.go:
// the same shape of depth-checked relaxation loop, deadline checked once
// per depth iteration rather than on every node, and "keep existing on tie"
// relaxation — generalized from a two-player minimax tree to a
// single-agent DP lattice over (depth, cell).
package search

import (
	"sync"
	"time"

	"github.com/hailam/harvesterbot/internal/clone"
	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/grid"
	"github.com/hailam/harvesterbot/internal/plan"
)

// Config bundles the per-call search parameters spec.md §4.C lists as
// inputs beyond the unit and target.
type Config struct {
	PenaltyFactor  game.PenaltyFactor
	MaxDepth       int
	DefensiveTurns int
	Deadline       time.Time
}

// OptimalPath is the result spec.md §4.C specifies: the depth actually
// completed, the cargo at that depth's endpoint, and the reconstructed
// trajectory. An empty Path signals "no plan".
type OptimalPath struct {
	SearchDepth int
	FinalHalite int
	Path        []plan.PathSegment
}

// miningDelta is one link of the per-trajectory mining-slot override
// chain: a copy-on-write alternative that avoids cloning a map at every
// node, per spec.md §9 "Mining-override maps".
type miningDelta struct {
	parent *miningDelta
	cell   int
	mask   uint32
}

func effectiveMask(cl *clone.Clone, cellIdx int, p grid.Position, override *miningDelta) uint32 {
	for d := override; d != nil; d = d.parent {
		if d.cell == cellIdx {
			return d.mask
		}
	}
	return cl.AvailableMinings(p)
}

func lsbSlot(mask uint32) int {
	if mask == 0 {
		return -1
	}
	for k := 0; k < clone.MaxMiningSlots; k++ {
		if mask&(1<<uint(k)) != 0 {
			return k
		}
	}
	return -1
}

// node is the search-state cell for one (depth, position) pair.
type node struct {
	visited    bool
	halite     int
	penalty    float64
	override   *miningDelta
	miningSlot int
	inDir      grid.Direction
}

// Arena pools the depth-major node arrays the search allocates once per
// call, per spec.md §9 "Search state memory": "allocate it once per C call
// from a pooled arena rather than re-allocating per depth."
type Arena struct {
	pool sync.Pool
}

// NewArena creates an empty pool. A single Arena should be shared across
// every Search call the scheduler makes in one turn.
func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) get(n int) []node {
	if v := a.pool.Get(); v != nil {
		s := v.([]node)
		if cap(s) >= n {
			s = s[:n]
			for i := range s {
				s[i] = node{}
			}
			return s
		}
	}
	return make([]node, n)
}

func (a *Arena) put(s []node) {
	a.pool.Put(s) //nolint:staticcheck // slice reused, not its backing pointer identity
}

// Searcher runs the per-unit path search, reusing a pooled node arena
// across calls within a turn.
type Searcher struct {
	arena *Arena
}

// New creates a Searcher backed by arena. Pass the same arena to every
// Searcher constructed within one turn's scheduling pass so the pool is
// actually shared.
func New(arena *Arena) *Searcher {
	if arena == nil {
		arena = NewArena()
	}
	return &Searcher{arena: arena}
}

func movePenalty(factor game.PenaltyFactor, moveCost int, turn, maxTurns int) float64 {
	switch factor {
	case game.PenaltyOne:
		return float64(moveCost)
	case game.PenaltyDecaying:
		if maxTurns <= 0 {
			return float64(moveCost)
		}
		return float64(moveCost) * (1 - float64(turn)/float64(maxTurns))
	default:
		return 0
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// nearestStructureOwner returns the owner of whichever structure (any
// player's) is nearest to p, used by the defensive-move guard.
func nearestStructureOwner(f *game.Frame, p grid.Position) (game.PlayerID, bool) {
	best := game.PlayerID(0)
	bestDist := -1
	found := false
	for _, s := range f.Structures {
		d := f.Board.Distance(p, s.Pos)
		if !found || d < bestDist {
			best, bestDist, found = s.Owner, d, true
		}
	}
	return best, found
}

// Search runs the bounded-depth DP described in spec.md §4.C for one unit,
// searching for the best trajectory back to end. turnsUnderway is the
// number of turns since the unit last touched one of its owner's
// dropoffs, used only in the per-turn score denominator.
func (s *Searcher) Search(f *game.Frame, cl *clone.Clone, unit game.Unit, turnsUnderway int, end grid.Position, cfg Config) OptimalPath {
	board := cl.Board()
	maxDepth := cfg.MaxDepth
	if maxDepth < 1 {
		return OptimalPath{}
	}

	n := board.NumCells()
	nodes := s.arena.get(maxDepth * n)
	defer s.arena.put(nodes)

	startIdx := board.DepthIndex(0, unit.Pos)
	nodes[startIdx] = node{visited: true, halite: unit.Cargo}

	maxDX := cfg.MaxDepthClampedAxis(board.W)
	maxDY := cfg.MaxDepthClampedAxis(board.H)

	d := 0
	for d < maxDepth-1 && time.Now().Before(cfg.Deadline) {
		s.relaxDepth(f, cl, nodes, board, unit, d, maxDX(d), maxDY(d), cfg)
		d++
	}
	searchDepth := d

	return s.reconstruct(nodes, board, unit, end, turnsUnderway, searchDepth)
}

// MaxDepthClampedAxis returns a function of d giving the diamond's
// half-width on one axis: min(d, size/2).
func (cfg Config) MaxDepthClampedAxis(size int) func(int) int {
	half := size / 2
	return func(d int) int {
		if d < half {
			return d
		}
		return half
	}
}

func (s *Searcher) relaxDepth(f *game.Frame, cl *clone.Clone, nodes []node, board grid.Board, unit game.Unit, d, maxDX, maxDY int, cfg Config) {
	start := unit.Pos
	for dx := -maxDX; dx <= maxDX; dx++ {
		for dy := -maxDY; dy <= maxDY; dy++ {
			if abs(dx)+abs(dy) > d {
				continue
			}
			p := board.Normalize(grid.Position{X: start.X + dx, Y: start.Y + dy})
			idx := board.DepthIndex(d, p)
			cur := nodes[idx]
			if !cur.visited {
				continue
			}
			s.relaxFrom(f, cl, nodes, board, unit, d, p, cur, cfg)
		}
	}
}

func (s *Searcher) relaxFrom(f *game.Frame, cl *clone.Clone, nodes []node, board grid.Board, unit game.Unit, d int, p grid.Position, cur node, cfg Config) {
	cellIdx := board.Index(p)
	mask := effectiveMask(cl, cellIdx, p, cur.override)
	miningPossible := mask != 0 && !cl.HasStructure(p)

	var sea, slot int
	if miningPossible {
		slot = lsbSlot(mask)
		sea = cl.HaliteAfterMines(p, slot)
		if cl.IsOccupied(p, d) {
			sea = 0
		}
	}
	moveCost := sea / f.Constants.MoveCostRatio
	haliteAfterMove := cur.halite - moveCost
	haliteAfterGather := cur.halite + ceilDiv(sea, f.Constants.ExtractRatio)
	if haliteAfterGather > f.Constants.MaxCargo {
		haliteAfterGather = f.Constants.MaxCargo
	}

	for _, dir := range grid.Cardinals {
		np := board.Move(p, dir)
		if d == 0 {
			if _, occupied := f.UnitAt(np); occupied {
				continue
			}
		}
		if f.Turn+d < cfg.DefensiveTurns {
			if owner, ok := nearestStructureOwner(f, np); !ok || owner != unit.Owner {
				continue
			}
		}
		if haliteAfterMove < 0 {
			continue
		}
		penalty := cur.penalty + movePenalty(cfg.PenaltyFactor, moveCost, f.Turn+d, f.Constants.MaxTurns)
		s.relax(nodes, board.DepthIndex(d+1, np), node{
			visited:    true,
			halite:     haliteAfterMove,
			penalty:    penalty,
			override:   cur.override,
			miningSlot: -1,
			inDir:      dir,
		})
	}

	if miningPossible {
		s.relax(nodes, board.DepthIndex(d+1, p), node{
			visited:    true,
			halite:     haliteAfterGather,
			penalty:    cur.penalty,
			override:   &miningDelta{parent: cur.override, cell: cellIdx, mask: mask &^ (1 << uint(slot))},
			miningSlot: slot,
			inDir:      grid.Still,
		})
	}
}

// relax applies the relaxation rule of spec.md §4.C: update the successor
// iff it is not yet visited, or the new value strictly improves on the
// old. Ties keep the existing entry (first-found wins), preserving
// deterministic trajectories given a deterministic Clone (spec.md §9
// "Tie-breaking in C").
func (s *Searcher) relax(nodes []node, idx int, candidate node) {
	existing := nodes[idx]
	if !existing.visited {
		nodes[idx] = candidate
		return
	}
	oldScore := float64(existing.halite) - existing.penalty
	newScore := float64(candidate.halite) - candidate.penalty
	if newScore > oldScore {
		nodes[idx] = candidate
	}
}

func (s *Searcher) reconstruct(nodes []node, board grid.Board, unit game.Unit, end grid.Position, turnsUnderway, searchDepth int) OptimalPath {
	bestD := -1
	bestScore := 0.0
	for d := 1; d < searchDepth; d++ {
		idx := board.DepthIndex(d, end)
		nd := nodes[idx]
		if !nd.visited {
			continue
		}
		score := (float64(nd.halite) - nd.penalty) / float64(d+turnsUnderway)
		if bestD == -1 || score > bestScore {
			bestD, bestScore = d, score
		}
	}

	if bestD == -1 || bestScore <= 0 {
		return OptimalPath{SearchDepth: searchDepth}
	}

	segments := make([]plan.PathSegment, bestD)
	cur := end
	for d := bestD; d > 0; d-- {
		nd := nodes[board.DepthIndex(d, cur)]
		predPos := cur
		if nd.inDir != grid.Still {
			predPos = board.Move(cur, nd.inDir.Invert())
		}
		predNode := nodes[board.DepthIndex(d-1, predPos)]
		segments[d-1] = plan.PathSegment{
			Dir:                 nd.inDir,
			ExpectedCargoBefore: predNode.halite,
			MiningSlot:          nd.miningSlot,
		}
		cur = predPos
	}

	return OptimalPath{
		SearchDepth: searchDepth,
		FinalHalite: nodes[board.DepthIndex(bestD, end)].halite,
		Path:        segments,
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
