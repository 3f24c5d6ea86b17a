// Package clone implements the Reservation Map ("Clone") described in
// spec.md §3/§4.B: the per-turn, per-cell shared predicted world that every
// unit's path search reads and mutates as it commits a plan, so concurrent
// per-unit searches never contend for the same mining event.
//
// It is grounded on the teacher's make/unmake idiom in
// internal/board/position.go (MakeMove/UnmakeMove, paired, XOR-based
// bitboard updates) generalized from a single 64-bit occupancy board to a
// per-cell 25-bit mining-slot mask.
package clone

import (
	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/grid"
	"github.com/hailam/harvesterbot/internal/plan"
)

// MaxMiningSlots bounds the number of scheduled future minings tracked per
// cell; spec.md calls this out as "a 25-bit mask".
const MaxMiningSlots = 25

const noOccupation = -1
const noOwner = game.PlayerID(-1)

// Clone is the mutable reservation state for one turn's planning pass. It
// is owned exclusively by the scheduler for the duration of the turn (see
// spec.md §5 "Resource policy") and discarded at turn end.
type Clone struct {
	board     grid.Board
	constants game.Constants
	halite    []int

	minings              []uint32 // per-cell available-mining-slot bitmask
	turnsUntilOccupation []int    // per-cell; noOccupation if unset
	structureOwner       []game.PlayerID
}

// New builds a fresh Clone from a Frame: all-ones minings on every
// non-structure cell, no projected enemy occupation, structures copied
// verbatim.
func New(f *game.Frame) *Clone {
	n := f.Board.NumCells()
	c := &Clone{
		board:                f.Board,
		constants:            f.Constants,
		halite:               append([]int(nil), f.Halite...),
		minings:              make([]uint32, n),
		turnsUntilOccupation: make([]int, n),
		structureOwner:       make([]game.PlayerID, n),
	}

	fullMask := uint32(1)<<MaxMiningSlots - 1
	for i := range c.minings {
		c.minings[i] = fullMask
		c.turnsUntilOccupation[i] = noOccupation
		c.structureOwner[i] = noOwner
	}
	for _, s := range f.Structures {
		idx := f.Board.Index(s.Pos)
		c.structureOwner[idx] = s.Owner
		c.minings[idx] = 0
	}
	return c
}

// Board returns the torus this Clone was built over.
func (c *Clone) Board() grid.Board { return c.board }

// HasStructure reports whether any player's structure occupies p.
func (c *Clone) HasStructure(p grid.Position) bool {
	return c.structureOwner[c.board.Index(p)] != noOwner
}

// HasOwnStructure reports whether p carries a structure owned by player.
func (c *Clone) HasOwnStructure(p grid.Position, player game.PlayerID) bool {
	return c.structureOwner[c.board.Index(p)] == player
}

// IsOccupied reports whether p is projected as enemy-owned from depth
// onwards: turns_until_occupation[p] set and <= depth.
func (c *Clone) IsOccupied(p grid.Position, depth int) bool {
	t := c.turnsUntilOccupation[c.board.Index(p)]
	return t != noOccupation && t <= depth
}

// SetOccupied records that p becomes enemy-owned from depth t onwards.
func (c *Clone) SetOccupied(p grid.Position, t int) {
	c.turnsUntilOccupation[c.board.Index(p)] = t
}

// AvailableMinings returns the current mining-slot bitmask at p.
func (c *Clone) AvailableMinings(p grid.Position) uint32 {
	return c.minings[c.board.Index(p)]
}

// HaliteAfterMines returns the halite remaining at p after k successful
// mining events, via repeated floor division by ExtractRatio.
func (c *Clone) HaliteAfterMines(p grid.Position, k int) int {
	h := c.halite[c.board.Index(p)]
	for i := 0; i < k; i++ {
		h -= h / c.constants.ExtractRatio
	}
	return h
}

// lsbSlot returns the ordinal index of the least-significant set bit in
// mask, or -1 if mask is zero.
func lsbSlot(mask uint32) int {
	if mask == 0 {
		return -1
	}
	for k := 0; k < MaxMiningSlots; k++ {
		if mask&(1<<uint(k)) != 0 {
			return k
		}
	}
	return -1
}

// NextMiningSlot returns the least-significant available slot at p, or -1
// if mining is not possible there (no free slot, or p carries a
// structure).
func (c *Clone) NextMiningSlot(p grid.Position) int {
	if c.HasStructure(p) {
		return -1
	}
	return lsbSlot(c.minings[c.board.Index(p)])
}

// claim toggles bit `slot` in minings[p]. Advance/Undo both call this; the
// XOR is its own inverse, which is the self-inverse invariant spec.md §3
// and §8 require.
func (c *Clone) claim(p grid.Position, slot int) {
	c.minings[c.board.Index(p)] ^= 1 << uint(slot)
}

// Advance walks plan from its cursor, starting at unit.Pos, XOR-ing the
// claimed mining slot for every Still segment and stepping the current
// cell for every cardinal segment. It does not mutate plan itself.
func (c *Clone) Advance(p *plan.Plan, unit game.Unit) {
	c.walk(p, unit, c.claim)
}

// Undo replays the identical XOR sequence Advance applied, restoring
// minings to the state before the plan was committed. XOR is self-inverse,
// so Undo is literally the same walk as Advance.
func (c *Clone) Undo(p *plan.Plan, unit game.Unit) {
	c.walk(p, unit, c.claim)
}

// walk drives the shared stepping logic used by Advance/Undo, calling
// onMine for every Still segment. GetExpectation steps through a plan the
// same way in its own read-only loop so that it can track cargo.
func (c *Clone) walk(p *plan.Plan, unit game.Unit, onMine func(grid.Position, int)) {
	cur := unit.Pos
	for i := p.Step; i < len(p.Path); i++ {
		seg := p.Path[i]
		if seg.Dir == grid.Still {
			onMine(cur, seg.MiningSlot)
			continue
		}
		cur = c.board.Move(cur, seg.Dir)
	}
}

// GetExpectation simulates plan over the current Clone without mutating it,
// returning the cargo the unit should hold on completion given present
// reservations. It is the reference value the scheduler compares against
// plan.ExpectedTotalHalite to detect divergence (spec.md §4.G step 5,
// §8 scenario 4).
func (c *Clone) GetExpectation(p *plan.Plan, unit game.Unit) int {
	cargo := unit.Cargo
	cur := unit.Pos
	for i := p.Step; i < len(p.Path); i++ {
		seg := p.Path[i]
		if seg.Dir == grid.Still {
			if c.HasStructure(cur) {
				continue
			}
			mask := c.minings[c.board.Index(cur)]
			if mask&(1<<uint(seg.MiningSlot)) == 0 {
				// The reserved slot has already been consumed by someone
				// else's committed plan: no gain accrues here.
				continue
			}
			sea := c.HaliteAfterMines(cur, seg.MiningSlot)
			gain := (sea + c.constants.ExtractRatio - 1) / c.constants.ExtractRatio
			cargo += gain
			if cargo > c.constants.MaxCargo {
				cargo = c.constants.MaxCargo
			}
			continue
		}
		cur = c.board.Move(cur, seg.Dir)
	}
	return cargo
}

// FindCloseHalite breadth-first scans cells reachable from start and
// returns the one maximizing halite_at(p)/distance(start,p). It is used to
// project where an enemy unit will mine next (spec.md §4.G step 4).
func (c *Clone) FindCloseHalite(start grid.Position) grid.Position {
	visited := make(map[grid.Position]bool)
	queue := []grid.Position{start}
	visited[start] = true

	best := start
	bestScore := -1.0

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		if p != start {
			d := c.board.Distance(start, p)
			score := float64(c.halite[c.board.Index(p)]) / float64(d)
			if score > bestScore {
				bestScore, best = score, p
			}
		}

		for _, dir := range grid.Cardinals {
			np := c.board.Move(p, dir)
			if !visited[np] {
				visited[np] = true
				queue = append(queue, np)
			}
		}
	}

	return best
}
