// Package reconcile implements the per-turn collision reconciliation of
// spec.md §4.F: each unit's desired move plus an optional spawn intent is
// reduced to a two-phase max-flow problem on internal/flow, producing a
// simultaneously collision-free move set and a spawn decision.
//
// It is grounded on internal/engine/engine.go's SearchWithLimits: the same
// "build a fixed node/edge shape once, run a bounded pass, decode a result
// from final state" structure, here applied to a flow graph instead of a
// goroutine fan-out.
package reconcile

import (
	"github.com/hailam/harvesterbot/internal/flow"
	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/grid"
)

// node ids fixed by spec.md §4.F: Source=0, Sink=1 (from package flow),
// Spawn=2; units and cells follow.
const spawnNode = 2
const firstUnitNode = 3

// Request is one unit's desired move going into reconciliation.
type Request struct {
	Unit    game.UnitID
	Pos     grid.Position
	Desired grid.Direction
}

// Result is what spec.md §4.F calls the reconciler's output.
type Result struct {
	SafeMoves       map[game.UnitID]grid.Direction
	IsSpawnPossible bool
}

// Reconcile builds and saturates the two-phase flow graph described in
// spec.md §4.F and decodes it into a Result. ownShipyard is the cell a
// requested spawn would occupy; it is ignored when spawnDesired is false.
func Reconcile(board grid.Board, reqs []Request, spawnDesired bool, ownShipyard grid.Position, ignoreCollisionsAtDropoff bool, ownStructures map[grid.Position]bool) Result {
	numCells := board.NumCells()
	cellBase := firstUnitNode + len(reqs)
	g := flow.New(cellBase + numCells)

	unitNode := make(map[game.UnitID]int, len(reqs))
	cellNode := func(p grid.Position) int { return cellBase + board.Index(p) }

	// Rule 3 of spec.md §4.F applies to every cell on the board, not just
	// ones a unit happens to want this turn, so the spawn target has a
	// Sink edge even when no unit is contending for it.
	for y := 0; y < board.H; y++ {
		for x := 0; x < board.W; x++ {
			p := grid.Position{X: x, Y: y}
			capacity := 1
			if ignoreCollisionsAtDropoff && ownStructures[p] {
				capacity = 10
			}
			g.AddEdge(cellNode(p), flow.Sink, capacity)
		}
	}

	for i, r := range reqs {
		un := firstUnitNode + i
		unitNode[r.Unit] = un
		g.AddEdge(flow.Source, un, 1)

		dest := board.Move(r.Pos, r.Desired)
		g.AddEdge(un, cellNode(dest), 1)
	}

	if spawnDesired {
		g.AddEdge(flow.Source, spawnNode, 1)
		g.AddEdge(spawnNode, cellNode(ownShipyard), 1)
	}

	g.Saturate()

	// Phase 2: fallback edges.
	for _, r := range reqs {
		if r.Desired == grid.Still {
			continue
		}
		g.AddEdge(unitNode[r.Unit], cellNode(r.Pos), 1)
	}
	if spawnDesired {
		g.AddEdge(spawnNode, flow.Sink, 1)
	}
	g.Saturate()

	safe := make(map[game.UnitID]grid.Direction, len(reqs))
	for _, r := range reqs {
		if r.Desired != grid.Still && g.Flow(unitNode[r.Unit], cellNode(r.Pos)) > 0 {
			safe[r.Unit] = grid.Still
		} else {
			safe[r.Unit] = r.Desired
		}
	}

	isSpawnPossible := spawnDesired && g.Flow(spawnNode, cellNode(ownShipyard)) > 0

	return Result{SafeMoves: safe, IsSpawnPossible: isSpawnPossible}
}
