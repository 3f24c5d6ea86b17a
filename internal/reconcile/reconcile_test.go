package reconcile

import (
	"testing"

	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/grid"
)

// TestTwoUnitsRacingToSameCell covers spec.md §8 scenario 2.
func TestTwoUnitsRacingToSameCell(t *testing.T) {
	board := grid.NewBoard(8, 8)
	reqs := []Request{
		{Unit: 1, Pos: grid.Position{X: 1, Y: 0}, Desired: grid.East},
		{Unit: 2, Pos: grid.Position{X: 3, Y: 0}, Desired: grid.West},
	}

	res := Reconcile(board, reqs, false, grid.Position{}, false, nil)

	if res.IsSpawnPossible {
		t.Error("IsSpawnPossible should be false when spawn was never requested")
	}

	moved := 0
	for _, r := range reqs {
		if res.SafeMoves[r.Unit] == r.Desired {
			moved++
		} else if res.SafeMoves[r.Unit] != grid.Still {
			t.Errorf("unit %d: unexpected safe move %v", r.Unit, res.SafeMoves[r.Unit])
		}
	}
	if moved != 1 {
		t.Errorf("expected exactly one unit to make its desired move, got %d", moved)
	}
}

// TestEndOfGameDropoffFlood covers spec.md §8 scenario 3.
func TestEndOfGameDropoffFlood(t *testing.T) {
	board := grid.NewBoard(8, 8)
	shipyard := grid.Position{X: 4, Y: 4}
	reqs := []Request{
		{Unit: 1, Pos: grid.Position{X: 3, Y: 4}, Desired: grid.East},
		{Unit: 2, Pos: grid.Position{X: 5, Y: 4}, Desired: grid.West},
		{Unit: 3, Pos: grid.Position{X: 4, Y: 3}, Desired: grid.South},
		{Unit: 4, Pos: grid.Position{X: 4, Y: 5}, Desired: grid.North},
	}
	ownStructures := map[grid.Position]bool{shipyard: true}

	res := Reconcile(board, reqs, false, grid.Position{}, true, ownStructures)

	for _, r := range reqs {
		if res.SafeMoves[r.Unit] != r.Desired {
			t.Errorf("unit %d: safe move = %v, want desired %v (flood should admit all four)", r.Unit, res.SafeMoves[r.Unit], r.Desired)
		}
	}
}

// TestCollisionFreedom covers spec.md §8 "Flow-based collision freedom":
// no two units ever share a safe-move destination.
func TestCollisionFreedom(t *testing.T) {
	board := grid.NewBoard(8, 8)
	center := grid.Position{X: 4, Y: 4}
	reqs := []Request{
		{Unit: 1, Pos: grid.Position{X: 3, Y: 4}, Desired: grid.East},
		{Unit: 2, Pos: grid.Position{X: 5, Y: 4}, Desired: grid.West},
		{Unit: 3, Pos: grid.Position{X: 4, Y: 3}, Desired: grid.South},
		{Unit: 4, Pos: grid.Position{X: 4, Y: 5}, Desired: grid.North},
	}
	res := Reconcile(board, reqs, false, grid.Position{}, false, nil)

	destinations := make(map[grid.Position]game.UnitID)
	for _, r := range reqs {
		dest := board.Move(r.Pos, res.SafeMoves[r.Unit])
		if owner, taken := destinations[dest]; taken {
			t.Errorf("cell %v claimed by both unit %d and unit %d", dest, owner, r.Unit)
		}
		destinations[dest] = r.Unit
	}
	if len(destinations) != len(reqs) {
		t.Errorf("expected %d distinct destinations, got %d", len(reqs), len(destinations))
	}
	_ = center
}

// TestSpawnSafeWhenShipyardClear covers the spawn-possible branch of
// spec.md §4.F's decode step.
func TestSpawnSafeWhenShipyardClear(t *testing.T) {
	board := grid.NewBoard(8, 8)
	shipyard := grid.Position{X: 0, Y: 0}
	reqs := []Request{
		{Unit: 1, Pos: grid.Position{X: 3, Y: 3}, Desired: grid.East},
	}

	res := Reconcile(board, reqs, true, shipyard, false, nil)

	if !res.IsSpawnPossible {
		t.Error("expected spawn to be possible when nothing contends for the shipyard cell")
	}
}

// TestSpawnContentionOmitsSpawn covers spec.md §7 "Spawn contention":
// a unit already sitting on the shipyard and moving Still denies the spawn.
func TestSpawnContentionOmitsSpawn(t *testing.T) {
	board := grid.NewBoard(8, 8)
	shipyard := grid.Position{X: 0, Y: 0}
	reqs := []Request{
		{Unit: 1, Pos: shipyard, Desired: grid.Still},
	}

	res := Reconcile(board, reqs, true, shipyard, false, nil)

	if res.IsSpawnPossible {
		t.Error("expected spawn to be denied when a unit occupies the shipyard cell")
	}
	if res.SafeMoves[1] != grid.Still {
		t.Errorf("unit sitting still should stay Still, got %v", res.SafeMoves[1])
	}
}
