package search

import (
	"testing"
	"time"

	"github.com/hailam/harvesterbot/internal/clone"
	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/grid"
)

func testFrame(w, h int) *game.Frame {
	b := grid.NewBoard(w, h)
	return &game.Frame{
		Board: b,
		Constants: game.Constants{
			MaxTurns:      50,
			SpawnCost:     1000,
			MaxCargo:      1000,
			ExtractRatio:  4,
			MoveCostRatio: 10,
		},
		Halite:   make([]int, b.NumCells()),
		Self:     0,
		Deadline: time.Now().Add(time.Second),
	}
}

func farDeadline() time.Time { return time.Now().Add(5 * time.Second) }

// TestSingleCellOfHalite covers spec.md §8 end-to-end scenario 1.
func TestSingleCellOfHalite(t *testing.T) {
	f := testFrame(8, 8)
	f.Structures = []game.Structure{{Pos: grid.Position{X: 0, Y: 0}, Owner: 0}}
	f.Halite[f.Board.Index(grid.Position{X: 4, Y: 0})] = 800
	f.Turn = 1

	cl := clone.New(f)
	unit := game.Unit{ID: 1, Owner: 0, Pos: grid.Position{X: 0, Y: 0}}

	s := New(NewArena())
	cfg := Config{PenaltyFactor: game.PenaltyZero, MaxDepth: 20, DefensiveTurns: 0, Deadline: farDeadline()}
	out := s.Search(f, cl, unit, 0, grid.Position{X: 0, Y: 0}, cfg)

	if len(out.Path) == 0 {
		t.Fatal("expected a non-empty path")
	}
	if out.FinalHalite <= 0 {
		t.Errorf("FinalHalite = %d, want > 0", out.FinalHalite)
	}
	stillCount := 0
	for _, seg := range out.Path {
		if seg.Dir == grid.Still {
			stillCount++
		}
	}
	if stillCount < 2 {
		t.Errorf("expected at least two Still segments at the halite cell, got %d", stillCount)
	}
}

// TestPathReconstructable covers spec.md §8 "Path reconstructable": walking
// the returned path from unit.Pos reaches end at step len(path), and the
// simulated cargo along the way matches FinalHalite.
func TestPathReconstructable(t *testing.T) {
	f := testFrame(8, 8)
	f.Structures = []game.Structure{{Pos: grid.Position{X: 0, Y: 0}, Owner: 0}}
	f.Halite[f.Board.Index(grid.Position{X: 3, Y: 0})] = 400
	f.Turn = 1

	cl := clone.New(f)
	unit := game.Unit{ID: 1, Owner: 0, Pos: grid.Position{X: 0, Y: 0}}

	s := New(NewArena())
	cfg := Config{PenaltyFactor: game.PenaltyZero, MaxDepth: 15, DefensiveTurns: 0, Deadline: farDeadline()}
	out := s.Search(f, cl, unit, 0, grid.Position{X: 0, Y: 0}, cfg)
	if len(out.Path) == 0 {
		t.Fatal("expected a non-empty path")
	}

	cur := unit.Pos
	cargo := unit.Cargo
	mined := make(map[grid.Position]int)
	for i, seg := range out.Path {
		if seg.ExpectedCargoBefore != cargo {
			t.Errorf("segment %d: ExpectedCargoBefore = %d, want %d", i, seg.ExpectedCargoBefore, cargo)
		}
		if seg.Dir == grid.Still {
			sea := cl.HaliteAfterMines(cur, seg.MiningSlot)
			cargo += (sea + f.Constants.ExtractRatio - 1) / f.Constants.ExtractRatio
			if cargo > f.Constants.MaxCargo {
				cargo = f.Constants.MaxCargo
			}
			mined[cur]++
		} else {
			// Leaving a cell costs the halite still on it over MoveCostRatio.
			if !cl.HasStructure(cur) {
				cargo -= cl.HaliteAfterMines(cur, mined[cur]) / f.Constants.MoveCostRatio
			}
			cur = f.Board.Move(cur, seg.Dir)
		}
	}

	if cur != (grid.Position{X: 0, Y: 0}) {
		t.Errorf("path ends at %v, want (0,0)", cur)
	}
	if cargo != out.FinalHalite {
		t.Errorf("simulated cargo = %d, want FinalHalite %d", cargo, out.FinalHalite)
	}
}

// TestEnemyProjectionZeroesHaliteFromDepthOne covers spec.md §8 scenario 6:
// once Clone.SetOccupied marks a cell from depth 1 onwards, a search that
// would otherwise gain halite there at depth >= 1 gains nothing, while an
// unoccupied Clone over the same map does.
func TestEnemyProjectionZeroesHaliteFromDepthOne(t *testing.T) {
	target := grid.Position{X: 6, Y: 5}
	start := grid.Position{X: 5, Y: 5}

	run := func(occupy bool) OptimalPath {
		f := testFrame(8, 8)
		f.Halite[f.Board.Index(target)] = 400
		cl := clone.New(f)
		if occupy {
			cl.SetOccupied(target, 1)
		}
		unit := game.Unit{ID: 1, Owner: 0, Pos: start}
		s := New(NewArena())
		cfg := Config{PenaltyFactor: game.PenaltyZero, MaxDepth: 4, DefensiveTurns: 0, Deadline: farDeadline()}
		return s.Search(f, cl, unit, 0, target, cfg)
	}

	unoccupied := run(false)
	if len(unoccupied.Path) == 0 || unoccupied.FinalHalite <= 0 {
		t.Fatalf("unoccupied case: expected a gainful path, got %+v", unoccupied)
	}

	occupied := run(true)
	if len(occupied.Path) != 0 {
		t.Errorf("occupied case: expected no plan (zero gain at depth>=1), got %+v", occupied)
	}
}

// TestBoundedRuntimeRespectsMaxDepth covers spec.md §8 "Bounded runtime":
// the completed search_depth never exceeds max_depth - 1.
func TestBoundedRuntimeRespectsMaxDepth(t *testing.T) {
	f := testFrame(8, 8)
	cl := clone.New(f)
	unit := game.Unit{ID: 1, Owner: 0, Pos: grid.Position{X: 0, Y: 0}}

	s := New(NewArena())
	cfg := Config{PenaltyFactor: game.PenaltyZero, MaxDepth: 6, DefensiveTurns: 0, Deadline: farDeadline()}
	out := s.Search(f, cl, unit, 0, grid.Position{X: 0, Y: 0}, cfg)

	if out.SearchDepth > cfg.MaxDepth-1 {
		t.Errorf("SearchDepth = %d, want <= %d", out.SearchDepth, cfg.MaxDepth-1)
	}
}

// TestExpiredDeadlineStopsBeforeFirstDepth covers the deadline check at the
// top of the outer loop: a deadline already in the past yields search_depth
// 0 and an empty path rather than blocking.
func TestExpiredDeadlineStopsBeforeFirstDepth(t *testing.T) {
	f := testFrame(8, 8)
	cl := clone.New(f)
	unit := game.Unit{ID: 1, Owner: 0, Pos: grid.Position{X: 0, Y: 0}}

	s := New(NewArena())
	cfg := Config{PenaltyFactor: game.PenaltyZero, MaxDepth: 10, DefensiveTurns: 0, Deadline: time.Now().Add(-time.Second)}
	out := s.Search(f, cl, unit, 0, grid.Position{X: 1, Y: 0}, cfg)

	if out.SearchDepth != 0 {
		t.Errorf("SearchDepth = %d, want 0", out.SearchDepth)
	}
	if len(out.Path) != 0 {
		t.Errorf("expected empty path, got %+v", out.Path)
	}
}
