package planstore

import (
	"testing"

	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/grid"
	"github.com/hailam/harvesterbot/internal/plan"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open()
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	p := &plan.Plan{
		Path: []plan.PathSegment{
			{Dir: grid.East, ExpectedCargoBefore: 0},
			{Dir: grid.Still, ExpectedCargoBefore: 10, MiningSlot: 2},
		},
		Step:               1,
		ExpectedFinalCargo: 42,
	}

	if err := s.Save(7, p); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, found, err := s.Load(7)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want true")
	}
	if got.ExpectedFinalCargo != p.ExpectedFinalCargo || got.Step != p.Step || len(got.Path) != len(p.Path) {
		t.Errorf("round-tripped plan = %+v, want %+v", got, p)
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.Load(99)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if found {
		t.Error("Load() found = true for a never-saved unit")
	}
}

func TestPruneExceptRemovesStaleEntries(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []game.UnitID{1, 2, 3} {
		if err := s.Save(id, &plan.Plan{ExpectedFinalCargo: int(id)}); err != nil {
			t.Fatalf("Save(%d) error: %v", id, err)
		}
	}

	if err := s.PruneExcept(map[game.UnitID]bool{2: true}); err != nil {
		t.Fatalf("PruneExcept() error: %v", err)
	}

	if _, found, _ := s.Load(1); found {
		t.Error("unit 1 should have been pruned")
	}
	if _, found, _ := s.Load(3); found {
		t.Error("unit 3 should have been pruned")
	}
	if _, found, _ := s.Load(2); !found {
		t.Error("unit 2 should have survived the prune")
	}
}
