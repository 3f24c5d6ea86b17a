package plan

import (
	"testing"

	"github.com/hailam/harvesterbot/internal/grid"
)

func newTestPlan() *Plan {
	return &Plan{
		Path: []PathSegment{
			{Dir: grid.East, ExpectedCargoBefore: 0},
			{Dir: grid.Still, ExpectedCargoBefore: 0, MiningSlot: 0},
			{Dir: grid.Still, ExpectedCargoBefore: 40, MiningSlot: 1},
			{Dir: grid.West, ExpectedCargoBefore: 70},
		},
		ExpectedFinalCargo: 70,
	}
}

func TestNextMoveAndAdvance(t *testing.T) {
	p := newTestPlan()

	if got := p.NextMove(); got != grid.East {
		t.Fatalf("NextMove() = %v, want East", got)
	}
	p.Advance()
	if got := p.NextMove(); got != grid.Still {
		t.Fatalf("NextMove() after advance = %v, want Still", got)
	}
	if p.Finished() {
		t.Fatalf("plan reported finished early")
	}
}

func TestFinishedAfterWalkingWholePath(t *testing.T) {
	p := newTestPlan()
	for !p.Finished() {
		p.Advance()
	}
	if got := p.NextMove(); got != grid.Still {
		t.Errorf("NextMove() of finished plan = %v, want Still", got)
	}
	if got := p.ExpectedHalite(); got != p.ExpectedFinalCargo {
		t.Errorf("ExpectedHalite() of finished plan = %d, want %d", got, p.ExpectedFinalCargo)
	}
}

func TestEmptyPlanSignalsNoPath(t *testing.T) {
	var p *Plan
	if !p.Empty() {
		t.Error("nil *Plan should be Empty")
	}
	p = &Plan{}
	if !p.Empty() {
		t.Error("Plan with no segments should be Empty")
	}
}
