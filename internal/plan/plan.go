// Package plan implements the Plan data model of spec.md §3/§4.D: an
// ordered trajectory of moves and mining events, with a cursor tracking how
// much of it has actually executed.
//
// It is grounded on the teacher's board.MoveList/UndoInfo idiom
// (internal/board/move.go): a small, fixed-shape value type with a
// position-tracking cursor, the same role PVTable.moves/length plays for a
// principal variation in internal/engine/search.go.
package plan

import "github.com/hailam/harvesterbot/internal/grid"

// PathSegment is one edge of a trajectory. MiningSlot is meaningful only
// when Dir is grid.Still: it is the ordinal index of this mining event on
// the target cell in the shared reservation.
type PathSegment struct {
	Dir                 grid.Direction
	ExpectedCargoBefore int
	MiningSlot          int
}

// Plan is the accepted trajectory for one unit: an ordered list of
// PathSegments plus a cursor (Step) and the cargo the unit is expected to
// hold once the whole plan has executed (ExpectedFinalCargo).
type Plan struct {
	Path               []PathSegment
	Step               int
	ExpectedFinalCargo int
}

// Empty reports whether this plan carries no path at all — the "no plan"
// signal search.Search returns when no positive-score depth exists.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Path) == 0
}

// Finished reports whether the plan's cursor has reached the end of its
// path.
func (p *Plan) Finished() bool {
	return p.Step >= len(p.Path)
}

// NextMove returns the direction the unit should attempt this turn: the
// segment at the cursor, or Still if the plan is finished.
func (p *Plan) NextMove() grid.Direction {
	if p.Finished() {
		return grid.Still
	}
	return p.Path[p.Step].Dir
}

// Advance moves the cursor forward by one step. It must only be called
// once the reconciler has actually let the intended move execute (spec.md
// §4.G step 13).
func (p *Plan) Advance() {
	if !p.Finished() {
		p.Step++
	}
}

// ExpectedHalite returns the cargo the unit was expected to hold before
// executing the segment at the cursor.
func (p *Plan) ExpectedHalite() int {
	if p.Finished() {
		return p.ExpectedFinalCargo
	}
	return p.Path[p.Step].ExpectedCargoBefore
}

// ExpectedTotalHalite returns the cargo the unit is expected to hold once
// the whole plan finishes.
func (p *Plan) ExpectedTotalHalite() int {
	return p.ExpectedFinalCargo
}
