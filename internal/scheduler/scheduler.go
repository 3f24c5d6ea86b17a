// Package scheduler implements the per-turn Turn Scheduler of spec.md
// §4.G: the sole place that ties the Clone, the per-unit search, the plan
// cache, and collision reconciliation together into one Controller.
//
// It is grounded on internal/engine/engine.go's Engine type: a long-lived
// struct holding cross-call state (there: transposition table and search
// stats; here: the plan cache and per-unit turns-underway counters) with
// one per-turn entry point that reads a fixed input and returns a result,
// the same shape as Engine.SearchWithLimits. The enemy-movement
// projection (step 4 and step 10 below) has no state of its own beyond
// what this package already tracks, so it lives here directly rather than
// as a separate package, the same way the teacher keeps `isDraw` and
// quiescence helpers inside engine/search.go instead of hiving them off.
package scheduler

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/harvesterbot/internal/clone"
	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/grid"
	"github.com/hailam/harvesterbot/internal/plan"
	"github.com/hailam/harvesterbot/internal/planstore"
	"github.com/hailam/harvesterbot/internal/reconcile"
	"github.com/hailam/harvesterbot/internal/search"
)

// acceptDepthThreshold is the empirical "search_depth > 80" cutoff
// spec.md §9 says must be preserved verbatim: correctness tests depend on
// it even though its derivation is unrecorded.
const acceptDepthThreshold = 80

// dropoffFloodTurnsLeft is the turns_left threshold below which the
// reconciler stops treating a shared dropoff cell as a collision
// (spec.md §4.G step 12).
const dropoffFloodTurnsLeft = 15

// searchDepthMargin is subtracted from turns_left when clamping
// max_search_depth, per spec.md §4.G step 7.
const searchDepthMargin = 4

// fourPlayerDefensiveTurns is the defensive_turns value used in 4-player
// games; 2-player games use 0 (the guard disabled).
const fourPlayerDefensiveTurns = 150

// Config bundles the controller configuration fields spec.md §6 lists.
type Config struct {
	Name                        string
	MaxSearchDepth              int
	ShipBuildFactor             float64
	SimulateEnemyEnabled        bool
	RecalculatePathsEnabled     bool
	AvoidEnemyCollisionsEnabled bool
	PenaltyFactor               game.PenaltyFactor
	FourPlayerMode              bool
}

var _ game.Controller = (*Scheduler)(nil)

// Scheduler is the planner Controller: the only variant spec.md §9 says
// must actually be implemented.
type Scheduler struct {
	cfg Config

	plans         map[game.UnitID]*plan.Plan
	turnsUnderway map[game.UnitID]int
	lastEnemyPos  map[game.UnitID]grid.Position

	shouldBuildUnit bool
	searcher        *search.Searcher
	store           *planstore.Store
}

// New creates a Scheduler with an empty plan cache and should_build_unit
// starting true, per spec.md §8 scenario 5.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:             cfg,
		plans:           make(map[game.UnitID]*plan.Plan),
		turnsUnderway:   make(map[game.UnitID]int),
		lastEnemyPos:    make(map[game.UnitID]grid.Position),
		shouldBuildUnit: true,
		searcher:        search.New(search.NewArena()),
	}
}

// WithStore attaches a planstore.Store the scheduler mirrors every
// accepted or pruned plan into, on top of its in-process map. Passing nil
// disables mirroring (the default); cmd/harvesterbot wires a real store.
func (s *Scheduler) WithStore(store *planstore.Store) *Scheduler {
	s.store = store
	return s
}

// Init satisfies game.Controller. Nothing in this scheduler needs a
// one-time setup beyond what New already establishes.
func (s *Scheduler) Init(f *game.Frame) {}

// getPlan returns the cached plan for id, consulting the attached
// planstore.Store on first sight of a unit id this process hasn't built a
// plan for yet. This is what makes the store a real second source of
// truth rather than a write-only mirror: a controller process restarted
// mid-match (the in-process s.plans map starts empty again) recovers
// every unit's committed plan from the store instead of treating every
// unit as freshly needing a recompute.
func (s *Scheduler) getPlan(id game.UnitID) *plan.Plan {
	p, ok := s.plans[id]
	if ok {
		return p
	}
	if s.store != nil {
		if stored, found, err := s.store.Load(id); err == nil && found {
			s.plans[id] = stored
			return stored
		}
	}
	p = &plan.Plan{}
	s.plans[id] = p
	return p
}

func hasOwnStructureAt(f *game.Frame, p grid.Position, owner game.PlayerID) bool {
	for _, st := range f.Structures {
		if st.Owner == owner && st.Pos == p {
			return true
		}
	}
	return false
}

// Run executes spec.md §4.G's per-turn procedure end to end.
func (s *Scheduler) Run(f *game.Frame) []game.Command {
	ownUnits := f.OwnUnits()

	// Step 1: turns-underway bookkeeping, with stale-entry pruning.
	present := make(map[game.UnitID]bool, len(ownUnits))
	for _, u := range ownUnits {
		present[u.ID] = true
		cur, known := s.turnsUnderway[u.ID]
		switch {
		case !known:
			s.turnsUnderway[u.ID] = 0
		case hasOwnStructureAt(f, u.Pos, u.Owner):
			s.turnsUnderway[u.ID] = 0
		default:
			s.turnsUnderway[u.ID] = cur + 1
		}
	}
	for id := range s.turnsUnderway {
		if !present[id] {
			delete(s.turnsUnderway, id)
			delete(s.plans, id)
		}
	}

	// Step 2: fresh Clone for this turn.
	cl := clone.New(f)

	// Step 3: replay every cached plan's reservations.
	for _, u := range ownUnits {
		p := s.getPlan(u.ID)
		if !p.Empty() {
			cl.Advance(p, u)
		}
	}

	// Step 4: enemy projection.
	if s.cfg.SimulateEnemyEnabled {
		for _, u := range f.Units {
			if u.Owner == f.Self {
				continue
			}
			target := cl.FindCloseHalite(u.Pos)
			cl.SetOccupied(target, f.Board.Distance(u.Pos, target))
		}
	}

	// Steps 5-6: recompute priority, sorted descending.
	type candidate struct {
		unit     game.Unit
		priority float64
	}
	candidates := make([]candidate, 0, len(ownUnits))
	for _, u := range ownUnits {
		p := s.getPlan(u.ID)
		var priority float64
		switch {
		case p.Empty() || p.Finished():
			priority = 100000
		case s.cfg.RecalculatePathsEnabled:
			priority = absFloat(float64(p.ExpectedHalite()-u.Cargo)) +
				absFloat(float64(p.ExpectedTotalHalite()-cl.GetExpectation(p, u)))
		default:
			priority = 0
		}
		candidates = append(candidates, candidate{unit: u, priority: priority})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority > candidates[j].priority
	})

	turnsLeft := f.TurnsLeft()
	defensiveTurns := 0
	if s.cfg.FourPlayerMode {
		defensiveTurns = fourPlayerDefensiveTurns
	}
	maxDepth := clampInt(s.cfg.MaxSearchDepth, 0, turnsLeft-searchDepthMargin)

	// Step 7: bounded recomputation loop, gated by a context deadline
	// instead of a raw time.Now() check — the idiomatic Go analogue of the
	// teacher's TimeManager. The Clone is single-writer state threaded
	// through each unit's undo/search/advance in strict priority order
	// (spec.md §5 "ordering guarantees"), so this stays one goroutine: a
	// worker pool would race on Clone mutation, which is exactly the
	// contention the reservation model exists to avoid.
	ctx, cancel := context.WithDeadline(context.Background(), f.Deadline)
	defer cancel()
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, c := range candidates {
			if c.priority <= 0 {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.recompute(f, cl, c.unit, maxDepth, defensiveTurns, turnsLeft)
		}
		return nil
	})
	// A deadline-exceeded error here is the normal "ran out of turn budget"
	// outcome of spec.md §7, not a failure: whatever plans got committed
	// stand, and units without one contribute Still downstream.
	_ = g.Wait()

	// Step 8: collect desired moves, then compact mining slots.
	desired := make(map[game.UnitID]grid.Direction, len(ownUnits))
	for _, u := range ownUnits {
		desired[u.ID] = s.getPlan(u.ID).NextMove()
	}
	s.compactMiningSlots(f, ownUnits)

	// Step 9: feasibility enforcement.
	for _, u := range ownUnits {
		if desired[u.ID] == grid.Still {
			continue
		}
		moveCost := f.HaliteAt(u.Pos) / f.Constants.MoveCostRatio
		if moveCost > u.Cargo {
			desired[u.ID] = grid.Still
		}
	}

	// Step 10: avoid enemy (4-player mode only).
	if s.cfg.FourPlayerMode && s.cfg.AvoidEnemyCollisionsEnabled {
		threatened := s.projectedEnemyCells(f)
		for _, u := range ownUnits {
			dest := f.Board.Move(u.Pos, desired[u.ID])
			if threatened[dest] {
				desired[u.ID] = grid.Still
			}
		}
	}
	s.rememberEnemyPositions(f)

	// Step 11: spawn decision.
	spawnDesired := f.OwnBankedHalite >= f.Constants.SpawnCost && s.shouldBuildUnit

	// Step 12: reconciliation. The home shipyard is taken to be the first of
	// this player's structures in f.Structures; internal/protocol keeps
	// structures in the order the match engine lists them each turn.
	var ownShipyard grid.Position
	hasShipyard := false
	ownStructures := make(map[grid.Position]bool)
	for _, st := range f.Structures {
		if st.Owner == f.Self {
			ownStructures[st.Pos] = true
			if !hasShipyard {
				ownShipyard, hasShipyard = st.Pos, true
			}
		}
	}
	reqs := make([]reconcile.Request, 0, len(ownUnits))
	for _, u := range ownUnits {
		reqs = append(reqs, reconcile.Request{Unit: u.ID, Pos: u.Pos, Desired: desired[u.ID]})
	}
	ignoreCollisionsAtDropoff := turnsLeft < dropoffFloodTurnsLeft
	res := reconcile.Reconcile(f.Board, reqs, spawnDesired && hasShipyard, ownShipyard, ignoreCollisionsAtDropoff, ownStructures)

	// Steps 13-14: advance plans whose intended move executed, emit commands.
	commands := make([]game.Command, 0, len(ownUnits)+1)
	for _, u := range ownUnits {
		p := s.getPlan(u.ID)
		safe := res.SafeMoves[u.ID]
		if safe == p.NextMove() {
			p.Advance()
		}
		commands = append(commands, game.Command{Move: &game.UnitMove{Unit: u.ID, Dir: safe}})
	}
	if res.IsSpawnPossible {
		commands = append(commands, game.Command{Spawn: true})
	}

	s.mirrorToStore(present)
	return commands
}

// mirrorToStore writes the current plan cache into the attached
// planstore.Store, if any, and prunes entries for units no longer
// present. A nil store makes this a no-op.
func (s *Scheduler) mirrorToStore(present map[game.UnitID]bool) {
	if s.store == nil {
		return
	}
	for id, p := range s.plans {
		if err := s.store.Save(id, p); err != nil {
			continue
		}
	}
	_ = s.store.PruneExcept(present)
}

// recompute implements spec.md §4.G step 7's body for one unit.
func (s *Scheduler) recompute(f *game.Frame, cl *clone.Clone, u game.Unit, maxDepth, defensiveTurns, turnsLeft int) {
	oldPlan := s.getPlan(u.ID)
	wasFreshlyNeeded := oldPlan.Empty() || oldPlan.Finished()
	if !oldPlan.Empty() {
		cl.Undo(oldPlan, u)
	}

	end, _, found := f.NearestStructure(u.Pos, u.Owner)
	if !found {
		if !oldPlan.Empty() {
			cl.Advance(oldPlan, u)
		}
		return
	}

	cfg := search.Config{
		PenaltyFactor:  s.cfg.PenaltyFactor,
		MaxDepth:       maxDepth,
		DefensiveTurns: defensiveTurns,
		Deadline:       f.Deadline,
	}
	out := s.searcher.Search(f, cl, u, s.turnsUnderway[u.ID], end.Pos, cfg)

	finalPlan := oldPlan
	if out.SearchDepth > acceptDepthThreshold && len(out.Path) > 0 {
		finalPlan = &plan.Plan{Path: out.Path, ExpectedFinalCargo: out.FinalHalite}
		s.plans[u.ID] = finalPlan

		if wasFreshlyNeeded {
			denom := len(out.Path) + s.turnsUnderway[u.ID]
			if denom > 0 {
				rate := float64(out.FinalHalite) / float64(denom)
				if s.cfg.ShipBuildFactor*rate*float64(turnsLeft) < float64(f.Constants.SpawnCost) {
					s.shouldBuildUnit = false
				}
			}
		}
	} else {
		s.plans[u.ID] = oldPlan
	}

	cl.Advance(finalPlan, u)
}

// compactMiningSlots implements spec.md §4.G step 8's compaction pass:
// per cell, the mining slots referenced by every plan's remaining Still
// segments are renumbered to a dense 0..k-1 prefix, preserving the order
// the original slot values impose.
func (s *Scheduler) compactMiningSlots(f *game.Frame, ownUnits []game.Unit) {
	type segRef struct {
		unit game.UnitID
		seg  int
		slot int
	}
	perCell := make(map[int][]segRef)

	for _, u := range ownUnits {
		p := s.getPlan(u.ID)
		cur := u.Pos
		for i := p.Step; i < len(p.Path); i++ {
			seg := p.Path[i]
			if seg.Dir == grid.Still {
				idx := f.Board.Index(cur)
				perCell[idx] = append(perCell[idx], segRef{unit: u.ID, seg: i, slot: seg.MiningSlot})
				continue
			}
			cur = f.Board.Move(cur, seg.Dir)
		}
	}

	for _, refs := range perCell {
		sort.SliceStable(refs, func(i, j int) bool { return refs[i].slot < refs[j].slot })
		for newSlot, r := range refs {
			s.plans[r.unit].Path[r.seg].MiningSlot = newSlot
		}
	}
}

// projectedEnemyCells implements spec.md §4.G step 10: the set of cells
// an enemy unit could occupy next turn, derived from the direction it
// moved since the previous turn's observation.
func (s *Scheduler) projectedEnemyCells(f *game.Frame) map[grid.Position]bool {
	threatened := make(map[grid.Position]bool)
	for _, u := range f.Units {
		if u.Owner == f.Self {
			continue
		}
		predicted := u.Pos
		if last, known := s.lastEnemyPos[u.ID]; known {
			if dir, ok := inferDirection(f.Board, last, u.Pos); ok {
				predicted = f.Board.Move(u.Pos, dir)
			}
		}
		threatened[predicted] = true
	}
	return threatened
}

func (s *Scheduler) rememberEnemyPositions(f *game.Frame) {
	seen := make(map[game.UnitID]bool)
	for _, u := range f.Units {
		if u.Owner == f.Self {
			continue
		}
		s.lastEnemyPos[u.ID] = u.Pos
		seen[u.ID] = true
	}
	for id := range s.lastEnemyPos {
		if !seen[id] {
			delete(s.lastEnemyPos, id)
		}
	}
}

func inferDirection(board grid.Board, from, to grid.Position) (grid.Direction, bool) {
	for _, dir := range grid.Cardinals {
		if board.Move(from, dir) == to {
			return dir, true
		}
	}
	return grid.Still, false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
