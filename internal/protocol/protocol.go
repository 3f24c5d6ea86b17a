// Package protocol implements the match-engine's line-oriented I/O (spec.md
// §6): a handshake that delivers board size, player id, shipyard
// coordinates, and the initial halite grid, followed by one turn-update
// block per turn and a command-vector reply.
//
// It is grounded on internal/uci/uci.go's bufio.Scanner-over-stdin main
// loop and strings.Fields tokenizing, generalized from chess UCI verbs
// (uci, position, go, stop) to the harvester match verbs. Where uci.go
// calls os.Exit(0) on "quit", this package instead returns a sentinel
// error wrapping io.EOF so cmd/harvesterbot can treat it as a clean exit
// without making internal/protocol itself untestable.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/grid"
)

// ErrEngineClosed is returned by ReadTurn when stdin reaches EOF: spec.md
// §7 "Engine write failure / EOF on stdin" is the only fatal condition in
// the whole design, and it is fatal only at the process boundary.
var ErrEngineClosed = fmt.Errorf("protocol: engine closed the connection: %w", io.EOF)

// Protocol reads match-engine turn updates from r and writes replies to w.
// It holds no game state of its own beyond the board dimensions fixed at
// handshake time.
type Protocol struct {
	r     *bufio.Scanner
	w     io.Writer
	board grid.Board
}

// New wraps r and w for the line protocol. Call Handshake before ReadTurn.
func New(r io.Reader, w io.Writer) *Protocol {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Protocol{r: s, w: w}
}

// HandshakeResult is everything the initial handshake delivers.
type HandshakeResult struct {
	Board      grid.Board
	Self       game.PlayerID
	Structures []game.Structure
	Halite     []int
	Constants  game.Constants
}

// Handshake reads the initial state and replies with name, the single
// identifier string spec.md §6 says the handshake reply is.
//
// spec.md §6 doesn't pin down an exact wire format beyond "W H, own
// player id, per-player shipyard coordinates, and the initial halite
// grid" plus a separate read-only constants table; this implementation
// reads three lines:
//  1. "W H self_id num_players (shipyard_owner shipyard_x shipyard_y)..."
//  2. "max_turns spawn_cost max_cargo extract_ratio move_cost_ratio
//     inspiration_ship_count inspired_bonus_multiplier"
//  3. "halite_0 halite_1 ... halite_{W*H-1}"
func (p *Protocol) Handshake(name string) (HandshakeResult, error) {
	if !p.r.Scan() {
		return HandshakeResult{}, ErrEngineClosed
	}
	fields := strings.Fields(p.r.Text())
	if len(fields) < 4 {
		return HandshakeResult{}, fmt.Errorf("protocol: handshake: short line %q", p.r.Text())
	}

	idx := 0
	next := func() (int, error) {
		if idx >= len(fields) {
			return 0, fmt.Errorf("protocol: handshake: ran out of fields")
		}
		v, err := strconv.Atoi(fields[idx])
		idx++
		return v, err
	}

	w, err := next()
	if err != nil {
		return HandshakeResult{}, err
	}
	h, err := next()
	if err != nil {
		return HandshakeResult{}, err
	}
	self, err := next()
	if err != nil {
		return HandshakeResult{}, err
	}
	numPlayers, err := next()
	if err != nil {
		return HandshakeResult{}, err
	}

	board := grid.NewBoard(w, h)
	structures := make([]game.Structure, 0, numPlayers)
	for i := 0; i < numPlayers; i++ {
		owner, err := next()
		if err != nil {
			return HandshakeResult{}, err
		}
		x, err := next()
		if err != nil {
			return HandshakeResult{}, err
		}
		y, err := next()
		if err != nil {
			return HandshakeResult{}, err
		}
		structures = append(structures, game.Structure{
			Owner: game.PlayerID(owner),
			Pos:   grid.Position{X: x, Y: y},
		})
	}

	if !p.r.Scan() {
		return HandshakeResult{}, ErrEngineClosed
	}
	constFields := strings.Fields(p.r.Text())
	if len(constFields) < 7 {
		return HandshakeResult{}, fmt.Errorf("protocol: handshake: short constants line %q", p.r.Text())
	}
	intAt := func(i int) (int, error) {
		return strconv.Atoi(constFields[i])
	}
	maxTurns, err := intAt(0)
	if err != nil {
		return HandshakeResult{}, err
	}
	spawnCost, err := intAt(1)
	if err != nil {
		return HandshakeResult{}, err
	}
	maxCargo, err := intAt(2)
	if err != nil {
		return HandshakeResult{}, err
	}
	extractRatio, err := intAt(3)
	if err != nil {
		return HandshakeResult{}, err
	}
	moveCostRatio, err := intAt(4)
	if err != nil {
		return HandshakeResult{}, err
	}
	inspirationShipCount, err := intAt(5)
	if err != nil {
		return HandshakeResult{}, err
	}
	inspiredBonusMultiplier, err := strconv.ParseFloat(constFields[6], 64)
	if err != nil {
		return HandshakeResult{}, err
	}

	if !p.r.Scan() {
		return HandshakeResult{}, ErrEngineClosed
	}
	haliteFields := strings.Fields(p.r.Text())
	halite := make([]int, board.NumCells())
	for i := range halite {
		if i >= len(haliteFields) {
			return HandshakeResult{}, fmt.Errorf("protocol: handshake: halite grid: ran out of fields")
		}
		v, err := strconv.Atoi(haliteFields[i])
		if err != nil {
			return HandshakeResult{}, fmt.Errorf("protocol: handshake: halite grid: %w", err)
		}
		halite[i] = v
	}

	p.board = board
	if err := p.writeLine(name); err != nil {
		return HandshakeResult{}, err
	}

	return HandshakeResult{
		Board:      board,
		Self:       game.PlayerID(self),
		Structures: structures,
		Halite:     halite,
		Constants: game.Constants{
			MaxTurns:                maxTurns,
			SpawnCost:               spawnCost,
			MaxCargo:                maxCargo,
			ExtractRatio:            extractRatio,
			MoveCostRatio:           moveCostRatio,
			InspirationShipCount:    inspirationShipCount,
			InspiredBonusMultiplier: inspiredBonusMultiplier,
		},
	}, nil
}

// ReadTurn reads one turn-update block and folds it onto prev, producing
// the Frame the controller runs against this turn. halite is updated
// in-place from prev's grid, mutating only the cells the engine reports as
// changed (spec.md §6 "the set of cells whose halite changed").
//
// Wire shape: "turn turns_left self_banked_halite num_units num_structures
// num_changed_cells (unit_id owner x y cargo)... (owner x y)...
// (cell_index new_halite)...".
func (p *Protocol) ReadTurn(prev *game.Frame, deadline time.Time) (*game.Frame, error) {
	if !p.r.Scan() {
		return nil, ErrEngineClosed
	}
	fields := strings.Fields(p.r.Text())
	idx := 0
	next := func() (int, error) {
		if idx >= len(fields) {
			return 0, fmt.Errorf("protocol: turn update: ran out of fields")
		}
		v, err := strconv.Atoi(fields[idx])
		idx++
		return v, err
	}

	turn, err := next()
	if err != nil {
		return nil, err
	}
	if _, err := next(); err != nil { // turns_left, derivable from Constants; re-read for wire-format parity
		return nil, err
	}
	banked, err := next()
	if err != nil {
		return nil, err
	}
	numUnits, err := next()
	if err != nil {
		return nil, err
	}
	numStructures, err := next()
	if err != nil {
		return nil, err
	}
	numChanged, err := next()
	if err != nil {
		return nil, err
	}

	units := make([]game.Unit, 0, numUnits)
	for i := 0; i < numUnits; i++ {
		id, err := next()
		if err != nil {
			return nil, err
		}
		owner, err := next()
		if err != nil {
			return nil, err
		}
		x, err := next()
		if err != nil {
			return nil, err
		}
		y, err := next()
		if err != nil {
			return nil, err
		}
		cargo, err := next()
		if err != nil {
			return nil, err
		}
		units = append(units, game.Unit{
			ID:    game.UnitID(id),
			Owner: game.PlayerID(owner),
			Pos:   grid.Position{X: x, Y: y},
			Cargo: cargo,
		})
	}

	structures := make([]game.Structure, 0, numStructures)
	for i := 0; i < numStructures; i++ {
		owner, err := next()
		if err != nil {
			return nil, err
		}
		x, err := next()
		if err != nil {
			return nil, err
		}
		y, err := next()
		if err != nil {
			return nil, err
		}
		structures = append(structures, game.Structure{Owner: game.PlayerID(owner), Pos: grid.Position{X: x, Y: y}})
	}

	halite := prev.Halite
	for i := 0; i < numChanged; i++ {
		cell, err := next()
		if err != nil {
			return nil, err
		}
		value, err := next()
		if err != nil {
			return nil, err
		}
		halite[cell] = value
	}

	return &game.Frame{
		Board:           prev.Board,
		Constants:       prev.Constants,
		Turn:            turn,
		Self:            prev.Self,
		Halite:          halite,
		Units:           units,
		Structures:      structures,
		OwnBankedHalite: banked,
		Deadline:        deadline,
	}, nil
}

// WriteCommands encodes commands as the space-separated reply line spec.md
// §6 describes: "m <unit_id> <N|S|E|W|O>" per move, "c" for spawn.
func (p *Protocol) WriteCommands(commands []game.Command) error {
	parts := make([]string, 0, len(commands))
	for _, c := range commands {
		switch {
		case c.Move != nil:
			parts = append(parts, fmt.Sprintf("m %d %s", c.Move.Unit, c.Move.Dir))
		case c.Spawn:
			parts = append(parts, "c")
		}
	}
	return p.writeLine(strings.Join(parts, " "))
}

func (p *Protocol) writeLine(s string) error {
	if _, err := fmt.Fprintln(p.w, s); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}
