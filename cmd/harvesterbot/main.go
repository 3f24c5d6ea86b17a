// Command harvesterbot is the entrypoint: it wires configuration, the
// match-engine line protocol, the plan cache, and the scheduler into one
// process loop, the same shape cmd/chessplay-uci/main.go uses to wire an
// engine into a protocol handler.
package main

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/hailam/harvesterbot/internal/config"
	"github.com/hailam/harvesterbot/internal/game"
	"github.com/hailam/harvesterbot/internal/planstore"
	"github.com/hailam/harvesterbot/internal/protocol"
	"github.com/hailam/harvesterbot/internal/scheduler"
)

// turnBudget is the per-turn wall-clock allowance the match engine
// enforces externally; spec.md §6 treats turn deadlines as protocol input
// rather than a tunable, so this is a fixed constant rather than a
// config.Config field.
const turnBudget = 2 * time.Second

func main() {
	fs := pflag.NewFlagSet("harvesterbot", pflag.ExitOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("flag parse: %v", err)
	}

	cfg, err := config.Load(fs, "")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := planstore.Open()
	if err != nil {
		log.Fatalf("planstore: %v", err)
	}
	defer store.Close()

	proto := protocol.New(os.Stdin, os.Stdout)
	hs, err := proto.Handshake(cfg.Name)
	if err != nil {
		log.Fatalf("handshake: %v", err)
	}

	fourPlayer := len(hs.Structures) > 2
	avoidEnemy := cfg.AvoidEnemyCollisionsEnabled || fourPlayer

	sched := scheduler.New(scheduler.Config{
		Name:                        cfg.Name,
		MaxSearchDepth:              cfg.MaxSearchDepth,
		ShipBuildFactor:             cfg.ShipBuildFactor,
		SimulateEnemyEnabled:        cfg.SimulateEnemyEnabled,
		RecalculatePathsEnabled:     cfg.RecalculatePathsEnabled,
		AvoidEnemyCollisionsEnabled: avoidEnemy,
		PenaltyFactor:               config.ParsePenaltyFactor(cfg.PenaltyFactor),
		FourPlayerMode:              fourPlayer,
	}).WithStore(store)

	frame := &game.Frame{
		Board:      hs.Board,
		Self:       hs.Self,
		Structures: hs.Structures,
		Halite:     hs.Halite,
		Constants:  hs.Constants,
	}
	sched.Init(frame)

	for {
		frame, err = proto.ReadTurn(frame, time.Now().Add(turnBudget))
		if err != nil {
			if errors.Is(err, protocol.ErrEngineClosed) {
				return
			}
			log.Fatalf("read turn: %v", err)
		}

		// cfg.MaxTurns is the profiling hard stop spec.md §6 describes
		// ("-1 = never"), independent of the match engine's own
		// Constants.MaxTurns reported at handshake time.
		if cfg.MaxTurns >= 0 && frame.Turn >= cfg.MaxTurns {
			return
		}

		commands := sched.Run(frame)
		if err := proto.WriteCommands(commands); err != nil {
			// A failed write means the engine is gone: end the loop and exit
			// cleanly, the same as EOF on stdin.
			log.Printf("write commands: %v", err)
			return
		}
	}
}
