// Replay re-runs a recorded session transcript against a fresh engine
// and verifies that every step reproduces the recorded state digest.
// World generation is deterministic, so any mismatch means the engine's
// behavior changed since the transcript was recorded (or the tuning
// differs from the one the session ran with).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"geocache.world/internal/game/engine"
	"geocache.world/internal/game/grid"
	"geocache.world/internal/game/luck"
	"geocache.world/internal/game/tuning"
	"geocache.world/internal/persistence/translog"
	"geocache.world/internal/protocol"
)

func main() {
	var (
		path       = flag.String("transcript", "", "path to session transcript (.jsonl.zst)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: built-in defaults)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[replay] ", log.LstdFlags)

	if *path == "" {
		logger.Fatal("missing -transcript")
	}

	tune := tuning.Defaults()
	if *tuningPath != "" {
		var err error
		tune, err = tuning.Load(*tuningPath)
		if err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	entries, err := translog.ReadAll(*path)
	if err != nil {
		logger.Fatalf("read transcript: %v", err)
	}
	if len(entries) == 0 {
		logger.Fatal("empty transcript")
	}

	eng := engine.New(engine.ConfigFromTuning(tune), luck.Float)
	harvests := 0
	for _, e := range entries {
		if err := applyCommand(eng, e.Command, &harvests); err != nil {
			logger.Fatalf("seq %d (%s): %v", e.Seq, e.Command.Cmd, err)
		}
		if got := eng.StateDigest(); got != e.Digest {
			logger.Fatalf("seq %d (%s): digest mismatch\n  recorded %s\n  replayed %s",
				e.Seq, e.Command.Cmd, e.Digest, got)
		}
	}

	lat, lng := eng.Player()
	logger.Printf("ok: %d commands, %d harvests, %d points, player at (%.5f, %.5f)",
		len(entries), harvests, eng.Points(), lat, lng)
	logger.Printf("final digest %s", eng.StateDigest())
}

func applyCommand(eng *engine.Engine, cmd protocol.CommandMsg, harvests *int) error {
	switch cmd.Cmd {
	case protocol.CmdReset:
		eng.Reset()
		return nil
	case protocol.CmdMove:
		_, err := eng.MoveBy(cmd.DLat, cmd.DLng)
		return err
	case protocol.CmdMoveTo:
		_, err := eng.MoveTo(cmd.Lat, cmd.Lng)
		return err
	case protocol.CmdHarvest:
		if cmd.Cell == nil {
			return fmt.Errorf("HARVEST without cell")
		}
		_, err := eng.Harvest(grid.Cell{I: cmd.Cell.I, J: cmd.Cell.J})
		if err == nil {
			*harvests++
		}
		return err
	default:
		return fmt.Errorf("unknown cmd %q", cmd.Cmd)
	}
}
