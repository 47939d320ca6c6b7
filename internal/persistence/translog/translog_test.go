package translog

import (
	"path/filepath"
	"testing"

	"geocache.world/internal/protocol"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl.zst")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	cmds := []protocol.CommandMsg{
		{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Cmd: protocol.CmdReset},
		{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Cmd: protocol.CmdMove, DLat: 0.01, DLng: -0.01},
		{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Cmd: protocol.CmdHarvest,
			Cell: &protocol.CellRef{I: 369894, J: -1220627}},
	}
	for n, c := range cmds {
		if err := w.Append(Entry{Command: c, Digest: "d" + string(rune('0'+n))}); err != nil {
			t.Fatalf("append %d: %v", n, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(cmds) {
		t.Fatalf("read %d entries, want %d", len(got), len(cmds))
	}
	for n, e := range got {
		if e.Seq != n {
			t.Fatalf("entry %d: seq %d", n, e.Seq)
		}
		if e.Command.Cmd != cmds[n].Cmd {
			t.Fatalf("entry %d: cmd %q, want %q", n, e.Command.Cmd, cmds[n].Cmd)
		}
	}
	if got[2].Command.Cell == nil || got[2].Command.Cell.I != 369894 {
		t.Fatalf("harvest cell lost: %+v", got[2].Command)
	}
}

func TestReadAll_Missing(t *testing.T) {
	if _, err := ReadAll(filepath.Join(t.TempDir(), "nope.jsonl.zst")); err == nil {
		t.Fatal("expected error for missing transcript")
	}
}
