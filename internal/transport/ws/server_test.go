package ws

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"geocache.world/internal/game/tuning"
	"geocache.world/internal/protocol"
)

func dialTestServer(t *testing.T, tapeDir string) *websocket.Conn {
	t.Helper()
	s := NewServer(tuning.Defaults(), log.New(io.Discard, "", 0), nil, tapeDir)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn, out any) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
	}
	return base.Type
}

func TestSession_HandshakeAndInitialDiff(t *testing.T) {
	conn := dialTestServer(t, "")

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test",
	}); err != nil {
		t.Fatal(err)
	}

	var welcome protocol.WelcomeMsg
	if typ := readMsg(t, conn, &welcome); typ != protocol.TypeWelcome {
		t.Fatalf("first message type %q", typ)
	}
	if welcome.SessionID == "" || welcome.WorldParams.NeighborhoodRadius != 8 {
		t.Fatalf("welcome = %+v", welcome)
	}

	var diff protocol.DiffMsg
	if typ := readMsg(t, conn, &diff); typ != protocol.TypeDiff {
		t.Fatalf("second message type %q", typ)
	}
	if diff.Center.I != 369894 || diff.Center.J != -1220627 {
		t.Fatalf("center = %+v", diff.Center)
	}
	if len(diff.Spawn) == 0 {
		t.Fatal("initial diff spawned nothing")
	}
	if len(diff.Despawn) != 0 {
		t.Fatalf("initial diff despawned %d", len(diff.Despawn))
	}
}

func TestSession_MoveAndHarvest(t *testing.T) {
	conn := dialTestServer(t, "")

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version,
	}); err != nil {
		t.Fatal(err)
	}
	readMsg(t, conn, nil) // WELCOME
	var initial protocol.DiffMsg
	readMsg(t, conn, &initial)

	// A move within the same cell yields an empty diff.
	if err := conn.WriteJSON(protocol.CommandMsg{
		Type: protocol.TypeCommand, ProtocolVersion: protocol.Version,
		Cmd: protocol.CmdMove, DLat: 1e-6, DLng: 1e-6,
	}); err != nil {
		t.Fatal(err)
	}
	var diff protocol.DiffMsg
	if typ := readMsg(t, conn, &diff); typ != protocol.TypeDiff {
		t.Fatalf("move response type %q", typ)
	}
	if len(diff.Spawn) != 0 || len(diff.Despawn) != 0 {
		t.Fatalf("same-cell move diff: %d/%d", len(diff.Spawn), len(diff.Despawn))
	}

	// Harvest a visible cache.
	target := initial.Spawn[0].Cell
	if err := conn.WriteJSON(protocol.CommandMsg{
		Type: protocol.TypeCommand, ProtocolVersion: protocol.Version,
		Cmd: protocol.CmdHarvest, Cell: &target,
	}); err != nil {
		t.Fatal(err)
	}
	var res protocol.ResultMsg
	if typ := readMsg(t, conn, &res); typ != protocol.TypeResult {
		t.Fatalf("harvest response type %q", typ)
	}
	if res.Item.I != target.I || res.Item.J != target.J || res.Item.Serial != 0 {
		t.Fatalf("item = %+v", res.Item)
	}
	if res.PointValue != initial.Spawn[0].PointValue-1 {
		t.Fatalf("point value = %d", res.PointValue)
	}
	if res.Points != 1 {
		t.Fatalf("points = %d", res.Points)
	}

	// Harvest far outside the visible set.
	if err := conn.WriteJSON(protocol.CommandMsg{
		Type: protocol.TypeCommand, ProtocolVersion: protocol.Version,
		Cmd: protocol.CmdHarvest, Cell: &protocol.CellRef{I: 0, J: 0},
	}); err != nil {
		t.Fatal(err)
	}
	var errMsg protocol.ErrorMsg
	if typ := readMsg(t, conn, &errMsg); typ != protocol.TypeError {
		t.Fatalf("bad harvest response type %q", typ)
	}
	if errMsg.Code != protocol.ErrNotVisible {
		t.Fatalf("code = %q", errMsg.Code)
	}
}

func TestSession_RejectsBadProtocolVersion(t *testing.T) {
	conn := dialTestServer(t, "")

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: "0.0",
	}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected close for bad protocol version")
	}
}

func TestSession_WritesTranscript(t *testing.T) {
	dir := t.TempDir()
	conn := dialTestServer(t, dir)

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version,
	}); err != nil {
		t.Fatal(err)
	}
	var welcome protocol.WelcomeMsg
	readMsg(t, conn, &welcome)
	readMsg(t, conn, nil) // initial DIFF

	// The transcript file exists once the session is running.
	if _, err := os.Stat(filepath.Join(dir, welcome.SessionID+".jsonl.zst")); err != nil {
		t.Fatalf("transcript missing: %v", err)
	}
}

func TestSession_NoTranscriptOnFailedHandshake(t *testing.T) {
	dir := t.TempDir()
	conn := dialTestServer(t, dir)

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: "0.0",
	}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected close for bad protocol version")
	}

	// A rejected handshake must not leave a transcript file behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("transcript dir not empty: %v", entries)
	}
}
