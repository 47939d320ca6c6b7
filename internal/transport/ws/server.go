package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"geocache.world/internal/game/engine"
	"geocache.world/internal/game/grid"
	"geocache.world/internal/game/luck"
	"geocache.world/internal/game/store"
	"geocache.world/internal/game/tuning"
	"geocache.world/internal/persistence/sessiondb"
	"geocache.world/internal/persistence/translog"
	"geocache.world/internal/protocol"
)

// Server runs one game engine per websocket connection. Commands are
// applied from the reader loop, so each session sees a strictly
// serialized stream of player actions, which is all the engine supports.
type Server struct {
	tune    tuning.Tuning
	log     *log.Logger
	idx     *sessiondb.Index // optional
	tapeDir string           // optional transcript directory

	upgrader websocket.Upgrader
}

func NewServer(tune tuning.Tuning, logger *log.Logger, idx *sessiondb.Index, tapeDir string) *Server {
	return &Server{
		tune:    tune,
		log:     logger,
		idx:     idx,
		tapeDir: tapeDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.log.Printf("session %s: joined (%s)", sess.id, sess.clientName)
		s.runSession(conn, sess)
		s.log.Printf("session %s: left after %d commands, %d points",
			sess.id, sess.commands, sess.eng.Points())
	}
}

type session struct {
	id         string
	clientName string
	startedAt  time.Time
	eng        *engine.Engine
	tape       *translog.Writer // nil when transcripts are disabled
	commands   int
	harvests   int
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"),
			time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"),
			time.Now().Add(time.Second))
		return nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	sess := &session{
		id:         "s_" + uuid.NewString(),
		clientName: hello.ClientName,
		startedAt:  time.Now().UTC(),
		eng:        engine.New(engine.ConfigFromTuning(s.tune), luck.Float),
	}

	lat, lng := sess.eng.Player()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		WorldParams: protocol.WorldParams{
			ScaleFactor:        s.tune.ScaleFactor,
			NeighborhoodRadius: s.tune.NeighborhoodRadius,
			SpawnProbability:   s.tune.SpawnProbability,
			InitialValueMax:    s.tune.InitialValueMax,
			MovementDelta:      s.tune.MovementDelta,
			OriginLat:          s.tune.OriginLat,
			OriginLng:          s.tune.OriginLng,
		},
		Player: protocol.PlayerState{Lat: lat, Lng: lng},
	}
	if !s.send(conn, welcome) {
		return nil
	}
	return sess
}

func (s *Server) runSession(conn *websocket.Conn, sess *session) {
	// Created here rather than in the handshake so a failed handshake
	// can never leave a dangling transcript writer behind.
	if s.tapeDir != "" {
		w, err := translog.NewWriter(filepath.Join(s.tapeDir, sess.id+".jsonl.zst"))
		if err != nil {
			s.log.Printf("session %s: transcript disabled: %v", sess.id, err)
		} else {
			sess.tape = w
		}
	}
	defer s.finishSession(sess)

	// The world appears once at join time, as if the player had just
	// pressed reset at the origin.
	diff := sess.eng.Reset()
	sess.record(protocol.CommandMsg{
		Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Cmd: protocol.CmdReset,
	})
	if !s.send(conn, s.diffMsg(sess, diff)) {
		return
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeCommand {
			if !s.sendError(conn, protocol.ErrProtoBadRequest, "expected COMMAND") {
				return
			}
			continue
		}
		var cmd protocol.CommandMsg
		if err := json.Unmarshal(msg, &cmd); err != nil {
			if !s.sendError(conn, protocol.ErrProtoBadRequest, "malformed COMMAND") {
				return
			}
			continue
		}
		if cmd.ProtocolVersion != protocol.Version {
			if !s.sendError(conn, protocol.ErrProtoBadRequest, "bad protocol_version") {
				return
			}
			continue
		}
		if !s.apply(conn, sess, cmd) {
			return
		}
	}
}

// apply runs one command against the session engine and writes the
// response. Returns false when the connection is gone.
func (s *Server) apply(conn *websocket.Conn, sess *session, cmd protocol.CommandMsg) bool {
	sess.commands++
	switch cmd.Cmd {
	case protocol.CmdMove, protocol.CmdMoveTo:
		var (
			diff engine.Diff
			err  error
		)
		if cmd.Cmd == protocol.CmdMove {
			diff, err = sess.eng.MoveBy(cmd.DLat, cmd.DLng)
		} else {
			diff, err = sess.eng.MoveTo(cmd.Lat, cmd.Lng)
		}
		if err != nil {
			if errors.Is(err, grid.ErrInvalidCoordinate) || errors.Is(err, grid.ErrCoordinateRange) {
				return s.sendError(conn, protocol.ErrInvalidCoord, err.Error())
			}
			return s.sendError(conn, protocol.ErrInternal, err.Error())
		}
		sess.record(cmd)
		return s.send(conn, s.diffMsg(sess, diff))

	case protocol.CmdReset:
		diff := sess.eng.Reset()
		sess.record(cmd)
		return s.send(conn, s.diffMsg(sess, diff))

	case protocol.CmdHarvest:
		if cmd.Cell == nil {
			return s.sendError(conn, protocol.ErrBadRequest, "HARVEST requires cell")
		}
		res, err := sess.eng.Harvest(grid.Cell{I: cmd.Cell.I, J: cmd.Cell.J})
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrNotVisible), errors.Is(err, store.ErrUnknownCache):
				return s.sendError(conn, protocol.ErrNotVisible, err.Error())
			default:
				return s.sendError(conn, protocol.ErrInternal, err.Error())
			}
		}
		sess.record(cmd)
		s.idx.RecordHarvest(sess.id, sess.harvests, res.Item.I, res.Item.J, res.Item.Serial, res.PointValue)
		sess.harvests++
		return s.send(conn, protocol.ResultMsg{
			Type:            protocol.TypeResult,
			ProtocolVersion: protocol.Version,
			Item:            protocol.ItemRef{I: res.Item.I, J: res.Item.J, Serial: res.Item.Serial},
			PointValue:      res.PointValue,
			Points:          res.Points,
		})

	default:
		return s.sendError(conn, protocol.ErrBadRequest, "unknown cmd "+cmd.Cmd)
	}
}

func (s *Server) diffMsg(sess *session, diff engine.Diff) protocol.DiffMsg {
	lat, lng := sess.eng.Player()
	center, _ := sess.eng.Center()
	msg := protocol.DiffMsg{
		Type:            protocol.TypeDiff,
		ProtocolVersion: protocol.Version,
		Player:          protocol.PlayerState{Lat: lat, Lng: lng, Points: sess.eng.Points()},
		Center:          protocol.CellRef{I: center.I, J: center.J},
		Spawn:           make([]protocol.CacheView, 0, len(diff.Spawn)),
		Despawn:         make([]protocol.CellRef, 0, len(diff.Despawn)),
	}
	for _, sp := range diff.Spawn {
		msg.Spawn = append(msg.Spawn, protocol.CacheView{
			Cell:       protocol.CellRef{I: sp.Cell.I, J: sp.Cell.J},
			PointValue: sp.PointValue,
			NextSerial: sp.NextSerial,
			Bounds: protocol.Bounds{
				LatMin: sp.Bounds.LatMin, LngMin: sp.Bounds.LngMin,
				LatMax: sp.Bounds.LatMax, LngMax: sp.Bounds.LngMax,
			},
		})
	}
	for _, c := range diff.Despawn {
		msg.Despawn = append(msg.Despawn, protocol.CellRef{I: c.I, J: c.J})
	}
	return msg
}

func (sess *session) record(cmd protocol.CommandMsg) {
	if sess.tape == nil {
		return
	}
	if err := sess.tape.Append(translog.Entry{Command: cmd, Digest: sess.eng.StateDigest()}); err != nil {
		// Transcript loss is tolerable; the session keeps running.
		sess.tape = nil
	}
}

func (s *Server) finishSession(sess *session) {
	if sess.tape != nil {
		if err := sess.tape.Close(); err != nil {
			s.log.Printf("session %s: close transcript: %v", sess.id, err)
		}
	}
	s.idx.RecordSession(sessiondb.SessionRow{
		ID:         sess.id,
		ClientName: sess.clientName,
		StartedAt:  sess.startedAt,
		EndedAt:    time.Now().UTC(),
		Commands:   sess.commands,
		Harvests:   sess.harvests,
		Points:     sess.eng.Points(),
		CellsSeen:  sess.eng.Store().Len(),
		Digest:     sess.eng.StateDigest(),
	})
}

func (s *Server) send(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(v) == nil
}

func (s *Server) sendError(conn *websocket.Conn, code, message string) bool {
	return s.send(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}
