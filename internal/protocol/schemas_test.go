package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"geocache.world/internal/protocol"
)

func TestSchemas_ValidateMarshaledMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	validate(compile("hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "map-client",
	})

	validate(compile("welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "s_1",
		WorldParams: protocol.WorldParams{
			ScaleFactor:        1e4,
			NeighborhoodRadius: 8,
			SpawnProbability:   0.1,
			InitialValueMax:    100,
			MovementDelta:      0.01,
			OriginLat:          36.9894,
			OriginLng:          -122.0627,
		},
		Player: protocol.PlayerState{Lat: 36.9894, Lng: -122.0627},
	})

	cmdSchema := compile("command.schema.json")
	validate(cmdSchema, protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		Cmd:             protocol.CmdMove,
		DLat:            0.01,
		DLng:            -0.01,
	})
	validate(cmdSchema, protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		Cmd:             protocol.CmdHarvest,
		Cell:            &protocol.CellRef{I: 369894, J: -1220627},
	})

	validate(compile("diff.schema.json"), protocol.DiffMsg{
		Type:            protocol.TypeDiff,
		ProtocolVersion: protocol.Version,
		Player:          protocol.PlayerState{Lat: 36.9894, Lng: -122.0627, Points: 2},
		Center:          protocol.CellRef{I: 369894, J: -1220627},
		Spawn: []protocol.CacheView{{
			Cell:       protocol.CellRef{I: 369895, J: -1220626},
			PointValue: 42,
			NextSerial: 0,
			Bounds: protocol.Bounds{
				LatMin: 36.9895, LngMin: -122.0626,
				LatMax: 36.9896, LngMax: -122.0625,
			},
		}},
		Despawn: []protocol.CellRef{{I: 369890, J: -1220630}},
	})

	validate(compile("result.schema.json"), protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Item:            protocol.ItemRef{I: 369894, J: -1220627, Serial: 3},
		PointValue:      -1,
		Points:          7,
	})

	validate(compile("error.schema.json"), protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            protocol.ErrNotVisible,
		Message:         "cache not in visible set",
	})
}
