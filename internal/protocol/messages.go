package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldParams     WorldParams `json:"world_params"`
	Player          PlayerState `json:"player"`
}

type WorldParams struct {
	ScaleFactor        float64 `json:"scale_factor"`
	NeighborhoodRadius int     `json:"neighborhood_radius"`
	SpawnProbability   float64 `json:"spawn_probability"`
	InitialValueMax    int     `json:"initial_value_max"`
	MovementDelta      float64 `json:"movement_delta"`
	OriginLat          float64 `json:"origin_lat"`
	OriginLng          float64 `json:"origin_lng"`
}

type PlayerState struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Points int     `json:"points"`
}

// COMMAND (client -> server): one player action. Fields beyond Cmd are
// read per command: MOVE uses DLat/DLng, MOVE_TO uses Lat/Lng, HARVEST
// uses Cell.
type CommandMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Cmd             string   `json:"cmd"`
	DLat            float64  `json:"d_lat,omitempty"`
	DLng            float64  `json:"d_lng,omitempty"`
	Lat             float64  `json:"lat,omitempty"`
	Lng             float64  `json:"lng,omitempty"`
	Cell            *CellRef `json:"cell,omitempty"`
}

type CellRef struct {
	I int `json:"i"`
	J int `json:"j"`
}

// DIFF (server -> client): the visibility change after a move, plus the
// player state the client should display.
type DiffMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Player          PlayerState `json:"player"`
	Center          CellRef     `json:"center"`
	Spawn           []CacheView `json:"spawn"`
	Despawn         []CellRef   `json:"despawn"`
}

type CacheView struct {
	Cell       CellRef `json:"cell"`
	PointValue int     `json:"point_value"`
	NextSerial int     `json:"next_serial"`
	Bounds     Bounds  `json:"bounds"`
}

type Bounds struct {
	LatMin float64 `json:"lat_min"`
	LngMin float64 `json:"lng_min"`
	LatMax float64 `json:"lat_max"`
	LngMax float64 `json:"lng_max"`
}

// RESULT (server -> client): outcome of a HARVEST command.
type ResultMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Item            ItemRef `json:"item"`
	PointValue      int     `json:"point_value"`
	Points          int     `json:"points"`
}

type ItemRef struct {
	I      int `json:"i"`
	J      int `json:"j"`
	Serial int `json:"serial"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
