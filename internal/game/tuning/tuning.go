package tuning

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	// ScaleFactor converts continuous coordinates to grid cells; 1e4
	// gives cells of 1e-4 degrees per side.
	ScaleFactor float64 `yaml:"scale_factor"`

	NeighborhoodRadius int     `yaml:"neighborhood_radius"`
	SpawnProbability   float64 `yaml:"spawn_probability"`
	InitialValueMax    int     `yaml:"initial_value_max"`

	// MovementDelta is the step size of a single directional move. Owned
	// by the movement trigger, not the core engine.
	MovementDelta float64 `yaml:"movement_delta"`

	OriginLat float64 `yaml:"origin_lat"`
	OriginLng float64 `yaml:"origin_lng"`
}

func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// validate rejects values yaml accepts but the engine cannot run with.
// The engine assumes a finite origin; catching .nan/.inf here fails the
// server at startup instead of panicking per session.
func (t *Tuning) validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"scale_factor", t.ScaleFactor},
		{"spawn_probability", t.SpawnProbability},
		{"movement_delta", t.MovementDelta},
		{"origin_lat", t.OriginLat},
		{"origin_lng", t.OriginLng},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s: non-finite value %v", f.name, f.value)
		}
	}
	return nil
}

// applyDefaults floors zero and negative values to the defaults, so an
// explicit zero (say spawn_probability: 0) is treated as unset. A
// cache-free or radius-0 world is not a supported configuration.
func (t *Tuning) applyDefaults() {
	if t.ScaleFactor <= 0 {
		t.ScaleFactor = 1e4
	}
	if t.NeighborhoodRadius <= 0 {
		t.NeighborhoodRadius = 8
	}
	if t.SpawnProbability <= 0 {
		t.SpawnProbability = 0.1
	}
	if t.InitialValueMax <= 0 {
		t.InitialValueMax = 100
	}
	if t.MovementDelta <= 0 {
		t.MovementDelta = 0.01
	}
	if t.OriginLat == 0 && t.OriginLng == 0 {
		t.OriginLat = 36.9894
		t.OriginLng = -122.0627
	}
}
