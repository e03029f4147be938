package geometry

import (
	"strings"
	"time"

	Mt "github.com/sirius-geo/ringdeform/types"
)

// EffectType names the phenomenon behind a displacement table
type EffectType int

const (
	Thermal EffectType = iota + 1
	Tidal
)

func (e EffectType) String() string {
	switch e {
	case Thermal:
		return "thermal"
	case Tidal:
		return "tidal"
	default:
		return "unknown"
	}
}

// ParseEffect accepts the configuration keys used for each effect
func ParseEffect(s string) (EffectType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "thermal", "temperature", "temp":
		return Thermal, nil
	case "tidal", "tides":
		return Tidal, nil
	}
	return 0, &Mt.ConfigError{Field: "effect", Value: s, Message: "unknown effect type"}
}

// Displacement is the closed set of per-point displacement tables.
// Only this package can add variants.
type Displacement interface {
	Effect() EffectType
	Index() []time.Time
	sealed()
}

// ThermalDisplacement carries one radial offset per point per timestamp,
// in meters, applied along the point's own direction.
type ThermalDisplacement struct {
	Times  []time.Time
	Radial map[string][]float64
}

func (ThermalDisplacement) Effect() EffectType   { return Thermal }
func (d ThermalDisplacement) Index() []time.Time { return d.Times }
func (ThermalDisplacement) sealed()              {}

// TidalDisplacement carries a North/East/Up offset per point per timestamp.
// East maps to X, North to Y, Up to Z.
type TidalDisplacement struct {
	Times   []time.Time
	Offsets map[string][]Mt.NEU
}

func (TidalDisplacement) Effect() EffectType   { return Tidal }
func (d TidalDisplacement) Index() []time.Time { return d.Times }
func (TidalDisplacement) sealed()              {}

// Zero returns an all-zero displacement of the given effect for every point
// of p over times, which is what a disabled effect contributes.
func (p *Polygon) Zero(effect EffectType, times []time.Time) (Displacement, error) {
	switch effect {
	case Thermal:
		radial := make(map[string][]float64, len(p.points))
		for _, pt := range p.points {
			radial[pt.Name] = make([]float64, len(times))
		}
		return &ThermalDisplacement{Times: times, Radial: radial}, nil
	case Tidal:
		offsets := make(map[string][]Mt.NEU, len(p.points))
		for _, pt := range p.points {
			offsets[pt.Name] = make([]Mt.NEU, len(times))
		}
		return &TidalDisplacement{Times: times, Offsets: offsets}, nil
	}
	return nil, &Mt.ConfigError{Field: "effect", Value: effect.String(), Message: "unknown effect type"}
}
