package config

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	Mg "github.com/sirius-geo/ringdeform/geometry"
	Mrf "github.com/sirius-geo/ringdeform/rf"
	Mth "github.com/sirius-geo/ringdeform/thermal"
	Mtd "github.com/sirius-geo/ringdeform/tides"
	Mt "github.com/sirius-geo/ringdeform/types"
)

//go:embed layout.yaml
var layoutYAML []byte

type geodetic struct {
	Cardinal  string  `yaml:"cardinal"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type layoutFile struct {
	NominalPerimeter float64 `yaml:"nominal_perimeter"`
	Thermal          struct {
		Points          []string  `yaml:"points"`
		QuadrantSpacing []float64 `yaml:"quadrant_spacing"`
	} `yaml:"thermal"`
	Tidal struct {
		Points     []string  `yaml:"points"`
		Directions []float64 `yaml:"directions"`
	} `yaml:"tidal"`
	RF struct {
		Channel string `yaml:"channel"`
	} `yaml:"rf"`
	Geodetic  map[string]geodetic              `yaml:"geodetic"`
	Groupings map[string]map[string][]string `yaml:"groupings"`
}

// Layout is the static description of the ring: point names, their
// directions, geodetic coordinates and the sensor groupings.
// It is read once and every accessor returns a copy.
type Layout struct {
	f             layoutFile
	thermalAngles []float64
}

// DefaultLayout decodes the layout compiled into the binary
func DefaultLayout() (*Layout, error) {
	return ParseLayout(layoutYAML)
}

func ParseLayout(data []byte) (*Layout, error) {
	var f layoutFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &Mt.ConfigError{Field: "layout", Message: err.Error()}
	}
	if f.NominalPerimeter == 0 {
		f.NominalPerimeter = Mg.DefaultNominalPerimeter
	}
	if f.RF.Channel == "" {
		f.RF.Channel = Mrf.DefaultChannel
	}

	l := &Layout{f: f}
	if err := l.validate(); err != nil {
		return nil, err
	}
	l.thermalAngles = Mg.QuadrantDirections(f.Thermal.QuadrantSpacing, f.NominalPerimeter)
	return l, nil
}

func (l *Layout) validate() error {
	f := l.f
	if f.NominalPerimeter < 0 {
		return &Mt.ConfigError{Field: "layout.nominal_perimeter", Value: fmt.Sprint(f.NominalPerimeter), Message: "must be positive"}
	}
	if want := 4 * len(f.Thermal.QuadrantSpacing); len(f.Thermal.Points) != want {
		return &Mt.ConfigError{
			Field:   "layout.thermal",
			Value:   fmt.Sprint(len(f.Thermal.Points)),
			Message: fmt.Sprintf("%d points need %d spacings per quadrant", len(f.Thermal.Points), len(f.Thermal.Points)/4),
		}
	}
	if len(f.Tidal.Points) != len(f.Tidal.Directions) {
		return &Mt.ConfigError{
			Field:   "layout.tidal",
			Value:   fmt.Sprint(len(f.Tidal.Directions)),
			Message: fmt.Sprintf("%d points but %d directions", len(f.Tidal.Points), len(f.Tidal.Directions)),
		}
	}
	for _, p := range f.Tidal.Points {
		if _, ok := f.Geodetic[p]; !ok {
			return &Mt.ConfigError{Field: "layout.geodetic", Value: p, Message: "tidal point without coordinates"}
		}
	}
	known := make(map[string]bool, len(f.Thermal.Points))
	for _, p := range f.Thermal.Points {
		known[p] = true
	}
	for name, g := range f.Groupings {
		for p := range g {
			if !known[p] {
				return &Mt.ConfigError{Field: "layout.groupings." + name, Value: p, Message: "grouping names an unknown point"}
			}
		}
	}
	return nil
}

func (l *Layout) NominalPerimeter() float64 { return l.f.NominalPerimeter }
func (l *Layout) RFChannel() string         { return l.f.RF.Channel }

func (l *Layout) ThermalPoints() []string      { return append([]string(nil), l.f.Thermal.Points...) }
func (l *Layout) ThermalDirections() []float64 { return append([]float64(nil), l.thermalAngles...) }
func (l *Layout) TidalPoints() []string        { return append([]string(nil), l.f.Tidal.Points...) }
func (l *Layout) TidalDirections() []float64   { return append([]float64(nil), l.f.Tidal.Directions...) }

// Cardinal returns the compass label of a tidal point, e.g. "NNE"
func (l *Layout) Cardinal(point string) (string, bool) {
	g, ok := l.f.Geodetic[point]
	return g.Cardinal, ok
}

// Sites lists the tidal points with coordinates, in layout order
func (l *Layout) Sites() []Mtd.Site {
	sites := make([]Mtd.Site, 0, len(l.f.Tidal.Points))
	for _, p := range l.f.Tidal.Points {
		g := l.f.Geodetic[p]
		sites = append(sites, Mtd.Site{Point: p, Latitude: g.Latitude, Longitude: g.Longitude})
	}
	return sites
}

// Groupings returns every sensor grouping strategy keyed by name
func (l *Layout) Groupings() map[string]Mth.Grouping {
	out := make(map[string]Mth.Grouping, len(l.f.Groupings))
	for name, g := range l.f.Groupings {
		cp := make(Mth.Grouping, len(g))
		for p, chans := range g {
			cp[p] = append([]string(nil), chans...)
		}
		out[name] = cp
	}
	return out
}

func (l *Layout) StrategyNames() []string {
	names := make([]string, 0, len(l.f.Groupings))
	for n := range l.f.Groupings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Polygons builds the thermal and tidal polygons for a nominal perimeter.
// A non-positive perimeter falls back to the layout's.
func (l *Layout) Polygons(perimeter float64) (thermal, tidal *Mg.Polygon, err error) {
	if perimeter <= 0 {
		perimeter = l.f.NominalPerimeter
	}
	thermal, err = Mg.NewPolygon(l.ThermalPoints(), Mg.QuadrantDirections(l.f.Thermal.QuadrantSpacing, perimeter), perimeter)
	if err != nil {
		return nil, nil, fmt.Errorf("thermal polygon: %w", err)
	}
	tidal, err = Mg.NewPolygon(l.TidalPoints(), l.TidalDirections(), perimeter)
	if err != nil {
		return nil, nil, fmt.Errorf("tidal polygon: %w", err)
	}
	return thermal, tidal, nil
}
