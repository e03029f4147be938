package config_test

import (
	"math"
	"testing"

	Mcfg "github.com/sirius-geo/ringdeform/config"
	Mt "github.com/sirius-geo/ringdeform/types"
)

func TestDefaultLayout(t *testing.T) {
	l, err := Mcfg.DefaultLayout()
	assertError(t, err, nil)

	t.Run("Has the ring's nominal perimeter", func(t *testing.T) {
		assertFloat(t, l.NominalPerimeter(), 518.4)
	})

	t.Run("Has forty thermal nodes with increasing directions", func(t *testing.T) {
		dirs := l.ThermalDirections()
		assertInt(t, len(l.ThermalPoints()), 40)
		assertInt(t, len(dirs), 40)
		assertFloat(t, dirs[0], 0)
		assertFloat(t, dirs[10], 90)
		for i := 1; i < len(dirs); i++ {
			if dirs[i] <= dirs[i-1] {
				t.Fatalf("direction %d (%g) not after %g", i, dirs[i], dirs[i-1])
			}
		}
	})

	t.Run("Has sixteen tidal sites with coordinates", func(t *testing.T) {
		sites := l.Sites()
		assertInt(t, len(sites), 16)
		assertString(t, sites[0].Point, "Q1P2")
		if sites[0].Latitude > -22 || sites[0].Latitude < -23 {
			t.Errorf("latitude %g is not at the ring", sites[0].Latitude)
		}
		c, ok := l.Cardinal("Q1P8")
		if !ok {
			t.Fatal("Q1P8 has no cardinal label")
		}
		assertString(t, c, "NNE")
	})

	t.Run("Carries every grouping strategy", func(t *testing.T) {
		names := l.StrategyNames()
		assertInt(t, len(names), 11)
		g := l.Groupings()["concrete/comb1"]
		assertInt(t, len(g["Q1P6"]), 2)
	})

	t.Run("Accessors return copies", func(t *testing.T) {
		l.ThermalPoints()[0] = "changed"
		l.Groupings()["hls"]["Q1P2"][0] = "changed"
		assertString(t, l.ThermalPoints()[0], "Q1P1")
		assertString(t, l.Groupings()["hls"]["Q1P2"][0], "TU-17C:SS-HLS-Ax04NE5:Temp-Mon")
	})

	t.Run("Builds both polygons", func(t *testing.T) {
		th, td, err := l.Polygons(0)
		assertError(t, err, nil)
		assertInt(t, th.Len(), 40)
		assertInt(t, td.Len(), 16)
		assertFloat(t, th.NominalPerimeter(), 518.4)
	})
}

func TestParseLayout(t *testing.T) {
	t.Run("Rejects tidal points without directions", func(t *testing.T) {
		_, err := Mcfg.ParseLayout([]byte(`
thermal:
  points: [A, B, C, D]
  quadrant_spacing: [1]
tidal:
  points: [A, B]
  directions: [0]
`))
		assertConfigError(t, err)
	})

	t.Run("Rejects groupings on unknown points", func(t *testing.T) {
		_, err := Mcfg.ParseLayout([]byte(`
thermal:
  points: [A, B, C, D]
  quadrant_spacing: [1]
groupings:
  custom:
    Z: [ch]
`))
		assertConfigError(t, err)
	})

	t.Run("Rejects malformed YAML", func(t *testing.T) {
		_, err := Mcfg.ParseLayout([]byte("thermal: [\n"))
		assertConfigError(t, err)
	})
}

func assertConfigError(t testing.TB, err error) {
	t.Helper()
	if !Mt.IsConfig(err) {
		t.Errorf("got %v, want a config error", err)
	}
}

func assertFloat(t testing.TB, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %g, want %g", got, want)
	}
}
