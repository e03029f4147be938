package pipeline_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	Mcfg "github.com/sirius-geo/ringdeform/config"
	Mp "github.com/sirius-geo/ringdeform/pipeline"
	Mt "github.com/sirius-geo/ringdeform/types"
)

var t0 = time.Date(2021, 11, 13, 0, 0, 0, 0, time.UTC)

const testLayout = `
nominal_perimeter: 518.4
thermal:
  points: [A, B, C, D]
  quadrant_spacing: [1]
tidal:
  points: [A, B, C, D]
  directions: [0, 90, 180, 270]
rf:
  channel: "RF"
geodetic:
  A: {cardinal: E, latitude: -22.8078, longitude: -47.0518}
  B: {cardinal: N, latitude: -22.8072, longitude: -47.0524}
  C: {cardinal: W, latitude: -22.8078, longitude: -47.0532}
  D: {cardinal: S, latitude: -22.8085, longitude: -47.0525}
groupings:
  square:
    A: ["TU-01S:SS-Concrete-5AP:Temp-Mon"]
    B: ["TU-02S:SS-Concrete-5AP:Temp-Mon"]
    C: ["TU-03S:SS-Concrete-5AP:Temp-Mon"]
    D: ["TU-04S:SS-Concrete-5AP:Temp-Mon"]
`

// rampSource serves every requested channel as start + slope*i on minute bins
// centered 30 s after the window start
type rampSource struct {
	start, slope float64
	err          error
}

func (s rampSource) Fetch(_ context.Context, channels []string, w Mt.Window) (*Mt.Table, error) {
	if s.err != nil {
		return nil, s.err
	}
	var idx []time.Time
	for ts := w.Start.Add(30 * time.Second); !ts.After(w.End); ts = ts.Add(time.Minute) {
		idx = append(idx, ts)
	}
	tb, err := Mt.NewTable(idx)
	if err != nil {
		return nil, err
	}
	for _, c := range channels {
		v := make([]float64, len(idx))
		for i := range v {
			v[i] = s.start + s.slope*float64(i)
		}
		if err := tb.AddChannel(c, v); err != nil {
			return nil, err
		}
	}
	return tb, nil
}

// stillEarth never moves
type stillEarth struct{}

func (stillEarth) Solid(_ context.Context, _ time.Time, _, _ float64, step time.Duration) ([]Mt.NEU, error) {
	return make([]Mt.NEU, int(24*time.Hour/step)), nil
}

type recorder struct {
	mu     sync.Mutex
	stages map[string]int
	runs   int
}

func (r *recorder) RecStage(stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = map[string]int{}
	}
	r.stages[stage]++
}
func (r *recorder) RecMissingPoints(int)      {}
func (r *recorder) RecRun(time.Time, float64) { r.runs++ }

func makeRun(t *testing.T, extra string) *Mcfg.Run {
	t.Helper()
	cfg, err := Mcfg.LoadConfig(strings.NewReader(`{
	  "window": {"start": "2021-11-13 00:00:00", "end": "2021-11-13 01:00:00", "location": "UTC"},
	  "thermal": {"strategy": "square"}` + extra + `
	}`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func makeDeps(t *testing.T) Mp.Deps {
	t.Helper()
	l, err := Mcfg.ParseLayout([]byte(testLayout))
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	return Mp.Deps{
		Layout:  l,
		Thermal: rampSource{start: 24, slope: 0.01},
		RF:      rampSource{start: 499654000, slope: 0},
		Geodesy: stillEarth{},
	}
}

func TestRun(t *testing.T) {
	t.Run("With still tides the deformation is the thermal delta in micrometers", func(t *testing.T) {
		cfg := makeRun(t, `, "composition": {"lag_samples": 0}`)
		rec := &recorder{}
		deps := makeDeps(t)
		deps.Stats = rec

		res, err := Mp.Run(context.Background(), cfg, deps)
		assertError(t, err, nil)

		assertInt(t, len(res.Times), 60)
		assertInt(t, len(res.Deformation), 60)
		for i, d := range res.Thermal.Delta {
			assertFloat(t, res.Deformation[i], d*1e6)
		}
		for _, d := range res.Tidal.Delta {
			assertFloat(t, d, 0)
		}
		if res.Deformation[59] <= 0 {
			t.Errorf("warming should lengthen the ring, got %g µm", res.Deformation[59])
		}
		if res.Frequency[59] >= 0 {
			t.Errorf("a longer ring should lower the frequency, got %g Hz", res.Frequency[59])
		}
		for i := range res.Residual {
			assertFloat(t, res.Residual[i], res.RF[i]-res.Frequency[i])
		}

		assertInt(t, rec.stages["thermal"], 1)
		assertInt(t, rec.stages["tidal"], 1)
		assertInt(t, rec.stages["rf"], 1)
		assertInt(t, rec.stages["compose"], 1)
		assertInt(t, rec.runs, 1)
	})

	t.Run("The lag shifts and truncates", func(t *testing.T) {
		cfg := makeRun(t, `, "composition": {"lag_samples": 10}`)
		res, err := Mp.Run(context.Background(), cfg, makeDeps(t))
		assertError(t, err, nil)
		assertInt(t, len(res.Deformation), 50)
		assertFloat(t, res.Deformation[0], 0)
		assertFloat(t, res.Deformation[5], (res.Thermal.Delta[15]-res.Thermal.Delta[10])*1e6)
	})

	t.Run("A disabled effect contributes zeros", func(t *testing.T) {
		cfg := makeRun(t, `, "effects": ["tidal"], "composition": {"lag_samples": 0}`)
		res, err := Mp.Run(context.Background(), cfg, makeDeps(t))
		assertError(t, err, nil)
		for _, v := range res.Deformation {
			assertFloat(t, v, 0)
		}
		assertInt(t, len(res.Effects), 1)
	})

	t.Run("A lag longer than the window is insufficient data", func(t *testing.T) {
		cfg := makeRun(t, `, "composition": {"lag_samples": 500}`)
		_, err := Mp.Run(context.Background(), cfg, makeDeps(t))
		if !Mt.IsInsufficientData(err) {
			t.Errorf("got %v, want insufficient data", err)
		}
	})

	t.Run("Upstream failures surface as upstream errors", func(t *testing.T) {
		deps := makeDeps(t)
		deps.RF = rampSource{err: &Mt.UpstreamError{Op: "archiver fetch", Target: "rf", Attempts: 5, Err: errors.New("503")}}
		_, err := Mp.Run(context.Background(), makeRun(t, ""), deps)
		if !Mt.IsUpstream(err) {
			t.Errorf("got %v, want an upstream error", err)
		}
	})

	t.Run("Unknown grouping strategies are configuration errors", func(t *testing.T) {
		cfg := makeRun(t, "")
		cfg.Thermal.Strategy = "concrete/comb42"
		_, err := Mp.Run(context.Background(), cfg, makeDeps(t))
		if !Mt.IsConfig(err) {
			t.Errorf("got %v, want a config error", err)
		}
	})

	t.Run("Needs a layout", func(t *testing.T) {
		_, err := Mp.Run(context.Background(), makeRun(t, ""), Mp.Deps{})
		if !Mt.IsConfig(err) {
			t.Errorf("got %v, want a config error", err)
		}
	})
}

func TestResult_ResidualRMS(t *testing.T) {
	var r *Mp.Result
	assertFloat(t, r.ResidualRMS(), 0)
}

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %v, want %v", got, want)
	}
}

func assertInt(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func assertFloat(t testing.TB, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("got %g, want %g", got, want)
	}
}
