package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	Mc "github.com/sirius-geo/ringdeform/compose"
	Mcfg "github.com/sirius-geo/ringdeform/config"
	Mg "github.com/sirius-geo/ringdeform/geometry"
	Mo "github.com/sirius-geo/ringdeform/obvy"
	Mrf "github.com/sirius-geo/ringdeform/rf"
	Mth "github.com/sirius-geo/ringdeform/thermal"
	Mtd "github.com/sirius-geo/ringdeform/tides"
	Mt "github.com/sirius-geo/ringdeform/types"
)

// Recorder receives stage timings and run summaries. obvy.StatsInternal implements it.
type Recorder interface {
	RecStage(stage string, d time.Duration)
	RecMissingPoints(n int)
	RecRun(at time.Time, residualRMS float64)
}

type nopRecorder struct{}

func (nopRecorder) RecStage(string, time.Duration) {}
func (nopRecorder) RecMissingPoints(int)           {}
func (nopRecorder) RecRun(time.Time, float64)      {}

// Deps are the data sources a run reads from
type Deps struct {
	Layout  *Mcfg.Layout
	Thermal Mth.Source
	RF      Mrf.Fetcher
	Geodesy Mtd.Geodesy // nil selects the built-in solid earth tide
	Stats   Recorder
	Tracer  trace.Tracer

	TideOptions []Mtd.Option
}

// Result is a completed run
type Result struct {
	*Mc.Result
	Window  Mt.Window
	Thermal *Mg.DeltaResult
	Tidal   *Mg.DeltaResult
	Effects []Mg.EffectType
	Elapsed time.Duration
}

// ResidualRMS summarizes the residual in Hz
func (r *Result) ResidualRMS() float64 {
	if r == nil || r.Result == nil || len(r.Residual) == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.Residual {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(r.Residual)))
}

// Run fetches both effects and the RF signal, pushes each effect through its
// polygon, then composes the deformation against RF.
// Thermal, tidal and RF work run concurrently; the first error cancels the rest.
func Run(ctx context.Context, cfg *Mcfg.Run, deps Deps) (*Result, error) {
	began := time.Now()
	if deps.Layout == nil {
		return nil, &Mt.ConfigError{Field: "layout", Message: "no layout"}
	}
	if deps.Stats == nil {
		deps.Stats = nopRecorder{}
	}
	if deps.Tracer == nil {
		deps.Tracer = Mo.Tracer()
	}

	ctx, span := deps.Tracer.Start(ctx, "ringdeform.run")
	defer span.End()

	w, err := cfg.TimeWindow()
	if err != nil {
		return nil, fail(span, err)
	}
	effects, err := cfg.EnabledEffects()
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(
		attribute.String("window.start", w.Start.Format(time.RFC3339)),
		attribute.String("window.end", w.End.Format(time.RFC3339)),
		attribute.Int("effects", len(effects)),
	)

	perimeter := cfg.NominalPerimeter
	if perimeter <= 0 {
		perimeter = deps.Layout.NominalPerimeter()
	}
	thermalPoly, tidalPoly, err := deps.Layout.Polygons(perimeter)
	if err != nil {
		return nil, fail(span, err)
	}

	r := &runner{cfg: cfg, deps: deps, w: w, perimeter: perimeter}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	stage := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, sp := deps.Tracer.Start(ctx, "ringdeform."+name)
			defer sp.End()
			start := time.Now()
			err := fn(sctx)
			deps.Stats.RecStage(name, time.Since(start))
			if err != nil {
				sp.RecordError(err)
				sp.SetStatus(codes.Error, err.Error())
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

	if cfg.Enabled(Mg.Thermal) {
		stage("thermal", func(ctx context.Context) error { return r.thermal(ctx, thermalPoly) })
	}
	if cfg.Enabled(Mg.Tidal) {
		stage("tidal", func(ctx context.Context) error { return r.tidal(ctx, tidalPoly) })
	}
	stage("rf", r.rf)
	wg.Wait()
	if firstErr != nil {
		return nil, fail(span, firstErr)
	}

	start := time.Now()
	res, err := r.compose(thermalPoly, tidalPoly)
	deps.Stats.RecStage("compose", time.Since(start))
	if err != nil {
		return nil, fail(span, err)
	}
	res.Effects = effects
	res.Elapsed = time.Since(began)

	rms := res.ResidualRMS()
	deps.Stats.RecRun(time.Now(), rms)
	span.SetAttributes(attribute.Int("samples", len(res.Times)), attribute.Float64("residual.rms", rms))
	slog.Info("Run complete",
		slog.Time("start", w.Start),
		slog.Time("end", w.End),
		slog.Int("samples", len(res.Times)),
		slog.Float64("residualRMS", rms),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

type runner struct {
	cfg       *Mcfg.Run
	deps      Deps
	w         Mt.Window
	perimeter float64

	thermalRes *Mg.DeltaResult
	tidalRes   *Mg.DeltaResult
	rfTable    *Mt.Table
}

func (r *runner) thermal(ctx context.Context, poly *Mg.Polygon) error {
	g, err := Mth.Strategy(r.deps.Layout.Groupings(), r.cfg.Thermal.Strategy, r.cfg.Thermal.Level, r.cfg.Thermal.SensorType)
	if err != nil {
		return err
	}
	p, err := Mth.NewProvider(r.deps.Thermal, g, r.perimeter)
	if err != nil {
		return err
	}
	d, err := p.Displacement(ctx, r.w)
	if err != nil {
		return err
	}
	res, err := poly.DeltaSeries(d)
	if err != nil {
		return err
	}
	r.deps.Stats.RecMissingPoints(len(res.Missing))
	r.thermalRes = res
	return nil
}

func (r *runner) tidal(ctx context.Context, poly *Mg.Polygon) error {
	p, err := Mtd.NewProvider(r.deps.Geodesy, r.deps.Layout.Sites(), r.deps.TideOptions...)
	if err != nil {
		return err
	}
	d, err := p.Displacement(ctx, r.w)
	if err != nil {
		return err
	}
	res, err := poly.DeltaSeries(d)
	if err != nil {
		return err
	}
	r.deps.Stats.RecMissingPoints(len(res.Missing))
	r.tidalRes = res
	return nil
}

func (r *runner) rf(ctx context.Context) error {
	channel := r.cfg.RF.Channel
	if channel == "" {
		channel = r.deps.Layout.RFChannel()
	}
	s, err := Mrf.New(r.deps.RF, channel)
	if err != nil {
		return err
	}
	t, err := s.Load(ctx, r.w)
	if err != nil {
		return err
	}
	r.rfTable = t
	return nil
}

// compose puts every series on one time base and hands them to the
// composition layer. The base is the thermal index when thermal is enabled,
// the RF index otherwise; the rest is aligned with sample-and-hold.
func (r *runner) compose(thermalPoly, tidalPoly *Mg.Polygon) (*Result, error) {
	base := r.rfTable.Index()
	if r.thermalRes != nil {
		base = r.thermalRes.Times
	}

	rfAligned, err := r.rfTable.Align(base)
	if err != nil {
		return nil, fmt.Errorf("rf alignment: %w", err)
	}
	rf, _ := rfAligned.Channel(r.rfTable.Names()[0])

	thermalRes := r.thermalRes
	if thermalRes == nil {
		if thermalRes, err = zeroDelta(thermalPoly, Mg.Thermal, base); err != nil {
			return nil, err
		}
	}
	tidalRes := r.tidalRes
	if tidalRes == nil {
		if tidalRes, err = zeroDelta(tidalPoly, Mg.Tidal, base); err != nil {
			return nil, err
		}
	}

	thermal, err := alignDelta(thermalRes, base)
	if err != nil {
		return nil, fmt.Errorf("thermal alignment: %w", err)
	}
	tidal, err := alignDelta(tidalRes, base)
	if err != nil {
		return nil, fmt.Errorf("tidal alignment: %w", err)
	}

	composed, err := Mc.Run(base, thermal, tidal, rf, r.cfg.Options())
	if err != nil {
		return nil, err
	}
	return &Result{
		Result:  composed,
		Window:  r.w,
		Thermal: thermalRes,
		Tidal:   tidalRes,
	}, nil
}

func zeroDelta(poly *Mg.Polygon, effect Mg.EffectType, times []time.Time) (*Mg.DeltaResult, error) {
	d, err := poly.Zero(effect, times)
	if err != nil {
		return nil, err
	}
	return poly.DeltaSeries(d)
}

func alignDelta(res *Mg.DeltaResult, base []time.Time) ([]float64, error) {
	t, err := Mt.NewTable(res.Times)
	if err != nil {
		return nil, err
	}
	if err := t.AddChannel("delta", res.Delta); err != nil {
		return nil, err
	}
	aligned, err := t.Align(base)
	if err != nil {
		return nil, err
	}
	out, _ := aligned.Channel("delta")
	return out, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
