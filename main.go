package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	Mcfg "github.com/sirius-geo/ringdeform/config"
	Md "github.com/sirius-geo/ringdeform/display"
	Mo "github.com/sirius-geo/ringdeform/obvy"
	Mp "github.com/sirius-geo/ringdeform/pipeline"
	Mx "github.com/sirius-geo/ringdeform/export"
	Mt "github.com/sirius-geo/ringdeform/types"
)

const usage = `ringdeform computes the storage ring circumference change caused by
temperature and earth tides and removes it from the RF frequency.

Usage:
  ringdeform run    -config run.json [-out result.xlsx]
  ringdeform serve  -config run.json [-addr :8090] [-interval 1h]
  ringdeform layout
`

// Exit codes, one per error kind
const (
	exitOK           = 0
	exitFailure      = 1
	exitConfig       = 2
	exitInsufficient = 3
	exitUpstream     = 4
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "run":
		err = runCmd(ctx, args[1:], stdout)
	case "serve":
		err = serveCmd(ctx, args[1:])
	case "layout":
		err = layoutCmd(args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return exitConfig
	}
	if err != nil {
		slog.Error("ringdeform failed", slog.String("command", args[0]), slog.Any("error", err))
		fmt.Fprintln(stderr, "error:", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case Mt.IsConfig(err):
		return exitConfig
	case Mt.IsInsufficientData(err):
		return exitInsufficient
	case Mt.IsUpstream(err):
		return exitUpstream
	}
	return exitFailure
}

// parseFlags reports bad arguments as configuration errors
func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return &Mt.ConfigError{Field: fs.Name(), Value: strings.Join(args, " "), Message: err.Error()}
}

// common holds the flags every data command shares
type common struct {
	ConfigFile *string
	EnvFile    *string
	LogLevel   *string
	LogFormat  *string
	Tracing    *string
}

func setupCommon(fs *flag.FlagSet) *common {
	c := &common{}
	c.ConfigFile = fs.String("config", "", "Path to the JSON run configuration")
	c.EnvFile = fs.String("env", ".env", "Optional env file read before the configuration")
	c.LogLevel = fs.String("log-level", envOr("LOG_LEVEL", "info"), "debug, info, warn or error")
	c.LogFormat = fs.String("log-format", envOr("LOG_FORMAT", "text"), "text or json")
	c.Tracing = fs.String("tracing", envOr("RINGDEFORM_OTEL", Mo.TracingOff), "Trace exporter: otlp, honeycomb or empty")
	return c
}

func envOr(ev, def string) string {
	if v := Mcfg.FillEnvVar(ev); v != Mcfg.Unset {
		return v
	}
	return def
}

// load sets up logging and tracing, then reads env, run config and layout
func (c *common) load(ctx context.Context, stderr io.Writer) (*Mcfg.Run, *Mcfg.Layout, func(context.Context) error, error) {
	if err := setupLogging(stderr, *c.LogLevel, *c.LogFormat); err != nil {
		return nil, nil, nil, err
	}
	if *c.ConfigFile == "" {
		return nil, nil, nil, &Mt.ConfigError{Field: "-config", Message: "a run configuration is required"}
	}
	if err := Mcfg.LoadEnv(*c.EnvFile); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := Mcfg.LoadConfigFileName(*c.ConfigFile)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.ApplyEnv()

	layout, err := Mcfg.DefaultLayout()
	if err != nil {
		return nil, nil, nil, err
	}
	shutdown, err := Mo.InitTracing(ctx, *c.Tracing)
	if err != nil {
		return nil, nil, nil, &Mt.ConfigError{Field: "-tracing", Value: *c.Tracing, Message: err.Error()}
	}
	return cfg, layout, shutdown, nil
}

func setupLogging(w io.Writer, level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return &Mt.ConfigError{Field: "-log-level", Value: level, Message: err.Error()}
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	default:
		return &Mt.ConfigError{Field: "-log-format", Value: format, Message: "must be text or json"}
	}
	return nil
}

func runCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	c := setupCommon(fs)
	out := fs.String("out", "", "Export path, .xlsx or .db; overrides export.path")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, layout, shutdown, err := c.load(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	stats := Mo.NewStatsInternal()
	deps, closeDeps, err := buildDeps(cfg, layout, stats)
	if err != nil {
		return err
	}
	defer closeDeps()

	res, err := Mp.Run(ctx, cfg, deps)
	if err != nil {
		return err
	}

	path := cfg.Export.Path
	if *out != "" {
		path = *out
	}
	if path != "" {
		t, err := res.Table()
		if err != nil {
			return err
		}
		if err := Mx.Write(path, t); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "window    %s .. %s\n", res.Window.Start.Format(time.RFC3339), res.Window.End.Format(time.RFC3339))
	fmt.Fprintf(stdout, "samples   %d\n", len(res.Times))
	fmt.Fprintf(stdout, "residual  %.3f Hz rms\n", res.ResidualRMS())
	if path != "" {
		fmt.Fprintf(stdout, "written   %s\n", path)
	}
	return nil
}

func serveCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	c := setupCommon(fs)
	addr := fs.String("addr", envOr(Mcfg.EnvAddr, ":8090"), "Listen address for the HTTP API and /metrics")
	interval := fs.Duration("interval", time.Hour, "How often the run is repeated")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, layout, shutdown, err := c.load(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	stats := Mo.NewStatsInternal()
	deps, closeDeps, err := buildDeps(cfg, layout, stats)
	if err != nil {
		return err
	}
	defer closeDeps()

	view := Md.NewView(stats, func(ctx context.Context) (*Mp.Result, error) {
		return Mp.Run(ctx, cfg, deps)
	})
	sup := view.NewRunSupervisor(*interval)
	sup.Start(ctx)
	defer sup.Stop()

	return view.Serve(ctx, *addr)
}

type layoutSummary struct {
	NominalPerimeter float64        `yaml:"nominal_perimeter"`
	RFChannel        string         `yaml:"rf_channel"`
	Thermal          []pointSummary `yaml:"thermal"`
	Tidal            []pointSummary `yaml:"tidal"`
	Strategies       map[string]int `yaml:"strategies"`
}

type pointSummary struct {
	Name      string  `yaml:"name"`
	Direction float64 `yaml:"direction"`
	Cardinal  string  `yaml:"cardinal,omitempty"`
}

func layoutCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("layout", flag.ContinueOnError)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	l, err := Mcfg.DefaultLayout()
	if err != nil {
		return err
	}

	sum := layoutSummary{
		NominalPerimeter: l.NominalPerimeter(),
		RFChannel:        l.RFChannel(),
		Strategies:       map[string]int{},
	}
	dirs := l.ThermalDirections()
	for i, p := range l.ThermalPoints() {
		sum.Thermal = append(sum.Thermal, pointSummary{Name: p, Direction: dirs[i]})
	}
	dirs = l.TidalDirections()
	for i, p := range l.TidalPoints() {
		card, _ := l.Cardinal(p)
		sum.Tidal = append(sum.Tidal, pointSummary{Name: p, Direction: dirs[i], Cardinal: card})
	}
	for name, g := range l.Groupings() {
		sum.Strategies[name] = len(g.Channels())
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(sum)
}
