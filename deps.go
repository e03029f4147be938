package main

import (
	"log/slog"
	"math"
	"time"

	Ma "github.com/sirius-geo/ringdeform/archiver"
	Mcfg "github.com/sirius-geo/ringdeform/config"
	Mo "github.com/sirius-geo/ringdeform/obvy"
	Mp "github.com/sirius-geo/ringdeform/pipeline"
	Mx "github.com/sirius-geo/ringdeform/export"
)

// buildDeps picks the archiver or a local workbook for each source.
// The returned func releases the response cache.
func buildDeps(cfg *Mcfg.Run, layout *Mcfg.Layout, stats *Mo.StatsInternal) (Mp.Deps, func() error, error) {
	deps := Mp.Deps{Layout: layout, Stats: stats}
	closer := func() error { return nil }

	loc, err := time.LoadLocation(cfg.Window.Location)
	if err != nil {
		return deps, closer, err
	}

	var client *Ma.Client
	if cfg.Thermal.Source == Mcfg.SourceArchiver || cfg.RF.Source == Mcfg.SourceArchiver {
		timeout, err := cfg.ArchiverTimeout()
		if err != nil {
			return deps, closer, err
		}
		opts := []Ma.Option{
			Ma.WithMeanMinutes(cfg.MeanMinutes()),
			Ma.WithMaxRetries(uint64(cfg.MaxRetries())),
			Ma.WithTimeout(timeout),
			Ma.WithRecorder(stats),
		}
		if rps := cfg.Archiver.RatePerSecond; rps > 0 {
			opts = append(opts, Ma.WithRateLimit(rps, int(math.Max(1, math.Ceil(rps)))))
		}
		if path := cfg.Archiver.CachePath; path != "" {
			cache, err := Ma.NewBadgerCache(path)
			if err != nil {
				return deps, closer, err
			}
			opts = append(opts, Ma.WithCache(cache))
			closer = cache.Close
		}
		client = Ma.NewClient(cfg.Archiver.URL, opts...)
		slog.Info("Archiver configured",
			slog.String("url", cfg.Archiver.URL),
			slog.Int("meanMinutes", cfg.MeanMinutes()),
			slog.Bool("cache", cfg.Archiver.CachePath != ""))
	}

	if cfg.Thermal.Source == Mcfg.SourceLocal {
		src := Mx.NewFileSource(cfg.Thermal.FilePath, loc)
		src.Stats = stats
		deps.Thermal = src
	} else {
		deps.Thermal = client
	}
	if cfg.RF.Source == Mcfg.SourceLocal {
		src := Mx.NewFileSource(cfg.RF.FilePath, loc)
		src.Stats = stats
		deps.RF = src
	} else {
		deps.RF = client
	}
	return deps, closer, nil
}
