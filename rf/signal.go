package rf

import (
	"context"
	"fmt"
	"log/slog"

	Mt "github.com/sirius-geo/ringdeform/types"
)

// DefaultChannel is the generator frequency readback, in Hz
const DefaultChannel = "RF-Gen:GeneralFreq-RB"

type Fetcher interface {
	Fetch(ctx context.Context, channels []string, w Mt.Window) (*Mt.Table, error)
}

// Signal is the measured RF frequency, re-referenced to its first sample
type Signal struct {
	src     Fetcher
	channel string
}

func New(src Fetcher, channel string) (*Signal, error) {
	if src == nil {
		return nil, &Mt.ConfigError{Field: "rf.source", Message: "no data source"}
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Signal{src: src, channel: channel}, nil
}

func (s *Signal) Channel() string { return s.channel }

// Load returns a single-channel table named after the RF channel.
// A source holding exactly one other channel is accepted as the RF series,
// which is how spreadsheets exported by hand usually look.
func (s *Signal) Load(ctx context.Context, w Mt.Window) (*Mt.Table, error) {
	raw, err := s.src.Fetch(ctx, []string{s.channel}, w)
	if err != nil {
		return nil, fmt.Errorf("rf fetch: %w", err)
	}

	values, ok := raw.Channel(s.channel)
	if !ok {
		names := raw.Names()
		if len(names) != 1 {
			return nil, &Mt.InsufficientDataError{Channel: s.channel, Message: "rf channel not found in source"}
		}
		slog.Warn("RF channel taken from the only column available",
			slog.String("want", s.channel),
			slog.String("column", names[0]))
		values, _ = raw.Channel(names[0])
	}

	out, err := Mt.NewTable(raw.Index())
	if err != nil {
		return nil, err
	}
	if err := out.AddChannel(s.channel, values); err != nil {
		return nil, err
	}
	return out.Rebase(), nil
}
