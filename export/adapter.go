package export

/*

	Exporters persist a Signal Table to disk.
	The format is picked from the file extension.

*/

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	Mt "github.com/sirius-geo/ringdeform/types"
)

// TimeColumn is the header of the time index in every tabular format
const TimeColumn = "datetime"

// Writer stores a whole table at once
type Writer interface {
	Write(t *Mt.Table) error
	Type() string // ID for output
}

// Writers maps a lower-case file extension to its exporter
var Writers = map[string]func(path string) Writer{
	".xlsx": func(path string) Writer {
		return &XLSXWriter{Path: path}
	},
	".db": func(path string) Writer {
		return &SQLiteWriter{Path: path}
	},
	".sqlite": func(path string) Writer {
		return &SQLiteWriter{Path: path}
	},
}

func WriterLookup(path string) (Writer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	factory, ok := Writers[ext]
	if !ok {
		return nil, &Mt.ConfigError{Field: "export.path", Value: path, Message: fmt.Sprintf("unknown exporter: %q", ext)}
	}
	return factory(path), nil
}

// Write picks the exporter for path and stores t there
func Write(path string, t *Mt.Table) error {
	w, err := WriterLookup(path)
	if err != nil {
		return err
	}
	if err := w.Write(t); err != nil {
		slog.Error("Export failed", slog.String("type", w.Type()), slog.String("path", path), slog.Any("error", err))
		return err
	}
	slog.Info("Exported",
		slog.String("type", w.Type()),
		slog.String("path", path),
		slog.Int("rows", t.Len()),
		slog.Int("channels", len(t.Names())))
	return nil
}
