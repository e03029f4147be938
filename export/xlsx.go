package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	Mt "github.com/sirius-geo/ringdeform/types"
)

const sheetName = "data"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

type XLSXWriter struct {
	Path string
}

func (x *XLSXWriter) Type() string { return "xlsx" }

// Write puts the time index in the first column, one channel per column after it
func (x *XLSXWriter) Write(t *Mt.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	names := t.Names()
	header := make([]interface{}, 0, len(names)+1)
	header = append(header, TimeColumn)
	for _, n := range names {
		header = append(header, n)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}

	cols := make([][]float64, len(names))
	for i, n := range names {
		cols[i], _ = t.Channel(n)
	}
	for r, ts := range t.Index() {
		row := make([]interface{}, 0, len(names)+1)
		row = append(row, ts.UTC().Format(time.RFC3339Nano))
		for _, c := range cols {
			row = append(row, c[r])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("xlsx row %d: %w", r+2, err)
		}
	}

	if err := f.SaveAs(x.Path); err != nil {
		return fmt.Errorf("xlsx save: %w", err)
	}
	return nil
}

// ReadXLSX loads the first sheet of a workbook. The time column is found by
// its header, or taken to be the first column. Times without a zone are read
// in loc, UTC when nil. Blank cells repeat the value above them.
func ReadXLSX(path string, loc *time.Location) (*Mt.Table, error) {
	if loc == nil {
		loc = time.UTC
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, &Mt.ConfigError{Field: "filepath", Value: path, Message: err.Error()}
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("xlsx open %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("xlsx rows %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, &Mt.InsufficientDataError{Channel: path, Want: 2, Got: len(rows), Message: "need a header and at least one row"}
	}

	header := rows[0]
	timeCol := 0
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), TimeColumn) {
			timeCol = i
			break
		}
	}

	index := make([]time.Time, 0, len(rows)-1)
	values := make([][]float64, len(header))
	filled := 0
	for r, row := range rows[1:] {
		if timeCol >= len(row) || strings.TrimSpace(row[timeCol]) == "" {
			continue
		}
		ts, err := parseCellTime(row[timeCol], loc)
		if err != nil {
			return nil, fmt.Errorf("xlsx %s row %d: %w", path, r+2, err)
		}
		index = append(index, ts)

		for c := range header {
			if c == timeCol {
				continue
			}
			cell := ""
			if c < len(row) {
				cell = strings.TrimSpace(row[c])
			}
			if cell == "" {
				if len(values[c]) == 0 {
					return nil, &Mt.InsufficientDataError{Channel: header[c], Message: "first row is blank"}
				}
				values[c] = append(values[c], values[c][len(values[c])-1])
				filled++
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("xlsx %s row %d column %q: %w", path, r+2, header[c], err)
			}
			values[c] = append(values[c], v)
		}
	}
	if filled > 0 {
		slog.Warn("Blank cells carried forward", slog.String("path", path), slog.Int("cells", filled))
	}

	t, err := Mt.NewTable(index)
	if err != nil {
		return nil, fmt.Errorf("xlsx %s: %w", path, err)
	}
	for c, name := range header {
		if c == timeCol {
			continue
		}
		if err := t.AddChannel(strings.TrimSpace(name), values[c]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func parseCellTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts.UTC(), nil
		}
	}
	// date cells come back as serial numbers with raw values
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		ts, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		wall := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), loc)
		return wall.Round(time.Second).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// ZeroFillRecorder counts channels a source had to zero-fill.
// obvy.StatsInternal implements it.
type ZeroFillRecorder interface {
	RecZeroFill(channel string)
}

// FileSource serves channels out of a local workbook, the way the archiver
// client serves them from the network
type FileSource struct {
	Path     string
	Location *time.Location
	Stats    ZeroFillRecorder
}

func NewFileSource(path string, loc *time.Location) *FileSource {
	return &FileSource{Path: path, Location: loc}
}

// Fetch returns the requested channels clipped to w. Requested channels the
// workbook lacks are zero-filled and reported, as the archiver does for empty
// answers. When none of them is in the workbook every column is returned so
// callers can pick a lone series.
func (fs *FileSource) Fetch(ctx context.Context, channels []string, w Mt.Window) (*Mt.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := ReadXLSX(fs.Path, fs.Location)
	if err != nil {
		return nil, err
	}
	clipped, err := all.Clip(w)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(channels))
	found := 0
	for _, c := range channels {
		if wanted[c] {
			continue
		}
		wanted[c] = true
		if clipped.Has(c) {
			found++
		}
	}
	if found == 0 {
		return clipped, nil
	}

	out, err := Mt.NewTable(clipped.Index())
	if err != nil {
		return nil, err
	}
	zeroFilled := 0
	for _, c := range channels {
		if out.Has(c) {
			continue
		}
		values, ok := clipped.Channel(c)
		if !ok {
			values = make([]float64, clipped.Len())
			zeroFilled++
			if fs.Stats != nil {
				fs.Stats.RecZeroFill(c)
			}
			slog.Warn("Local channel missing, zero-filled",
				slog.String("path", fs.Path),
				slog.String("channel", c),
				slog.Int("samples", clipped.Len()))
		}
		if err := out.AddChannel(c, values); err != nil {
			return nil, err
		}
	}
	slog.Debug("Local source read",
		slog.String("path", fs.Path),
		slog.Int("rows", out.Len()),
		slog.Int("channels", found),
		slog.Int("zeroFilled", zeroFilled))
	return out, nil
}
