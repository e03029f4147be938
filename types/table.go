package types

import (
	"sort"
	"strconv"
	"time"
)

// Table is the Signal Table: a strictly increasing time index
// and any number of named channels, every one of them fully populated.
// Channels keep their insertion order so exports are stable.
type Table struct {
	index    []time.Time
	order    []string
	channels map[string][]float64
}

// NewTable copies the index and checks it is strictly increasing
func NewTable(index []time.Time) (*Table, error) {
	for i := 1; i < len(index); i++ {
		if !index[i].After(index[i-1]) {
			return nil, &InsufficientDataError{
				Channel: "index",
				Message: "timestamps must be strictly increasing at position " + strconv.Itoa(i),
			}
		}
	}
	idx := make([]time.Time, len(index))
	copy(idx, index)
	return &Table{
		index:    idx,
		channels: make(map[string][]float64),
	}, nil
}

func (t *Table) Len() int { return len(t.index) }

// Index returns a copy of the time index
func (t *Table) Index() []time.Time {
	out := make([]time.Time, len(t.index))
	copy(out, t.index)
	return out
}

// Names in insertion order
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// AddChannel stores a copy of values under name, replacing any previous channel.
// Partially populated channels are refused.
func (t *Table) AddChannel(name string, values []float64) error {
	if len(values) != len(t.index) {
		return &InsufficientDataError{
			Channel: name,
			Want:    len(t.index),
			Got:     len(values),
			Message: "channel length does not match the time index",
		}
	}
	if _, ok := t.channels[name]; !ok {
		t.order = append(t.order, name)
	}
	v := make([]float64, len(values))
	copy(v, values)
	t.channels[name] = v
	return nil
}

// Channel returns a copy of the named channel
func (t *Table) Channel(name string) ([]float64, bool) {
	v, ok := t.channels[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out, true
}

func (t *Table) Has(name string) bool {
	_, ok := t.channels[name]
	return ok
}

// Drop removes a channel, no-op when absent
func (t *Table) Drop(name string) {
	if _, ok := t.channels[name]; !ok {
		return
	}
	delete(t.channels, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Rebase returns a new table where every channel is re-referenced
// to its own first row.
func (t *Table) Rebase() *Table {
	out := &Table{
		index:    t.Index(),
		order:    t.Names(),
		channels: make(map[string][]float64, len(t.channels)),
	}
	for name, v := range t.channels {
		rb := make([]float64, len(v))
		if len(v) > 0 {
			ref := v[0]
			for i := range v {
				rb[i] = v[i] - ref
			}
		}
		out.channels[name] = rb
	}
	return out
}

// Clip keeps the rows inside w, both ends inclusive.
// An empty result is an error since nothing downstream can use it.
func (t *Table) Clip(w Window) (*Table, error) {
	lo := sort.Search(len(t.index), func(i int) bool { return !t.index[i].Before(w.Start) })
	hi := sort.Search(len(t.index), func(i int) bool { return t.index[i].After(w.End) })
	if lo >= hi {
		return nil, &InsufficientDataError{Channel: "index", Message: "window selects no rows"}
	}
	return t.slice(lo, hi), nil
}

// Head keeps the first n rows
func (t *Table) Head(n int) *Table {
	if n > len(t.index) {
		n = len(t.index)
	}
	if n < 0 {
		n = 0
	}
	return t.slice(0, n)
}

func (t *Table) slice(lo, hi int) *Table {
	out := &Table{
		index:    append([]time.Time(nil), t.index[lo:hi]...),
		order:    t.Names(),
		channels: make(map[string][]float64, len(t.channels)),
	}
	for name, v := range t.channels {
		out.channels[name] = append([]float64(nil), v[lo:hi]...)
	}
	return out
}

// Align resamples onto target with sample-and-hold: each target time takes the
// latest row at or before it. Targets earlier than the first row are an error.
func (t *Table) Align(target []time.Time) (*Table, error) {
	out, err := NewTable(target)
	if err != nil {
		return nil, err
	}
	if len(target) == 0 {
		return out, nil
	}
	if len(t.index) == 0 || target[0].Before(t.index[0]) {
		return nil, &InsufficientDataError{Channel: "index", Message: "source does not cover the start of the target index"}
	}

	pick := make([]int, len(target))
	j := 0
	for i, ts := range target {
		for j+1 < len(t.index) && !t.index[j+1].After(ts) {
			j++
		}
		pick[i] = j
	}

	for _, name := range t.order {
		src := t.channels[name]
		v := make([]float64, len(target))
		for i, p := range pick {
			v[i] = src[p]
		}
		out.order = append(out.order, name)
		out.channels[name] = v
	}
	return out, nil
}

// MeanOf averages the listed channels row by row, skipping any that are absent.
// The second return is how many channels contributed; zero means nil values.
func (t *Table) MeanOf(names []string) ([]float64, int) {
	var present [][]float64
	for _, n := range names {
		if v, ok := t.channels[n]; ok {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return nil, 0
	}
	out := make([]float64, len(t.index))
	for i := range out {
		var sum float64
		for _, v := range present {
			sum += v[i]
		}
		out[i] = sum / float64(len(present))
	}
	return out, len(present)
}

// Cadence is the sampling interval when it is uniform across the index.
// ok is false for irregular or single-row tables.
func (t *Table) Cadence() (step time.Duration, ok bool) {
	if len(t.index) < 2 {
		return 0, false
	}
	step = t.index[1].Sub(t.index[0])
	for i := 2; i < len(t.index); i++ {
		if t.index[i].Sub(t.index[i-1]) != step {
			return step, false
		}
	}
	return step, true
}
