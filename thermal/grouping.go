package thermal

import (
	"sort"
	"strings"

	Mt "github.com/sirius-geo/ringdeform/types"
)

// Grouping maps a polygon point to the sensor channels averaged for it
type Grouping map[string][]string

// Channels is the sorted union of every sensor in the grouping
func (g Grouping) Channels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, chs := range g {
		for _, ch := range chs {
			if !seen[ch] {
				seen[ch] = true
				out = append(out, ch)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Points in sorted order
func (g Grouping) Points() []string {
	out := make([]string, 0, len(g))
	for p := range g {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (g Grouping) clone() Grouping {
	out := make(Grouping, len(g))
	for p, chs := range g {
		out[p] = append([]string(nil), chs...)
	}
	return out
}

// Custom is the strategy name that filters the base grouping by level and type
const (
	Custom       = "custom"
	BaseGrouping = "concrete/all_sensors"
)

// Strategy resolves a grouping by name from the configured catalogue.
// "custom" keeps the sensors of BaseGrouping whose tag contains both level and sensorType.
func Strategy(catalogue map[string]Grouping, name, level, sensorType string) (Grouping, error) {
	if name == Custom || (name == "" && (level != "" || sensorType != "")) {
		base, ok := catalogue[BaseGrouping]
		if !ok {
			return nil, &Mt.ConfigError{Field: "thermal.strategy", Value: BaseGrouping, Message: "base grouping missing from layout"}
		}
		if level == "" && sensorType == "" {
			return nil, &Mt.ConfigError{Field: "thermal.strategy", Value: Custom, Message: "level or sensor_type is required"}
		}
		return Filter(base, level, sensorType), nil
	}

	g, ok := catalogue[name]
	if !ok {
		return nil, &Mt.ConfigError{Field: "thermal.strategy", Value: name, Message: "unknown sensor grouping strategy"}
	}
	return g.clone(), nil
}

// Filter keeps channels whose tag contains both level and sensorType.
// Points left with no channel are dropped.
func Filter(base Grouping, level, sensorType string) Grouping {
	out := make(Grouping)
	for point, chs := range base {
		var keep []string
		for _, ch := range chs {
			tag := SensorTag(ch)
			if strings.Contains(tag, level) && strings.Contains(tag, sensorType) {
				keep = append(keep, ch)
			}
		}
		if len(keep) > 0 {
			out[point] = keep
		}
	}
	return out
}

// SensorTag is the third dash field of the device part of a channel,
// "5AN" in "TU-15S:SS-Concrete-5AN:Temp-Mon". Empty when the name has no such field.
func SensorTag(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) < 2 {
		return ""
	}
	fields := strings.Split(parts[1], "-")
	if len(fields) < 3 {
		return ""
	}
	return fields[2]
}
