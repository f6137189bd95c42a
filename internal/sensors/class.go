package sensors

import (
	"fmt"
	"strings"
)

// Class is a category of virtual sensor with its own value range.
type Class int

const (
	Temperature Class = iota
	Humidity
	SunIntensity
	CO2
)

type classInfo struct {
	name string
	tag  string
	min  float64
	max  float64
}

// classTable is indexed by Class. Adding a class means adding a constant and a row.
var classTable = [...]classInfo{
	Temperature:  {name: "temperature", tag: "tmp", min: 20.0, max: 25.0},
	Humidity:     {name: "humidity", tag: "hum", min: 45.0, max: 85.0},
	SunIntensity: {name: "sun_intensity", tag: "sun", min: 0, max: 100000},
	CO2:          {name: "co2", tag: "co2", min: 450, max: 1200},
}

// AllClasses returns every class in emission order.
func AllClasses() []Class {
	return []Class{Temperature, Humidity, SunIntensity, CO2}
}

func (c Class) Valid() bool {
	return c >= 0 && int(c) < len(classTable)
}

// Tag is the short identifier used in sensor ids, e.g. "tmp".
func (c Class) Tag() string {
	if !c.Valid() {
		return ""
	}
	return classTable[c].tag
}

// Range returns the inclusive bounds values of this class are sampled from.
func (c Class) Range() (min, max float64) {
	if !c.Valid() {
		return 0, 0
	}
	info := classTable[c]
	return info.min, info.max
}

func (c Class) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Class(%d)", int(c))
	}
	return classTable[c].name
}

// ParseClass accepts either a tag ("tmp") or a name ("temperature").
// Matching ignores case, and dashes are treated as underscores.
func ParseClass(s string) (Class, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, info := range classTable {
		if key == info.tag || key == info.name || key == strings.ReplaceAll(info.name, "_", "") {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sensor class %q", s)
}
