package sensors

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestClass_TagsAndRanges(t *testing.T) {
	tests := []struct {
		class    Class
		tag      string
		min, max float64
	}{
		{Temperature, "tmp", 20.0, 25.0},
		{Humidity, "hum", 45.0, 85.0},
		{SunIntensity, "sun", 0, 100000},
		{CO2, "co2", 450, 1200},
	}

	for _, tt := range tests {
		if got := tt.class.Tag(); got != tt.tag {
			t.Errorf("%v: expected tag %q, got %q", tt.class, tt.tag, got)
		}
		lo, hi := tt.class.Range()
		if lo != tt.min || hi != tt.max {
			t.Errorf("%v: expected range [%v, %v], got [%v, %v]", tt.class, tt.min, tt.max, lo, hi)
		}
	}
}

func TestAllClasses_Order(t *testing.T) {
	want := []Class{Temperature, Humidity, SunIntensity, CO2}
	got := AllClasses()
	if len(got) != len(want) {
		t.Fatalf("Expected %d classes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestParseClass(t *testing.T) {
	cases := map[string]Class{
		"tmp":           Temperature,
		"Temperature":   Temperature,
		"hum":           Humidity,
		"sun":           SunIntensity,
		"sun_intensity": SunIntensity,
		"sun-intensity": SunIntensity,
		"SunIntensity":  SunIntensity,
		" CO2 ":         CO2,
	}
	for in, want := range cases {
		got, err := ParseClass(in)
		if err != nil {
			t.Errorf("ParseClass(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseClass(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseClass("pressure"); err == nil {
		t.Error("Expected error for unknown class")
	}
}

func TestRegistry_IdentifierDeterminism(t *testing.T) {
	reg := NewRegistry(DefaultSensorsPerClass, nil)

	for i := 0; i < 3; i++ {
		if got := reg.IdentifierFor(Temperature, 3); got != "sensor-tmp-3" {
			t.Fatalf("Expected sensor-tmp-3, got %s", got)
		}
	}

	want := map[Class]string{
		Temperature:  "sensor-tmp-1",
		Humidity:     "sensor-hum-1",
		SunIntensity: "sensor-sun-1",
		CO2:          "sensor-co2-1",
	}
	for c, id := range want {
		if got := reg.IdentifierFor(c, 1); got != id {
			t.Errorf("%v: expected %s, got %s", c, id, got)
		}
	}
}

func TestRegistry_Cardinality(t *testing.T) {
	reg := NewRegistry(4, map[Class]int{CO2: 2, Humidity: 0, SunIntensity: -3})

	if n := reg.CardinalityFor(Temperature); n != 4 {
		t.Errorf("Expected default 4, got %d", n)
	}
	if n := reg.CardinalityFor(CO2); n != 2 {
		t.Errorf("Expected override 2, got %d", n)
	}
	if n := reg.CardinalityFor(Humidity); n != 0 {
		t.Errorf("Expected override 0, got %d", n)
	}
	if n := reg.CardinalityFor(SunIntensity); n != 0 {
		t.Errorf("Negative override should clamp to 0, got %d", n)
	}
	if total := reg.Total(); total != 6 {
		t.Errorf("Expected total 6, got %d", total)
	}

	ids := reg.Identifiers(CO2)
	if len(ids) != 2 || ids[0] != "sensor-co2-1" || ids[1] != "sensor-co2-2" {
		t.Errorf("Unexpected identifiers: %v", ids)
	}
}

func TestGenerator_GenerateClassUniqueIDs(t *testing.T) {
	for _, n := range []int{1, 4, 17} {
		gen := NewGenerator(NewRegistry(n, nil))
		for _, c := range AllClasses() {
			readings := gen.GenerateClass(c)
			if len(readings) != n {
				t.Fatalf("%v/%d: expected %d readings, got %d", c, n, n, len(readings))
			}
			seen := make(map[string]bool, n)
			for i, r := range readings {
				want := fmt.Sprintf("sensor-%s-%d", c.Tag(), i+1)
				if r.SensorID != want {
					t.Errorf("Expected %s, got %s", want, r.SensorID)
				}
				if seen[r.SensorID] {
					t.Errorf("Duplicate sensor id %s", r.SensorID)
				}
				seen[r.SensorID] = true
			}
		}
	}
}

func TestGenerator_ValuesWithinRange(t *testing.T) {
	gen := NewGenerator(NewRegistry(1, nil), WithRand(rand.New(rand.NewPCG(1, 2))))

	for _, c := range AllClasses() {
		lo, hi := c.Range()
		violations := 0
		for i := 0; i < 5000; i++ {
			r := gen.Generate(c, 1)
			if r.Value < lo || r.Value > hi {
				violations++
			}
			if rounded := math.Round(r.Value*100) / 100; rounded != r.Value {
				t.Fatalf("%v: value %v is not rounded to 2 decimals", c, r.Value)
			}
		}
		if violations != 0 {
			t.Errorf("%v: %d samples outside [%v, %v]", c, violations, lo, hi)
		}
	}
}

func TestGenerator_DistinctTimestampsPerReading(t *testing.T) {
	base := time.Unix(1700000000, 0)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Millisecond)
	}
	gen := NewGenerator(NewRegistry(4, nil), WithClock(clock))

	readings := gen.GenerateClass(Humidity)
	if calls != 4 {
		t.Fatalf("Expected clock to be read once per reading, got %d reads", calls)
	}
	for i := 1; i < len(readings); i++ {
		if readings[i].Timestamp <= readings[i-1].Timestamp {
			t.Errorf("Reading %d timestamp %v not after %v", i, readings[i].Timestamp, readings[i-1].Timestamp)
		}
	}
}

func TestGenerator_Override(t *testing.T) {
	now := time.Unix(1700000000, 0)
	gen := NewGenerator(NewRegistry(4, nil), WithClock(fixedClock(now)))

	r := gen.Override(CO2, 999.9)
	if r.SensorID != "sensor-co2-1" {
		t.Errorf("Expected sensor-co2-1, got %s", r.SensorID)
	}
	if r.Value != 999.9 {
		t.Errorf("Expected 999.9, got %v", r.Value)
	}
	if r.Timestamp != 1700000000 {
		t.Errorf("Expected timestamp 1700000000, got %v", r.Timestamp)
	}

	// Overrides are not clamped or rounded.
	r = gen.Override(Temperature, -273.15678)
	if r.Value != -273.15678 || r.SensorID != "sensor-tmp-1" {
		t.Errorf("Unexpected override reading: %+v", r)
	}
}

func TestGenerator_EmptyClass(t *testing.T) {
	gen := NewGenerator(NewRegistry(4, map[Class]int{SunIntensity: 0}))
	if readings := gen.GenerateClass(SunIntensity); len(readings) != 0 {
		t.Errorf("Expected no readings, got %d", len(readings))
	}
}
