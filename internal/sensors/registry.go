package sensors

import "fmt"

// DefaultSensorsPerClass matches the fleet size the generator has always used.
const DefaultSensorsPerClass = 4

// Registry knows how many virtual sensors each class has and how they are named.
type Registry struct {
	defaultCount int
	perClass     map[Class]int
}

// NewRegistry creates a registry where every class has defaultCount sensors,
// except the classes listed in overrides.
func NewRegistry(defaultCount int, overrides map[Class]int) *Registry {
	if defaultCount < 0 {
		defaultCount = 0
	}
	perClass := make(map[Class]int, len(overrides))
	for c, n := range overrides {
		if n < 0 {
			n = 0
		}
		perClass[c] = n
	}
	return &Registry{defaultCount: defaultCount, perClass: perClass}
}

// CardinalityFor returns the number of sensors in class c.
func (r *Registry) CardinalityFor(c Class) int {
	if n, ok := r.perClass[c]; ok {
		return n
	}
	return r.defaultCount
}

// IdentifierFor returns the stable identifier of sensor index (1-based) in class c.
func (r *Registry) IdentifierFor(c Class, index int) string {
	return SensorID(c, index)
}

// Identifiers lists every sensor identifier of class c in index order.
func (r *Registry) Identifiers(c Class) []string {
	n := r.CardinalityFor(c)
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		ids = append(ids, SensorID(c, i))
	}
	return ids
}

// Total is the number of readings one full cycle emits.
func (r *Registry) Total() int {
	total := 0
	for _, c := range AllClasses() {
		total += r.CardinalityFor(c)
	}
	return total
}

// SensorID formats sensor-<tag>-<index>. Consumers key on this, keep it stable.
func SensorID(c Class, index int) string {
	return fmt.Sprintf("sensor-%s-%d", c.Tag(), index)
}
