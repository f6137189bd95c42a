package sensors

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sensorsim/internal/models"
)

// Generator produces synthetic readings for the sensors in a Registry.
type Generator struct {
	registry *Registry
	now      func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Generator)

// WithRand replaces the random source, mostly for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) { g.rng = rng }
}

// WithClock replaces time.Now as the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func NewGenerator(registry *Registry, opts ...Option) *Generator {
	g := &Generator{
		registry: registry,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Registry() *Registry {
	return g.registry
}

// Generate samples one reading for sensor index of class c.
func (g *Generator) Generate(c Class, index int) models.Reading {
	value := g.sample(c)
	return models.NewReading(SensorID(c, index), value, g.now())
}

// GenerateClass samples one reading per sensor of class c. Every reading is
// stamped when it is generated, so readings of one class carry distinct times.
func (g *Generator) GenerateClass(c Class) []models.Reading {
	n := g.registry.CardinalityFor(c)
	readings := make([]models.Reading, 0, n)
	for i := 1; i <= n; i++ {
		readings = append(readings, g.Generate(c, i))
	}
	return readings
}

// Override builds a reading for sensor 1 of class c carrying value verbatim.
// The value is neither rounded nor checked against the class range.
func (g *Generator) Override(c Class, value float64) models.Reading {
	return models.NewReading(SensorID(c, 1), value, g.now())
}

func (g *Generator) sample(c Class) float64 {
	lo, hi := c.Range()

	g.mu.Lock()
	u := g.rng.Float64()
	g.mu.Unlock()

	v := math.Round((lo+u*(hi-lo))*100) / 100
	return math.Min(math.Max(v, lo), hi)
}
