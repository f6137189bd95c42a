package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sensorsim/internal/models"
	"github.com/sensorsim/internal/sensors"
	"go.uber.org/zap"
)

// Unbounded makes the scheduler emit until it is stopped.
const Unbounded = -1

var (
	ErrAlreadyStarted = errors.New("emitter: scheduler already started")
	// ErrNotRunning is returned by Inject outside an active run.
	ErrNotRunning = errors.New("emitter: scheduler is not running")
)

// Publisher is the part of the publisher adapter the scheduler drives.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, r models.Reading) error
	Close()
}

type Config struct {
	// Cycles to emit; Unbounded runs until ctx is cancelled.
	Cycles   int
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{Cycles: 2, Interval: 2 * time.Second}
}

type Option func(*Scheduler)

func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// Scheduler runs timed emission cycles: every cycle publishes one reading per
// sensor, class by class, then waits for the configured interval.
type Scheduler struct {
	gen       *sensors.Generator
	pub       Publisher
	cfg       Config
	log       *zap.Logger
	observers observers

	state  atomic.Int32
	cycles atomic.Int64
}

func New(gen *sensors.Generator, pub Publisher, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		gen: gen,
		pub: pub,
		cfg: cfg,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// CyclesCompleted counts cycles finished so far, partial ones included.
func (s *Scheduler) CyclesCompleted() int {
	return int(s.cycles.Load())
}

// Run connects, emits the configured number of cycles and releases the
// connection. A connection failure is returned as the publisher's error. A
// cancelled ctx is a graceful stop: Run returns the report and a nil error,
// with the interrupted cycle marked Partial.
func (s *Scheduler) Run(ctx context.Context) (Report, error) {
	var report Report
	if !s.state.CompareAndSwap(int32(Idle), int32(Connecting)) {
		return report, ErrAlreadyStarted
	}
	s.observers.stateChanged(Connecting)
	defer s.stop()

	if err := s.pub.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			s.log.Info("Stop requested while connecting")
			report.Interrupted = true
			return report, nil
		}
		s.log.Error("Giving up on broker connection", zap.Error(err))
		return report, err
	}
	s.setState(Running)

	for cycle := 1; s.cfg.Cycles == Unbounded || cycle <= s.cfg.Cycles; cycle++ {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		summary := s.emit(ctx, cycle)
		report.add(summary)
		s.cycles.Add(1)
		s.observers.cycleCompleted(summary)
		s.logSummary(summary)
		if summary.Partial {
			break
		}

		if s.cfg.Cycles != Unbounded && cycle == s.cfg.Cycles {
			break
		}
		if !s.wait(ctx) {
			report.Interrupted = true
			break
		}
	}

	if report.Interrupted {
		s.log.Info("Stop requested, emission halted", zap.Int("cycles", len(report.Cycles)))
	}
	return report, nil
}

// Inject publishes one override reading for sensor 1 of class c through the
// live connection.
func (s *Scheduler) Inject(ctx context.Context, c sensors.Class, value float64) (models.Reading, error) {
	if !c.Valid() {
		return models.Reading{}, fmt.Errorf("inject: invalid class %d", int(c))
	}
	if !s.State().Active() {
		return models.Reading{}, ErrNotRunning
	}

	r := s.gen.Override(c, value)
	start := time.Now()
	if err := s.pub.Publish(ctx, r); err != nil {
		s.observers.readingFailed(r, err)
		s.log.Warn("Override publish failed", zap.String("sensor_id", r.SensorID), zap.Error(err))
		return r, err
	}
	s.observers.readingPublished(r, time.Since(start))
	s.log.Info("Override published", zap.String("sensor_id", r.SensorID), zap.Float64("value", r.Value))
	return r, nil
}

func (s *Scheduler) emit(ctx context.Context, cycle int) CycleSummary {
	s.setState(Emitting)
	summary := CycleSummary{
		Cycle:    cycle,
		Started:  time.Now(),
		PerClass: make(map[string]ClassTally, len(sensors.AllClasses())),
	}

classes:
	for _, class := range sensors.AllClasses() {
		var tally ClassTally
		for _, r := range s.gen.GenerateClass(class) {
			if ctx.Err() != nil {
				summary.Partial = true
				summary.PerClass[class.Tag()] = tally
				break classes
			}

			start := time.Now()
			err := s.pub.Publish(ctx, r)
			tally.Attempted++
			if err != nil {
				tally.Failed++
				summary.Errors = append(summary.Errors, err)
				s.observers.readingFailed(r, err)
				s.log.Warn("Publish failed", zap.Int("cycle", cycle), zap.String("sensor_id", r.SensorID), zap.Error(err))
				continue
			}
			tally.Succeeded++
			s.observers.readingPublished(r, time.Since(start))
		}
		summary.PerClass[class.Tag()] = tally
	}

	for _, tally := range summary.PerClass {
		summary.Attempted += tally.Attempted
		summary.Succeeded += tally.Succeeded
		summary.Failed += tally.Failed
	}
	summary.Finished = time.Now()
	return summary
}

func (s *Scheduler) wait(ctx context.Context) bool {
	s.setState(Waiting)
	if s.cfg.Interval <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) stop() {
	s.pub.Close()
	s.setState(Stopped)
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	s.observers.stateChanged(st)
}

func (s *Scheduler) logSummary(summary CycleSummary) {
	fields := []zap.Field{
		zap.Int("cycle", summary.Cycle),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", summary.Finished.Sub(summary.Started)),
	}
	if summary.Partial {
		fields = append(fields, zap.Bool("partial", true))
	}
	if summary.Failed > 0 {
		s.log.Warn("Cycle completed with failures", fields...)
		return
	}
	s.log.Info("Cycle completed", fields...)
}
