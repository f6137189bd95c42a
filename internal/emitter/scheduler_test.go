package emitter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sensorsim/internal/models"
	"github.com/sensorsim/internal/publisher"
	"github.com/sensorsim/internal/sensors"
)

type recordingPublisher struct {
	mu         sync.Mutex
	connectErr error
	failOn     func(r models.Reading) error
	onPublish  func(n int)
	published  []models.Reading
	attempts   int
	closed     int
}

func (p *recordingPublisher) Connect(ctx context.Context) error { return p.connectErr }

func (p *recordingPublisher) Publish(ctx context.Context, r models.Reading) error {
	p.mu.Lock()
	p.attempts++
	n := p.attempts
	p.mu.Unlock()

	if p.onPublish != nil {
		p.onPublish(n)
	}
	if p.failOn != nil {
		if err := p.failOn(r); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.published = append(p.published, r)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() { p.closed++ }

type refusingTransport struct {
	connects  int
	publishes int
}

func (t *refusingTransport) Connect(ctx context.Context) error {
	t.connects++
	return errors.New("connection refused")
}

func (t *refusingTransport) Publish(ctx context.Context, topic, key string, payload []byte) error {
	t.publishes++
	return nil
}

func (t *refusingTransport) Close() {}

type stateRecorder struct {
	NopObserver
	mu     sync.Mutex
	states []State
	cycles []CycleSummary
}

func (r *stateRecorder) StateChanged(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) CycleCompleted(s CycleSummary) {
	r.mu.Lock()
	r.cycles = append(r.cycles, s)
	r.mu.Unlock()
}

func newGenerator(perClass int) *sensors.Generator {
	return sensors.NewGenerator(sensors.NewRegistry(perClass, nil))
}

func TestScheduler_TwoCyclesInClassOrder(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(newGenerator(4), pub, Config{Cycles: 2, Interval: time.Millisecond})

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if pub.attempts != 32 {
		t.Fatalf("Expected 32 publish attempts, got %d", pub.attempts)
	}
	if report.Attempted != 32 || report.Succeeded != 32 || report.Failed != 0 {
		t.Errorf("Unexpected report totals: %+v", report)
	}
	if len(report.Cycles) != 2 {
		t.Fatalf("Expected 2 cycle summaries, got %d", len(report.Cycles))
	}

	tags := []string{"tmp", "hum", "sun", "co2"}
	for i, r := range pub.published {
		cyclePos := i % 16
		wantTag := tags[cyclePos/4]
		if got := r.ClassTag(); got != wantTag {
			t.Errorf("Publish %d: expected class %s, got %s (%s)", i, wantTag, got, r.SensorID)
		}
		wantID := sensors.SensorID(sensors.AllClasses()[cyclePos/4], cyclePos%4+1)
		if r.SensorID != wantID {
			t.Errorf("Publish %d: expected %s, got %s", i, wantID, r.SensorID)
		}
	}

	if pub.closed != 1 {
		t.Errorf("Expected connection released once, got %d", pub.closed)
	}
	if s.State() != Stopped {
		t.Errorf("Expected Stopped, got %v", s.State())
	}
	if s.CyclesCompleted() != 2 {
		t.Errorf("Expected 2 completed cycles, got %d", s.CyclesCompleted())
	}
}

func TestScheduler_StateTransitions(t *testing.T) {
	rec := &stateRecorder{}
	s := New(newGenerator(1), &recordingPublisher{}, Config{Cycles: 2}, WithObserver(rec))

	if s.State() != Idle {
		t.Fatalf("Expected Idle before Run, got %v", s.State())
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []State{Connecting, Running, Emitting, Waiting, Emitting, Stopped}
	if len(rec.states) != len(want) {
		t.Fatalf("Expected states %v, got %v", want, rec.states)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Errorf("State %d: expected %v, got %v", i, want[i], rec.states[i])
		}
	}
	if len(rec.cycles) != 2 {
		t.Errorf("Expected 2 cycle notifications, got %d", len(rec.cycles))
	}

	if _, err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted on second Run, got %v", err)
	}
}

func TestScheduler_PublishFailureIsIsolated(t *testing.T) {
	transportDrop := errors.New("transport dropped")
	pub := &recordingPublisher{
		failOn: func(r models.Reading) error {
			if r.SensorID == "sensor-hum-3" {
				return &publisher.PublishError{SensorID: r.SensorID, Topic: publisher.DefaultTopic, Err: transportDrop}
			}
			return nil
		},
	}
	s := New(newGenerator(4), pub, Config{Cycles: 1})

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	summary := report.Cycles[0]
	if summary.Attempted != 16 {
		t.Errorf("Expected all 16 readings attempted, got %d", summary.Attempted)
	}
	hum := summary.PerClass["hum"]
	if hum.Attempted != 4 || hum.Failed != 1 || hum.Succeeded != 3 {
		t.Errorf("Expected hum 1 failure / 3 successes, got %+v", hum)
	}
	for _, tag := range []string{"tmp", "sun", "co2"} {
		if tally := summary.PerClass[tag]; tally.Failed != 0 || tally.Succeeded != 4 {
			t.Errorf("Class %s should be unaffected, got %+v", tag, tally)
		}
	}
	if summary.Failed != 1 || summary.Succeeded != 15 {
		t.Errorf("Unexpected cycle totals: %+v", summary)
	}
	if len(summary.Errors) != 1 || !errors.Is(summary.Errors[0], transportDrop) {
		t.Errorf("Expected recorded transport error, got %v", summary.Errors)
	}
	var pubErr *publisher.PublishError
	if !errors.As(summary.Errors[0], &pubErr) || pubErr.SensorID != "sensor-hum-3" {
		t.Errorf("Expected PublishError for sensor-hum-3, got %v", summary.Errors[0])
	}
}

func TestScheduler_ConnectionFailure(t *testing.T) {
	tr := &refusingTransport{}
	adapter := publisher.New(tr, publisher.Options{
		Retry: publisher.RetryPolicy{Attempts: 3, Base: time.Millisecond, Cap: 4 * time.Millisecond},
	})
	s := New(newGenerator(4), adapter, DefaultConfig())

	report, err := s.Run(context.Background())

	var connErr *publisher.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Expected ConnectionError, got %v", err)
	}
	if tr.connects != 3 {
		t.Errorf("Expected 3 connect attempts, got %d", tr.connects)
	}
	if tr.publishes != 0 || report.Attempted != 0 {
		t.Errorf("Expected zero publishes, got %d (report %d)", tr.publishes, report.Attempted)
	}
	if s.State() != Stopped {
		t.Errorf("Expected Stopped, got %v", s.State())
	}
}

func TestScheduler_StopMidCycleIsReportedPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &recordingPublisher{
		onPublish: func(n int) {
			if n == 6 {
				cancel()
			}
		},
	}
	s := New(newGenerator(4), pub, Config{Cycles: Unbounded, Interval: time.Millisecond})

	report, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Graceful stop should not be an error, got %v", err)
	}
	if !report.Interrupted {
		t.Error("Expected report to be marked interrupted")
	}
	if len(report.Cycles) != 1 {
		t.Fatalf("Expected 1 cycle, got %d", len(report.Cycles))
	}
	summary := report.Cycles[0]
	if !summary.Partial {
		t.Error("Expected partial cycle")
	}
	if summary.Attempted != 6 {
		t.Errorf("Expected 6 attempts before stop, got %d", summary.Attempted)
	}
	if tally := summary.PerClass["hum"]; tally.Attempted != 2 {
		t.Errorf("Expected 2 humidity attempts, got %+v", tally)
	}
	if pub.closed != 1 {
		t.Errorf("Expected connection released, got %d closes", pub.closed)
	}
}

func TestScheduler_StopDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &stateRecorder{}
	s := New(newGenerator(1), &recordingPublisher{}, Config{Cycles: Unbounded, Interval: time.Hour}, WithObserver(rec))

	go func() {
		for s.State() != Waiting {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	report, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.Cycles) != 1 || report.Cycles[0].Partial {
		t.Errorf("Expected one complete cycle, got %+v", report.Cycles)
	}
	if !report.Interrupted {
		t.Error("Expected report to be marked interrupted")
	}
}

func TestScheduler_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub := &recordingPublisher{}

	report, err := New(newGenerator(4), pub, Config{Cycles: 3}).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if pub.attempts != 0 || len(report.Cycles) != 0 {
		t.Errorf("Expected nothing published, got %d attempts", pub.attempts)
	}
}

func TestScheduler_Inject(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(newGenerator(4), pub, Config{Cycles: Unbounded, Interval: time.Hour})

	if _, err := s.Inject(context.Background(), sensors.CO2, 999.9); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Expected ErrNotRunning before start, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	for s.State() != Waiting {
		time.Sleep(time.Millisecond)
	}

	r, err := s.Inject(context.Background(), sensors.CO2, 999.9)
	if err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	if r.SensorID != "sensor-co2-1" || r.Value != 999.9 {
		t.Errorf("Unexpected override reading: %+v", r)
	}

	cancel()
	<-done

	pub.mu.Lock()
	last := pub.published[len(pub.published)-1]
	pub.mu.Unlock()
	if last != r {
		t.Errorf("Expected override to be the last published reading, got %+v", last)
	}
}

func TestState_String(t *testing.T) {
	for _, s := range []State{Idle, Connecting, Running, Emitting, Waiting, Stopped} {
		if strings.TrimSpace(s.String()) == "" || s.String() == "unknown" {
			t.Errorf("State %d has no name", s)
		}
	}
	if !Waiting.Active() || Stopped.Active() || Connecting.Active() {
		t.Error("Active() reports wrong states")
	}
}
