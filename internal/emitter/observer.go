package emitter

import (
	"time"

	"github.com/sensorsim/internal/models"
)

// Observer is notified of everything the scheduler does. Calls happen on the
// scheduler goroutine (or the injecting goroutine) and must not block.
type Observer interface {
	StateChanged(State)
	ReadingPublished(r models.Reading, latency time.Duration)
	ReadingFailed(r models.Reading, err error)
	CycleCompleted(CycleSummary)
}

// NopObserver can be embedded to implement only the callbacks you need.
type NopObserver struct{}

// StateChanged ignores the transition.
func (NopObserver) StateChanged(State) {}

// ReadingPublished ignores the reading.
func (NopObserver) ReadingPublished(models.Reading, time.Duration) {}

// ReadingFailed ignores the failure.
func (NopObserver) ReadingFailed(models.Reading, error) {}

// CycleCompleted ignores the summary.
func (NopObserver) CycleCompleted(CycleSummary) {}

type observers []Observer

func (o observers) stateChanged(s State) {
	for _, ob := range o {
		ob.StateChanged(s)
	}
}

func (o observers) readingPublished(r models.Reading, latency time.Duration) {
	for _, ob := range o {
		ob.ReadingPublished(r, latency)
	}
}

func (o observers) readingFailed(r models.Reading, err error) {
	for _, ob := range o {
		ob.ReadingFailed(r, err)
	}
}

func (o observers) cycleCompleted(s CycleSummary) {
	for _, ob := range o {
		ob.CycleCompleted(s)
	}
}
