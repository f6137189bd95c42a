package emitter

import "time"

// ClassTally counts publish outcomes for one sensor class within a cycle.
type ClassTally struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// CycleSummary is what one emission cycle did. Errors holds every publish
// failure of the cycle, in the order they happened. Partial is set when a stop
// request cut the cycle short.
type CycleSummary struct {
	Cycle     int                   `json:"cycle"`
	Started   time.Time             `json:"started"`
	Finished  time.Time             `json:"finished"`
	Attempted int                   `json:"attempted"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	PerClass  map[string]ClassTally `json:"per_class"`
	Errors    []error               `json:"-"`
	Partial   bool                  `json:"partial"`
}

// Report aggregates every cycle of one Run.
type Report struct {
	Cycles      []CycleSummary
	Attempted   int
	Succeeded   int
	Failed      int
	Interrupted bool
}

func (r *Report) add(s CycleSummary) {
	r.Cycles = append(r.Cycles, s)
	r.Attempted += s.Attempted
	r.Succeeded += s.Succeeded
	r.Failed += s.Failed
	if s.Partial {
		r.Interrupted = true
	}
}
