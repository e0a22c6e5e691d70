package evaluation

import "fmt"

// State is the state of a Scheduler
type State int

const (
	// Idle means no evaluation is running. Whether the last evaluation
	// improved the best mean reward is reported by Record.Improved.
	Idle State = iota

	// Running means an evaluation is in progress
	Running

	// Updated means an evaluation improved the best mean reward and the
	// best model is being saved
	Updated
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Updated:
		return "Updated"
	default:
		return "Idle"
	}
}

// Record is the outcome of a single evaluation. Returns and Lengths
// hold one entry per successful episode, and Mean and StdDev are only
// meaningful if at least one episode succeeded.
type Record struct {
	Step     int
	Episodes int
	Returns  []float64
	Lengths  []int
	Failed   int
	Errors   []string

	Mean   float64
	StdDev float64

	// Improved is set when the evaluation replaced the best model
	Improved bool
}

// Succeeded returns the number of successful episodes
func (r Record) Succeeded() int {
	return len(r.Returns)
}

// Status returns whether all, some, or none of the episodes succeeded
func (r Record) Status() Status {
	switch {
	case r.Failed == 0:
		return StatusOK
	case r.Succeeded() > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// entry converts the Record into a log entry, with best the best mean
// reward after the evaluation
func (r Record) entry(best float64, hasBest bool) LogEntry {
	e := LogEntry{
		Step:     r.Step,
		Episodes: r.Episodes,
		Failed:   r.Failed,
		Status:   r.Status(),
		Errors:   r.Errors,
	}
	if r.Succeeded() > 0 {
		mean, std := r.Mean, r.StdDev
		e.MeanReward, e.StdReward = &mean, &std
	}
	if hasBest {
		e.Best = &best
	}
	return e
}

func (r Record) String() string {
	if r.Succeeded() == 0 {
		return fmt.Sprintf("step %v: all %v evaluation episodes failed",
			r.Step, r.Episodes)
	}
	return fmt.Sprintf("step %v: mean reward %.3f ± %.3f over %v/%v episodes",
		r.Step, r.Mean, r.StdDev, r.Succeeded(), r.Episodes)
}
