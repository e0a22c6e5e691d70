package tracker

import ts "github.com/samuelfneumann/racerl/timestep"

// Return tracks and saves the episodic return in an experiment. When
// an environment returns a TimeStep, this Tracker will extract the
// reward and accumulate the return for each episode in the experiment.
//
// Note: An episode must finish for this Tracker to save its data.
// If the last episode in an experiment does not finish, that episode's
// return will not be saved.
type Return struct {
	currentReturn  float64
	episodeReturns []float64
	filename       string
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn(filename string) *Return {
	return &Return{filename: filename}
}

// Track tracks the rewards seen on a timestep. A First TimeStep starts
// a new episode, discarding the return of any unfinished episode.
func (r *Return) Track(step ts.TimeStep) {
	if step.First() {
		r.currentReturn = 0
		return
	}

	r.currentReturn += step.Reward
	if step.Last() {
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.currentReturn = 0
	}
}

// Returns returns the returns of all finished episodes
func (r *Return) Returns() []float64 {
	return append([]float64(nil), r.episodeReturns...)
}

// Last returns the return of the last finished episode, and whether an
// episode has finished
func (r *Return) Last() (float64, bool) {
	if len(r.episodeReturns) == 0 {
		return 0, false
	}
	return r.episodeReturns[len(r.episodeReturns)-1], true
}

// Save saves the data tracked by the Return Tracker to disk.
func (r *Return) Save() error {
	return save(r.filename, r.episodeReturns)
}

// LoadReturns loads the episodic returns saved by a Return Tracker
func LoadReturns(filename string) ([]float64, error) {
	var data []float64
	err := load(filename, &data)
	return data, err
}
