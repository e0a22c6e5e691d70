package track

import "gonum.org/v1/gonum/mat"

// Event describes what happened to the vehicle on a step
type Event int

const (
	Driving Event = iota
	Crashed
	OffTrack
	Finished
)

func (e Event) String() string {
	switch e {
	case Crashed:
		return "Crashed"
	case OffTrack:
		return "OffTrack"
	case Finished:
		return "Finished"
	}
	return "Driving"
}

// Drive implements the driving task. The vehicle is rewarded for
// progress along the track and penalised for time, crashes, and
// leaving the track.
type Drive struct {
	// ProgressReward is the total reward for driving the full length
	// of the track
	ProgressReward  float64
	StepPenalty     float64
	CrashPenalty    float64
	OffTrackPenalty float64
	FinishBonus     float64
}

// NewDrive returns the default driving task
func NewDrive() Drive {
	return Drive{
		ProgressReward:  100.0,
		StepPenalty:     0.1,
		CrashPenalty:    100.0,
		OffTrackPenalty: 100.0,
		FinishBonus:     100.0,
	}
}

// Reward returns the reward for moving from vehicle state prev to
// vehicle state next, given the event that occurred on the step
func (d Drive) Reward(prev, next *mat.VecDense, e Event) float64 {
	progress := next.AtVec(progressIndex) - prev.AtVec(progressIndex)
	reward := d.ProgressReward*progress - d.StepPenalty

	switch e {
	case Crashed:
		reward -= d.CrashPenalty
	case OffTrack:
		reward -= d.OffTrackPenalty
	case Finished:
		reward += d.FinishBonus
	}
	return reward
}
