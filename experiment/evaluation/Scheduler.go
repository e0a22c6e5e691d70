// Package evaluation implements periodic evaluation of a policy during
// training and tracking of the best policy found so far.
package evaluation

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/environment/wrappers"
	"github.com/samuelfneumann/racerl/experiment/checkpointer"
	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/stat"
)

// DefaultMaxEpisodeSteps bounds the length of evaluation episodes when
// neither the Config nor the environment sets a bound
const DefaultMaxEpisodeSteps = 100000

// ErrEpisodeTooLong is returned for evaluation episodes which exceed
// the maximum number of steps without ending
var ErrEpisodeTooLong = errors.New("episode exceeded maximum steps")

// Model is a policy whose parameters can be saved as the best model
type Model interface {
	agent.Policy
	checkpointer.Serializable
}

// BestSaver persists the best model, for example a checkpointer.Best
type BestSaver interface {
	Save(s checkpointer.Serializable, step int, mean float64) error
}

// Config configures a Scheduler
type Config struct {
	// Frequency is the number of training steps between evaluations
	Frequency int

	// Episodes is the number of episodes per evaluation
	Episodes int

	// Seed seeds the first episode of every evaluation so that each
	// evaluation sees the same starting states
	Seed uint64

	// MaxEpisodeSteps bounds the number of steps of an evaluation
	// episode. Zero uses the environment's episode limit if it has one,
	// and DefaultMaxEpisodeSteps otherwise.
	MaxEpisodeSteps int

	// PriorBest, if set, is a best mean reward carried forward from a
	// previous run. Only evaluations strictly better than it replace
	// the best model.
	PriorBest *float64
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.Frequency <= 0 {
		return fmt.Errorf("validate: frequency must be positive, got %v",
			c.Frequency)
	}
	if c.Episodes <= 0 {
		return fmt.Errorf("validate: episodes must be positive, got %v",
			c.Episodes)
	}
	if c.MaxEpisodeSteps < 0 {
		return fmt.Errorf("validate: maximum episode steps must be "+
			"non-negative, got %v", c.MaxEpisodeSteps)
	}
	return nil
}

// Scheduler evaluates a policy every Frequency training steps on its
// own environment, and saves the policy whenever its mean evaluation
// reward strictly improves on the best seen so far.
//
// Evaluation episodes are isolated: an episode which returns an error,
// panics, or runs past the maximum number of steps is counted as
// failed and excluded from the mean. Every evaluation is appended to
// the evaluation log.
type Scheduler struct {
	env    *wrappers.Adapter
	config Config
	saver  BestSaver
	log    *Log
	logger *log.Logger

	maxSteps int
	state    State
	best     float64
	hasBest  bool
	lastStep int
	records  []Record
}

// NewScheduler returns a new Scheduler evaluating on env. The saver and
// log may be nil, in which case the best model or the evaluations are
// not persisted.
func NewScheduler(env *wrappers.Adapter, c Config, saver BestSaver,
	l *Log) (*Scheduler, error) {
	if env == nil {
		return nil, fmt.Errorf("newScheduler: nil environment")
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newScheduler: %w", err)
	}

	maxSteps := c.MaxEpisodeSteps
	if maxSteps == 0 {
		maxSteps = env.MaxEpisodeSteps()
	}
	if maxSteps == 0 {
		maxSteps = DefaultMaxEpisodeSteps
	}

	s := &Scheduler{
		env:      env,
		config:   c,
		saver:    saver,
		log:      l,
		logger:   log.New(os.Stderr, "evaluation: ", log.LstdFlags),
		maxSteps: maxSteps,
		state:    Idle,
		lastStep: -1,
	}
	if c.PriorBest != nil {
		s.best, s.hasBest = *c.PriorBest, true
	}
	return s, nil
}

// SetLogger sets the logger which evaluation results are reported to
func (s *Scheduler) SetLogger(l *log.Logger) {
	s.logger = l
}

// Due returns whether an evaluation should run at step
func (s *Scheduler) Due(step int) bool {
	return step > 0 && step%s.config.Frequency == 0 && step != s.lastStep
}

// OnStep evaluates m if an evaluation is due at step, returning the
// evaluation's Record and whether an evaluation ran. Each step index
// triggers at most one evaluation.
func (s *Scheduler) OnStep(step int, m Model) (Record, bool, error) {
	if !s.Due(step) {
		return Record{}, false, nil
	}
	s.lastStep = step

	r, err := s.Evaluate(step, m)
	return r, true, err
}

// Evaluate runs a full evaluation of m at the given training step.
// The policy is put in evaluation mode for the duration and restored
// to its previous mode afterwards. An error is returned if the
// evaluation could not be logged or if an improved model could not be
// saved, in which case the best mean reward is left unchanged.
func (s *Scheduler) Evaluate(step int, m Model) (Record, error) {
	s.state = Running
	if !m.IsEval() {
		m.Eval()
		defer m.Train()
	}

	r := Record{Step: step, Episodes: s.config.Episodes}
	for i := 0; i < s.config.Episodes; i++ {
		ret, length, err := s.episode(i, m)
		if err != nil {
			r.Failed++
			r.Errors = append(r.Errors, fmt.Sprintf("episode %v: %v", i, err))
			continue
		}
		r.Returns = append(r.Returns, ret)
		r.Lengths = append(r.Lengths, length)
	}
	if r.Succeeded() > 0 {
		r.Mean, r.StdDev = stat.PopMeanStdDev(r.Returns, nil)
	}

	var saveErr error
	if r.Succeeded() > 0 && (!s.hasBest || r.Mean > s.best) {
		if s.saver != nil {
			s.state = Updated
			saveErr = s.saver.Save(m, step, r.Mean)
		}
		if saveErr == nil {
			s.best, s.hasBest = r.Mean, true
			r.Improved = true
		}
	}

	s.records = append(s.records, r)
	s.state = Idle
	s.logger.Println(r)

	var logErr error
	if s.log != nil {
		logErr = s.log.Append(r.entry(s.best, s.hasBest))
	}

	switch {
	case saveErr != nil:
		return r, fmt.Errorf("evaluate: could not save best model: %w",
			saveErr)
	case logErr != nil:
		return r, fmt.Errorf("evaluate: %w", logErr)
	}
	return r, nil
}

// episode runs the i-th evaluation episode, returning its return and
// length. Panics in the environment or policy are converted to errors.
func (s *Scheduler) episode(i int, p agent.Policy) (ret float64, length int,
	err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var step ts.TimeStep
	if i == 0 {
		step, err = s.env.ResetSeed(s.config.Seed)
	} else {
		step, err = s.env.Reset()
	}
	if err != nil {
		return 0, 0, err
	}

	for !step.Last() {
		if length >= s.maxSteps {
			return ret, length, fmt.Errorf("%w (%v)", ErrEpisodeTooLong,
				s.maxSteps)
		}

		step, _, err = s.env.Step(p.SelectAction(step))
		if err != nil {
			return ret, length, err
		}
		ret += step.Reward
		length++
	}
	return ret, length, nil
}

// State returns the state of the Scheduler
func (s *Scheduler) State() State {
	return s.state
}

// Best returns the best mean evaluation reward and whether one exists
func (s *Scheduler) Best() (float64, bool) {
	return s.best, s.hasBest
}

// Records returns the Records of all evaluations run so far
func (s *Scheduler) Records() []Record {
	return append([]Record(nil), s.records...)
}
