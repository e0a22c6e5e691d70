// Package track implements a top-down driving environment: a straight
// track of fixed width with randomly placed circular obstacles. The
// vehicle must reach the finish line without hitting an obstacle or
// leaving the track.
//
// Physics are simulated with Box2D. The layout of obstacles and the
// starting pose of the vehicle are fully determined by the seed, so
// that Seed(s) followed by Reset() always reproduces the same episode
// start.
package track

import (
	"errors"
	"fmt"
	"math"

	"github.com/ByteArena/box2d"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/racerl/environment"
	ts "github.com/samuelfneumann/racerl/timestep"
	"github.com/samuelfneumann/racerl/utils/floatutils"
)

const (
	FPS float64 = 50

	// Track geometry in Box2D units (metres)
	Length float64 = 120.0
	Width  float64 = 16.0

	// Obstacles are never placed before StartClearance or after
	// Length-FinishClearance
	StartClearance  float64 = 20.0
	FinishClearance float64 = 10.0
	ObstacleRadius  float64 = 1.2

	CarLength float64 = 4.0
	CarWidth  float64 = 2.0

	EnginePower float64 = 120.0
	BrakePower  float64 = 160.0
	SteerTorque float64 = 40.0
	Grip        float64 = 0.9

	MaxSpeed           float64 = 30.0
	MaxAngularVelocity float64 = 2 * math.Pi

	// Number of vehicle state features: progress, lateral offset,
	// forward and lateral velocity, sin and cos of heading, angular
	// velocity
	VehicleFeatures int = 7

	DefaultRays      int     = 9
	RayRange         float64 = 20.0
	DefaultObstacles int     = 6

	// Pixel observations render the track at this scale, in pixels
	// per metre
	PixelScale float64 = 0.8

	ActionDims int = 3
)

// obstacleSeparation is the minimum distance between obstacle centres,
// which leaves room for the car to pass between any two obstacles
const obstacleSeparation = 2*ObstacleRadius + CarWidth

// placementTries is the number of positions sampled for each obstacle
// before the layout is abandoned
const placementTries = 100

// MaxObstacles is the largest obstacle count a Config may request. It
// allows each obstacle three times the square of the separation
// distance in the placement area, well below the point at which random
// placement saturates the track.
var MaxObstacles = maxObstacles()

func maxObstacles() int {
	area := (Length - StartClearance - FinishClearance) *
		(Width - 2*ObstacleRadius - 2)
	return int(math.Floor(area / (3 * obstacleSeparation * obstacleSeparation)))
}

// ErrLayout is returned when obstacles cannot be placed without
// overlapping
var ErrLayout = errors.New("obstacles cannot be placed without overlap")

// Indices into the vehicle state vector
const (
	progressIndex = iota
	lateralIndex
)

// layoutSalt separates the obstacle layout stream from the starting
// state stream, which share the environment seed
const layoutSalt uint64 = 0x9e3779b97f4a7c15

// ObservationMode determines how the track is observed
type ObservationMode string

const (
	// State observations are the vehicle state followed by lidar
	// distances, as a single flat vector
	State ObservationMode = "state"

	// Pixels observations are a grayscale rendering of the track
	Pixels ObservationMode = "pixels"

	// Structured observations contain the same data as State
	// observations but declare named components "vehicle" and "lidar"
	Structured ObservationMode = "structured"
)

// Config configures a Track environment
type Config struct {
	Obstacles   int
	Rays        int
	Observation ObservationMode
	Discount    float64
}

// Validate returns an error if the Config cannot describe a Track
func (c Config) Validate() error {
	if c.Obstacles < 0 || c.Obstacles > MaxObstacles {
		return fmt.Errorf("validate: obstacles must be in [0, %v], got %v",
			MaxObstacles, c.Obstacles)
	}
	if c.Rays < 0 {
		return fmt.Errorf("validate: rays must be non-negative, got %v",
			c.Rays)
	}
	switch c.Observation {
	case State, Pixels, Structured, "":
	default:
		return fmt.Errorf("validate: unknown observation mode %q",
			c.Observation)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1], got %v",
			c.Discount)
	}
	return nil
}

type obstacle struct {
	body   *box2d.B2Body
	centre box2d.B2Vec2
	radius float64
}

type contactDetector struct {
	env *Track
}

func (c *contactDetector) BeginContact(contact box2d.B2ContactInterface) {
	if c.env.car == contact.GetFixtureA().GetBody() ||
		c.env.car == contact.GetFixtureB().GetBody() {
		c.env.crashed = true
	}
}

func (c *contactDetector) EndContact(contact box2d.B2ContactInterface) {}
func (c *contactDetector) PreSolve(contact box2d.B2ContactInterface,
	oldManifold box2d.B2Manifold) {
}
func (c *contactDetector) PostSolve(contact box2d.B2ContactInterface,
	impulse *box2d.B2ContactImpulse) {
}

// Track is the obstacle track environment
type Track struct {
	task   Drive
	config Config

	world     box2d.B2World
	car       *box2d.B2Body
	obstacles []obstacle
	crashed   bool

	starter *environment.UniformStarter
	layout  distuv.Uniform
	seed    uint64

	enders       []environment.Ender
	actionBounds []r1.Interval

	vehicle  *mat.VecDense
	prevStep ts.TimeStep
}

// New returns a new Track environment, reset to the first episode
// determined by seed
func New(c Config, task Drive, seed uint64) (*Track, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	if c.Observation == "" {
		c.Observation = State
	}

	t := &Track{
		task:   task,
		config: c,
		starter: environment.NewUniformStarter([]r1.Interval{
			{Min: 4.0, Max: 6.0},
			{Min: Width/2 - 1.5, Max: Width/2 + 1.5},
			{Min: -0.1, Max: 0.1},
		}, seed),
		actionBounds: []r1.Interval{
			{Min: -1, Max: 1}, // steer
			{Min: 0, Max: 1},  // gas
			{Min: 0, Max: 1},  // brake
		},
	}

	// Enders act on the vehicle state, never on the observation, so
	// they work for every observation mode
	t.enders = []environment.Ender{
		environment.NewFunctionEnder(func(v *mat.VecDense) bool {
			return v.AtVec(progressIndex) >= 1.0
		}, ts.Terminated),
		environment.NewIntervalLimit(
			[]r1.Interval{{Min: -0.05, Max: math.Inf(1)}, {Min: -1, Max: 1}},
			[]int{progressIndex, lateralIndex},
			ts.Terminated,
		),
	}

	t.Seed(seed)
	if _, err := t.Reset(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return t, nil
}

// Seed reseeds both the starting state distribution and the obstacle
// layout
func (t *Track) Seed(seed uint64) {
	t.seed = seed
	t.starter.Seed(seed)
	t.layout = distuv.Uniform{Min: 0, Max: 1,
		Src: rand.NewSource(seed ^ layoutSalt)}
}

// Reset builds a fresh Box2D world, lays out the obstacles, places the
// vehicle at a sampled starting pose, and returns the first TimeStep of
// the new episode
func (t *Track) Reset() (ts.TimeStep, error) {
	t.world = box2d.MakeB2World(box2d.MakeB2Vec2(0, 0))
	t.world.SetContactListener(&contactDetector{t})
	t.crashed = false

	if err := t.layoutObstacles(); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %w", err)
	}

	start := t.starter.Start()
	carDef := box2d.MakeB2BodyDef()
	carDef.Type = 2 // Dynamic body
	carDef.Position = box2d.MakeB2Vec2(start.AtVec(0), start.AtVec(1))
	carDef.Angle = start.AtVec(2)
	carDef.LinearDamping = 0.5
	carDef.AngularDamping = 4.0
	t.car = t.world.CreateBody(&carDef)

	carShape := box2d.NewB2PolygonShape()
	carShape.SetAsBox(CarLength/2, CarWidth/2)
	carFix := box2d.MakeB2FixtureDef()
	carFix.Shape = carShape
	carFix.Density = 1.0
	carFix.Friction = 0.3
	t.car.CreateFixtureFromDef(&carFix)

	t.vehicle = t.vehicleState()
	obs, err := t.observe()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %w", err)
	}

	step := ts.New(ts.First, 0, t.config.Discount, obs, 0)
	t.prevStep = step
	return step, nil
}

// layoutObstacles places the configured number of obstacles, rejecting
// placements which overlap an existing obstacle. ErrLayout is returned
// if some obstacle has no free position after placementTries samples.
func (t *Track) layoutObstacles() error {
	t.obstacles = make([]obstacle, 0, t.config.Obstacles)
	xBounds := r1.Interval{Min: StartClearance, Max: Length - FinishClearance}
	yBounds := r1.Interval{Min: ObstacleRadius + 1, Max: Width - ObstacleRadius - 1}

	for len(t.obstacles) < t.config.Obstacles {
		var centre box2d.B2Vec2
		placed := false
		for try := 0; try < placementTries && !placed; try++ {
			centre = box2d.MakeB2Vec2(
				xBounds.Min+t.layout.Rand()*(xBounds.Max-xBounds.Min),
				yBounds.Min+t.layout.Rand()*(yBounds.Max-yBounds.Min),
			)
			placed = !t.overlaps(centre)
		}
		if !placed {
			return fmt.Errorf("layoutObstacles: %w: placed %v of %v", ErrLayout,
				len(t.obstacles), t.config.Obstacles)
		}

		def := box2d.MakeB2BodyDef()
		def.Type = 0 // Static body
		def.Position = centre
		body := t.world.CreateBody(&def)

		shape := box2d.MakeB2CircleShape()
		shape.M_radius = ObstacleRadius
		fix := box2d.MakeB2FixtureDef()
		fix.Shape = &shape
		body.CreateFixtureFromDef(&fix)

		t.obstacles = append(t.obstacles, obstacle{body, centre, ObstacleRadius})
	}
	return nil
}

func (t *Track) overlaps(c box2d.B2Vec2) bool {
	for _, o := range t.obstacles {
		if math.Hypot(c.X-o.centre.X, c.Y-o.centre.Y) < obstacleSeparation {
			return true
		}
	}
	return false
}

// Step takes one environmental step given action [steer, gas, brake].
// Each action dimension is clipped to its bounds.
func (t *Track) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if t.prevStep.Last() {
		return ts.TimeStep{}, true, fmt.Errorf("step: episode has ended, " +
			"call Reset() first")
	}
	if a.Len() != ActionDims {
		return ts.TimeStep{}, true, fmt.Errorf("step: action must have "+
			"%v dimensions, got %v", ActionDims, a.Len())
	}

	steer := floatutils.ClipInterval(a.AtVec(0), t.actionBounds[0])
	gas := floatutils.ClipInterval(a.AtVec(1), t.actionBounds[1])
	brake := floatutils.ClipInterval(a.AtVec(2), t.actionBounds[2])
	t.drive(steer, gas, brake)

	t.world.Step(1.0/FPS, 8, 3)

	prev := t.vehicle
	t.vehicle = t.vehicleState()
	obs, err := t.observe()
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: %w", err)
	}

	step := ts.New(ts.Mid, 0, t.config.Discount, obs, t.prevStep.Number+1)
	event := t.end(&step)
	step.Reward = t.task.Reward(prev, t.vehicle, event)

	t.prevStep = step
	return step, step.Last(), nil
}

// drive applies the engine, brake, steering, and tyre grip forces
func (t *Track) drive(steer, gas, brake float64) {
	forward := t.car.GetWorldVector(box2d.MakeB2Vec2(1, 0))
	left := t.car.GetWorldVector(box2d.MakeB2Vec2(0, 1))
	vel := t.car.GetLinearVelocity()
	forwardSpeed := box2d.B2Vec2Dot(vel, forward)

	force := gas * EnginePower
	if math.Abs(forwardSpeed) > 0.1 {
		force -= brake * BrakePower * floatutils.Sign(forwardSpeed)
	}
	t.car.ApplyForceToCenter(box2d.MakeB2Vec2(force*forward.X, force*forward.Y), true)

	// Positive steer turns clockwise
	t.car.ApplyTorque(-steer*SteerTorque, true)

	lateral := box2d.B2Vec2Dot(vel, left) * t.car.GetMass() * Grip
	impulse := box2d.MakeB2Vec2(-lateral*left.X, -lateral*left.Y)
	t.car.ApplyLinearImpulse(impulse, t.car.GetWorldCenter(), true)
}

// end runs the episode enders on the vehicle state and returns the
// event that ended the episode, if any
func (t *Track) end(step *ts.TimeStep) Event {
	if t.crashed {
		step.SetEnd(ts.Terminated)
		return Crashed
	}

	vehicleStep := ts.New(ts.Mid, 0, 0, t.vehicle, step.Number)
	for i, e := range t.enders {
		if e.End(&vehicleStep) {
			step.SetEnd(vehicleStep.EndType())
			if i == 0 {
				return Finished
			}
			return OffTrack
		}
	}
	return Driving
}

// vehicleState returns the normalised vehicle state
func (t *Track) vehicleState() *mat.VecDense {
	pos := t.car.GetPosition()
	vel := t.car.GetLinearVelocity()
	angle := t.car.GetAngle()

	forward := t.car.GetWorldVector(box2d.MakeB2Vec2(1, 0))
	left := t.car.GetWorldVector(box2d.MakeB2Vec2(0, 1))

	state := []float64{
		pos.X / Length,
		(pos.Y - Width/2) / (Width / 2),
		floatutils.Clip(box2d.B2Vec2Dot(vel, forward)/MaxSpeed, -1, 1),
		floatutils.Clip(box2d.B2Vec2Dot(vel, left)/MaxSpeed, -1, 1),
		math.Sin(angle),
		math.Cos(angle),
		floatutils.Clip(t.car.GetAngularVelocity()/MaxAngularVelocity, -1, 1),
	}
	return mat.NewVecDense(VehicleFeatures, state)
}

// observe constructs the observation for the current state
func (t *Track) observe() (*mat.VecDense, error) {
	switch t.config.Observation {
	case Pixels:
		return t.pixels(), nil
	case State, Structured:
		rays := t.lidar()
		obs := mat.NewVecDense(VehicleFeatures+len(rays), nil)
		for i := 0; i < VehicleFeatures; i++ {
			obs.SetVec(i, t.vehicle.AtVec(i))
		}
		for i, r := range rays {
			obs.SetVec(VehicleFeatures+i, r)
		}
		return obs, nil
	}
	return nil, fmt.Errorf("observe: unknown observation mode %q",
		t.config.Observation)
}

// CurrentTimeStep returns the most recent TimeStep
func (t *Track) CurrentTimeStep() ts.TimeStep {
	return t.prevStep
}

func (t *Track) rays() int {
	return t.config.Rays
}

// ObservationSpec returns the observation specification
func (t *Track) ObservationSpec() environment.Spec {
	if t.config.Observation == Pixels {
		w, h := pixelSize()
		n := w * h
		low := mat.NewVecDense(n, nil)
		high := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			high.SetVec(i, 1)
		}
		return environment.NewSpec(mat.NewVecDense(n, nil),
			environment.Observation, low, high, environment.Continuous)
	}

	n := VehicleFeatures + t.rays()
	lowData := []float64{-0.05, -1, -1, -1, -1, -1, -1}
	highData := []float64{1, 1, 1, 1, 1, 1, 1}
	for i := 0; i < t.rays(); i++ {
		lowData = append(lowData, 0)
		highData = append(highData, 1)
	}
	low := mat.NewVecDense(n, lowData)
	high := mat.NewVecDense(n, highData)

	if t.config.Observation == Structured {
		components := []environment.Component{
			{Name: "vehicle", Size: VehicleFeatures},
		}
		if t.rays() > 0 {
			components = append(components,
				environment.Component{Name: "lidar", Size: t.rays()})
		}
		return environment.NewStructuredSpec(components, low, high)
	}
	return environment.NewSpec(mat.NewVecDense(n, nil),
		environment.Observation, low, high, environment.Continuous)
}

// ActionSpec returns the action specification: steer in [-1, 1], gas
// and brake in [0, 1]
func (t *Track) ActionSpec() environment.Spec {
	low := mat.NewVecDense(ActionDims, nil)
	high := mat.NewVecDense(ActionDims, nil)
	for i, b := range t.actionBounds {
		low.SetVec(i, b.Min)
		high.SetVec(i, b.Max)
	}
	return environment.NewSpec(mat.NewVecDense(ActionDims, nil),
		environment.Action, low, high, environment.Continuous)
}

// DiscountSpec returns the discount specification
func (t *Track) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{t.config.Discount})

	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

// Obstacles returns the centres of all obstacles on the track
func (t *Track) Obstacles() [][2]float64 {
	centres := make([][2]float64, len(t.obstacles))
	for i, o := range t.obstacles {
		centres[i] = [2]float64{o.centre.X, o.centre.Y}
	}
	return centres
}

// Close implements the environment.Environment interface
func (t *Track) Close() error {
	return nil
}

func (t *Track) String() string {
	return fmt.Sprintf("Track | obstacles: %v | observation: %v | seed: %v",
		t.config.Obstacles, t.config.Observation, t.seed)
}
