package sensors

import (
	"math"
	"time"

	"github.com/skyfence/airtrack/internal/tracking"
)

// TrajectoryParams tunes the motion patterns that need more than an initial
// state. Zero values fall back to the pattern defaults.
type TrajectoryParams struct {
	RadiusM         float64 // CIRCULAR: orbit radius (default: 10000)
	AngularRateRads float64 // CIRCULAR: angular velocity in rad/s (default: 0.001)
	CenterX         float64 // CIRCULAR: orbit center east offset
	CenterY         float64 // CIRCULAR: orbit center north offset
	PatrolLengthM   float64 // PATROL: one-way leg length (default: 20000)
	PatrolSpeedMPS  float64 // PATROL: speed along the leg (default: 100)
	PatrolDirX      float64 // PATROL: leg direction east component (default: 1)
	PatrolDirY      float64 // PATROL: leg direction north component
}

func (p TrajectoryParams) withDefaults() TrajectoryParams {
	if p.RadiusM <= 0 {
		p.RadiusM = 10000.0
	}
	if p.AngularRateRads == 0 {
		p.AngularRateRads = 0.001
	}
	if p.PatrolLengthM <= 0 {
		p.PatrolLengthM = 20000.0
	}
	if p.PatrolSpeedMPS <= 0 {
		p.PatrolSpeedMPS = 100.0
	}
	if p.PatrolDirX == 0 && p.PatrolDirY == 0 {
		p.PatrolDirX = 1.0
	}
	return p
}

// Entity is a simulated aerial object. Position and velocity at any instant
// are pure functions of the creation state and the trajectory pattern, so
// sensors interrogating the same entity at the same time agree on the truth.
type Entity struct {
	ID              string
	Characteristics Characteristics
	InitialPosition tracking.Position
	InitialVelocity tracking.Velocity
	Trajectory      Trajectory
	Params          TrajectoryParams
	CreatedAt       time.Time

	// IFF transponder fitment. An empty code means the entity does not
	// respond to interrogation at all.
	IFFCode  string
	Friendly bool
}

// PositionAt returns the entity's true position at the given instant
func (e *Entity) PositionAt(now time.Time) tracking.Position {
	dt := now.Sub(e.CreatedAt).Seconds()

	switch e.Trajectory {
	case TrajectoryCircular:
		p := e.Params.withDefaults()
		angle := p.AngularRateRads * dt
		return tracking.Position{
			X: p.CenterX + p.RadiusM*math.Cos(angle),
			Y: p.CenterY + p.RadiusM*math.Sin(angle),
			Z: e.InitialPosition.Z,
		}

	case TrajectoryApproaching:
		dirX, dirY, ok := e.radialDirection()
		if !ok {
			return e.InitialPosition
		}
		speed := math.Hypot(e.InitialVelocity.VX, e.InitialVelocity.VY)
		return tracking.Position{
			X: e.InitialPosition.X - dirX*speed*dt,
			Y: e.InitialPosition.Y - dirY*speed*dt,
			Z: e.InitialPosition.Z + e.InitialVelocity.VZ*dt,
		}

	case TrajectoryDeparting:
		dirX, dirY, ok := e.radialDirection()
		if !ok {
			dirX, dirY = e.velocityDirection()
		}
		speed := math.Hypot(e.InitialVelocity.VX, e.InitialVelocity.VY)
		return tracking.Position{
			X: e.InitialPosition.X + dirX*speed*dt,
			Y: e.InitialPosition.Y + dirY*speed*dt,
			Z: e.InitialPosition.Z + e.InitialVelocity.VZ*dt,
		}

	case TrajectoryPatrol:
		p := e.Params.withDefaults()
		dirX, dirY := normalize2(p.PatrolDirX, p.PatrolDirY)
		offset, _ := patrolLeg(p.PatrolSpeedMPS*dt, p.PatrolLengthM)
		return tracking.Position{
			X: e.InitialPosition.X + dirX*offset,
			Y: e.InitialPosition.Y + dirY*offset,
			Z: e.InitialPosition.Z,
		}

	case TrajectoryHover:
		return e.InitialPosition

	default: // LINEAR
		return tracking.Position{
			X: e.InitialPosition.X + e.InitialVelocity.VX*dt,
			Y: e.InitialPosition.Y + e.InitialVelocity.VY*dt,
			Z: e.InitialPosition.Z + e.InitialVelocity.VZ*dt,
		}
	}
}

// VelocityAt returns the entity's true velocity at the given instant
func (e *Entity) VelocityAt(now time.Time) tracking.Velocity {
	dt := now.Sub(e.CreatedAt).Seconds()

	switch e.Trajectory {
	case TrajectoryCircular:
		p := e.Params.withDefaults()
		angle := p.AngularRateRads * dt
		tangential := p.RadiusM * p.AngularRateRads
		return tracking.Velocity{
			VX: -tangential * math.Sin(angle),
			VY: tangential * math.Cos(angle),
			VZ: 0,
		}

	case TrajectoryApproaching:
		dirX, dirY, ok := e.radialDirection()
		if !ok {
			return tracking.Velocity{}
		}
		speed := math.Hypot(e.InitialVelocity.VX, e.InitialVelocity.VY)
		return tracking.Velocity{VX: -dirX * speed, VY: -dirY * speed, VZ: e.InitialVelocity.VZ}

	case TrajectoryDeparting:
		dirX, dirY, ok := e.radialDirection()
		if !ok {
			dirX, dirY = e.velocityDirection()
		}
		speed := math.Hypot(e.InitialVelocity.VX, e.InitialVelocity.VY)
		return tracking.Velocity{VX: dirX * speed, VY: dirY * speed, VZ: e.InitialVelocity.VZ}

	case TrajectoryPatrol:
		p := e.Params.withDefaults()
		dirX, dirY := normalize2(p.PatrolDirX, p.PatrolDirY)
		_, sign := patrolLeg(p.PatrolSpeedMPS*dt, p.PatrolLengthM)
		return tracking.Velocity{VX: dirX * p.PatrolSpeedMPS * sign, VY: dirY * p.PatrolSpeedMPS * sign, VZ: 0}

	case TrajectoryHover:
		return tracking.Velocity{}

	default: // LINEAR
		return e.InitialVelocity
	}
}

// radialDirection returns the unit vector from the station to the entity's
// initial position. ok is false when the entity starts at the station.
func (e *Entity) radialDirection() (dirX, dirY float64, ok bool) {
	dist := math.Hypot(e.InitialPosition.X, e.InitialPosition.Y)
	if dist == 0 {
		return 0, 0, false
	}
	return e.InitialPosition.X / dist, e.InitialPosition.Y / dist, true
}

// velocityDirection returns the horizontal unit vector of the initial
// velocity, defaulting to due east when stationary
func (e *Entity) velocityDirection() (dirX, dirY float64) {
	speed := math.Hypot(e.InitialVelocity.VX, e.InitialVelocity.VY)
	if speed == 0 {
		return 1.0, 0
	}
	return e.InitialVelocity.VX / speed, e.InitialVelocity.VY / speed
}

// patrolLeg folds the total distance traveled into a triangle wave over one
// patrol leg: offset sweeps 0..length..0 and sign reports the current heading
// along the leg (+1 outbound, -1 inbound).
func patrolLeg(traveled, length float64) (offset, sign float64) {
	phase := math.Mod(traveled, 2*length)
	if phase < 0 {
		phase += 2 * length
	}
	if phase <= length {
		return phase, 1.0
	}
	return 2*length - phase, -1.0
}

func normalize2(x, y float64) (float64, float64) {
	mag := math.Hypot(x, y)
	if mag == 0 {
		return 1.0, 0
	}
	return x / mag, y / mag
}
