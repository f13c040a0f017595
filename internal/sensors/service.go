package sensors

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/skyfence/airtrack/internal/config"
	"github.com/skyfence/airtrack/internal/tracking"
	"github.com/skyfence/airtrack/pkg/logger"
)

// Service owns the simulated sensors and the entity population they observe.
// It implements the tracking service's detection source contract: Collect
// returns the concatenated sensor output for one cycle.
type Service struct {
	cfg    config.SensorsConfig
	logger *logger.Logger

	radar    *Radar
	iff      *IFF
	entities []*Entity
	rng      *rand.Rand
}

// NewService creates the sensor simulation service and spawns the entity
// population of the configured scenario, anchored at the given start time.
func NewService(cfg *config.Config, log *logger.Logger, start time.Time) *Service {
	seed := cfg.Sensors.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Service{
		cfg:    cfg.Sensors,
		logger: log.Named("sensors"),
		rng:    rand.New(rand.NewSource(seed)),
	}
	if cfg.Sensors.Radar.Enabled {
		s.radar = NewRadar("radar-1", cfg.Sensors.Radar, seed+1)
	}
	if cfg.Sensors.IFF.Enabled {
		s.iff = NewIFF("iff-1", cfg.Sensors.IFF, seed+2)
	}

	s.spawnScenario(start)
	s.logger.Info("Sensor simulation ready",
		logger.String("scenario", s.cfg.Scenario),
		logger.Int64("seed", seed),
		logger.Int("entities", len(s.entities)),
		logger.Bool("radar", s.radar != nil),
		logger.Bool("iff", s.iff != nil))

	return s
}

// Collect returns all sensor detections for the cycle at the given instant.
// Sensors that were interrogated too recently contribute nothing.
func (s *Service) Collect(now time.Time) []tracking.Detection {
	var batch []tracking.Detection
	if s.radar != nil {
		batch = append(batch, s.radar.Scan(now, s.entities)...)
	}
	if s.iff != nil {
		batch = append(batch, s.iff.Scan(now, s.entities)...)
	}

	if max := s.cfg.MaxDetectionsPerCycle; max > 0 && len(batch) > max {
		s.logger.Warn("Sensor batch exceeds per-cycle cap, truncating",
			logger.Int("produced", len(batch)),
			logger.Int("cap", max))
		batch = batch[:max]
	}
	return batch
}

// Entities returns the current entity population
func (s *Service) Entities() []*Entity {
	out := make([]*Entity, len(s.entities))
	copy(out, s.entities)
	return out
}

func (s *Service) spawnScenario(start time.Time) {
	switch s.cfg.Scenario {
	case "approach":
		// Traffic converging on the station: three airliners inbound from
		// long range plus a helicopter departing the field
		for i := 0; i < 3; i++ {
			s.spawn(CommercialAircraft(), s.bearing(), s.distance(100000, 140000),
				TrajectoryApproaching, TrajectoryParams{}, start, fmt.Sprintf("47%02d", i+1), true)
		}
		s.spawn(Helicopter(), s.bearing(), s.distance(5000, 10000),
			TrajectoryDeparting, TrajectoryParams{}, start, "7600", false)

	case "drone_swarm":
		// Small uncooperative targets close in, none with a transponder
		for i := 0; i < 6; i++ {
			s.spawn(Drone(), s.bearing(), s.distance(2000, 8000),
				TrajectoryLinear, TrajectoryParams{}, start, "", false)
		}
		s.spawn(Drone(), s.bearing(), s.distance(1000, 3000),
			TrajectoryHover, TrajectoryParams{}, start, "", false)

	default: // "mixed"
		s.spawn(CommercialAircraft(), s.bearing(), s.distance(80000, 120000),
			TrajectoryLinear, TrajectoryParams{}, start, "4701", true)
		s.spawn(CommercialAircraft(), s.bearing(), s.distance(80000, 120000),
			TrajectoryLinear, TrajectoryParams{}, start, "4702", true)
		s.spawn(MilitaryAircraft(), s.bearing(), s.distance(40000, 60000),
			TrajectoryPatrol, TrajectoryParams{PatrolLengthM: 30000, PatrolSpeedMPS: 400}, start, "0012", true)
		s.spawn(Helicopter(), s.bearing(), s.distance(15000, 25000),
			TrajectoryCircular, TrajectoryParams{RadiusM: 5000, AngularRateRads: 0.005}, start, "7000", false)
		s.spawn(Drone(), s.bearing(), s.distance(3000, 6000),
			TrajectoryHover, TrajectoryParams{}, start, "", false)
		s.spawn(Drone(), s.bearing(), s.distance(5000, 10000),
			TrajectoryLinear, TrajectoryParams{}, start, "", false)
	}
}

// spawn places an entity of the given profile at the given bearing and range
// from the station, heading inbound, and adds it to the population
func (s *Service) spawn(char Characteristics, bearingRad, distanceM float64,
	traj Trajectory, params TrajectoryParams, start time.Time, iffCode string, friendly bool) {

	x := distanceM * math.Cos(bearingRad)
	y := distanceM * math.Sin(bearingRad)

	// Initial velocity points back at the station at the profile's speed;
	// patterns that derive their own motion ignore the direction and keep
	// the magnitude.
	vx, vy := -math.Cos(bearingRad)*char.SpeedMPS, -math.Sin(bearingRad)*char.SpeedMPS

	e := &Entity{
		ID:              fmt.Sprintf("entity_%02d", len(s.entities)+1),
		Characteristics: char,
		InitialPosition: tracking.Position{X: x, Y: y, Z: char.AltitudeM},
		InitialVelocity: tracking.Velocity{VX: vx, VY: vy, VZ: 0},
		Trajectory:      traj,
		Params:          params,
		CreatedAt:       start,
		IFFCode:         iffCode,
		Friendly:        friendly,
	}
	if traj == TrajectoryCircular {
		// Orbit around the spawn point rather than the station
		e.Params.CenterX = x
		e.Params.CenterY = y
	}
	s.entities = append(s.entities, e)
}

func (s *Service) bearing() float64 {
	return s.rng.Float64() * 2 * math.Pi
}

func (s *Service) distance(minM, maxM float64) float64 {
	return minM + s.rng.Float64()*(maxM-minM)
}
