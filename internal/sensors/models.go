package sensors

import (
	"math/rand"

	"github.com/skyfence/airtrack/internal/tracking"
)

// EntityType identifies the kind of simulated aerial object
type EntityType string

const (
	EntityCommercialAircraft EntityType = "COMMERCIAL_AIRCRAFT"
	EntityMilitaryAircraft   EntityType = "MILITARY_AIRCRAFT"
	EntityDrone              EntityType = "DRONE"
	EntityHelicopter         EntityType = "HELICOPTER"
)

// Trajectory selects the closed-form motion pattern of a simulated entity
type Trajectory string

const (
	TrajectoryLinear      Trajectory = "LINEAR"      // Constant velocity
	TrajectoryCircular    Trajectory = "CIRCULAR"    // Orbit around a center point
	TrajectoryApproaching Trajectory = "APPROACHING" // Straight toward the station
	TrajectoryDeparting   Trajectory = "DEPARTING"   // Straight away from the station
	TrajectoryPatrol      Trajectory = "PATROL"      // Back and forth along a line
	TrajectoryHover       Trajectory = "HOVER"       // Stationary
)

// Characteristics describes the physical profile of a simulated entity. The
// values feed the sensor models (RCS drives signal strength, size category is
// reported as metadata).
type Characteristics struct {
	Type            EntityType
	SpeedMPS        float64            // Typical cruise speed
	AltitudeM       float64            // Typical operating altitude
	RCS             float64            // Radar cross section, normalized 0-1
	Maneuverability float64            // Agility, 0-1
	SizeClass       tracking.SizeClass // Coarse size category
}

// CommercialAircraft returns the profile of an airliner in cruise
func CommercialAircraft() Characteristics {
	return Characteristics{
		Type:            EntityCommercialAircraft,
		SpeedMPS:        250.0,
		AltitudeM:       10000.0,
		RCS:             0.8,
		Maneuverability: 0.2,
		SizeClass:       tracking.SizeLarge,
	}
}

// MilitaryAircraft returns the profile of a fast, agile jet
func MilitaryAircraft() Characteristics {
	return Characteristics{
		Type:            EntityMilitaryAircraft,
		SpeedMPS:        400.0,
		AltitudeM:       8000.0,
		RCS:             0.6,
		Maneuverability: 0.8,
		SizeClass:       tracking.SizeMedium,
	}
}

// Drone returns the profile of a small low-altitude drone
func Drone() Characteristics {
	return Characteristics{
		Type:            EntityDrone,
		SpeedMPS:        50.0,
		AltitudeM:       500.0,
		RCS:             0.1,
		Maneuverability: 0.9,
		SizeClass:       tracking.SizeSmall,
	}
}

// Helicopter returns the profile of a mid-altitude rotorcraft
func Helicopter() Characteristics {
	return Characteristics{
		Type:            EntityHelicopter,
		SpeedMPS:        80.0,
		AltitudeM:       2000.0,
		RCS:             0.4,
		Maneuverability: 0.7,
		SizeClass:       tracking.SizeMedium,
	}
}

// signalStrength models the received signal from a source of the given
// strength (radar echo scaled by RCS, or transponder reply strength) at the
// given distance: inverse-square falloff with Gaussian receiver noise,
// clamped to [0, 1].
func signalStrength(rng *rand.Rand, distanceM, source float64) float64 {
	if distanceM <= 0 {
		return clamp01(source)
	}
	strength := source / (1.0 + (distanceM/10000.0)*(distanceM/10000.0))
	return clamp01(strength + rng.NormFloat64()*0.1)
}

// rangeDependentNoise is the position noise standard deviation at the given
// distance: the base sigma plus 10 m per kilometer of range
func rangeDependentNoise(baseM, distanceM float64) float64 {
	return baseM + (distanceM/1000.0)*10.0
}

// detectionConfidence combines the range margin and the received signal into
// a single 0-1 confidence
func detectionConfidence(distanceM, signal, rangeM float64) float64 {
	distanceFactor := 1.0 - distanceM/rangeM
	if distanceFactor < 0 {
		distanceFactor = 0
	}
	return clamp01(distanceFactor*0.6 + signal*0.4)
}

// measurementUncertainty estimates how unreliable a reading is: it grows with
// distance and with weak signal
func measurementUncertainty(distanceM, signal float64) float64 {
	distancePart := distanceM / 200000.0
	if distancePart > 1 {
		distancePart = 1
	}
	return clamp01(distancePart*0.7 + (1.0-signal)*0.3)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
