package sensors

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/skyfence/airtrack/internal/config"
	"github.com/skyfence/airtrack/internal/physics"
	"github.com/skyfence/airtrack/internal/tracking"
)

// Radar simulates a primary surveillance radar colocated with the station.
// It reports noisy position and velocity for every entity inside its range
// whose combined detection confidence clears the threshold.
type Radar struct {
	id          string
	rangeM      float64
	updateRate  float64
	threshold   float64
	posNoiseM   float64
	velNoiseMPS float64

	rng      *rand.Rand
	lastScan time.Time
	seq      int
}

// NewRadar creates a radar sensor from its configuration. The seed fixes the
// sensor's noise stream for reproducible runs.
func NewRadar(id string, cfg config.RadarConfig, seed int64) *Radar {
	return &Radar{
		id:          id,
		rangeM:      cfg.RangeM,
		updateRate:  cfg.UpdateRateHz,
		threshold:   cfg.DetectionThreshold,
		posNoiseM:   cfg.PositionNoiseM,
		velNoiseMPS: cfg.VelocityNoiseMPS,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Scan interrogates the entities at the given instant. A scan requested
// sooner than one update interval after the previous one yields nothing.
func (r *Radar) Scan(now time.Time, entities []*Entity) []tracking.Detection {
	if !r.lastScan.IsZero() && now.Sub(r.lastScan).Seconds() < 1.0/r.updateRate {
		return nil
	}
	r.lastScan = now

	detections := make([]tracking.Detection, 0, len(entities))
	for _, e := range entities {
		truth := e.PositionAt(now)
		distance := physics.Distance3D(truth.X, truth.Y, truth.Z, 0, 0, 0)
		if distance > r.rangeM {
			continue
		}

		signal := signalStrength(r.rng, distance, e.Characteristics.RCS)
		confidence := detectionConfidence(distance, signal, r.rangeM)
		if confidence < r.threshold {
			continue
		}

		posSigma := rangeDependentNoise(r.posNoiseM, distance)
		velocity := e.VelocityAt(now)
		rcs := e.Characteristics.RCS

		r.seq++
		detections = append(detections, tracking.Detection{
			ID:         fmt.Sprintf("%s-%06d", r.id, r.seq),
			SensorID:   r.id,
			SensorType: "radar",
			Timestamp:  now,
			Position: tracking.Position{
				X: truth.X + r.rng.NormFloat64()*posSigma,
				Y: truth.Y + r.rng.NormFloat64()*posSigma,
				Z: truth.Z + r.rng.NormFloat64()*posSigma*0.5,
			},
			Velocity: &tracking.Velocity{
				VX: velocity.VX + r.rng.NormFloat64()*r.velNoiseMPS,
				VY: velocity.VY + r.rng.NormFloat64()*r.velNoiseMPS,
				VZ: velocity.VZ + r.rng.NormFloat64()*r.velNoiseMPS*0.5,
			},
			Confidence:  confidence,
			Uncertainty: measurementUncertainty(distance, signal),
			RCS:         &rcs,
			SizeClass:   e.Characteristics.SizeClass,
			Metadata: map[string]string{
				"entity_id":  e.ID,
				"distance_m": fmt.Sprintf("%.0f", distance),
			},
		})
	}

	return detections
}
