package sensors

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/skyfence/airtrack/internal/config"
	"github.com/skyfence/airtrack/internal/physics"
	"github.com/skyfence/airtrack/internal/tracking"
)

// IFF reply strengths and confidences by response class. A valid friendly
// code produces a strong, trustworthy reply; absence of any transponder
// leaves only a weak skin return that the confidence threshold discards.
const (
	iffFriendlyStrength    = 0.9
	iffUnknownCodeStrength = 0.5
	iffNoResponseStrength  = 0.2

	iffFriendlyConfidence    = 0.95
	iffUnknownCodeConfidence = 0.7
	iffNoResponseConfidence  = 0.3

	// IFF position fixes are tighter than radar plots
	iffNoiseScale = 0.3
)

// IFF simulates a transponder interrogator colocated with the station. Unlike
// radar, its confidence is fixed by the response class rather than computed
// from geometry.
type IFF struct {
	id         string
	rangeM     float64
	updateRate float64
	threshold  float64

	rng      *rand.Rand
	lastScan time.Time
	seq      int
}

// NewIFF creates an IFF interrogator from its configuration
func NewIFF(id string, cfg config.IFFConfig, seed int64) *IFF {
	return &IFF{
		id:         id,
		rangeM:     cfg.RangeM,
		updateRate: cfg.UpdateRateHz,
		threshold:  cfg.DetectionThreshold,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Scan interrogates the entities at the given instant, honoring the
// interrogation rate limit
func (f *IFF) Scan(now time.Time, entities []*Entity) []tracking.Detection {
	if !f.lastScan.IsZero() && now.Sub(f.lastScan).Seconds() < 1.0/f.updateRate {
		return nil
	}
	f.lastScan = now

	detections := make([]tracking.Detection, 0, len(entities))
	for _, e := range entities {
		truth := e.PositionAt(now)
		distance := physics.Distance3D(truth.X, truth.Y, truth.Z, 0, 0, 0)
		if distance > f.rangeM {
			continue
		}

		response, strength, confidence := classifyResponse(e)
		if confidence < f.threshold {
			continue
		}
		signal := signalStrength(f.rng, distance, strength)

		posSigma := rangeDependentNoise(50.0, distance) * iffNoiseScale
		velSigma := 5.0 * iffNoiseScale
		velocity := e.VelocityAt(now)

		f.seq++
		detections = append(detections, tracking.Detection{
			ID:         fmt.Sprintf("%s-%06d", f.id, f.seq),
			SensorID:   f.id,
			SensorType: "iff",
			Timestamp:  now,
			Position: tracking.Position{
				X: truth.X + f.rng.NormFloat64()*posSigma,
				Y: truth.Y + f.rng.NormFloat64()*posSigma,
				Z: truth.Z + f.rng.NormFloat64()*posSigma*0.5,
			},
			Velocity: &tracking.Velocity{
				VX: velocity.VX + f.rng.NormFloat64()*velSigma,
				VY: velocity.VY + f.rng.NormFloat64()*velSigma,
				VZ: velocity.VZ + f.rng.NormFloat64()*velSigma*0.5,
			},
			Confidence:  confidence,
			Uncertainty: measurementUncertainty(distance, signal),
			IFFResponse: response,
			Metadata: map[string]string{
				"entity_id":  e.ID,
				"distance_m": fmt.Sprintf("%.0f", distance),
				"iff_code":   e.IFFCode,
			},
		})
	}

	return detections
}

func classifyResponse(e *Entity) (tracking.IFFResponse, float64, float64) {
	switch {
	case e.Friendly && e.IFFCode != "":
		return tracking.IFFFriendly, iffFriendlyStrength, iffFriendlyConfidence
	case e.IFFCode != "":
		return tracking.IFFUnknownCode, iffUnknownCodeStrength, iffUnknownCodeConfidence
	default:
		return tracking.IFFNoResponse, iffNoResponseStrength, iffNoResponseConfidence
	}
}
