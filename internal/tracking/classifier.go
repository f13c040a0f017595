package tracking

import (
	"fmt"
	"math"
)

// Features are the kinematic and signature inputs to one classification pass
type Features struct {
	SpeedMPS        float64   // 3D speed from the current state estimate, m/s
	AltitudeM       float64   // Height above the station plane, meters
	RCS             float64   // Radar cross section, normalized 0-1
	Maneuverability float64   // Maneuverability proxy, 0-1
	SizeClass       SizeClass // Coarse size category
}

// Classifier scores a track's features against fixed per-type bands and
// produces a normalized probability distribution over object types.
// Classification is a pure function of its inputs: identical features always
// yield identical results.
type Classifier struct {
	unknownThreshold       float64 // Minimum arg-max probability to accept a known label
	defaultRCS             float64 // RCS assumed when a detection carries none
	defaultManeuverability float64 // Maneuverability assumed when track history is too short
}

// NewClassifier creates a classifier. Non-positive arguments fall back to
// their conventional defaults.
func NewClassifier(unknownThreshold, defaultRCS, defaultManeuverability float64) *Classifier {
	if unknownThreshold <= 0 {
		unknownThreshold = 0.4
	}
	if defaultRCS <= 0 {
		defaultRCS = 0.5
	}
	if defaultManeuverability <= 0 {
		defaultManeuverability = 0.5
	}
	return &Classifier{
		unknownThreshold:       unknownThreshold,
		defaultRCS:             defaultRCS,
		defaultManeuverability: defaultManeuverability,
	}
}

// DefaultRCS returns the RCS value assumed for detections that carry none
func (c *Classifier) DefaultRCS() float64 { return c.defaultRCS }

// DefaultManeuverability returns the maneuverability assumed for tracks
// without enough history to derive one
func (c *Classifier) DefaultManeuverability() float64 { return c.defaultManeuverability }

// Classify scores the features against each object type, normalizes the
// scores into a probability distribution, and selects the arg-max label.
// The label falls back to UNKNOWN_OBJECT when no known type's probability
// clears the threshold; that is an expected outcome, not an error.
func (c *Classifier) Classify(f Features) ClassificationResult {
	droneScore, droneNotes := c.droneScore(f)
	aircraftScore, aircraftNotes := c.aircraftScore(f)
	unknownScore, unknownNotes := c.unknownScore(droneScore, aircraftScore)

	probs := map[ObjectType]float64{
		ObjectTypeDrone:    droneScore,
		ObjectTypeAircraft: aircraftScore,
		ObjectTypeUnknown:  unknownScore,
	}

	// Normalize to a probability distribution
	total := droneScore + aircraftScore + unknownScore
	if total > 0 {
		for _, t := range objectTypes {
			probs[t] /= total
		}
	} else {
		probs[ObjectTypeDrone] = 0
		probs[ObjectTypeAircraft] = 0
		probs[ObjectTypeUnknown] = 1
	}

	// Arg-max over the fixed label order so ties resolve deterministically
	best := objectTypes[0]
	for _, t := range objectTypes[1:] {
		if probs[t] > probs[best] {
			best = t
		}
	}

	objectType := best
	if probs[best] < c.unknownThreshold {
		objectType = ObjectTypeUnknown
	}
	confidence := probs[objectType]

	uncertainty := normalizedEntropy(probs)

	reasoning := make([]string, 0, len(droneNotes)+len(aircraftNotes)+len(unknownNotes)+2)
	reasoning = append(reasoning, fmt.Sprintf("Classification: %s (probability %.1f%%, uncertainty %.1f%%)",
		objectType, confidence*100, uncertainty*100))
	reasoning = append(reasoning, droneNotes...)
	reasoning = append(reasoning, aircraftNotes...)
	reasoning = append(reasoning, unknownNotes...)
	reasoning = append(reasoning, fmt.Sprintf("Probabilities: %s %.1f%%, %s %.1f%%, %s %.1f%%",
		ObjectTypeDrone, probs[ObjectTypeDrone]*100,
		ObjectTypeAircraft, probs[ObjectTypeAircraft]*100,
		ObjectTypeUnknown, probs[ObjectTypeUnknown]*100))

	return ClassificationResult{
		ObjectType:    objectType,
		Confidence:    confidence,
		Probabilities: probs,
		Uncertainty:   uncertainty,
		Reasoning:     reasoning,
	}
}

// droneScore scores the drone profile: small airframe, low altitude,
// 20-100 m/s, high maneuverability, small RCS
func (c *Classifier) droneScore(f Features) (float64, []string) {
	score := 0.0
	var notes []string

	switch f.SizeClass {
	case SizeSmall:
		score += 0.3
		notes = append(notes, "Size SMALL matches drone profile (+0.30)")
	case SizeMedium:
		score += 0.1
		notes = append(notes, "Size MEDIUM weakly matches drone profile (+0.10)")
	}

	if f.AltitudeM < 1000.0 {
		factor := 1.0 - f.AltitudeM/1000.0
		score += 0.3 * factor
		notes = append(notes, fmt.Sprintf("Altitude %.0f m in primary drone band below 1000 m (+%.2f)", f.AltitudeM, 0.3*factor))
	} else if f.AltitudeM < 2000.0 {
		factor := 1.0 - (f.AltitudeM-1000.0)/1000.0
		score += 0.1 * factor
		notes = append(notes, fmt.Sprintf("Altitude %.0f m in marginal drone band below 2000 m (+%.2f)", f.AltitudeM, 0.1*factor))
	}

	if f.SpeedMPS >= 20.0 && f.SpeedMPS <= 100.0 {
		factor := math.Max(0, 1.0-math.Abs(f.SpeedMPS-60.0)/40.0)
		score += 0.2 * factor
		if factor > 0 {
			notes = append(notes, fmt.Sprintf("Speed %.1f m/s in drone band 20-100 m/s (+%.2f)", f.SpeedMPS, 0.2*factor))
		}
	} else if f.SpeedMPS < 20.0 {
		score += 0.1
		notes = append(notes, fmt.Sprintf("Speed %.1f m/s below 20 m/s, consistent with a hovering drone (+0.10)", f.SpeedMPS))
	}

	if f.Maneuverability > 0 {
		score += 0.2 * f.Maneuverability
		notes = append(notes, fmt.Sprintf("Maneuverability %.2f raises drone score (+%.2f)", f.Maneuverability, 0.2*f.Maneuverability))
	}

	if f.RCS < 0.3 {
		score += 0.1
		notes = append(notes, fmt.Sprintf("RCS %.2f below 0.30, consistent with a small airframe (+0.10)", f.RCS))
	}

	return math.Min(1.0, score), notes
}

// aircraftScore scores the aircraft profile: medium to large airframe, high
// altitude, 200-400 m/s, low maneuverability, larger RCS
func (c *Classifier) aircraftScore(f Features) (float64, []string) {
	score := 0.0
	var notes []string

	switch f.SizeClass {
	case SizeLarge:
		score += 0.3
		notes = append(notes, "Size LARGE matches aircraft profile (+0.30)")
	case SizeMedium:
		score += 0.2
		notes = append(notes, "Size MEDIUM matches aircraft profile (+0.20)")
	}

	if f.AltitudeM > 5000.0 {
		factor := math.Min(1.0, (f.AltitudeM-5000.0)/10000.0)
		score += 0.3 * factor
		if factor > 0 {
			notes = append(notes, fmt.Sprintf("Altitude %.0f m in cruise band above 5000 m (+%.2f)", f.AltitudeM, 0.3*factor))
		}
	} else if f.AltitudeM > 2000.0 {
		factor := (f.AltitudeM - 2000.0) / 3000.0
		score += 0.1 * factor
		notes = append(notes, fmt.Sprintf("Altitude %.0f m in climb band 2000-5000 m (+%.2f)", f.AltitudeM, 0.1*factor))
	}

	if f.SpeedMPS >= 200.0 && f.SpeedMPS <= 400.0 {
		factor := math.Max(0, 1.0-math.Abs(f.SpeedMPS-300.0)/100.0)
		score += 0.3 * factor
		if factor > 0 {
			notes = append(notes, fmt.Sprintf("Speed %.1f m/s in cruise band 200-400 m/s (+%.2f)", f.SpeedMPS, 0.3*factor))
		}
	} else if f.SpeedMPS > 400.0 {
		score += 0.1
		notes = append(notes, fmt.Sprintf("Speed %.1f m/s above 400 m/s (+0.10)", f.SpeedMPS))
	}

	if f.Maneuverability < 1 {
		score += 0.1 * (1.0 - f.Maneuverability)
		notes = append(notes, fmt.Sprintf("Low maneuverability %.2f consistent with fixed-wing flight (+%.2f)", f.Maneuverability, 0.1*(1.0-f.Maneuverability)))
	}

	if f.RCS > 0.5 {
		score += 0.1
		notes = append(notes, fmt.Sprintf("RCS %.2f above 0.50, consistent with a large airframe (+0.10)", f.RCS))
	}

	return math.Min(1.0, score), notes
}

// unknownScore is the residual left by the best known match, boosted when the
// known profiles are too close to call
func (c *Classifier) unknownScore(droneScore, aircraftScore float64) (float64, []string) {
	maxKnown := math.Max(droneScore, aircraftScore)
	score := 1.0 - maxKnown

	var notes []string
	if score > 0 {
		notes = append(notes, fmt.Sprintf("Residual unknown score %.2f from best known match %.2f", score, maxKnown))
	}

	if math.Abs(droneScore-aircraftScore) < 0.2 {
		score += 0.2
		notes = append(notes, "Drone and aircraft scores differ by less than 0.20 (+0.20 unknown)")
	}

	return math.Min(1.0, score), notes
}

// ManeuverabilityScore derives the maneuverability proxy from two consecutive
// velocity estimates. Speed changes and direction changes both raise it:
// min(1, |Δspeed|/50 + Δangle/π).
func ManeuverabilityScore(prev, current Velocity) float64 {
	currentSpeed := math.Sqrt(current.VX*current.VX + current.VY*current.VY + current.VZ*current.VZ)
	prevSpeed := math.Sqrt(prev.VX*prev.VX + prev.VY*prev.VY + prev.VZ*prev.VZ)

	speedChange := math.Abs(currentSpeed - prevSpeed)

	angleChange := 0.0
	if currentSpeed > 0 && prevSpeed > 0 {
		dot := current.VX*prev.VX + current.VY*prev.VY + current.VZ*prev.VZ
		cosAngle := dot / (currentSpeed * prevSpeed)
		cosAngle = math.Max(-1.0, math.Min(1.0, cosAngle))
		angleChange = math.Acos(cosAngle)
	}

	return math.Min(1.0, speedChange/50.0+angleChange/math.Pi)
}

// normalizedEntropy returns the Shannon entropy of the distribution
// normalized by the maximum entropy for its label count
func normalizedEntropy(probs map[ObjectType]float64) float64 {
	entropy := 0.0
	for _, t := range objectTypes {
		p := probs[t]
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	maxEntropy := math.Log2(float64(len(objectTypes)))
	if maxEntropy <= 0 {
		return 0
	}
	return entropy / maxEntropy
}
