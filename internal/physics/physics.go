package physics

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	KnotsToMs    = 0.514444   // Conversion factor from Knots to m/s
	MsToKnots    = 1.94384    // Conversion factor from m/s to Knots
	MetersToFeet = 3.28084    // Conversion factor from meters to feet
	FeetToMeters = 0.3048     // Conversion factor from feet to meters
	MsToFPM      = 196.850394 // Conversion factor from m/s to feet per minute

	// Operating volume boundaries for the local ENU frame centered on the
	// station. Detections outside this box are rejected before tracking.
	MaxPlanarDistanceM = 1000000.0 // Maximum |east| / |north| offset from the station (1000 km)
	MinAltitudeM       = -100000.0 // Minimum accepted altitude
	MaxAltitudeM       = 200000.0  // Maximum accepted altitude
	MaxSpeedMs         = 1000.0    // Maximum accepted speed along any single axis (m/s)
)

// ------------------------------------------------------------------------------------------------
// GEOMETRY
// ------------------------------------------------------------------------------------------------

// Distance3D returns the Euclidean distance in meters between two points
// in the local ENU frame
func Distance3D(x1, y1, z1, x2, y2, z2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	dz := z2 - z1
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// HorizontalDistance returns the ground-plane distance in meters between two points
func HorizontalDistance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// GroundSpeed returns the horizontal speed in m/s for the given east/north velocity components
func GroundSpeed(vx, vy float64) float64 {
	return math.Hypot(vx, vy)
}

// TotalSpeed returns the 3D speed in m/s
func TotalSpeed(vx, vy, vz float64) float64 {
	return math.Sqrt(vx*vx + vy*vy + vz*vz)
}

// VerticalRateFPM converts a vertical speed in m/s to feet per minute
func VerticalRateFPM(vz float64) float64 {
	return vz * MsToFPM
}

// ------------------------------------------------------------------------------------------------
// NAVIGATION
// ------------------------------------------------------------------------------------------------

// Vector2D represents a 2D vector (magnitude, direction)
type Vector2D struct {
	X float64 // East component
	Y float64 // North component
}

// HeadingToVector converts a heading (degrees) and magnitude to X/Y components
func HeadingToVector(headingDeg float64, magnitude float64) Vector2D {
	rad := (90 - headingDeg) * math.Pi / 180 // Convert compass heading to math angle
	return Vector2D{
		X: magnitude * math.Cos(rad),
		Y: magnitude * math.Sin(rad),
	}
}

// Course returns the compass course (degrees true, 0-360) of the given
// east/north velocity components. Returns 0 for a stationary target.
func Course(vx, vy float64) float64 {
	if vx == 0 && vy == 0 {
		return 0
	}

	// math.Atan2 returns angle from X axis (East) in radians
	rad := math.Atan2(vy, vx)

	// Convert math angle to compass heading
	// Compass = 90 - MathDegree
	heading := 90 - (rad * 180 / math.Pi)

	return NormalizeHeading(heading)
}

// NormalizeHeading wraps a heading in degrees into [0, 360)
func NormalizeHeading(headingDeg float64) float64 {
	h := math.Mod(headingDeg, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// TrueToMagnetic converts a true course to a magnetic course given the local
// declination (+East, -West)
func TrueToMagnetic(trueCourseDeg, declinationDeg float64) float64 {
	return NormalizeHeading(trueCourseDeg - declinationDeg)
}

// CalculateMagneticVariation calculates the magnetic declination for a given position and time
// Returns declination in degrees (+East, -West)
func CalculateMagneticVariation(lat, lon, altM float64, date time.Time) float64 {
	// Create location from Geodetic coordinates
	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	// Calculate magnetic field
	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// Return 0 for safety if calculation fails
		return 0.0
	}

	return mag.D() // Declination
}
