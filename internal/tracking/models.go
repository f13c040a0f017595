package tracking

import (
	"math"
	"time"

	"github.com/skyfence/airtrack/internal/physics"
)

// ObjectType is the classification label assigned to a track
type ObjectType string

const (
	ObjectTypeDrone    ObjectType = "AERIAL_DRONE"
	ObjectTypeAircraft ObjectType = "AIRCRAFT"
	ObjectTypeUnknown  ObjectType = "UNKNOWN_OBJECT"
)

// objectTypes is the canonical label order used for scoring, normalization
// and arg-max selection. Iteration over this slice keeps classification
// deterministic across runs.
var objectTypes = []ObjectType{ObjectTypeDrone, ObjectTypeAircraft, ObjectTypeUnknown}

// TrackStatus is the lifecycle state of a track
type TrackStatus string

const (
	StatusInitializing TrackStatus = "INITIALIZING" // Created, not yet confirmed by enough updates
	StatusActive       TrackStatus = "ACTIVE"       // Confirmed and receiving timely updates
	StatusCoasting     TrackStatus = "COASTING"     // Predicted forward without a matching detection
	StatusTerminated   TrackStatus = "TERMINATED"   // Aged out or evicted; removed from the table
)

// SizeClass is the coarse physical size category reported by a sensor
type SizeClass string

const (
	SizeSmall  SizeClass = "SMALL"
	SizeMedium SizeClass = "MEDIUM"
	SizeLarge  SizeClass = "LARGE"
)

// IFFResponse is the transponder interrogation result reported by an IFF sensor
type IFFResponse string

const (
	IFFFriendly    IFFResponse = "FRIENDLY"
	IFFUnknownCode IFFResponse = "UNKNOWN_CODE"
	IFFNoResponse  IFFResponse = "NO_RESPONSE"
)

// Position is a point in the local ENU frame centered on the station,
// in meters (X east, Y north, Z up)
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Velocity is a velocity vector in the local ENU frame, in m/s
type Velocity struct {
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	VZ float64 `json:"vz"`
}

// Detection represents a single sensor observation. Detections are consumed
// once by the tracking cycle that processes them and are never retained.
type Detection struct {
	ID          string            `json:"id"`                     // Unique detection identifier assigned by the producing sensor
	SensorID    string            `json:"sensor_id"`              // Identifier of the producing sensor
	SensorType  string            `json:"sensor_type"`            // Sensor family: "radar", "iff", or "manual" for API-injected detections
	Timestamp   time.Time         `json:"timestamp"`              // Measurement time
	Position    Position          `json:"position"`               // Measured position in the local ENU frame (meters)
	Velocity    *Velocity         `json:"velocity,omitempty"`     // Measured velocity (m/s), absent for sensors that cannot measure it
	Confidence  float64           `json:"confidence"`             // Sensor confidence in this report, 0-1
	Uncertainty float64           `json:"uncertainty"`            // Normalized measurement uncertainty, 0-1
	RCS         *float64          `json:"rcs,omitempty"`          // Radar cross section estimate, normalized 0-1
	SizeClass   SizeClass         `json:"size_class,omitempty"`   // Coarse size category when the sensor can estimate one
	IFFResponse IFFResponse       `json:"iff_response,omitempty"` // Transponder response, IFF reports only
	Metadata    map[string]string `json:"metadata,omitempty"`     // Free-form sensor metadata (e.g., mode 3/A code)
}

// Valid reports whether the detection is structurally usable: finite
// position and velocity inside the operating volume, and
// confidence/uncertainty inside [0, 1]. Invalid detections are dropped
// before association.
func (d *Detection) Valid() bool {
	if !isFinite(d.Position.X) || !isFinite(d.Position.Y) || !isFinite(d.Position.Z) {
		return false
	}
	if math.Abs(d.Position.X) > physics.MaxPlanarDistanceM ||
		math.Abs(d.Position.Y) > physics.MaxPlanarDistanceM {
		return false
	}
	if d.Position.Z < physics.MinAltitudeM || d.Position.Z > physics.MaxAltitudeM {
		return false
	}
	if d.Velocity != nil {
		if !isFinite(d.Velocity.VX) || !isFinite(d.Velocity.VY) || !isFinite(d.Velocity.VZ) {
			return false
		}
		if math.Abs(d.Velocity.VX) > physics.MaxSpeedMs ||
			math.Abs(d.Velocity.VY) > physics.MaxSpeedMs ||
			math.Abs(d.Velocity.VZ) > physics.MaxSpeedMs {
			return false
		}
	}
	if d.Confidence < 0 || d.Confidence > 1 || !isFinite(d.Confidence) {
		return false
	}
	if d.Uncertainty < 0 || d.Uncertainty > 1 || !isFinite(d.Uncertainty) {
		return false
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ClassificationResult is the outcome of one classification pass over a track
type ClassificationResult struct {
	ObjectType    ObjectType             `json:"object_type"`   // Selected label
	Confidence    float64                `json:"confidence"`    // Probability of the selected label, 0-1
	Probabilities map[ObjectType]float64 `json:"probabilities"` // Full probability distribution over labels
	Uncertainty   float64                `json:"uncertainty"`   // Normalized Shannon entropy of the distribution, 0-1
	Reasoning     []string               `json:"reasoning"`     // Feature bands that matched, in evaluation order
}

// Track is the mutable aggregate owned by the Tracker. It is only ever
// touched inside a tracking cycle; readers receive TrackSnapshot copies.
type Track struct {
	ID             string
	Status         TrackStatus
	State          *KalmanState
	Classification ClassificationResult
	Confidence     float64
	CreatedAt      time.Time
	UpdatedAt      time.Time // Time of the last matched detection
	UpdateCount    int       // Matched detections absorbed so far

	// prevVelocity is the estimated velocity before the most recent update,
	// kept to derive the maneuverability feature for classification.
	prevVelocity Velocity
	hasPrev      bool

	// stateTime is the instant the current state estimate refers to. It
	// advances on every predict, so coasting cycles never re-predict an
	// interval that was already applied.
	stateTime time.Time
}

// TrackSnapshot is an immutable copy of one track's externally visible state,
// produced at the end of a tracking cycle
type TrackSnapshot struct {
	ID                  string               `json:"id"`
	Status              TrackStatus          `json:"status"`
	Position            Position             `json:"position"`
	Velocity            Velocity             `json:"velocity"`
	PositionUncertainty float64              `json:"position_uncertainty"` // Mean of the positional covariance diagonal
	VelocityUncertainty float64              `json:"velocity_uncertainty"` // Mean of the velocity covariance diagonal
	Classification      ClassificationResult `json:"classification"`
	Confidence          float64              `json:"confidence"`
	GroundSpeed         float64              `json:"ground_speed"`             // Horizontal speed in m/s
	Course              float64              `json:"course"`                   // True course in degrees, 0-360
	CourseMagnetic      *float64             `json:"course_magnetic,omitempty"` // Magnetic course, filled in by the service when a station is configured
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
	UpdateCount         int                  `json:"update_count"`
}

// TrackEvent records a single lifecycle transition
type TrackEvent struct {
	TrackID   string      `json:"track_id"`
	From      TrackStatus `json:"from"` // Empty for track creation
	To        TrackStatus `json:"to"`
	Timestamp time.Time   `json:"timestamp"`
	Reason    string      `json:"reason"` // e.g., "created", "confirmed", "no detection", "aged out", "evicted"
}

// CycleStats summarizes one tracking cycle
type CycleStats struct {
	Timestamp            time.Time `json:"timestamp"`
	DetectionsIn         int       `json:"detections_in"`         // Detections offered to the cycle
	DetectionsRejected   int       `json:"detections_rejected"`   // Dropped by validation before association
	DetectionsAssociated int       `json:"detections_associated"` // Matched to an existing track
	DetectionsDropped    int       `json:"detections_dropped"`    // Unmatched and refused because the table was full
	TracksCreated        int       `json:"tracks_created"`
	TracksTerminated     int       `json:"tracks_terminated"` // Aged out this cycle
	TracksEvicted        int       `json:"tracks_evicted"`    // Coasting tracks evicted to admit new ones
	InitializingTracks   int       `json:"initializing_tracks"`
	ActiveTracks         int       `json:"active_tracks"`
	CoastingTracks       int       `json:"coasting_tracks"`
	TotalTracks          int       `json:"total_tracks"`
	DurationMs           float64   `json:"duration_ms"` // Wall-clock cycle time, filled in by the service
}

// CycleResult is the complete, consistent output of one tracking cycle
type CycleResult struct {
	Snapshots []TrackSnapshot `json:"snapshots"`
	Events    []TrackEvent    `json:"events"`
	Stats     CycleStats      `json:"stats"`
}
