package sensors

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfence/airtrack/internal/config"
	"github.com/skyfence/airtrack/internal/tracking"
)

func testRadarConfig() config.RadarConfig {
	return config.RadarConfig{
		Enabled:            true,
		RangeM:             150000,
		UpdateRateHz:       1.0,
		DetectionThreshold: 0.4,
		PositionNoiseM:     50,
		VelocityNoiseMPS:   5,
	}
}

func TestRadarRateLimiting(t *testing.T) {
	t.Parallel()

	radar := NewRadar("radar-1", testRadarConfig(), 42)
	entities := []*Entity{linearEntity(
		tracking.Position{X: 3000, Y: 0, Z: 500},
		tracking.Velocity{VX: -50},
		TrajectoryLinear,
	)}

	assert.NotEmpty(t, radar.Scan(entityBase, entities))
	assert.Empty(t, radar.Scan(entityBase.Add(300*time.Millisecond), entities),
		"second interrogation inside the update interval yields nothing")
	assert.NotEmpty(t, radar.Scan(entityBase.Add(1300*time.Millisecond), entities))
}

func TestRadarRangeGate(t *testing.T) {
	t.Parallel()

	radar := NewRadar("radar-1", testRadarConfig(), 42)
	entities := []*Entity{linearEntity(
		tracking.Position{X: 200000, Y: 0, Z: 10000},
		tracking.Velocity{VX: -250},
		TrajectoryLinear,
	)}

	assert.Empty(t, radar.Scan(entityBase, entities))
}

func TestRadarWeakTargetBelowThreshold(t *testing.T) {
	t.Parallel()

	// A drone at 120 km: the range margin alone contributes well under the
	// 0.4 threshold and the echo is negligible at that distance
	radar := NewRadar("radar-1", testRadarConfig(), 42)
	drone := &Entity{
		ID:              "entity_far_drone",
		Characteristics: Drone(),
		InitialPosition: tracking.Position{X: 120000, Y: 0, Z: 500},
		Trajectory:      TrajectoryHover,
		CreatedAt:       entityBase,
	}

	assert.Empty(t, radar.Scan(entityBase, []*Entity{drone}))
}

func TestRadarReadingStaysNearTruth(t *testing.T) {
	t.Parallel()

	radar := NewRadar("radar-1", testRadarConfig(), 42)
	truthPos := tracking.Position{X: 20000, Y: 0, Z: 10000}
	truthVel := tracking.Velocity{VX: -250, VY: 0, VZ: 0}
	entities := []*Entity{linearEntity(truthPos, truthVel, TrajectoryHover)}

	detections := radar.Scan(entityBase, entities)
	require.Len(t, detections, 1)
	det := detections[0]

	// Position noise sigma at 20 km is 50 + 200 = 250 m (altitude halved)
	distance := math.Hypot(truthPos.X, truthPos.Z)
	sigma := 50.0 + (distance/1000.0)*10.0
	assert.InDelta(t, truthPos.X, det.Position.X, 6*sigma)
	assert.InDelta(t, truthPos.Y, det.Position.Y, 6*sigma)
	assert.InDelta(t, truthPos.Z, det.Position.Z, 3*sigma)

	require.NotNil(t, det.Velocity)
	assert.InDelta(t, 0.0, det.Velocity.VX, 30, "hovering truth, so the reading is pure noise")
	assert.InDelta(t, 0.0, det.Velocity.VZ, 15)

	assert.Equal(t, "radar-1", det.SensorID)
	assert.Equal(t, "radar", det.SensorType)
	assert.True(t, det.Valid())
	assert.GreaterOrEqual(t, det.Confidence, 0.4)
	require.NotNil(t, det.RCS)
	assert.InDelta(t, 0.8, *det.RCS, 1e-9)
	assert.Equal(t, tracking.SizeLarge, det.SizeClass)
	assert.Equal(t, "entity_test", det.Metadata["entity_id"])
}

func TestRadarUncertaintyGrowsWithDistance(t *testing.T) {
	t.Parallel()

	near := NewRadar("radar-1", testRadarConfig(), 42)
	far := NewRadar("radar-2", testRadarConfig(), 42)

	nearDet := near.Scan(entityBase, []*Entity{linearEntity(
		tracking.Position{X: 5000, Y: 0, Z: 1000}, tracking.Velocity{}, TrajectoryHover)})
	farDet := far.Scan(entityBase, []*Entity{linearEntity(
		tracking.Position{X: 40000, Y: 0, Z: 1000}, tracking.Velocity{}, TrajectoryHover)})

	require.Len(t, nearDet, 1)
	require.Len(t, farDet, 1)
	assert.Greater(t, farDet[0].Uncertainty, nearDet[0].Uncertainty)
}
