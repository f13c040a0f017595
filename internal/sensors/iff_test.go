package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfence/airtrack/internal/config"
	"github.com/skyfence/airtrack/internal/tracking"
)

func testIFFConfig() config.IFFConfig {
	return config.IFFConfig{
		Enabled:            true,
		RangeM:             200000,
		UpdateRateHz:       2.0,
		DetectionThreshold: 0.6,
	}
}

func TestIFFConfidenceReflectsResponseClass(t *testing.T) {
	t.Parallel()

	iff := NewIFF("iff-1", testIFFConfig(), 42)
	at := func(x float64, code string, friendly bool) *Entity {
		return &Entity{
			ID:              "entity_" + code,
			Characteristics: Helicopter(),
			InitialPosition: tracking.Position{X: x, Y: 0, Z: 2000},
			Trajectory:      TrajectoryHover,
			CreatedAt:       entityBase,
			IFFCode:         code,
			Friendly:        friendly,
		}
	}
	entities := []*Entity{
		at(10000, "4701", true),
		at(20000, "7600", false),
		at(30000, "", false),
	}

	detections := iff.Scan(entityBase, entities)

	// The bare target's weak skin return never clears the 0.6 threshold,
	// so only the two transponder-equipped entities are reported
	require.Len(t, detections, 2)

	assert.Equal(t, tracking.IFFFriendly, detections[0].IFFResponse)
	assert.InDelta(t, 0.95, detections[0].Confidence, 1e-9)
	assert.Equal(t, "4701", detections[0].Metadata["iff_code"])

	assert.Equal(t, tracking.IFFUnknownCode, detections[1].IFFResponse)
	assert.InDelta(t, 0.7, detections[1].Confidence, 1e-9)
	assert.Equal(t, "7600", detections[1].Metadata["iff_code"])

	for _, det := range detections {
		assert.Equal(t, "iff", det.SensorType)
		assert.True(t, det.Valid())
	}
}

func TestIFFRateLimiting(t *testing.T) {
	t.Parallel()

	iff := NewIFF("iff-1", testIFFConfig(), 42)
	entities := []*Entity{{
		ID:              "entity_a",
		Characteristics: CommercialAircraft(),
		InitialPosition: tracking.Position{X: 50000, Y: 0, Z: 10000},
		Trajectory:      TrajectoryHover,
		CreatedAt:       entityBase,
		IFFCode:         "4701",
		Friendly:        true,
	}}

	assert.NotEmpty(t, iff.Scan(entityBase, entities))
	assert.Empty(t, iff.Scan(entityBase.Add(200*time.Millisecond), entities),
		"two hertz interrogator needs half a second between scans")
	assert.NotEmpty(t, iff.Scan(entityBase.Add(600*time.Millisecond), entities))
}

func TestIFFRangeGate(t *testing.T) {
	t.Parallel()

	iff := NewIFF("iff-1", testIFFConfig(), 42)
	entities := []*Entity{{
		ID:              "entity_far",
		Characteristics: CommercialAircraft(),
		InitialPosition: tracking.Position{X: 250000, Y: 0, Z: 10000},
		Trajectory:      TrajectoryHover,
		CreatedAt:       entityBase,
		IFFCode:         "4701",
		Friendly:        true,
	}}

	assert.Empty(t, iff.Scan(entityBase, entities))
}

func TestIFFPositionTighterThanRadar(t *testing.T) {
	t.Parallel()

	// Same truth, same distance: the IFF fix carries less noise, which shows
	// up directly in its smaller noise scale bound
	iff := NewIFF("iff-1", testIFFConfig(), 42)
	truth := tracking.Position{X: 20000, Y: 0, Z: 2000}
	entities := []*Entity{{
		ID:              "entity_a",
		Characteristics: Helicopter(),
		InitialPosition: truth,
		Trajectory:      TrajectoryHover,
		CreatedAt:       entityBase,
		IFFCode:         "4701",
		Friendly:        true,
	}}

	detections := iff.Scan(entityBase, entities)
	require.Len(t, detections, 1)

	// Radar sigma at this range would be about 251 m; IFF runs at 0.3 of
	// that, so six sigma stays within ~453 m
	sigma := (50.0 + (20099.0/1000.0)*10.0) * 0.3
	assert.InDelta(t, truth.X, detections[0].Position.X, 6*sigma)
	assert.InDelta(t, truth.Y, detections[0].Position.Y, 6*sigma)
	assert.InDelta(t, truth.Z, detections[0].Position.Z, 3*sigma)
}
