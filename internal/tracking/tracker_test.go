package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfence/airtrack/pkg/logger"
)

func newTestTracker(cfg TrackerConfig) *Tracker {
	return NewTracker(cfg, NewClassifier(0, 0, 0), logger.NewNop())
}

func testDetection(ts time.Time, pos Position, vel *Velocity, confidence float64) Detection {
	return Detection{
		ID:         "det",
		SensorID:   "radar-1",
		SensorType: "radar",
		Timestamp:  ts,
		Position:   pos,
		Velocity:   vel,
		Confidence: confidence,
	}
}

var testBase = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Track creation
// ---------------------------------------------------------------------------

func TestTrackerCreatesTrackFromUnmatchedDetection(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(TrackerConfig{})
	result := tracker.Update(testBase, []Detection{
		testDetection(testBase, Position{X: 1000, Y: 2000, Z: 500}, nil, 0.9),
	})

	require.Len(t, result.Snapshots, 1)
	snap := result.Snapshots[0]
	assert.Equal(t, StatusInitializing, snap.Status)
	assert.Equal(t, 1, snap.UpdateCount)
	assert.InDelta(t, 0.9, snap.Confidence, 1e-12)
	assert.InDelta(t, 1000.0, snap.Position.X, 1e-9)
	assert.NotEmpty(t, snap.Classification.Reasoning)

	require.Len(t, result.Events, 1)
	assert.Equal(t, TrackStatus(""), result.Events[0].From)
	assert.Equal(t, StatusInitializing, result.Events[0].To)
	assert.Equal(t, "created", result.Events[0].Reason)
	assert.Equal(t, 1, result.Stats.TracksCreated)
}

func TestTrackerGateSeparation(t *testing.T) {
	t.Parallel()

	// Two detections 6000 m apart with a 5000 m gate and no existing
	// tracks: both must spawn their own track, never merge.
	tracker := newTestTracker(TrackerConfig{AssociationGateM: 5000})
	result := tracker.Update(testBase, []Detection{
		testDetection(testBase, Position{}, nil, 0.9),
		testDetection(testBase, Position{X: 6000}, nil, 0.9),
	})

	assert.Len(t, result.Snapshots, 2)
	assert.Equal(t, 2, result.Stats.TracksCreated)

	// Next cycle: one detection near each track keeps them apart
	next := tracker.Update(testBase.Add(time.Second), []Detection{
		testDetection(testBase.Add(time.Second), Position{X: 50}, nil, 0.9),
		testDetection(testBase.Add(time.Second), Position{X: 5950}, nil, 0.9),
	})
	assert.Len(t, next.Snapshots, 2)
	assert.Equal(t, 2, next.Stats.DetectionsAssociated)
	assert.Equal(t, 0, next.Stats.TracksCreated)
}

// ---------------------------------------------------------------------------
// Promotion
// ---------------------------------------------------------------------------

func TestTrackerPromotesAfterMinimumUpdates(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(TrackerConfig{MinTrackUpdates: 3})

	r1 := tracker.Update(testBase, []Detection{
		testDetection(testBase, Position{}, nil, 0.9),
	})
	require.Len(t, r1.Snapshots, 1)
	assert.Equal(t, StatusInitializing, r1.Snapshots[0].Status)

	r2 := tracker.Update(testBase.Add(time.Second), []Detection{
		testDetection(testBase.Add(time.Second), Position{X: 100}, nil, 0.9),
	})
	assert.Equal(t, StatusInitializing, r2.Snapshots[0].Status, "never active before the minimum")

	r3 := tracker.Update(testBase.Add(2*time.Second), []Detection{
		testDetection(testBase.Add(2*time.Second), Position{X: 200}, nil, 0.9),
	})
	assert.Equal(t, StatusActive, r3.Snapshots[0].Status)
	assert.Equal(t, 3, r3.Snapshots[0].UpdateCount)

	var promoted *TrackEvent
	for i := range r3.Events {
		if r3.Events[i].To == StatusActive {
			promoted = &r3.Events[i]
		}
	}
	require.NotNil(t, promoted)
	assert.Equal(t, StatusInitializing, promoted.From)
	assert.Equal(t, "confirmed", promoted.Reason)
}

// ---------------------------------------------------------------------------
// Coasting and termination
// ---------------------------------------------------------------------------

func TestTrackerCoastsAndTerminatesOnAge(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(TrackerConfig{MaxTrackAgeSecs: 60})
	tracker.Update(testBase, []Detection{
		testDetection(testBase, Position{X: 1000}, &Velocity{VX: 10}, 0.9),
	})

	// No detections: the track coasts on prediction alone
	r2 := tracker.Update(testBase.Add(30*time.Second), nil)
	require.Len(t, r2.Snapshots, 1)
	assert.Equal(t, StatusCoasting, r2.Snapshots[0].Status)
	assert.InDelta(t, 1300.0, r2.Snapshots[0].Position.X, 1e-6, "coasting advances the estimate")

	// Exactly at the age threshold the track survives
	r3 := tracker.Update(testBase.Add(60*time.Second), nil)
	require.Len(t, r3.Snapshots, 1)
	assert.Equal(t, StatusCoasting, r3.Snapshots[0].Status)

	// Past the threshold it terminates and leaves the table in the same cycle
	r4 := tracker.Update(testBase.Add(61*time.Second), nil)
	assert.Empty(t, r4.Snapshots)
	assert.Equal(t, 1, r4.Stats.TracksTerminated)

	var aged *TrackEvent
	for i := range r4.Events {
		if r4.Events[i].To == StatusTerminated {
			aged = &r4.Events[i]
		}
	}
	require.NotNil(t, aged)
	assert.Equal(t, "aged out", aged.Reason)

	// Terminated tracks are never visible in any snapshot
	for _, r := range []CycleResult{r2, r3, r4} {
		for _, snap := range r.Snapshots {
			assert.NotEqual(t, StatusTerminated, snap.Status)
		}
	}
}

func TestTrackerCounterSurvivesCoasting(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(TrackerConfig{MinTrackUpdates: 3})

	tracker.Update(testBase, []Detection{
		testDetection(testBase, Position{}, nil, 0.9),
	})

	r2 := tracker.Update(testBase.Add(time.Second), nil)
	assert.Equal(t, StatusCoasting, r2.Snapshots[0].Status)

	// Reacquired with only two total updates: back to INITIALIZING
	r3 := tracker.Update(testBase.Add(2*time.Second), []Detection{
		testDetection(testBase.Add(2*time.Second), Position{X: 10}, nil, 0.9),
	})
	assert.Equal(t, StatusInitializing, r3.Snapshots[0].Status)
	assert.Equal(t, 2, r3.Snapshots[0].UpdateCount)

	// Third update promotes despite the gap
	r4 := tracker.Update(testBase.Add(3*time.Second), []Detection{
		testDetection(testBase.Add(3*time.Second), Position{X: 20}, nil, 0.9),
	})
	assert.Equal(t, StatusActive, r4.Snapshots[0].Status)
}

// ---------------------------------------------------------------------------
// Capacity
// ---------------------------------------------------------------------------

func TestTrackerRefusesNewTracksAtCapacity(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(TrackerConfig{MaxTracks: 3})

	first := []Detection{
		testDetection(testBase, Position{}, nil, 0.9),
		testDetection(testBase, Position{X: 20000}, nil, 0.9),
		testDetection(testBase, Position{X: 40000}, nil, 0.9),
	}
	r1 := tracker.Update(testBase, first)
	require.Len(t, r1.Snapshots, 3)

	// All three tracks still receive updates, so nothing is coasting and
	// nothing may be evicted; the extra detection is dropped.
	second := []Detection{
		testDetection(testBase.Add(time.Second), Position{}, nil, 0.9),
		testDetection(testBase.Add(time.Second), Position{X: 20000}, nil, 0.9),
		testDetection(testBase.Add(time.Second), Position{X: 40000}, nil, 0.9),
		testDetection(testBase.Add(time.Second), Position{X: 90000}, nil, 0.9),
	}
	r2 := tracker.Update(testBase.Add(time.Second), second)

	assert.Equal(t, 3, r2.Stats.TotalTracks)
	assert.Equal(t, 1, r2.Stats.DetectionsDropped)
	assert.Equal(t, 0, r2.Stats.TracksCreated)
	assert.Equal(t, 0, r2.Stats.TracksEvicted)
}

func TestTrackerHoldsOneThousandActiveTracks(t *testing.T) {
	t.Parallel()

	// Default capacity. A 40x25 grid with 10 km spacing keeps every
	// detection well clear of its neighbours' association gates.
	tracker := newTestTracker(TrackerConfig{})

	grid := make([]Detection, 0, 1000)
	for i := 0; i < 1000; i++ {
		pos := Position{X: float64(i%40) * 10000, Y: float64(i/40) * 10000, Z: 5000}
		grid = append(grid, testDetection(testBase, pos, nil, 0.9))
	}

	batchAt := func(now time.Time) []Detection {
		batch := make([]Detection, len(grid))
		copy(batch, grid)
		for i := range batch {
			batch[i].Timestamp = now
		}
		return batch
	}

	var result CycleResult
	for cycle := 0; cycle < 3; cycle++ {
		now := testBase.Add(time.Duration(cycle) * time.Second)
		result = tracker.Update(now, batchAt(now))
	}

	require.Equal(t, 1000, result.Stats.TotalTracks)
	for _, snap := range result.Snapshots {
		require.Equal(t, StatusActive, snap.Status)
	}

	// Every track in the full table is still being updated, so the one
	// unmatched detection has nothing to evict and must be dropped.
	now := testBase.Add(3 * time.Second)
	batch := append(batchAt(now), testDetection(now, Position{X: 900000, Y: 500000, Z: 5000}, nil, 0.9))
	r4 := tracker.Update(now, batch)

	assert.Equal(t, 1000, r4.Stats.TotalTracks)
	assert.Equal(t, 1, r4.Stats.DetectionsDropped)
	assert.Equal(t, 0, r4.Stats.TracksCreated)
	assert.Equal(t, 0, r4.Stats.TracksEvicted)
}

func TestTrackerEvictsOldestCoastingAtCapacity(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(TrackerConfig{MaxTracks: 2})

	r1 := tracker.Update(testBase, []Detection{
		testDetection(testBase, Position{}, nil, 0.9),
		testDetection(testBase, Position{X: 30000}, nil, 0.9),
	})
	require.Len(t, r1.Snapshots, 2)

	var coastingID string
	for _, snap := range r1.Snapshots {
		if snap.Position.X > 1000 {
			coastingID = snap.ID
		}
	}
	require.NotEmpty(t, coastingID)

	// Second track misses this cycle and starts coasting
	tracker.Update(testBase.Add(time.Second), []Detection{
		testDetection(testBase.Add(time.Second), Position{}, nil, 0.9),
	})

	// At capacity with a new detection: the coasting track is evicted, the
	// track that is still updating is untouched.
	r3 := tracker.Update(testBase.Add(2*time.Second), []Detection{
		testDetection(testBase.Add(2*time.Second), Position{}, nil, 0.9),
		testDetection(testBase.Add(2*time.Second), Position{X: 60000}, nil, 0.9),
	})

	assert.Equal(t, 2, r3.Stats.TotalTracks)
	assert.Equal(t, 1, r3.Stats.TracksEvicted)
	assert.Equal(t, 1, r3.Stats.TracksCreated)

	for _, snap := range r3.Snapshots {
		assert.NotEqual(t, coastingID, snap.ID, "evicted track must be gone")
	}

	var evicted *TrackEvent
	for i := range r3.Events {
		if r3.Events[i].Reason == "evicted" {
			evicted = &r3.Events[i]
		}
	}
	require.NotNil(t, evicted)
	assert.Equal(t, coastingID, evicted.TrackID)
	assert.Equal(t, StatusTerminated, evicted.To)
}

// ---------------------------------------------------------------------------
// Confidence and validation
// ---------------------------------------------------------------------------

func TestTrackerBlendsConfidence(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(TrackerConfig{ConfidenceBlend: 0.5})

	tracker.Update(testBase, []Detection{
		testDetection(testBase, Position{}, nil, 0.8),
	})
	r2 := tracker.Update(testBase.Add(time.Second), []Detection{
		testDetection(testBase.Add(time.Second), Position{X: 10}, nil, 0.4),
	})

	require.Len(t, r2.Snapshots, 1)
	assert.InDelta(t, 0.6, r2.Snapshots[0].Confidence, 1e-12)
}

func TestTrackerRejectsMalformedDetections(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(TrackerConfig{})

	bad1 := testDetection(testBase, Position{X: math.NaN()}, nil, 0.9)
	bad2 := testDetection(testBase, Position{}, nil, 1.5)
	bad3 := testDetection(testBase, Position{}, nil, 0.9)
	bad3.Uncertainty = -0.1
	good := testDetection(testBase, Position{X: 500}, nil, 0.9)

	result := tracker.Update(testBase, []Detection{bad1, bad2, bad3, good})

	assert.Equal(t, 4, result.Stats.DetectionsIn)
	assert.Equal(t, 3, result.Stats.DetectionsRejected)
	assert.Len(t, result.Snapshots, 1)
	assert.InDelta(t, 500.0, result.Snapshots[0].Position.X, 1e-9)
}

// ---------------------------------------------------------------------------
// End-to-end convergence
// ---------------------------------------------------------------------------

func TestTrackerConvergenceScenario(t *testing.T) {
	t.Parallel()

	run := func() (TrackSnapshot, []TrackStatus) {
		tracker := newTestTracker(TrackerConfig{})
		statuses := make([]TrackStatus, 0, 5)

		var last TrackSnapshot
		for k := 0; k < 5; k++ {
			now := testBase.Add(time.Duration(k) * time.Second)
			pos := Position{
				X: 50000 - 100*float64(k),
				Y: 60000 - 80*float64(k),
				Z: 10000,
			}
			result := tracker.Update(now, []Detection{
				testDetection(now, pos, &Velocity{VX: -100, VY: -80, VZ: 0}, 0.8),
			})
			require.Len(t, result.Snapshots, 1)
			last = result.Snapshots[0]
			statuses = append(statuses, last.Status)
		}
		return last, statuses
	}

	final, statuses := run()

	// Active by the third cycle, never earlier
	assert.Equal(t, StatusInitializing, statuses[0])
	assert.Equal(t, StatusInitializing, statuses[1])
	assert.Equal(t, StatusActive, statuses[2])

	// Velocity converges to the true value
	assert.InDelta(t, -100.0, final.Velocity.VX, 1.0)
	assert.InDelta(t, -80.0, final.Velocity.VY, 1.0)
	assert.InDelta(t, 0.0, final.Velocity.VZ, 1.0)

	// Classification is deterministic across identical runs
	again, _ := run()
	assert.Equal(t, final.Classification, again.Classification)
	assert.Equal(t, final.UpdateCount, again.UpdateCount)
}
