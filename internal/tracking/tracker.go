package tracking

import (
	"encoding/hex"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/skyfence/airtrack/internal/physics"
	"github.com/skyfence/airtrack/pkg/logger"
)

// TrackerConfig is the immutable engine configuration, fixed at construction.
// Zero values fall back to the conventional defaults so a zero TrackerConfig
// is usable.
type TrackerConfig struct {
	AssociationGateM   float64 // Maximum detection-to-track distance for association, meters
	MaxTrackAgeSecs    float64 // Seconds without an update before termination
	MinTrackUpdates    int     // Matched updates required for promotion to ACTIVE
	MaxTracks          int     // Track table capacity
	ProcessNoise       float64 // Kalman process noise intensity
	InitialUncertainty float64 // Initial covariance diagonal for new tracks
	ConfidenceBlend    float64 // Weight of the prior confidence when blending in a detection
}

func (c *TrackerConfig) applyDefaults() {
	if c.AssociationGateM <= 0 {
		c.AssociationGateM = 5000.0
	}
	if c.MaxTrackAgeSecs <= 0 {
		c.MaxTrackAgeSecs = 60.0
	}
	if c.MinTrackUpdates <= 0 {
		c.MinTrackUpdates = 3
	}
	if c.MaxTracks <= 0 {
		c.MaxTracks = 1000
	}
	if c.ConfidenceBlend <= 0 || c.ConfidenceBlend > 1 {
		c.ConfidenceBlend = 0.5
	}
}

// Tracker owns the track table and orchestrates one tracking cycle: validate,
// associate, update matched tracks, create tracks from unmatched detections,
// coast or terminate unmatched tracks, and sweep terminated entries. A cycle
// is synchronous; the table observed after Update returns reflects the full
// effect of that cycle's detections and nothing in between.
type Tracker struct {
	cfg        TrackerConfig
	filter     *KalmanFilter
	classifier *Classifier
	tracks     map[string]*Track
	logger     *logger.Logger
}

// NewTracker creates a tracker with the given configuration and classifier
func NewTracker(cfg TrackerConfig, classifier *Classifier, log *logger.Logger) *Tracker {
	cfg.applyDefaults()
	if classifier == nil {
		classifier = NewClassifier(0, 0, 0)
	}
	return &Tracker{
		cfg:        cfg,
		filter:     NewKalmanFilter(cfg.ProcessNoise, 0, cfg.InitialUncertainty),
		classifier: classifier,
		tracks:     make(map[string]*Track),
		logger:     log.Named("tracker"),
	}
}

// Count returns the number of tracks currently in the table
func (t *Tracker) Count() int {
	return len(t.tracks)
}

// Update runs one tracking cycle over the given detections and returns the
// resulting consistent snapshot of the track table, the lifecycle events the
// cycle produced, and its statistics.
func (t *Tracker) Update(now time.Time, detections []Detection) CycleResult {
	stats := CycleStats{Timestamp: now, DetectionsIn: len(detections)}
	events := make([]TrackEvent, 0)

	// Drop malformed detections before association. Rejection is per
	// detection and never aborts the cycle.
	valid := make([]Detection, 0, len(detections))
	for i := range detections {
		if !detections[i].Valid() {
			stats.DetectionsRejected++
			t.logger.Debug("Rejected malformed detection",
				logger.String("detection_id", detections[i].ID),
				logger.String("sensor_id", detections[i].SensorID))
			continue
		}
		valid = append(valid, detections[i])
	}

	trackList := make([]*Track, 0, len(t.tracks))
	for _, trk := range t.tracks {
		trackList = append(trackList, trk)
	}
	matched, unmatchedDets := associate(trackList, valid, t.cfg.AssociationGateM)
	stats.DetectionsAssociated = len(matched)

	// Walk tracks in ascending identifier order so event ordering and any
	// conflict resolution stay reproducible run to run.
	orderedIDs := make([]string, 0, len(t.tracks))
	for id := range t.tracks {
		orderedIDs = append(orderedIDs, id)
	}
	sort.Strings(orderedIDs)

	// Matched tracks: predict, correct, reclassify, then re-evaluate status
	for _, id := range orderedIDs {
		detIdx, ok := matched[id]
		if !ok {
			continue
		}
		trk := t.tracks[id]
		det := valid[detIdx]

		dt := det.Timestamp.Sub(trk.stateTime).Seconds()
		if dt <= 0 {
			dt = 1.0
		}
		predicted := t.filter.Predict(trk.State, dt)
		trk.State = t.filter.Update(predicted, det.Position, det.Velocity, det.Uncertainty*100.0)
		trk.stateTime = det.Timestamp

		maneuverability := t.classifier.DefaultManeuverability()
		current := trk.State.Velocity()
		if trk.hasPrev {
			maneuverability = ManeuverabilityScore(trk.prevVelocity, current)
		}
		trk.prevVelocity = current
		trk.hasPrev = true

		trk.Classification = t.classifier.Classify(t.featuresFor(trk, det, maneuverability))

		trk.UpdateCount++
		trk.UpdatedAt = det.Timestamp
		trk.Confidence = t.cfg.ConfidenceBlend*trk.Confidence + (1-t.cfg.ConfidenceBlend)*det.Confidence

		if trk.UpdateCount >= t.cfg.MinTrackUpdates {
			if trk.Status != StatusActive {
				reason := "confirmed"
				if trk.Status == StatusCoasting {
					reason = "reacquired"
				}
				events = append(events, t.transition(trk, StatusActive, reason, now))
			}
		} else if trk.Status == StatusCoasting {
			events = append(events, t.transition(trk, StatusInitializing, "reacquired", now))
		}
	}

	// Unmatched detections become new tracks while the table has room. At
	// capacity the oldest coasting track is evicted to make room; if every
	// track is still receiving updates the detection is dropped instead.
	// An ACTIVE track is never evicted to admit a new one.
	for _, detIdx := range unmatchedDets {
		det := valid[detIdx]
		if len(t.tracks) >= t.cfg.MaxTracks {
			victim := t.oldestCoasting()
			if victim == nil {
				stats.DetectionsDropped++
				t.logger.Warn("Track table full, dropping detection",
					logger.String("detection_id", det.ID),
					logger.Int("max_tracks", t.cfg.MaxTracks))
				continue
			}
			events = append(events, t.transition(victim, StatusTerminated, "evicted", now))
			delete(t.tracks, victim.ID)
			stats.TracksEvicted++
			t.logger.Debug("Evicted coasting track to admit a new one",
				logger.String("track_id", victim.ID))
		}

		trk := t.newTrack(det, now)
		t.tracks[trk.ID] = trk
		stats.TracksCreated++
		events = append(events, TrackEvent{
			TrackID:   trk.ID,
			To:        StatusInitializing,
			Timestamp: now,
			Reason:    "created",
		})
		t.logger.Debug("Created track",
			logger.String("track_id", trk.ID),
			logger.String("sensor_id", det.SensorID))
	}

	// Tracks that received no match this cycle: predict only, then coast
	// or terminate on age.
	terminated := make([]string, 0)
	for _, id := range orderedIDs {
		if _, ok := matched[id]; ok {
			continue
		}
		trk, ok := t.tracks[id]
		if !ok {
			// Evicted above
			continue
		}

		age := now.Sub(trk.UpdatedAt).Seconds()
		if age > t.cfg.MaxTrackAgeSecs {
			events = append(events, t.transition(trk, StatusTerminated, "aged out", now))
			terminated = append(terminated, id)
			continue
		}

		if dt := now.Sub(trk.stateTime).Seconds(); dt > 0 {
			trk.State = t.filter.Predict(trk.State, dt)
			trk.stateTime = now
		}
		if trk.Status != StatusCoasting {
			events = append(events, t.transition(trk, StatusCoasting, "no detection", now))
		}
	}

	// Sweep: terminated tracks leave the table in the same cycle and their
	// identifiers are never reassigned
	for _, id := range terminated {
		delete(t.tracks, id)
		stats.TracksTerminated++
		t.logger.Debug("Terminated track", logger.String("track_id", id))
	}

	snapshots := t.snapshotAll()
	for _, snap := range snapshots {
		switch snap.Status {
		case StatusInitializing:
			stats.InitializingTracks++
		case StatusActive:
			stats.ActiveTracks++
		case StatusCoasting:
			stats.CoastingTracks++
		}
	}
	stats.TotalTracks = len(snapshots)

	return CycleResult{Snapshots: snapshots, Events: events, Stats: stats}
}

// featuresFor builds the classifier inputs from the track's refreshed state
// estimate and the metadata of the detection that produced it. Missing
// metadata degrades to the neutral value for that feature.
func (t *Tracker) featuresFor(trk *Track, det Detection, maneuverability float64) Features {
	pos := trk.State.Position()
	vel := trk.State.Velocity()

	rcs := t.classifier.DefaultRCS()
	if det.RCS != nil {
		rcs = *det.RCS
	}

	return Features{
		SpeedMPS:        physics.TotalSpeed(vel.VX, vel.VY, vel.VZ),
		AltitudeM:       pos.Z,
		RCS:             rcs,
		Maneuverability: maneuverability,
		SizeClass:       det.SizeClass,
	}
}

func (t *Tracker) newTrack(det Detection, now time.Time) *Track {
	trk := &Track{
		ID:          t.nextID(),
		Status:      StatusInitializing,
		State:       t.filter.Initialize(det.Position, det.Velocity),
		Confidence:  det.Confidence,
		CreatedAt:   now,
		UpdatedAt:   det.Timestamp,
		UpdateCount: 1,
		stateTime:   det.Timestamp,
	}
	trk.Classification = t.classifier.Classify(t.featuresFor(trk, det, t.classifier.DefaultManeuverability()))
	return trk
}

// nextID generates a short unique track identifier
func (t *Tracker) nextID() string {
	for {
		u := uuid.New()
		id := "track_" + hex.EncodeToString(u[:])[:8]
		if _, exists := t.tracks[id]; !exists {
			return id
		}
	}
}

func (t *Tracker) transition(trk *Track, to TrackStatus, reason string, at time.Time) TrackEvent {
	ev := TrackEvent{
		TrackID:   trk.ID,
		From:      trk.Status,
		To:        to,
		Timestamp: at,
		Reason:    reason,
	}
	trk.Status = to
	return ev
}

// oldestCoasting returns the coasting track with the earliest last-update
// time, or nil when no track is coasting. Ties resolve to the smallest
// identifier.
func (t *Tracker) oldestCoasting() *Track {
	var victim *Track
	for _, trk := range t.tracks {
		if trk.Status != StatusCoasting {
			continue
		}
		if victim == nil ||
			trk.UpdatedAt.Before(victim.UpdatedAt) ||
			(trk.UpdatedAt.Equal(victim.UpdatedAt) && trk.ID < victim.ID) {
			victim = trk
		}
	}
	return victim
}

// snapshotAll copies the externally visible state of every track, ordered by
// ascending identifier
func (t *Tracker) snapshotAll() []TrackSnapshot {
	ids := make([]string, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snapshots := make([]TrackSnapshot, 0, len(ids))
	for _, id := range ids {
		snapshots = append(snapshots, snapshotTrack(t.tracks[id]))
	}
	return snapshots
}

func snapshotTrack(trk *Track) TrackSnapshot {
	pos := trk.State.Position()
	vel := trk.State.Velocity()
	return TrackSnapshot{
		ID:                  trk.ID,
		Status:              trk.Status,
		Position:            pos,
		Velocity:            vel,
		PositionUncertainty: trk.State.PositionUncertainty(),
		VelocityUncertainty: trk.State.VelocityUncertainty(),
		Classification:      trk.Classification,
		Confidence:          trk.Confidence,
		GroundSpeed:         physics.GroundSpeed(vel.VX, vel.VY),
		Course:              physics.Course(vel.VX, vel.VY),
		CreatedAt:           trk.CreatedAt,
		UpdatedAt:           trk.UpdatedAt,
		UpdateCount:         trk.UpdateCount,
	}
}
