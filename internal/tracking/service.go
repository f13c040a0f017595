package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/skyfence/airtrack/internal/config"
	"github.com/skyfence/airtrack/internal/physics"
	"github.com/skyfence/airtrack/pkg/logger"
)

// DetectionSource supplies detections at the start of a tracking cycle.
// Sources must return promptly; a source that needs time to produce data
// should buffer internally.
type DetectionSource interface {
	Collect(now time.Time) []Detection
}

// CycleSink receives the result of every completed tracking cycle, in cycle
// order, from the cycle goroutine. Sinks that do slow work should hand the
// result off internally rather than block the next cycle.
type CycleSink interface {
	OnCycle(result CycleResult)
}

// Service drives the tracking engine: it runs the cycle ticker, gathers
// detections from sources and the ingestion queue, feeds them through the
// tracker, enriches the resulting snapshots with magnetic courses, and fans
// the result out to the registered sinks.
type Service struct {
	cfg     *config.Config
	tracker *Tracker
	logger  *logger.Logger

	sources []DetectionSource
	sinks   []CycleSink

	// latest holds the last committed cycle result for API readers
	mu     sync.RWMutex
	latest CycleResult

	// pending holds detections submitted via the ingestion API until the
	// next cycle drains them
	pendingMu sync.Mutex
	pending   []Detection

	declination float64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates the tracking service
func NewService(cfg *config.Config, log *logger.Logger) *Service {
	classifier := NewClassifier(
		cfg.Classification.MinConfidence,
		cfg.Classification.DefaultRCS,
		cfg.Classification.DefaultManeuverability,
	)
	trackerCfg := TrackerConfig{
		AssociationGateM:   cfg.Tracking.AssociationGateM,
		MaxTrackAgeSecs:    cfg.Tracking.MaxTrackAgeSecs,
		MinTrackUpdates:    cfg.Tracking.MinTrackUpdates,
		MaxTracks:          cfg.Tracking.MaxTracks,
		ProcessNoise:       cfg.Tracking.ProcessNoise,
		InitialUncertainty: cfg.Tracking.InitialUncertainty,
		ConfidenceBlend:    cfg.Tracking.ConfidenceBlend,
	}

	return &Service{
		cfg:     cfg,
		tracker: NewTracker(trackerCfg, classifier, log),
		logger:  log.Named("tracking"),
		stopCh:  make(chan struct{}),
	}
}

// AddSource registers a detection source. Must be called before Start.
func (s *Service) AddSource(src DetectionSource) {
	s.sources = append(s.sources, src)
}

// AddSink registers a cycle sink. Must be called before Start.
func (s *Service) AddSink(sink CycleSink) {
	s.sinks = append(s.sinks, sink)
}

// Start begins the cycle loop. The first cycle runs one interval after Start
// returns.
func (s *Service) Start(ctx context.Context) error {
	// The station is fixed for the lifetime of the process, so the magnetic
	// declination is computed once up front
	s.declination = physics.CalculateMagneticVariation(
		s.cfg.Station.Latitude,
		s.cfg.Station.Longitude,
		s.cfg.Station.ElevationM,
		time.Now().UTC(),
	)

	interval := time.Duration(float64(time.Second) / s.cfg.Tracking.UpdateRateHz)
	s.logger.Info("Starting tracking service",
		logger.String("station", s.cfg.Station.Name),
		logger.Duration("cycle_interval", interval),
		logger.Float64("magnetic_declination", s.declination),
		logger.Int("max_tracks", s.cfg.Tracking.MaxTracks))

	s.wg.Add(1)
	go s.run(ctx, interval)

	return nil
}

// Stop halts the cycle loop and waits for the in-flight cycle to finish
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Tracking service stopped")
}

func (s *Service) run(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.RunCycle(now.UTC())
		}
	}
}

// RunCycle executes a single tracking cycle at the given instant. It is
// normally driven by the internal ticker but is exposed so hosts with their
// own scheduling can drive the engine directly.
func (s *Service) RunCycle(now time.Time) CycleResult {
	started := time.Now()

	detections := s.drainPending()
	for _, src := range s.sources {
		detections = append(detections, src.Collect(now)...)
	}
	if max := s.cfg.Sensors.MaxDetectionsPerCycle; max > 0 && len(detections) > max {
		s.logger.Warn("Detection batch exceeds per-cycle cap, truncating",
			logger.Int("received", len(detections)),
			logger.Int("cap", max))
		detections = detections[:max]
	}

	result := s.tracker.Update(now, detections)

	// Enrich snapshots with the magnetic course for display consumers
	for i := range result.Snapshots {
		mag := physics.TrueToMagnetic(result.Snapshots[i].Course, s.declination)
		result.Snapshots[i].CourseMagnetic = &mag
	}
	result.Stats.DurationMs = float64(time.Since(started).Microseconds()) / 1000.0

	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()

	for _, sink := range s.sinks {
		sink.OnCycle(result)
	}

	s.logger.Debug("Tracking cycle complete",
		logger.Int("detections_in", result.Stats.DetectionsIn),
		logger.Int("associated", result.Stats.DetectionsAssociated),
		logger.Int("tracks", result.Stats.TotalTracks),
		logger.Float64("duration_ms", result.Stats.DurationMs))

	return result
}

// SubmitDetections queues externally produced detections for the next cycle
// and returns how many were accepted
func (s *Service) SubmitDetections(detections []Detection) int {
	if len(detections) == 0 {
		return 0
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	accepted := len(detections)
	if max := s.cfg.Sensors.MaxDetectionsPerCycle; max > 0 {
		room := max - len(s.pending)
		if room <= 0 {
			return 0
		}
		if accepted > room {
			accepted = room
		}
	}
	s.pending = append(s.pending, detections[:accepted]...)
	return accepted
}

func (s *Service) drainPending() []Detection {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Tracks returns the snapshots from the last committed cycle
func (s *Service) Tracks() []TrackSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrackSnapshot, len(s.latest.Snapshots))
	copy(out, s.latest.Snapshots)
	return out
}

// TrackByID returns one track's snapshot from the last committed cycle
func (s *Service) TrackByID(id string) (TrackSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.latest.Snapshots {
		if snap.ID == id {
			return snap, true
		}
	}
	return TrackSnapshot{}, false
}

// LatestStats returns the statistics of the last committed cycle
func (s *Service) LatestStats() CycleStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest.Stats
}

// Declination returns the magnetic declination at the station, in degrees
func (s *Service) Declination() float64 {
	return s.declination
}
