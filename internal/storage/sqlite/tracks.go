package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/skyfence/airtrack/internal/tracking"
	"github.com/skyfence/airtrack/pkg/logger"
	_ "modernc.org/sqlite"
)

// TrackHistoryPoint is one archived per-cycle snapshot of a track
type TrackHistoryPoint struct {
	TrackID         string               `json:"track_id"`
	Status          tracking.TrackStatus `json:"status"`
	Position        tracking.Position    `json:"position"`
	Velocity        tracking.Velocity    `json:"velocity"`
	ObjectType      tracking.ObjectType  `json:"object_type"`
	ClassConfidence float64              `json:"class_confidence"`
	Confidence      float64              `json:"confidence"`
	RecordedAt      time.Time            `json:"recorded_at"`
}

// TrackStorage is a SQLite-based archive of track snapshots and lifecycle
// events. The tracks table always mirrors the last committed cycle; history
// and events are append-only.
type TrackStorage struct {
	db              *sql.DB
	logger          *logger.Logger
	maxHistoryInAPI int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTrackStorage creates a new SQLite-based track storage
func NewTrackStorage(dbPath string, maxHistoryInAPI int, log *logger.Logger) (*TrackStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	// Open the database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA cache_size=10000"); err != nil {
		return nil, fmt.Errorf("failed to set cache size: %w", err)
	}

	// Create tables if they don't exist
	if err := initTrackSchema(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &TrackStorage{
		db:              db,
		logger:          storageLogger,
		maxHistoryInAPI: maxHistoryInAPI,
		stopCh:          make(chan struct{}),
	}, nil
}

// Close stops the retention sweep and closes the database connection
func (s *TrackStorage) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initTrackSchema initializes the database schema
func initTrackSchema(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tracks (
			track_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			x REAL, y REAL, z REAL,
			vx REAL, vy REAL, vz REAL,
			position_uncertainty REAL,
			velocity_uncertainty REAL,
			object_type TEXT,
			class_confidence REAL,
			class_uncertainty REAL,
			probabilities TEXT,     -- JSON object, label -> probability
			reasoning TEXT,         -- JSON array of explanation lines
			confidence REAL,
			ground_speed REAL,
			course REAL,
			course_magnetic REAL,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			update_count INTEGER
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS track_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id TEXT NOT NULL,
			status TEXT NOT NULL,
			x REAL, y REAL, z REAL,
			vx REAL, vy REAL, vz REAL,
			object_type TEXT,
			class_confidence REAL,
			confidence REAL,
			recorded_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create track_history table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS track_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id TEXT NOT NULL,
			from_status TEXT,
			to_status TEXT NOT NULL,
			reason TEXT,
			timestamp TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create track_events table: %w", err)
	}

	// Create indexes for efficient querying
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_track_history_track_id ON track_history(track_id, id DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create index on track_history.track_id: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_track_history_recorded_at ON track_history(recorded_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index on track_history.recorded_at: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_track_events_timestamp ON track_events(timestamp)`)
	if err != nil {
		return fmt.Errorf("failed to create index on track_events.timestamp: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_tracks_status ON tracks(status)`)
	if err != nil {
		return fmt.Errorf("failed to create index on tracks.status: %w", err)
	}

	log.Info("Database schema initialized successfully")
	return nil
}

// OnCycle persists a completed tracking cycle. It satisfies the tracking
// service's sink contract; persistence failures are logged, never propagated
// into the cycle.
func (s *TrackStorage) OnCycle(result tracking.CycleResult) {
	if err := s.SaveCycle(result); err != nil {
		s.logger.Error("Failed to persist tracking cycle", logger.Error(err))
	}
}

// SaveCycle writes one cycle's snapshots, history rows and events in a single
// transaction. The tracks table is replaced wholesale so it always reflects
// exactly the last committed cycle.
func (s *TrackStorage) SaveCycle(result tracking.CycleResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tracks`); err != nil {
		return fmt.Errorf("failed to clear tracks table: %w", err)
	}

	trackStmt, err := tx.Prepare(`
		INSERT INTO tracks (
			track_id, status, x, y, z, vx, vy, vz,
			position_uncertainty, velocity_uncertainty,
			object_type, class_confidence, class_uncertainty, probabilities, reasoning,
			confidence, ground_speed, course, course_magnetic,
			created_at, updated_at, update_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare track insert statement: %w", err)
	}
	defer trackStmt.Close()

	historyStmt, err := tx.Prepare(`
		INSERT INTO track_history (
			track_id, status, x, y, z, vx, vy, vz,
			object_type, class_confidence, confidence, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert statement: %w", err)
	}
	defer historyStmt.Close()

	for _, snap := range result.Snapshots {
		probabilities, err := json.Marshal(snap.Classification.Probabilities)
		if err != nil {
			return fmt.Errorf("failed to marshal probabilities for %s: %w", snap.ID, err)
		}
		reasoning, err := json.Marshal(snap.Classification.Reasoning)
		if err != nil {
			return fmt.Errorf("failed to marshal reasoning for %s: %w", snap.ID, err)
		}

		var courseMagnetic sql.NullFloat64
		if snap.CourseMagnetic != nil {
			courseMagnetic = sql.NullFloat64{Float64: *snap.CourseMagnetic, Valid: true}
		}

		if _, err := trackStmt.Exec(
			snap.ID, string(snap.Status),
			snap.Position.X, snap.Position.Y, snap.Position.Z,
			snap.Velocity.VX, snap.Velocity.VY, snap.Velocity.VZ,
			snap.PositionUncertainty, snap.VelocityUncertainty,
			string(snap.Classification.ObjectType),
			snap.Classification.Confidence,
			snap.Classification.Uncertainty,
			string(probabilities), string(reasoning),
			snap.Confidence, snap.GroundSpeed, snap.Course, courseMagnetic,
			snap.CreatedAt.Format(time.RFC3339),
			snap.UpdatedAt.Format(time.RFC3339),
			snap.UpdateCount,
		); err != nil {
			return fmt.Errorf("failed to insert track %s: %w", snap.ID, err)
		}

		if _, err := historyStmt.Exec(
			snap.ID, string(snap.Status),
			snap.Position.X, snap.Position.Y, snap.Position.Z,
			snap.Velocity.VX, snap.Velocity.VY, snap.Velocity.VZ,
			string(snap.Classification.ObjectType),
			snap.Classification.Confidence,
			snap.Confidence,
			result.Stats.Timestamp.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("failed to insert history for %s: %w", snap.ID, err)
		}
	}

	eventStmt, err := tx.Prepare(`
		INSERT INTO track_events (track_id, from_status, to_status, reason, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert statement: %w", err)
	}
	defer eventStmt.Close()

	for _, ev := range result.Events {
		if _, err := eventStmt.Exec(
			ev.TrackID, string(ev.From), string(ev.To), ev.Reason,
			ev.Timestamp.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("failed to insert event for %s: %w", ev.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle: %w", err)
	}

	s.logger.Debug("Persisted tracking cycle",
		logger.Int("tracks", len(result.Snapshots)),
		logger.Int("events", len(result.Events)))

	return nil
}

// GetTrack returns the stored snapshot of one track from the last persisted
// cycle, or nil when the track is not present
func (s *TrackStorage) GetTrack(id string) (*tracking.TrackSnapshot, error) {
	row := s.db.QueryRow(`
		SELECT track_id, status, x, y, z, vx, vy, vz,
			position_uncertainty, velocity_uncertainty,
			object_type, class_confidence, class_uncertainty, probabilities, reasoning,
			confidence, ground_speed, course, course_magnetic,
			created_at, updated_at, update_count
		FROM tracks
		WHERE track_id = ?
	`, id)

	snap, err := scanTrackRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query track %s: %w", id, err)
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrackRow(row rowScanner) (*tracking.TrackSnapshot, error) {
	var snap tracking.TrackSnapshot
	var status, objectType, probabilitiesJSON, reasoningJSON string
	var courseMagnetic sql.NullFloat64
	var createdAt, updatedAt string

	if err := row.Scan(
		&snap.ID, &status,
		&snap.Position.X, &snap.Position.Y, &snap.Position.Z,
		&snap.Velocity.VX, &snap.Velocity.VY, &snap.Velocity.VZ,
		&snap.PositionUncertainty, &snap.VelocityUncertainty,
		&objectType, &snap.Classification.Confidence, &snap.Classification.Uncertainty,
		&probabilitiesJSON, &reasoningJSON,
		&snap.Confidence, &snap.GroundSpeed, &snap.Course, &courseMagnetic,
		&createdAt, &updatedAt, &snap.UpdateCount,
	); err != nil {
		return nil, err
	}

	snap.Status = tracking.TrackStatus(status)
	snap.Classification.ObjectType = tracking.ObjectType(objectType)
	if err := json.Unmarshal([]byte(probabilitiesJSON), &snap.Classification.Probabilities); err != nil {
		return nil, fmt.Errorf("failed to parse probabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(reasoningJSON), &snap.Classification.Reasoning); err != nil {
		return nil, fmt.Errorf("failed to parse reasoning: %w", err)
	}
	if courseMagnetic.Valid {
		snap.CourseMagnetic = &courseMagnetic.Float64
	}

	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	snap.CreatedAt = created

	updated, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
	}
	snap.UpdatedAt = updated

	return &snap, nil
}

// GetHistory returns a track's archived snapshots in chronological order,
// bounded by the configured API limit
func (s *TrackStorage) GetHistory(trackID string) ([]TrackHistoryPoint, error) {
	rows, err := s.db.Query(`
		SELECT track_id, status, x, y, z, vx, vy, vz,
			object_type, class_confidence, confidence, recorded_at
		FROM track_history
		WHERE track_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, trackID, s.maxHistoryInAPI)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", trackID, err)
	}
	defer rows.Close()

	points := make([]TrackHistoryPoint, 0)
	for rows.Next() {
		var p TrackHistoryPoint
		var status, objectType, recordedAt string

		if err := rows.Scan(
			&p.TrackID, &status,
			&p.Position.X, &p.Position.Y, &p.Position.Z,
			&p.Velocity.VX, &p.Velocity.VY, &p.Velocity.VZ,
			&objectType, &p.ClassConfidence, &p.Confidence, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		p.Status = tracking.TrackStatus(status)
		p.ObjectType = tracking.ObjectType(objectType)
		t, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at timestamp: %w", err)
		}
		p.RecordedAt = t

		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	// The query walks newest-first to apply the limit; flip to chronological
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// GetRecentEvents returns the most recent lifecycle events, newest first
func (s *TrackStorage) GetRecentEvents(limit int) ([]tracking.TrackEvent, error) {
	rows, err := s.db.Query(`
		SELECT track_id, from_status, to_status, reason, timestamp
		FROM track_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]tracking.TrackEvent, 0)
	for rows.Next() {
		var ev tracking.TrackEvent
		var from, to, timestamp string

		if err := rows.Scan(&ev.TrackID, &from, &to, &ev.Reason, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		ev.From = tracking.TrackStatus(from)
		ev.To = tracking.TrackStatus(to)
		t, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event timestamp: %w", err)
		}
		ev.Timestamp = t

		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}

// CountsByStatus returns how many persisted tracks are in each lifecycle state
func (s *TrackStorage) CountsByStatus() (map[string]int, error) {
	return s.countsBy("status")
}

// CountsByObjectType returns how many persisted tracks carry each label
func (s *TrackStorage) CountsByObjectType() (map[string]int, error) {
	return s.countsBy("object_type")
}

func (s *TrackStorage) countsBy(column string) (map[string]int, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s, COUNT(*) FROM tracks GROUP BY %s`, column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to query counts by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating count rows: %w", err)
	}

	return counts, nil
}

// Prune removes history rows and events recorded before the cutoff. Returns
// how many rows were deleted.
func (s *TrackStorage) Prune(cutoff time.Time) (int64, error) {
	cutoffStr := cutoff.Format(time.RFC3339)

	historyResult, err := s.db.Exec(`DELETE FROM track_history WHERE recorded_at < ?`, cutoffStr)
	if err != nil {
		return 0, fmt.Errorf("failed to prune track history: %w", err)
	}
	historyRows, _ := historyResult.RowsAffected()

	eventsResult, err := s.db.Exec(`DELETE FROM track_events WHERE timestamp < ?`, cutoffStr)
	if err != nil {
		return historyRows, fmt.Errorf("failed to prune track events: %w", err)
	}
	eventRows, _ := eventsResult.RowsAffected()

	return historyRows + eventRows, nil
}

// StartRetentionSweep begins periodically deleting history older than the
// retention horizon. A non-positive horizon disables the sweep.
func (s *TrackStorage) StartRetentionSweep(retentionHours int) {
	if retentionHours <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-time.Duration(retentionHours) * time.Hour)
				deleted, err := s.Prune(cutoff)
				if err != nil {
					s.logger.Error("Retention sweep failed", logger.Error(err))
					continue
				}
				if deleted > 0 {
					s.logger.Info("Retention sweep removed old rows",
						logger.Int64("rows", deleted),
						logger.Time("cutoff", cutoff))
				}
			}
		}
	}()
}
