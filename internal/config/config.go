package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server         ServerConfig         `toml:"server"`         // HTTP server settings
	Station        StationConfig        `toml:"station"`        // Physical location of the tracking station
	Tracking       TrackingConfig       `toml:"tracking"`       // Track lifecycle and state estimation settings
	Classification ClassificationConfig `toml:"classification"` // Object classification settings
	Sensors        SensorsConfig        `toml:"sensors"`        // Simulated sensor settings
	Logging        LoggingConfig        `toml:"logging"`        // Application logging settings
	Storage        StorageConfig        `toml:"storage"`        // Data persistence settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts    []int    `toml:"additional_ports"`      // Additional HTTP ports to listen on (useful for multiple interfaces)
}

// StationConfig contains physical location configuration for the tracking station.
// The station origin anchors the local ENU coordinate frame all detections and
// tracks are expressed in, and drives the magnetic declination calculation.
type StationConfig struct {
	Name       string  `toml:"name"`        // Human-readable station identifier (e.g., "NORTH-PERIMETER-1")
	Latitude   float64 `toml:"latitude"`    // Latitude of the station origin in decimal degrees
	Longitude  float64 `toml:"longitude"`   // Longitude of the station origin in decimal degrees
	ElevationM float64 `toml:"elevation_m"` // Elevation of the station origin above sea level in meters
}

// TrackingConfig contains track lifecycle and Kalman filter settings
type TrackingConfig struct {
	UpdateRateHz          float64 `toml:"update_rate_hz"`          // Tracking cycle rate in Hz (default: 1.0)
	AssociationGateM      float64 `toml:"association_gate_m"`      // Maximum detection-to-track distance for association in meters (default: 5000)
	MaxTrackAgeSecs       float64 `toml:"max_track_age_seconds"`   // Seconds without an update before a track is terminated (default: 60)
	MinTrackUpdates       int     `toml:"min_track_updates"`       // Updates required before a track is promoted to active (default: 3)
	MaxTracks             int     `toml:"max_tracks"`              // Maximum number of concurrent tracks (default: 1000)
	ProcessNoise          float64 `toml:"process_noise"`           // Kalman process noise intensity (default: 1.0)
	InitialUncertainty    float64 `toml:"initial_uncertainty"`     // Initial state covariance diagonal value (default: 100.0)
	ConfidenceBlend       float64 `toml:"confidence_blend"`        // Weight of the previous track confidence when blending in a new detection (default: 0.5)
	WebSocketTrackUpdates bool    `toml:"websocket_track_updates"` // Enable WebSocket track streaming
}

// ClassificationConfig contains object classification settings
type ClassificationConfig struct {
	MinConfidence          float64 `toml:"min_confidence"`          // Minimum arg-max probability to accept a known label; below it the label falls back to UNKNOWN_OBJECT (default: 0.4)
	DefaultRCS             float64 `toml:"default_rcs"`             // Radar cross section assumed when a detection carries none, normalized 0-1 (default: 0.5)
	DefaultManeuverability float64 `toml:"default_maneuverability"` // Maneuverability assumed when track history is too short to derive one (default: 0.5)
}

// SensorsConfig contains simulated sensor configuration. The sensor suite is
// a built-in scenario generator; when disabled, detections only arrive via
// the ingestion API.
type SensorsConfig struct {
	Enabled               bool        `toml:"enabled"`                  // Enable the built-in sensor simulation
	Scenario              string      `toml:"scenario"`                 // Scenario preset: "mixed", "approach", or "drone_swarm"
	Seed                  int64       `toml:"seed"`                     // Random seed for reproducible runs (0 = derive from wall clock)
	MaxDetectionsPerCycle int         `toml:"max_detections_per_cycle"` // Hard cap on detections accepted per tracking cycle (default: 5000)
	Radar                 RadarConfig `toml:"radar"`                    // Radar sensor settings
	IFF                   IFFConfig   `toml:"iff"`                      // IFF interrogator settings
}

// RadarConfig contains settings for the simulated radar sensor
type RadarConfig struct {
	Enabled            bool    `toml:"enabled"`             // Enable the radar sensor
	RangeM             float64 `toml:"range_m"`             // Maximum detection range in meters (default: 150000)
	UpdateRateHz       float64 `toml:"update_rate_hz"`      // Sensor sweep rate in Hz (default: 1.0)
	DetectionThreshold float64 `toml:"detection_threshold"` // Minimum detection confidence to report, 0-1 (default: 0.4)
	PositionNoiseM     float64 `toml:"position_noise_m"`    // Base position noise standard deviation in meters (default: 50)
	VelocityNoiseMPS   float64 `toml:"velocity_noise_mps"`  // Velocity noise standard deviation in m/s (default: 5)
}

// IFFConfig contains settings for the simulated IFF interrogator
type IFFConfig struct {
	Enabled            bool    `toml:"enabled"`             // Enable the IFF interrogator
	RangeM             float64 `toml:"range_m"`             // Maximum interrogation range in meters (default: 200000)
	UpdateRateHz       float64 `toml:"update_rate_hz"`      // Interrogation rate in Hz (default: 2.0)
	DetectionThreshold float64 `toml:"detection_threshold"` // Minimum detection confidence to report, 0-1 (default: 0.6)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Type            string `toml:"type"`               // Storage backend type (currently only "sqlite" is supported)
	SQLiteBasePath  string `toml:"sqlite_base_path"`   // Base path for SQLite database files (actual filename will be generated as airtrack-YYYY-MM-DD.db)
	MaxHistoryInAPI int    `toml:"max_history_in_api"` // Maximum number of history points to return in the track history API response
	RetentionHours  int    `toml:"retention_hours"`    // Hours of track history to retain before the sweeper deletes it (0 = keep forever)
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // Location in configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	// Validate AdditionalPorts
	portsSeen := make(map[int]bool)
	portsSeen[c.Server.Port] = true
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate storage config
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}

	if c.Storage.Type == "sqlite" && c.Storage.SQLiteBasePath == "" {
		return fmt.Errorf("sqlite_base_path is required when storage type is sqlite")
	}

	// Set default value for MaxHistoryInAPI if not specified
	if c.Storage.MaxHistoryInAPI <= 0 {
		c.Storage.MaxHistoryInAPI = 60 // Default to 60 history points if not specified
	}

	if c.Storage.RetentionHours < 0 {
		return fmt.Errorf("invalid retention_hours: %d (must be >= 0)", c.Storage.RetentionHours)
	}

	// Validate Station config
	if err := c.ValidateStation(); err != nil {
		return err
	}

	// Validate Tracking config
	if err := c.ValidateTracking(); err != nil {
		return err
	}

	// Validate Classification config
	if err := c.ValidateClassification(); err != nil {
		return err
	}

	// Validate Sensors config
	if err := c.ValidateSensors(); err != nil {
		return err
	}

	return nil
}

// ValidateStation validates the station configuration
func (c *Config) ValidateStation() error {
	// Validate Latitude
	if c.Station.Latitude < -90 || c.Station.Latitude > 90 {
		return fmt.Errorf("invalid station latitude: %f", c.Station.Latitude)
	}

	// Validate Longitude
	if c.Station.Longitude < -180 || c.Station.Longitude > 180 {
		return fmt.Errorf("invalid station longitude: %f", c.Station.Longitude)
	}

	// Elevation can be negative (e.g., below sea level sites), so just check a reasonable range.
	if c.Station.ElevationM < -500 || c.Station.ElevationM > 9000 {
		return fmt.Errorf("station elevation out of typical range: %f m", c.Station.ElevationM)
	}

	if c.Station.Name == "" {
		c.Station.Name = "STATION-1"
	}

	return nil
}

// ValidateTracking validates the tracking configuration and fills in defaults
// for any setting left at its zero value
func (c *Config) ValidateTracking() error {
	if c.Tracking.UpdateRateHz < 0 {
		return fmt.Errorf("invalid tracking update_rate_hz: %f", c.Tracking.UpdateRateHz)
	}
	if c.Tracking.UpdateRateHz == 0 {
		c.Tracking.UpdateRateHz = 1.0
	}

	if c.Tracking.AssociationGateM < 0 {
		return fmt.Errorf("invalid association_gate_m: %f", c.Tracking.AssociationGateM)
	}
	if c.Tracking.AssociationGateM == 0 {
		c.Tracking.AssociationGateM = 5000.0
	}

	if c.Tracking.MaxTrackAgeSecs < 0 {
		return fmt.Errorf("invalid max_track_age_seconds: %f", c.Tracking.MaxTrackAgeSecs)
	}
	if c.Tracking.MaxTrackAgeSecs == 0 {
		c.Tracking.MaxTrackAgeSecs = 60.0
	}

	if c.Tracking.MinTrackUpdates < 0 {
		return fmt.Errorf("invalid min_track_updates: %d", c.Tracking.MinTrackUpdates)
	}
	if c.Tracking.MinTrackUpdates == 0 {
		c.Tracking.MinTrackUpdates = 3
	}

	if c.Tracking.MaxTracks < 0 {
		return fmt.Errorf("invalid max_tracks: %d", c.Tracking.MaxTracks)
	}
	if c.Tracking.MaxTracks == 0 {
		c.Tracking.MaxTracks = 1000
	}

	if c.Tracking.ProcessNoise <= 0 {
		c.Tracking.ProcessNoise = 1.0
	}
	if c.Tracking.InitialUncertainty <= 0 {
		c.Tracking.InitialUncertainty = 100.0
	}

	if c.Tracking.ConfidenceBlend < 0 || c.Tracking.ConfidenceBlend > 1 {
		return fmt.Errorf("invalid confidence_blend: %f (must be in [0, 1])", c.Tracking.ConfidenceBlend)
	}
	if c.Tracking.ConfidenceBlend == 0 {
		c.Tracking.ConfidenceBlend = 0.5
	}

	return nil
}

// ValidateClassification validates the classification configuration
func (c *Config) ValidateClassification() error {
	if c.Classification.MinConfidence < 0 || c.Classification.MinConfidence > 1 {
		return fmt.Errorf("invalid min_confidence: %f (must be in [0, 1])", c.Classification.MinConfidence)
	}
	if c.Classification.MinConfidence == 0 {
		c.Classification.MinConfidence = 0.4
	}

	if c.Classification.DefaultRCS < 0 || c.Classification.DefaultRCS > 1 {
		return fmt.Errorf("invalid default_rcs: %f (must be in [0, 1])", c.Classification.DefaultRCS)
	}
	if c.Classification.DefaultRCS == 0 {
		c.Classification.DefaultRCS = 0.5
	}

	if c.Classification.DefaultManeuverability < 0 || c.Classification.DefaultManeuverability > 1 {
		return fmt.Errorf("invalid default_maneuverability: %f (must be in [0, 1])", c.Classification.DefaultManeuverability)
	}
	if c.Classification.DefaultManeuverability == 0 {
		c.Classification.DefaultManeuverability = 0.5
	}

	return nil
}

// ValidateSensors validates the sensor simulation configuration
func (c *Config) ValidateSensors() error {
	if c.Sensors.Scenario == "" {
		c.Sensors.Scenario = "mixed"
	}
	switch c.Sensors.Scenario {
	case "mixed", "approach", "drone_swarm":
		// Valid scenario preset
	default:
		return fmt.Errorf("invalid sensor scenario: %s (must be 'mixed', 'approach', or 'drone_swarm')", c.Sensors.Scenario)
	}

	if c.Sensors.MaxDetectionsPerCycle < 0 {
		return fmt.Errorf("invalid max_detections_per_cycle: %d", c.Sensors.MaxDetectionsPerCycle)
	}
	if c.Sensors.MaxDetectionsPerCycle == 0 {
		c.Sensors.MaxDetectionsPerCycle = 5000
	}

	// Radar defaults
	if c.Sensors.Radar.RangeM <= 0 {
		c.Sensors.Radar.RangeM = 150000.0
	}
	if c.Sensors.Radar.UpdateRateHz <= 0 {
		c.Sensors.Radar.UpdateRateHz = 1.0
	}
	if c.Sensors.Radar.DetectionThreshold <= 0 {
		c.Sensors.Radar.DetectionThreshold = 0.4
	}
	if c.Sensors.Radar.DetectionThreshold > 1 {
		return fmt.Errorf("invalid radar detection_threshold: %f (must be in (0, 1])", c.Sensors.Radar.DetectionThreshold)
	}
	if c.Sensors.Radar.PositionNoiseM <= 0 {
		c.Sensors.Radar.PositionNoiseM = 50.0
	}
	if c.Sensors.Radar.VelocityNoiseMPS <= 0 {
		c.Sensors.Radar.VelocityNoiseMPS = 5.0
	}

	// IFF defaults
	if c.Sensors.IFF.RangeM <= 0 {
		c.Sensors.IFF.RangeM = 200000.0
	}
	if c.Sensors.IFF.UpdateRateHz <= 0 {
		c.Sensors.IFF.UpdateRateHz = 2.0
	}
	if c.Sensors.IFF.DetectionThreshold <= 0 {
		c.Sensors.IFF.DetectionThreshold = 0.6
	}
	if c.Sensors.IFF.DetectionThreshold > 1 {
		return fmt.Errorf("invalid iff detection_threshold: %f (must be in (0, 1])", c.Sensors.IFF.DetectionThreshold)
	}

	return nil
}
