package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skyfence/airtrack/internal/config"
	"github.com/skyfence/airtrack/internal/storage/sqlite"
	"github.com/skyfence/airtrack/internal/tracking"
	"github.com/skyfence/airtrack/internal/websocket"
	"github.com/skyfence/airtrack/pkg/logger"
)

// TrackCounts breaks the returned tracks down by lifecycle state
type TrackCounts struct {
	Initializing int `json:"initializing"`
	Active       int `json:"active"`
	Coasting     int `json:"coasting"`
}

// TracksResponse is the payload for the track list endpoint
type TracksResponse struct {
	Timestamp time.Time                `json:"timestamp"`
	Count     int                      `json:"count"`
	Counts    TrackCounts              `json:"counts"`
	Tracks    []tracking.TrackSnapshot `json:"tracks"`
}

// TrackHistoryResponse is the payload for the track history endpoint
type TrackHistoryResponse struct {
	TrackID string                     `json:"track_id"`
	Count   int                        `json:"count"`
	History []sqlite.TrackHistoryPoint `json:"history"`
}

// EventsResponse is the payload for the lifecycle events endpoint
type EventsResponse struct {
	Timestamp time.Time             `json:"timestamp"`
	Count     int                   `json:"count"`
	Events    []tracking.TrackEvent `json:"events"`
}

// StatsResponse is the payload for the stats endpoint
type StatsResponse struct {
	Timestamp      time.Time           `json:"timestamp"`
	Cycle          tracking.CycleStats `json:"cycle"`
	DeclinationDeg float64             `json:"declination_deg"`
	Clients        int                 `json:"clients"`
}

// DetectionSubmission is the body of the detection ingest endpoint
type DetectionSubmission struct {
	Detections []tracking.Detection `json:"detections"`
}

// DetectionSubmissionResponse reports how many submitted detections were queued
type DetectionSubmissionResponse struct {
	Submitted int `json:"submitted"`
	Accepted  int `json:"accepted"`
}

// Handler contains the API handlers
type Handler struct {
	trackingService *tracking.Service
	trackStorage    *sqlite.TrackStorage
	config          *config.Config
	logger          *logger.Logger
	wsServer        *websocket.Server
}

// NewHandler creates a new API handler
func NewHandler(trackingService *tracking.Service, trackStorage *sqlite.TrackStorage, config *config.Config, logger *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		trackingService: trackingService,
		trackStorage:    trackStorage,
		config:          config,
		logger:          logger.Named("api-handler"),
		wsServer:        wsServer,
	}
}

// GetTracks returns the current track table, optionally filtered by lifecycle
// state, classification label and minimum track confidence
func (h *Handler) GetTracks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status, class, minConfidence := parseTrackFilters(r)

	tracks := h.trackingService.Tracks()

	if status != "" || class != "" || minConfidence > 0 {
		filtered := make([]tracking.TrackSnapshot, 0, len(tracks))
		for _, trk := range tracks {
			if status != "" && string(trk.Status) != status {
				continue
			}
			if class != "" && string(trk.Classification.ObjectType) != class {
				continue
			}
			if trk.Confidence < minConfidence {
				continue
			}
			filtered = append(filtered, trk)
		}
		tracks = filtered
	}

	var counts TrackCounts
	for _, trk := range tracks {
		switch trk.Status {
		case tracking.StatusInitializing:
			counts.Initializing++
		case tracking.StatusActive:
			counts.Active++
		case tracking.StatusCoasting:
			counts.Coasting++
		}
	}

	response := TracksResponse{
		Timestamp: time.Now().UTC(),
		Count:     len(tracks),
		Counts:    counts,
		Tracks:    tracks,
	}

	WriteJSON(w, http.StatusOK, response)

	h.logger.Debug("GetTracks API call completed",
		logger.Duration("duration", time.Since(start)),
		logger.Int("track_count", len(tracks)))
}

// GetTrackByID returns one track from the current table
func (h *Handler) GetTrackByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing track ID", http.StatusBadRequest)
		return
	}

	track, found := h.trackingService.TrackByID(id)
	if !found {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, track)
}

// GetTrackHistory returns a track's archived per-cycle snapshots in
// chronological order. Terminated tracks keep their history until the
// retention sweep removes it.
func (h *Handler) GetTrackHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing track ID", http.StatusBadRequest)
		return
	}

	if h.trackStorage == nil {
		http.Error(w, "Track storage not available", http.StatusServiceUnavailable)
		return
	}

	history, err := h.trackStorage.GetHistory(id)
	if err != nil {
		h.logger.Error("Failed to get track history",
			logger.Error(err),
			logger.String("track_id", id))
		http.Error(w, "Failed to get track history", http.StatusInternalServerError)
		return
	}

	if len(history) == 0 {
		if _, found := h.trackingService.TrackByID(id); !found {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
	}

	response := TrackHistoryResponse{
		TrackID: id,
		Count:   len(history),
		History: history,
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetEvents returns recent lifecycle events, newest first
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	if h.trackStorage == nil {
		http.Error(w, "Track storage not available", http.StatusServiceUnavailable)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	events, err := h.trackStorage.GetRecentEvents(limit)
	if err != nil {
		h.logger.Error("Failed to get track events", logger.Error(err))
		http.Error(w, "Failed to get track events", http.StatusInternalServerError)
		return
	}

	response := EventsResponse{
		Timestamp: time.Now().UTC(),
		Count:     len(events),
		Events:    events,
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetStats returns the counters of the most recent tracking cycle
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	response := StatsResponse{
		Timestamp:      time.Now().UTC(),
		Cycle:          h.trackingService.LatestStats(),
		DeclinationDeg: h.trackingService.Declination(),
	}
	if h.wsServer != nil {
		response.Clients = h.wsServer.ClientCount()
	}

	WriteJSON(w, http.StatusOK, response)
}

// SubmitDetections accepts externally observed detections and queues them for
// the next tracking cycle. The whole batch is rejected if any detection is
// malformed.
func (h *Handler) SubmitDetections(w http.ResponseWriter, r *http.Request) {
	var submission DetectionSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if len(submission.Detections) == 0 {
		http.Error(w, "No detections provided", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	for i := range submission.Detections {
		det := &submission.Detections[i]
		if det.Timestamp.IsZero() {
			det.Timestamp = now
		}
		if det.SensorType == "" {
			det.SensorType = "manual"
		}
		if !det.Valid() {
			http.Error(w, "Malformed detection at index "+strconv.Itoa(i), http.StatusBadRequest)
			return
		}
	}

	accepted := h.trackingService.SubmitDetections(submission.Detections)

	h.logger.Debug("Accepted external detections",
		logger.Int("submitted", len(submission.Detections)),
		logger.Int("accepted", accepted))

	WriteJSON(w, http.StatusAccepted, DetectionSubmissionResponse{
		Submitted: len(submission.Detections),
		Accepted:  accepted,
	})
}

// HandleWebSocket upgrades the connection and hands it to the streaming hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsServer == nil {
		http.Error(w, "WebSocket server not available", http.StatusServiceUnavailable)
		return
	}
	h.wsServer.HandleConnection(w, r)
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.trackingService.LatestStats()

	response := map[string]interface{}{
		"status":      "ok",
		"last_cycle":  stats.Timestamp,
		"track_count": stats.TotalTracks,
	}
	if h.wsServer != nil {
		response["clients"] = h.wsServer.ClientCount()
	}

	WriteJSON(w, http.StatusOK, response)
}

// parseTrackFilters extracts the track list filter parameters
func parseTrackFilters(r *http.Request) (string, string, float64) {
	status := strings.ToUpper(r.URL.Query().Get("status"))
	class := strings.ToUpper(r.URL.Query().Get("class"))

	minConfidence := 0.0
	if minStr := r.URL.Query().Get("min_confidence"); minStr != "" {
		if min, err := strconv.ParseFloat(minStr, 64); err == nil {
			minConfidence = min
		}
	}

	return status, class, minConfidence
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
