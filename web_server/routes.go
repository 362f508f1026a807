package web_server

import (
	"context"
	"encoding/json"
	"github.com/lefinal/pairs-server/coordinator"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/messages"
	"github.com/lefinal/pairs-server/store"
	"github.com/lefinal/pairs-server/ws"
	"go.uber.org/zap"
	"net/http"
	"strconv"
)

// Coordinator provides room information for the API.
type Coordinator interface {
	ListRooms() []messages.RoomSummary
	Stats() coordinator.Stats
}

// ConnectionCounter provides the number of open connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Leaderboard provides aggregated game results.
type Leaderboard interface {
	Leaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error)
}

// StatusResponse is the response for the status endpoint.
type StatusResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Queue       int    `json:"queue"`
}

// RoomsResponse is the response for the rooms endpoint.
type RoomsResponse struct {
	Rooms []messages.RoomSummary `json:"rooms"`
}

// LeaderboardResponse is the response for the leaderboard endpoint.
type LeaderboardResponse struct {
	Entries []store.LeaderboardEntry `json:"entries"`
}

// PopulateRoutes populates the WebServer with the routes. The leaderboard is
// optional and might be nil.
func (server *WebServer) PopulateRoutes(wsCtx context.Context, hub *ws.Hub, coord Coordinator, leaderboard Leaderboard) {
	// Websocket stuff.
	server.router.HandleFunc("/ws", ws.HandleWS(server.logger.Named("ws"), hub, wsCtx))
	// API stuff.
	apiRouter := server.router.PathPrefix("/api/v1").Subrouter()
	// Enable logging.
	apiRouter.Use(loggingMiddleware(server.logger))
	// Disable caching.
	apiRouter.Use(noCacheMiddleware)
	api := &apiHandlers{
		logger:      server.logger,
		coordinator: coord,
		connections: hub,
		leaderboard: leaderboard,
	}
	apiRouter.HandleFunc("/status", api.handleStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/rooms", api.handleRooms).Methods(http.MethodGet)
	apiRouter.HandleFunc("/leaderboard", api.handleLeaderboard).Methods(http.MethodGet)
}

// apiHandlers holds dependencies for the API routes.
type apiHandlers struct {
	logger      *zap.Logger
	coordinator Coordinator
	connections ConnectionCounter
	leaderboard Leaderboard
}

func (api *apiHandlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := api.coordinator.Stats()
	api.respondJSON(w, http.StatusOK, StatusResponse{
		Status:      "ok",
		Connections: api.connections.ConnectionCount(),
		Rooms:       stats.Rooms,
		Queue:       stats.Queued,
	})
}

func (api *apiHandlers) handleRooms(w http.ResponseWriter, _ *http.Request) {
	api.respondJSON(w, http.StatusOK, RoomsResponse{Rooms: api.coordinator.ListRooms()})
}

func (api *apiHandlers) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if api.leaderboard == nil {
		api.respondJSON(w, http.StatusOK, LeaderboardResponse{Entries: []store.LeaderboardEntry{}})
		return
	}
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			api.respondError(w, errors.NewValidationError("invalid limit", errors.Details{"was": limitStr}))
			return
		}
	}
	entries, err := api.leaderboard.Leaderboard(r.Context(), limit)
	if err != nil {
		api.respondError(w, errors.Wrap(err, "leaderboard", nil))
		return
	}
	api.respondJSON(w, http.StatusOK, LeaderboardResponse{Entries: entries})
}

// respondError logs the given error and responds with the matching status code
// and a messages.MessageError.
func (api *apiHandlers) respondError(w http.ResponseWriter, err error) {
	errors.Log(api.logger, err)
	status := http.StatusInternalServerError
	if errors.BlameUser(err) {
		status = http.StatusBadRequest
	}
	api.respondJSON(w, status, messages.MessageErrorFromError(err))
}

// respondJSON writes the given payload as JSON.
func (api *apiHandlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		errors.Log(api.logger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal response",
		})
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
