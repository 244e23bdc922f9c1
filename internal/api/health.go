package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Uptime    float64         `json:"uptime"`
	Sessions  healthSessions  `json:"sessions"`
	WebSocket healthWebSocket `json:"websocket"`
}

type healthSessions struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type healthWebSocket struct {
	Connections int `json:"connections"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	total, active := h.sessions.Counts()
	connections := 0
	if h.viewers != nil {
		connections = h.viewers.ClientCount()
	}
	jsonResponse(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Uptime:    now.Sub(h.started).Seconds(),
		Sessions:  healthSessions{Total: total, Active: active},
		WebSocket: healthWebSocket{Connections: connections},
	})
}
