package websocket

import "time"

// heartbeat broadcasts a keep-alive frame to every connection and samples
// aggregate stats. Connection timeouts are left to the transport's ping/pong.
func (h *Hub) heartbeat() {
	h.BroadcastAll(EventHeartbeat, HeartbeatData{Timestamp: time.Now().UnixMilli()})

	stats := h.Stats()
	h.metrics.observeStats(stats)
	h.logger.Info("Realtime stats",
		"users", stats.Users,
		"connections", stats.Connections,
		"queuedUsers", stats.QueuedUsers,
		"queuedEvents", stats.QueuedEvents,
	)
}
