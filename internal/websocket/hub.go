package websocket

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultStoreTimeout      = 5 * time.Second

	presenceBufferSize = 256
)

// PresenceObserver is told when a user comes online (first connection) or goes
// offline (last connection closed). It is informational only and never
// consulted for routing.
type PresenceObserver interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

type presenceUpdate struct {
	userID string
	online bool
}

// Stats is the aggregate diagnostic snapshot logged by the liveness monitor
type Stats struct {
	Users        int `json:"users"`
	Connections  int `json:"connections"`
	QueuedUsers  int `json:"queuedUsers"`
	QueuedEvents int `json:"queuedEvents"`
}

// UserPresence describes one user's current session
type UserPresence struct {
	UserID      string   `json:"userId"`
	Online      bool     `json:"online"`
	Connections int      `json:"connections"`
	Rooms       []RoomID `json:"rooms"`
}

// Hub owns the connection registry, room tracker and offline queue. Every
// mutation and every delivery happens under mu, which gives per-user FIFO
// delivery and keeps register/deregister/enqueue/drain from interleaving.
type Hub struct {
	mu       sync.Mutex
	registry *ConnectionRegistry
	rooms    *RoomTracker
	queue    *OfflineQueue
	statuses map[string]string // connection ID -> declared status

	store    NotificationStore
	presence []PresenceObserver
	updates  chan presenceUpdate
	metrics  *Metrics
	logger   *slog.Logger

	heartbeatInterval time.Duration
	storeTimeout      time.Duration

	runOnce sync.Once
}

// Option configures a Hub
type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(h *Hub) {
		if metrics != nil {
			h.metrics = metrics
		}
	}
}

// WithPresenceObserver adds an observer. It may be given more than once.
func WithPresenceObserver(observer PresenceObserver) Option {
	return func(h *Hub) {
		if observer != nil {
			h.presence = append(h.presence, observer)
		}
	}
}

func WithHeartbeatInterval(interval time.Duration) Option {
	return func(h *Hub) {
		if interval > 0 {
			h.heartbeatInterval = interval
		}
	}
}

func WithStoreTimeout(timeout time.Duration) Option {
	return func(h *Hub) {
		if timeout > 0 {
			h.storeTimeout = timeout
		}
	}
}

// NewHub creates a Hub. store may be nil, in which case notification requests
// are answered with an error.
func NewHub(store NotificationStore, opts ...Option) *Hub {
	h := &Hub{
		registry:          NewConnectionRegistry(),
		rooms:             NewRoomTracker(),
		queue:             NewOfflineQueue(),
		statuses:          make(map[string]string),
		store:             store,
		updates:           make(chan presenceUpdate, presenceBufferSize),
		logger:            slog.Default(),
		heartbeatInterval: DefaultHeartbeatInterval,
		storeTimeout:      DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(nil)
	}
	return h
}

// Connect moves an authenticated connection to the active state: it is
// registered, joined to its personal room, sent every event queued while the
// user was offline, and finally acknowledged with connection_status.
// A connection without a principal is closed and never registered.
func (h *Hub) Connect(conn Conn) error {
	userID := conn.UserID()
	if userID == "" {
		h.logger.Warn("Rejecting unauthenticated connection", "connID", conn.ID())
		conn.Close()
		return ErrUnauthenticated
	}

	h.mu.Lock()
	first := !h.registry.IsConnected(userID)
	h.registry.Register(userID, conn)
	h.rooms.Join(userID, UserRoom(userID))

	queued := h.queue.Drain(userID)
	for _, event := range queued {
		h.deliverLocked(conn, event.Message())
	}
	h.deliverLocked(conn, NewMessage(EventConnectionStatus, ConnectionStatusData{
		Connected: true,
		UserID:    userID,
	}))
	if first {
		h.publishPresenceLocked(userID, true)
	}
	stats := h.statsLocked()
	h.mu.Unlock()

	h.metrics.observeStats(stats)
	h.logger.Info("Client connected",
		"connID", conn.ID(),
		"userID", userID,
		"flushed", len(queued),
		"connections", stats.Connections,
	)
	return nil
}

// Disconnect handles a transport close. When it was the user's last
// connection every room membership is torn down and team rooms are told the
// user went offline. Unknown connections are ignored.
func (h *Hub) Disconnect(conn Conn) {
	userID := conn.UserID()

	h.mu.Lock()
	wasLast, found := h.registry.Deregister(userID, conn.ID())
	if !found {
		h.mu.Unlock()
		return
	}
	delete(h.statuses, conn.ID())

	var left []RoomID
	if wasLast {
		left = h.rooms.LeaveAll(userID)
		for _, room := range left {
			kind, teamID, ok := room.Parse()
			if !ok || kind != RoomKindTeam {
				continue
			}
			h.sendToRoomLocked(room, NewMessage(EventTeamMemberOffline, TeamMemberData{
				TeamID: teamID,
				UserID: userID,
			}), "")
			h.sendToRoomLocked(room, NewMessage(EventUserPresenceChange, PresenceChangeData{
				UserID: userID,
				Status: StatusOffline,
			}), "")
		}
		h.publishPresenceLocked(userID, false)
	}
	stats := h.statsLocked()
	h.mu.Unlock()

	h.metrics.observeStats(stats)
	h.logger.Info("Client disconnected",
		"connID", conn.ID(),
		"userID", userID,
		"lastConnection", wasLast,
		"roomsLeft", len(left),
	)
}

// Run drives the liveness monitor and the presence observer until ctx is
// cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	ran := false
	h.runOnce.Do(func() { ran = true })
	if !ran {
		h.logger.Warn("Hub.Run called more than once")
		return
	}

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	h.logger.Info("WebSocket hub started", "heartbeatInterval", h.heartbeatInterval)

	for {
		select {
		case <-ticker.C:
			h.heartbeat()

		case update := <-h.updates:
			h.applyPresence(ctx, update)

		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.Shutdown()
			return
		}
	}
}

// Shutdown closes every live connection. Their transports report the close
// back through Disconnect.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := h.registry.All()
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			h.logger.Debug("Error closing connection", "connID", conn.ID(), "error", err)
		}
	}
	h.logger.Info("Closed client connections", "count", len(conns))
}

// publishPresenceLocked queues a transition for the observers. It runs under
// mu so the queue order matches the order transitions happened in.
func (h *Hub) publishPresenceLocked(userID string, online bool) {
	if len(h.presence) == 0 {
		return
	}
	select {
	case h.updates <- presenceUpdate{userID: userID, online: online}:
	default:
		h.logger.Warn("Presence update dropped, buffer full", "userID", userID, "online", online)
	}
}

func (h *Hub) applyPresence(ctx context.Context, update presenceUpdate) {
	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	for _, observer := range h.presence {
		var err error
		if update.online {
			err = observer.SetUserOnline(ctx, update.userID)
		} else {
			err = observer.SetUserOffline(ctx, update.userID)
		}
		if err != nil {
			h.logger.Error("Failed to mirror presence", "userID", update.userID, "online", update.online, "error", err)
		}
	}
}

// IsConnected reports whether the user has at least one live connection
func (h *Hub) IsConnected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.IsConnected(userID)
}

func (h *Hub) ConnectionCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.ConnectionCount(userID)
}

// RoomsOf returns the rooms the user's session has joined, sorted
func (h *Hub) RoomsOf(userID string) []RoomID {
	h.mu.Lock()
	rooms := h.rooms.RoomsOf(userID)
	h.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// QueuedEvents returns a copy of the events buffered for an offline user
func (h *Hub) QueuedEvents(userID string) []QueuedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queue.Peek(userID)
}

func (h *Hub) Presence(userID string) UserPresence {
	rooms := h.RoomsOf(userID)

	h.mu.Lock()
	defer h.mu.Unlock()
	return UserPresence{
		UserID:      userID,
		Online:      h.registry.IsConnected(userID),
		Connections: h.registry.ConnectionCount(userID),
		Rooms:       rooms,
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statsLocked()
}

func (h *Hub) statsLocked() Stats {
	registry := h.registry.Stats()
	queue := h.queue.Stats()
	return Stats{
		Users:        registry.Users,
		Connections:  registry.TotalConnections,
		QueuedUsers:  queue.Users,
		QueuedEvents: queue.Events,
	}
}

func (h *Hub) statusLocked(connID string) string {
	if status, ok := h.statuses[connID]; ok {
		return status
	}
	return StatusOnline
}

// hasConnLocked reports whether conn is still registered
func (h *Hub) hasConnLocked(conn Conn) bool {
	return h.registry.Has(conn.UserID(), conn.ID())
}
