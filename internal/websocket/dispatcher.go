package websocket

// SendToUser delivers the event to every live connection of the user and
// returns true. If the user has no connection (including users that do not
// exist) the event is buffered in the offline queue and false is returned.
func (h *Hub) SendToUser(userID string, event EventType, payload any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendToUserLocked(userID, event, payload)
}

// SendToUsers applies SendToUser to each target and returns the users the
// event was delivered to immediately. Every other target had it queued.
func (h *Hub) SendToUsers(userIDs []string, event EventType, payload any) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		if h.sendToUserLocked(userID, event, payload) {
			delivered = append(delivered, userID)
		}
	}
	return delivered
}

// SendToRoom fans the event out to every connection joined to the room. A room
// without members is a no-op.
func (h *Hub) SendToRoom(room RoomID, event EventType, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendToRoomLocked(room, NewMessage(event, payload), "")
}

// BroadcastAll sends the event to every live connection except those that
// belong to excludeUsers.
func (h *Hub) BroadcastAll(event EventType, payload any, excludeUsers ...string) {
	excluded := make(map[string]struct{}, len(excludeUsers))
	for _, userID := range excludeUsers {
		excluded[userID] = struct{}{}
	}

	msg := NewMessage(event, payload)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.registry.All() {
		if _, skip := excluded[conn.UserID()]; skip {
			continue
		}
		h.deliverLocked(conn, msg)
	}
}

// NotifyUser pushes a freshly persisted notification to its owner
func (h *Hub) NotifyUser(userID string, notification any) bool {
	return h.SendToUser(userID, EventNewNotification, notification)
}

func (h *Hub) sendToUserLocked(userID string, event EventType, payload any) bool {
	if !h.registry.IsConnected(userID) {
		if evicted := h.queue.Enqueue(userID, event, payload); evicted {
			h.metrics.EventsEvicted.Inc()
		}
		h.metrics.EventsQueued.Inc()
		h.logger.Debug("User offline, event queued", "userID", userID, "event", event, "queued", h.queue.Len(userID))
		return false
	}

	h.sendToRoomLocked(UserRoom(userID), NewMessage(event, payload), "")
	return true
}

// sendToRoomLocked delivers msg to every connection of every room member,
// skipping the connection with ID excludeConnID.
func (h *Hub) sendToRoomLocked(room RoomID, msg *Message, excludeConnID string) {
	for _, userID := range h.rooms.Members(room) {
		for _, conn := range h.registry.Connections(userID) {
			if conn.ID() == excludeConnID {
				continue
			}
			h.deliverLocked(conn, msg)
		}
	}
}

// deliverLocked hands msg to one connection. A failed send is dropped: the
// transport is already tearing the connection down and will report it
// through Disconnect.
func (h *Hub) deliverLocked(conn Conn, msg *Message) bool {
	if err := conn.Send(msg); err != nil {
		h.logger.Debug("Dropping message for closed connection",
			"connID", conn.ID(),
			"userID", conn.UserID(),
			"event", msg.Type,
			"error", err,
		)
		return false
	}
	h.metrics.EventsDelivered.WithLabelValues(msg.Type.String()).Inc()
	return true
}

// reply sends a response to a single connection
func (h *Hub) reply(conn Conn, msg *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(conn, msg)
}

func (h *Hub) replyError(conn Conn, err error) {
	code := errorCode(err)
	h.metrics.HandlerErrors.WithLabelValues(code).Inc()
	h.reply(conn, NewErrorMessage(code, clientMessage(err)))
}
