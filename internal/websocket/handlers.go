package websocket

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"notify-service/internal/models"

	"github.com/google/uuid"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 50
	recentSort         = "created_at desc"
)

// NotificationStore is the persistence collaborator for notification
// requests. Every call is scoped to the requesting user.
type NotificationStore interface {
	GetUnreadCount(ctx context.Context, userID string) (int64, error)
	GetUserNotifications(ctx context.Context, userID string, query models.NotificationQuery) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, notificationID string) error
}

type RecentNotificationsResult struct {
	Notifications []models.Notification `json:"notifications"`
}

type AllReadData struct {
	Updated int64 `json:"updated"`
}

// HandleMessage processes one inbound frame from conn. It runs on the
// connection's read goroutine, so a slow store call only delays this
// connection. Errors and panics are reported to conn alone.
func (h *Hub) HandleMessage(ctx context.Context, conn Conn, msg *InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in message handler",
				"connID", conn.ID(),
				"userID", conn.UserID(),
				"event", msg.Type,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			h.replyError(conn, errors.New("internal error"))
		}
	}()

	err := h.dispatch(ctx, conn, msg)
	if err == nil || errors.Is(err, ErrClientDisconnected) {
		return
	}

	if errors.Is(err, ErrStoreUnavailable) {
		h.logger.Error("Notification store request failed",
			"connID", conn.ID(), "userID", conn.UserID(), "event", msg.Type, "error", err)
	} else {
		h.logger.Warn("Rejected client request",
			"connID", conn.ID(), "userID", conn.UserID(), "event", msg.Type, "error", err)
	}
	h.replyError(conn, err)
}

func (h *Hub) dispatch(ctx context.Context, conn Conn, msg *InboundMessage) error {
	if !msg.Type.IsInbound() {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, msg.Type)
	}

	switch msg.Type {
	case EventJoinTeam:
		return h.handleJoinTeam(conn, msg)
	case EventLeaveTeam:
		return h.handleLeaveTeam(conn, msg)
	case EventJoinConversation:
		return h.handleJoinConversation(conn, msg)
	case EventLeaveConversation:
		return h.handleLeaveConversation(conn, msg)
	case EventSetStatus:
		return h.handleSetStatus(conn, msg)
	case EventTypingStart:
		return h.handleTyping(conn, msg, EventUserTyping)
	case EventTypingEnd:
		return h.handleTyping(conn, msg, EventUserStoppedTyping)
	case EventGetNotificationCount:
		return h.handleNotificationCount(ctx, conn)
	case EventGetRecentNotifications:
		return h.handleRecentNotifications(ctx, conn, msg)
	case EventMarkNotificationRead:
		return h.handleMarkRead(ctx, conn, msg)
	case EventMarkAllRead:
		return h.handleMarkAllRead(ctx, conn)
	case EventDeleteNotification:
		return h.handleDeleteNotification(ctx, conn, msg)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, msg.Type)
	}
}

func (h *Hub) handleJoinTeam(conn Conn, msg *InboundMessage) error {
	var data TeamData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	if data.TeamID == "" {
		return missingField("teamId")
	}

	userID := conn.UserID()
	room := TeamRoom(data.TeamID)

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasConnLocked(conn) {
		return ErrClientDisconnected
	}

	h.rooms.Join(userID, room)
	h.sendToRoomLocked(room, NewMessage(EventTeamMemberActive, TeamMemberData{
		TeamID: data.TeamID,
		UserID: userID,
		Status: h.statusLocked(conn.ID()),
	}), conn.ID())
	h.deliverLocked(conn, NewMessage(EventJoinedTeam, TeamData{TeamID: data.TeamID}))

	h.logger.Debug("User joined team", "userID", userID, "teamID", data.TeamID)
	return nil
}

func (h *Hub) handleLeaveTeam(conn Conn, msg *InboundMessage) error {
	var data TeamData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	if data.TeamID == "" {
		return missingField("teamId")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasConnLocked(conn) {
		return ErrClientDisconnected
	}

	h.rooms.Leave(conn.UserID(), TeamRoom(data.TeamID))
	h.deliverLocked(conn, NewMessage(EventLeftTeam, TeamData{TeamID: data.TeamID}))
	return nil
}

func (h *Hub) handleJoinConversation(conn Conn, msg *InboundMessage) error {
	var data ConversationData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	if data.ConversationID == "" {
		return missingField("conversationId")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasConnLocked(conn) {
		return ErrClientDisconnected
	}

	h.rooms.Join(conn.UserID(), ConversationRoom(data.ConversationID))
	h.deliverLocked(conn, NewMessage(EventJoinedConversation, data))
	return nil
}

func (h *Hub) handleLeaveConversation(conn Conn, msg *InboundMessage) error {
	var data ConversationData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	if data.ConversationID == "" {
		return missingField("conversationId")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasConnLocked(conn) {
		return ErrClientDisconnected
	}

	h.rooms.Leave(conn.UserID(), ConversationRoom(data.ConversationID))
	h.deliverLocked(conn, NewMessage(EventLeftConversation, data))
	return nil
}

// handleSetStatus records the declared status on the connection and tells
// every team room the user belongs to.
func (h *Hub) handleSetStatus(conn Conn, msg *InboundMessage) error {
	var data StatusData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	if data.Status == "" {
		return missingField("status")
	}

	userID := conn.UserID()

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasConnLocked(conn) {
		return ErrClientDisconnected
	}

	h.statuses[conn.ID()] = data.Status
	change := NewMessage(EventUserPresenceChange, PresenceChangeData{UserID: userID, Status: data.Status})
	for _, room := range h.rooms.RoomsOf(userID) {
		if kind, _, ok := room.Parse(); ok && kind == RoomKindTeam {
			h.sendToRoomLocked(room, change, conn.ID())
		}
	}
	return nil
}

func (h *Hub) handleTyping(conn Conn, msg *InboundMessage, relay EventType) error {
	var data ConversationData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	if data.ConversationID == "" {
		return missingField("conversationId")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasConnLocked(conn) {
		return ErrClientDisconnected
	}

	h.sendToRoomLocked(ConversationRoom(data.ConversationID), NewMessage(relay, TypingData{
		ConversationID: data.ConversationID,
		UserID:         conn.UserID(),
	}), conn.ID())
	return nil
}

func (h *Hub) handleNotificationCount(ctx context.Context, conn Conn) error {
	if h.store == nil {
		return ErrStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	count, err := h.store.GetUnreadCount(ctx, conn.UserID())
	if err != nil {
		return storeError("get unread count", err)
	}
	h.reply(conn, NewMessage(EventNotificationCount, NotificationCountData{Count: count}))
	return nil
}

func (h *Hub) handleRecentNotifications(ctx context.Context, conn Conn, msg *InboundMessage) error {
	var data RecentNotificationsData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	if h.store == nil {
		return ErrStoreUnavailable
	}

	query := models.NotificationQuery{
		Limit:      data.Limit,
		Skip:       data.Skip,
		Sort:       recentSort,
		UnreadOnly: data.UnreadOnly,
	}
	if query.Limit <= 0 {
		query.Limit = defaultRecentLimit
	}
	if query.Limit > maxRecentLimit {
		query.Limit = maxRecentLimit
	}
	if query.Skip < 0 {
		query.Skip = 0
	}

	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	notifications, err := h.store.GetUserNotifications(ctx, conn.UserID(), query)
	if err != nil {
		return storeError("get notifications", err)
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	h.reply(conn, NewMessage(EventRecentNotifications, RecentNotificationsResult{Notifications: notifications}))
	return nil
}

func (h *Hub) handleMarkRead(ctx context.Context, conn Conn, msg *InboundMessage) error {
	var data NotificationIDData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	if err := validNotificationID(data.NotificationID); err != nil {
		return err
	}
	if h.store == nil {
		return ErrStoreUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	if err := h.store.MarkAsRead(ctx, conn.UserID(), data.NotificationID); err != nil {
		return storeError("mark notification read", err)
	}
	h.reply(conn, NewMessage(EventNotificationMarkedRead, data))
	h.syncUnreadCount(ctx, conn.UserID())
	return nil
}

func (h *Hub) handleMarkAllRead(ctx context.Context, conn Conn) error {
	if h.store == nil {
		return ErrStoreUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	updated, err := h.store.MarkAllAsRead(ctx, conn.UserID())
	if err != nil {
		return storeError("mark all read", err)
	}
	h.reply(conn, NewMessage(EventAllReadSuccess, AllReadData{Updated: updated}))
	h.syncUnreadCount(ctx, conn.UserID())
	return nil
}

func (h *Hub) handleDeleteNotification(ctx context.Context, conn Conn, msg *InboundMessage) error {
	var data NotificationIDData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	if err := validNotificationID(data.NotificationID); err != nil {
		return err
	}
	if h.store == nil {
		return ErrStoreUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	if err := h.store.DeleteNotification(ctx, conn.UserID(), data.NotificationID); err != nil {
		return storeError("delete notification", err)
	}
	h.reply(conn, NewMessage(EventNotificationDeleted, data))
	h.syncUnreadCount(ctx, conn.UserID())
	return nil
}

// validNotificationID rejects IDs the store could never match, so a typo is
// reported as a bad request rather than a store failure.
func validNotificationID(id string) error {
	if id == "" {
		return missingField("notificationId")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: notificationId must be a UUID", ErrMalformedRequest)
	}
	return nil
}

// syncUnreadCount pushes the fresh unread count to every connection of the
// user so other devices stay in step. A failure here is only logged: the
// request itself already succeeded.
func (h *Hub) syncUnreadCount(ctx context.Context, userID string) {
	count, err := h.store.GetUnreadCount(ctx, userID)
	if err != nil {
		h.logger.Warn("Failed to refresh unread count", "userID", userID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registry.IsConnected(userID) {
		h.sendToRoomLocked(UserRoom(userID), NewMessage(EventNotificationCount, NotificationCountData{Count: count}), "")
	}
}
