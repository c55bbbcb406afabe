package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the name carried in the "type" field of every frame.
type EventType string

// Inbound (client -> server) events
const (
	EventJoinTeam               EventType = "join_team"
	EventLeaveTeam              EventType = "leave_team"
	EventJoinConversation       EventType = "join_conversation"
	EventLeaveConversation      EventType = "leave_conversation"
	EventSetStatus              EventType = "set_status"
	EventTypingStart            EventType = "typing_start"
	EventTypingEnd              EventType = "typing_end"
	EventGetNotificationCount   EventType = "get_notification_count"
	EventGetRecentNotifications EventType = "get_recent_notifications"
	EventMarkNotificationRead   EventType = "mark_notification_read"
	EventMarkAllRead            EventType = "mark_all_read"
	EventDeleteNotification     EventType = "delete_notification"
)

// Outbound (server -> client) events
const (
	EventConnectionStatus       EventType = "connection_status"
	EventNotificationCount      EventType = "notification_count"
	EventRecentNotifications    EventType = "recent_notifications"
	EventNewNotification        EventType = "new_notification"
	EventNotificationMarkedRead EventType = "notification_marked_read"
	EventAllReadSuccess         EventType = "all_read_success"
	EventNotificationDeleted    EventType = "notification_deleted"
	EventUserTyping             EventType = "user_typing"
	EventUserStoppedTyping      EventType = "user_stopped_typing"
	EventJoinedTeam             EventType = "joined_team"
	EventLeftTeam               EventType = "left_team"
	EventJoinedConversation     EventType = "joined_conversation"
	EventLeftConversation       EventType = "left_conversation"
	EventTeamMemberActive       EventType = "team_member_active"
	EventTeamMemberOffline      EventType = "team_member_offline"
	EventUserPresenceChange     EventType = "user_presence_change"
	EventHeartbeat              EventType = "heartbeat"
	EventError                  EventType = "error"
)

// String returns the string representation of the EventType
func (et EventType) String() string {
	return string(et)
}

// IsInbound reports whether clients are allowed to send this event.
func (et EventType) IsInbound() bool {
	switch et {
	case EventJoinTeam, EventLeaveTeam, EventJoinConversation, EventLeaveConversation,
		EventSetStatus, EventTypingStart, EventTypingEnd,
		EventGetNotificationCount, EventGetRecentNotifications, EventMarkNotificationRead,
		EventMarkAllRead, EventDeleteNotification:
		return true
	default:
		return false
	}
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Message is an outbound frame. Data is marshalled when the frame is written,
// so a single Message can be fanned out to many connections.
type Message struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp int64     `json:"timestamp"`
	QueuedAt  int64     `json:"queuedAt,omitempty"`
}

// NewMessage creates a new outbound message with the specified type and payload
func NewMessage(msgType EventType, data any) *Message {
	if data == nil {
		data = struct{}{}
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// InboundMessage is a frame received from a client. Data is decoded lazily by
// the handler for the specific event type.
type InboundMessage struct {
	ID   string          `json:"id,omitempty"`
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseInbound decodes a raw client frame.
func ParseInbound(raw []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: message type is required", ErrMalformedRequest)
	}
	return &msg, nil
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (m *InboundMessage) Decode(v any) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: invalid %s payload", ErrMalformedRequest, m.Type)
	}
	return nil
}

// Inbound payloads

type TeamData struct {
	TeamID string `json:"teamId"`
}

type ConversationData struct {
	ConversationID string `json:"conversationId"`
}

type StatusData struct {
	Status string `json:"status"`
}

type NotificationIDData struct {
	NotificationID string `json:"notificationId"`
}

type RecentNotificationsData struct {
	Limit      int  `json:"limit,omitempty"`
	Skip       int  `json:"skip,omitempty"`
	UnreadOnly bool `json:"unreadOnly,omitempty"`
}

// Outbound payloads

type ConnectionStatusData struct {
	Connected bool   `json:"connected"`
	UserID    string `json:"userId"`
}

type TeamMemberData struct {
	TeamID string `json:"teamId"`
	UserID string `json:"userId"`
	Status string `json:"status,omitempty"`
}

type PresenceChangeData struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type TypingData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type NotificationCountData struct {
	Count int64 `json:"count"`
}

type HeartbeatData struct {
	Timestamp int64 `json:"timestamp"`
}

type ErrorData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) *Message {
	return NewMessage(EventError, ErrorData{Code: code, Message: message})
}
