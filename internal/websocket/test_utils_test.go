package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"notify-service/internal/models"
)

// mockConn implements Conn and records every message it is sent
type mockConn struct {
	mu       sync.Mutex
	id       string
	userID   string
	messages []*Message
	closed   bool
}

func newMockConn(id, userID string) *mockConn {
	return &mockConn{id: id, userID: userID}
}

func (m *mockConn) ID() string     { return m.id }
func (m *mockConn) UserID() string { return m.userID }

func (m *mockConn) Send(msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClientDisconnected
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) getMessages() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*Message, len(m.messages))
	copy(result, m.messages)
	return result
}

// eventTypes returns the event names received, in order
func (m *mockConn) eventTypes() []EventType {
	msgs := m.getMessages()
	result := make([]EventType, len(msgs))
	for i, msg := range msgs {
		result[i] = msg.Type
	}
	return result
}

// messagesOf returns the received messages of one event type
func (m *mockConn) messagesOf(event EventType) []*Message {
	var result []*Message
	for _, msg := range m.getMessages() {
		if msg.Type == event {
			result = append(result, msg)
		}
	}
	return result
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// fakeStore is an in-memory NotificationStore
type fakeStore struct {
	mu            sync.Mutex
	notifications map[string][]models.Notification
	lastQuery     models.NotificationQuery
	err           error
	panicOn       string
}

func newFakeStore() *fakeStore {
	return &fakeStore{notifications: make(map[string][]models.Notification)}
}

func (s *fakeStore) add(userID string, n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.UserID = userID
	s.notifications[userID] = append(s.notifications[userID], n)
}

func (s *fakeStore) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var count int64
	for _, n := range s.notifications[userID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) GetUserNotifications(ctx context.Context, userID string, query models.NotificationQuery) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn == "GetUserNotifications" {
		panic("boom")
	}
	s.lastQuery = query
	if s.err != nil {
		return nil, s.err
	}
	var result []models.Notification
	for _, n := range s.notifications[userID] {
		if query.UnreadOnly && n.Read {
			continue
		}
		result = append(result, n)
	}
	if query.Skip >= len(result) {
		return nil, nil
	}
	result = result[query.Skip:]
	if len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

func (s *fakeStore) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for i, n := range s.notifications[userID] {
		if n.ID == notificationID {
			s.notifications[userID][i].Read = true
			return nil
		}
	}
	return models.ErrNotificationNotFound
}

func (s *fakeStore) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var updated int64
	for i, n := range s.notifications[userID] {
		if !n.Read {
			s.notifications[userID][i].Read = true
			updated++
		}
	}
	return updated, nil
}

func (s *fakeStore) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	list := s.notifications[userID]
	for i, n := range list {
		if n.ID == notificationID {
			s.notifications[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return models.ErrNotificationNotFound
}

// fakePresence records presence mirror calls
type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
	calls  []string
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[string]bool)}
}

func (p *fakePresence) SetUserOnline(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = true
	p.calls = append(p.calls, "online:"+userID)
	return nil
}

func (p *fakePresence) SetUserOffline(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
	p.calls = append(p.calls, "offline:"+userID)
	return nil
}

func (p *fakePresence) isOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePresence) getCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestHub creates a hub backed by an in-memory store
func createTestHub(t *testing.T, opts ...Option) (*Hub, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return NewHub(store, opts...), store
}

// connectUser registers a mock connection for the user and clears the
// frames delivered during connect
func connectUser(t *testing.T, hub *Hub, connID, userID string) *mockConn {
	t.Helper()
	conn := newMockConn(connID, userID)
	if err := hub.Connect(conn); err != nil {
		t.Fatalf("connect %s: %v", connID, err)
	}
	conn.reset()
	return conn
}

func inbound(t *testing.T, event EventType, data any) *InboundMessage {
	t.Helper()
	msg := &InboundMessage{Type: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		msg.Data = raw
	}
	return msg
}
