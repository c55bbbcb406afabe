package websocket

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendToUserOfflineQueuesExactlyOnce(t *testing.T) {
	hub, _ := createTestHub(t)

	assert.False(t, hub.IsConnected("u1"))
	assert.False(t, hub.SendToUser("u1", "x", map[string]int{"a": 1}))

	queued := hub.QueuedEvents("u1")
	require.Len(t, queued, 1)
	assert.Equal(t, EventType("x"), queued[0].EventName)
	assert.Equal(t, map[string]int{"a": 1}, queued[0].Payload)
}

func TestSendToUserPreservesOrder(t *testing.T) {
	hub, _ := createTestHub(t)
	conn := connectUser(t, hub, "c1", "u1")

	for i := 0; i < 5; i++ {
		hub.SendToUser("u1", EventNewNotification, i)
	}

	msgs := conn.getMessages()
	require.Len(t, msgs, 5)
	for i, msg := range msgs {
		assert.Equal(t, i, msg.Data)
	}
}

func TestSendToUsersReturnsDeliveredSubset(t *testing.T) {
	hub, _ := createTestHub(t)
	online := connectUser(t, hub, "c1", "u1")

	delivered := hub.SendToUsers([]string{"u1", "u2"}, EventNewNotification, "n")

	assert.Equal(t, []string{"u1"}, delivered)
	assert.Len(t, online.getMessages(), 1)
	assert.Len(t, hub.QueuedEvents("u2"), 1)
}

func TestSendToRoom(t *testing.T) {
	hub, _ := createTestHub(t)
	a := connectUser(t, hub, "c1", "u1")
	b := connectUser(t, hub, "c2", "u2")
	c := connectUser(t, hub, "c3", "u3")
	joinTeam(t, hub, a, "7")
	joinTeam(t, hub, b, "7")
	a.reset()
	b.reset()

	hub.SendToRoom(TeamRoom("7"), "project_updated", nil)

	assert.Len(t, a.messagesOf("project_updated"), 1)
	assert.Len(t, b.messagesOf("project_updated"), 1)
	assert.Empty(t, c.getMessages())

	// empty room is a no-op
	hub.SendToRoom(TeamRoom("nobody"), "project_updated", nil)
	assert.Empty(t, hub.QueuedEvents("u3"))
}

func TestBroadcastAllExcludesUsers(t *testing.T) {
	hub, _ := createTestHub(t)
	excluded := connectUser(t, hub, "c1", "u1")
	phone := connectUser(t, hub, "c2", "u2")
	laptop := connectUser(t, hub, "c3", "u2")
	other := connectUser(t, hub, "c4", "u3")

	hub.BroadcastAll("y", nil, "u1")

	assert.Empty(t, excluded.getMessages())
	assert.Len(t, phone.messagesOf("y"), 1)
	assert.Len(t, laptop.messagesOf("y"), 1)
	assert.Len(t, other.messagesOf("y"), 1)
}

func TestBroadcastAllDoesNotQueue(t *testing.T) {
	hub, _ := createTestHub(t)
	hub.BroadcastAll("y", nil)
	assert.Equal(t, Stats{}, hub.Stats())
}

func TestNotifyUserUsesNewNotificationEvent(t *testing.T) {
	hub, _ := createTestHub(t)
	conn := connectUser(t, hub, "c1", "u1")

	assert.True(t, hub.NotifyUser("u1", map[string]string{"title": "hi"}))
	assert.Equal(t, []EventType{EventNewNotification}, conn.eventTypes())

	assert.False(t, hub.NotifyUser("u2", "queued"))
	assert.Equal(t, EventNewNotification, hub.QueuedEvents("u2")[0].EventName)
}

func TestDispatcherMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	hub, _ := createTestHub(t, WithMetrics(metrics))

	for i := 0; i < MaxQueuedEvents+2; i++ {
		hub.SendToUser("u1", EventNewNotification, i)
	}
	assert.Equal(t, float64(MaxQueuedEvents+2), testutil.ToFloat64(metrics.EventsQueued))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.EventsEvicted))

	connectUser(t, hub, "c1", "u1")
	assert.Equal(t, float64(MaxQueuedEvents), testutil.ToFloat64(metrics.EventsDelivered.WithLabelValues(EventNewNotification.String())))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ConnectedUsers))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.QueuedEvents))
}
