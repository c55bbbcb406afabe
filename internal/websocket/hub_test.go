package websocket

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRejectsMissingPrincipal(t *testing.T) {
	hub, _ := createTestHub(t)
	conn := newMockConn("c1", "")

	err := hub.Connect(conn)

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.True(t, conn.isClosed())
	assert.Empty(t, conn.getMessages())
	assert.Equal(t, Stats{}, hub.Stats())
}

func TestConnectSendsStatusAndJoinsPersonalRoom(t *testing.T) {
	hub, _ := createTestHub(t)
	conn := newMockConn("c1", "u1")

	require.NoError(t, hub.Connect(conn))

	msgs := conn.getMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, EventConnectionStatus, msgs[0].Type)
	assert.Equal(t, ConnectionStatusData{Connected: true, UserID: "u1"}, msgs[0].Data)

	assert.True(t, hub.IsConnected("u1"))
	assert.Equal(t, []RoomID{UserRoom("u1")}, hub.RoomsOf("u1"))
}

func TestOfflineUserEventsDrainedOnConnect(t *testing.T) {
	hub, _ := createTestHub(t)

	payload := map[string]int{"a": 1}
	assert.False(t, hub.SendToUser("u1", "x", payload))
	assert.False(t, hub.SendToUser("u1", "y", nil))

	queued := hub.QueuedEvents("u1")
	require.Len(t, queued, 2)
	assert.Equal(t, EventType("x"), queued[0].EventName)
	assert.Equal(t, payload, queued[0].Payload)

	conn := newMockConn("c1", "u1")
	require.NoError(t, hub.Connect(conn))

	assert.Equal(t, []EventType{"x", "y", EventConnectionStatus}, conn.eventTypes())
	msgs := conn.getMessages()
	assert.NotZero(t, msgs[0].QueuedAt)
	assert.Zero(t, msgs[2].QueuedAt)
	assert.Empty(t, hub.QueuedEvents("u1"))

	// the next event goes straight out
	assert.True(t, hub.SendToUser("u1", "z", nil))
	assert.Equal(t, EventType("z"), conn.getMessages()[3].Type)
}

func TestOfflineQueueOverflowThroughDispatcher(t *testing.T) {
	hub, _ := createTestHub(t)
	for i := 0; i < MaxQueuedEvents+5; i++ {
		hub.SendToUser("u1", EventNewNotification, i)
	}

	conn := newMockConn("c1", "u1")
	require.NoError(t, hub.Connect(conn))

	drained := conn.messagesOf(EventNewNotification)
	require.Len(t, drained, MaxQueuedEvents)
	assert.Equal(t, 5, drained[0].Data)
	assert.Equal(t, MaxQueuedEvents+4, drained[MaxQueuedEvents-1].Data)
}

func TestMultiDeviceDelivery(t *testing.T) {
	hub, _ := createTestHub(t)
	phone := connectUser(t, hub, "phone", "u1")
	laptop := connectUser(t, hub, "laptop", "u1")

	assert.Equal(t, 2, hub.ConnectionCount("u1"))

	assert.True(t, hub.SendToUser("u1", EventNewNotification, "hello"))

	assert.Len(t, phone.messagesOf(EventNewNotification), 1)
	assert.Len(t, laptop.messagesOf(EventNewNotification), 1)
}

func TestDisconnectOneOfTwoKeepsUserOnline(t *testing.T) {
	hub, _ := createTestHub(t)
	first := connectUser(t, hub, "c1", "u1")
	second := connectUser(t, hub, "c2", "u1")
	peer := connectUser(t, hub, "c3", "u2")

	joinTeam(t, hub, first, "7")
	joinTeam(t, hub, peer, "7")
	peer.reset()

	hub.Disconnect(first)

	assert.True(t, hub.IsConnected("u1"))
	assert.Empty(t, peer.messagesOf(EventTeamMemberOffline))
	assert.Contains(t, hub.RoomsOf("u1"), TeamRoom("7"))

	hub.Disconnect(second)
	assert.False(t, hub.IsConnected("u1"))
}

func TestLastDisconnectAnnouncesOfflineToTeams(t *testing.T) {
	hub, _ := createTestHub(t)
	u := connectUser(t, hub, "c1", "u1")
	peer := connectUser(t, hub, "c2", "u2")
	outsider := connectUser(t, hub, "c3", "u3")

	joinTeam(t, hub, u, "7")
	joinTeam(t, hub, peer, "7")
	peer.reset()

	hub.Disconnect(u)

	offline := peer.messagesOf(EventTeamMemberOffline)
	require.Len(t, offline, 1)
	assert.Equal(t, TeamMemberData{TeamID: "7", UserID: "u1"}, offline[0].Data)

	presence := peer.messagesOf(EventUserPresenceChange)
	require.Len(t, presence, 1)
	assert.Equal(t, PresenceChangeData{UserID: "u1", Status: StatusOffline}, presence[0].Data)

	assert.Equal(t, []EventType{EventTeamMemberOffline, EventUserPresenceChange}, peer.eventTypes())
	assert.Empty(t, outsider.getMessages())
	assert.Empty(t, hub.RoomsOf("u1"))
}

func TestDisconnectUnknownConnectionIsIgnored(t *testing.T) {
	hub, _ := createTestHub(t)
	connectUser(t, hub, "c1", "u1")

	hub.Disconnect(newMockConn("nope", "u1"))
	hub.Disconnect(newMockConn("c9", "ghost"))

	assert.Equal(t, Stats{Users: 1, Connections: 1}, hub.Stats())
}

func TestDisconnectTwiceAnnouncesOnce(t *testing.T) {
	hub, _ := createTestHub(t)
	u := connectUser(t, hub, "c1", "u1")
	peer := connectUser(t, hub, "c2", "u2")
	joinTeam(t, hub, u, "7")
	joinTeam(t, hub, peer, "7")
	peer.reset()

	hub.Disconnect(u)
	hub.Disconnect(u)

	assert.Len(t, peer.messagesOf(EventTeamMemberOffline), 1)
}

func TestSendToClosedConnectionFailsSilently(t *testing.T) {
	hub, _ := createTestHub(t)
	conn := connectUser(t, hub, "c1", "u1")
	conn.Close()

	// still registered until the transport reports the close
	assert.True(t, hub.SendToUser("u1", EventNewNotification, "x"))
	assert.Empty(t, conn.getMessages())
	assert.Empty(t, hub.QueuedEvents("u1"))
}

func TestPresenceObserverNotified(t *testing.T) {
	presence := newFakePresence()
	hub, _ := createTestHub(t, WithPresenceObserver(presence), WithHeartbeatInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	first := connectUser(t, hub, "c1", "u1")
	second := connectUser(t, hub, "c2", "u1")
	hub.Disconnect(first)
	hub.Disconnect(second)

	assert.Eventually(t, func() bool {
		return len(presence.getCalls()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"online:u1", "offline:u1"}, presence.getCalls())
}

func TestPresenceMirrorMatchesHubUnderReconnectRace(t *testing.T) {
	presence := newFakePresence()
	hub, _ := createTestHub(t, WithPresenceObserver(presence), WithHeartbeatInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	const users = 50
	first := make([]*mockConn, users)
	for i := range first {
		first[i] = connectUser(t, hub, fmt.Sprintf("a%d", i), fmt.Sprintf("u%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			hub.Disconnect(first[i])
		}(i)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, hub.Connect(newMockConn(fmt.Sprintf("b%d", i), fmt.Sprintf("u%d", i))))
		}(i)
	}
	wg.Wait()

	// observers apply updates in queue order, so once the marker's offline
	// lands every earlier transition has been applied
	marker := connectUser(t, hub, "m", "marker")
	hub.Disconnect(marker)
	require.Eventually(t, func() bool {
		calls := presence.getCalls()
		return len(calls) > 0 && calls[len(calls)-1] == "offline:marker"
	}, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("u%d", i)
		assert.Equal(t, hub.IsConnected(userID), presence.isOnline(userID), userID)
	}
}

func TestRunClosesConnectionsOnCancel(t *testing.T) {
	hub, _ := createTestHub(t, WithHeartbeatInterval(time.Hour))
	conn := connectUser(t, hub, "c1", "u1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, conn.isClosed())
}

func TestHeartbeatBroadcastsToAllConnections(t *testing.T) {
	hub, _ := createTestHub(t, WithHeartbeatInterval(20*time.Millisecond))
	a := connectUser(t, hub, "c1", "u1")
	b := connectUser(t, hub, "c2", "u2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	assert.Eventually(t, func() bool {
		return len(a.messagesOf(EventHeartbeat)) > 0 && len(b.messagesOf(EventHeartbeat)) > 0
	}, time.Second, 10*time.Millisecond)

	beat := a.messagesOf(EventHeartbeat)[0]
	assert.IsType(t, HeartbeatData{}, beat.Data)
}

func TestPresenceSnapshot(t *testing.T) {
	hub, _ := createTestHub(t)
	conn := connectUser(t, hub, "c1", "u1")
	connectUser(t, hub, "c2", "u1")
	joinTeam(t, hub, conn, "7")

	presence := hub.Presence("u1")
	assert.True(t, presence.Online)
	assert.Equal(t, 2, presence.Connections)
	assert.Equal(t, []RoomID{TeamRoom("7"), UserRoom("u1")}, presence.Rooms)

	assert.False(t, hub.Presence("ghost").Online)
	assert.Empty(t, hub.Presence("ghost").Rooms)
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	hub, _ := createTestHub(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newMockConn(fmt.Sprintf("c%d", i), "u1")
			if err := hub.Connect(conn); err != nil {
				return
			}
			hub.SendToUser("u1", EventNewNotification, i)
			hub.Disconnect(conn)
		}(i)
	}
	wg.Wait()

	assert.False(t, hub.IsConnected("u1"))
	assert.Equal(t, 0, hub.Stats().Connections)
}

func joinTeam(t *testing.T, hub *Hub, conn *mockConn, teamID string) {
	t.Helper()
	hub.HandleMessage(context.Background(), conn, inbound(t, EventJoinTeam, TeamData{TeamID: teamID}))
}
