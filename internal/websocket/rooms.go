package websocket

import "strings"

// RoomID names a multicast group. The ID space is partitioned by prefix.
type RoomID string

// RoomKind is the prefix part of a RoomID
type RoomKind string

const (
	RoomKindUser         RoomKind = "user"
	RoomKindTeam         RoomKind = "team"
	RoomKindConversation RoomKind = "conversation"
)

func UserRoom(userID string) RoomID {
	return RoomID(string(RoomKindUser) + ":" + userID)
}

func TeamRoom(teamID string) RoomID {
	return RoomID(string(RoomKindTeam) + ":" + teamID)
}

func ConversationRoom(conversationID string) RoomID {
	return RoomID(string(RoomKindConversation) + ":" + conversationID)
}

// Parse splits a room into its kind and ID. ok is false for IDs without a known prefix.
func (r RoomID) Parse() (kind RoomKind, id string, ok bool) {
	prefix, rest, found := strings.Cut(string(r), ":")
	if !found || rest == "" {
		return "", "", false
	}
	switch RoomKind(prefix) {
	case RoomKindUser, RoomKindTeam, RoomKindConversation:
		return RoomKind(prefix), rest, true
	}
	return "", "", false
}

// RoomTracker maps users to the rooms their session has joined, with a
// reverse index for room fan-out.
//
// RoomTracker is not safe for concurrent use; the Hub serializes access.
type RoomTracker struct {
	userRooms   map[string]map[RoomID]struct{}
	roomMembers map[RoomID]map[string]struct{}
}

func NewRoomTracker() *RoomTracker {
	return &RoomTracker{
		userRooms:   make(map[string]map[RoomID]struct{}),
		roomMembers: make(map[RoomID]map[string]struct{}),
	}
}

// Join adds the user to the room and reports whether membership changed
func (rt *RoomTracker) Join(userID string, room RoomID) bool {
	rooms, ok := rt.userRooms[userID]
	if !ok {
		rooms = make(map[RoomID]struct{})
		rt.userRooms[userID] = rooms
	}
	if _, joined := rooms[room]; joined {
		return false
	}
	rooms[room] = struct{}{}

	members, ok := rt.roomMembers[room]
	if !ok {
		members = make(map[string]struct{})
		rt.roomMembers[room] = members
	}
	members[userID] = struct{}{}
	return true
}

// Leave removes the user from the room. The personal room cannot be left on
// its own; it is only removed by LeaveAll.
func (rt *RoomTracker) Leave(userID string, room RoomID) bool {
	if room == UserRoom(userID) {
		return false
	}
	return rt.remove(userID, room)
}

func (rt *RoomTracker) remove(userID string, room RoomID) bool {
	rooms, ok := rt.userRooms[userID]
	if !ok {
		return false
	}
	if _, joined := rooms[room]; !joined {
		return false
	}
	delete(rooms, room)
	if len(rooms) == 0 {
		delete(rt.userRooms, userID)
	}

	if members, ok := rt.roomMembers[room]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(rt.roomMembers, room)
		}
	}
	return true
}

// RoomsOf returns the rooms the user has joined
func (rt *RoomTracker) RoomsOf(userID string) []RoomID {
	rooms := rt.userRooms[userID]
	result := make([]RoomID, 0, len(rooms))
	for room := range rooms {
		result = append(result, room)
	}
	return result
}

func (rt *RoomTracker) IsMember(userID string, room RoomID) bool {
	_, ok := rt.userRooms[userID][room]
	return ok
}

// Members returns the users currently joined to the room
func (rt *RoomTracker) Members(room RoomID) []string {
	members := rt.roomMembers[room]
	result := make([]string, 0, len(members))
	for userID := range members {
		result = append(result, userID)
	}
	return result
}

// LeaveAll removes every membership of the user and returns the rooms that existed
func (rt *RoomTracker) LeaveAll(userID string) []RoomID {
	rooms := rt.RoomsOf(userID)
	for _, room := range rooms {
		rt.remove(userID, room)
	}
	return rooms
}
