package websocket

import "time"

// MaxQueuedEvents is the per-user cap of the offline queue. Enqueueing past
// the cap evicts the oldest event.
const MaxQueuedEvents = 20

// QueuedEvent is an event that could not be delivered because its target had
// no live connection.
type QueuedEvent struct {
	EventName  EventType
	Payload    any
	EnqueuedAt time.Time
}

// Message converts the queued event into an outbound frame stamped with the
// original enqueue time.
func (e QueuedEvent) Message() *Message {
	msg := NewMessage(e.EventName, e.Payload)
	msg.QueuedAt = e.EnqueuedAt.UnixMilli()
	return msg
}

type QueueStats struct {
	Users  int `json:"queuedUsers"`
	Events int `json:"queuedEvents"`
}

// OfflineQueue is a bounded, in-memory, per-user FIFO buffer. It is best
// effort: nothing survives a process restart.
//
// OfflineQueue is not safe for concurrent use; the Hub serializes access.
type OfflineQueue struct {
	events map[string][]QueuedEvent
	limit  int
	now    func() time.Time
}

func NewOfflineQueue() *OfflineQueue {
	return &OfflineQueue{
		events: make(map[string][]QueuedEvent),
		limit:  MaxQueuedEvents,
		now:    time.Now,
	}
}

// Enqueue appends the event and reports whether an older event was evicted to make room.
func (q *OfflineQueue) Enqueue(userID string, eventName EventType, payload any) (evicted bool) {
	events := append(q.events[userID], QueuedEvent{
		EventName:  eventName,
		Payload:    payload,
		EnqueuedAt: q.now(),
	})
	if len(events) > q.limit {
		// copy so the evicted head does not pin the backing array
		trimmed := make([]QueuedEvent, q.limit)
		copy(trimmed, events[len(events)-q.limit:])
		events = trimmed
		evicted = true
	}
	q.events[userID] = events
	return evicted
}

// Drain returns the user's events in enqueue order and clears the queue
func (q *OfflineQueue) Drain(userID string) []QueuedEvent {
	events := q.events[userID]
	delete(q.events, userID)
	return events
}

func (q *OfflineQueue) Len(userID string) int {
	return len(q.events[userID])
}

// Peek returns a copy of the queued events without draining them
func (q *OfflineQueue) Peek(userID string) []QueuedEvent {
	events := q.events[userID]
	result := make([]QueuedEvent, len(events))
	copy(result, events)
	return result
}

func (q *OfflineQueue) Stats() QueueStats {
	stats := QueueStats{Users: len(q.events)}
	for _, events := range q.events {
		stats.Events += len(events)
	}
	return stats
}
