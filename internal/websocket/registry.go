package websocket

// Conn is a single live transport session owned by the transport layer. The
// registry only stores references to it.
type Conn interface {
	ID() string
	UserID() string
	// Send pushes a message to exactly this connection. It must not block.
	Send(msg *Message) error
	Close() error
}

// RegistryStats is a point-in-time snapshot used for diagnostics
type RegistryStats struct {
	Users            int `json:"users"`
	TotalConnections int `json:"connections"`
}

// ConnectionRegistry maps a user ID to the set of live connections of that
// user. A user key exists if and only if its set is non-empty.
//
// ConnectionRegistry is not safe for concurrent use; the Hub serializes access.
type ConnectionRegistry struct {
	userConnections map[string]map[string]Conn
}

// NewConnectionRegistry creates an empty registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		userConnections: make(map[string]map[string]Conn),
	}
}

// Register adds conn to the user's set. Registering the same connection twice is a no-op.
func (r *ConnectionRegistry) Register(userID string, conn Conn) {
	conns, ok := r.userConnections[userID]
	if !ok {
		conns = make(map[string]Conn)
		r.userConnections[userID] = conns
	}
	conns[conn.ID()] = conn
}

// Deregister removes the connection. wasLast is true when the user has no
// connections left; found is false when the connection was not registered.
func (r *ConnectionRegistry) Deregister(userID, connID string) (wasLast, found bool) {
	conns, ok := r.userConnections[userID]
	if !ok {
		return false, false
	}
	if _, ok := conns[connID]; !ok {
		return false, false
	}

	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.userConnections, userID)
		return true, true
	}
	return false, true
}

func (r *ConnectionRegistry) IsConnected(userID string) bool {
	_, ok := r.userConnections[userID]
	return ok
}

// Has reports whether the given connection is registered for the user
func (r *ConnectionRegistry) Has(userID, connID string) bool {
	_, ok := r.userConnections[userID][connID]
	return ok
}

func (r *ConnectionRegistry) ConnectionCount(userID string) int {
	return len(r.userConnections[userID])
}

// Connections returns a copy of the user's live connections
func (r *ConnectionRegistry) Connections(userID string) []Conn {
	conns := r.userConnections[userID]
	result := make([]Conn, 0, len(conns))
	for _, conn := range conns {
		result = append(result, conn)
	}
	return result
}

// Users returns the IDs of all connected users
func (r *ConnectionRegistry) Users() []string {
	result := make([]string, 0, len(r.userConnections))
	for userID := range r.userConnections {
		result = append(result, userID)
	}
	return result
}

// All returns every live connection
func (r *ConnectionRegistry) All() []Conn {
	result := make([]Conn, 0, len(r.userConnections))
	for _, conns := range r.userConnections {
		for _, conn := range conns {
			result = append(result, conn)
		}
	}
	return result
}

func (r *ConnectionRegistry) Stats() RegistryStats {
	stats := RegistryStats{Users: len(r.userConnections)}
	for _, conns := range r.userConnections {
		stats.TotalConnections += len(conns)
	}
	return stats
}
