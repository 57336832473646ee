package relay

import (
	"fmt"

	"github.com/google/uuid"
)

// connection is the registry's record of one open socket.
type connection struct {
	id     ConnectionID
	role   Role
	sender Sender
}

// Registry tracks the role and identity of every open connection and
// answers "which connections match role predicate P" for fan-out.
//
// The Registry is not internally locked: the Core serializes all access
// behind its handler mutex, so no two operations ever run concurrently.
type Registry struct {
	conns  map[ConnectionID]*connection
	logger Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		conns:  make(map[ConnectionID]*connection),
		logger: logger,
	}
}

// Add registers a new unclassified connection and returns its handle.
func (r *Registry) Add(sender Sender) ConnectionID {
	id := ConnectionID("con-" + uuid.NewString()[:8])
	r.conns[id] = &connection{
		id:     id,
		role:   Unclassified(),
		sender: sender,
	}
	r.logger.Debug("connection registered", "connection_id", id, "connections", len(r.conns))
	return id
}

// Classify sets the connection's role from an inbound registration message.
//
// Re-declaring the same role is a no-op. Declaring a different role on an
// already classified connection is rejected with ErrRoleConflict: it
// indicates protocol misuse, not a safety issue, so the caller logs a
// warning and carries on.
func (r *Registry) Classify(id ConnectionID, role Role) error {
	conn, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}

	if conn.role == role {
		return nil
	}
	if conn.role.Class != RoleUnclassified {
		return fmt.Errorf("%w: %s is %s, declared %s", ErrRoleConflict, id, conn.role, role)
	}

	conn.role = role
	r.logger.Debug("connection classified", "connection_id", id, "role", role.String())
	return nil
}

// RoleOf returns the connection's current role, or Unclassified if the
// connection is unknown or has not yet registered.
func (r *Registry) RoleOf(id ConnectionID) Role {
	if conn, ok := r.conns[id]; ok {
		return conn.role
	}
	return Unclassified()
}

// Remove forgets the connection and returns the role it held. Lookups by
// this id afterwards report not found.
func (r *Registry) Remove(id ConnectionID) (Role, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return Unclassified(), false
	}
	delete(r.conns, id)
	r.logger.Debug("connection removed", "connection_id", id, "role", conn.role.String(), "connections", len(r.conns))
	return conn.role, true
}

// Each invokes fn for every connection whose role satisfies the predicate.
func (r *Registry) Each(pred RolePredicate, fn func(id ConnectionID, sender Sender)) {
	for _, conn := range r.conns {
		if pred(conn.role) {
			fn(conn.id, conn.sender)
		}
	}
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	return len(r.conns)
}
