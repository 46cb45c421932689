// Package routing implements the gateway's routing table: a system_id →
// Connection map with role-based first-match lookup, grounded on
// original_source/ussd_smpp_simulator/src/main.rs's ConnectionManager
// (add_connection/remove_connection/get_forwarding_connection/
// get_user_connection).
package routing

import (
	"sync"
	"time"

	"github.com/google/uuid"

	smpp "github.com/telcosim/ussd-smpp-fabric"
)

// Role flags are derived once at bind time from the configured
// forwarding_clients/user_clients lists and never change for the
// lifetime of the connection.
type Role struct {
	IsUserClient       bool
	CanReceiveForwards bool
}

// Classify derives Role from a bound peer's system_id against the
// configured lists. Per spec.md §9's open-question resolution, user-client
// status wins when a system_id appears in both lists.
func Classify(systemID string, userClients, forwardingClients []string) Role {
	isUser := contains(userClients, systemID)
	canForward := contains(forwardingClients, systemID)
	return Role{
		IsUserClient:       isUser,
		CanReceiveForwards: canForward && !isUser,
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Connection is a bound peer tracked by the routing table. ID is a
// connection-scoped uuid used for logging/correlation; SessionID is the
// engine's own session ID and is what the table is actually keyed by,
// since that's the only identifier the SessionState hook hands back on
// disconnect.
type Connection struct {
	ID         string
	SessionID  string
	SystemID   string
	Session    *smpp.Session
	Role       Role
	BoundAt    time.Time
	RemoteAddr string
}

// NewConnection wraps sess with role and bookkeeping fields, generating a
// fresh connection ID.
func NewConnection(sess *smpp.Session, systemID string, role Role) *Connection {
	return &Connection{
		ID:         uuid.NewString(),
		SessionID:  sess.ID(),
		SystemID:   systemID,
		Session:    sess,
		Role:       role,
		BoundAt:    time.Now(),
		RemoteAddr: sess.String(),
	}
}

// Table is the gateway's shared routing table: system_id → Connection.
// Reads and writes are both short-lived; callers must release the table
// lock before any blocking I/O, since a reader may be writing a DELIVER_SM
// onto a connection's stream from a different goroutine entirely.
type Table struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	return &Table{byID: make(map[string]*Connection)}
}

// Add inserts or replaces the entry for conn.SessionID.
func (t *Table) Add(conn *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[conn.SessionID] = conn
}

// Remove deletes the connection with the given session id, if present.
func (t *Table) Remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, sessionID)
}

// UserConnection returns the first bound connection with IsUserClient set.
func (t *Table) UserConnection() (*Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.byID {
		if c.Role.IsUserClient {
			return c, true
		}
	}
	return nil, false
}

// ForwardingConnection returns the first bound connection with
// CanReceiveForwards set.
func (t *Table) ForwardingConnection() (*Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.byID {
		if c.Role.CanReceiveForwards {
			return c, true
		}
	}
	return nil, false
}

// Len reports the number of tracked connections, for diagnostics.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
