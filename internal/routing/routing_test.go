package routing_test

import (
	"testing"

	smpp "github.com/telcosim/ussd-smpp-fabric"
	"github.com/telcosim/ussd-smpp-fabric/internal/mock"
	"github.com/telcosim/ussd-smpp-fabric/internal/routing"
)

func newTestSession(t *testing.T, id string) *smpp.Session {
	t.Helper()
	sess := smpp.NewSession(mock.NewConn(), smpp.SessionConf{ID: id})
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestClassifyUserClientWinsOverlap(t *testing.T) {
	role := routing.Classify("BOTH", []string{"BOTH"}, []string{"BOTH"})
	if !role.IsUserClient {
		t.Fatal("expected IsUserClient true")
	}
	if role.CanReceiveForwards {
		t.Fatal("expected CanReceiveForwards false when system_id is also a user client")
	}
}

func TestClassifyForwardingOnly(t *testing.T) {
	role := routing.Classify("HANDLER1", nil, []string{"HANDLER1"})
	if role.IsUserClient {
		t.Fatal("expected IsUserClient false")
	}
	if !role.CanReceiveForwards {
		t.Fatal("expected CanReceiveForwards true")
	}
}

func TestClassifyNeither(t *testing.T) {
	role := routing.Classify("STRANGER", []string{"USER1"}, []string{"HANDLER1"})
	if role.IsUserClient || role.CanReceiveForwards {
		t.Fatal("expected both flags false for an unlisted system_id")
	}
}

func TestTableAddLookupRemove(t *testing.T) {
	table := routing.NewTable()

	userSess := newTestSession(t, "sess-user")
	fwdSess := newTestSession(t, "sess-fwd")

	userConn := routing.NewConnection(userSess, "USER1", routing.Role{IsUserClient: true})
	fwdConn := routing.NewConnection(fwdSess, "HANDLER1", routing.Role{CanReceiveForwards: true})

	table.Add(userConn)
	table.Add(fwdConn)

	if table.Len() != 2 {
		t.Fatalf("expected 2 connections, got %d", table.Len())
	}

	got, ok := table.UserConnection()
	if !ok || got.SystemID != "USER1" {
		t.Fatalf("expected to find USER1 as user connection, got %+v ok=%v", got, ok)
	}

	got, ok = table.ForwardingConnection()
	if !ok || got.SystemID != "HANDLER1" {
		t.Fatalf("expected to find HANDLER1 as forwarding connection, got %+v ok=%v", got, ok)
	}

	table.Remove(userConn.SessionID)
	if table.Len() != 1 {
		t.Fatalf("expected 1 connection after removal, got %d", table.Len())
	}
	if _, ok := table.UserConnection(); ok {
		t.Fatal("expected no user connection after removal")
	}
}

func TestTableRemoveKeyedBySessionID(t *testing.T) {
	// The SessionState disconnect hook only ever hands back a bare session
	// ID, never the connection's own uuid, so Remove must be keyed the
	// same way Add is: by Connection.SessionID.
	table := routing.NewTable()
	sess := newTestSession(t, "sess-keyed")
	conn := routing.NewConnection(sess, "HANDLER1", routing.Role{CanReceiveForwards: true})
	table.Add(conn)

	table.Remove(conn.ID) // uuid, not the session ID: must be a no-op
	if table.Len() != 1 {
		t.Fatal("Remove keyed by the connection uuid must not evict the entry")
	}

	table.Remove(conn.SessionID)
	if table.Len() != 0 {
		t.Fatal("Remove keyed by SessionID must evict the entry")
	}
}

func TestTableEmptyLookups(t *testing.T) {
	table := routing.NewTable()
	if _, ok := table.UserConnection(); ok {
		t.Fatal("expected no user connection in an empty table")
	}
	if _, ok := table.ForwardingConnection(); ok {
		t.Fatal("expected no forwarding connection in an empty table")
	}
}
