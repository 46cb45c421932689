package gatewaycore

import (
	"regexp"
	"testing"

	smpp "github.com/telcosim/ussd-smpp-fabric"
	"github.com/telcosim/ussd-smpp-fabric/internal/config"
	"github.com/telcosim/ussd-smpp-fabric/internal/mock"
	"github.com/telcosim/ussd-smpp-fabric/internal/routing"
)

func TestDispositionPolicyDrawDistribution(t *testing.T) {
	p := dispositionPolicy{successPct: 70, failurePct: 20}
	const n = 10000
	var success, failure, none int
	for i := 0; i < n; i++ {
		switch p.draw() {
		case Success:
			success++
		case Failure:
			failure++
		case NoResponse:
			none++
		}
	}
	if success+failure+none != n {
		t.Fatalf("expected every draw to land in exactly one bucket, got %d+%d+%d", success, failure, none)
	}
	// ±3 standard deviations around a binomial(n, p) draw.
	within := func(count int, pct float64) bool {
		mean := float64(n) * pct / 100
		stddev := sqrtApprox(mean * (1 - pct/100))
		return float64(count) > mean-3*stddev && float64(count) < mean+3*stddev
	}
	if !within(success, 70) {
		t.Errorf("success count %d outside expected range around 70%% of %d draws", success, n)
	}
	if !within(failure, 20) {
		t.Errorf("failure count %d outside expected range around 20%% of %d draws", failure, n)
	}
	if !within(none, 10) {
		t.Errorf("no-response count %d outside expected range around 10%% of %d draws", none, n)
	}
}

func sqrtApprox(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func TestDispositionPolicyAllSuccess(t *testing.T) {
	p := dispositionPolicy{successPct: 100, failurePct: 0}
	for i := 0; i < 100; i++ {
		if p.draw() != Success {
			t.Fatal("expected every draw to be Success when successPct is 100")
		}
	}
}

func TestNewCoreWiresInterpreterAndEmptyTable(t *testing.T) {
	cfg := config.GatewayConfig{
		Ussd: config.UssdConfig{
			ServiceCodes: []string{"*123#"},
		},
	}
	core := NewCore(cfg, nil)
	if core.Table().Len() != 0 {
		t.Fatal("expected a freshly built Core to have an empty routing table")
	}
	if err := core.Forward("1234567890", "*123#"); err == nil {
		t.Fatal("expected Forward to fail when no forwarding connection is bound")
	}
}

func TestOnSessionStateRemovesClosedConnection(t *testing.T) {
	cfg := config.GatewayConfig{}
	core := NewCore(cfg, nil)

	sess := smpp.NewSession(mock.NewConn(), smpp.SessionConf{ID: "sess-1"})
	defer sess.Close()
	conn := routing.NewConnection(sess, "HANDLER1", routing.Role{CanReceiveForwards: true})
	core.Table().Add(conn)

	if core.Table().Len() != 1 {
		t.Fatal("expected the connection to be registered")
	}
	core.OnSessionState("sess-1", "HANDLER1", smpp.StateClosed)
	if core.Table().Len() != 0 {
		t.Fatal("expected OnSessionState to prune the connection on StateClosed")
	}
}

func TestOnSessionStateIgnoresNonClosedTransitions(t *testing.T) {
	cfg := config.GatewayConfig{}
	core := NewCore(cfg, nil)

	sess := smpp.NewSession(mock.NewConn(), smpp.SessionConf{ID: "sess-2"})
	defer sess.Close()
	conn := routing.NewConnection(sess, "HANDLER1", routing.Role{CanReceiveForwards: true})
	core.Table().Add(conn)

	core.OnSessionState("sess-2", "HANDLER1", smpp.StateBoundTRx)
	if core.Table().Len() != 1 {
		t.Fatal("expected a non-closed transition to leave the connection in place")
	}
}

func TestNextMessageIDFormat(t *testing.T) {
	core := NewCore(config.GatewayConfig{}, nil)
	re := regexp.MustCompile(`^USSD\d{10,}\d{4}$`)
	id := core.nextMessageID()
	if !re.MatchString(id) {
		t.Fatalf("expected message id to match USSD<unix><4-digit counter>, got %q", id)
	}
}

func TestNextSessionIDFormat(t *testing.T) {
	core := NewCore(config.GatewayConfig{}, nil)
	core.mu.Lock()
	id := core.nextSessionIDLocked()
	core.mu.Unlock()
	re := regexp.MustCompile(`^SESS\d+$`)
	if !re.MatchString(id) {
		t.Fatalf("expected session id to match SESS<unix>, got %q", id)
	}
}

func TestSessionForReusesSessionPerMSISDN(t *testing.T) {
	core := NewCore(config.GatewayConfig{}, nil)
	a := core.sessionFor("1234567890")
	b := core.sessionFor("1234567890")
	if a != b {
		t.Fatal("expected repeated lookups for the same MSISDN to return the same session")
	}
	c := core.sessionFor("9999999999")
	if a == c {
		t.Fatal("expected a different MSISDN to get its own session")
	}
}
