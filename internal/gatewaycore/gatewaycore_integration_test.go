package gatewaycore_test

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	smpp "github.com/telcosim/ussd-smpp-fabric"
	"github.com/telcosim/ussd-smpp-fabric/internal/config"
	"github.com/telcosim/ussd-smpp-fabric/internal/gatewaycore"
	"github.com/telcosim/ussd-smpp-fabric/pdu"
)

// peerHandler is a minimal ESME-side smpp.Handler used to stand in for
// the user-client/handler binaries in these in-process end-to-end tests:
// it acks enquire_link/unbind, and hands any DELIVER_SM or SUBMIT_SM it
// receives to a channel for the test to inspect.
type peerHandler struct {
	deliverSm chan *pdu.DeliverSm
	submitSm  chan *pdu.SubmitSm
	replyText string
}

func newPeerHandler() *peerHandler {
	return &peerHandler{
		deliverSm: make(chan *pdu.DeliverSm, 4),
		submitSm:  make(chan *pdu.SubmitSm, 4),
	}
}

func (p *peerHandler) ServeSMPP(ctx *smpp.Context) {
	switch ctx.CommandID() {
	case pdu.DeliverSmID:
		dsm, err := ctx.DeliverSm()
		if err != nil {
			return
		}
		ctx.Respond(dsm.Response(""), pdu.StatusOK)
		p.deliverSm <- dsm
	case pdu.SubmitSmID:
		sm, err := ctx.SubmitSm()
		if err != nil {
			return
		}
		ctx.Respond(sm.Response("1"), pdu.StatusOK)
		p.submitSm <- sm
		if p.replyText != "" {
			go func() {
				dsm := &pdu.DeliverSm{
					SourceAddrTon:   0,
					SourceAddrNpi:   0,
					SourceAddr:      "HANDLER",
					DestAddrTon:     1,
					DestAddrNpi:     1,
					DestinationAddr: sm.SourceAddr,
					EsmClass:        pdu.ParseEsmClass(pdu.UssdEsmClass),
					ShortMessage:    p.replyText,
				}
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				ctx.Session().Send(sctx, dsm)
			}()
		}
	case pdu.EnquireLinkID:
		el, err := ctx.EnquireLink()
		if err == nil {
			ctx.Respond(el.Response(), pdu.StatusOK)
		}
	case pdu.UnbindID:
		ub, err := ctx.Unbind()
		if err == nil {
			ctx.Respond(ub.Response(), pdu.StatusOK)
		}
		ctx.CloseSession()
	default:
		ctx.Respond(&pdu.GenericNack{}, pdu.StatusSysErr)
	}
}

// dialCore wires a net.Pipe between a gateway-side Session bound to core
// and an ESME-side Session driven by handler, both started as live
// goroutines, mirroring exactly how the gateway/handler/user-client
// binaries connect in production minus the TCP transport and CLI/config
// loading.
func dialCore(t *testing.T, core *gatewaycore.Core, handler smpp.Handler) *smpp.Session {
	t.Helper()
	gwSide, peerSide := net.Pipe()
	gwSess := smpp.NewSession(gwSide, smpp.SessionConf{
		Type:         smpp.SMSC,
		Handler:      core,
		SessionState: core.OnSessionState,
		Sequencer:    pdu.NewSequencer(1),
	})
	t.Cleanup(func() { gwSess.Close() })
	peerSess := smpp.NewSession(peerSide, smpp.SessionConf{
		Type:      smpp.ESME,
		Handler:   handler,
		Sequencer: pdu.NewSequencer(1),
	})
	t.Cleanup(func() { peerSess.Close() })
	return peerSess
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Smpp: config.SmppConfig{SystemID: "USSDGateway"},
		Ussd: config.UssdConfig{
			ServiceCodes: []string{"*123#"},
			Menu: config.MenuText{
				WelcomeMessage: "Welcome to MyTelecom USSD Service",
				MainMenu:       []string{"1. Balance Inquiry", "2. Data Packages", "3. Customer Service", "0. Exit"},
			},
			Responses: config.ResponsesConfig{
				BalanceMessage: "Your current balance is $25.50\nYour data balance is 2.5GB",
				InvalidCode:    "Invalid USSD code. Please try again.",
				InvalidOption:  "Invalid option. Please try again.",
				GoodbyeMessage: "Thank you for using MyTelecom USSD Service. Goodbye!",
			},
			DataPackages: config.DataPackagesConfig{
				Packages: []config.DataPackage{
					{Name: "1GB Package", Price: 10.0, Data: "1GB"},
				},
			},
		},
		ClientSimulator: config.ClientSimulatorConfig{
			UserClients:       []string{"USSDMobileUser"},
			ForwardingClients: []string{"ForwardingClient"},
		},
		ResponsePercentage: config.ResponsePercentageConfig{
			SuccessPercentage: 100,
			FailureErrorCode:  0x00000008,
		},
	}
}

func bind(t *testing.T, sess *smpp.Session, systemID, password string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := sess.Send(ctx, &pdu.BindTRx{SystemID: systemID, Password: password})
	if err != nil {
		t.Fatalf("bind %s failed: %+v", systemID, err)
	}
	if resp.CommandID() != pdu.BindTransceiverRespID {
		t.Fatalf("expected BindTransceiverRespID, got %v", resp.CommandID())
	}
}

// TestScenario1BuiltInServiceCode exercises spec.md §8 scenario 1: a user
// binds, dials the built-in service code, and receives the welcome menu
// back as a DELIVER_SM.
func TestScenario1BuiltInServiceCode(t *testing.T) {
	core := gatewaycore.NewCore(testGatewayConfig(), nil)
	user := newPeerHandler()
	userSess := dialCore(t, core, user)

	bind(t, userSess, "USSDMobileUser", "mobile123")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := userSess.Send(ctx, &pdu.SubmitSm{SourceAddr: "1234567890", ShortMessage: "*123#"})
	if err != nil {
		t.Fatalf("submit_sm failed: %+v", err)
	}
	if resp.CommandID() != pdu.SubmitSmRespID {
		t.Fatalf("expected SubmitSmRespID, got %v", resp.CommandID())
	}

	select {
	case dsm := <-user.deliverSm:
		if !strings.HasPrefix(dsm.ShortMessage, "Welcome to MyTelecom USSD Service\n1. Balance Inquiry") {
			t.Fatalf("unexpected welcome reply: %q", dsm.ShortMessage)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the welcome-menu deliver_sm")
	}
}

// TestScenario2MainMenuBalanceInquiry exercises scenario 2: from
// MainMenu, selecting "1" returns the configured balance text.
func TestScenario2MainMenuBalanceInquiry(t *testing.T) {
	core := gatewaycore.NewCore(testGatewayConfig(), nil)
	user := newPeerHandler()
	userSess := dialCore(t, core, user)
	bind(t, userSess, "USSDMobileUser", "mobile123")

	send := func(text string) *pdu.DeliverSm {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := userSess.Send(ctx, &pdu.SubmitSm{SourceAddr: "1234567890", ShortMessage: text}); err != nil {
			t.Fatalf("submit_sm %q failed: %+v", text, err)
		}
		select {
		case dsm := <-user.deliverSm:
			return dsm
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for reply to %q", text)
			return nil
		}
	}

	send("*123#")
	dsm := send("1")
	want := "Your current balance is $25.50\nYour data balance is 2.5GB\nPress 0 to return to main menu"
	if dsm.ShortMessage != want {
		t.Fatalf("expected balance reply %q, got %q", want, dsm.ShortMessage)
	}
}

// TestScenario4ForwardingRoundTrip exercises scenario 4: a handler is
// bound, the gateway forwards an unrecognized code, the handler answers,
// and the gateway relays that answer back to the user with the
// subscriber MSISDN as destination_addr.
func TestScenario4ForwardingRoundTrip(t *testing.T) {
	core := gatewaycore.NewCore(testGatewayConfig(), nil)

	handler := newPeerHandler()
	handler.replyText = "Account balance: $50.00"
	handlerSess := dialCore(t, core, handler)
	bind(t, handlerSess, "ForwardingClient", "forward123")

	user := newPeerHandler()
	userSess := dialCore(t, core, user)
	bind(t, userSess, "USSDMobileUser", "mobile123")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := userSess.Send(ctx, &pdu.SubmitSm{SourceAddr: "1234567890", ShortMessage: "*100#"}); err != nil {
		t.Fatalf("submit_sm failed: %+v", err)
	}

	select {
	case sm := <-handler.submitSm:
		if sm.DestinationAddr != "FORWARD" || sm.ShortMessage != "*100#" {
			t.Fatalf("unexpected forwarded submit_sm: %+v", sm)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the forwarded submit_sm")
	}

	select {
	case dsm := <-user.deliverSm:
		if dsm.DestinationAddr != "1234567890" {
			t.Fatalf("expected destination_addr to carry the subscriber MSISDN, got %q", dsm.DestinationAddr)
		}
		if dsm.ShortMessage != "Account balance: $50.00" {
			t.Fatalf("expected the handler's reply text relayed verbatim, got %q", dsm.ShortMessage)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the relayed deliver_sm")
	}
}

// TestScenario5AllFailureDisposition exercises scenario 5: with
// disposition configured success=0/failure=100, every submit_sm yields
// the configured failure status and no deliver_sm ever arrives.
func TestScenario5AllFailureDisposition(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.ResponsePercentage = config.ResponsePercentageConfig{
		SuccessPercentage: 0,
		FailurePercentage: 100,
		FailureErrorCode:  0x00000008,
	}
	core := gatewaycore.NewCore(cfg, nil)
	user := newPeerHandler()
	userSess := dialCore(t, core, user)
	bind(t, userSess, "USSDMobileUser", "mobile123")

	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		resp, err := userSess.Send(ctx, &pdu.SubmitSm{SourceAddr: "1234567890", ShortMessage: "*123#"})
		cancel()
		if err == nil {
			t.Fatalf("expected submit_sm #%d to fail under a 100%% failure disposition, got %+v", i, resp)
		}
	}

	select {
	case dsm := <-user.deliverSm:
		t.Fatalf("expected no deliver_sm under a 100%% failure disposition, got %q", dsm.ShortMessage)
	case <-time.After(100 * time.Millisecond):
	}
}
