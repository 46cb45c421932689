// Package gatewaycore wires the routing table, the built-in USSD dialog
// interpreter and the response-disposition policy together as the
// gateway's smpp.Handler, grounded on
// original_source/ussd_smpp_simulator/src/main.rs's UssdConnectionHandler
// (handle_bind, handle_ussd_submit_sm, process_ussd_request,
// forward_to_bound_client, handle_deliver_sm, send_ussd_response).
package gatewaycore

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	smpp "github.com/telcosim/ussd-smpp-fabric"
	"github.com/telcosim/ussd-smpp-fabric/internal/config"
	"github.com/telcosim/ussd-smpp-fabric/internal/routing"
	"github.com/telcosim/ussd-smpp-fabric/internal/ussd"
	"github.com/telcosim/ussd-smpp-fabric/pdu"
)

// forwardTimeout bounds how long a forwarded SUBMIT_SM or a relayed
// DELIVER_SM waits for its _RESP before giving up; the real USSD reply,
// if any, always arrives later as its own PDU.
const forwardTimeout = 10 * time.Second

// Disposition is the outcome of a single SUBMIT_SM's response draw.
type Disposition int

// The three dispositions a SUBMIT_SM can draw, per spec.md §4.4.
const (
	Success Disposition = iota
	Failure
	NoResponse
)

type dispositionPolicy struct {
	successPct float64
	failurePct float64
}

// draw buckets a uniform 0-100 draw against the configured percentages.
// Anything left over after success+failure falls to NoResponse.
func (p dispositionPolicy) draw() Disposition {
	r := rand.Float64() * 100
	if r < p.successPct {
		return Success
	}
	if r < p.successPct+p.failurePct {
		return Failure
	}
	return NoResponse
}

// Core is the gateway's smpp.Handler: it classifies binds into the
// routing table, answers SUBMIT_SMs per the disposition policy, drives
// the built-in USSD interpreter, forwards unhandled service codes to a
// bound handler connection, and relays a handler's DELIVER_SM reply back
// to the bound user connection.
type Core struct {
	cfg    config.GatewayConfig
	table  *routing.Table
	interp *ussd.Interpreter
	disp   dispositionPolicy
	logger smpp.Logger

	mu          sync.Mutex
	sessions    map[string]*ussd.Session
	msgCounter  uint32
	sessCounter uint32
}

// NewCore builds a Core over cfg. A nil logger falls back to
// smpp.DefaultLogger.
func NewCore(cfg config.GatewayConfig, logger smpp.Logger) *Core {
	if logger == nil {
		logger = smpp.DefaultLogger{}
	}
	c := &Core{
		cfg:      cfg,
		table:    routing.NewTable(),
		sessions: make(map[string]*ussd.Session),
		disp: dispositionPolicy{
			successPct: cfg.ResponsePercentage.SuccessPercentage,
			failurePct: cfg.ResponsePercentage.FailurePercentage,
		},
		logger: logger,
	}

	ussdCfg := ussd.Config{
		ServiceCodes:   cfg.Ussd.ServiceCodes,
		WelcomeMessage: cfg.Ussd.Menu.WelcomeMessage,
		MainMenu:       cfg.Ussd.Menu.MainMenu,
		BalanceMessage: cfg.Ussd.Responses.BalanceMessage,
		InvalidCode:    cfg.Ussd.Responses.InvalidCode,
		InvalidOption:  cfg.Ussd.Responses.InvalidOption,
		GoodbyeMessage: cfg.Ussd.Responses.GoodbyeMessage,
	}
	for _, p := range cfg.Ussd.DataPackages.Packages {
		ussdCfg.DataPackages = append(ussdCfg.DataPackages, ussd.DataPackage{
			Name:  p.Name,
			Price: p.Price,
			Data:  p.Data,
		})
	}
	c.interp = ussd.NewInterpreter(ussdCfg, c)
	return c
}

// Table exposes the routing table for diagnostics and for cmd/ussd-gateway
// to report connection counts.
func (c *Core) Table() *routing.Table {
	return c.table
}

// OnSessionState is wired as SessionConf.SessionState so a peer that
// drops off is pruned from the routing table; registration itself
// happens inline in handleBind, where the Context still has the
// session's identity and remote address available.
func (c *Core) OnSessionState(sessionID, systemID string, state smpp.SessionState) {
	if state == smpp.StateClosed {
		c.table.Remove(sessionID)
	}
}

// ServeSMPP implements smpp.Handler.
func (c *Core) ServeSMPP(ctx *smpp.Context) {
	switch ctx.CommandID() {
	case pdu.BindReceiverID, pdu.BindTransmitterID, pdu.BindTransceiverID:
		c.handleBind(ctx)
	case pdu.SubmitSmID:
		c.handleSubmitSm(ctx)
	case pdu.DeliverSmID:
		c.handleDeliverSm(ctx)
	case pdu.EnquireLinkID:
		c.handleEnquireLink(ctx)
	case pdu.UnbindID:
		c.handleUnbind(ctx)
	default:
		ctx.Respond(&pdu.GenericNack{}, pdu.StatusSysErr)
	}
}

func (c *Core) handleBind(ctx *smpp.Context) {
	var sysID, pwd string
	var resp pdu.PDU

	switch ctx.CommandID() {
	case pdu.BindReceiverID:
		req, err := ctx.BindRx()
		if err != nil {
			c.logger.ErrorF("gatewaycore: %+v", err)
			return
		}
		sysID, pwd = req.SystemID, req.Password
		resp = req.Response(c.cfg.Smpp.SystemID)
	case pdu.BindTransmitterID:
		req, err := ctx.BindTx()
		if err != nil {
			c.logger.ErrorF("gatewaycore: %+v", err)
			return
		}
		sysID, pwd = req.SystemID, req.Password
		resp = req.Response(c.cfg.Smpp.SystemID)
	case pdu.BindTransceiverID:
		req, err := ctx.BindTRx()
		if err != nil {
			c.logger.ErrorF("gatewaycore: %+v", err)
			return
		}
		sysID, pwd = req.SystemID, req.Password
		resp = req.Response(c.cfg.Smpp.SystemID)
	}

	status := pdu.StatusOK
	if sysID == "" || pwd == "" {
		status = pdu.StatusInvPaswd
	}
	if err := ctx.Respond(resp, status); err != nil {
		c.logger.ErrorF("gatewaycore: responding to bind: %+v", err)
		return
	}
	if status != pdu.StatusOK {
		c.logger.InfoF("gatewaycore: rejected bind from %q", sysID)
		return
	}

	role := routing.Classify(sysID, c.cfg.ClientSimulator.UserClients, c.cfg.ClientSimulator.ForwardingClients)
	conn := routing.NewConnection(ctx.Session(), sysID, role)
	c.table.Add(conn)
	c.logger.InfoF("gatewaycore: bound system_id=%s user_client=%t forwarding_client=%t",
		sysID, role.IsUserClient, role.CanReceiveForwards)
}

func (c *Core) handleSubmitSm(ctx *smpp.Context) {
	sm, err := ctx.SubmitSm()
	if err != nil {
		c.logger.ErrorF("gatewaycore: %+v", err)
		return
	}

	switch c.disp.draw() {
	case Failure:
		status := pdu.Status(c.cfg.ResponsePercentage.FailureErrorCode)
		if err := ctx.Respond(&pdu.SubmitSmResp{}, status); err != nil {
			c.logger.ErrorF("gatewaycore: responding submit_sm failure: %+v", err)
		}
		return
	case NoResponse:
		time.Sleep(time.Duration(c.cfg.ResponsePercentage.NoResponseDelayMs) * time.Millisecond)
		return
	}

	msgID := c.nextMessageID()
	if err := ctx.Respond(sm.Response(msgID), pdu.StatusOK); err != nil {
		c.logger.ErrorF("gatewaycore: responding submit_sm: %+v", err)
		return
	}

	msisdn := sm.SourceAddr
	ussdCode := sm.ShortMessage
	sess := c.sessionFor(msisdn)
	sess.ResetIfServiceCode(ussdCode)

	reply := c.interp.Process(sess, ussdCode)
	if reply == "" {
		c.logger.InfoF("gatewaycore: %s dialog forwarded, awaiting reply (state=%s)", msisdn, sess.State)
		return
	}
	if sess.State == ussd.Forwarded {
		return
	}
	time.Sleep(50 * time.Millisecond)
	c.sendUssdResponse(msisdn, reply)
}

func (c *Core) handleDeliverSm(ctx *smpp.Context) {
	dsm, err := ctx.DeliverSm()
	if err != nil {
		c.logger.ErrorF("gatewaycore: %+v", err)
		return
	}
	if err := ctx.Respond(dsm.Response(""), pdu.StatusOK); err != nil {
		c.logger.ErrorF("gatewaycore: responding deliver_sm: %+v", err)
		return
	}

	// A handler's return-path DELIVER_SM carries the target MSISDN in
	// destination_addr and its reply text in short_message, the inverted
	// convention original_source's handle_deliver_sm uses.
	c.sendUssdResponse(dsm.DestinationAddr, dsm.ShortMessage)
}

func (c *Core) handleEnquireLink(ctx *smpp.Context) {
	el, err := ctx.EnquireLink()
	if err != nil {
		c.logger.ErrorF("gatewaycore: %+v", err)
		return
	}
	if err := ctx.Respond(el.Response(), pdu.StatusOK); err != nil {
		c.logger.ErrorF("gatewaycore: responding enquire_link: %+v", err)
	}
}

func (c *Core) handleUnbind(ctx *smpp.Context) {
	ub, err := ctx.Unbind()
	if err != nil {
		c.logger.ErrorF("gatewaycore: %+v", err)
		return
	}
	if err := ctx.Respond(ub.Response(), pdu.StatusOK); err != nil {
		c.logger.ErrorF("gatewaycore: responding unbind: %+v", err)
	}
	ctx.CloseSession()
}

// Forward implements ussd.Forwarder: it hands a USSD request off to the
// first bound forwarding connection as a SUBMIT_SM with the "FORWARD"
// placeholder destination, per original_source's create_forward_submit_sm.
// The send happens in its own goroutine since the real reply, if any,
// arrives later as a separate DELIVER_SM rather than in this PDU's
// response.
func (c *Core) Forward(msisdn, ussdCode string) error {
	conn, ok := c.table.ForwardingConnection()
	if !ok {
		return errors.New("gatewaycore: no bound forwarding client available")
	}

	sm := &pdu.SubmitSm{
		ServiceType:     "USSD",
		SourceAddrTon:   1,
		SourceAddrNpi:   1,
		SourceAddr:      msisdn,
		DestinationAddr: "FORWARD",
		EsmClass:        pdu.ParseEsmClass(pdu.UssdEsmClass),
		ShortMessage:    ussdCode,
	}
	go func() {
		sctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		defer cancel()
		if _, err := conn.Session.Send(sctx, sm); err != nil {
			c.logger.ErrorF("gatewaycore: forwarding to %s: %+v", conn.SystemID, err)
		}
	}()
	return nil
}

// sendUssdResponse relays text to the first bound user connection as a
// DELIVER_SM, per original_source's send_ussd_response field layout.
func (c *Core) sendUssdResponse(msisdn, text string) {
	conn, ok := c.table.UserConnection()
	if !ok {
		c.logger.ErrorF("gatewaycore: no bound user connection for %s", msisdn)
		return
	}
	if len(text) > 255 {
		text = text[:255]
	}

	dsm := &pdu.DeliverSm{
		ServiceType:     "USSD",
		SourceAddrTon:   1,
		SourceAddrNpi:   1,
		SourceAddr:      c.cfg.Smpp.ServiceCenterAddr,
		DestAddrTon:     1,
		DestAddrNpi:     1,
		DestinationAddr: msisdn,
		EsmClass:        pdu.ParseEsmClass(pdu.UssdEsmClass),
		ShortMessage:    text,
	}
	go func() {
		sctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		defer cancel()
		if _, err := conn.Session.Send(sctx, dsm); err != nil {
			c.logger.ErrorF("gatewaycore: sending deliver_sm to %s: %+v", conn.SystemID, err)
		}
	}()
}

func (c *Core) sessionFor(msisdn string) *ussd.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[msisdn]
	if !ok {
		sess = ussd.NewSession(msisdn, c.nextSessionIDLocked())
		c.sessions[msisdn] = sess
	}
	return sess
}

// nextMessageID builds a message_id in the "USSD<unix_secs><counter>"
// shape original_source's generate_message_id uses, wrapping the 4-digit
// counter the way the Rust shared sequence counter does.
func (c *Core) nextMessageID() string {
	c.mu.Lock()
	c.msgCounter++
	n := c.msgCounter % 10000
	c.mu.Unlock()
	return fmt.Sprintf("USSD%d%04d", time.Now().Unix(), n)
}

// nextSessionIDLocked builds a gateway-side session id from
// original_source's generate_session_id "SESS<unix_secs>" shape, with a
// counter suffix appended so two subscribers whose sessions are created
// in the same second still get distinct ids. Callers must hold c.mu.
func (c *Core) nextSessionIDLocked() string {
	c.sessCounter++
	return fmt.Sprintf("SESS%d%04d", time.Now().Unix(), c.sessCounter%10000)
}
