// Package smpp implements the subset of SMPP protocol v3.4 this fabric
// speaks: bind handshake, SUBMIT_SM/DELIVER_SM and their responses,
// UNBIND, ENQUIRE_LINK and GENERIC_NACK.
//
// A naked session can be created with:
//
//	sess := smpp.NewSession(conn, conf)
//
// but it's more convenient to dial and bind in one step:
//
//	sess, err := smpp.BindTRx(sessConf, bindConf)
//
// Once bound, a session sends PDUs to the bound peer and waits for the
// correlated response:
//
//	sm := &pdu.SubmitSm{
//	    SourceAddr:      "1234",
//	    DestinationAddr: "9876543210",
//	    ShortMessage:    "*123#",
//	}
//	resp, err := sess.Send(ctx, sm)
//
// A session that is no longer used must be closed:
//
//	sess.Close()
//
// Incoming requests are dispatched to a Handler configured on the
// session, similarly to http.Handler from net/http:
//
//	conf := smpp.SessionConf{
//	    Handler: smpp.HandlerFunc(func(ctx *smpp.Context) {
//	        switch ctx.CommandID() {
//	        case pdu.UnbindID:
//	            ubd, _ := ctx.Unbind()
//	            ctx.Respond(ubd.Response(), pdu.StatusOK)
//	        }
//	    }),
//	}
package smpp

import (
	"context"
	"net"
	"time"

	"github.com/telcosim/ussd-smpp-fabric/pdu"
)

const (
	// Version of the supported SMPP Protocol. Only 3.4 is supported.
	Version = 0x34
	// SequenceStart is the starting reference for sequence number.
	SequenceStart = 0x00000001
	// SequenceEnd is the sequence number upper boundary.
	SequenceEnd = 0x7FFFFFFF
)

// BindConf is the configuration for binding to an SMPP server.
type BindConf struct {
	// Bind will be attempted to this addr.
	Addr string
	// Mandatory fields for the bind PDU.
	SystemID   string
	Password   string
	SystemType string
	AddrTon    int
	AddrNpi    int
	AddrRange  string
}

func bind(req pdu.PDU, sc SessionConf, bc BindConf) (*Session, error) {
	conn, err := net.Dial("tcp", bc.Addr)
	if err != nil {
		return nil, err
	}
	sess := NewSession(conn, sc)
	timeout := sc.WindowTimeout
	if timeout == 0 {
		timeout = time.Second * 5
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err = sess.Send(ctx, req)
	if err != nil {
		return sess, err
	}
	return sess, nil
}

// BindTx binds a transmitter session.
func BindTx(sc SessionConf, bc BindConf) (*Session, error) {
	return bind(&pdu.BindTx{
		SystemID:         bc.SystemID,
		Password:         bc.Password,
		SystemType:       bc.SystemType,
		InterfaceVersion: Version,
		AddrTon:          bc.AddrTon,
		AddrNpi:          bc.AddrNpi,
		AddressRange:     bc.AddrRange,
	}, sc, bc)
}

// BindRx binds a receiver session.
func BindRx(sc SessionConf, bc BindConf) (*Session, error) {
	return bind(&pdu.BindRx{
		SystemID:         bc.SystemID,
		Password:         bc.Password,
		SystemType:       bc.SystemType,
		InterfaceVersion: Version,
		AddrTon:          bc.AddrTon,
		AddrNpi:          bc.AddrNpi,
		AddressRange:     bc.AddrRange,
	}, sc, bc)
}

// BindTRx binds a transceiver session. Every binary in this fabric other
// than the gateway itself binds as a transceiver so it can both submit
// and receive on the same connection.
func BindTRx(sc SessionConf, bc BindConf) (*Session, error) {
	return bind(&pdu.BindTRx{
		SystemID:         bc.SystemID,
		Password:         bc.Password,
		SystemType:       bc.SystemType,
		InterfaceVersion: Version,
		AddrTon:          bc.AddrTon,
		AddrNpi:          bc.AddrNpi,
		AddressRange:     bc.AddrRange,
	}, sc, bc)
}

// Unbind initiates session unbinding and closes the session. If there was
// an error sending the unbind request, the session is closed anyway.
func Unbind(ctx context.Context, sess *Session) error {
	defer sess.Close()
	_, err := sess.Send(ctx, pdu.Unbind{})
	return err
}

// SendEnquireLink is a helper function for sending an EnquireLink PDU and
// waiting for its response.
func SendEnquireLink(ctx context.Context, sess *Session, p *pdu.EnquireLink) (*pdu.EnquireLinkResp, error) {
	resp, err := sess.Send(ctx, p)
	var tresp *pdu.EnquireLinkResp
	if resp != nil {
		tresp = resp.(*pdu.EnquireLinkResp)
	}
	return tresp, err
}
