package pdu

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// PDU defines the interface implemented by every supported SMPP PDU body.
type PDU interface {
	CommandID() CommandID
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// EsmClass carries the special message attributes associated with a short
// message. Only the bits this fabric sets (USSD indication) are meaningful;
// the rest round-trip opaquely.
type EsmClass struct {
	Mode    int
	Type    int
	Feature int
}

// Byte converts EsmClass into a single byte for pdu encoding.
func (ec EsmClass) Byte() byte {
	out := byte(0)
	out |= byte(ec.Mode)
	out |= byte(ec.Type) << 2
	out |= byte(ec.Feature) << 6
	return out
}

// ParseEsmClass parses esm_class from its wire byte.
func ParseEsmClass(b byte) EsmClass {
	out := EsmClass{}
	out.Mode = int(b & 0x03)
	out.Type = int((b >> 2) & 0x0F)
	out.Feature = int(b >> 6)
	return out
}

// UssdEsmClass is the esm_class value the gateway stamps on every
// gateway-to-user DELIVER_SM to signal a USSD payload.
const UssdEsmClass = 0x40

// RegisteredDelivery requests an SMSC delivery receipt and/or SME
// originated acknowledgements. This fabric never sets it meaningfully but
// preserves the field for wire fidelity.
type RegisteredDelivery struct {
	Receipt           int
	SMEAck            int
	InterNotification int
}

// Byte converts RegisteredDelivery into a single byte for pdu encoding.
func (rd RegisteredDelivery) Byte() byte {
	out := byte(0)
	out |= byte(rd.Receipt)
	out |= byte(rd.SMEAck) << 2
	out |= byte(rd.InterNotification) << 4
	return out
}

// ParseRegisteredDelivery parses registered_delivery from its wire byte.
func ParseRegisteredDelivery(b byte) RegisteredDelivery {
	out := RegisteredDelivery{}
	out.Receipt = int(b & 0x03)
	out.SMEAck = int((b >> 2) & 0x0F)
	out.InterNotification = int((b >> 4) & 0x01)
	return out
}

type pduReader struct {
	*bytes.Buffer
}

func newBuffer(buf []byte) *pduReader {
	return &pduReader{
		Buffer: bytes.NewBuffer(buf),
	}
}

// ReadCString reads bytes up to and including a 0x00 terminator, returning
// everything before it. limit bounds the number of bytes scanned (including
// the terminator) before giving up with an error.
func (r *pduReader) ReadCString(limit int) ([]byte, error) {
	var out []byte
	i := 0
	for {
		i++
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0x0 {
			return out, nil
		}
		if i == limit {
			return nil, errors.New("smpp/pdu: invalid c string length")
		}
		out = append(out, b)
	}
}

// ReadString reads a length-prefixed byte string: a single length byte
// followed by that many raw bytes (used for short_message).
func (r *pduReader) ReadString(limit int) ([]byte, error) {
	l, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if int(l) > limit {
		return nil, errors.New("smpp/pdu: invalid string length")
	}
	out := make([]byte, l)
	n, err := r.Read(out)
	if err != nil && n != int(l) {
		return nil, err
	}
	if n != int(l) {
		return nil, errors.New("smpp/pdu: read count mismatch")
	}
	return out, nil
}

// cStringMarshal appends a single null-terminated string body, the layout
// shared by every *_resp PDU whose only mandatory field is a C-string.
func cStringMarshal(str string) ([]byte, error) {
	return append([]byte(str), 0), nil
}

// cStringUnmarshal is the inverse of cStringMarshal.
func cStringUnmarshal(body []byte) (string, error) {
	n := -1
	for i := 0; i < len(body); i++ {
		if body[i] == 0 {
			n = i
			break
		}
	}
	if n < 0 {
		return "", errors.New("smpp/pdu: c string is not terminated")
	}
	return string(body[:n]), nil
}

// Sequencer provides a way of altering default PDU sequencing. Each bound
// connection's Session owns its own Sequencer instance via its Encoder, so
// client-originated PDUs, server-originated DELIVER_SMs and forwarded
// SUBMIT_SMs on a given connection all share that connection's monotonic
// sequence — never a sequencer shared across connections.
type Sequencer interface {
	Next() uint32
}

// NewSequencer creates a new sequencer with its starting value set to n.
// Allowed range is 0x00000001 to 0x7FFFFFFF; zero is never handed out.
func NewSequencer(n uint32) Sequencer {
	if n == 0 {
		n = 1
	}
	return &defaultSequencer{n: n}
}

// defaultSequencer.Next is called concurrently whenever a connection has
// more than one goroutine encoding a PDU onto the same session (e.g. a
// handler reply racing an unsolicited server-originated send), so n is
// advanced atomically.
type defaultSequencer struct {
	n uint32
}

func (seq *defaultSequencer) Next() uint32 {
	for {
		old := atomic.LoadUint32(&seq.n)
		next := old + 1
		if next == 0 {
			next = 1
		}
		if atomic.CompareAndSwapUint32(&seq.n, old, next) {
			return old
		}
	}
}

// Encoder is responsible for encoding a PDU structure onto a writer.
type Encoder struct {
	w   io.Writer
	seq Sequencer
}

// NewEncoder instantiates a PDU encoder.
func NewEncoder(w io.Writer, seq Sequencer) *Encoder {
	if seq == nil {
		seq = NewSequencer(1)
	}
	return &Encoder{
		w:   w,
		seq: seq,
	}
}

type encoderOpts struct {
	seq    uint32
	status Status
}

// EncoderOption customizes a single Encode call.
type EncoderOption func(*encoderOpts)

// EncodeSeq pins the sequence_number instead of drawing the next one from
// the encoder's sequencer; used when replying with the same sequence
// number as the request being answered.
func EncodeSeq(seq uint32) EncoderOption {
	return func(eOpts *encoderOpts) {
		eOpts.seq = seq
	}
}

// EncodeStatus sets command_status; defaults to StatusOK.
func EncodeStatus(status Status) EncoderOption {
	return func(eOpts *encoderOpts) {
		eOpts.status = status
	}
}

// Encode marshals p, frames it with the 16-byte header, and writes it.
// It returns the sequence_number actually written.
func (en *Encoder) Encode(p PDU, opts ...EncoderOption) (uint32, error) {
	body, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}

	eOpts := encoderOpts{}
	for _, o := range opts {
		o(&eOpts)
	}

	l := len(body) + 16
	buf := make([]byte, l)
	binary.BigEndian.PutUint32(buf[:4], uint32(l))
	binary.BigEndian.PutUint32(buf[4:8], uint32(p.CommandID()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(eOpts.status))
	if eOpts.seq == 0 {
		eOpts.seq = en.seq.Next()
	}
	binary.BigEndian.PutUint32(buf[12:16], eOpts.seq)
	copy(buf[16:], body)
	_, err = en.w.Write(buf)
	return eOpts.seq, err
}

// Decoder reads framed PDUs from a reader.
type Decoder struct {
	r io.Reader
}

// NewDecoder initializes a new PDU decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r: r,
	}
}

// Decode reads one framed PDU from the underlying reader: exactly 16
// header bytes, then exactly command_length-16 body bytes. A stream that
// closes mid-header or mid-body surfaces io.ErrUnexpectedEOF via
// io.ReadFull; a command_length under 16 is a protocol error.
func (d *Decoder) Decode() (Header, PDU, error) {
	var headerBytes [16]byte
	if _, err := io.ReadFull(d.r, headerBytes[:]); err != nil {
		return nil, nil, err
	}

	h := &header{}
	if err := h.UnmarshalBinary(headerBytes[:]); err != nil {
		return h, nil, err
	}
	if h.length < 16 {
		return h, nil, fmt.Errorf("smpp/pdu: invalid pdu header byte length: %d", h.length)
	}

	p := NewPDU(h.commandID)
	if h.length == 16 {
		return h, p, nil
	}

	bodyBytes := make([]byte, h.length-16)
	if _, err := io.ReadFull(d.r, bodyBytes); err != nil {
		return h, p, fmt.Errorf("smpp/pdu: pdu length doesn't match read body length: %w", err)
	}

	if err := p.UnmarshalBinary(bodyBytes); err != nil {
		return h, p, err
	}

	return h, p, nil
}

// NewPDU creates a new, zero-valued PDU body for commandID.
func NewPDU(commandID CommandID) PDU {
	switch commandID {
	case GenericNackID:
		return &GenericNack{}
	case BindReceiverID:
		return &BindRx{}
	case BindReceiverRespID:
		return &BindRxResp{}
	case BindTransmitterID:
		return &BindTx{}
	case BindTransmitterRespID:
		return &BindTxResp{}
	case BindTransceiverID:
		return &BindTRx{}
	case BindTransceiverRespID:
		return &BindTRxResp{}
	case EnquireLinkID:
		return &EnquireLink{}
	case EnquireLinkRespID:
		return &EnquireLinkResp{}
	case SubmitSmID:
		return &SubmitSm{}
	case SubmitSmRespID:
		return &SubmitSmResp{}
	case DeliverSmID:
		return &DeliverSm{}
	case DeliverSmRespID:
		return &DeliverSmResp{}
	case UnbindID:
		return &Unbind{}
	case UnbindRespID:
		return &UnbindResp{}
	}
	return &GenericNack{}
}

// IsRequest returns true if id is a request command rather than a
// response or nack.
func IsRequest(id CommandID) bool {
	switch id {
	case GenericNackID,
		BindReceiverRespID,
		BindTransmitterRespID,
		SubmitSmRespID,
		DeliverSmRespID,
		UnbindRespID,
		BindTransceiverRespID,
		EnquireLinkRespID:
		return false
	default:
		return true
	}
}

// SystemID extracts the system_id value from a bind PDU, if p is one.
func SystemID(p PDU) string {
	switch v := p.(type) {
	case *BindRx:
		return v.SystemID
	case *BindTx:
		return v.SystemID
	case *BindTRx:
		return v.SystemID
	case *BindRxResp:
		return v.SystemID
	case *BindTxResp:
		return v.SystemID
	case *BindTRxResp:
		return v.SystemID
	}
	return ""
}
