package pdu

import (
	"bytes"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"
)

var pduTT = []struct {
	desc   string
	hexStr string
	pdu    PDU
	err    bool
}{
	{
		"valid submit_sm pdu",
		"00|00|00|7465737400|00|00|746573743200|00|00|00|00|00|00|00|00|00|03|6d7367",
		&SubmitSm{
			SourceAddr:      "test",
			DestinationAddr: "test2",
			ShortMessage:    "msg",
		},
		false,
	},
	{
		"valid deliver_sm pdu",
		"55535344|00|01|01|31323300|01|01|3938373635343332313000|40|00|00|00|00|00|00|00|00|05|68656c6c6f",
		&DeliverSm{
			ServiceType:     "USSD",
			SourceAddrTon:   1,
			SourceAddrNpi:   1,
			SourceAddr:      "123",
			DestAddrTon:     1,
			DestAddrNpi:     1,
			DestinationAddr: "9876543210",
			EsmClass:        ParseEsmClass(UssdEsmClass),
			ShortMessage:    "hello",
		},
		false,
	},
	{
		"valid bind_trx pdu",
		"7465737400|746573743200|00|00|01|01|00",
		&BindTRx{
			SystemID: "test",
			Password: "test2",
			AddrTon:  1,
			AddrNpi:  1,
		},
		false,
	},
	{
		"valid bind_trx_resp pdu",
		"5553534447617465776179|00",
		&BindTRxResp{
			SystemID: "USSDGateway",
		},
		false,
	},
	{
		"valid empty unbind pdu",
		"",
		&Unbind{},
		false,
	},
	{
		"valid submit_sm_resp with message id",
		"555353443136393030303030303030303031|00",
		&SubmitSmResp{
			MessageID: "USSD16900000000001",
		},
		false,
	},
	{
		"valid submit_sm_resp with empty body (disposition failure)",
		"",
		&SubmitSmResp{},
		false,
	},
	{
		"valid deliver_sm_resp with empty body (gateway ack)",
		"",
		&DeliverSmResp{},
		false,
	},
	// Always append new cases to avoid messing up Encoding/Decoding tests
	// which rely on indexes in this table.
}

func toHexStr(s string) string {
	return strings.Replace(s, "|", "", -1)
}

func TestMarshalBinary(t *testing.T) {
	for _, row := range pduTT {
		t.Run(row.desc, func(t *testing.T) {
			b, err := row.pdu.MarshalBinary()
			if err != nil {
				if !row.err {
					t.Fatalf("unexpected error %s", err)
				}
				return
			}
			written := hex.EncodeToString(b)
			if written != toHexStr(row.hexStr) {
				t.Errorf("MarshalBinary() => %q\nExpected: %q\nErr: %v", written, toHexStr(row.hexStr), err)
			}
		})
	}
}

func TestUnmarshalBinary(t *testing.T) {
	for _, row := range pduTT {
		t.Run(row.desc, func(t *testing.T) {
			data, _ := hex.DecodeString(toHexStr(row.hexStr))
			p := reflect.New(reflect.TypeOf(row.pdu).Elem()).Interface().(PDU)
			err := p.UnmarshalBinary(data)
			if err != nil {
				if !row.err {
					t.Fatalf("unexpected error %s", err)
				}
				return
			}
			if !reflect.DeepEqual(p, row.pdu) {
				t.Errorf("UnmarshalBinary(p) => \n%+v\nExpected: \n%+v", p, row.pdu)
			}
		})
	}
}

func BenchmarkSubmitSm_MarshalBinary(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bin, err := pduTT[0].pdu.MarshalBinary()
		if err != nil {
			b.Fatalf("error with marshaling %v", err)
		}
		_ = bin
	}
}

func BenchmarkSubmitSm_UnmarshalBinary(b *testing.B) {
	in, _ := hex.DecodeString(toHexStr(pduTT[0].hexStr))
	b.SetBytes(int64(len(in)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pdu := &SubmitSm{}
		err := pdu.UnmarshalBinary(in)
		if err != nil {
			b.Fatalf("error with unmarshaling %v", err)
		}
		_ = pdu
	}
}

var codingTT = []struct {
	desc      string
	headerHex string
	sequencer Sequencer
	pduIndex  int
	status    Status
	seq       uint32
	err       bool
}{
	{
		"submit_sm with default sequencer",
		"0000002D|00000004|00000000|00000001",
		nil, // Default sequencer.
		0,   // From pduTT.
		StatusOK,
		1,
		false,
	},
	{
		"submit_sm with custom sequencer",
		"0000002D|00000004|00000000|00000003",
		NewSequencer(3),
		0,
		StatusOK,
		3,
		false,
	},
	{
		"deliver_sm with pinned sequence number",
		"00000037|00000005|00000000|00000007",
		nil,
		1,
		StatusOK,
		7,
		false,
	},
	{
		"unbind with empty body",
		"00000010|00000006|00000000|00000001",
		nil,
		4,
		StatusOK,
		1,
		false,
	},
	{
		"unbind with custom status",
		"00000010|00000006|0000000E|00000001",
		nil,
		4,
		StatusInvPaswd,
		1,
		false,
	},
	{
		"submit_sm_resp with disposition failure status and empty body",
		"00000010|80000004|00000008|00000002",
		nil,
		6,
		StatusSysErr,
		2,
		false,
	},
}

func TestPDUEncoding(t *testing.T) {
	for _, row := range codingTT {
		t.Run(row.desc, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			enc := NewEncoder(buf, row.sequencer)

			opts := []EncoderOption{EncodeStatus(row.status)}
			if row.sequencer == nil {
				opts = append(opts, EncodeSeq(row.seq))
			}
			i, err := enc.Encode(pduTT[row.pduIndex].pdu, opts...)
			if err != nil {
				if !row.err {
					t.Fatalf("unexpected error %s", err)
				}
				return
			}
			if i != row.seq {
				t.Errorf("Encode() => seq %d expected %d", i, row.seq)
			}
			expected, _ := hex.DecodeString(toHexStr(row.headerHex + pduTT[row.pduIndex].hexStr))
			got := buf.Bytes()
			if !bytes.Equal(expected, got) {
				t.Errorf("Encode() => bytes\n%X\nexpected \n%X", got, expected)
			}
		})
	}
}

func TestPDUDecoding(t *testing.T) {
	for _, row := range codingTT {
		t.Run(row.desc, func(t *testing.T) {
			expected, _ := hex.DecodeString(toHexStr(row.headerHex + pduTT[row.pduIndex].hexStr))
			buf := bytes.NewBuffer(expected)
			dec := NewDecoder(buf)
			h, p, err := dec.Decode()
			if err != nil {
				if !row.err {
					t.Fatalf("unexpected error %s", err)
				}
				return
			}
			if h.Sequence() != row.seq {
				t.Errorf("Decode() => seq %d expected %d", h.Sequence(), row.seq)
			}
			if h.Status() != row.status {
				t.Errorf("Decode() => status %d expected %d", h.Status(), row.status)
			}
			if !reflect.DeepEqual(p, pduTT[row.pduIndex].pdu) {
				t.Errorf("Decode() => pdu\n%+v\nexpected \n%+v", p, pduTT[row.pduIndex].pdu)
			}
		})
	}
}

func TestDecoderShortHeader(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x00, 0x00})
	dec := NewDecoder(buf)
	if _, _, err := dec.Decode(); err == nil {
		t.Fatal("expected error decoding a truncated header, got nil")
	}
}

func TestDecoderInvalidLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01})
	dec := NewDecoder(buf)
	if _, _, err := dec.Decode(); err == nil {
		t.Fatal("expected error decoding command_length under 16, got nil")
	}
}

func TestDecoderTruncatedBody(t *testing.T) {
	header := []byte{0x00, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	buf := bytes.NewBuffer(append(header, 0x00, 0x00, 0x00))
	dec := NewDecoder(buf)
	if _, _, err := dec.Decode(); err == nil {
		t.Fatal("expected error decoding a body shorter than command_length-16, got nil")
	}
}
