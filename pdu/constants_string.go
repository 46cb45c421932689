package pdu

import "fmt"

// String implements fmt.Stringer for Status. Hand-maintained in the style
// stringer would generate for this command set's sparse values, since only
// the codes this fabric exercises are named.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "StatusOK"
	case StatusInvPaswd:
		return "StatusInvPaswd"
	case StatusSysErr:
		return "StatusSysErr"
	case StatusUnknownErr:
		return "StatusUnknownErr"
	default:
		return fmt.Sprintf("Status(0x%08X)", uint32(s))
	}
}

// String implements fmt.Stringer for CommandID, likewise hand-maintained
// for this fabric's supported command set.
func (id CommandID) String() string {
	switch id {
	case GenericNackID:
		return "GenericNackID"
	case BindReceiverID:
		return "BindReceiverID"
	case BindReceiverRespID:
		return "BindReceiverRespID"
	case BindTransmitterID:
		return "BindTransmitterID"
	case BindTransmitterRespID:
		return "BindTransmitterRespID"
	case SubmitSmID:
		return "SubmitSmID"
	case SubmitSmRespID:
		return "SubmitSmRespID"
	case DeliverSmID:
		return "DeliverSmID"
	case DeliverSmRespID:
		return "DeliverSmRespID"
	case UnbindID:
		return "UnbindID"
	case UnbindRespID:
		return "UnbindRespID"
	case BindTransceiverID:
		return "BindTransceiverID"
	case BindTransceiverRespID:
		return "BindTransceiverRespID"
	case EnquireLinkID:
		return "EnquireLinkID"
	case EnquireLinkRespID:
		return "EnquireLinkRespID"
	default:
		return fmt.Sprintf("CommandID(0x%08X)", uint32(id))
	}
}
