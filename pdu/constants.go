package pdu

// String methods for Status and CommandID live in constants_string.go,
// hand-maintained in stringer's style rather than generated.

const (
	// MaxPDUSize is the maximal size of a PDU in bytes.
	MaxPDUSize = 4096 // 4KB
)

// Status represents the four byte command_status field.
type Status uint32

// PDU command status set used by this fabric. Only the codes exercised by
// the bind handshake and the disposition policy are named; the rest of the
// SMPP v3.4 status space is out of scope.
const (
	StatusOK        Status = 0x00000000
	StatusInvPaswd  Status = 0x0000000E
	StatusSysErr    Status = 0x00000008
	StatusUnknownErr Status = 0x000000FF
)

// CommandID is the four byte command_id field.
type CommandID uint32

// SMPP command set. Only BIND_*, SUBMIT_SM, DELIVER_SM, UNBIND and
// ENQUIRE_LINK are supported; optional TLVs, query/replace/cancel,
// submit_multi, data_sm and outbind are out of scope.
const (
	GenericNackID         CommandID = 0x80000000
	BindReceiverID        CommandID = 0x00000001
	BindReceiverRespID    CommandID = 0x80000001
	BindTransmitterID     CommandID = 0x00000002
	BindTransmitterRespID CommandID = 0x80000002
	SubmitSmID            CommandID = 0x00000004
	SubmitSmRespID        CommandID = 0x80000004
	DeliverSmID           CommandID = 0x00000005
	DeliverSmRespID       CommandID = 0x80000005
	UnbindID              CommandID = 0x00000006
	UnbindRespID          CommandID = 0x80000006
	BindTransceiverID     CommandID = 0x00000009
	BindTransceiverRespID CommandID = 0x80000009
	EnquireLinkID         CommandID = 0x00000015
	EnquireLinkRespID     CommandID = 0x80000015
)

// SMPP mandatory field names, used only in error messages.
const (
	SystemIDFld        string = "system_id"
	PasswordFld        string = "password"
	DestinationAddrFld string = "destination_addr"
	ShortMessageFld    string = "short_message"
)
