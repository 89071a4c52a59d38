package dbus

import "fmt"

// MsgType identifies the kind of a D-Bus message (spec §3.2).
type MsgType byte

const (
	MsgInvalid MsgType = 0
	MsgCall    MsgType = 1
	MsgReturn  MsgType = 2
	MsgError   MsgType = 3
	MsgSignal  MsgType = 4
)

func (t MsgType) String() string {
	switch t {
	case MsgCall:
		return "METHOD_CALL"
	case MsgReturn:
		return "METHOD_RETURN"
	case MsgError:
		return "ERROR"
	case MsgSignal:
		return "SIGNAL"
	default:
		return fmt.Sprintf("MsgType(%d)", t)
	}
}

// Flags is a bitset of message flags (spec §3.2).
type Flags byte

const (
	FlagNoReplyExpected             Flags = 0x1
	FlagNoAutoStart                 Flags = 0x2
	FlagAllowInteractiveAuthorization Flags = 0x4
)

// Header field codes (spec §3.2).
const (
	FieldPath        = 1
	FieldInterface   = 2
	FieldMember      = 3
	FieldErrorName   = 4
	FieldReplySerial = 5
	FieldDestination = 6
	FieldSender      = 7
	FieldSignature   = 8
	FieldUnixFDs     = 9
)

const ProtocolVersion = 1

// Message is a single D-Bus message: a method call, method return, error,
// or signal. It collapses the deep Inbound/Outbound x
// Method/Return/Error/Signal class hierarchy some D-Bus client libraries
// use into one tagged struct, per spec §9 ("Deep class hierarchies").
type Message struct {
	Type            MsgType
	Flags           Flags
	ProtocolVersion byte
	Serial          uint32

	Path        ObjectPath
	Interface   string
	Member      string
	ErrorName   string
	ReplySerial uint32
	Destination string
	Sender      string
	Signature   Signature
	UnixFDs     uint32

	// Unknown carries any header fields with codes this library doesn't
	// recognize, keyed by field code. Preserved so that a message can be
	// forwarded without silently dropping extension fields.
	Unknown map[byte]Variant

	// Body is the ordered sequence of values making up the message body.
	// Its combined Signature must equal the Signature field.
	Body []Value
}

// WantsReply reports whether the sender of a METHOD_CALL expects a
// response (spec §3.2: NO_REPLY_EXPECTED flag).
func (m *Message) WantsReply() bool {
	return m.Type == MsgCall && m.Flags&FlagNoReplyExpected == 0
}

// CanInteract reports whether the sender is willing to wait for an
// interactive authorization prompt.
func (m *Message) CanInteract() bool {
	return m.Flags&FlagAllowInteractiveAuthorization != 0
}

// Validate checks that m carries the header fields required for its
// Type, per the table in spec §3.2.
func (m *Message) Validate() error {
	if m.Serial == 0 {
		return &TypeError{"message", "serial must be non-zero"}
	}
	switch m.Type {
	case MsgCall:
		if m.Path == "" {
			return missingField("METHOD_CALL", "PATH")
		}
		if m.Member == "" {
			return missingField("METHOD_CALL", "MEMBER")
		}
	case MsgReturn:
		if m.ReplySerial == 0 {
			return missingField("METHOD_RETURN", "REPLY_SERIAL")
		}
	case MsgError:
		if m.ReplySerial == 0 {
			return missingField("ERROR", "REPLY_SERIAL")
		}
		if m.ErrorName == "" {
			return missingField("ERROR", "ERROR_NAME")
		}
	case MsgSignal:
		if m.Path == "" {
			return missingField("SIGNAL", "PATH")
		}
		if m.Interface == "" {
			return missingField("SIGNAL", "INTERFACE")
		}
		if m.Member == "" {
			return missingField("SIGNAL", "MEMBER")
		}
	default:
		return &TypeError{"message", fmt.Sprintf("unknown message type %d", m.Type)}
	}
	return nil
}

func missingField(msgType, field string) error {
	return &TypeError{"message", fmt.Sprintf("%s message is missing required header field %s", msgType, field)}
}

// BodySignature computes the Signature describing m.Body.
func (m *Message) BodySignature() Signature {
	parts := make([]*Type, len(m.Body))
	for i, v := range m.Body {
		parts[i] = TypeOf(v)
	}
	return Signature{parts: parts}
}
