package desim

import (
	"sync/atomic"
	"time"
)

var messageIDSeq atomic.Uint64

// nextMessageID mints a process-wide-unique message id. Message ids are a
// diagnostic convenience (distinct from the calendar queue's event id, E of
// §3) and do not participate in dispatch ordering.
func nextMessageID() uint64 {
	return messageIDSeq.Add(1)
}

// MessageKind distinguishes user payload classes for dispatch-level
// inspection (§4.C: "the dispatch pipeline may inspect header.kind").
type MessageKind uint8

const (
	// KindUser is the default kind for application messages.
	KindUser MessageKind = iota
	// KindControl is reserved for simulator-internal signaling messages
	// that a module may still choose to observe.
	KindControl
)

// Header carries routing metadata alongside a Message's payload (§3).
type Header struct {
	ID           uint64
	Kind        MessageKind
	CreationTime SimTime
	SendTime     SimTime
	SrcModule    ModuleID
	DstModule    ModuleID
	LastGate     *Gate
	SrcAddr      [6]byte
	DstAddr      [6]byte
}

// Cloner is implemented by payload types that support Message.Clone.
// Payloads that do not implement Cloner cause Clone to fail with
// ErrPayloadNotCloneable (§4.C).
type Cloner interface {
	Clone() any
}

// Message is an opaque-to-the-scheduler envelope of a typed payload plus a
// Header (§3). ByteLen is consulted by Channel for transmission-delay
// accounting (§4.E); it defaults to 0 (a pure-delay, no-bandwidth message)
// unless SetByteLen is called.
type Message struct {
	Header  Header
	Payload any
	byteLen int
}

// NewMessage constructs a Message with a fresh header (creation and send
// time set to now) wrapping payload.
func NewMessage(now SimTime, payload any) *Message {
	return &Message{
		Header: Header{
			ID:           nextMessageID(),
			CreationTime: now,
			SendTime:     now,
		},
		Payload: payload,
	}
}

// ByteLen returns the payload's length in bytes for channel bit-time
// accounting (§4.E "bit_time = msg.byte_len * 8 / bitrate").
func (m *Message) ByteLen() int { return m.byteLen }

// SetByteLen sets the payload's length in bytes, used by Channel to
// compute transmission delay.
func (m *Message) SetByteLen(n int) { m.byteLen = n }

// Clone produces a deep-ish copy: the Header is copied verbatim except for
// a freshly minted ID and a fresh CreationTime (now), and the payload is
// cloned via Cloner. Fails
// with ErrPayloadNotCloneable if the payload does not implement Cloner and
// is not nil.
func (m *Message) Clone(now SimTime) (*Message, error) {
	clone := &Message{
		Header:  m.Header,
		byteLen: m.byteLen,
	}
	clone.Header.ID = nextMessageID()
	clone.Header.CreationTime = now
	if m.Payload == nil {
		return clone, nil
	}
	c, ok := m.Payload.(Cloner)
	if !ok {
		return nil, &DispatchError{Cause: ErrPayloadNotCloneable, Message: "payload does not implement Cloner"}
	}
	clone.Payload = c.Clone()
	return clone, nil
}

// Age returns the simulated time elapsed since the message's creation.
func (m *Message) Age(now SimTime) time.Duration {
	return now.Sub(m.Header.CreationTime)
}
