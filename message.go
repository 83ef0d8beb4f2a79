package waybind

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ObjectID identifies one live protocol object within one connection.
// Zero is the null object.
type ObjectID uint32

// Opcode selects a method within one Interface's message table.
type Opcode uint16

// Wire layout constants.
const (
	// HeaderSize is the size of the fixed message header: object id, opcode and size.
	HeaderSize = 8
	// MaxMessageSize is the largest message the size field can describe
	// while staying within the Wayland connection buffer.
	MaxMessageSize = 4096
)

// Errors returned while framing messages.
var (
	// ErrShortHeader is returned when fewer than HeaderSize bytes are available.
	ErrShortHeader = errors.New("waybind: short message header")
	// ErrInvalidSize is returned when the header size is smaller than the header or not word aligned.
	ErrInvalidSize = errors.New("waybind: invalid message size")
	// ErrMessageTooLarge is returned when a message exceeds the allowed size.
	ErrMessageTooLarge = errors.New("waybind: message too large")
)

// order is the byte order of the wire. Like Wayland, the protocol uses host order.
var order = binary.NativeEndian

// Header is the fixed prefix of every message.
type Header struct {
	ObjectID ObjectID
	Opcode   Opcode
	// Size is the total message length in bytes, header included.
	Size uint16
}

// PayloadSize returns the number of argument bytes following the header.
func (h Header) PayloadSize() int {
	if int(h.Size) < HeaderSize {
		return 0
	}
	return int(h.Size) - HeaderSize
}

// String implements fmt.Stringer.
func (h Header) String() string {
	return fmt.Sprintf("object=%d opcode=%d size=%d", h.ObjectID, h.Opcode, h.Size)
}

// Put writes the header into the first HeaderSize bytes of b.
func (h Header) Put(b []byte) {
	order.PutUint32(b[0:4], uint32(h.ObjectID))
	order.PutUint16(b[4:6], uint16(h.Opcode))
	order.PutUint16(b[6:8], h.Size)
}

// ParseHeader decodes and validates a header from the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	h := Header{
		ObjectID: ObjectID(order.Uint32(b[0:4])),
		Opcode:   Opcode(order.Uint16(b[4:6])),
		Size:     order.Uint16(b[6:8]),
	}
	if h.Size < HeaderSize || h.Size%4 != 0 {
		return Header{}, ErrInvalidSize
	}
	return h, nil
}

// Message is one encoded protocol message ready for transmission.
// FDs travel on the side channel and are not part of Bytes.
type Message struct {
	Header Header
	Args   []byte
	FDs    []int
}

// Length returns the number of bytes the message occupies on the wire.
func (m Message) Length() int {
	return HeaderSize + len(m.Args)
}

// Bytes returns the header followed by the argument bytes.
func (m Message) Bytes() []byte {
	buf := make([]byte, m.Length())
	m.Header.Put(buf)
	copy(buf[HeaderSize:], m.Args)
	return buf
}

// ReadMessage reads exactly one framed message from r.
// It reads the header first and then only the number of bytes the header
// announces, so it can be called repeatedly on a stream.
// The returned message carries no FDs; those arrive out of band.
func ReadMessage(r io.Reader, maxSize int) (Message, error) {
	if maxSize <= 0 || maxSize > MaxMessageSize {
		maxSize = MaxMessageSize
	}

	var head [HeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, ErrShortHeader
		}
		return Message{}, err
	}

	h, err := ParseHeader(head[:])
	if err != nil {
		return Message{}, err
	}
	if int(h.Size) > maxSize {
		return Message{}, ErrMessageTooLarge
	}

	args := make([]byte, h.PayloadSize())
	if _, err := io.ReadFull(r, args); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, err
	}
	return Message{Header: h, Args: args}, nil
}
