package waybind

import (
	"math"

	"github.com/pkg/errors"
)

// Fixed is a signed 24.8 fixed point number.
type Fixed int32

// FixedFromInt converts an integer to Fixed.
func FixedFromInt(v int) Fixed {
	return Fixed(v << 8)
}

// FixedFromFloat converts a float to the nearest Fixed.
func FixedFromFloat(v float64) Fixed {
	return Fixed(math.Round(v * 256))
}

// Int returns the integer part, truncated toward zero.
func (f Fixed) Int() int {
	return int(f) / 256
}

// Float64 returns the value as a float.
func (f Fixed) Float64() float64 {
	return float64(f) / 256
}

// Reader holds the two receive cursors of one message: one over the
// argument bytes and one over the file descriptors that arrived on the
// side channel. Every decode failure wraps ErrMalformed.
//
// Errors are sticky: after the first failure every read returns the zero
// value and the same error, and Done reports it. Dispatchers can decode a
// whole argument list and check once.
//
// A Reader is reusable through Reset so a transport can decode a whole
// stream without allocating per message.
type Reader struct {
	buf   []byte
	pos   int
	fds   []int
	fdPos int
	err   error
}

// NewReader returns a Reader over the payload of one message and the
// connection's pending file descriptors.
func NewReader(args []byte, fds []int) *Reader {
	return &Reader{buf: args, fds: fds}
}

// Reset rewinds the Reader onto a new message.
func (r *Reader) Reset(args []byte, fds []int) {
	r.buf = args
	r.pos = 0
	r.fds = fds
	r.fdPos = 0
	r.err = nil
}

// Err returns the first decode error, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fail(err error) error {
	r.err = err
	return err
}

// Len returns the number of unread argument bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.pos
}

// FDsConsumed returns how many file descriptors this message has taken
// from the front of the pending queue.
func (r *Reader) FDsConsumed() int {
	return r.fdPos
}

func (r *Reader) word(what string) (uint32, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.Len() < 4 {
		return 0, r.fail(errors.Wrapf(ErrMalformed, "%s: need 4 bytes, have %d", what, r.Len()))
	}
	v := order.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// Uint decodes an unsigned 32-bit argument.
func (r *Reader) Uint() (uint32, error) {
	return r.word("uint")
}

// Int decodes a signed 32-bit argument.
func (r *Reader) Int() (int32, error) {
	v, err := r.word("int")
	return int32(v), err
}

// Fixed decodes a 24.8 fixed point argument.
func (r *Reader) Fixed() (Fixed, error) {
	v, err := r.word("fixed")
	return Fixed(int32(v)), err
}

// Object decodes an object reference. The null object decodes as 0.
func (r *Reader) Object() (ObjectID, error) {
	v, err := r.word("object")
	return ObjectID(v), err
}

// NewID decodes the id of an object the sender is creating. It is never null.
func (r *Reader) NewID() (ObjectID, error) {
	v, err := r.word("new_id")
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, r.fail(errors.Wrap(ErrMalformed, "new_id: null id"))
	}
	return ObjectID(v), nil
}

// blob returns the bytes of a length-prefixed argument and advances past its padding.
func (r *Reader) blob(what string) ([]byte, bool, error) {
	n, err := r.word(what)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	padded := (uint64(n) + 3) &^ 3
	if uint64(r.Len()) < padded {
		return nil, false, r.fail(errors.Wrapf(ErrMalformed, "%s: length %d exceeds remaining %d bytes", what, n, r.Len()))
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(padded)
	return b, true, nil
}

// String decodes a non-null string argument.
func (r *Reader) String() (string, error) {
	s, ok, err := r.optionalString()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", r.fail(errors.Wrap(ErrMalformed, "string: null string"))
	}
	return s, nil
}

// OptionalString decodes a nullable string argument. Null decodes as "".
func (r *Reader) OptionalString() (string, error) {
	s, _, err := r.optionalString()
	return s, err
}

func (r *Reader) optionalString() (string, bool, error) {
	b, ok, err := r.blob("string")
	if err != nil || !ok {
		return "", false, err
	}
	if b[len(b)-1] != 0 {
		return "", false, r.fail(errors.Wrap(ErrMalformed, "string: missing NUL terminator"))
	}
	return string(b[:len(b)-1]), true, nil
}

// Array decodes an array argument into a fresh slice.
func (r *Reader) Array() ([]byte, error) {
	b, err := r.ArrayView()
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ArrayView decodes an array argument without copying. The returned slice
// aliases the receive buffer and is only valid until the dispatch returns.
func (r *Reader) ArrayView() ([]byte, error) {
	b, _, err := r.blob("array")
	return b, err
}

// FD takes the next file descriptor from the side channel.
func (r *Reader) FD() (int, error) {
	if r.err != nil {
		return -1, r.err
	}
	if r.fdPos >= len(r.fds) {
		return -1, r.fail(errors.Wrap(ErrMalformed, "fd: no file descriptor available"))
	}
	fd := r.fds[r.fdPos]
	r.fdPos++
	return fd, nil
}

// Done reports the first decode error, or an error if argument bytes
// remain unread.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if r.Len() != 0 {
		return r.fail(errors.Wrapf(ErrMalformed, "%d trailing bytes", r.Len()))
	}
	return nil
}

// Discard moves both cursors to the end of the message described by msg:
// all argument bytes and every handle the message carries are consumed.
func (r *Reader) Discard(msg MessageDesc) {
	r.pos = len(r.buf)
	want := msg.HandleCount()
	if want > len(r.fds) {
		want = len(r.fds)
	}
	if r.fdPos < want {
		r.fdPos = want
	}
}

// Writer encodes the arguments of one outbound message. Errors are sticky:
// the first failure is reported by Message and later Put calls are ignored.
type Writer struct {
	header Header
	buf    []byte
	fds    []int
	err    error
}

// NewWriter starts a message for the given object and opcode.
func NewWriter(id ObjectID, opcode Opcode) *Writer {
	return &Writer{header: Header{ObjectID: id, Opcode: opcode}}
}

func (w *Writer) putWord(v uint32) {
	if w.err != nil {
		return
	}
	var b [4]byte
	order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutUint appends an unsigned 32-bit argument.
func (w *Writer) PutUint(v uint32) {
	w.putWord(v)
}

// PutInt appends a signed 32-bit argument.
func (w *Writer) PutInt(v int32) {
	w.putWord(uint32(v))
}

// PutFixed appends a fixed point argument.
func (w *Writer) PutFixed(v Fixed) {
	w.putWord(uint32(v))
}

// PutObject appends an object reference; 0 encodes the null object.
func (w *Writer) PutObject(id ObjectID) {
	w.putWord(uint32(id))
}

// PutNewID appends the id of an object being created.
func (w *Writer) PutNewID(id ObjectID) {
	if id == 0 && w.err == nil {
		w.err = errors.Wrap(ErrMalformed, "new_id: null id")
		return
	}
	w.putWord(uint32(id))
}

func (w *Writer) putBlob(b []byte) {
	if w.err != nil {
		return
	}
	w.putWord(uint32(len(b)))
	w.buf = append(w.buf, b...)
	if pad := (4 - len(b)%4) % 4; pad > 0 {
		w.buf = append(w.buf, make([]byte, pad)...)
	}
}

// PutString appends a non-null string argument.
func (w *Writer) PutString(s string) {
	if w.err != nil {
		return
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			w.err = errors.Wrap(ErrMalformed, "string: embedded NUL")
			return
		}
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	w.putBlob(b)
}

// PutOptionalString appends a nullable string; "" encodes null.
func (w *Writer) PutOptionalString(s string) {
	if s == "" {
		w.putWord(0)
		return
	}
	w.PutString(s)
}

// PutArray appends an array argument.
func (w *Writer) PutArray(b []byte) {
	if len(b) == 0 {
		w.putWord(0)
		return
	}
	w.putBlob(b)
}

// PutFD queues a file descriptor for the side channel.
func (w *Writer) PutFD(fd int) {
	if w.err != nil {
		return
	}
	if fd < 0 {
		w.err = errors.Wrapf(ErrMalformed, "fd: invalid descriptor %d", fd)
		return
	}
	w.fds = append(w.fds, fd)
}

// Message finalizes the header and returns the encoded message.
func (w *Writer) Message() (Message, error) {
	if w.err != nil {
		return Message{}, w.err
	}
	size := HeaderSize + len(w.buf)
	if size > MaxMessageSize {
		return Message{}, errors.Wrapf(ErrMessageTooLarge, "object %d opcode %d: %d bytes", w.header.ObjectID, w.header.Opcode, size)
	}
	h := w.header
	h.Size = uint16(size)
	return Message{Header: h, Args: w.buf, FDs: w.fds}, nil
}
