package wayland

import (
	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
)

// Shm receives wl_shm events.
type Shm interface {
	Format(bundle waybind.Bundle, this waybind.ObjectID, format uint32) (waybind.Task, error)
}

// ShmDispatcher dispatches wl_shm events.
type ShmDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (ShmDispatcher) Interface() *waybind.Interface { return &protocol.Shm }

// Dispatch implements waybind.Dispatcher.
func (ShmDispatcher) Dispatch(object Shm, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		format, _ := args.Uint()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Shm, header, args, err)
		}
		return object.Format(bundle, header.ObjectID, format)
	default:
		return waybind.UnknownOpcode(&protocol.Shm, header)
	}
}

// NewShm binds object to a ShmDispatcher.
func NewShm(object Shm) *waybind.Handler[Shm, ShmDispatcher] {
	return waybind.NewHandler[Shm, ShmDispatcher](object)
}

// CreatePool shares fd with the compositor as a pool of size bytes.
func CreatePool(s waybind.Sender, this, id waybind.ObjectID, fd int, size int32) error {
	w := waybind.NewWriter(this, 0)
	w.PutNewID(id)
	w.PutFD(fd)
	w.PutInt(size)
	return send(s, w)
}

// ShmRelease releases the wl_shm object. Since version 2.
func ShmRelease(s waybind.Sender, this waybind.ObjectID) error {
	return send(s, waybind.NewWriter(this, 1))
}

// ShmPool has no events.
type ShmPool interface{}

// ShmPoolDispatcher rejects every opcode: wl_shm_pool has no events.
type ShmPoolDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (ShmPoolDispatcher) Interface() *waybind.Interface { return &protocol.ShmPool }

// Dispatch implements waybind.Dispatcher.
func (ShmPoolDispatcher) Dispatch(_ ShmPool, _ waybind.Bundle, header waybind.Header, _ *waybind.Reader) (waybind.Task, error) {
	return waybind.UnknownOpcode(&protocol.ShmPool, header)
}

// NewShmPool binds object to a ShmPoolDispatcher.
func NewShmPool(object ShmPool) *waybind.Handler[ShmPool, ShmPoolDispatcher] {
	return waybind.NewHandler[ShmPool, ShmPoolDispatcher](object)
}

// CreateBuffer carves a buffer out of the pool.
func CreateBuffer(s waybind.Sender, this, id waybind.ObjectID, offset, width, height, stride int32, format uint32) error {
	w := waybind.NewWriter(this, 0)
	w.PutNewID(id)
	w.PutInt(offset)
	w.PutInt(width)
	w.PutInt(height)
	w.PutInt(stride)
	w.PutUint(format)
	return send(s, w)
}

// ShmPoolDestroy destroys the pool. Buffers created from it stay valid.
func ShmPoolDestroy(s waybind.Sender, this waybind.ObjectID) error {
	return send(s, waybind.NewWriter(this, 1))
}

// ShmPoolResize grows the pool to size bytes.
func ShmPoolResize(s waybind.Sender, this waybind.ObjectID, size int32) error {
	w := waybind.NewWriter(this, 2)
	w.PutInt(size)
	return send(s, w)
}

// Buffer receives wl_buffer events.
type Buffer interface {
	Release(bundle waybind.Bundle, this waybind.ObjectID) (waybind.Task, error)
}

// BufferDispatcher dispatches wl_buffer events.
type BufferDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (BufferDispatcher) Interface() *waybind.Interface { return &protocol.Buffer }

// Dispatch implements waybind.Dispatcher.
func (BufferDispatcher) Dispatch(object Buffer, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		if err := args.Done(); err != nil {
			return malformed(&protocol.Buffer, header, args, err)
		}
		return object.Release(bundle, header.ObjectID)
	default:
		return waybind.UnknownOpcode(&protocol.Buffer, header)
	}
}

// NewBuffer binds object to a BufferDispatcher.
func NewBuffer(object Buffer) *waybind.Handler[Buffer, BufferDispatcher] {
	return waybind.NewHandler[Buffer, BufferDispatcher](object)
}

// BufferDestroy destroys the buffer.
func BufferDestroy(s waybind.Sender, this waybind.ObjectID) error {
	return send(s, waybind.NewWriter(this, 0))
}
