package wayland

import (
	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
)

// Shm is implemented by wl_shm objects.
type Shm interface {
	CreatePool(bundle waybind.Bundle, this waybind.ObjectID, id waybind.ObjectID, fd int, size int32) (waybind.Task, error)
	// Release is available since version 2.
	Release(bundle waybind.Bundle, this waybind.ObjectID) (waybind.Task, error)
}

// ShmDispatcher dispatches wl_shm requests.
type ShmDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (ShmDispatcher) Interface() *waybind.Interface { return &protocol.Shm }

// Dispatch implements waybind.Dispatcher.
func (ShmDispatcher) Dispatch(object Shm, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		id, _ := args.NewID()
		fd, _ := args.FD()
		size, _ := args.Int()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Shm, header, args, err)
		}
		return object.CreatePool(bundle, header.ObjectID, id, fd, size)
	case 1:
		if err := args.Done(); err != nil {
			return malformed(&protocol.Shm, header, args, err)
		}
		return object.Release(bundle, header.ObjectID)
	default:
		return waybind.UnknownOpcode(&protocol.Shm, header)
	}
}

// NewShm binds object to a ShmDispatcher.
func NewShm(object Shm) *waybind.Handler[Shm, ShmDispatcher] {
	return waybind.NewHandler[Shm, ShmDispatcher](object)
}

// SendShmFormat advertises a supported pixel format.
func SendShmFormat(s waybind.Sender, this waybind.ObjectID, format uint32) error {
	w := waybind.NewWriter(this, 0)
	w.PutUint(format)
	return send(s, w)
}

// ShmPool is implemented by wl_shm_pool objects.
type ShmPool interface {
	CreateBuffer(bundle waybind.Bundle, this waybind.ObjectID, id waybind.ObjectID, offset, width, height, stride int32, format uint32) (waybind.Task, error)
	Destroy(bundle waybind.Bundle, this waybind.ObjectID) (waybind.Task, error)
	Resize(bundle waybind.Bundle, this waybind.ObjectID, size int32) (waybind.Task, error)
}

// ShmPoolDispatcher dispatches wl_shm_pool requests.
type ShmPoolDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (ShmPoolDispatcher) Interface() *waybind.Interface { return &protocol.ShmPool }

// Dispatch implements waybind.Dispatcher.
func (ShmPoolDispatcher) Dispatch(object ShmPool, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		id, _ := args.NewID()
		offset, _ := args.Int()
		width, _ := args.Int()
		height, _ := args.Int()
		stride, _ := args.Int()
		format, _ := args.Uint()
		if err := args.Done(); err != nil {
			return malformed(&protocol.ShmPool, header, args, err)
		}
		return object.CreateBuffer(bundle, header.ObjectID, id, offset, width, height, stride, format)
	case 1:
		if err := args.Done(); err != nil {
			return malformed(&protocol.ShmPool, header, args, err)
		}
		return object.Destroy(bundle, header.ObjectID)
	case 2:
		size, _ := args.Int()
		if err := args.Done(); err != nil {
			return malformed(&protocol.ShmPool, header, args, err)
		}
		return object.Resize(bundle, header.ObjectID, size)
	default:
		return waybind.UnknownOpcode(&protocol.ShmPool, header)
	}
}

// NewShmPool binds object to a ShmPoolDispatcher.
func NewShmPool(object ShmPool) *waybind.Handler[ShmPool, ShmPoolDispatcher] {
	return waybind.NewHandler[ShmPool, ShmPoolDispatcher](object)
}

// Buffer is implemented by wl_buffer objects.
type Buffer interface {
	Destroy(bundle waybind.Bundle, this waybind.ObjectID) (waybind.Task, error)
}

// BufferDispatcher dispatches wl_buffer requests.
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
		return object.Destroy(bundle, header.ObjectID)
	default:
		return waybind.UnknownOpcode(&protocol.Buffer, header)
	}
}

// NewBuffer binds object to a BufferDispatcher.
func NewBuffer(object Buffer) *waybind.Handler[Buffer, BufferDispatcher] {
	return waybind.NewHandler[Buffer, BufferDispatcher](object)
}

// SendBufferRelease tells the client the compositor no longer reads the buffer.
func SendBufferRelease(s waybind.Sender, this waybind.ObjectID) error {
	return send(s, waybind.NewWriter(this, 0))
}
