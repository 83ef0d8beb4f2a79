// Package screenshooter binds weston_screenshooter for the client role.
package screenshooter

import (
	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
)

// Screenshooter receives weston_screenshooter events.
type Screenshooter interface {
	Done(bundle waybind.Bundle, this waybind.ObjectID) (waybind.Task, error)
}

// Dispatcher dispatches weston_screenshooter events.
type Dispatcher struct{}

// Interface implements waybind.Dispatcher.
func (Dispatcher) Interface() *waybind.Interface { return &protocol.Screenshooter }

// Dispatch implements waybind.Dispatcher.
func (Dispatcher) Dispatch(object Screenshooter, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		if err := args.Done(); err != nil {
			return waybind.Malformed(&protocol.Screenshooter, waybind.ClientRole, header, args, err)
		}
		return object.Done(bundle, header.ObjectID)
	default:
		return waybind.UnknownOpcode(&protocol.Screenshooter, header)
	}
}

// New binds object to a Dispatcher.
func New(object Screenshooter) *waybind.Handler[Screenshooter, Dispatcher] {
	return waybind.NewHandler[Screenshooter, Dispatcher](object)
}

// Shoot asks the compositor to copy output into buffer.
func Shoot(s waybind.Sender, this, output, buffer waybind.ObjectID) error {
	w := waybind.NewWriter(this, 0)
	w.PutObject(output)
	w.PutObject(buffer)
	msg, err := w.Message()
	if err != nil {
		return err
	}
	return s.Send(msg)
}
