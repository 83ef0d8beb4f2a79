// Package screenshooter binds weston_screenshooter for the server role.
package screenshooter

import (
	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
)

// Screenshooter is implemented by the compositor's screenshooter global.
type Screenshooter interface {
	// Shoot copies output into buffer and answers with done.
	Shoot(bundle waybind.Bundle, this waybind.ObjectID, output, buffer waybind.ObjectID) (waybind.Task, error)
}

// Dispatcher dispatches weston_screenshooter requests.
type Dispatcher struct{}

// Interface implements waybind.Dispatcher.
func (Dispatcher) Interface() *waybind.Interface { return &protocol.Screenshooter }

// Dispatch implements waybind.Dispatcher.
func (Dispatcher) Dispatch(object Screenshooter, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		output, _ := args.Object()
		buffer, _ := args.Object()
		if err := args.Done(); err != nil {
			return waybind.Malformed(&protocol.Screenshooter, waybind.ServerRole, header, args, err)
		}
		return object.Shoot(bundle, header.ObjectID, output, buffer)
	default:
		return waybind.UnknownOpcode(&protocol.Screenshooter, header)
	}
}

// New binds object to a Dispatcher.
func New(object Screenshooter) *waybind.Handler[Screenshooter, Dispatcher] {
	return waybind.NewHandler[Screenshooter, Dispatcher](object)
}

// SendDone tells the client the shot has been written to its buffer.
func SendDone(s waybind.Sender, this waybind.ObjectID) error {
	msg, err := waybind.NewWriter(this, 0).Message()
	if err != nil {
		return err
	}
	return s.Send(msg)
}
