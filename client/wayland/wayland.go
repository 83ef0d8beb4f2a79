// Package wayland binds the Wayland core protocol for the client role.
// Events are dispatched to the interfaces below; requests are encoded by
// the plain functions.
package wayland

import (
	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
)

const role = waybind.ClientRole

func malformed(iface *waybind.Interface, header waybind.Header, args *waybind.Reader, err error) (waybind.Task, error) {
	return waybind.Malformed(iface, role, header, args, err)
}

func send(s waybind.Sender, w *waybind.Writer) error {
	msg, err := w.Message()
	if err != nil {
		return err
	}
	return s.Send(msg)
}

// Display receives wl_display events.
type Display interface {
	Error(bundle waybind.Bundle, this waybind.ObjectID, object waybind.ObjectID, code uint32, message string) (waybind.Task, error)
	DeleteID(bundle waybind.Bundle, this waybind.ObjectID, id uint32) (waybind.Task, error)
}

// DisplayDispatcher dispatches wl_display events.
type DisplayDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (DisplayDispatcher) Interface() *waybind.Interface { return &protocol.Display }

// Dispatch implements waybind.Dispatcher.
func (DisplayDispatcher) Dispatch(object Display, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		id, _ := args.Object()
		code, _ := args.Uint()
		message, _ := args.String()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Display, header, args, err)
		}
		return object.Error(bundle, header.ObjectID, id, code, message)
	case 1:
		id, _ := args.Uint()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Display, header, args, err)
		}
		return object.DeleteID(bundle, header.ObjectID, id)
	default:
		return waybind.UnknownOpcode(&protocol.Display, header)
	}
}

// NewDisplay binds object to a DisplayDispatcher.
func NewDisplay(object Display) *waybind.Handler[Display, DisplayDispatcher] {
	return waybind.NewHandler[Display, DisplayDispatcher](object)
}

// Sync asks the compositor to fire callback once all prior requests are handled.
func Sync(s waybind.Sender, this, callback waybind.ObjectID) error {
	w := waybind.NewWriter(this, 0)
	w.PutNewID(callback)
	return send(s, w)
}

// GetRegistry creates the registry object.
func GetRegistry(s waybind.Sender, this, registry waybind.ObjectID) error {
	w := waybind.NewWriter(this, 1)
	w.PutNewID(registry)
	return send(s, w)
}

// Registry receives wl_registry events.
type Registry interface {
	Global(bundle waybind.Bundle, this waybind.ObjectID, name uint32, iface string, version uint32) (waybind.Task, error)
	GlobalRemove(bundle waybind.Bundle, this waybind.ObjectID, name uint32) (waybind.Task, error)
}

// RegistryDispatcher dispatches wl_registry events.
type RegistryDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (RegistryDispatcher) Interface() *waybind.Interface { return &protocol.Registry }

// Dispatch implements waybind.Dispatcher.
func (RegistryDispatcher) Dispatch(object Registry, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		name, _ := args.Uint()
		iface, _ := args.String()
		version, _ := args.Uint()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Registry, header, args, err)
		}
		return object.Global(bundle, header.ObjectID, name, iface, version)
	case 1:
		name, _ := args.Uint()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Registry, header, args, err)
		}
		return object.GlobalRemove(bundle, header.ObjectID, name)
	default:
		return waybind.UnknownOpcode(&protocol.Registry, header)
	}
}

// NewRegistry binds object to a RegistryDispatcher.
func NewRegistry(object Registry) *waybind.Handler[Registry, RegistryDispatcher] {
	return waybind.NewHandler[Registry, RegistryDispatcher](object)
}

// Bind creates id as an instance of the global name.
func Bind(s waybind.Sender, this waybind.ObjectID, name uint32, iface string, version uint32, id waybind.ObjectID) error {
	w := waybind.NewWriter(this, 0)
	w.PutUint(name)
	w.PutString(iface)
	w.PutUint(version)
	w.PutNewID(id)
	return send(s, w)
}

// Callback receives wl_callback events.
type Callback interface {
	Done(bundle waybind.Bundle, this waybind.ObjectID, data uint32) (waybind.Task, error)
}

// CallbackDispatcher dispatches wl_callback events.
type CallbackDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (CallbackDispatcher) Interface() *waybind.Interface { return &protocol.Callback }

// Dispatch implements waybind.Dispatcher.
func (CallbackDispatcher) Dispatch(object Callback, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		data, _ := args.Uint()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Callback, header, args, err)
		}
		return object.Done(bundle, header.ObjectID, data)
	default:
		return waybind.UnknownOpcode(&protocol.Callback, header)
	}
}

// NewCallback binds object to a CallbackDispatcher.
func NewCallback(object Callback) *waybind.Handler[Callback, CallbackDispatcher] {
	return waybind.NewHandler[Callback, CallbackDispatcher](object)
}
