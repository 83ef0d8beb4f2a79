// Package wayland binds the Wayland core protocol for the server role.
// Requests are dispatched to the interfaces below; events are encoded by
// the Send functions.
package wayland

import (
	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
)

const role = waybind.ServerRole

func malformed(iface *waybind.Interface, header waybind.Header, args *waybind.Reader, err error) (waybind.Task, error) {
	return waybind.Malformed(iface, role, header, args, err)
}

// Display is implemented by the wl_display singleton.
type Display interface {
	Sync(bundle waybind.Bundle, this waybind.ObjectID, callback waybind.ObjectID) (waybind.Task, error)
	GetRegistry(bundle waybind.Bundle, this waybind.ObjectID, registry waybind.ObjectID) (waybind.Task, error)
}

// DisplayDispatcher dispatches wl_display requests.
type DisplayDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (DisplayDispatcher) Interface() *waybind.Interface { return &protocol.Display }

// Dispatch implements waybind.Dispatcher.
func (DisplayDispatcher) Dispatch(object Display, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		callback, _ := args.NewID()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Display, header, args, err)
		}
		return object.Sync(bundle, header.ObjectID, callback)
	case 1:
		registry, _ := args.NewID()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Display, header, args, err)
		}
		return object.GetRegistry(bundle, header.ObjectID, registry)
	default:
		return waybind.UnknownOpcode(&protocol.Display, header)
	}
}

// NewDisplay binds object to a DisplayDispatcher.
func NewDisplay(object Display) *waybind.Handler[Display, DisplayDispatcher] {
	return waybind.NewHandler[Display, DisplayDispatcher](object)
}

// SendDisplayError reports a fatal protocol error on object.
func SendDisplayError(s waybind.Sender, this waybind.ObjectID, object waybind.ObjectID, code uint32, message string) error {
	w := waybind.NewWriter(this, 0)
	w.PutObject(object)
	w.PutUint(code)
	w.PutString(message)
	return send(s, w)
}

// SendDisplayDeleteID acknowledges that id has been destroyed and may be reused.
func SendDisplayDeleteID(s waybind.Sender, this waybind.ObjectID, id uint32) error {
	w := waybind.NewWriter(this, 1)
	w.PutUint(id)
	return send(s, w)
}

// Registry is implemented by wl_registry objects.
type Registry interface {
	Bind(bundle waybind.Bundle, this waybind.ObjectID, name uint32, iface string, version uint32, id waybind.ObjectID) (waybind.Task, error)
}

// RegistryDispatcher dispatches wl_registry requests.
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
		id, _ := args.NewID()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Registry, header, args, err)
		}
		return object.Bind(bundle, header.ObjectID, name, iface, version, id)
	default:
		return waybind.UnknownOpcode(&protocol.Registry, header)
	}
}

// NewRegistry binds object to a RegistryDispatcher.
func NewRegistry(object Registry) *waybind.Handler[Registry, RegistryDispatcher] {
	return waybind.NewHandler[Registry, RegistryDispatcher](object)
}

// SendRegistryGlobal announces a global.
func SendRegistryGlobal(s waybind.Sender, this waybind.ObjectID, name uint32, iface string, version uint32) error {
	w := waybind.NewWriter(this, 0)
	w.PutUint(name)
	w.PutString(iface)
	w.PutUint(version)
	return send(s, w)
}

// SendRegistryGlobalRemove withdraws a global.
func SendRegistryGlobalRemove(s waybind.Sender, this waybind.ObjectID, name uint32) error {
	w := waybind.NewWriter(this, 1)
	w.PutUint(name)
	return send(s, w)
}

// Callback has no requests.
type Callback interface{}

// CallbackDispatcher rejects every opcode: wl_callback has no requests.
type CallbackDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (CallbackDispatcher) Interface() *waybind.Interface { return &protocol.Callback }

// Dispatch implements waybind.Dispatcher.
func (CallbackDispatcher) Dispatch(_ Callback, _ waybind.Bundle, header waybind.Header, _ *waybind.Reader) (waybind.Task, error) {
	return waybind.UnknownOpcode(&protocol.Callback, header)
}

// NewCallback binds object to a CallbackDispatcher.
func NewCallback(object Callback) *waybind.Handler[Callback, CallbackDispatcher] {
	return waybind.NewHandler[Callback, CallbackDispatcher](object)
}

// SendCallbackDone fires the callback.
func SendCallbackDone(s waybind.Sender, this waybind.ObjectID, data uint32) error {
	w := waybind.NewWriter(this, 0)
	w.PutUint(data)
	return send(s, w)
}

func send(s waybind.Sender, w *waybind.Writer) error {
	msg, err := w.Message()
	if err != nil {
		return err
	}
	return s.Send(msg)
}
