// Package waybind binds Wayland-style wire messages to typed protocol objects.
//
// Every protocol object kind has an Interface: one Go method per opcode.
// A Dispatcher built for that Interface decodes the arguments of an
// incoming message and calls the matching method. A Handler pairs one
// object with its Dispatcher behind the non-generic Object entry point so
// a Registry can hold objects of any kind. The same contracts serve both
// roles: servers dispatch requests and encode events, clients dispatch
// events and encode requests.
//
// Dispatch is synchronous. A connection's objects are only touched from
// its own read loop, so nothing here takes locks.
package waybind

// Sender queues encoded outbound messages on a connection.
type Sender interface {
	Send(msg Message) error
}

// Bundle is the connection context handed to every dispatch call. It is
// borrowed for the duration of the call and must not be retained.
type Bundle interface {
	Sender
	// Register adds a new object created by the message being dispatched.
	Register(id ObjectID, object Object) error
	// Remove drops an object other than the one being dispatched.
	Remove(id ObjectID)
}

// Object is the uniform entry point a registry drives. Handlers implement it.
type Object interface {
	Dispatch(bundle Bundle, header Header, args *Reader) (Task, error)
}

// Dispatcher decodes messages for objects implementing interface I and
// invokes the matching method. Dispatchers hold no state between calls;
// the zero value is ready to use.
//
// Dispatch must fail with an unknown opcode error without reading when the
// opcode has no method, must fail with a malformed arguments error before
// invoking anything when decoding fails, and otherwise returns the
// method's result unchanged.
type Dispatcher[I any] interface {
	Dispatch(object I, bundle Bundle, header Header, args *Reader) (Task, error)
	// Interface returns the schema descriptor the dispatcher was built from.
	Interface() *Interface
}

// Handler owns one object implementing I and the Dispatcher built for I.
type Handler[I any, D Dispatcher[I]] struct {
	object     I
	dispatcher D
}

// NewHandler binds object to a fresh dispatcher of type D.
func NewHandler[I any, D Dispatcher[I]](object I) *Handler[I, D] {
	var dispatcher D
	return &Handler[I, D]{object: object, dispatcher: dispatcher}
}

// Dispatch forwards the message to the dispatcher against the bound object.
func (h *Handler[I, D]) Dispatch(bundle Bundle, header Header, args *Reader) (Task, error) {
	return h.dispatcher.Dispatch(h.object, bundle, header, args)
}

// Object returns the bound object.
func (h *Handler[I, D]) Object() I {
	return h.object
}

// Interface returns the descriptor of the bound interface.
func (h *Handler[I, D]) Interface() *Interface {
	return h.dispatcher.Interface()
}

// Described is implemented by objects that know their schema descriptor.
// Handlers implement it; registries use it to name messages in errors and logs.
type Described interface {
	Interface() *Interface
}
