package waybind

import (
	"errors"
	"fmt"
)

// Sentinels for the dispatch error kinds. Every DispatchError matches
// exactly one of them with errors.Is.
var (
	// ErrUnknownOpcode is returned when the opcode has no entry in the interface.
	ErrUnknownOpcode = errors.New("waybind: unknown opcode")
	// ErrMalformed is returned when the arguments cannot be decoded.
	ErrMalformed = errors.New("waybind: malformed arguments")
	// ErrUnknownObject is returned when no live object has the target id.
	ErrUnknownObject = errors.New("waybind: unknown object")
	// ErrMethodFailure is returned when a method rejects a request.
	ErrMethodFailure = errors.New("waybind: method failure")
)

// ErrorKind enumerates the closed set of dispatch failures.
type ErrorKind int

const (
	// UnknownOpcodeError marks an opcode outside the interface's table.
	UnknownOpcodeError ErrorKind = iota
	// MalformedArgumentsError marks a payload that failed to decode.
	MalformedArgumentsError
	// UnknownObjectError marks a message addressed to a dead or unknown id.
	UnknownObjectError
	// MethodFailureError marks a semantic failure reported by the implementation.
	MethodFailureError
)

func (k ErrorKind) sentinel() error {
	switch k {
	case UnknownOpcodeError:
		return ErrUnknownOpcode
	case MalformedArgumentsError:
		return ErrMalformed
	case UnknownObjectError:
		return ErrUnknownObject
	default:
		return ErrMethodFailure
	}
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case UnknownOpcodeError:
		return "unknown opcode"
	case MalformedArgumentsError:
		return "malformed arguments"
	case UnknownObjectError:
		return "unknown object"
	case MethodFailureError:
		return "method failure"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// DispatchError is the single error type produced by dispatch.
type DispatchError struct {
	Kind     ErrorKind
	ObjectID ObjectID
	Opcode   Opcode
	// Interface is the name of the target interface, when known.
	Interface string
	// Code is the protocol error code for method failures, used when the
	// failure is reported back to the peer.
	Code uint32
	// Message is the human readable reason.
	Message string
	// Reportable is set for failures the peer should be told about through
	// the protocol's error event instead of a silent disconnect.
	Reportable bool
	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *DispatchError) Error() string {
	target := fmt.Sprintf("object %d", e.ObjectID)
	if e.Interface != "" {
		target = fmt.Sprintf("%s@%d", e.Interface, e.ObjectID)
	}
	msg := fmt.Sprintf("waybind: %s: %s opcode %d", e.Kind, target, e.Opcode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *DispatchError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// UnknownOpcode builds the error a dispatcher returns for an opcode outside its table.
// No argument bytes are consumed.
func UnknownOpcode(iface *Interface, h Header) (Task, error) {
	return Continue, &DispatchError{
		Kind:      UnknownOpcodeError,
		ObjectID:  h.ObjectID,
		Opcode:    h.Opcode,
		Interface: interfaceName(iface),
	}
}

// Malformed builds the error a dispatcher returns when decoding fails. It
// consumes the rest of the message from args, handles included, so the
// transport can frame the next message.
func Malformed(iface *Interface, role Role, h Header, args *Reader, err error) (Task, error) {
	if iface != nil {
		if desc, ok := iface.Message(role, h.Opcode); ok {
			args.Discard(desc)
		}
	}
	return Continue, &DispatchError{
		Kind:      MalformedArgumentsError,
		ObjectID:  h.ObjectID,
		Opcode:    h.Opcode,
		Interface: interfaceName(iface),
		Message:   iface.MessageName(role, h.Opcode),
		Err:       err,
	}
}

// UnknownObject builds the error a registry returns for an id with no live handler.
func UnknownObject(h Header) error {
	return &DispatchError{
		Kind:     UnknownObjectError,
		ObjectID: h.ObjectID,
		Opcode:   h.Opcode,
	}
}

// MethodError builds a method-level failure carrying a protocol error code.
// Object id, opcode and interface are filled in by the registry.
func MethodError(code uint32, format string, args ...any) error {
	return &DispatchError{
		Kind:       MethodFailureError,
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Reportable: true,
	}
}

// AsDispatchError classifies err. Errors that are not dispatch errors are
// treated as method failures without a protocol code.
func AsDispatchError(err error) *DispatchError {
	if err == nil {
		return nil
	}
	var de *DispatchError
	if errors.As(err, &de) {
		return de
	}
	return &DispatchError{Kind: MethodFailureError, Err: err}
}

func interfaceName(iface *Interface) string {
	if iface == nil {
		return ""
	}
	return iface.Name
}

// ErrorAction defines the action the connection owner takes on a dispatch error.
type ErrorAction int

const (
	// Disconnect closes the connection.
	Disconnect ErrorAction = iota
	// ContinueAction suppresses the error and keeps processing.
	ContinueAction
	// Report sends the error to the peer through the protocol's error event.
	Report
)

// String implements fmt.Stringer.
func (a ErrorAction) String() string {
	switch a {
	case Disconnect:
		return "disconnect"
	case ContinueAction:
		return "continue"
	case Report:
		return "report"
	default:
		return fmt.Sprintf("ErrorAction(%d)", int(a))
	}
}

// DefaultErrorPolicy reports method failures built with MethodError and
// disconnects on everything else.
func DefaultErrorPolicy(err error) ErrorAction {
	de := AsDispatchError(err)
	if de == nil {
		return ContinueAction
	}
	if de.Kind == MethodFailureError && de.Reportable {
		return Report
	}
	return Disconnect
}
