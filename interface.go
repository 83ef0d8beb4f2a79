package waybind

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidInterface is returned by Validate for a malformed descriptor.
var ErrInvalidInterface = errors.New("waybind: invalid interface")

// Role selects which side of a connection a binding is instantiated for.
// The server receives requests and emits events; the client does the reverse.
type Role int

const (
	// ServerRole dispatches requests and encodes events.
	ServerRole Role = iota
	// ClientRole dispatches events and encodes requests.
	ClientRole
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case ServerRole:
		return "server"
	case ClientRole:
		return "client"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// MessageDesc describes one request or event of an interface.
//
// Signature uses the Wayland argument letters, one per argument in
// declaration order: i int, u uint, f fixed, s string, o object, n new_id,
// a array, h fd. A '?' before s or o marks the argument nullable. A new_id
// without a fixed interface is written "sun" (interface, version, id).
type MessageDesc struct {
	Name      string
	Since     uint32
	Signature string
}

// HandleCount returns the number of file descriptors the message carries.
func (m MessageDesc) HandleCount() int {
	return strings.Count(m.Signature, "h")
}

// Interface is the schema descriptor of one protocol object kind. The
// position of a message in Requests or Events is its opcode.
type Interface struct {
	Name     string
	Version  uint32
	Requests []MessageDesc
	Events   []MessageDesc
}

// Inbound returns the messages dispatched for role.
func (i *Interface) Inbound(role Role) []MessageDesc {
	if role == ClientRole {
		return i.Events
	}
	return i.Requests
}

// Outbound returns the messages encoded directly for role.
func (i *Interface) Outbound(role Role) []MessageDesc {
	if role == ClientRole {
		return i.Requests
	}
	return i.Events
}

// Message looks up the inbound message with the given opcode.
func (i *Interface) Message(role Role, opcode Opcode) (MessageDesc, bool) {
	msgs := i.Inbound(role)
	if int(opcode) >= len(msgs) {
		return MessageDesc{}, false
	}
	return msgs[opcode], true
}

// MessageName returns "interface.message" for logging, or the numeric opcode when unknown.
func (i *Interface) MessageName(role Role, opcode Opcode) string {
	if i == nil {
		return fmt.Sprintf("opcode %d", opcode)
	}
	if m, ok := i.Message(role, opcode); ok {
		return i.Name + "." + m.Name
	}
	return fmt.Sprintf("%s opcode %d", i.Name, opcode)
}

// Validate checks that every signature uses known argument letters and
// that no message is newer than the interface.
func (i *Interface) Validate() error {
	if i.Name == "" {
		return errors.Wrap(ErrInvalidInterface, "interface without name")
	}
	if i.Version == 0 {
		return errors.Wrapf(ErrInvalidInterface, "%s: version must be at least 1", i.Name)
	}
	for _, group := range [][]MessageDesc{i.Requests, i.Events} {
		for _, m := range group {
			if m.Since > i.Version {
				return errors.Wrapf(ErrInvalidInterface, "%s.%s: since %d exceeds interface version %d", i.Name, m.Name, m.Since, i.Version)
			}
			nullable := false
			for _, c := range m.Signature {
				switch c {
				case '?':
					nullable = true
					continue
				case 's', 'o':
				case 'i', 'u', 'f', 'n', 'a', 'h':
					if nullable {
						return errors.Wrapf(ErrInvalidInterface, "%s.%s: %q cannot be nullable", i.Name, m.Name, c)
					}
				default:
					return errors.Wrapf(ErrInvalidInterface, "%s.%s: unknown argument type %q", i.Name, m.Name, c)
				}
				nullable = false
			}
			if nullable {
				return errors.Wrapf(ErrInvalidInterface, "%s.%s: dangling '?'", i.Name, m.Name)
			}
		}
	}
	return nil
}
