package wayland

import (
	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
)

// OutputGeometry carries the arguments of wl_output.geometry.
type OutputGeometry struct {
	X, Y           int32
	PhysicalWidth  int32
	PhysicalHeight int32
	Subpixel       int32
	Make           string
	Model          string
	Transform      int32
}

// Output receives wl_output events.
type Output interface {
	Geometry(bundle waybind.Bundle, this waybind.ObjectID, geometry OutputGeometry) (waybind.Task, error)
	Mode(bundle waybind.Bundle, this waybind.ObjectID, flags uint32, width, height, refresh int32) (waybind.Task, error)
	Done(bundle waybind.Bundle, this waybind.ObjectID) (waybind.Task, error)
	Scale(bundle waybind.Bundle, this waybind.ObjectID, factor int32) (waybind.Task, error)
}

// OutputDispatcher dispatches wl_output events.
type OutputDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (OutputDispatcher) Interface() *waybind.Interface { return &protocol.Output }

// Dispatch implements waybind.Dispatcher.
func (OutputDispatcher) Dispatch(object Output, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		var g OutputGeometry
		g.X, _ = args.Int()
		g.Y, _ = args.Int()
		g.PhysicalWidth, _ = args.Int()
		g.PhysicalHeight, _ = args.Int()
		g.Subpixel, _ = args.Int()
		g.Make, _ = args.String()
		g.Model, _ = args.String()
		g.Transform, _ = args.Int()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Output, header, args, err)
		}
		return object.Geometry(bundle, header.ObjectID, g)
	case 1:
		flags, _ := args.Uint()
		width, _ := args.Int()
		height, _ := args.Int()
		refresh, _ := args.Int()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Output, header, args, err)
		}
		return object.Mode(bundle, header.ObjectID, flags, width, height, refresh)
	case 2:
		if err := args.Done(); err != nil {
			return malformed(&protocol.Output, header, args, err)
		}
		return object.Done(bundle, header.ObjectID)
	case 3:
		factor, _ := args.Int()
		if err := args.Done(); err != nil {
			return malformed(&protocol.Output, header, args, err)
		}
		return object.Scale(bundle, header.ObjectID, factor)
	default:
		return waybind.UnknownOpcode(&protocol.Output, header)
	}
}

// NewOutput binds object to an OutputDispatcher.
func NewOutput(object Output) *waybind.Handler[Output, OutputDispatcher] {
	return waybind.NewHandler[Output, OutputDispatcher](object)
}

// OutputRelease releases the output object. Since version 3.
func OutputRelease(s waybind.Sender, this waybind.ObjectID) error {
	return send(s, waybind.NewWriter(this, 0))
}
