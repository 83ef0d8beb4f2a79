package wayland

import (
	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
)

// Output is implemented by wl_output objects.
type Output interface {
	// Release is available since version 3.
	Release(bundle waybind.Bundle, this waybind.ObjectID) (waybind.Task, error)
}

// OutputDispatcher dispatches wl_output requests.
type OutputDispatcher struct{}

// Interface implements waybind.Dispatcher.
func (OutputDispatcher) Interface() *waybind.Interface { return &protocol.Output }

// Dispatch implements waybind.Dispatcher.
func (OutputDispatcher) Dispatch(object Output, bundle waybind.Bundle, header waybind.Header, args *waybind.Reader) (waybind.Task, error) {
	switch header.Opcode {
	case 0:
		if err := args.Done(); err != nil {
			return malformed(&protocol.Output, header, args, err)
		}
		return object.Release(bundle, header.ObjectID)
	default:
		return waybind.UnknownOpcode(&protocol.Output, header)
	}
}

// NewOutput binds object to an OutputDispatcher.
func NewOutput(object Output) *waybind.Handler[Output, OutputDispatcher] {
	return waybind.NewHandler[Output, OutputDispatcher](object)
}

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

// SendOutputGeometry describes the physical properties of the output.
func SendOutputGeometry(s waybind.Sender, this waybind.ObjectID, g OutputGeometry) error {
	w := waybind.NewWriter(this, 0)
	w.PutInt(g.X)
	w.PutInt(g.Y)
	w.PutInt(g.PhysicalWidth)
	w.PutInt(g.PhysicalHeight)
	w.PutInt(g.Subpixel)
	w.PutString(g.Make)
	w.PutString(g.Model)
	w.PutInt(g.Transform)
	return send(s, w)
}

// SendOutputMode advertises a video mode.
func SendOutputMode(s waybind.Sender, this waybind.ObjectID, flags uint32, width, height, refresh int32) error {
	w := waybind.NewWriter(this, 1)
	w.PutUint(flags)
	w.PutInt(width)
	w.PutInt(height)
	w.PutInt(refresh)
	return send(s, w)
}

// SendOutputDone marks the end of a batch of output properties. Since version 2.
func SendOutputDone(s waybind.Sender, this waybind.ObjectID) error {
	return send(s, waybind.NewWriter(this, 2))
}

// SendOutputScale sends the output scale factor. Since version 2.
func SendOutputScale(s waybind.Sender, this waybind.ObjectID, factor int32) error {
	w := waybind.NewWriter(this, 3)
	w.PutInt(factor)
	return send(s, w)
}
