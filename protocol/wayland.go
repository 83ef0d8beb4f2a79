// Package protocol holds the schema descriptors shared by the server and
// client bindings, along with the protocol enums.
package protocol

import "github.com/Zereker/waybind"

// Display is the core global object, always bound to id 1.
var Display = waybind.Interface{
	Name:    "wl_display",
	Version: 1,
	Requests: []waybind.MessageDesc{
		{Name: "sync", Since: 1, Signature: "n"},
		{Name: "get_registry", Since: 1, Signature: "n"},
	},
	Events: []waybind.MessageDesc{
		{Name: "error", Since: 1, Signature: "ous"},
		{Name: "delete_id", Since: 1, Signature: "u"},
	},
}

// DisplayID is the id of the display singleton on every connection.
const DisplayID waybind.ObjectID = 1

// Display error codes.
const (
	DisplayErrorInvalidObject  uint32 = 0
	DisplayErrorInvalidMethod  uint32 = 1
	DisplayErrorNoMemory       uint32 = 2
	DisplayErrorImplementation uint32 = 3
)

// Registry announces globals.
var Registry = waybind.Interface{
	Name:    "wl_registry",
	Version: 1,
	Requests: []waybind.MessageDesc{
		{Name: "bind", Since: 1, Signature: "usun"},
	},
	Events: []waybind.MessageDesc{
		{Name: "global", Since: 1, Signature: "usu"},
		{Name: "global_remove", Since: 1, Signature: "u"},
	},
}

// Callback fires once and is destroyed.
var Callback = waybind.Interface{
	Name:    "wl_callback",
	Version: 1,
	Events: []waybind.MessageDesc{
		{Name: "done", Since: 1, Signature: "u"},
	},
}

// Shm creates shared memory pools from client file descriptors.
var Shm = waybind.Interface{
	Name:    "wl_shm",
	Version: 2,
	Requests: []waybind.MessageDesc{
		{Name: "create_pool", Since: 1, Signature: "nhi"},
		{Name: "release", Since: 2, Signature: ""},
	},
	Events: []waybind.MessageDesc{
		{Name: "format", Since: 1, Signature: "u"},
	},
}

// Shm error codes.
const (
	ShmErrorInvalidFormat uint32 = 0
	ShmErrorInvalidStride uint32 = 1
	ShmErrorInvalidFD     uint32 = 2
)

// Shm pixel formats.
const (
	ShmFormatARGB8888 uint32 = 0
	ShmFormatXRGB8888 uint32 = 1
)

// ShmPool is a mapped memory region buffers are carved from.
var ShmPool = waybind.Interface{
	Name:    "wl_shm_pool",
	Version: 2,
	Requests: []waybind.MessageDesc{
		{Name: "create_buffer", Since: 1, Signature: "niiiiu"},
		{Name: "destroy", Since: 1, Signature: ""},
		{Name: "resize", Since: 1, Signature: "i"},
	},
}

// Buffer is a region of pixels.
var Buffer = waybind.Interface{
	Name:    "wl_buffer",
	Version: 1,
	Requests: []waybind.MessageDesc{
		{Name: "destroy", Since: 1, Signature: ""},
	},
	Events: []waybind.MessageDesc{
		{Name: "release", Since: 1, Signature: ""},
	},
}

// Output describes a monitor.
var Output = waybind.Interface{
	Name:    "wl_output",
	Version: 3,
	Requests: []waybind.MessageDesc{
		{Name: "release", Since: 3, Signature: ""},
	},
	Events: []waybind.MessageDesc{
		{Name: "geometry", Since: 1, Signature: "iiiiissi"},
		{Name: "mode", Since: 1, Signature: "uiii"},
		{Name: "done", Since: 2, Signature: ""},
		{Name: "scale", Since: 2, Signature: "i"},
	},
}

// Output enums.
const (
	OutputSubpixelUnknown int32 = 0

	OutputTransformNormal int32 = 0

	OutputModeCurrent   uint32 = 0x1
	OutputModePreferred uint32 = 0x2
)

// Interfaces lists every descriptor by name.
var Interfaces = map[string]*waybind.Interface{
	Display.Name:  &Display,
	Registry.Name: &Registry,
	Callback.Name: &Callback,
	Shm.Name:      &Shm,
	ShmPool.Name:  &ShmPool,
	Buffer.Name:   &Buffer,
	Output.Name:   &Output,

	Screenshooter.Name: &Screenshooter,
}
