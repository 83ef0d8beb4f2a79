package protocol

import "github.com/Zereker/waybind"

// Screenshooter copies the contents of an output into a client buffer.
var Screenshooter = waybind.Interface{
	Name:    "weston_screenshooter",
	Version: 1,
	Requests: []waybind.MessageDesc{
		{Name: "shoot", Since: 1, Signature: "oo"},
	},
	Events: []waybind.MessageDesc{
		{Name: "done", Since: 1, Signature: ""},
	},
}
