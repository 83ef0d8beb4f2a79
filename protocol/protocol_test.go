package protocol

import (
	"testing"

	"github.com/Zereker/waybind"
)

func TestInterfaces_Validate(t *testing.T) {
	for name, iface := range Interfaces {
		if name != iface.Name {
			t.Errorf("Interfaces[%q] is %q", name, iface.Name)
		}
		if err := iface.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestInterfaces_Complete(t *testing.T) {
	for _, name := range []string{
		"wl_display", "wl_registry", "wl_callback", "wl_shm",
		"wl_shm_pool", "wl_buffer", "wl_output", "weston_screenshooter",
	} {
		if _, ok := Interfaces[name]; !ok {
			t.Errorf("%s missing", name)
		}
	}
}

func TestShm_CreatePoolCarriesHandle(t *testing.T) {
	m, ok := Shm.Message(waybind.ServerRole, 0)
	if !ok {
		t.Fatal("wl_shm.create_pool missing")
	}
	if m.HandleCount() != 1 {
		t.Errorf("HandleCount = %d, want 1", m.HandleCount())
	}
}

func TestVersionedMessages(t *testing.T) {
	tests := []struct {
		iface *waybind.Interface
		role  waybind.Role
		op    waybind.Opcode
		since uint32
	}{
		{&Shm, waybind.ServerRole, 1, 2},
		{&Output, waybind.ServerRole, 0, 3},
		{&Output, waybind.ClientRole, 2, 2},
		{&Output, waybind.ClientRole, 3, 2},
	}

	for _, tt := range tests {
		m, ok := tt.iface.Message(tt.role, tt.op)
		if !ok {
			t.Errorf("%s opcode %d missing", tt.iface.Name, tt.op)
			continue
		}
		if m.Since != tt.since {
			t.Errorf("%s: since = %d, want %d", tt.iface.MessageName(tt.role, tt.op), m.Since, tt.since)
		}
	}
}
