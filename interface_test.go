package waybind

import (
	"errors"
	"strings"
	"testing"
)

func TestInterface_Direction(t *testing.T) {
	if got := testInterface.Inbound(ServerRole); len(got) != len(testInterface.Requests) {
		t.Errorf("server inbound has %d messages, want requests", len(got))
	}
	if got := testInterface.Inbound(ClientRole); len(got) != len(testInterface.Events) {
		t.Errorf("client inbound has %d messages, want events", len(got))
	}
	if got := testInterface.Outbound(ServerRole); got[0].Name != "ping" {
		t.Errorf("server outbound = %v, want events", got)
	}
	if got := testInterface.Outbound(ClientRole); got[0].Name != "bind" {
		t.Errorf("client outbound = %v, want requests", got)
	}
}

func TestInterface_Message(t *testing.T) {
	m, ok := testInterface.Message(ServerRole, 2)
	if !ok || m.Name != "everything" {
		t.Errorf("Message(2) = %v, %v", m, ok)
	}
	if m.HandleCount() != 1 {
		t.Errorf("HandleCount = %d, want 1", m.HandleCount())
	}
	if _, ok := testInterface.Message(ClientRole, 1); ok {
		t.Error("Message found an event past the table")
	}
}

func TestInterface_MessageName(t *testing.T) {
	tests := []struct {
		iface  *Interface
		role   Role
		opcode Opcode
		want   string
	}{
		{&testInterface, ServerRole, 0, "test_object.bind"},
		{&testInterface, ClientRole, 0, "test_object.ping"},
		{&testInterface, ServerRole, 40, "test_object opcode 40"},
		{nil, ServerRole, 3, "opcode 3"},
	}

	for _, tt := range tests {
		if got := tt.iface.MessageName(tt.role, tt.opcode); got != tt.want {
			t.Errorf("MessageName = %q, want %q", got, tt.want)
		}
	}
}

func TestInterface_Validate(t *testing.T) {
	if err := testInterface.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	tests := []struct {
		name  string
		iface Interface
		want  string
	}{
		{"no name", Interface{Version: 1}, "without name"},
		{"no version", Interface{Name: "x"}, "version"},
		{"too new", Interface{Name: "x", Version: 1, Requests: []MessageDesc{{Name: "m", Since: 2}}}, "since 2"},
		{"bad letter", Interface{Name: "x", Version: 1, Events: []MessageDesc{{Name: "m", Since: 1, Signature: "ux"}}}, "unknown argument type"},
		{"nullable uint", Interface{Name: "x", Version: 1, Events: []MessageDesc{{Name: "m", Since: 1, Signature: "?u"}}}, "cannot be nullable"},
		{"dangling", Interface{Name: "x", Version: 1, Events: []MessageDesc{{Name: "m", Since: 1, Signature: "s?"}}}, "dangling"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.iface.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
			if !errors.Is(err, ErrInvalidInterface) {
				t.Errorf("err = %v, want ErrInvalidInterface", err)
			}
		})
	}
}
