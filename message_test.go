package waybind

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestParseHeader(t *testing.T) {
	b := make([]byte, HeaderSize)
	Header{ObjectID: 0xff000001, Opcode: 3, Size: 16}.Put(b)

	h, err := ParseHeader(b)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if h.ObjectID != 0xff000001 || h.Opcode != 3 || h.Size != 16 {
		t.Errorf("header = %v", h)
	}
	if h.PayloadSize() != 8 {
		t.Errorf("PayloadSize = %d, want 8", h.PayloadSize())
	}
}

func TestParseHeader_Errors(t *testing.T) {
	tests := []struct {
		name string
		size uint16
		buf  int
		want error
	}{
		{"short", 8, 7, ErrShortHeader},
		{"smaller than header", 4, 8, ErrInvalidSize},
		{"unaligned", 14, 8, ErrInvalidSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, HeaderSize)
			Header{ObjectID: 1, Size: tt.size}.Put(b)
			if _, err := ParseHeader(b[:tt.buf]); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadMessage(t *testing.T) {
	w := NewWriter(2, 1)
	w.PutString("wl_shm")
	w.PutUint(1)
	first, err := w.Message()
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	second, err := NewWriter(3, 0).Message()
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}

	var stream bytes.Buffer
	stream.Write(first.Bytes())
	stream.Write(second.Bytes())

	got, err := ReadMessage(&stream, 0)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if got.Header != first.Header || !bytes.Equal(got.Args, first.Args) {
		t.Errorf("first message = %v %v", got.Header, got.Args)
	}

	got, err = ReadMessage(&stream, 0)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if got.Header.ObjectID != 3 || got.Length() != HeaderSize {
		t.Errorf("second message = %v", got.Header)
	}

	if _, err := ReadMessage(&stream, 0); err != io.EOF {
		t.Errorf("err at end of stream = %v, want io.EOF", err)
	}
}

func TestReadMessage_Errors(t *testing.T) {
	w := NewWriter(1, 0)
	w.PutUint(1)
	w.PutUint(2)
	msg, _ := w.Message()
	full := msg.Bytes()

	if _, err := ReadMessage(bytes.NewReader(full[:3]), 0); !errors.Is(err, ErrShortHeader) {
		t.Errorf("short header err = %v", err)
	}
	if _, err := ReadMessage(bytes.NewReader(full[:12]), 0); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated payload err = %v", err)
	}
	if _, err := ReadMessage(bytes.NewReader(full), 12); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized err = %v", err)
	}
}
