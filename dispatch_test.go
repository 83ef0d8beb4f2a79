package waybind

import (
	"bytes"
	"errors"
	"testing"
)

// testInterface exercises every argument type.
var testInterface = Interface{
	Name:    "test_object",
	Version: 1,
	Requests: []MessageDesc{
		{Name: "bind", Since: 1, Signature: "u"},
		{Name: "destroy", Since: 1, Signature: ""},
		{Name: "everything", Since: 1, Signature: "ifs?sah"},
		{Name: "terminate", Since: 1, Signature: ""},
		{Name: "fail", Since: 1, Signature: "u"},
		{Name: "create", Since: 1, Signature: "n"},
	},
	Events: []MessageDesc{
		{Name: "ping", Since: 1, Signature: "u"},
	},
}

type everything struct {
	i   int32
	f   Fixed
	s   string
	opt string
	a   []byte
	fd  int
}

type testObject interface {
	Bind(bundle Bundle, this ObjectID, value uint32) (Task, error)
	Destroy(bundle Bundle, this ObjectID) (Task, error)
	Everything(bundle Bundle, this ObjectID, args everything) (Task, error)
	Terminate(bundle Bundle, this ObjectID) (Task, error)
	Fail(bundle Bundle, this ObjectID, code uint32) (Task, error)
	Create(bundle Bundle, this ObjectID, id ObjectID) (Task, error)
}

type testDispatcher struct{}

func (testDispatcher) Interface() *Interface { return &testInterface }

func (testDispatcher) Dispatch(object testObject, bundle Bundle, header Header, args *Reader) (Task, error) {
	switch header.Opcode {
	case 0:
		v, _ := args.Uint()
		if err := args.Done(); err != nil {
			return Malformed(&testInterface, ServerRole, header, args, err)
		}
		return object.Bind(bundle, header.ObjectID, v)
	case 1:
		if err := args.Done(); err != nil {
			return Malformed(&testInterface, ServerRole, header, args, err)
		}
		return object.Destroy(bundle, header.ObjectID)
	case 2:
		var e everything
		e.i, _ = args.Int()
		e.f, _ = args.Fixed()
		e.s, _ = args.String()
		e.opt, _ = args.OptionalString()
		e.a, _ = args.Array()
		e.fd, _ = args.FD()
		if err := args.Done(); err != nil {
			return Malformed(&testInterface, ServerRole, header, args, err)
		}
		return object.Everything(bundle, header.ObjectID, e)
	case 3:
		if err := args.Done(); err != nil {
			return Malformed(&testInterface, ServerRole, header, args, err)
		}
		return object.Terminate(bundle, header.ObjectID)
	case 4:
		code, _ := args.Uint()
		if err := args.Done(); err != nil {
			return Malformed(&testInterface, ServerRole, header, args, err)
		}
		return object.Fail(bundle, header.ObjectID, code)
	case 5:
		id, _ := args.NewID()
		if err := args.Done(); err != nil {
			return Malformed(&testInterface, ServerRole, header, args, err)
		}
		return object.Create(bundle, header.ObjectID, id)
	default:
		return UnknownOpcode(&testInterface, header)
	}
}

// recorder is a testObject that remembers what it was called with.
type recorder struct {
	calls []string
	bound uint32
	last  everything
}

func (r *recorder) Bind(bundle Bundle, this ObjectID, value uint32) (Task, error) {
	r.calls = append(r.calls, "bind")
	r.bound = value
	w := NewWriter(this, 0)
	w.PutUint(value)
	msg, err := w.Message()
	if err != nil {
		return Continue, err
	}
	return Continue, bundle.Send(msg)
}

func (r *recorder) Destroy(Bundle, ObjectID) (Task, error) {
	r.calls = append(r.calls, "destroy")
	return Destroy, nil
}

func (r *recorder) Everything(_ Bundle, _ ObjectID, args everything) (Task, error) {
	r.calls = append(r.calls, "everything")
	r.last = args
	return Continue, nil
}

func (r *recorder) Terminate(Bundle, ObjectID) (Task, error) {
	r.calls = append(r.calls, "terminate")
	return Terminate, nil
}

func (r *recorder) Fail(_ Bundle, _ ObjectID, code uint32) (Task, error) {
	r.calls = append(r.calls, "fail")
	return Continue, MethodError(code, "failed with %d", code)
}

func (r *recorder) Create(bundle Bundle, _ ObjectID, id ObjectID) (Task, error) {
	r.calls = append(r.calls, "create")
	return Continue, bundle.Register(id, NewHandler[testObject, testDispatcher](&recorder{}))
}

// fakeBundle collects sent messages and forwards object management to a registry.
type fakeBundle struct {
	registry *Registry
	sent     []Message
}

func newFakeBundle(opt ...Option) *fakeBundle {
	opt = append([]Option{LoggerOption(&mockLogger{})}, opt...)
	return &fakeBundle{registry: NewRegistry(opt...)}
}

func (b *fakeBundle) Send(msg Message) error {
	b.sent = append(b.sent, msg)
	return nil
}

func (b *fakeBundle) Register(id ObjectID, object Object) error {
	return b.registry.Register(id, object)
}

func (b *fakeBundle) Remove(id ObjectID) {
	b.registry.Remove(id)
}

func encode(t *testing.T, w *Writer) (Header, *Reader) {
	t.Helper()
	msg, err := w.Message()
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	return msg.Header, NewReader(msg.Args, msg.FDs)
}

func TestHandler_Dispatch(t *testing.T) {
	obj := &recorder{}
	h := NewHandler[testObject, testDispatcher](obj)
	bundle := newFakeBundle()

	w := NewWriter(3, 0)
	w.PutUint(7)
	header, args := encode(t, w)

	task, err := h.Dispatch(bundle, header, args)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if task != Continue {
		t.Errorf("task = %v, want continue", task)
	}
	if obj.bound != 7 {
		t.Errorf("bound = %d, want 7", obj.bound)
	}
	if len(bundle.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bundle.sent))
	}
	if got := bundle.sent[0].Header; got.ObjectID != 3 || got.Opcode != 0 || got.Size != 12 {
		t.Errorf("sent header = %v", got)
	}
}

func TestHandler_ObjectAndInterface(t *testing.T) {
	obj := &recorder{}
	h := NewHandler[testObject, testDispatcher](obj)

	if h.Object() != testObject(obj) {
		t.Error("Object did not return the bound object")
	}
	if h.Interface() != &testInterface {
		t.Error("Interface did not return the dispatcher's descriptor")
	}

	var d Described = h
	if d.Interface().Name != "test_object" {
		t.Errorf("Interface().Name = %q", d.Interface().Name)
	}
}

func TestHandler_UnknownOpcode(t *testing.T) {
	obj := &recorder{}
	h := NewHandler[testObject, testDispatcher](obj)

	w := NewWriter(3, 9)
	w.PutUint(1)
	header, args := encode(t, w)

	_, err := h.Dispatch(newFakeBundle(), header, args)
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("err = %v, want ErrUnknownOpcode", err)
	}
	if args.Len() != 4 {
		t.Errorf("unknown opcode consumed arguments: %d bytes left", args.Len())
	}
	if len(obj.calls) != 0 {
		t.Errorf("object was called: %v", obj.calls)
	}

	var de *DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("err is %T, want *DispatchError", err)
	}
	if de.ObjectID != 3 || de.Opcode != 9 || de.Interface != "test_object" {
		t.Errorf("error = %+v", de)
	}
}

func TestHandler_TruncatedPayload(t *testing.T) {
	obj := &recorder{}
	h := NewHandler[testObject, testDispatcher](obj)

	header := Header{ObjectID: 3, Opcode: 0, Size: HeaderSize + 2}
	args := NewReader([]byte{1, 2}, nil)

	_, err := h.Dispatch(newFakeBundle(), header, args)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if len(obj.calls) != 0 {
		t.Errorf("object was called: %v", obj.calls)
	}
	if args.Len() != 0 {
		t.Errorf("cursor not at end of message: %d bytes left", args.Len())
	}

	var de *DispatchError
	errors.As(err, &de)
	if de.Message != "test_object.bind" {
		t.Errorf("Message = %q, want test_object.bind", de.Message)
	}
}

func TestHandler_TrailingBytes(t *testing.T) {
	obj := &recorder{}
	h := NewHandler[testObject, testDispatcher](obj)

	w := NewWriter(3, 1)
	w.PutUint(0)
	header, args := encode(t, w)

	_, err := h.Dispatch(newFakeBundle(), header, args)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if len(obj.calls) != 0 {
		t.Errorf("object was called: %v", obj.calls)
	}
}

func TestHandler_MalformedConsumesHandles(t *testing.T) {
	obj := &recorder{}
	h := NewHandler[testObject, testDispatcher](obj)

	w := NewWriter(3, 2)
	w.PutInt(1)
	w.PutFixed(FixedFromInt(1))
	w.PutUint(100) // string length past the end of the payload
	msg, err := w.Message()
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	args := NewReader(msg.Args, []int{10, 11})

	_, err = h.Dispatch(newFakeBundle(), msg.Header, args)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if args.Len() != 0 {
		t.Errorf("%d argument bytes left", args.Len())
	}
	if args.FDsConsumed() != 1 {
		t.Errorf("FDsConsumed = %d, want 1", args.FDsConsumed())
	}
}

func TestHandler_AllArgumentTypes(t *testing.T) {
	obj := &recorder{}
	h := NewHandler[testObject, testDispatcher](obj)

	w := NewWriter(3, 2)
	w.PutInt(-5)
	w.PutFixed(FixedFromFloat(2.5))
	w.PutString("hello")
	w.PutOptionalString("")
	w.PutArray([]byte{1, 2, 3})
	w.PutFD(42)
	header, args := encode(t, w)

	if _, err := h.Dispatch(newFakeBundle(), header, args); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	got := obj.last
	if got.i != -5 {
		t.Errorf("i = %d, want -5", got.i)
	}
	if got.f.Float64() != 2.5 {
		t.Errorf("f = %v, want 2.5", got.f.Float64())
	}
	if got.s != "hello" {
		t.Errorf("s = %q, want hello", got.s)
	}
	if got.opt != "" {
		t.Errorf("opt = %q, want null", got.opt)
	}
	if !bytes.Equal(got.a, []byte{1, 2, 3}) {
		t.Errorf("a = %v, want [1 2 3]", got.a)
	}
	if got.fd != 42 {
		t.Errorf("fd = %d, want 42", got.fd)
	}
	if args.FDsConsumed() != 1 {
		t.Errorf("FDsConsumed = %d, want 1", args.FDsConsumed())
	}
}

func TestHandler_Idempotent(t *testing.T) {
	obj := &recorder{}
	h := NewHandler[testObject, testDispatcher](obj)

	w := NewWriter(3, 0)
	w.PutUint(11)
	msg, err := w.Message()
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		task, err := h.Dispatch(newFakeBundle(), msg.Header, NewReader(msg.Args, nil))
		if err != nil || task != Continue {
			t.Fatalf("dispatch %d: task=%v err=%v", i, task, err)
		}
	}
	if len(obj.calls) != 2 || obj.bound != 11 {
		t.Errorf("calls = %v, bound = %d", obj.calls, obj.bound)
	}
}

func TestHandler_SameObjectSameOutcome(t *testing.T) {
	var base recorder
	a, b := base, base
	h1 := NewHandler[testObject, testDispatcher](&a)
	h2 := NewHandler[testObject, testDispatcher](&b)

	bind := NewWriter(3, 0)
	bind.PutUint(11)
	fail := NewWriter(3, 4)
	fail.PutUint(5)
	writers := []*Writer{bind, fail, NewWriter(3, 9), NewWriter(3, 0)}

	for i, w := range writers {
		msg, err := w.Message()
		if err != nil {
			t.Fatalf("Message %d failed: %v", i, err)
		}
		b1, b2 := newFakeBundle(), newFakeBundle()
		task1, err1 := h1.Dispatch(b1, msg.Header, NewReader(msg.Args, nil))
		task2, err2 := h2.Dispatch(b2, msg.Header, NewReader(msg.Args, nil))

		if task1 != task2 {
			t.Errorf("message %d: tasks differ: %v vs %v", i, task1, task2)
		}
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("message %d: errors differ: %v vs %v", i, err1, err2)
		}
		if err1 != nil {
			d1, d2 := AsDispatchError(err1), AsDispatchError(err2)
			if d1.Kind != d2.Kind || d1.Code != d2.Code || err1.Error() != err2.Error() {
				t.Errorf("message %d: errors differ: %v vs %v", i, err1, err2)
			}
		}
		if len(b1.sent) != len(b2.sent) {
			t.Fatalf("message %d: sent %d vs %d messages", i, len(b1.sent), len(b2.sent))
		}
		for j := range b1.sent {
			if !bytes.Equal(b1.sent[j].Bytes(), b2.sent[j].Bytes()) {
				t.Errorf("message %d: sent message %d differs", i, j)
			}
		}
	}

	// Each handler drove only its own object.
	if len(a.calls) != 3 || len(b.calls) != 3 {
		t.Errorf("calls = %v and %v, want three each", a.calls, b.calls)
	}
	if len(base.calls) != 0 {
		t.Errorf("original object touched: %v", base.calls)
	}
}

func TestHandler_ReturnsTask(t *testing.T) {
	h := NewHandler[testObject, testDispatcher](&recorder{})

	tests := []struct {
		opcode Opcode
		want   Task
	}{
		{1, Destroy},
		{3, Terminate},
	}
	for _, tt := range tests {
		header, args := encode(t, NewWriter(3, tt.opcode))
		task, err := h.Dispatch(newFakeBundle(), header, args)
		if err != nil {
			t.Fatalf("opcode %d: %v", tt.opcode, err)
		}
		if task != tt.want {
			t.Errorf("opcode %d: task = %v, want %v", tt.opcode, task, tt.want)
		}
	}
}
