//go:build linux

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
	"github.com/Zereker/waybind/server/wayland"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Errors returned by connection operations.
var (
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrTooManyFDs is returned when the peer sends more descriptors than its messages consume.
	ErrTooManyFDs = errors.New("too many pending file descriptors")

	errTerminated = errors.New("connection terminated")
)

// Default configuration values.
const (
	defaultBufferSize   = 32
	defaultWriteTimeout = 10 * time.Second

	// maxFDsPerMessage matches libwayland's per-sendmsg limit.
	maxFDsPerMessage = 28
	maxPendingFDs    = 4 * maxFDsPerMessage
)

type connOptions struct {
	role         waybind.Role
	bufferSize   int
	writeTimeout time.Duration
	onError      func(err error) waybind.ErrorAction
	logger       waybind.Logger
}

type connOption func(*connOptions)

// roleOption sets which side of the protocol the connection speaks.
func roleOption(role waybind.Role) connOption {
	return func(o *connOptions) {
		o.role = role
	}
}

// bufferSizeOption sets the size of the outbound message queue.
func bufferSizeOption(size int) connOption {
	return func(o *connOptions) {
		o.bufferSize = size
	}
}

// writeTimeoutOption sets the deadline for a single socket write.
func writeTimeoutOption(timeout time.Duration) connOption {
	return func(o *connOptions) {
		o.writeTimeout = timeout
	}
}

// onErrorOption sets the policy applied to dispatch errors.
// The default is waybind.DefaultErrorPolicy.
func onErrorOption(cb func(err error) waybind.ErrorAction) connOption {
	return func(o *connOptions) {
		o.onError = cb
	}
}

func loggerOption(logger waybind.Logger) connOption {
	return func(o *connOptions) {
		o.logger = logger
	}
}

// Conn carries one Wayland connection over a Unix socket. It frames
// messages, queues received file descriptors and drives the connection's
// object registry from its read loop. Conn is the Bundle handed to every
// dispatched method.
type Conn struct {
	rawConn *net.UnixConn
	logger  waybind.Logger
	opts    connOptions

	objects *waybind.Registry
	args    *waybind.Reader

	in     []byte // receive buffer; in[:filled] is unprocessed
	filled int
	fds    []int // received descriptors not yet consumed by a message

	sendMsg  chan waybind.Message
	readDone chan struct{} // closed when the read loop has stopped
	readErr  error         // why it stopped, set before readDone is closed

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	cancel    context.CancelFunc
}

// newConn wraps a connected Unix socket.
func newConn(conn *net.UnixConn, opt ...connOption) *Conn {
	var opts connOptions
	for _, o := range opt {
		o(&opts)
	}
	checkConnOptions(&opts)

	c := &Conn{
		rawConn:  conn,
		logger:   opts.logger,
		opts:     opts,
		args:     waybind.NewReader(nil, nil),
		in:       make([]byte, 2*waybind.MaxMessageSize),
		sendMsg:  make(chan waybind.Message, opts.bufferSize),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.objects = waybind.NewRegistry(
		waybind.RoleOption(opts.role),
		waybind.LoggerOption(opts.logger),
		waybind.OnDestroyOption(c.onDestroy),
	)
	return c
}

func checkConnOptions(opts *connOptions) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}
	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}
	if opts.onError == nil {
		opts.onError = waybind.DefaultErrorPolicy
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
}

// Objects returns the connection's object registry.
func (c *Conn) Objects() *waybind.Registry {
	return c.objects
}

// Send queues a message for the write loop. It blocks while the queue is
// full. The message's descriptors stay owned by the caller.
func (c *Conn) Send(msg waybind.Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.sendMsg <- msg:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	}
}

// Register implements waybind.Bundle.
func (c *Conn) Register(id waybind.ObjectID, object waybind.Object) error {
	return c.objects.Register(id, object)
}

// Remove implements waybind.Bundle.
func (c *Conn) Remove(id waybind.ObjectID) {
	c.objects.Remove(id)
}

// Run starts the read and write loops and blocks until the connection
// ends. The peer hanging up and a Terminate task both end it cleanly.
// When the read side stops, messages already queued are written before
// the socket is closed.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "role", c.opts.role)
	c.logger.Debug("connection options", "buffer_size", c.opts.bufferSize, "write_timeout", c.opts.writeTimeout)

	ctx, c.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		c.readErr = c.readLoop(child)
		close(c.readDone)
		return nil
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// The read loop blocks in the kernel; closing the socket is what stops it.
	group.Go(func() error {
		<-child.Done()
		c.closeConn()
		return nil
	})

	err := group.Wait()
	c.closeConn()
	closeFDs(c.fds)
	c.fds = nil

	if isCleanClose(err) {
		c.logger.Info("connection closed")
		return nil
	}
	c.logger.Info("connection closed with error", "error", err)
	return err
}

func isCleanClose(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, errTerminated) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed)
}

// Close closes the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.closeOnce.Do(func() { close(c.done) })
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// readLoop reads bytes and descriptors from the socket and dispatches
// every complete message in order.
func (c *Conn) readLoop(ctx context.Context) error {
	oob := make([]byte, unix.CmsgSpace(maxFDsPerMessage*4))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, oobn, _, _, err := c.rawConn.ReadMsgUnix(c.in[c.filled:], oob)
		if oobn > 0 {
			if ferr := c.collectFDs(oob[:oobn]); ferr != nil {
				return ferr
			}
		}
		if n > 0 {
			c.filled += n
			if perr := c.process(); perr != nil {
				return perr
			}
		}
		if err != nil {
			c.logger.Debug("read error", "error", err)
			return err
		}
		// ReadMsgUnix reports a hang-up as an empty read, not io.EOF.
		if n == 0 && oobn == 0 {
			return io.EOF
		}
	}
}

func (c *Conn) collectFDs(oob []byte) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return pkgerrors.Wrap(err, "parse control message")
	}
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		c.fds = append(c.fds, fds...)
	}
	if len(c.fds) > maxPendingFDs {
		return ErrTooManyFDs
	}
	return nil
}

// process dispatches the complete messages at the front of the buffer and
// moves the remaining partial message to the start.
func (c *Conn) process() error {
	pos := 0
	defer func() {
		c.filled = copy(c.in, c.in[pos:c.filled])
	}()

	for c.filled-pos >= waybind.HeaderSize {
		header, err := waybind.ParseHeader(c.in[pos:c.filled])
		if err != nil {
			return err
		}
		if int(header.Size) > waybind.MaxMessageSize {
			return pkgerrors.Wrapf(waybind.ErrMessageTooLarge, "%v", header)
		}
		if c.filled-pos < int(header.Size) {
			return nil
		}

		c.args.Reset(c.in[pos+waybind.HeaderSize:pos+int(header.Size)], c.fds)
		task, err := c.objects.Dispatch(c, header, c.args)
		used := c.args.FDsConsumed()
		if err != nil && waybind.AsDispatchError(err).Kind == waybind.MalformedArgumentsError {
			// Decoding failed, so no method was handed these descriptors.
			closeFDs(c.fds[:used])
		}
		c.fds = c.fds[used:]
		pos += int(header.Size)

		if err != nil {
			if herr := c.handleError(err); herr != nil {
				return herr
			}
			continue
		}
		if task == waybind.Terminate {
			return errTerminated
		}
	}
	return nil
}

// handleError applies the error policy to a dispatch error.
//
// A message for an unknown object or with an unknown opcode has no
// descriptor, so the descriptors it carried cannot be told apart from
// those of later messages. Such errors end the connection whatever the
// policy says, after the error is reported when the policy asks for it.
func (c *Conn) handleError(err error) error {
	action := c.opts.onError(err)
	de := waybind.AsDispatchError(err)
	c.logger.Debug("dispatch error", "action", action, "error", err)

	switch action {
	case waybind.ContinueAction:
		if unframed(de) && len(c.fds) > 0 {
			return pkgerrors.Wrap(err, "pending file descriptors cannot be matched")
		}
		return nil
	case waybind.Report:
		if c.opts.role != waybind.ServerRole {
			return err
		}
		message := de.Message
		if message == "" {
			message = de.Error()
		}
		if serr := wayland.SendDisplayError(c, protocol.DisplayID, de.ObjectID, reportCode(de), message); serr != nil {
			return serr
		}
		if de.Kind != waybind.MethodFailureError {
			return err
		}
		return nil
	default:
		return err
	}
}

// unframed reports whether the failed message's arguments were never decoded.
func unframed(de *waybind.DispatchError) bool {
	return de.Kind == waybind.UnknownObjectError || de.Kind == waybind.UnknownOpcodeError
}

// reportCode picks the wl_display error code for a dispatch error.
func reportCode(de *waybind.DispatchError) uint32 {
	switch de.Kind {
	case waybind.MethodFailureError:
		return de.Code
	case waybind.UnknownObjectError:
		return protocol.DisplayErrorInvalidObject
	default:
		return protocol.DisplayErrorInvalidMethod
	}
}

// onDestroy acknowledges destroyed client objects so the client can reuse their ids.
func (c *Conn) onDestroy(id waybind.ObjectID) {
	if c.opts.role != waybind.ServerRole || id >= waybind.ServerIDMin {
		return
	}
	if err := wayland.SendDisplayDeleteID(c, protocol.DisplayID, uint32(id)); err != nil {
		c.logger.Debug("delete_id not sent", "id", id, "error", err)
	}
}

// writeLoop sends queued messages until the context is canceled or a write
// fails. Once the read loop stops it flushes the queue and ends with the
// read loop's error.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.sendMsg:
			if err := c.write(msg); err != nil {
				return err
			}
		case <-c.readDone:
			c.flush()
			if c.readErr == nil {
				return errTerminated
			}
			return c.readErr
		}
	}
}

// flush writes whatever is still queued. Write errors only end the flush;
// the connection is going away anyway.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.sendMsg:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// write sends one message with its descriptors attached to the first byte.
func (c *Conn) write(msg waybind.Message) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))

	data := msg.Bytes()
	var oob []byte
	if len(msg.FDs) > 0 {
		oob = unix.UnixRights(msg.FDs...)
	}

	n, _, err := c.rawConn.WriteMsgUnix(data, oob, nil)
	if err == nil && n < len(data) {
		_, err = c.rawConn.Write(data[n:])
	}
	if err != nil {
		c.logger.Debug("write error", "error", err)
		return err
	}
	return nil
}

// closeConn marks the connection as closed and closes the socket.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.closeOnce.Do(func() { close(c.done) })
	c.rawConn.Close()
}

func closeFDs(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
