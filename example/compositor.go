//go:build linux

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Zereker/waybind"
	"github.com/Zereker/waybind/protocol"
	"github.com/Zereker/waybind/server/screenshooter"
	"github.com/Zereker/waybind/server/wayland"
	"golang.org/x/sys/unix"
)

// global is one entry of the compositor's wl_registry.
type global struct {
	name    uint32
	iface   *waybind.Interface
	version uint32
}

// compositor accepts clients on the display socket and gives each its own session.
type compositor struct {
	cfg     *config
	logger  *slog.Logger
	globals []global

	connID atomic.Int64

	sync.RWMutex
	sessions map[int64]*session
}

func newCompositor(cfg *config, logger *slog.Logger) *compositor {
	return &compositor{
		cfg:    cfg,
		logger: logger,
		globals: []global{
			{name: 1, iface: &protocol.Shm, version: protocol.Shm.Version},
			{name: 2, iface: &protocol.Output, version: protocol.Output.Version},
			{name: 3, iface: &protocol.Screenshooter, version: protocol.Screenshooter.Version},
		},
		sessions: make(map[int64]*session),
	}
}

// Handle implements connHandler.
func (c *compositor) Handle(ctx context.Context, raw *net.UnixConn) {
	id := c.connID.Add(1)
	s := newSession(c, raw, c.logger.With("conn", id))

	c.addSession(id, s)
	defer c.deleteSession(id)
	defer s.release()

	if err := s.conn.Run(ctx); err != nil {
		s.logger.Warn("connection error", "error", err)
	}
}

func (c *compositor) addSession(id int64, s *session) {
	c.Lock()
	defer c.Unlock()

	c.logger.Info("client connected", "conn", id)
	c.sessions[id] = s
}

func (c *compositor) deleteSession(id int64) {
	c.Lock()
	defer c.Unlock()

	delete(c.sessions, id)
}

func (c *compositor) sessionCount() int {
	c.RLock()
	defer c.RUnlock()

	return len(c.sessions)
}

func (c *compositor) global(name uint32) (global, bool) {
	for _, g := range c.globals {
		if g.name == name {
			return g, true
		}
	}
	return global{}, false
}

// compositorErrorPolicy tells the client about unknown objects and opcodes
// before the connection drops, the way libwayland does. Method failures
// follow the default policy.
func compositorErrorPolicy(err error) waybind.ErrorAction {
	de := waybind.AsDispatchError(err)
	if de == nil {
		return waybind.ContinueAction
	}
	switch de.Kind {
	case waybind.UnknownObjectError, waybind.UnknownOpcodeError:
		return waybind.Report
	}
	return waybind.DefaultErrorPolicy(err)
}

// session is the server side of one client connection. It implements
// wl_display; the objects it creates hold a pointer back to it.
type session struct {
	comp   *compositor
	conn   *Conn
	logger *slog.Logger
	serial uint32
}

func newSession(comp *compositor, raw *net.UnixConn, logger *slog.Logger) *session {
	s := &session{comp: comp, logger: logger}
	s.conn = newConn(raw,
		roleOption(waybind.ServerRole),
		bufferSizeOption(comp.cfg.SendBuffer),
		writeTimeoutOption(comp.cfg.WriteTimeout),
		onErrorOption(compositorErrorPolicy),
		loggerOption(logger),
	)
	// A fresh registry cannot refuse the display id.
	_ = s.conn.Register(protocol.DisplayID, wayland.NewDisplay(s))
	return s
}

// register adds an object created by the client.
func (s *session) register(bundle waybind.Bundle, id waybind.ObjectID, object waybind.Object) error {
	if id >= waybind.ServerIDMin {
		return waybind.MethodError(protocol.DisplayErrorInvalidObject, "new id %d outside the client range", id)
	}
	if err := bundle.Register(id, object); err != nil {
		return waybind.MethodError(protocol.DisplayErrorInvalidObject, "new id %d: %v", id, err)
	}
	return nil
}

// release unmaps every pool still referenced when the client goes away.
func (s *session) release() {
	objects := s.conn.Objects()
	for _, id := range objects.IDs() {
		obj, _ := objects.Lookup(id)
		switch h := obj.(type) {
		case *waybind.Handler[wayland.ShmPool, wayland.ShmPoolDispatcher]:
			h.Object().(*shmPool).unmap()
		case *waybind.Handler[wayland.Buffer, wayland.BufferDispatcher]:
			h.Object().(*shmBuffer).pool.unmap()
		}
	}
}

// Sync implements wayland.Display.
func (s *session) Sync(bundle waybind.Bundle, _ waybind.ObjectID, callback waybind.ObjectID) (waybind.Task, error) {
	if err := s.register(bundle, callback, wayland.NewCallback(struct{}{})); err != nil {
		return waybind.Continue, err
	}
	s.serial++
	if err := wayland.SendCallbackDone(bundle, callback, s.serial); err != nil {
		return waybind.Continue, err
	}
	bundle.Remove(callback)
	return waybind.Continue, nil
}

// GetRegistry implements wayland.Display.
func (s *session) GetRegistry(bundle waybind.Bundle, _ waybind.ObjectID, id waybind.ObjectID) (waybind.Task, error) {
	if err := s.register(bundle, id, wayland.NewRegistry(&registryObject{session: s})); err != nil {
		return waybind.Continue, err
	}
	for _, g := range s.comp.globals {
		if err := wayland.SendRegistryGlobal(bundle, id, g.name, g.iface.Name, g.version); err != nil {
			return waybind.Continue, err
		}
	}
	return waybind.Continue, nil
}

type registryObject struct {
	session *session
}

// Bind implements wayland.Registry.
func (r *registryObject) Bind(bundle waybind.Bundle, _ waybind.ObjectID, name uint32, iface string, version uint32, id waybind.ObjectID) (waybind.Task, error) {
	s := r.session
	g, ok := s.comp.global(name)
	if !ok {
		return waybind.Continue, waybind.MethodError(protocol.DisplayErrorInvalidObject, "no global %d", name)
	}
	if iface != g.iface.Name {
		return waybind.Continue, waybind.MethodError(protocol.DisplayErrorInvalidObject, "global %d is %s, not %s", name, g.iface.Name, iface)
	}
	if version == 0 || version > g.version {
		return waybind.Continue, waybind.MethodError(protocol.DisplayErrorInvalidObject, "invalid version %d for %s", version, iface)
	}

	s.logger.Debug("global bound", "interface", iface, "version", version, "id", id)

	switch g.iface {
	case &protocol.Shm:
		if err := s.register(bundle, id, wayland.NewShm(&shmGlobal{session: s})); err != nil {
			return waybind.Continue, err
		}
		for _, format := range []uint32{protocol.ShmFormatARGB8888, protocol.ShmFormatXRGB8888} {
			if err := wayland.SendShmFormat(bundle, id, format); err != nil {
				return waybind.Continue, err
			}
		}
	case &protocol.Output:
		if err := s.register(bundle, id, wayland.NewOutput(&outputObject{})); err != nil {
			return waybind.Continue, err
		}
		if err := s.sendOutput(bundle, id, version); err != nil {
			return waybind.Continue, err
		}
	case &protocol.Screenshooter:
		if err := s.register(bundle, id, screenshooter.New(&shooter{session: s})); err != nil {
			return waybind.Continue, err
		}
	}
	return waybind.Continue, nil
}

func (s *session) sendOutput(bundle waybind.Bundle, id waybind.ObjectID, version uint32) error {
	cfg := s.comp.cfg
	geometry := wayland.OutputGeometry{
		// 96 dpi
		PhysicalWidth:  cfg.OutputWidth * 254 / 960,
		PhysicalHeight: cfg.OutputHeight * 254 / 960,
		Subpixel:       protocol.OutputSubpixelUnknown,
		Make:           "waybind",
		Model:          "virtual",
		Transform:      protocol.OutputTransformNormal,
	}
	if err := wayland.SendOutputGeometry(bundle, id, geometry); err != nil {
		return err
	}
	flags := protocol.OutputModeCurrent | protocol.OutputModePreferred
	if err := wayland.SendOutputMode(bundle, id, flags, cfg.OutputWidth, cfg.OutputHeight, cfg.OutputRefresh); err != nil {
		return err
	}
	if version < 2 {
		return nil
	}
	if err := wayland.SendOutputScale(bundle, id, 1); err != nil {
		return err
	}
	return wayland.SendOutputDone(bundle, id)
}

type outputObject struct{}

// Release implements wayland.Output.
func (*outputObject) Release(waybind.Bundle, waybind.ObjectID) (waybind.Task, error) {
	return waybind.Destroy, nil
}

type shmGlobal struct {
	session *session
}

// CreatePool implements wayland.Shm. The pool is mapped right away and the
// descriptor closed; the mapping keeps the memory alive.
func (g *shmGlobal) CreatePool(bundle waybind.Bundle, _ waybind.ObjectID, id waybind.ObjectID, fd int, size int32) (waybind.Task, error) {
	defer unix.Close(fd)

	if size <= 0 {
		return waybind.Continue, waybind.MethodError(protocol.ShmErrorInvalidStride, "invalid pool size %d", size)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return waybind.Continue, waybind.MethodError(protocol.ShmErrorInvalidFD, "mmap pool: %v", err)
	}

	pool := &shmPool{session: g.session, data: data}
	if err := g.session.register(bundle, id, wayland.NewShmPool(pool)); err != nil {
		pool.unmap()
		return waybind.Continue, err
	}
	return waybind.Continue, nil
}

// Release implements wayland.Shm.
func (*shmGlobal) Release(waybind.Bundle, waybind.ObjectID) (waybind.Task, error) {
	return waybind.Destroy, nil
}

// shmPool is a client memory region. It stays mapped while any buffer
// created from it is alive, even after the pool object is destroyed.
type shmPool struct {
	session   *session
	data      []byte
	refs      int
	destroyed bool
}

// CreateBuffer implements wayland.ShmPool.
func (p *shmPool) CreateBuffer(bundle waybind.Bundle, _ waybind.ObjectID, id waybind.ObjectID, offset, width, height, stride int32, format uint32) (waybind.Task, error) {
	if format != protocol.ShmFormatARGB8888 && format != protocol.ShmFormatXRGB8888 {
		return waybind.Continue, waybind.MethodError(protocol.ShmErrorInvalidFormat, "unsupported format %#x", format)
	}
	if width <= 0 || height <= 0 || offset < 0 || int64(stride) < int64(width)*4 ||
		int64(offset)+int64(stride)*int64(height) > int64(len(p.data)) {
		return waybind.Continue, waybind.MethodError(protocol.ShmErrorInvalidStride,
			"invalid buffer %dx%d stride %d offset %d in pool of %d bytes", width, height, stride, offset, len(p.data))
	}

	buf := &shmBuffer{pool: p, offset: offset, width: width, height: height, stride: stride, format: format}
	if err := p.session.register(bundle, id, wayland.NewBuffer(buf)); err != nil {
		return waybind.Continue, err
	}
	p.refs++
	return waybind.Continue, nil
}

// Destroy implements wayland.ShmPool.
func (p *shmPool) Destroy(waybind.Bundle, waybind.ObjectID) (waybind.Task, error) {
	p.destroyed = true
	if p.refs == 0 {
		p.unmap()
	}
	return waybind.Destroy, nil
}

// Resize implements wayland.ShmPool. Pools only grow.
func (p *shmPool) Resize(_ waybind.Bundle, _ waybind.ObjectID, size int32) (waybind.Task, error) {
	if int(size) < len(p.data) {
		return waybind.Continue, waybind.MethodError(protocol.ShmErrorInvalidStride, "cannot shrink pool from %d to %d bytes", len(p.data), size)
	}
	data, err := unix.Mremap(p.data, int(size), unix.MREMAP_MAYMOVE)
	if err != nil {
		return waybind.Continue, waybind.MethodError(protocol.ShmErrorInvalidFD, "remap pool: %v", err)
	}
	p.data = data
	return waybind.Continue, nil
}

func (p *shmPool) unmap() {
	if p.data == nil {
		return
	}
	if err := unix.Munmap(p.data); err != nil {
		p.session.logger.Warn("munmap failed", "error", err)
	}
	p.data = nil
}

type shmBuffer struct {
	pool          *shmPool
	offset        int32
	width, height int32
	stride        int32
	format        uint32
}

// Destroy implements wayland.Buffer.
func (b *shmBuffer) Destroy(waybind.Bundle, waybind.ObjectID) (waybind.Task, error) {
	b.pool.refs--
	if b.pool.destroyed && b.pool.refs == 0 {
		b.pool.unmap()
	}
	return waybind.Destroy, nil
}

func (b *shmBuffer) pixels() []byte {
	start := int(b.offset)
	return b.pool.data[start : start+int(b.stride)*int(b.height)]
}

type shooter struct {
	session *session
}

// Shoot implements screenshooter.Screenshooter by painting the output's
// test pattern into the client's buffer.
func (sh *shooter) Shoot(bundle waybind.Bundle, this waybind.ObjectID, output, buffer waybind.ObjectID) (waybind.Task, error) {
	s := sh.session
	objects := s.conn.Objects()

	obj, _ := objects.Lookup(output)
	if _, ok := obj.(*waybind.Handler[wayland.Output, wayland.OutputDispatcher]); !ok {
		return waybind.Continue, waybind.MethodError(protocol.DisplayErrorInvalidObject, "object %d is not an output", output)
	}
	obj, _ = objects.Lookup(buffer)
	h, ok := obj.(*waybind.Handler[wayland.Buffer, wayland.BufferDispatcher])
	if !ok {
		return waybind.Continue, waybind.MethodError(protocol.DisplayErrorInvalidObject, "object %d is not a buffer", buffer)
	}
	buf := h.Object().(*shmBuffer)

	cfg := s.comp.cfg
	if buf.width != cfg.OutputWidth || buf.height != cfg.OutputHeight {
		return waybind.Continue, waybind.MethodError(protocol.DisplayErrorInvalidObject,
			"buffer is %dx%d, output is %dx%d", buf.width, buf.height, cfg.OutputWidth, cfg.OutputHeight)
	}

	paint(buf.pixels(), buf.width, buf.height, buf.stride)
	s.logger.Debug("screenshot taken", "buffer", buffer, "width", buf.width, "height", buf.height)
	return waybind.Continue, screenshooter.SendDone(bundle, this)
}

// testPattern is the color of pixel (x, y) on the virtual output.
func testPattern(x, y, width, height int32) uint32 {
	r := uint32(x) * 255 / uint32(width)
	g := uint32(y) * 255 / uint32(height)
	return 0xff000000 | r<<16 | g<<8 | 0x80
}

func paint(pixels []byte, width, height, stride int32) {
	for y := int32(0); y < height; y++ {
		row := pixels[y*stride:]
		for x := int32(0); x < width; x++ {
			binary.NativeEndian.PutUint32(row[x*4:], testPattern(x, y, width, height))
		}
	}
}

// runServe serves the compositor until ctx is canceled.
func runServe(ctx context.Context, cfg *config, logger *slog.Logger) error {
	srv, err := newServer(cfg.socketPath(),
		serverLoggerOption(logger),
		serverShutdownTimeoutOption(cfg.ShutdownTimeout),
	)
	if err != nil {
		return err
	}
	defer srv.Close()

	err = srv.Serve(ctx, newCompositor(cfg, logger))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
