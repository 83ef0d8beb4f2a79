//go:build linux

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"net"

	"github.com/Zereker/waybind"
	client "github.com/Zereker/waybind/client/screenshooter"
	"github.com/Zereker/waybind/client/wayland"
	"github.com/Zereker/waybind/protocol"
	"golang.org/x/sys/unix"
)

// ErrIncomplete is returned when the compositor hangs up before the screenshot is done.
var ErrIncomplete = errors.New("connection closed before the screenshot completed")

// screenshot is the result of a shoot run.
type screenshot struct {
	width, height int32
	stride        int32
	pixels        []byte
	model         string
}

// mismatches counts the pixels that differ from the compositor's test pattern.
func (s *screenshot) mismatches() int {
	bad := 0
	for y := int32(0); y < s.height; y++ {
		row := s.pixels[y*s.stride:]
		for x := int32(0); x < s.width; x++ {
			// The X channel of XRGB is undefined.
			got := binary.NativeEndian.Uint32(row[x*4:]) & 0x00ffffff
			if got != testPattern(x, y, s.width, s.height)&0x00ffffff {
				bad++
			}
		}
	}
	return bad
}

func (s *screenshot) print(w io.Writer) error {
	_, err := fmt.Fprintf(w, "captured %dx%d from %s: crc32 %08x, %d pixels off pattern\n",
		s.width, s.height, s.model, crc32.ChecksumIEEE(s.pixels), s.mismatches())
	return err
}

type registryGlobal struct {
	name    uint32
	version uint32
}

// shootClient walks the client side of a screenshot: discover globals,
// bind them, share a memfd-backed buffer and ask for a shot. Everything
// after start runs on the connection's read loop.
type shootClient struct {
	conn   *Conn
	logger *slog.Logger

	registry waybind.ObjectID
	shm      waybind.ObjectID
	output   waybind.ObjectID
	shooter  waybind.ObjectID

	globals map[string]registryGlobal
	formats []uint32
	width   int32
	height  int32
	model   string

	memfd int
	data  []byte

	result *screenshot
	err    error
}

func newShootClient(raw *net.UnixConn, cfg *config, logger *slog.Logger) *shootClient {
	c := &shootClient{
		logger:  logger,
		globals: make(map[string]registryGlobal),
		memfd:   -1,
	}
	c.conn = newConn(raw,
		roleOption(waybind.ClientRole),
		bufferSizeOption(cfg.SendBuffer),
		writeTimeoutOption(cfg.WriteTimeout),
		loggerOption(logger),
	)
	return c
}

// runShoot connects to the configured display and takes one screenshot.
func runShoot(ctx context.Context, cfg *config, logger *slog.Logger) (*screenshot, error) {
	raw, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: cfg.socketPath(), Net: "unix"})
	if err != nil {
		return nil, err
	}
	return newShootClient(raw, cfg, logger).shoot(ctx)
}

func (c *shootClient) shoot(ctx context.Context) (*screenshot, error) {
	defer c.cleanup()

	if err := c.start(); err != nil {
		c.conn.Close()
		return nil, err
	}
	if err := c.conn.Run(ctx); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.result == nil {
		return nil, ErrIncomplete
	}
	return c.result, nil
}

// newObject allocates a client id for object and registers it.
func (c *shootClient) newObject(object waybind.Object) (waybind.ObjectID, error) {
	id, err := c.conn.Objects().Allocate()
	if err != nil {
		return 0, err
	}
	return id, c.conn.Register(id, object)
}

// sync sends wl_display.sync and runs next once the compositor has caught up.
func (c *shootClient) sync(next func(bundle waybind.Bundle) (waybind.Task, error)) error {
	callback, err := c.newObject(wayland.NewCallback(syncCallback(next)))
	if err != nil {
		return err
	}
	return wayland.Sync(c.conn, protocol.DisplayID, callback)
}

func (c *shootClient) start() error {
	if err := c.conn.Register(protocol.DisplayID, wayland.NewDisplay(&displayEvents{c})); err != nil {
		return err
	}
	registry, err := c.newObject(wayland.NewRegistry(&registryEvents{c}))
	if err != nil {
		return err
	}
	c.registry = registry
	if err := wayland.GetRegistry(c.conn, protocol.DisplayID, registry); err != nil {
		return err
	}
	return c.sync(c.bindGlobals)
}

// fail ends the run with err.
func (c *shootClient) fail(err error) (waybind.Task, error) {
	c.err = err
	return waybind.Terminate, nil
}

func (c *shootClient) bind(iface *waybind.Interface, object waybind.Object) (waybind.ObjectID, error) {
	g, ok := c.globals[iface.Name]
	if !ok {
		return 0, fmt.Errorf("compositor does not advertise %s", iface.Name)
	}
	id, err := c.newObject(object)
	if err != nil {
		return 0, err
	}
	version := min(g.version, iface.Version)
	return id, wayland.Bind(c.conn, c.registry, g.name, iface.Name, version, id)
}

// bindGlobals runs once the initial globals have been announced.
func (c *shootClient) bindGlobals(waybind.Bundle) (waybind.Task, error) {
	var err error
	if c.shm, err = c.bind(&protocol.Shm, wayland.NewShm(&shmEvents{c})); err != nil {
		return c.fail(err)
	}
	if c.output, err = c.bind(&protocol.Output, wayland.NewOutput(&outputEvents{c})); err != nil {
		return c.fail(err)
	}
	if c.shooter, err = c.bind(&protocol.Screenshooter, client.New(&shooterEvents{c})); err != nil {
		return c.fail(err)
	}
	// A second round trip collects the formats and output modes the binds produced.
	if err := c.sync(c.requestShot); err != nil {
		return c.fail(err)
	}
	return waybind.Continue, nil
}

// requestShot shares a buffer the size of the output and asks for a shot.
func (c *shootClient) requestShot(waybind.Bundle) (waybind.Task, error) {
	if c.width <= 0 || c.height <= 0 {
		return c.fail(errors.New("output did not report a current mode"))
	}
	if !c.hasFormat(protocol.ShmFormatXRGB8888) {
		return c.fail(errors.New("compositor does not support XRGB8888"))
	}

	stride := c.width * 4
	size := int(stride) * int(c.height)

	fd, err := unix.MemfdCreate("waybind-shot", unix.MFD_CLOEXEC)
	if err != nil {
		return c.fail(fmt.Errorf("memfd_create: %w", err))
	}
	c.memfd = fd
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return c.fail(fmt.Errorf("ftruncate: %w", err))
	}
	if c.data, err = unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED); err != nil {
		return c.fail(fmt.Errorf("mmap: %w", err))
	}

	pool, err := c.newObject(wayland.NewShmPool(struct{}{}))
	if err != nil {
		return c.fail(err)
	}
	buffer, err := c.newObject(wayland.NewBuffer(&bufferEvents{}))
	if err != nil {
		return c.fail(err)
	}

	steps := []func() error{
		func() error { return wayland.CreatePool(c.conn, c.shm, pool, fd, int32(size)) },
		func() error {
			return wayland.CreateBuffer(c.conn, pool, buffer, 0, c.width, c.height, stride, protocol.ShmFormatXRGB8888)
		},
		func() error { return wayland.ShmPoolDestroy(c.conn, pool) },
		func() error { return client.Shoot(c.conn, c.shooter, c.output, buffer) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return c.fail(err)
		}
	}
	c.conn.Remove(pool)
	return waybind.Continue, nil
}

func (c *shootClient) hasFormat(format uint32) bool {
	for _, f := range c.formats {
		if f == format {
			return true
		}
	}
	return false
}

func (c *shootClient) cleanup() {
	if c.data != nil {
		unix.Munmap(c.data)
		c.data = nil
	}
	if c.memfd >= 0 {
		unix.Close(c.memfd)
		c.memfd = -1
	}
}

type syncCallback func(bundle waybind.Bundle) (waybind.Task, error)

// Done implements wayland.Callback. Callbacks fire once.
func (f syncCallback) Done(bundle waybind.Bundle, _ waybind.ObjectID, _ uint32) (waybind.Task, error) {
	task, err := f(bundle)
	if err != nil || task != waybind.Continue {
		return task, err
	}
	return waybind.Destroy, nil
}

type displayEvents struct{ c *shootClient }

func (d *displayEvents) Error(_ waybind.Bundle, _ waybind.ObjectID, object waybind.ObjectID, code uint32, message string) (waybind.Task, error) {
	return d.c.fail(fmt.Errorf("compositor error on object %d, code %d: %s", object, code, message))
}

func (d *displayEvents) DeleteID(_ waybind.Bundle, _ waybind.ObjectID, id uint32) (waybind.Task, error) {
	d.c.logger.Debug("id released by compositor", "id", id)
	d.c.conn.Objects().Release(waybind.ObjectID(id))
	return waybind.Continue, nil
}

type registryEvents struct{ c *shootClient }

func (r *registryEvents) Global(_ waybind.Bundle, _ waybind.ObjectID, name uint32, iface string, version uint32) (waybind.Task, error) {
	r.c.globals[iface] = registryGlobal{name: name, version: version}
	return waybind.Continue, nil
}

func (r *registryEvents) GlobalRemove(_ waybind.Bundle, _ waybind.ObjectID, name uint32) (waybind.Task, error) {
	for iface, g := range r.c.globals {
		if g.name == name {
			delete(r.c.globals, iface)
		}
	}
	return waybind.Continue, nil
}

type shmEvents struct{ c *shootClient }

func (s *shmEvents) Format(_ waybind.Bundle, _ waybind.ObjectID, format uint32) (waybind.Task, error) {
	s.c.formats = append(s.c.formats, format)
	return waybind.Continue, nil
}

type outputEvents struct{ c *shootClient }

func (o *outputEvents) Geometry(_ waybind.Bundle, _ waybind.ObjectID, g wayland.OutputGeometry) (waybind.Task, error) {
	o.c.model = g.Make + " " + g.Model
	return waybind.Continue, nil
}

func (o *outputEvents) Mode(_ waybind.Bundle, _ waybind.ObjectID, flags uint32, width, height, _ int32) (waybind.Task, error) {
	if flags&protocol.OutputModeCurrent != 0 {
		o.c.width, o.c.height = width, height
	}
	return waybind.Continue, nil
}

func (*outputEvents) Done(waybind.Bundle, waybind.ObjectID) (waybind.Task, error) {
	return waybind.Continue, nil
}

func (*outputEvents) Scale(waybind.Bundle, waybind.ObjectID, int32) (waybind.Task, error) {
	return waybind.Continue, nil
}

type bufferEvents struct{}

func (*bufferEvents) Release(waybind.Bundle, waybind.ObjectID) (waybind.Task, error) {
	return waybind.Continue, nil
}

type shooterEvents struct{ c *shootClient }

// Done copies the shot out of the shared buffer and ends the run.
func (s *shooterEvents) Done(waybind.Bundle, waybind.ObjectID) (waybind.Task, error) {
	c := s.c
	pixels := make([]byte, len(c.data))
	copy(pixels, c.data)
	c.result = &screenshot{
		width:  c.width,
		height: c.height,
		stride: c.width * 4,
		pixels: pixels,
		model:  c.model,
	}
	return waybind.Terminate, nil
}
