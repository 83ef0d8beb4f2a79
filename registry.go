package waybind

import (
	"errors"
	"sort"

	pkgerrors "github.com/pkg/errors"
)

// Errors returned by registry operations.
var (
	// ErrNullObject is returned when registering id 0.
	ErrNullObject = errors.New("waybind: null object id")
	// ErrObjectExists is returned when registering an id that is still live.
	ErrObjectExists = errors.New("waybind: object id already in use")
	// ErrIDsExhausted is returned when Allocate has no id left in its range.
	ErrIDsExhausted = errors.New("waybind: object ids exhausted")
)

// Registry maps the object ids of one connection to their handlers and
// drives dispatch for that connection. It is not safe for concurrent use:
// like the objects it holds, it belongs to the connection's read loop.
type Registry struct {
	opts    options
	objects map[ObjectID]Object

	next ObjectID
	free []ObjectID // released ids, kept sorted ascending

	// zombies are client ids destroyed locally whose delete_id has not
	// arrived yet. Messages still in flight for them are discarded.
	zombies map[ObjectID]*Interface
}

// NewRegistry creates an empty registry.
func NewRegistry(opt ...Option) *Registry {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Registry{
		opts:    opts,
		objects: make(map[ObjectID]Object),
		zombies: make(map[ObjectID]*Interface),
		next:    opts.minID,
	}
}

// Register adds object under id. The id must be non-null and not live.
func (r *Registry) Register(id ObjectID, object Object) error {
	if id == 0 {
		return ErrNullObject
	}
	if _, ok := r.objects[id]; ok {
		return pkgerrors.Wrapf(ErrObjectExists, "object %d", id)
	}
	r.objects[id] = object
	delete(r.zombies, id)
	r.claim(id)
	r.opts.logger.Debug("object registered", "id", id, "interface", describe(object))
	return nil
}

// Replace rebinds a live id to a new object. Handlers never change their
// object in place, so rebinding always goes through here.
func (r *Registry) Replace(id ObjectID, object Object) error {
	if _, ok := r.objects[id]; !ok {
		return pkgerrors.Wrapf(ErrUnknownObject, "object %d", id)
	}
	r.objects[id] = object
	return nil
}

// Remove drops the object with the given id and releases the id. Removing
// an id that is not live does nothing.
//
// In the client role an id from the client range is not released until
// Release is called for it, which happens when the server acknowledges the
// destruction with delete_id. Until then the id is not reallocated and
// messages addressed to it are discarded.
func (r *Registry) Remove(id ObjectID) {
	obj, ok := r.objects[id]
	if !ok {
		return
	}
	delete(r.objects, id)
	if r.opts.role == ClientRole && r.inRange(id) {
		var iface *Interface
		if d, ok := obj.(Described); ok {
			iface = d.Interface()
		}
		r.zombies[id] = iface
	} else {
		r.release(id)
	}
	r.opts.logger.Debug("object removed", "id", id)
	if r.opts.onDestroy != nil {
		r.opts.onDestroy(id)
	}
}

// Release makes a removed client id available to Allocate again. Ids that
// are live or were never removed are left alone.
func (r *Registry) Release(id ObjectID) {
	if _, ok := r.zombies[id]; !ok {
		return
	}
	delete(r.zombies, id)
	r.release(id)
	r.opts.logger.Debug("object id released", "id", id)
}

// Lookup returns the object registered under id.
func (r *Registry) Lookup(id ObjectID) (Object, bool) {
	obj, ok := r.objects[id]
	return obj, ok
}

// Len returns the number of live objects.
func (r *Registry) Len() int {
	return len(r.objects)
}

// IDs returns the live ids in ascending order.
func (r *Registry) IDs() []ObjectID {
	ids := make([]ObjectID, 0, len(r.objects))
	for id := range r.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Allocate returns an unused id from the registry's range. Released ids
// are handed out again lowest first before the range grows.
func (r *Registry) Allocate() (ObjectID, error) {
	for len(r.free) > 0 {
		id := r.free[0]
		r.free = r.free[1:]
		if r.unused(id) {
			return id, nil
		}
	}
	for r.next != 0 && r.next <= r.opts.maxID {
		id := r.next
		r.next++
		if r.unused(id) {
			return id, nil
		}
	}
	return 0, ErrIDsExhausted
}

// Dispatch routes one message to the object it targets. A Destroy task
// removes the object before returning. Errors are always *DispatchError.
func (r *Registry) Dispatch(bundle Bundle, header Header, args *Reader) (Task, error) {
	obj, ok := r.objects[header.ObjectID]
	if !ok {
		if iface, zombie := r.zombies[header.ObjectID]; zombie {
			if iface != nil {
				if desc, ok := iface.Message(r.opts.role, header.Opcode); ok {
					args.Discard(desc)
				}
			}
			r.opts.logger.Debug("message for destroyed object discarded", messageAttrs(header, r.zombieMessageName(iface, header))...)
			return Continue, nil
		}
		r.opts.logger.Debug("message for unknown object", messageAttrs(header, "")...)
		return Continue, UnknownObject(header)
	}

	task, err := obj.Dispatch(bundle, header, args)
	if err != nil {
		de := *AsDispatchError(err)
		if de.ObjectID == 0 {
			de.ObjectID = header.ObjectID
			de.Opcode = header.Opcode
		}
		if d, ok := obj.(Described); ok && de.Interface == "" {
			de.Interface = d.Interface().Name
		}
		r.opts.logger.Debug("dispatch failed", messageAttrs(header, r.messageName(obj, header), "kind", de.Kind, "error", err)...)
		return Continue, &de
	}

	switch task {
	case Destroy:
		r.Remove(header.ObjectID)
	case Terminate:
		r.opts.logger.Info("connection termination requested", messageAttrs(header, r.messageName(obj, header))...)
	}
	return task, nil
}

func (r *Registry) messageName(obj Object, header Header) string {
	if d, ok := obj.(Described); ok {
		return d.Interface().MessageName(r.opts.role, header.Opcode)
	}
	return (*Interface)(nil).MessageName(r.opts.role, header.Opcode)
}

func (r *Registry) zombieMessageName(iface *Interface, header Header) string {
	if iface == nil {
		return ""
	}
	return iface.MessageName(r.opts.role, header.Opcode)
}

func (r *Registry) inRange(id ObjectID) bool {
	return id >= r.opts.minID && id <= r.opts.maxID
}

func (r *Registry) unused(id ObjectID) bool {
	_, live := r.objects[id]
	_, zombie := r.zombies[id]
	return !live && !zombie
}

// claim keeps the allocator from handing out an id registered by hand.
func (r *Registry) claim(id ObjectID) {
	i := sort.Search(len(r.free), func(i int) bool { return r.free[i] >= id })
	if i < len(r.free) && r.free[i] == id {
		r.free = append(r.free[:i], r.free[i+1:]...)
	}
}

func (r *Registry) release(id ObjectID) {
	if !r.inRange(id) {
		return
	}
	// next wraps to 0 once the whole range has been handed out.
	if r.next != 0 && id >= r.next {
		return
	}
	i := sort.Search(len(r.free), func(i int) bool { return r.free[i] >= id })
	if i < len(r.free) && r.free[i] == id {
		return
	}
	r.free = append(r.free, 0)
	copy(r.free[i+1:], r.free[i:])
	r.free[i] = id
}

func describe(object Object) string {
	if d, ok := object.(Described); ok {
		return d.Interface().Name
	}
	return ""
}
