package waybind

// Object id ranges. Clients allocate from the low range, servers from the high one.
const (
	ClientIDMin ObjectID = 0x00000001
	ClientIDMax ObjectID = 0xfeffffff
	ServerIDMin ObjectID = 0xff000000
	ServerIDMax ObjectID = 0xffffffff
)

// options holds the configuration for a registry.
type options struct {
	role   Role
	logger Logger

	minID ObjectID
	maxID ObjectID

	// onDestroy is called after an object has been removed.
	onDestroy func(id ObjectID)
}

// Option is a function that configures registry options.
type Option func(*options)

// RoleOption sets the side of the connection the registry serves. It
// selects the id range used by Allocate and how opcodes are named in logs.
// The default is ServerRole.
func RoleOption(role Role) Option {
	return func(o *options) {
		o.role = role
		if role == ClientRole {
			o.minID, o.maxID = ClientIDMin, ClientIDMax
		} else {
			o.minID, o.maxID = ServerIDMin, ServerIDMax
		}
	}
}

// IDRangeOption overrides the range Allocate draws ids from.
func IDRangeOption(min, max ObjectID) Option {
	return func(o *options) {
		o.minID = min
		o.maxID = max
	}
}

// OnDestroyOption sets a callback invoked after an object is removed,
// for example to send a delete_id acknowledgement.
func OnDestroyOption(cb func(id ObjectID)) Option {
	return func(o *options) {
		o.onDestroy = cb
	}
}

// LoggerOption sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// checkOptions fills in defaults.
func checkOptions(opts *options) {
	if opts.minID == 0 || opts.maxID < opts.minID {
		RoleOption(opts.role)(opts)
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}
