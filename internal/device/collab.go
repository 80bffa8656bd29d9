package device

// Logger defines the logging interface used by the lifecycle manager.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Initializer is the device-initialization collaborator. Init brings up the
// device hardware state during the online sequence; Cleanup tears it down
// and must be idempotent.
type Initializer interface {
	Init(dev *Device) error
	Cleanup(dev *Device)
}

// Mailbox is the control-channel collaborator. Init is called strictly
// after a successful Initializer.Init; Cleanup strictly before the
// initializer cleanup is unwound, keeping teardown symmetric to the online
// sequence. Start begins message processing and is only used on a
// subordinate-role manager (a controlling role starts its channel when
// virtual functions appear).
type Mailbox interface {
	Init(dev *Device) error
	Start(dev *Device)
	Cleanup(dev *Device)
}

// VirtStrategy is the role-parameterized virtualization collaborator.
// A controlling-role strategy enables and disables virtual functions; a
// subordinate-role strategy announces the device to its controlling peer.
// The concrete strategy is selected at configuration time.
type VirtStrategy interface {
	Online(dev *Device) error
	Offline(dev *Device)
}

// Recorder receives lifecycle transition notifications. Implementations
// must not block; they are called outside all locks.
type Recorder interface {
	DeviceAttached(conf Config)
	DeviceOnline(conf Config)
	DeviceOffline(conf Config)
	DeviceDetached(conf Config)
}

// Noop collaborator implementations, used as defaults so a Manager works
// standalone.
type (
	NoopInitializer struct{}
	NoopMailbox     struct{}
	NoopVirt        struct{}
	noopRecorder    struct{}
)

func (NoopInitializer) Init(*Device) error { return nil }
func (NoopInitializer) Cleanup(*Device)    {}

func (NoopMailbox) Init(*Device) error { return nil }
func (NoopMailbox) Start(*Device)      {}
func (NoopMailbox) Cleanup(*Device)    {}

func (NoopVirt) Online(*Device) error { return nil }
func (NoopVirt) Offline(*Device)      {}

func (noopRecorder) DeviceAttached(Config) {}
func (noopRecorder) DeviceOnline(Config)   {}
func (noopRecorder) DeviceOffline(Config)  {}
func (noopRecorder) DeviceDetached(Config) {}

// MultiRecorder fans lifecycle notifications out to several recorders.
func MultiRecorder(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

type multiRecorder []Recorder

func (m multiRecorder) DeviceAttached(conf Config) {
	for _, r := range m {
		r.DeviceAttached(conf)
	}
}

func (m multiRecorder) DeviceOnline(conf Config) {
	for _, r := range m {
		r.DeviceOnline(conf)
	}
}

func (m multiRecorder) DeviceOffline(conf Config) {
	for _, r := range m {
		r.DeviceOffline(conf)
	}
}

func (m multiRecorder) DeviceDetached(conf Config) {
	for _, r := range m {
		r.DeviceDetached(conf)
	}
}
