package device

import (
	"sync"
	"testing"

	"github.com/opendma/qdma-core/internal/pci"
)

const testModName = "qdma-test"

// newBusDevice creates a simulated bus device with a valid identification
// word and a capability register advertising both transfer modes.
func newBusDevice(bus, slot, fn uint8) *pci.SimDevice {
	d := pci.NewSimDevice(pci.SimConfig{
		Addr:     pci.Address{Bus: bus, Slot: slot, Function: fn},
		Vendor:   0x10ee,
		Device:   0x903f,
		BarSizes: []int{4096},
	})
	d.Program32(0, 0, configIdent|0x1)
	d.Program32(0, regFuncCap, funcCapMM|funcCapST|funcCapFLR|1<<funcCapMMChShift)
	return d
}

// newSTMBusDevice creates a simulated device of the silicon variant that
// carries the STM co-processor, with a supported revision word seeded.
func newSTMBusDevice(bus, slot, fn uint8) *pci.SimDevice {
	d := pci.NewSimDevice(pci.SimConfig{
		Addr:     pci.Address{Bus: bus, Slot: slot, Function: fn},
		Vendor:   0x10ee,
		Device:   stmDeviceID,
		BarSizes: []int{4096, 0, 1024},
	})
	d.Program32(0, 0, configIdent|0x1)
	d.Program32(0, regFuncCap, funcCapMM|funcCapST|1<<funcCapMMChShift)
	d.Program32(stmBar, stmRegBase+stmRegRev, 'S'<<24|'T'<<16|'M'<<8|1)
	return d
}

// fakeInit is a test Initializer with error injection and call counting.
type fakeInit struct {
	mu       sync.Mutex
	initErr  error
	inits    int
	cleanups int
}

func (f *fakeInit) Init(*Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeInit) Cleanup(*Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
}

// fakeMailbox is a test Mailbox with error injection and call counting.
type fakeMailbox struct {
	mu       sync.Mutex
	initErr  error
	inits    int
	starts   int
	cleanups int
}

func (f *fakeMailbox) Init(*Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeMailbox) Start(*Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
}

func (f *fakeMailbox) Cleanup(*Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
}

// fakeVirt is a test VirtStrategy with error injection and call counting.
type fakeVirt struct {
	mu        sync.Mutex
	onlineErr error
	onlines   int
	offlines  int
}

func (f *fakeVirt) Online(*Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onlines++
	return f.onlineErr
}

func (f *fakeVirt) Offline(*Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offlines++
}

// eventRecorder collects lifecycle transition names in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) record(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) DeviceAttached(Config) { r.record("attached") }
func (r *eventRecorder) DeviceOnline(Config)   { r.record("online") }
func (r *eventRecorder) DeviceOffline(Config)  { r.record("offline") }
func (r *eventRecorder) DeviceDetached(Config) { r.record("detached") }

func (r *eventRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// testEnv bundles a manager with its fake collaborators.
type testEnv struct {
	mgr  *Manager
	init *fakeInit
	mbox *fakeMailbox
	virt *fakeVirt
	rec  *eventRecorder
}

func newTestEnv(role Role) *testEnv {
	env := &testEnv{
		init: &fakeInit{},
		mbox: &fakeMailbox{},
		virt: &fakeVirt{},
		rec:  &eventRecorder{},
	}
	env.mgr = NewManager(ManagerConfig{
		Role:     role,
		Init:     env.init,
		Mailbox:  env.mbox,
		Virt:     env.virt,
		Recorder: env.rec,
	})
	return env
}

// mustOpen opens a bus device and fails the test on error.
func (env *testEnv) mustOpen(t *testing.T, busDev pci.Device) (Handle, *Config) {
	t.Helper()

	conf := &Config{BusDev: busDev, QSetsMax: 32}
	hndl, err := env.mgr.Open(testModName, conf)
	if err != nil {
		t.Fatalf("Open(%s): %v", busDev.Name(), err)
	}
	return hndl, conf
}
