package device

import (
	"errors"
	"testing"
)

func TestCheckHandleValid(t *testing.T) {
	env := newTestEnv(RoleControlling)
	busDev := newBusDevice(1, 0, 0)
	hndl, _ := env.mustOpen(t, busDev)

	dev, err := env.mgr.checkHandle("test", busDev, hndl, false)
	if err != nil {
		t.Fatalf("checkHandle: %v", err)
	}
	if dev == nil || dev.token != string(hndl) {
		t.Error("checkHandle returned the wrong device")
	}
}

func TestCheckHandleNilBusDevice(t *testing.T) {
	env := newTestEnv(RoleControlling)
	busDev := newBusDevice(1, 0, 0)
	hndl, _ := env.mustOpen(t, busDev)

	_, err := env.mgr.checkHandle("test", nil, hndl, false)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil bus device = %v, want ErrInvalidInput", err)
	}
}

func TestCheckHandleUnregistered(t *testing.T) {
	env := newTestEnv(RoleControlling)
	busDev := newBusDevice(1, 0, 0)
	hndl, _ := env.mustOpen(t, busDev)

	other := newBusDevice(2, 0, 0)
	_, err := env.mgr.checkHandle("test", other, hndl, false)
	if !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("unregistered bus device = %v, want ErrHandleInvalid", err)
	}
}

func TestCheckHandleTokenMismatch(t *testing.T) {
	env := newTestEnv(RoleControlling)
	busDev := newBusDevice(1, 0, 0)
	env.mustOpen(t, busDev)

	_, err := env.mgr.checkHandle("test", busDev, Handle("forged-token"), false)
	if !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("forged token = %v, want ErrHandleInvalid", err)
	}
}

func TestCheckHandleBusDeviceMismatch(t *testing.T) {
	// The stored bus device is double-checked against the one the caller
	// supplies, guarding against a stale or reused reference. Simulate
	// the skew directly on the registered object.
	env := newTestEnv(RoleControlling)
	busDev := newBusDevice(1, 0, 0)
	hndl, _ := env.mustOpen(t, busDev)

	dev := env.mgr.registry.findByToken(string(hndl))
	dev.mu.Lock()
	dev.conf.BusDev = newBusDevice(9, 0, 0)
	dev.mu.Unlock()

	if _, err := env.mgr.checkHandle("test", busDev, hndl, false); !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("stale reference = %v, want ErrHandleInvalid", err)
	}
}

func TestCheckHandlePermissiveMismatch(t *testing.T) {
	env := newTestEnv(RoleControlling)
	busDev := newBusDevice(1, 0, 0)
	hndl, _ := env.mustOpen(t, busDev)

	// Permissive mode still rejects a token mismatch.
	if _, err := env.mgr.checkHandle("test", busDev, Handle("bogus"), true); err == nil {
		t.Error("permissive mode accepted a forged token")
	}
	// Valid handles pass in permissive mode.
	if _, err := env.mgr.checkHandle("test", busDev, hndl, true); err != nil {
		t.Errorf("permissive mode rejected a valid handle: %v", err)
	}
}

func TestCheckTokenAfterClose(t *testing.T) {
	env := newTestEnv(RoleControlling)
	busDev := newBusDevice(1, 0, 0)
	hndl, _ := env.mustOpen(t, busDev)

	if _, err := env.mgr.checkToken("test", hndl); err != nil {
		t.Fatalf("checkToken before close: %v", err)
	}

	env.mgr.Close(busDev, hndl)

	_, err := env.mgr.checkToken("test", hndl)
	if !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("checkToken after close = %v, want ErrHandleInvalid", err)
	}
}
