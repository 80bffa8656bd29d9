// Package device implements the lifecycle core for QDMA-capable bus devices.
//
// The package maintains a process-wide registry of attached devices keyed by
// their packed bus/slot.function address, and drives each device through the
// open/online/offline/close state machine while coordinating with the
// device-initialization and control-channel (mailbox) collaborators.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                         Lifecycle Manager                         │
//	│                                                                   │
//	│  ┌──────────────┐   ┌──────────────┐   ┌───────────────────────┐ │
//	│  │   Registry   │   │  BAR Mapper  │   │   Handle Validation   │ │
//	│  │ (registry.go)│   │   (bars.go)  │   │      (handle.go)      │ │
//	│  │              │   │              │   │                       │ │
//	│  │ • BDF keyed  │   │ • config BAR │   │ • token comparison    │ │
//	│  │ • idx assign │   │ • STM region │   │ • bus-dev double check│ │
//	│  │ • dump       │   │ • unwind     │   │                       │ │
//	│  └──────────────┘   └──────────────┘   └───────────────────────┘ │
//	│          │                   │                                    │
//	└──────────│───────────────────│────────────────────────────────────┘
//	           │                   │
//	           ▼                   ▼
//	┌────────────────────┐  ┌────────────────────┐
//	│    Collaborators   │  │   pci.Device       │
//	│ • Initializer      │  │ (bus platform      │
//	│ • Mailbox          │  │  primitives)       │
//	│ • VirtStrategy     │  └────────────────────┘
//	└────────────────────┘
//
// # Handles
//
// Open returns an opaque Handle: a generation token issued at registration
// time. Every externally reachable operation that takes a handle validates it
// first: a registry lookup plus a token comparison plus a double-check that
// the registered device still records the bus device the caller supplied.
// Once Close completes, the token is retired and all later validations fail.
//
// # Unwind ordering
//
// Open acquires resources in a fixed order (claim regions, enable device,
// negotiate DMA mask, register, map BARs) and unwinds exactly the completed
// steps, in reverse order, on any failure. Offline and Close are best-effort:
// collaborator failures during teardown are logged, never propagated, so a
// device being torn down is never left half-registered.
//
// # Thread safety
//
// The registry lock serializes all structural changes and scans. Each device
// additionally carries a hardware-programming lock and a general state lock;
// neither is ever held while blocking on the registry lock.
package device
