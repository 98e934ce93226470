package capability

import "errors"

// Registry errors.
var (
	// ErrExists is returned when registering a name twice.
	ErrExists = errors.New("capability: already registered")

	// ErrUnknown is returned for a name that was never registered.
	ErrUnknown = errors.New("capability: unknown")

	// ErrLoaded is returned when loading an instance that already exists.
	ErrLoaded = errors.New("capability: already loaded")

	// ErrNotLoaded is returned when unloading a name without an instance.
	ErrNotLoaded = errors.New("capability: not loaded")

	// ErrLocked is returned when unloading a locked capability.
	ErrLocked = errors.New("capability: locked")

	// ErrOutOfMemory is returned when a constructor yields no instance.
	ErrOutOfMemory = errors.New("capability: out of memory")
)
