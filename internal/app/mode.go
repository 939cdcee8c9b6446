package app

// StorageMode tells whether room state survives a restart.
type StorageMode string

const (
	// ModeDurable persists through the configured backend.
	ModeDurable StorageMode = "durable"
	// ModeMemory serves from process memory because the durable backend was
	// unreachable at start.
	ModeMemory StorageMode = "memory"
)
