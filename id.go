package ripple

import "sync/atomic"

// globalIDCounter is the source of unique ids for nodes, listeners, and
// effects. Atomic increments keep id generation lock-free.
var globalIDCounter atomic.Uint64

// nextID returns the next unique id. Ids are monotonically increasing and
// never reused, so registries can key on them safely.
func nextID() uint64 {
	return globalIDCounter.Add(1)
}
