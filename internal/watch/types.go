package watch

import "time"

// Op classifies a raw filesystem notification.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// RawEvent is one notification batch from the filesystem notifier. It is
// consumed immediately by the loop and never retained.
type RawEvent struct {
	Op    Op
	Paths []string
	Time  time.Time
}

// Burst summarizes a settled run of temporally clustered events.
type Burst struct {
	Paths   []string
	Events  int
	FirstAt time.Time
	LastAt  time.Time
}
