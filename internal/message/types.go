package message

import (
	"errors"
	"time"

	"relaybot/internal/transport"
)

var (
	ErrNotFound = errors.New("not found")
)

// Config configures the message store.
//
// Driver values:
//   - "memory": in-process only, lost on restart
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the memory store is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Ad is a named piece of campaign content. Delivery forwards Source when it
// still exists; FallbackText is sent as plain text when the source message
// has been deleted.
type Ad struct {
	Name         string
	Source       transport.MessageRef
	FallbackText string
	CreatedBy    int64
	CreatedAt    time.Time
}

// TargetList is a named set of destinations a campaign can be pointed at.
type TargetList struct {
	Name    string
	Targets []transport.ChatTarget
}
