package realtime

import "time"

const (
	// Max bytes per websocket frame read (hard limit). A search frame is a single handle.
	maxFrameBytes = 4 << 10 // 4 KiB

	// Undecodable frames tolerated per connection before a policy-violation close.
	maxBadFrames = 5
)

const (
	// Heartbeat defaults (can be overridden by env in config.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3
)
