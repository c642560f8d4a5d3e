// Package identity describes a single worker process for logging,
// metrics, and claim requests.
package identity

import (
	"os"
	"time"

	uuid "github.com/satori/go.uuid"
)

// Worker identifies one running worker process. It is minted once at
// startup and never changes for the lifetime of the process.
type Worker struct {
	ID        string
	Hostname  string
	PID       int
	StartedAt time.Time
}

// New mints a fresh Worker identity. hostname lookup failures are
// tolerated -- the hostname field is informational only.
func New(now time.Time) Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return Worker{
		ID:        uuid.NewV4().String(),
		Hostname:  hostname,
		PID:       os.Getpid(),
		StartedAt: now,
	}
}
