// Package runlock implements a Redis lock that keeps two sync processes from
// loading the same table at the same time. The lock value is a JSON State
// naming the owner, so a contended run can report who holds it.
package runlock

import (
	"encoding/json"
	"fmt"
	"time"
)

// KeyPrefix is prepended to every lock key.
const KeyPrefix = "subgraph-sync:lock:"

// DefaultTTL is how long a lock lives without a Refresh.
const DefaultTTL = 5 * time.Minute

// Key returns the Redis key guarding schema.table.
func Key(schema, table string) string {
	return fmt.Sprintf("%s%s.%s", KeyPrefix, schema, table)
}

// State is the value stored under a lock key.
type State struct {
	// Token identifies the owner; only the owner may refresh or release.
	Token string `json:"token"`

	// Host is the hostname of the owning process.
	Host string `json:"host"`

	// PID of the owning process.
	PID int `json:"pid"`

	// AcquiredAt is when the lock was first taken.
	AcquiredAt time.Time `json:"acquired_at"`
}

// Age returns how long the lock has been held.
func (s *State) Age() time.Duration {
	return time.Since(s.AcquiredAt)
}

func (s *State) encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal lock state: %w", err)
	}
	return string(data), nil
}

func decodeState(raw string) (*State, error) {
	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("unmarshal lock state: %w", err)
	}
	return &s, nil
}
