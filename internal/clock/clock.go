// Package clock abstracts time and ID generation so expiry and ordering
// logic is deterministic in tests.
package clock

import (
	"time"

	"github.com/rs/xid"
)

// Clock abstracts time retrieval.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation.
type IDGenerator interface {
	New() string
}

// XIDGenerator produces 20-character, time-sortable xids.
type XIDGenerator struct{}

func (XIDGenerator) New() string { return xid.New().String() }
