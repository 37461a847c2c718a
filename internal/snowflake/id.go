// Package snowflake provides a time-ordered unique ID generator.
// IDs are used as primary keys and as the externally visible, immutable
// content id of a note; their decimal rendering is opaque to clients.
package snowflake

import (
	"math/rand"
	"strconv"
	"time"
)

type ID uint64

// Now returns a new ID for the current time.
func Now() ID {
	return TimeToID(time.Now())
}

// TimeToID converts a time.Time to an ID.
func TimeToID(ts time.Time) ID {
	// 48 bits for time in milliseconds.
	// 16 bits for random.
	return ID(ts.UnixNano()/int64(time.Millisecond))<<16 | ID(rand.Intn(1<<16))
}

// ToTime converts an ID back to the time it was generated.
func (id ID) ToTime() time.Time {
	return time.Unix(0, int64(id>>16)*1e6)
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Parse converts the decimal rendering of an ID back to an ID.
func Parse(s string) (ID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	return ID(id), err
}
