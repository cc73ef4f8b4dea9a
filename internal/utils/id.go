package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewMessageID returns a best-effort unique message identifier built from
// a unix-millis timestamp and a random hex suffix.
func NewMessageID() string {
	const size = 4

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to nanosecond precision if crypto/rand is unavailable.
		return now + "-" + strconv.FormatInt(time.Now().UnixNano()%1e9, 10)
	}
	return now + "-" + hex.EncodeToString(buf)
}
