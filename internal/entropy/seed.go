// Package entropy supplies seeds for scenarios that ask for a random one.
// Seeds come from crypto/rand so concurrently started runs never collide;
// the clock is the fallback when the system source is unavailable.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"
)

// Seed returns a positive, non-zero seed.
func Seed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Warn("crypto/rand unavailable, seeding from clock", "error", err)
		return clockSeed()
	}
	s := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if s == 0 {
		return clockSeed()
	}
	return s
}

func clockSeed() int64 {
	s := time.Now().UnixNano() & (1<<63 - 1)
	if s == 0 {
		return 1
	}
	return s
}
