// Package luck is the deterministic pseudo-random source for world
// generation. Every decision about what exists in the world (does this
// cell hold a cache, what is its starting value) is a pure function of a
// string key, so the same world can be re-derived from scratch on every
// viewport move and across process restarts within a session replay.
package luck

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// Source is a luck function. The engine and store take a Source rather
// than calling Float directly so tests can script exact rolls.
type Source func(key string) float64

// Float maps a key to a value in [0,1). Identical keys always produce
// identical outputs, with no seeding state and no call-order dependence.
func Float(key string) float64 {
	sum := sha256.Sum256([]byte(key))
	u := binary.LittleEndian.Uint64(sum[:8])
	// 2^64 as float64; u/2^64 is always < 1.
	return float64(u) / 18446744073709551616.0
}

// Key joins identifiers into a single luck key. Integer parts joined
// with "," are injective over the (i, j, tag) inputs used here.
func Key(parts ...any) string {
	var b strings.Builder
	for n, p := range parts {
		if n > 0 {
			b.WriteByte(',')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}
