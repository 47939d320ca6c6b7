package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

// StateDigest fingerprints the full game state: player position, points,
// and every cache record ever created, in sorted key order. Two engines
// fed the same command stream must produce the same digest; replay
// verification depends on it.
func (e *Engine) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, math.Float64bits(e.playerLat))
	digestWriteU64(h, &tmp, math.Float64bits(e.playerLng))
	digestWriteI64(h, &tmp, int64(e.points))

	keys := e.store.Keys()
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	digestWriteI64(h, &tmp, int64(len(keys)))
	for _, k := range keys {
		rec, _ := e.store.Get(k.Cell())
		digestWriteI64(h, &tmp, int64(k))
		digestWriteI64(h, &tmp, int64(rec.PointValue))
		digestWriteI64(h, &tmp, int64(rec.NextSerial))
		if rec.Materialized() {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h interface{ Write([]byte) (int, error) }, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h interface{ Write([]byte) (int, error) }, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}
