package uid

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// counterBits is the width of the intra-batch counter (the UUIDv7 rand_a
// field). A batch longer than 1<<counterBits borrows milliseconds from the
// future to stay strictly increasing.
const counterBits = 12

// Generator produces batches of fresh UIDs. The zero value is ready to use;
// one Generator is safe for concurrent callers.
type Generator struct {
	lock   sync.Mutex
	lastMS uint64
}

// Batch returns n fresh identifiers, strictly increasing within the call.
// Batches from different calls are not ordered relative to each other
// beyond the millisecond clock. Entropy exhaustion is not a recoverable
// condition and panics.
func (g *Generator) Batch(n int) []UID {
	if n <= 0 {
		return nil
	}

	entropy := make([]byte, n*8)
	if _, err := rand.Read(entropy); err != nil {
		panic("uid: system random source failed: " + err.Error())
	}

	g.lock.Lock()
	ms := uint64(time.Now().UnixMilli())
	// Never step backwards across calls, or an unlucky NTP slew would
	// break the coarse ordering promise.
	if ms < g.lastMS {
		ms = g.lastMS
	}
	g.lastMS = ms + uint64(n-1)>>counterBits
	g.lock.Unlock()

	out := make([]UID, n)
	for i := 0; i < n; i++ {
		out[i] = stamp(ms+uint64(i)>>counterBits, uint16(i)&(1<<counterBits-1), entropy[i*8:i*8+8])
	}
	return out
}

// stamp packs one UUIDv7 value: 48-bit millisecond timestamp, version 7,
// 12-bit counter, RFC 4122 variant, 62 random bits.
func stamp(ms uint64, counter uint16, random []byte) UID {
	var u UID
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], ms)
	copy(u[:6], ts[2:])

	u[6] = 0x70 | byte(counter>>8)&0x0f
	u[7] = byte(counter)

	copy(u[8:], random)
	u[8] = 0x80 | u[8]&0x3f
	return u
}
