package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
	"sync/atomic"
	"time"
)

// weakSeedCounter is folded into seedFromTime so repeat calls within the same
// nanosecond (a narrow but real possibility on platforms with coarse clocks)
// never produce the same seed twice.
var weakSeedCounter uint64

// NewConnectionID returns a UUIDv4 (RFC 4122) string, the key every saved
// connection is addressed by. Bytes come from crypto/rand — Go's portable
// equivalent of arc4random_buf on BSD/macOS and /dev/urandom elsewhere, both
// of which crypto/rand reads from directly on their respective platforms —
// falling back to a seeded math/rand/v2 generator only on the exceedingly
// rare failure of the OS CSPRNG.
func NewConnectionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		fillWeakRandom(b[:])
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

func fillWeakRandom(b []byte) {
	r := mrand.NewChaCha8(seedFromTime())
	r.Read(b)
}

// seedFromTime is the weak-RNG fallback's only source of entropy once
// crypto/rand itself has failed; it does not need to be cryptographically
// sound, only different call to call. It mixes the current time with a
// per-process atomic counter, so two calls in the same nanosecond still seed
// the generator differently.
func seedFromTime() [32]byte {
	count := atomic.AddUint64(&weakSeedCounter, 1)

	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[0:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint64(seed[8:16], count)
	p := mrand.NewPCG(uint64(time.Now().UnixNano()), count)
	binary.LittleEndian.PutUint64(seed[16:24], p.Uint64())
	binary.LittleEndian.PutUint64(seed[24:32], p.Uint64())
	return seed
}
