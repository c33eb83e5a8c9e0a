// Package nonce implements the global key counter of IEEE 802.11-2016
// 12.7.5, the source of ANonce, SNonce and GNonce values. Counter values are
// public once sent and must never be used as key material.
package nonce

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/wifi"
)

const initLabel = "Init Counter"

// Nonce is a 256-bit handshake nonce.
type Nonce = [32]byte

// Reader hands out unique nonces. One Reader is shared by every association
// of a device; it is safe for concurrent use.
type Reader struct {
	mu        sync.Mutex
	counter   Nonce
	exhausted bool
}

// NewReader seeds a Reader from crypto/rand, the local MAC address and the
// current time.
func NewReader(mac wifi.MacAddr) (*Reader, error) {
	return NewReaderFromRand(rand.Reader, mac, time.Now())
}

// NewReaderFromRand seeds a Reader with PRF-256(random, "Init Counter",
// MAC || time) where random is read from rnd. A failed read returns
// EntropyUnavailable.
func NewReaderFromRand(rnd io.Reader, mac wifi.MacAddr, now time.Time) (*Reader, error) {
	var random [32]byte
	if _, err := io.ReadFull(rnd, random[:]); err != nil {
		return nil, rsnerr.Wrap(rsnerr.EntropyUnavailable, err)
	}
	data := make([]byte, 0, len(mac)+8)
	data = append(data, mac[:]...)
	data = binary.BigEndian.AppendUint64(data, uint64(now.UnixNano()))

	seed, err := key.PRF(random[:], initLabel, data, 256)
	if err != nil {
		return nil, err
	}
	r := &Reader{}
	copy(r.counter[:], seed)
	return r, nil
}

// NewReaderFromSeed returns a Reader whose first nonce is seed, or seed+1
// when seed is zero. Intended for deterministic tests.
func NewReaderFromSeed(seed Nonce) *Reader {
	return &Reader{counter: seed}
}

// Next returns the current counter value and advances it. The zero value is
// never returned. Once the counter wraps every call fails with
// NonceExhausted.
func (r *Reader) Next() (Nonce, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exhausted {
		return Nonce{}, rsnerr.New(rsnerr.NonceExhausted, "")
	}
	if r.counter == (Nonce{}) {
		r.increment()
	}
	n := r.counter
	if r.increment() {
		r.exhausted = true
	}
	return n, nil
}

// increment adds one to the big-endian counter and reports whether it
// wrapped to zero.
func (r *Reader) increment() bool {
	for i := len(r.counter) - 1; i >= 0; i-- {
		r.counter[i]++
		if r.counter[i] != 0 {
			return false
		}
	}
	return true
}
