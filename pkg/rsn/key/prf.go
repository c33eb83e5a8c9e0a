package key

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
)

func checkBits(bits int) error {
	if bits <= 0 || bits%8 != 0 {
		return rsnerr.New(rsnerr.InvalidBitSize, "%d bits", bits)
	}
	return nil
}

// PRF is the HMAC-SHA1 based PRF-n of IEEE 802.11-2016 12.7.1.2: it
// concatenates HMAC-SHA1(K, label || 0 || data || i) for i = 0, 1, ... and
// truncates the result to bits.
func PRF(k []byte, label string, data []byte, bits int) ([]byte, error) {
	if err := checkBits(bits); err != nil {
		return nil, err
	}
	n := bits / 8
	iters := (n + sha1.Size - 1) / sha1.Size
	result := make([]byte, 0, iters*sha1.Size)

	msg := make([]byte, 0, len(label)+1+len(data)+1)
	msg = append(msg, label...)
	msg = append(msg, 0)
	msg = append(msg, data...)
	msg = append(msg, 0)

	mac := hmac.New(sha1.New, k)
	for i := 0; i < iters; i++ {
		msg[len(msg)-1] = byte(i)
		mac.Reset()
		mac.Write(msg)
		result = mac.Sum(result)
	}
	return result[:n], nil
}

// KDF is KDF-Hash-Length of IEEE 802.11-2016 12.7.1.7.2 with SHA-256: it
// concatenates HMAC-SHA256(K, i || label || context || length) for
// i = 1, 2, ..., where i and length are little-endian 16-bit integers.
func KDF(k []byte, label string, context []byte, bits int) ([]byte, error) {
	return kdf(sha256.New, k, label, context, bits)
}

func kdf(h func() hash.Hash, k []byte, label string, context []byte, bits int) ([]byte, error) {
	if err := checkBits(bits); err != nil {
		return nil, err
	}
	if bits > 0xffff {
		return nil, rsnerr.New(rsnerr.InvalidBitSize, "%d bits exceeds KDF length field", bits)
	}
	mac := hmac.New(h, k)
	n := bits / 8
	result := make([]byte, 0, n+mac.Size())

	var counter, length [2]byte
	binary.LittleEndian.PutUint16(length[:], uint16(bits))
	for i := uint16(1); len(result) < n; i++ {
		binary.LittleEndian.PutUint16(counter[:], i)
		mac.Reset()
		mac.Write(counter[:])
		mac.Write([]byte(label))
		mac.Write(context)
		mac.Write(length[:])
		result = mac.Sum(result)
	}
	return result[:n], nil
}
