// Package key derives the RSN key hierarchy: the PMK from a pre-shared key,
// the PTK from the PMK and handshake nonces, and the GTK from the GMK.
// Every function here is deterministic in its inputs.
package key

import (
	"crypto/sha1"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
)

const (
	PmkLen = 32

	pskIterations = 4096

	minPassphraseLen = 8
	maxPassphraseLen = 63
	maxSsidLen       = 32
)

// Pmk is a pairwise master key.
type Pmk [PmkLen]byte

// PSK derives the PMK for a WPA2-Personal passphrase and SSID using
// PBKDF2-SHA1 with 4096 iterations (IEEE 802.11-2016 J.4.1).
func PSK(passphrase string, ssid []byte) (Pmk, error) {
	var pmk Pmk
	if n := len(passphrase); n < minPassphraseLen || n > maxPassphraseLen {
		return pmk, rsnerr.New(rsnerr.InvalidPassphraseLength, "%d characters", n)
	}
	for i := 0; i < len(passphrase); i++ {
		if c := passphrase[i]; c < 32 || c > 126 {
			return pmk, rsnerr.New(rsnerr.InvalidPassphraseChar, "byte 0x%02x at %d", c, i)
		}
	}
	if n := len(ssid); n < 1 || n > maxSsidLen {
		return pmk, rsnerr.New(rsnerr.InvalidSsidLength, "%d bytes", n)
	}
	copy(pmk[:], pbkdf2.Key([]byte(passphrase), ssid, pskIterations, PmkLen, sha1.New))
	return pmk, nil
}

// PmkFromHex decodes a raw 256-bit PSK given as 64 hex digits.
func PmkFromHex(s string) (Pmk, error) {
	var pmk Pmk
	if len(s) != 2*PmkLen {
		return pmk, rsnerr.New(rsnerr.InvalidPskLength, "%d hex digits", len(s))
	}
	if _, err := hex.Decode(pmk[:], []byte(s)); err != nil {
		return Pmk{}, rsnerr.Wrap(rsnerr.InvalidPskLength, err)
	}
	return pmk, nil
}

// PmkFromBytes copies a PMK, such as one delivered by an 802.1X server.
func PmkFromBytes(b []byte) (Pmk, error) {
	var pmk Pmk
	if len(b) != PmkLen {
		return pmk, rsnerr.New(rsnerr.InvalidPmkLength, "%d bytes", len(b))
	}
	copy(pmk[:], b)
	return pmk, nil
}
