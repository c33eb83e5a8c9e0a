package rsna

import (
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/wifi"
)

// ReplayCounter is the EAPOL-Key replay counter state of one association,
// shared by its 4-Way and Group Key handshakes. On the authenticator it is
// the value of the last frame sent; on the supplicant it is the value of the
// last frame whose MIC was accepted. Handshakes only change it once a frame
// has been fully accepted.
type ReplayCounter struct {
	last  uint64
	valid bool
}

// Last returns the current value and whether one has been recorded.
func (c *ReplayCounter) Last() (uint64, bool) { return c.last, c.valid }

// Next is the value of the next frame the authenticator sends. The first
// frame after a reset uses 1.
func (c *ReplayCounter) Next() uint64 {
	if !c.valid {
		return 1
	}
	return c.last + 1
}

// Record stores v as the last sent or accepted value.
func (c *ReplayCounter) Record(v uint64) {
	c.last, c.valid = v, true
}

// CheckIncreasing fails unless v is greater than the recorded value.
func (c *ReplayCounter) CheckIncreasing(v uint64) error {
	if c.valid && v <= c.last {
		return rsnerr.New(rsnerr.ReplayCounterNotIncreasing, "%d <= %d", v, c.last)
	}
	return nil
}

// CheckEcho fails unless v equals the last sent value.
func (c *ReplayCounter) CheckEcho(v uint64) error {
	if !c.valid || v != c.last {
		return rsnerr.New(rsnerr.UnexpectedReplayCounter, "got %d, sent %d", v, c.last)
	}
	return nil
}

func (c *ReplayCounter) Reset() { *c = ReplayCounter{} }

var keyInfoRules = []struct {
	bit  wifi.KeyInfo
	kind rsnerr.Kind
}{
	{wifi.KeyInfoSMK, rsnerr.SmkHandshakeUnsupported},
	{wifi.KeyInfoInstall, rsnerr.UnexpectedInstallBit},
	{wifi.KeyInfoAck, rsnerr.UnexpectedKeyAckBit},
	{wifi.KeyInfoMIC, rsnerr.UnexpectedMicBit},
	{wifi.KeyInfoSecure, rsnerr.UnexpectedSecureBit},
	{wifi.KeyInfoError, rsnerr.UnexpectedErrorBit},
	{wifi.KeyInfoRequest, rsnerr.UnexpectedRequestBit},
	{wifi.KeyInfoEncryptedKeyData, rsnerr.UnexpectedEncryptedKeyDataBit},
}

// CheckKeyInfo fails unless the Install, Ack, MIC, Secure, Error, Request
// and Encrypted Key Data bits of got are exactly those set in want. The SMK
// bit is never accepted.
func CheckKeyInfo(got, want wifi.KeyInfo) error {
	for _, r := range keyInfoRules {
		if got.Has(r.bit) != want.Has(r.bit) {
			if got.Has(r.bit) {
				return rsnerr.New(r.kind, "set, want clear")
			}
			return rsnerr.New(r.kind, "clear, want set")
		}
	}
	return nil
}
