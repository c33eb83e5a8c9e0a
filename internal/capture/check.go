package capture

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/wifibear/rsn/pkg/rsn/integrity"
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

// ErrIncomplete is returned when a handshake lacks Message 1 or Message 2.
var ErrIncomplete = errors.New("handshake lacks messages 1 and 2")

// Suites recovers the AKM and pairwise cipher of a captured handshake from
// the RSNE the station sent in Message 2. Without one, it falls back to the
// key descriptor version with CCMP.
func Suites(hs *wifi.FourWayHandshake) (rsne.Akm, rsne.Cipher, error) {
	m2 := hs.Messages[1]
	if m2 == nil {
		return rsne.Akm{}, rsne.Cipher{}, ErrIncomplete
	}
	if kd, err := rsne.ParseKeyData(m2.Data); err == nil && kd.Rsne != nil {
		ie, err := rsne.Parse(kd.Rsne)
		if err != nil {
			return rsne.Akm{}, rsne.Cipher{}, err
		}
		if len(ie.Akms) == 1 && len(ie.PairwiseCiphers) == 1 {
			akm, err := rsne.AkmFromSuite(ie.Akms[0])
			if err != nil {
				return rsne.Akm{}, rsne.Cipher{}, err
			}
			cipher, err := rsne.CipherFromSuite(ie.PairwiseCiphers[0])
			if err != nil {
				return rsne.Akm{}, rsne.Cipher{}, err
			}
			return akm, cipher, nil
		}
	}
	switch v := m2.KeyInfo.DescriptorVersion(); v {
	case wifi.DescriptorVersionHMACSHA1:
		return rsne.AkmPSK, rsne.CipherCCMP128, nil
	case wifi.DescriptorVersionAESCMAC:
		return rsne.AkmPSKSHA256, rsne.CipherCCMP128, nil
	default:
		return rsne.Akm{}, rsne.Cipher{}, rsnerr.New(rsnerr.UnsupportedDescriptorVersion, "%d", v)
	}
}

// Check reports whether passphrase produced the MIC of Message 2. A wrong
// passphrase yields false with a nil error.
func Check(hs *wifi.FourWayHandshake, passphrase, ssid string) (bool, error) {
	if !hs.HasMinimumFrames() {
		return false, ErrIncomplete
	}
	pmk, err := key.PSK(passphrase, []byte(ssid))
	if err != nil {
		return false, err
	}
	return CheckPMK(hs, pmk)
}

// CheckPMK is Check with a precomputed PMK.
func CheckPMK(hs *wifi.FourWayHandshake, pmk key.Pmk) (bool, error) {
	if !hs.HasMinimumFrames() {
		return false, ErrIncomplete
	}
	akm, cipher, err := Suites(hs)
	if err != nil {
		return false, fmt.Errorf("recover suites: %w", err)
	}
	ptk, err := key.DerivePtk(akm, cipher, pmk, hs.BSSID, hs.ClientMAC, hs.ANonce(), hs.SNonce())
	if err != nil {
		return false, err
	}
	err = integrity.VerifyFrame(akm, ptk.KCK, hs.Messages[1])
	if errors.Is(err, rsnerr.InvalidMic) {
		return false, nil
	}
	return err == nil, err
}

type pmkKey struct{ passphrase, ssid string }

// PMKCache memoizes PSK derivations, which cost 4096 PBKDF2 rounds each.
type PMKCache struct {
	c *lru.Cache
}

func NewPMKCache(size int) (*PMKCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &PMKCache{c: c}, nil
}

// PMK returns the PMK for passphrase and ssid, deriving it on a miss.
func (p *PMKCache) PMK(passphrase, ssid string) (key.Pmk, error) {
	k := pmkKey{passphrase, ssid}
	if v, ok := p.c.Get(k); ok {
		return v.(key.Pmk), nil
	}
	pmk, err := key.PSK(passphrase, []byte(ssid))
	if err != nil {
		return key.Pmk{}, err
	}
	p.c.Add(k, pmk)
	return pmk, nil
}

func (p *PMKCache) Len() int { return p.c.Len() }
