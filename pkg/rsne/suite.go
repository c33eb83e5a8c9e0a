// Package rsne encodes, parses and negotiates RSN elements and the key data
// encapsulations carried in EAPOL-Key frames.
package rsne

import (
	"fmt"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
)

// OUI is the IEEE 802.11 organizationally unique identifier used by every
// suite selector this package understands.
var OUI = [3]byte{0x00, 0x0f, 0xac}

// Suite is a cipher or AKM suite selector: a 3-byte OUI and a suite type.
type Suite [4]byte

// NewSuite returns the IEEE 802.11 suite of the given type.
func NewSuite(typ uint8) Suite {
	return Suite{OUI[0], OUI[1], OUI[2], typ}
}

// SuiteFromBytes copies a suite selector from b, which must be 4 bytes.
func SuiteFromBytes(b []byte) (Suite, error) {
	var s Suite
	if len(b) != len(s) {
		return s, rsnerr.New(rsnerr.InvalidOuiLength, "suite selector is %d bytes", len(b))
	}
	copy(s[:], b)
	return s, nil
}

func (s Suite) HasIEEEOUI() bool {
	return s[0] == OUI[0] && s[1] == OUI[1] && s[2] == OUI[2]
}

func (s Suite) Type() uint8 { return s[3] }

func (s Suite) String() string {
	return fmt.Sprintf("%02x-%02x-%02x:%d", s[0], s[1], s[2], s[3])
}

// Akm is one of the supported authentication and key management suites.
// The zero value is not a valid Akm.
type Akm struct{ id uint8 }

var (
	AkmDot1X     = Akm{1}
	AkmPSK       = Akm{2}
	AkmPSKSHA256 = Akm{6}
)

// AkmFromSuite maps a suite selector to a supported Akm.
func AkmFromSuite(s Suite) (Akm, error) {
	if s.HasIEEEOUI() {
		switch s.Type() {
		case 1:
			return AkmDot1X, nil
		case 2:
			return AkmPSK, nil
		case 6:
			return AkmPSKSHA256, nil
		}
	}
	return Akm{}, rsnerr.New(rsnerr.UnsupportedAkm, "%s", s)
}

// ParseAkm maps a configuration name to an Akm.
func ParseAkm(name string) (Akm, error) {
	switch name {
	case "802.1x", "8021x", "eap":
		return AkmDot1X, nil
	case "psk":
		return AkmPSK, nil
	case "psk-sha256":
		return AkmPSKSHA256, nil
	}
	return Akm{}, rsnerr.New(rsnerr.UnsupportedAkm, "%q", name)
}

func (a Akm) IsValid() bool { return a.id != 0 }

func (a Akm) Suite() Suite { return NewSuite(a.id) }

// DescriptorVersion is the Key Descriptor Version EAPOL-Key frames use under
// this AKM.
func (a Akm) DescriptorVersion() uint8 {
	if a == AkmPSKSHA256 {
		return 3
	}
	return 2
}

// UsesSHA256 reports whether key derivation uses KDF-SHA256 rather than the
// SHA-1 based PRF.
func (a Akm) UsesSHA256() bool { return a == AkmPSKSHA256 }

func (a Akm) KCKLen() int { return 16 }
func (a Akm) KEKLen() int { return 16 }
func (a Akm) MICLen() int { return 16 }

func (a Akm) String() string {
	switch a {
	case AkmDot1X:
		return "802.1X"
	case AkmPSK:
		return "PSK"
	case AkmPSKSHA256:
		return "PSK-SHA256"
	default:
		return "invalid"
	}
}

// Cipher is one of the supported data confidentiality cipher suites.
// The zero value is not a valid Cipher.
type Cipher struct{ id uint8 }

var (
	CipherTKIP    = Cipher{2}
	CipherCCMP128 = Cipher{4}
	CipherGCMP128 = Cipher{8}
	CipherGCMP256 = Cipher{9}
	CipherCCMP256 = Cipher{10}
)

// CipherFromSuite maps a suite selector to a supported Cipher.
func CipherFromSuite(s Suite) (Cipher, error) {
	if s.HasIEEEOUI() {
		switch s.Type() {
		case 2:
			return CipherTKIP, nil
		case 4:
			return CipherCCMP128, nil
		case 8:
			return CipherGCMP128, nil
		case 9:
			return CipherGCMP256, nil
		case 10:
			return CipherCCMP256, nil
		}
	}
	return Cipher{}, rsnerr.New(rsnerr.UnsupportedCipher, "%s", s)
}

// ParseCipher maps a configuration name to a Cipher.
func ParseCipher(name string) (Cipher, error) {
	switch name {
	case "tkip":
		return CipherTKIP, nil
	case "ccmp", "ccmp-128":
		return CipherCCMP128, nil
	case "gcmp", "gcmp-128":
		return CipherGCMP128, nil
	case "gcmp-256":
		return CipherGCMP256, nil
	case "ccmp-256":
		return CipherCCMP256, nil
	}
	return Cipher{}, rsnerr.New(rsnerr.UnsupportedCipher, "%q", name)
}

func (c Cipher) IsValid() bool { return c.id != 0 }

func (c Cipher) Suite() Suite { return NewSuite(c.id) }

// TKLen is the temporal key length in bytes.
func (c Cipher) TKLen() int {
	switch c {
	case CipherTKIP, CipherGCMP256, CipherCCMP256:
		return 32
	case CipherCCMP128, CipherGCMP128:
		return 16
	default:
		return 0
	}
}

// PairwiseAllowed reports whether the cipher may protect unicast traffic.
// TKIP is accepted only as a group cipher.
func (c Cipher) PairwiseAllowed() bool {
	return c.IsValid() && c != CipherTKIP
}

func (c Cipher) String() string {
	switch c {
	case CipherTKIP:
		return "TKIP"
	case CipherCCMP128:
		return "CCMP-128"
	case CipherGCMP128:
		return "GCMP-128"
	case CipherGCMP256:
		return "GCMP-256"
	case CipherCCMP256:
		return "CCMP-256"
	default:
		return "invalid"
	}
}
