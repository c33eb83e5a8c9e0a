// Package integrity computes and verifies the MIC of EAPOL-Key frames.
package integrity

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"hash"

	"github.com/aead/cmac"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

const micLen = 16

type algorithm uint8

const (
	hmacSHA1 algorithm = iota + 1
	aesCMAC
)

// Algorithm is a MIC algorithm selected by AKM. The zero value is invalid.
type Algorithm struct {
	alg algorithm
}

// ForAkm returns HMAC-SHA1-128 for AKM 1 and 2 and AES-128-CMAC for AKM 6.
func ForAkm(akm rsne.Akm) (Algorithm, error) {
	switch akm {
	case rsne.AkmDot1X, rsne.AkmPSK:
		return Algorithm{hmacSHA1}, nil
	case rsne.AkmPSKSHA256:
		return Algorithm{aesCMAC}, nil
	}
	return Algorithm{}, rsnerr.New(rsnerr.UnsupportedAkm, "%s", akm)
}

// Size is the MIC length in bytes.
func (a Algorithm) Size() int { return micLen }

func (a Algorithm) String() string {
	switch a.alg {
	case hmacSHA1:
		return "HMAC-SHA1-128"
	case aesCMAC:
		return "AES-128-CMAC"
	default:
		return "invalid"
	}
}

func (a Algorithm) newHash(kck []byte) (hash.Hash, error) {
	switch a.alg {
	case hmacSHA1:
		return hmac.New(sha1.New, kck), nil
	case aesCMAC:
		if len(kck) != 16 {
			return nil, rsnerr.New(rsnerr.InvalidKeyLength, "KCK is %d bytes", len(kck))
		}
		block, err := aes.NewCipher(kck)
		if err != nil {
			return nil, err
		}
		return cmac.New(block)
	}
	return nil, rsnerr.New(rsnerr.UnsupportedAkm, "no MIC algorithm")
}

// Compute returns the MIC of data under kck.
func (a Algorithm) Compute(kck, data []byte) ([]byte, error) {
	h, err := a.newHash(kck)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil)[:micLen], nil
}

// Verify checks mic against data in constant time. A mismatch returns
// InvalidMic.
func (a Algorithm) Verify(kck, data, mic []byte) error {
	want, err := a.Compute(kck, data)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(want, mic) != 1 {
		return rsnerr.New(rsnerr.InvalidMic, "")
	}
	return nil
}

// ComputeFrameMIC returns the MIC of frame with its MIC field zeroed. The
// frame itself is not modified.
func ComputeFrameMIC(akm rsne.Akm, kck []byte, frame *wifi.EAPOLKeyFrame) ([wifi.MICLen]byte, error) {
	var mic [wifi.MICLen]byte
	a, err := ForAkm(akm)
	if err != nil {
		return mic, err
	}
	raw, err := frame.WithZeroMIC().Bytes()
	if err != nil {
		return mic, err
	}
	sum, err := a.Compute(kck, raw)
	if err != nil {
		return mic, err
	}
	copy(mic[:], sum)
	return mic, nil
}

// SignFrame sets the MIC field of frame.
func SignFrame(akm rsne.Akm, kck []byte, frame *wifi.EAPOLKeyFrame) error {
	mic, err := ComputeFrameMIC(akm, kck, frame)
	if err != nil {
		return err
	}
	frame.MIC = mic
	return nil
}

// VerifyFrame checks the MIC carried in frame.
func VerifyFrame(akm rsne.Akm, kck []byte, frame *wifi.EAPOLKeyFrame) error {
	a, err := ForAkm(akm)
	if err != nil {
		return err
	}
	raw, err := frame.WithZeroMIC().Bytes()
	if err != nil {
		return err
	}
	return a.Verify(kck, raw, frame.MIC[:])
}
