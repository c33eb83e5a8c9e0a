package key

import (
	"bytes"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

const pairwiseLabel = "Pairwise key expansion"

// Ptk is a pairwise transient key split into its parts.
type Ptk struct {
	KCK    []byte
	KEK    []byte
	TK     []byte
	Akm    rsne.Akm
	Cipher rsne.Cipher
}

// Bytes returns KCK || KEK || TK.
func (p *Ptk) Bytes() []byte {
	b := make([]byte, 0, len(p.KCK)+len(p.KEK)+len(p.TK))
	b = append(b, p.KCK...)
	b = append(b, p.KEK...)
	return append(b, p.TK...)
}

// Equal reports whether both keys hold the same bytes for the same suites.
func (p *Ptk) Equal(o *Ptk) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Akm == o.Akm && p.Cipher == o.Cipher && bytes.Equal(p.Bytes(), o.Bytes())
}

// PairwiseData builds min(AA,SPA) || max(AA,SPA) || min(ANonce,SNonce) ||
// max(ANonce,SNonce), the input to PTK derivation.
func PairwiseData(aa, spa wifi.MacAddr, anonce, snonce [32]byte) []byte {
	data := make([]byte, 0, 2*6+2*32)
	if aa.Less(spa) {
		data = append(append(data, aa[:]...), spa[:]...)
	} else {
		data = append(append(data, spa[:]...), aa[:]...)
	}
	if bytes.Compare(anonce[:], snonce[:]) < 0 {
		data = append(append(data, anonce[:]...), snonce[:]...)
	} else {
		data = append(append(data, snonce[:]...), anonce[:]...)
	}
	return data
}

// DerivePtk derives the PTK for the negotiated AKM and pairwise cipher.
// AKM 1 and 2 use the SHA-1 PRF, AKM 6 uses KDF-SHA256.
func DerivePtk(akm rsne.Akm, cipher rsne.Cipher, pmk Pmk, aa, spa wifi.MacAddr, anonce, snonce [32]byte) (*Ptk, error) {
	if !akm.IsValid() {
		return nil, rsnerr.New(rsnerr.UnsupportedAkm, "%s", akm)
	}
	if !cipher.PairwiseAllowed() {
		return nil, rsnerr.New(rsnerr.UnsupportedCipher, "%s as pairwise cipher", cipher)
	}
	kckLen, kekLen, tkLen := akm.KCKLen(), akm.KEKLen(), cipher.TKLen()
	bits := (kckLen + kekLen + tkLen) * 8

	data := PairwiseData(aa, spa, anonce, snonce)
	var (
		raw []byte
		err error
	)
	if akm.UsesSHA256() {
		raw, err = KDF(pmk[:], pairwiseLabel, data, bits)
	} else {
		raw, err = PRF(pmk[:], pairwiseLabel, data, bits)
	}
	if err != nil {
		return nil, err
	}
	return &Ptk{
		KCK:    raw[:kckLen:kckLen],
		KEK:    raw[kckLen : kckLen+kekLen : kckLen+kekLen],
		TK:     raw[kckLen+kekLen:],
		Akm:    akm,
		Cipher: cipher,
	}, nil
}
