package rsne

import (
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
)

// Negotiated holds the security parameters both peers agreed on. It is a
// comparable value and never changes once computed.
type Negotiated struct {
	Akm            Akm
	PairwiseCipher Cipher
	GroupCipher    Cipher
	Capabilities   uint16
}

// Negotiate derives the association parameters from the element the
// authenticator advertised and the element the supplicant selected with.
// The supplicant must select exactly one pairwise cipher and one AKM, both
// offered by the authenticator.
func Negotiate(authenticator, supplicant *Rsne) (Negotiated, error) {
	var n Negotiated
	if authenticator == nil || supplicant == nil {
		return n, rsnerr.New(rsnerr.MissingRsne, "")
	}
	if authenticator.GroupCipher == nil {
		return n, rsnerr.New(rsnerr.MissingGroupCipher, "authenticator RSNE")
	}
	group, err := CipherFromSuite(*authenticator.GroupCipher)
	if err != nil {
		return n, err
	}
	if supplicant.GroupCipher != nil && *supplicant.GroupCipher != *authenticator.GroupCipher {
		return n, rsnerr.New(rsnerr.GroupCipherMismatch, "%s != %s", *supplicant.GroupCipher, *authenticator.GroupCipher)
	}

	switch len(supplicant.PairwiseCiphers) {
	case 0:
		return n, rsnerr.New(rsnerr.NoPairwiseCipher, "")
	case 1:
	default:
		return n, rsnerr.New(rsnerr.MultiplePairwiseCiphers, "%d selected", len(supplicant.PairwiseCiphers))
	}
	pairwise, err := CipherFromSuite(supplicant.PairwiseCiphers[0])
	if err != nil {
		return n, err
	}
	if !pairwise.PairwiseAllowed() {
		return n, rsnerr.New(rsnerr.UnsupportedCipher, "%s as pairwise cipher", pairwise)
	}
	if !containsSuite(authenticator.PairwiseCiphers, pairwise.Suite()) {
		return n, rsnerr.New(rsnerr.PairwiseCipherNotOffered, "%s", pairwise)
	}

	switch len(supplicant.Akms) {
	case 0:
		return n, rsnerr.New(rsnerr.NoAkm, "")
	case 1:
	default:
		return n, rsnerr.New(rsnerr.MultipleAkms, "%d selected", len(supplicant.Akms))
	}
	akm, err := AkmFromSuite(supplicant.Akms[0])
	if err != nil {
		return n, err
	}
	if !containsSuite(authenticator.Akms, akm.Suite()) {
		return n, rsnerr.New(rsnerr.AkmNotOffered, "%s", akm)
	}

	n = Negotiated{Akm: akm, PairwiseCipher: pairwise, GroupCipher: group}
	if supplicant.Capabilities != nil {
		n.Capabilities = *supplicant.Capabilities
	}
	return n, nil
}

func containsSuite(list []Suite, s Suite) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
