// Package rsnerr defines the error type returned by the RSN security
// association core. Every rejected condition has its own Kind so callers and
// tests can tell them apart; kinds are grouped into categories for callers
// that only care about the broad class of failure.
package rsnerr

import (
	"errors"
	"fmt"
)

// Category groups error kinds by the class of failure.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryFormat
	CategorySequence
	CategoryCrypto
	CategoryReplay
	CategoryDowngrade
	CategoryRoleMisuse
	CategoryConfig
	CategoryEntropy
)

func (c Category) String() string {
	switch c {
	case CategoryFormat:
		return "format"
	case CategorySequence:
		return "sequence"
	case CategoryCrypto:
		return "crypto"
	case CategoryReplay:
		return "replay"
	case CategoryDowngrade:
		return "downgrade"
	case CategoryRoleMisuse:
		return "role-misuse"
	case CategoryConfig:
		return "config"
	case CategoryEntropy:
		return "entropy"
	default:
		return "unknown"
	}
}

// Kind identifies a single rejected condition. A Kind is itself an error so
// it can be used as an errors.Is target.
type Kind uint16

const (
	kindInvalid Kind = iota

	// Format
	InvalidOuiLength
	InvalidPmkidLength
	InvalidSsidLength
	InvalidPassphraseLength
	InvalidPassphraseChar
	InvalidPskLength
	InvalidBitSize
	InvalidRsneLength
	InvalidRsneVersion
	InvalidElementLength
	InvalidKeyDataLength
	InvalidMacAddress

	// Sequence
	UnsupportedPacketType
	UnsupportedDescriptorType
	UnsupportedDescriptorVersion
	UnexpectedKeyType
	UnexpectedMessage
	UnexpectedInstallBit
	UnexpectedKeyAckBit
	UnexpectedMicBit
	UnexpectedSecureBit
	UnexpectedErrorBit
	UnexpectedRequestBit
	UnexpectedEncryptedKeyDataBit
	UnexpectedKeyIndex
	InvalidKeyLength
	MissingKeyData
	UnexpectedKeyData
	GroupKeyBeforePtk
	AttemptFailed

	// Crypto
	InvalidMic
	InvalidNonce
	MismatchedNonce
	NonZeroRsc
	InvalidKekLength
	InvalidKeyWrapLength
	KeyWrapIntegrity
	UnsupportedCipher
	UnsupportedAkm
	MissingGtk
	InvalidGtkLength
	InvalidPmkLength

	// Replay
	ReplayCounterNotIncreasing
	UnexpectedReplayCounter

	// Downgrade
	RsneMismatch
	SupplicantRsneMismatch

	// RoleMisuse
	SupplicantCannotInitiate
	UnsupportedGroupKeyDirection
	SmkHandshakeUnsupported

	// Config
	ConfigRoleMismatch
	NegotiatedRsneMismatch
	MissingGtkProvider
	MissingNonceReader
	MissingRsne
	MissingPmk
	GroupKeyNotConfigured
	NoPairwiseCipher
	MultiplePairwiseCiphers
	NoAkm
	MultipleAkms
	MissingGroupCipher
	GroupCipherMismatch
	PairwiseCipherNotOffered
	AkmNotOffered

	// Entropy
	EntropyUnavailable
	NonceExhausted

	kindCount
)

var kindNames = [kindCount]string{
	InvalidOuiLength:              "invalid OUI length",
	InvalidPmkidLength:            "invalid PMKID length",
	InvalidSsidLength:             "invalid SSID length",
	InvalidPassphraseLength:       "invalid passphrase length",
	InvalidPassphraseChar:         "invalid passphrase character",
	InvalidPskLength:              "invalid PSK length",
	InvalidBitSize:                "invalid bit size",
	InvalidRsneLength:             "invalid RSNE length",
	InvalidRsneVersion:            "invalid RSNE version",
	InvalidElementLength:          "invalid element length",
	InvalidKeyDataLength:          "invalid key data length",
	InvalidMacAddress:             "invalid MAC address",
	UnsupportedPacketType:         "unsupported EAPOL packet type",
	UnsupportedDescriptorType:     "unsupported key descriptor type",
	UnsupportedDescriptorVersion:  "unsupported key descriptor version",
	UnexpectedKeyType:             "unexpected key type",
	UnexpectedMessage:             "unexpected message",
	UnexpectedInstallBit:          "unexpected Install bit",
	UnexpectedKeyAckBit:           "unexpected Key Ack bit",
	UnexpectedMicBit:              "unexpected Key MIC bit",
	UnexpectedSecureBit:           "unexpected Secure bit",
	UnexpectedErrorBit:            "unexpected Error bit",
	UnexpectedRequestBit:          "unexpected Request bit",
	UnexpectedEncryptedKeyDataBit: "unexpected Encrypted Key Data bit",
	UnexpectedKeyIndex:            "unexpected key index",
	InvalidKeyLength:              "invalid key length",
	MissingKeyData:                "missing key data",
	UnexpectedKeyData:             "unexpected key data",
	GroupKeyBeforePtk:             "group key frame before PTK established",
	AttemptFailed:                 "handshake attempt failed, reset required",
	InvalidMic:                    "invalid MIC",
	InvalidNonce:                  "invalid nonce",
	MismatchedNonce:               "mismatched nonce",
	NonZeroRsc:                    "nonzero RSC",
	InvalidKekLength:              "invalid KEK length",
	InvalidKeyWrapLength:          "invalid key wrap input length",
	KeyWrapIntegrity:              "key wrap integrity check failed",
	UnsupportedCipher:             "unsupported cipher",
	UnsupportedAkm:                "unsupported AKM",
	MissingGtk:                    "missing GTK",
	InvalidGtkLength:              "invalid GTK length",
	InvalidPmkLength:              "invalid PMK length",
	ReplayCounterNotIncreasing:    "key replay counter not increasing",
	UnexpectedReplayCounter:       "unexpected key replay counter",
	RsneMismatch:                  "key data RSNE differs from authenticator RSNE",
	SupplicantRsneMismatch:        "key data RSNE differs from supplicant RSNE",
	SupplicantCannotInitiate:      "supplicant cannot initiate",
	UnsupportedGroupKeyDirection:  "unsupported group key handshake direction",
	SmkHandshakeUnsupported:       "SMK handshake unsupported",
	ConfigRoleMismatch:            "configuration role mismatch",
	NegotiatedRsneMismatch:        "negotiated RSNE does not match configured RSNEs",
	MissingGtkProvider:            "missing GTK provider",
	MissingNonceReader:            "missing nonce reader",
	MissingRsne:                   "missing RSNE",
	MissingPmk:                    "missing PMK",
	GroupKeyNotConfigured:         "group key handshake not configured",
	NoPairwiseCipher:              "no pairwise cipher",
	MultiplePairwiseCiphers:       "multiple pairwise ciphers",
	NoAkm:                         "no AKM",
	MultipleAkms:                  "multiple AKMs",
	MissingGroupCipher:            "missing group cipher",
	GroupCipherMismatch:           "group cipher mismatch",
	PairwiseCipherNotOffered:      "pairwise cipher not offered",
	AkmNotOffered:                 "AKM not offered",
	EntropyUnavailable:            "entropy unavailable",
	NonceExhausted:                "nonce counter exhausted",
}

func (k Kind) String() string {
	if k > kindInvalid && k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("rsnerr.Kind(%d)", uint16(k))
}

func (k Kind) Error() string { return k.String() }

// Category reports which group the kind belongs to.
func (k Kind) Category() Category {
	switch {
	case k >= InvalidOuiLength && k <= InvalidMacAddress:
		return CategoryFormat
	case k >= UnsupportedPacketType && k <= AttemptFailed:
		return CategorySequence
	case k >= InvalidMic && k <= InvalidPmkLength:
		return CategoryCrypto
	case k >= ReplayCounterNotIncreasing && k <= UnexpectedReplayCounter:
		return CategoryReplay
	case k >= RsneMismatch && k <= SupplicantRsneMismatch:
		return CategoryDowngrade
	case k >= SupplicantCannotInitiate && k <= SmkHandshakeUnsupported:
		return CategoryRoleMisuse
	case k >= ConfigRoleMismatch && k <= AkmNotOffered:
		return CategoryConfig
	case k >= EntropyUnavailable && k <= NonceExhausted:
		return CategoryEntropy
	default:
		return CategoryUnknown
	}
}

// Error is a rejected condition with optional detail and cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// New returns an Error of the given kind. The detail is formatted with
// fmt.Sprintf when args are given.
func New(kind Kind, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Kind: kind, Detail: detail}
}

// Wrap returns an Error of the given kind caused by err.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error or a bare Kind with the same kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return t != nil && e.Kind == t.Kind
	}
	return false
}

// Category is shorthand for e.Kind.Category().
func (e *Error) Category() Category { return e.Kind.Category() }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	return kindInvalid, false
}

// CategoryOf returns the category of err, or CategoryUnknown.
func CategoryOf(err error) Category {
	k, ok := KindOf(err)
	if !ok {
		return CategoryUnknown
	}
	return k.Category()
}

// IsFatal reports whether err ends the current handshake attempt. Only
// entropy failures do; every other error leaves the association untouched.
func IsFatal(err error) bool {
	return CategoryOf(err) == CategoryEntropy
}
