package wifi

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	EAPOLVersion1 = 1
	EAPOLVersion2 = 2

	EAPOLTypeKey = uint8(layers.EAPOLTypeKey)

	// DescriptorTypeRC4 and DescriptorTypeRSN are the Descriptor Type values of
	// an EAPOL-Key frame. Only RSN (IEEE 802.11) descriptors are supported.
	DescriptorTypeRC4 = uint8(layers.EAPOLKeyDescriptorTypeRC4)
	DescriptorTypeRSN = uint8(layers.EAPOLKeyDescriptorTypeDot11)

	// Key Descriptor Version values carried in KeyInfo bits 0-2.
	DescriptorVersionHMACMD5  = 1
	DescriptorVersionHMACSHA1 = 2
	DescriptorVersionAESCMAC  = 3

	eapolHeaderLen = 4
	keyBodyLen     = 95

	// MinFrameLen is the size of an EAPOL-Key frame with no key data.
	MinFrameLen = eapolHeaderLen + keyBodyLen
	// MICOffset is the offset of the MIC field from the start of the frame.
	MICOffset = eapolHeaderLen + 77
	MICLen    = 16
	NonceLen  = 32
)

// KeyInfo is the Key Information field of an EAPOL-Key frame.
type KeyInfo uint16

const (
	KeyInfoVersionMask      KeyInfo = 0x0007
	KeyInfoPairwise         KeyInfo = 1 << 3
	KeyInfoIndexMask        KeyInfo = 0x0030
	KeyInfoInstall          KeyInfo = 1 << 6
	KeyInfoAck              KeyInfo = 1 << 7
	KeyInfoMIC              KeyInfo = 1 << 8
	KeyInfoSecure           KeyInfo = 1 << 9
	KeyInfoError            KeyInfo = 1 << 10
	KeyInfoRequest          KeyInfo = 1 << 11
	KeyInfoEncryptedKeyData KeyInfo = 1 << 12
	KeyInfoSMK              KeyInfo = 1 << 13
)

func (k KeyInfo) Has(bit KeyInfo) bool { return k&bit != 0 }

func (k KeyInfo) DescriptorVersion() uint8 { return uint8(k & KeyInfoVersionMask) }

func (k KeyInfo) KeyIndex() uint8 { return uint8((k & KeyInfoIndexMask) >> 4) }

func (k KeyInfo) String() string {
	s := fmt.Sprintf("v%d", k.DescriptorVersion())
	names := []struct {
		bit  KeyInfo
		name string
	}{
		{KeyInfoPairwise, "pairwise"},
		{KeyInfoInstall, "install"},
		{KeyInfoAck, "ack"},
		{KeyInfoMIC, "mic"},
		{KeyInfoSecure, "secure"},
		{KeyInfoError, "error"},
		{KeyInfoRequest, "request"},
		{KeyInfoEncryptedKeyData, "encrypted"},
		{KeyInfoSMK, "smk"},
	}
	for _, n := range names {
		if k.Has(n.bit) {
			s += "|" + n.name
		}
	}
	return s
}

// NewKeyInfo builds a KeyInfo from a descriptor version and flag bits.
func NewKeyInfo(version uint8, bits KeyInfo) KeyInfo {
	return KeyInfo(version)&KeyInfoVersionMask | bits&^KeyInfoVersionMask
}

// EAPOLKeyFrame is an EAPOL-Key frame including its EAPOL header.
type EAPOLKeyFrame struct {
	Version        uint8
	PacketType     uint8
	DescriptorType uint8
	KeyInfo        KeyInfo
	KeyLength      uint16
	ReplayCounter  uint64
	Nonce          [32]byte
	IV             [16]byte
	RSC            [8]byte
	ID             [8]byte
	MIC            [16]byte
	Data           []byte
}

// Clone returns a deep copy of f.
func (f *EAPOLKeyFrame) Clone() *EAPOLKeyFrame {
	c := *f
	if f.Data != nil {
		c.Data = append([]byte(nil), f.Data...)
	}
	return &c
}

// WithZeroMIC returns a copy of f with the MIC field cleared, the form the
// MIC is computed over.
func (f *EAPOLKeyFrame) WithZeroMIC() *EAPOLKeyFrame {
	c := f.Clone()
	c.MIC = [16]byte{}
	return c
}

func (f *EAPOLKeyFrame) IsPairwise() bool { return f.KeyInfo.Has(KeyInfoPairwise) }

// Len returns the encoded length of the frame including the EAPOL header.
func (f *EAPOLKeyFrame) Len() int {
	return MinFrameLen + len(f.Data)
}

// Bytes encodes the frame in wire format.
func (f *EAPOLKeyFrame) Bytes() ([]byte, error) {
	if len(f.Data) > 0xffff-keyBodyLen {
		return nil, fmt.Errorf("EAPOL key data too long: %d bytes", len(f.Data))
	}
	info := f.KeyInfo
	key := &layers.EAPOLKey{
		KeyDescriptorType:    layers.EAPOLKeyDescriptorType(f.DescriptorType),
		KeyDescriptorVersion: layers.EAPOLKeyDescriptorVersion(info.DescriptorVersion()),
		KeyIndex:             info.KeyIndex(),
		Install:              info.Has(KeyInfoInstall),
		KeyACK:               info.Has(KeyInfoAck),
		KeyMIC:               info.Has(KeyInfoMIC),
		Secure:               info.Has(KeyInfoSecure),
		MICError:             info.Has(KeyInfoError),
		Request:              info.Has(KeyInfoRequest),
		HasEncryptedKeyData:  info.Has(KeyInfoEncryptedKeyData),
		SMKMessage:           info.Has(KeyInfoSMK),
		KeyLength:            f.KeyLength,
		ReplayCounter:        f.ReplayCounter,
		Nonce:                f.Nonce[:],
		IV:                   f.IV[:],
		RSC:                  binary.BigEndian.Uint64(f.RSC[:]),
		ID:                   binary.BigEndian.Uint64(f.ID[:]),
		MIC:                  f.MIC[:],
		KeyDataLength:        uint16(len(f.Data)),
		EncryptedKeyData:     f.Data,
	}
	if info.Has(KeyInfoPairwise) {
		key.KeyType = layers.EAPOLKeyTypePairwise
	} else {
		key.KeyType = layers.EAPOLKeyTypeGroupSMK
	}
	hdr := &layers.EAPOL{
		Version: f.Version,
		Type:    layers.EAPOLType(f.PacketType),
		Length:  uint16(keyBodyLen + len(f.Data)),
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, hdr, key); err != nil {
		return nil, fmt.Errorf("serialize EAPOL key frame: %w", err)
	}
	out := buf.Bytes()
	// layers.EAPOLKey has no fields for the reserved Key Information bits
	binary.BigEndian.PutUint16(out[eapolHeaderLen+1:], uint16(info))
	return out, nil
}

// ParseEAPOLKeyFrame decodes an EAPOL-Key frame starting at its EAPOL
// header. Bytes past the EAPOL body length, such as Ethernet padding, are
// ignored.
func ParseEAPOLKeyFrame(data []byte) (*EAPOLKeyFrame, error) {
	if len(data) < MinFrameLen {
		return nil, fmt.Errorf("EAPOL key frame too short: %d bytes", len(data))
	}

	var hdr layers.EAPOL
	if err := hdr.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("decode EAPOL header: %w", err)
	}
	if hdr.Type != layers.EAPOLTypeKey {
		return nil, fmt.Errorf("not an EAPOL key frame (type %d)", hdr.Type)
	}
	body := data[eapolHeaderLen:]
	if int(hdr.Length) < keyBodyLen || int(hdr.Length) > len(body) {
		return nil, fmt.Errorf("EAPOL body length %d invalid for %d bytes", hdr.Length, len(body))
	}
	body = body[:hdr.Length]

	var key layers.EAPOLKey
	if err := key.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("decode EAPOL key: %w", err)
	}
	if int(key.KeyDataLength) != len(body)-keyBodyLen {
		return nil, fmt.Errorf("EAPOL key data length %d does not match body (%d bytes)",
			key.KeyDataLength, len(body)-keyBodyLen)
	}

	frame := &EAPOLKeyFrame{
		Version:        hdr.Version,
		PacketType:     uint8(hdr.Type),
		DescriptorType: uint8(key.KeyDescriptorType),
		KeyInfo:        KeyInfo(binary.BigEndian.Uint16(body[1:3])),
		KeyLength:      key.KeyLength,
		ReplayCounter:  key.ReplayCounter,
	}
	copy(frame.Nonce[:], key.Nonce)
	copy(frame.IV[:], key.IV)
	binary.BigEndian.PutUint64(frame.RSC[:], key.RSC)
	binary.BigEndian.PutUint64(frame.ID[:], key.ID)
	copy(frame.MIC[:], key.MIC)
	if key.KeyDataLength > 0 {
		frame.Data = append([]byte(nil), body[keyBodyLen:]...)
	}
	return frame, nil
}

// MessageNumber classifies a pairwise frame as one of the four 4-Way
// Handshake messages from its flag bits. Group and malformed frames are
// HandshakeMsgUnknown.
func (f *EAPOLKeyFrame) MessageNumber() HandshakeMessage {
	if !f.IsPairwise() {
		return HandshakeMsgUnknown
	}
	hasACK := f.KeyInfo.Has(KeyInfoAck)
	hasMIC := f.KeyInfo.Has(KeyInfoMIC)
	hasInstall := f.KeyInfo.Has(KeyInfoInstall)
	hasSecure := f.KeyInfo.Has(KeyInfoSecure)

	switch {
	case hasACK && !hasMIC && !hasInstall:
		return HandshakeMsg1
	case !hasACK && hasMIC && !hasInstall && !hasSecure:
		return HandshakeMsg2
	case hasACK && hasMIC && hasInstall && hasSecure:
		return HandshakeMsg3
	case !hasACK && hasMIC && !hasInstall && hasSecure:
		return HandshakeMsg4
	default:
		return HandshakeMsgUnknown
	}
}

func (f *EAPOLKeyFrame) String() string {
	return fmt.Sprintf("EAPOL-Key{%s replay=%d len=%d data=%d}",
		f.KeyInfo, f.ReplayCounter, f.KeyLength, len(f.Data))
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// HasZeroNonce reports whether the Key Nonce field is all zeros.
func (f *EAPOLKeyFrame) HasZeroNonce() bool { return isZero(f.Nonce[:]) }

// HasZeroRSC reports whether the Key RSC field is all zeros.
func (f *EAPOLKeyFrame) HasZeroRSC() bool { return isZero(f.RSC[:]) }
