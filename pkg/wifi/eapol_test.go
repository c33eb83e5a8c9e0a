package wifi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() *EAPOLKeyFrame {
	f := &EAPOLKeyFrame{
		Version:        EAPOLVersion2,
		PacketType:     EAPOLTypeKey,
		DescriptorType: DescriptorTypeRSN,
		KeyInfo: NewKeyInfo(DescriptorVersionHMACSHA1,
			KeyInfoPairwise|KeyInfoInstall|KeyInfoAck|KeyInfoMIC|KeyInfoSecure|KeyInfoEncryptedKeyData),
		KeyLength:     16,
		ReplayCounter: 0x0102030405060708,
		Data:          []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x00, 0x11},
	}
	for i := range f.Nonce {
		f.Nonce[i] = byte(i + 1)
	}
	for i := range f.MIC {
		f.MIC[i] = byte(0xf0 + i)
	}
	f.RSC[0] = 0x42
	return f
}

func TestEAPOLKeyFrameLayout(t *testing.T) {
	f := sampleFrame()
	raw, err := f.Bytes()
	require.NoError(t, err)
	require.Len(t, raw, MinFrameLen+len(f.Data))

	assert.Equal(t, byte(EAPOLVersion2), raw[0])
	assert.Equal(t, EAPOLTypeKey, raw[1])
	assert.Equal(t, uint16(keyBodyLen+len(f.Data)), binary.BigEndian.Uint16(raw[2:4]))
	assert.Equal(t, DescriptorTypeRSN, raw[4])
	assert.Equal(t, uint16(f.KeyInfo), binary.BigEndian.Uint16(raw[5:7]))
	assert.Equal(t, uint64(0x0102030405060708), binary.BigEndian.Uint64(raw[9:17]))
	assert.Equal(t, f.Nonce[:], raw[17:49])
	assert.Equal(t, byte(0x42), raw[65])
	assert.Equal(t, f.MIC[:], raw[MICOffset:MICOffset+MICLen])
	assert.Equal(t, uint16(len(f.Data)), binary.BigEndian.Uint16(raw[97:99]))
	assert.Equal(t, f.Data, raw[99:])
}

func TestParseEAPOLKeyFrame(t *testing.T) {
	f := sampleFrame()
	raw, err := f.Bytes()
	require.NoError(t, err)

	// trailing Ethernet padding is not part of the frame
	padded := append(append([]byte(nil), raw...), 0, 0, 0, 0)
	got, err := ParseEAPOLKeyFrame(padded)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestParseEAPOLKeyFrameErrors(t *testing.T) {
	f := sampleFrame()
	raw, err := f.Bytes()
	require.NoError(t, err)

	_, err = ParseEAPOLKeyFrame(raw[:MinFrameLen-1])
	assert.Error(t, err)

	notKey := append([]byte(nil), raw...)
	notKey[1] = 0 // EAP packet
	_, err = ParseEAPOLKeyFrame(notKey)
	assert.Error(t, err)

	badLen := append([]byte(nil), raw...)
	binary.BigEndian.PutUint16(badLen[97:99], 200)
	_, err = ParseEAPOLKeyFrame(badLen)
	assert.Error(t, err)

	truncated := append([]byte(nil), raw...)
	binary.BigEndian.PutUint16(truncated[2:4], uint16(len(raw)))
	_, err = ParseEAPOLKeyFrame(truncated)
	assert.Error(t, err)
}

func TestWithZeroMICDoesNotAlias(t *testing.T) {
	f := sampleFrame()
	z := f.WithZeroMIC()
	assert.Equal(t, [16]byte{}, z.MIC)
	assert.NotEqual(t, [16]byte{}, f.MIC)

	z.Data[0] = 0
	assert.Equal(t, byte(0xaa), f.Data[0])
}

func TestMessageNumber(t *testing.T) {
	tests := []struct {
		name string
		bits KeyInfo
		want HandshakeMessage
	}{
		{"m1", KeyInfoPairwise | KeyInfoAck, HandshakeMsg1},
		{"m2", KeyInfoPairwise | KeyInfoMIC, HandshakeMsg2},
		{"m3", KeyInfoPairwise | KeyInfoInstall | KeyInfoAck | KeyInfoMIC | KeyInfoSecure | KeyInfoEncryptedKeyData, HandshakeMsg3},
		{"m4", KeyInfoPairwise | KeyInfoMIC | KeyInfoSecure, HandshakeMsg4},
		{"group", KeyInfoAck | KeyInfoMIC | KeyInfoSecure, HandshakeMsgUnknown},
		{"install without mic", KeyInfoPairwise | KeyInfoInstall | KeyInfoAck, HandshakeMsgUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &EAPOLKeyFrame{KeyInfo: NewKeyInfo(DescriptorVersionHMACSHA1, tt.bits)}
			assert.Equal(t, tt.want, f.MessageNumber())
		})
	}
}

func TestKeyInfo(t *testing.T) {
	k := NewKeyInfo(DescriptorVersionAESCMAC, KeyInfoPairwise|KeyInfoMIC|0x0020)
	assert.Equal(t, uint8(3), k.DescriptorVersion())
	assert.Equal(t, uint8(2), k.KeyIndex())
	assert.True(t, k.Has(KeyInfoMIC))
	assert.False(t, k.Has(KeyInfoSecure))
	assert.Equal(t, "v3|pairwise|mic", k.String())
}

func TestParseMAC(t *testing.T) {
	m, err := ParseMAC("00:11:22:33:44:55")
	require.NoError(t, err)
	assert.Equal(t, MacAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, m)
	assert.Equal(t, "00:11:22:33:44:55", m.String())
	assert.True(t, m.IsUnicast())

	_, err = ParseMAC("00:00:5e:00:53:01:00:00")
	assert.Error(t, err)
	_, err = ParseMAC("nope")
	assert.Error(t, err)

	assert.False(t, MustParseMAC("ff:ff:ff:ff:ff:ff").IsUnicast())
	assert.False(t, MacAddr{}.IsUnicast())
	assert.True(t, MustParseMAC("00:00:00:00:00:01").Less(MustParseMAC("00:00:00:00:01:00")))
}

func TestFourWayHandshakeTracker(t *testing.T) {
	h := NewFourWayHandshake(MustParseMAC("02:00:00:00:00:01"), MustParseMAC("02:00:00:00:00:02"))
	m1 := &EAPOLKeyFrame{Nonce: [32]byte{1}}
	m2 := &EAPOLKeyFrame{Nonce: [32]byte{2}}
	h.AddMessage(HandshakeMsg1, m1, []byte{1})
	assert.False(t, h.HasMinimumFrames())
	h.AddMessage(HandshakeMsg2, m2, []byte{2})
	assert.True(t, h.HasMinimumFrames())
	assert.False(t, h.Complete())

	// a new attempt only replaces the pair once it has its own Message 2
	h.AddMessage(HandshakeMsg1, &EAPOLKeyFrame{Nonce: [32]byte{9}}, nil)
	assert.Equal(t, [32]byte{1}, h.ANonce())
	assert.Equal(t, [32]byte{2}, h.SNonce())
	assert.Equal(t, 2, h.MessageCount())

	h.AddMessage(HandshakeMsg3, &EAPOLKeyFrame{Nonce: [32]byte{9}}, nil)
	assert.Equal(t, 2, h.MessageCount())

	h.AddMessage(HandshakeMsg2, &EAPOLKeyFrame{Nonce: [32]byte{8}}, nil)
	assert.Equal(t, [32]byte{9}, h.ANonce())
	assert.Equal(t, [32]byte{8}, h.SNonce())
	assert.Equal(t, 2, h.MessageCount())

	// without a pair, a new attempt replaces the old one straight away
	lone := NewFourWayHandshake(h.BSSID, h.ClientMAC)
	lone.AddMessage(HandshakeMsg1, m1, nil)
	lone.AddMessage(HandshakeMsg1, &EAPOLKeyFrame{Nonce: [32]byte{7}}, nil)
	assert.Equal(t, [32]byte{7}, lone.ANonce())
	assert.Equal(t, 1, lone.MessageCount())

	h.AddMessage(HandshakeMsgUnknown, m1, nil)
	assert.Equal(t, 2, h.MessageCount())
}
