package rsne

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
)

func TestGtkKdeBytes(t *testing.T) {
	gtk := bytes.Repeat([]byte{0x11}, 16)
	kde := &GtkKde{KeyID: 2, Tx: true, GTK: gtk}
	assert.Equal(t, "dd16000fac010600"+hex.EncodeToString(gtk), hex.EncodeToString(kde.Bytes()))
}

func TestKeyDataRoundTrip(t *testing.T) {
	ie := New(CipherCCMP128, []Cipher{CipherCCMP128}, []Akm{AkmPSK}).MustBytes()
	gtk := &GtkKde{KeyID: 1, GTK: bytes.Repeat([]byte{0xab}, 16)}

	data := BuildKeyData(ie, gtk)
	assert.Zero(t, len(data)%8)

	kd, err := ParseKeyData(data)
	require.NoError(t, err)
	assert.Equal(t, ie, kd.Rsne)
	require.NotNil(t, kd.Gtk)
	assert.Equal(t, gtk, kd.Gtk)
}

func TestParseKeyDataSkipsUnknownElements(t *testing.T) {
	ie := mustHex(t, wpa2PSKHex)
	vendor := mustHex(t, "dd050050f20401")
	kd, err := ParseKeyData(append(vendor, ie...))
	require.NoError(t, err)
	assert.Equal(t, ie, kd.Rsne)
	assert.Nil(t, kd.Gtk)
}

func TestParseKeyDataErrors(t *testing.T) {
	_, err := ParseKeyData(mustHex(t, "3005010000"))
	assert.ErrorIs(t, err, rsnerr.InvalidElementLength)

	_, err = ParseKeyData(mustHex(t, "dd05000fac0100"))
	assert.ErrorIs(t, err, rsnerr.InvalidElementLength)

	_, err = ParseKeyData([]byte{0x30})
	assert.ErrorIs(t, err, rsnerr.InvalidKeyDataLength)
}

func TestPadKeyData(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 16},
		{5, 16},
		{16, 16},
		{17, 24},
		{22, 24},
		{24, 24},
		{46, 48},
	}
	for _, tt := range tests {
		in := bytes.Repeat([]byte{0x30}, tt.in)
		out := PadKeyData(in)
		assert.Len(t, out, tt.want, "input %d", tt.in)
		if tt.want != tt.in {
			assert.Equal(t, byte(0xdd), out[tt.in])
			assert.True(t, bytes.Equal(out[tt.in+1:], make([]byte, tt.want-tt.in-1)))
		}
	}
}
