package rsne

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
)

const (
	kdeID      = uint8(layers.Dot11InformationElementIDVendor)
	KdeTypeGtk = 1

	paddingByte = 0xdd

	// minWrapLen is the shortest input AES key wrap accepts.
	minWrapLen = 16
)

// GtkKde is the GTK key data encapsulation.
type GtkKde struct {
	KeyID uint8
	Tx    bool
	GTK   []byte
}

// Bytes encodes the KDE including its element header.
func (g *GtkKde) Bytes() []byte {
	info := make([]byte, 2, 2+len(g.GTK))
	info[0] = g.KeyID & 0x03
	if g.Tx {
		info[0] |= 0x04
	}
	info = append(info, g.GTK...)
	ie := layers.Dot11InformationElement{
		ID:     layers.Dot11InformationElementIDVendor,
		Length: uint8(4 + len(info)),
		OUI:    []byte{OUI[0], OUI[1], OUI[2], KdeTypeGtk},
		Info:   info,
	}
	buf := gopacket.NewSerializeBuffer()
	// SerializeTo only fails when the buffer cannot grow.
	_ = ie.SerializeTo(buf, gopacket.SerializeOptions{})
	return buf.Bytes()
}

// KeyData is the decoded content of an EAPOL-Key Key Data field.
type KeyData struct {
	// Rsne is the first RSN element found, byte for byte.
	Rsne []byte
	Gtk  *GtkKde
}

// ParseKeyData walks the elements and KDEs of a plaintext Key Data field.
// Trailing padding is ignored; unknown elements are skipped.
func ParseKeyData(b []byte) (*KeyData, error) {
	kd := &KeyData{}
	for len(b) > 0 {
		if b[0] == paddingByte && (len(b) == 1 || b[1] == 0) {
			break
		}
		if len(b) < 2 {
			return nil, rsnerr.New(rsnerr.InvalidKeyDataLength, "truncated element header")
		}
		n := int(b[1])
		if 2+n > len(b) {
			return nil, rsnerr.New(rsnerr.InvalidElementLength, "element %d claims %d bytes, %d left", b[0], n, len(b)-2)
		}
		elem, body := b[:2+n], b[2:2+n]
		switch {
		case b[0] == ElementID && kd.Rsne == nil:
			kd.Rsne = append([]byte(nil), elem...)
		case b[0] == kdeID && n >= 4 && body[0] == OUI[0] && body[1] == OUI[1] && body[2] == OUI[2] && body[3] == KdeTypeGtk:
			if n < 6 {
				return nil, rsnerr.New(rsnerr.InvalidElementLength, "GTK KDE is %d bytes", n)
			}
			kd.Gtk = &GtkKde{
				KeyID: body[4] & 0x03,
				Tx:    body[4]&0x04 != 0,
				GTK:   append([]byte(nil), body[6:]...),
			}
		}
		b = b[2+n:]
	}
	return kd, nil
}

// PadKeyData appends 802.11 key data padding, a 0xdd octet followed by
// zeros, when b is shorter than 16 bytes or not a multiple of 8.
func PadKeyData(b []byte) []byte {
	if len(b) >= minWrapLen && len(b)%8 == 0 {
		return b
	}
	n := len(b) + 1
	if r := n % 8; r != 0 {
		n += 8 - r
	}
	if n < minWrapLen {
		n = minWrapLen
	}
	out := make([]byte, n)
	copy(out, b)
	out[len(b)] = paddingByte
	return out
}

// BuildKeyData concatenates an encoded RSNE and an optional GTK KDE and pads
// the result for key wrapping.
func BuildKeyData(rsne []byte, gtk *GtkKde) []byte {
	b := append([]byte(nil), rsne...)
	if gtk != nil {
		b = append(b, gtk.Bytes()...)
	}
	return PadKeyData(b)
}
