package wifi

import (
	"bytes"
	"fmt"
	"net"
)

// MacAddr is a 48-bit IEEE 802 MAC address.
type MacAddr [6]byte

// ParseMAC parses a colon, dash or dot separated 48-bit MAC address.
func ParseMAC(s string) (MacAddr, error) {
	var m MacAddr
	hw, err := net.ParseMAC(s)
	if err != nil {
		return m, fmt.Errorf("parse MAC %q: %w", s, err)
	}
	if len(hw) != len(m) {
		return m, fmt.Errorf("parse MAC %q: not a 48-bit address", s)
	}
	copy(m[:], hw)
	return m, nil
}

// MustParseMAC is like ParseMAC but panics on error. Intended for tests and
// package-level fixtures.
func MustParseMAC(s string) MacAddr {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m MacAddr) String() string {
	return net.HardwareAddr(m[:]).String()
}

func (m MacAddr) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, len(m))
	copy(hw, m[:])
	return hw
}

func (m MacAddr) IsZero() bool {
	return m == MacAddr{}
}

// IsUnicast reports whether m is a non-zero individual address.
func (m MacAddr) IsUnicast() bool {
	return !m.IsZero() && m[0]&0x01 == 0
}

// Less orders addresses as unsigned big-endian integers.
func (m MacAddr) Less(o MacAddr) bool {
	return bytes.Compare(m[:], o[:]) < 0
}

// HandshakeMessage numbers the messages of the 4-Way Handshake.
type HandshakeMessage int

const (
	HandshakeMsgUnknown HandshakeMessage = 0
	HandshakeMsg1       HandshakeMessage = 1
	HandshakeMsg2       HandshakeMessage = 2
	HandshakeMsg3       HandshakeMessage = 3
	HandshakeMsg4       HandshakeMessage = 4
)

func (h HandshakeMessage) String() string {
	switch h {
	case HandshakeMsg1:
		return "M1"
	case HandshakeMsg2:
		return "M2"
	case HandshakeMsg3:
		return "M3"
	case HandshakeMsg4:
		return "M4"
	default:
		return "Unknown"
	}
}
