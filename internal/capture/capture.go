package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/multierr"

	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

const snapLen = 65536

// Writer stores EAPOL frames in a pcap file as Ethernet frames.
type Writer struct {
	w *pcapgo.Writer
	c io.Closer
}

// Create opens path for writing and writes the pcap file header.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	w.c = f
	return w, nil
}

// NewWriter writes a pcap file header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{w: pw}, nil
}

// WriteEAPOL wraps an encoded EAPOL frame in an Ethernet header and appends
// it to the file.
func (w *Writer) WriteEAPOL(ts time.Time, src, dst wifi.MacAddr, eapol []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       src.HardwareAddr(),
		DstMAC:       dst.HardwareAddr(),
		EthernetType: layers.EthernetTypeEAPOL,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(eapol)); err != nil {
		return fmt.Errorf("serialize ethernet frame: %w", err)
	}
	data := buf.Bytes()
	return w.w.WritePacket(captureInfo(ts, len(data)), data)
}

func captureInfo(ts time.Time, n int) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{Timestamp: ts, CaptureLength: n, Length: n}
}

func (w *Writer) Close() error {
	if w.c == nil {
		return nil
	}
	return w.c.Close()
}

// Network is an access point announced by a beacon or probe response.
type Network struct {
	BSSID wifi.MacAddr
	SSID  string
	// Rsne is nil for networks without an RSN element.
	Rsne *rsne.Rsne
}

// State holds the handshakes found in a capture, keyed by station address,
// and the networks announced in it, keyed by BSSID.
type State struct {
	Handshakes map[wifi.MacAddr]*wifi.FourWayHandshake
	Networks   map[wifi.MacAddr]*Network
	Frames     int
}

func newState() *State {
	return &State{
		Handshakes: make(map[wifi.MacAddr]*wifi.FourWayHandshake),
		Networks:   make(map[wifi.MacAddr]*Network),
	}
}

// SSID returns the name the access point announced, if the capture holds a
// beacon or probe response from it.
func (s *State) SSID(bssid wifi.MacAddr) (string, bool) {
	n, ok := s.Networks[bssid]
	if !ok || n.SSID == "" {
		return "", false
	}
	return n.SSID, true
}

// HasCompleteHandshake checks if any station has a complete handshake.
func (s *State) HasCompleteHandshake() bool {
	for _, hs := range s.Handshakes {
		if hs.Complete() {
			return true
		}
	}
	return false
}

// Verifiable returns the handshakes holding at least Messages 1 and 2.
func (s *State) Verifiable() []*wifi.FourWayHandshake {
	var out []*wifi.FourWayHandshake
	for _, hs := range s.Handshakes {
		if hs.HasMinimumFrames() {
			out = append(out, hs)
		}
	}
	return out
}

// ReadFile extracts the EAPOL-Key handshake frames of a pcap file. A zero
// bssid accepts every access point.
func ReadFile(path string, bssid wifi.MacAddr) (st *State, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return Read(f, bssid)
}

// Read is ReadFile on an open pcap stream.
func Read(r io.Reader, bssid wifi.MacAddr) (*State, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	first, err := firstLayer(pr.LinkType())
	if err != nil {
		return nil, err
	}

	st := newState()
	for {
		data, _, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("read packet %d: %w", st.Frames+1, err)
		}
		packet := gopacket.NewPacket(data, first, gopacket.Default)
		if n := announcement(packet); n != nil {
			if bssid.IsZero() || n.BSSID == bssid {
				st.Networks[n.BSSID] = n
			}
			continue
		}
		eapol := packet.Layer(layers.LayerTypeEAPOL)
		if eapol == nil {
			continue
		}
		raw := append(append([]byte(nil), eapol.LayerContents()...), eapol.LayerPayload()...)
		frame, err := wifi.ParseEAPOLKeyFrame(raw)
		if err != nil {
			continue
		}
		ap, sta, ok := addresses(packet, frame.KeyInfo.Has(wifi.KeyInfoAck))
		if !ok || (!bssid.IsZero() && ap != bssid) {
			continue
		}
		msg := frame.MessageNumber()
		if msg == wifi.HandshakeMsgUnknown {
			continue
		}
		hs, ok := st.Handshakes[sta]
		if !ok {
			hs = wifi.NewFourWayHandshake(ap, sta)
			st.Handshakes[sta] = hs
		}
		hs.AddMessage(msg, frame, raw)
		st.Frames++
	}
}

func firstLayer(lt layers.LinkType) (gopacket.LayerType, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return layers.LayerTypeEthernet, nil
	case layers.LinkTypeIEEE802_11:
		return layers.LayerTypeDot11, nil
	case layers.LinkTypeIEEE80211Radio:
		return layers.LayerTypeRadioTap, nil
	default:
		return 0, fmt.Errorf("unsupported link type %s", lt)
	}
}

// addresses returns the access point and station of a frame. Ethernet
// frames carry no DS bits, so the sender of a Key Ack frame is taken to be
// the access point.
func addresses(packet gopacket.Packet, ack bool) (ap, sta wifi.MacAddr, ok bool) {
	if l := packet.Layer(layers.LayerTypeDot11); l != nil {
		dot11 := l.(*layers.Dot11)
		switch {
		case dot11.Flags.ToDS() && !dot11.Flags.FromDS():
			return mac(dot11.Address1), mac(dot11.Address2), true
		case !dot11.Flags.ToDS() && dot11.Flags.FromDS():
			return mac(dot11.Address2), mac(dot11.Address1), true
		case !dot11.Flags.ToDS() && !dot11.Flags.FromDS():
			return mac(dot11.Address3), otherThan(mac(dot11.Address3), mac(dot11.Address1), mac(dot11.Address2)), true
		}
		return ap, sta, false
	}
	if l := packet.Layer(layers.LayerTypeEthernet); l != nil {
		eth := l.(*layers.Ethernet)
		if ack {
			return mac(eth.SrcMAC), mac(eth.DstMAC), true
		}
		return mac(eth.DstMAC), mac(eth.SrcMAC), true
	}
	return ap, sta, false
}

// announcement extracts the network of a beacon or probe response.
func announcement(packet gopacket.Packet) *Network {
	if packet.Layer(layers.LayerTypeDot11MgmtBeacon) == nil && packet.Layer(layers.LayerTypeDot11MgmtProbeResp) == nil {
		return nil
	}
	dot11, ok := packet.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok {
		return nil
	}
	n := &Network{BSSID: mac(dot11.Address3)}
	for _, l := range packet.Layers() {
		ie, ok := l.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		switch ie.ID {
		case layers.Dot11InformationElementIDSSID:
			n.SSID = string(ie.Info)
		case layers.Dot11InformationElementIDRSNInfo:
			if n.Rsne != nil {
				continue
			}
			raw := append([]byte{byte(ie.ID), ie.Length}, ie.Info...)
			if r, err := rsne.Parse(raw); err == nil {
				n.Rsne = r
			}
		}
	}
	return n
}

func otherThan(ap, a, b wifi.MacAddr) wifi.MacAddr {
	if a == ap {
		return b
	}
	return a
}

func mac(hw []byte) wifi.MacAddr {
	var m wifi.MacAddr
	copy(m[:], hw)
	return m
}
