package rsne

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
)

const (
	ElementID = uint8(layers.Dot11InformationElementIDRSNInfo)
	Version   = 1

	PmkidLen = 16

	// maxBodyLen is the largest body an information element can carry.
	maxBodyLen = 255
)

// Rsne is an RSN element. Optional trailing fields are nil or empty when the
// element was truncated before them.
type Rsne struct {
	Version         uint16
	GroupCipher     *Suite
	PairwiseCiphers []Suite
	Akms            []Suite
	Capabilities    *uint16
	Pmkids          [][PmkidLen]byte
	GroupMgmtCipher *Suite
}

// New returns an RSNE advertising the given suites with zero capabilities.
func New(group Cipher, pairwise []Cipher, akms []Akm) *Rsne {
	g := group.Suite()
	r := &Rsne{Version: Version, GroupCipher: &g}
	for _, c := range pairwise {
		r.PairwiseCiphers = append(r.PairwiseCiphers, c.Suite())
	}
	for _, a := range akms {
		r.Akms = append(r.Akms, a.Suite())
	}
	caps := uint16(0)
	r.Capabilities = &caps
	return r
}

func (r *Rsne) hasAfterGroup() bool {
	return len(r.PairwiseCiphers) > 0 || r.hasAfterPairwise()
}

func (r *Rsne) hasAfterPairwise() bool {
	return len(r.Akms) > 0 || r.hasAfterAkms()
}

func (r *Rsne) hasAfterAkms() bool {
	return r.Capabilities != nil || r.hasAfterCaps()
}

func (r *Rsne) hasAfterCaps() bool {
	return len(r.Pmkids) > 0 || r.GroupMgmtCipher != nil
}

// body encodes the element contents without the ID and length octets.
// Missing middle fields are written in their empty form so later fields
// stay in place.
func (r *Rsne) body() []byte {
	b := binary.LittleEndian.AppendUint16(nil, r.Version)
	if r.GroupCipher == nil && !r.hasAfterGroup() {
		return b
	}
	g := NewSuite(CipherCCMP128.id)
	if r.GroupCipher != nil {
		g = *r.GroupCipher
	}
	b = append(b, g[:]...)
	if !r.hasAfterGroup() {
		return b
	}
	b = binary.LittleEndian.AppendUint16(b, uint16(len(r.PairwiseCiphers)))
	for _, s := range r.PairwiseCiphers {
		b = append(b, s[:]...)
	}
	if !r.hasAfterPairwise() {
		return b
	}
	b = binary.LittleEndian.AppendUint16(b, uint16(len(r.Akms)))
	for _, s := range r.Akms {
		b = append(b, s[:]...)
	}
	if !r.hasAfterAkms() {
		return b
	}
	var caps uint16
	if r.Capabilities != nil {
		caps = *r.Capabilities
	}
	b = binary.LittleEndian.AppendUint16(b, caps)
	if !r.hasAfterCaps() {
		return b
	}
	b = binary.LittleEndian.AppendUint16(b, uint16(len(r.Pmkids)))
	for _, p := range r.Pmkids {
		b = append(b, p[:]...)
	}
	if r.GroupMgmtCipher != nil {
		b = append(b, r.GroupMgmtCipher[:]...)
	}
	return b
}

// Bytes encodes the element including its ID and length octets.
func (r *Rsne) Bytes() ([]byte, error) {
	body := r.body()
	if len(body) > maxBodyLen {
		return nil, rsnerr.New(rsnerr.InvalidRsneLength, "body is %d bytes", len(body))
	}
	ie := layers.Dot11InformationElement{
		ID:     layers.Dot11InformationElementIDRSNInfo,
		Length: uint8(len(body)),
		Info:   body,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := ie.SerializeTo(buf, gopacket.SerializeOptions{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustBytes is Bytes for elements known to fit, such as those built by New.
func (r *Rsne) MustBytes() []byte {
	b, err := r.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}

type reader struct {
	b []byte
}

func (rd *reader) u16() (uint16, bool) {
	if len(rd.b) < 2 {
		return 0, false
	}
	v := binary.LittleEndian.Uint16(rd.b)
	rd.b = rd.b[2:]
	return v, true
}

func (rd *reader) suite() (Suite, bool) {
	var s Suite
	if len(rd.b) < len(s) {
		return s, false
	}
	copy(s[:], rd.b)
	rd.b = rd.b[len(s):]
	return s, true
}

func (rd *reader) suites() ([]Suite, error) {
	n, ok := rd.u16()
	if !ok {
		return nil, rsnerr.New(rsnerr.InvalidRsneLength, "truncated suite count")
	}
	if int(n)*4 > len(rd.b) {
		return nil, rsnerr.New(rsnerr.InvalidRsneLength, "%d suites in %d bytes", n, len(rd.b))
	}
	out := make([]Suite, n)
	for i := range out {
		out[i], _ = rd.suite()
	}
	return out, nil
}

// Parse decodes an RSN element including its ID and length octets.
func Parse(raw []byte) (*Rsne, error) {
	if len(raw) < 2 {
		return nil, rsnerr.New(rsnerr.InvalidElementLength, "element is %d bytes", len(raw))
	}
	if raw[0] != ElementID {
		return nil, rsnerr.New(rsnerr.InvalidRsneLength, "element ID %d is not RSNE", raw[0])
	}
	if int(raw[1]) != len(raw)-2 {
		return nil, rsnerr.New(rsnerr.InvalidElementLength, "length octet %d for %d byte body", raw[1], len(raw)-2)
	}
	rd := &reader{b: raw[2:]}
	r := &Rsne{}

	v, ok := rd.u16()
	if !ok {
		return nil, rsnerr.New(rsnerr.InvalidRsneLength, "missing version")
	}
	if v != Version {
		return nil, rsnerr.New(rsnerr.InvalidRsneVersion, "version %d", v)
	}
	r.Version = v

	if len(rd.b) == 0 {
		return r, nil
	}
	g, ok := rd.suite()
	if !ok {
		return nil, rsnerr.New(rsnerr.InvalidRsneLength, "truncated group cipher")
	}
	r.GroupCipher = &g

	if len(rd.b) == 0 {
		return r, nil
	}
	var err error
	if r.PairwiseCiphers, err = rd.suites(); err != nil {
		return nil, err
	}

	if len(rd.b) == 0 {
		return r, nil
	}
	if r.Akms, err = rd.suites(); err != nil {
		return nil, err
	}

	if len(rd.b) == 0 {
		return r, nil
	}
	caps, ok := rd.u16()
	if !ok {
		return nil, rsnerr.New(rsnerr.InvalidRsneLength, "truncated capabilities")
	}
	r.Capabilities = &caps

	if len(rd.b) == 0 {
		return r, nil
	}
	n, ok := rd.u16()
	if !ok {
		return nil, rsnerr.New(rsnerr.InvalidPmkidLength, "truncated PMKID count")
	}
	if int(n)*PmkidLen > len(rd.b) {
		return nil, rsnerr.New(rsnerr.InvalidPmkidLength, "%d PMKIDs in %d bytes", n, len(rd.b))
	}
	r.Pmkids = make([][PmkidLen]byte, n)
	for i := range r.Pmkids {
		copy(r.Pmkids[i][:], rd.b)
		rd.b = rd.b[PmkidLen:]
	}

	if len(rd.b) == 0 {
		return r, nil
	}
	gm, ok := rd.suite()
	if !ok {
		return nil, rsnerr.New(rsnerr.InvalidOuiLength, "truncated group management cipher")
	}
	r.GroupMgmtCipher = &gm
	if len(rd.b) != 0 {
		return nil, rsnerr.New(rsnerr.InvalidRsneLength, "%d trailing bytes", len(rd.b))
	}
	return r, nil
}
