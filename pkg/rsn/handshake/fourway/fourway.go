package fourway

import (
	"bytes"
	"encoding/binary"

	"github.com/wifibear/rsn/pkg/rsn/integrity"
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/keywrap"
	"github.com/wifibear/rsn/pkg/rsn/rsna"
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

// State is the position of a handshake in its message sequence.
type State uint8

const (
	Idle State = iota
	AwaitingMessage1
	AwaitingMessage2
	AwaitingMessage3
	AwaitingMessage4
	Established
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingMessage1:
		return "awaiting-m1"
	case AwaitingMessage2:
		return "awaiting-m2"
	case AwaitingMessage3:
		return "awaiting-m3"
	case AwaitingMessage4:
		return "awaiting-m4"
	case Established:
		return "established"
	default:
		return "invalid"
	}
}

// Handshake is one peer's side of the 4-Way Handshake. It is not safe for
// concurrent use.
type Handshake struct {
	cfg        Config
	negotiated rsne.Negotiated
	pmk        key.Pmk
	counter    *rsna.ReplayCounter

	aRsne []byte
	sRsne []byte

	state  State
	anonce [32]byte
	snonce [32]byte
	// m1Counter is the replay counter of the Message 1 the supplicant
	// answered.
	m1Counter uint64
	// pending is the PTK of the attempt in progress.
	pending *key.Ptk
	// sentGtk is the GTK the authenticator delivered in Message 3.
	sentGtk *key.Gtk

	ptk *key.Ptk
	gtk *key.Gtk
}

// New returns a handshake in its initial state. counter is the replay
// counter of the association and is shared with the Group Key Handshake.
func New(cfg Config, negotiated rsne.Negotiated, pmk key.Pmk, counter *rsna.ReplayCounter) (*Handshake, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counter == nil {
		counter = &rsna.ReplayCounter{}
	}
	aRsne, err := cfg.AuthenticatorRsne.Bytes()
	if err != nil {
		return nil, err
	}
	sRsne, err := cfg.SupplicantRsne.Bytes()
	if err != nil {
		return nil, err
	}
	if cfg.GtkProvider != nil && cfg.GtkProvider.Cipher() != negotiated.GroupCipher {
		return nil, rsnerr.New(rsnerr.GroupCipherMismatch, "provider uses %s, negotiated %s",
			cfg.GtkProvider.Cipher(), negotiated.GroupCipher)
	}
	h := &Handshake{
		cfg:        cfg,
		negotiated: negotiated,
		pmk:        pmk,
		counter:    counter,
		aRsne:      aRsne,
		sRsne:      sRsne,
	}
	h.Reset()
	return h, nil
}

// Reset discards every nonce and key of the handshake. The shared replay
// counter is reset by its owner.
func (h *Handshake) Reset() {
	h.anonce, h.snonce = [32]byte{}, [32]byte{}
	h.m1Counter = 0
	h.pending, h.sentGtk, h.ptk, h.gtk = nil, nil, nil, nil
	if h.cfg.Role == rsna.Supplicant {
		h.state = AwaitingMessage1
	} else {
		h.state = Idle
	}
}

func (h *Handshake) State() State { return h.state }

// Ptk returns the PTK of the established handshake, or nil.
func (h *Handshake) Ptk() *key.Ptk { return h.ptk }

// Gtk returns the GTK delivered by the established handshake, or nil.
func (h *Handshake) Gtk() *key.Gtk { return h.gtk }

func (h *Handshake) descriptorVersion() uint8 {
	return h.negotiated.Akm.DescriptorVersion()
}

func (h *Handshake) newFrame(version uint8, bits wifi.KeyInfo, counter uint64) *wifi.EAPOLKeyFrame {
	return &wifi.EAPOLKeyFrame{
		Version:        version,
		PacketType:     wifi.EAPOLTypeKey,
		DescriptorType: wifi.DescriptorTypeRSN,
		KeyInfo:        wifi.NewKeyInfo(h.descriptorVersion(), bits|wifi.KeyInfoPairwise),
		ReplayCounter:  counter,
	}
}

func (h *Handshake) derivePtk(anonce, snonce [32]byte) (*key.Ptk, error) {
	return key.DerivePtk(h.negotiated.Akm, h.negotiated.PairwiseCipher, h.pmk,
		h.cfg.AuthenticatorAddr, h.cfg.SupplicantAddr, anonce, snonce)
}

// nextNonce draws a nonce. Failures of a source that does not report a
// typed error are treated as missing entropy.
func (h *Handshake) nextNonce() ([32]byte, error) {
	n, err := h.cfg.Nonces.Next()
	if err != nil {
		if _, ok := rsnerr.KindOf(err); !ok {
			err = rsnerr.Wrap(rsnerr.EntropyUnavailable, err)
		}
		return [32]byte{}, err
	}
	return n, nil
}

func (h *Handshake) checkKeyLength(f *wifi.EAPOLKeyFrame) error {
	if want := h.negotiated.PairwiseCipher.TKLen(); int(f.KeyLength) != want {
		return rsnerr.New(rsnerr.InvalidKeyLength, "got %d, want %d", f.KeyLength, want)
	}
	return nil
}

// Initiate starts a new attempt by sending Message 1 with a fresh ANonce.
// Authenticator only. Calling it while an attempt is in progress restarts
// the attempt.
func (h *Handshake) Initiate(sink *rsna.UpdateSink) error {
	if h.cfg.Role != rsna.Authenticator {
		return rsnerr.New(rsnerr.SupplicantCannotInitiate, "")
	}
	if h.state == Established {
		return rsnerr.New(rsnerr.UnexpectedMessage, "handshake already established")
	}
	anonce, err := h.nextNonce()
	if err != nil {
		return err
	}
	counter := h.counter.Next()
	m1 := h.newFrame(wifi.EAPOLVersion2, wifi.KeyInfoAck, counter)
	m1.KeyLength = uint16(h.negotiated.PairwiseCipher.TKLen())
	m1.Nonce = anonce

	h.anonce = anonce
	h.snonce = [32]byte{}
	h.pending, h.sentGtk = nil, nil
	h.counter.Record(counter)
	h.state = AwaitingMessage2
	sink.Push(rsna.TxEapolKeyFrame{Exchange: rsna.FourWay, Message: 1, Frame: m1})
	return nil
}

// OnEapolKeyFrame handles a pairwise EAPOL-Key frame from the peer. A
// rejected frame returns an error and changes nothing.
func (h *Handshake) OnEapolKeyFrame(sink *rsna.UpdateSink, f *wifi.EAPOLKeyFrame) error {
	if !f.IsPairwise() {
		return rsnerr.New(rsnerr.UnexpectedKeyType, "group frame in 4-Way Handshake")
	}
	if f.KeyInfo.Has(wifi.KeyInfoSMK) {
		return rsnerr.New(rsnerr.SmkHandshakeUnsupported, "")
	}
	if f.KeyInfo.KeyIndex() != 0 {
		return rsnerr.New(rsnerr.UnexpectedKeyIndex, "pairwise key index %d", f.KeyInfo.KeyIndex())
	}
	if h.cfg.Role == rsna.Supplicant {
		if f.KeyInfo.Has(wifi.KeyInfoMIC) {
			return h.onMessage3(sink, f)
		}
		return h.onMessage1(sink, f)
	}
	if f.KeyInfo.Has(wifi.KeyInfoSecure) {
		return h.onMessage4(sink, f)
	}
	return h.onMessage2(sink, f)
}

func (h *Handshake) onMessage1(sink *rsna.UpdateSink, f *wifi.EAPOLKeyFrame) error {
	if h.state != AwaitingMessage1 && h.state != AwaitingMessage3 {
		return rsnerr.New(rsnerr.UnexpectedMessage, "message 1 in state %s", h.state)
	}
	if err := rsna.CheckKeyInfo(f.KeyInfo, wifi.KeyInfoAck); err != nil {
		return err
	}
	if err := h.checkKeyLength(f); err != nil {
		return err
	}
	if f.HasZeroNonce() {
		return rsnerr.New(rsnerr.InvalidNonce, "zero ANonce")
	}
	if !f.HasZeroRSC() {
		return rsnerr.New(rsnerr.NonZeroRsc, "")
	}
	if err := h.counter.CheckIncreasing(f.ReplayCounter); err != nil {
		return err
	}

	snonce, err := h.nextNonce()
	if err != nil {
		return err
	}
	ptk, err := h.derivePtk(f.Nonce, snonce)
	if err != nil {
		return err
	}
	m2 := h.newFrame(f.Version, wifi.KeyInfoMIC, f.ReplayCounter)
	m2.Nonce = snonce
	m2.Data = append([]byte(nil), h.sRsne...)
	if err := integrity.SignFrame(h.negotiated.Akm, ptk.KCK, m2); err != nil {
		return err
	}

	h.anonce, h.snonce = f.Nonce, snonce
	h.m1Counter = f.ReplayCounter
	h.pending = ptk
	h.state = AwaitingMessage3
	sink.Push(rsna.TxEapolKeyFrame{Exchange: rsna.FourWay, Message: 2, Frame: m2})
	return nil
}

func (h *Handshake) onMessage3(sink *rsna.UpdateSink, f *wifi.EAPOLKeyFrame) error {
	if h.state != AwaitingMessage3 {
		return rsnerr.New(rsnerr.UnexpectedMessage, "message 3 in state %s", h.state)
	}
	want := wifi.KeyInfoInstall | wifi.KeyInfoAck | wifi.KeyInfoMIC | wifi.KeyInfoSecure | wifi.KeyInfoEncryptedKeyData
	if err := rsna.CheckKeyInfo(f.KeyInfo, want); err != nil {
		return err
	}
	if err := h.checkKeyLength(f); err != nil {
		return err
	}
	if f.ReplayCounter <= h.m1Counter {
		return rsnerr.New(rsnerr.ReplayCounterNotIncreasing, "message 3 counter %d <= message 1 counter %d",
			f.ReplayCounter, h.m1Counter)
	}
	if err := h.counter.CheckIncreasing(f.ReplayCounter); err != nil {
		return err
	}
	if f.Nonce != h.anonce {
		return rsnerr.New(rsnerr.MismatchedNonce, "message 3 ANonce differs from message 1")
	}
	ptk := h.pending
	if err := integrity.VerifyFrame(h.negotiated.Akm, ptk.KCK, f); err != nil {
		return err
	}
	if len(f.Data) == 0 {
		return rsnerr.New(rsnerr.MissingKeyData, "message 3")
	}
	plain, err := keywrap.Unwrap(ptk.KEK, f.Data)
	if err != nil {
		return err
	}
	kd, err := rsne.ParseKeyData(plain)
	if err != nil {
		return err
	}
	if !bytes.Equal(kd.Rsne, h.aRsne) {
		return rsnerr.New(rsnerr.RsneMismatch, "message 3")
	}
	if kd.Gtk == nil {
		return rsnerr.New(rsnerr.MissingGtk, "")
	}
	if want := h.negotiated.GroupCipher.TKLen(); len(kd.Gtk.GTK) != want {
		return rsnerr.New(rsnerr.InvalidGtkLength, "got %d, want %d", len(kd.Gtk.GTK), want)
	}
	gtk := &key.Gtk{
		TK:     kd.Gtk.GTK,
		KeyID:  kd.Gtk.KeyID,
		RSC:    binary.LittleEndian.Uint64(f.RSC[:]),
		Cipher: h.negotiated.GroupCipher,
	}

	m4 := h.newFrame(f.Version, wifi.KeyInfoMIC|wifi.KeyInfoSecure, f.ReplayCounter)
	if err := integrity.SignFrame(h.negotiated.Akm, ptk.KCK, m4); err != nil {
		return err
	}

	h.counter.Record(f.ReplayCounter)
	h.ptk, h.gtk = ptk, gtk
	h.pending = nil
	h.state = Established
	sink.Push(rsna.TxEapolKeyFrame{Exchange: rsna.FourWay, Message: 4, Frame: m4})
	sink.Push(rsna.InstallPtk(ptk))
	sink.Push(rsna.InstallGtk(gtk))
	sink.Push(rsna.StatusUpdate{Status: rsna.Established})
	return nil
}

func (h *Handshake) onMessage2(sink *rsna.UpdateSink, f *wifi.EAPOLKeyFrame) error {
	if h.state != AwaitingMessage2 {
		return rsnerr.New(rsnerr.UnexpectedMessage, "message 2 in state %s", h.state)
	}
	if err := rsna.CheckKeyInfo(f.KeyInfo, wifi.KeyInfoMIC); err != nil {
		return err
	}
	if err := h.counter.CheckEcho(f.ReplayCounter); err != nil {
		return err
	}
	if f.HasZeroNonce() {
		return rsnerr.New(rsnerr.InvalidNonce, "zero SNonce")
	}
	ptk, err := h.derivePtk(h.anonce, f.Nonce)
	if err != nil {
		return err
	}
	if err := integrity.VerifyFrame(h.negotiated.Akm, ptk.KCK, f); err != nil {
		return err
	}
	if len(f.Data) == 0 {
		return rsnerr.New(rsnerr.MissingKeyData, "message 2")
	}
	kd, err := rsne.ParseKeyData(f.Data)
	if err != nil {
		return err
	}
	if !bytes.Equal(kd.Rsne, h.sRsne) {
		return rsnerr.New(rsnerr.SupplicantRsneMismatch, "message 2")
	}

	gtk := h.cfg.GtkProvider.Current()
	plain := rsne.BuildKeyData(h.aRsne, &rsne.GtkKde{KeyID: gtk.KeyID, GTK: gtk.TK})
	wrapped, err := keywrap.Wrap(ptk.KEK, plain)
	if err != nil {
		return err
	}
	counter := h.counter.Next()
	m3 := h.newFrame(wifi.EAPOLVersion2,
		wifi.KeyInfoInstall|wifi.KeyInfoAck|wifi.KeyInfoMIC|wifi.KeyInfoSecure|wifi.KeyInfoEncryptedKeyData,
		counter)
	m3.KeyLength = uint16(h.negotiated.PairwiseCipher.TKLen())
	m3.Nonce = h.anonce
	binary.LittleEndian.PutUint64(m3.RSC[:], gtk.RSC)
	m3.Data = wrapped
	if err := integrity.SignFrame(h.negotiated.Akm, ptk.KCK, m3); err != nil {
		return err
	}

	h.snonce = f.Nonce
	h.pending = ptk
	h.sentGtk = &gtk
	h.counter.Record(counter)
	h.state = AwaitingMessage4
	sink.Push(rsna.TxEapolKeyFrame{Exchange: rsna.FourWay, Message: 3, Frame: m3})
	return nil
}

func (h *Handshake) onMessage4(sink *rsna.UpdateSink, f *wifi.EAPOLKeyFrame) error {
	if h.state != AwaitingMessage4 {
		return rsnerr.New(rsnerr.UnexpectedMessage, "message 4 in state %s", h.state)
	}
	if err := rsna.CheckKeyInfo(f.KeyInfo, wifi.KeyInfoMIC|wifi.KeyInfoSecure); err != nil {
		return err
	}
	if err := h.counter.CheckEcho(f.ReplayCounter); err != nil {
		return err
	}
	ptk := h.pending
	if err := integrity.VerifyFrame(h.negotiated.Akm, ptk.KCK, f); err != nil {
		return err
	}
	if len(f.Data) != 0 {
		return rsnerr.New(rsnerr.UnexpectedKeyData, "message 4")
	}

	h.ptk, h.gtk = ptk, h.sentGtk
	h.pending = nil
	h.state = Established
	sink.Push(rsna.InstallPtk(ptk))
	sink.Push(rsna.StatusUpdate{Status: rsna.Established})
	return nil
}
