// Package groupkey implements the authenticator-initiated Group Key
// Handshake that delivers a new GTK over an established PTK.
package groupkey

import (
	"encoding/binary"

	"github.com/wifibear/rsn/pkg/rsn/integrity"
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/keywrap"
	"github.com/wifibear/rsn/pkg/rsn/rsna"
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

// Config is the static configuration of the Group Key Handshake.
type Config struct {
	Role rsna.Role
	// GtkProvider supplies the GTK to deliver. Authenticator only.
	GtkProvider *key.GtkProvider
}

type State uint8

const (
	Idle State = iota
	AwaitingMessage2
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingMessage2:
		return "awaiting-m2"
	default:
		return "invalid"
	}
}

// Handshake is one peer's side of the Group Key Handshake. It is not safe
// for concurrent use.
type Handshake struct {
	cfg        Config
	negotiated rsne.Negotiated
	counter    *rsna.ReplayCounter

	state State
	// pending is the GTK the authenticator sent and awaits confirmation for.
	pending *key.Gtk
	gtk     *key.Gtk
}

// New returns a handshake sharing counter with the association's 4-Way
// Handshake.
func New(cfg Config, negotiated rsne.Negotiated, counter *rsna.ReplayCounter) (*Handshake, error) {
	if !cfg.Role.IsValid() {
		return nil, rsnerr.New(rsnerr.ConfigRoleMismatch, "invalid role")
	}
	if cfg.Role == rsna.Authenticator {
		if cfg.GtkProvider == nil {
			return nil, rsnerr.New(rsnerr.MissingGtkProvider, "")
		}
		if cfg.GtkProvider.Cipher() != negotiated.GroupCipher {
			return nil, rsnerr.New(rsnerr.GroupCipherMismatch, "provider uses %s, negotiated %s",
				cfg.GtkProvider.Cipher(), negotiated.GroupCipher)
		}
	}
	if counter == nil {
		counter = &rsna.ReplayCounter{}
	}
	return &Handshake{cfg: cfg, negotiated: negotiated, counter: counter}, nil
}

func (h *Handshake) Reset() {
	h.state = Idle
	h.pending, h.gtk = nil, nil
}

func (h *Handshake) State() State { return h.state }

// Gtk returns the GTK of the last completed exchange, or nil.
func (h *Handshake) Gtk() *key.Gtk { return h.gtk }

func (h *Handshake) newFrame(version uint8, bits wifi.KeyInfo, counter uint64) *wifi.EAPOLKeyFrame {
	return &wifi.EAPOLKeyFrame{
		Version:        version,
		PacketType:     wifi.EAPOLTypeKey,
		DescriptorType: wifi.DescriptorTypeRSN,
		KeyInfo:        wifi.NewKeyInfo(h.negotiated.Akm.DescriptorVersion(), bits),
		ReplayCounter:  counter,
	}
}

// Initiate sends Message 1 carrying the provider's current GTK, wrapped
// under ptk. Authenticator only.
func (h *Handshake) Initiate(sink *rsna.UpdateSink, ptk *key.Ptk) error {
	if h.cfg.Role != rsna.Authenticator {
		return rsnerr.New(rsnerr.UnsupportedGroupKeyDirection, "supplicant cannot start a group key handshake")
	}
	if ptk == nil {
		return rsnerr.New(rsnerr.GroupKeyBeforePtk, "")
	}
	gtk := h.cfg.GtkProvider.Current()
	plain := rsne.PadKeyData((&rsne.GtkKde{KeyID: gtk.KeyID, GTK: gtk.TK}).Bytes())
	wrapped, err := keywrap.Wrap(ptk.KEK, plain)
	if err != nil {
		return err
	}
	counter := h.counter.Next()
	bits := wifi.KeyInfoAck | wifi.KeyInfoMIC | wifi.KeyInfoSecure | wifi.KeyInfoEncryptedKeyData |
		wifi.KeyInfo(gtk.KeyID&0x03)<<4
	m1 := h.newFrame(wifi.EAPOLVersion2, bits, counter)
	binary.LittleEndian.PutUint64(m1.RSC[:], gtk.RSC)
	m1.Data = wrapped
	if err := integrity.SignFrame(h.negotiated.Akm, ptk.KCK, m1); err != nil {
		return err
	}

	h.counter.Record(counter)
	h.pending = &gtk
	h.state = AwaitingMessage2
	sink.Push(rsna.TxEapolKeyFrame{Exchange: rsna.GroupKey, Message: 1, Frame: m1})
	return nil
}

// OnEapolKeyFrame handles a group EAPOL-Key frame protected by ptk. A
// rejected frame returns an error and changes nothing.
func (h *Handshake) OnEapolKeyFrame(sink *rsna.UpdateSink, ptk *key.Ptk, f *wifi.EAPOLKeyFrame) error {
	if f.IsPairwise() {
		return rsnerr.New(rsnerr.UnexpectedKeyType, "pairwise frame in Group Key Handshake")
	}
	if ptk == nil {
		return rsnerr.New(rsnerr.GroupKeyBeforePtk, "")
	}
	if h.cfg.Role == rsna.Supplicant {
		return h.onMessage1(sink, ptk, f)
	}
	return h.onMessage2(sink, ptk, f)
}

func (h *Handshake) onMessage1(sink *rsna.UpdateSink, ptk *key.Ptk, f *wifi.EAPOLKeyFrame) error {
	want := wifi.KeyInfoAck | wifi.KeyInfoMIC | wifi.KeyInfoSecure | wifi.KeyInfoEncryptedKeyData
	if err := rsna.CheckKeyInfo(f.KeyInfo, want); err != nil {
		return err
	}
	if err := h.counter.CheckIncreasing(f.ReplayCounter); err != nil {
		return err
	}
	if err := integrity.VerifyFrame(h.negotiated.Akm, ptk.KCK, f); err != nil {
		return err
	}
	if len(f.Data) == 0 {
		return rsnerr.New(rsnerr.MissingKeyData, "group message 1")
	}
	plain, err := keywrap.Unwrap(ptk.KEK, f.Data)
	if err != nil {
		return err
	}
	kd, err := rsne.ParseKeyData(plain)
	if err != nil {
		return err
	}
	if kd.Gtk == nil {
		return rsnerr.New(rsnerr.MissingGtk, "")
	}
	if want := h.negotiated.GroupCipher.TKLen(); len(kd.Gtk.GTK) != want {
		return rsnerr.New(rsnerr.InvalidGtkLength, "got %d, want %d", len(kd.Gtk.GTK), want)
	}
	if idx := f.KeyInfo.KeyIndex(); idx != kd.Gtk.KeyID {
		return rsnerr.New(rsnerr.UnexpectedKeyIndex, "key info index %d, gtk kde key id %d", idx, kd.Gtk.KeyID)
	}
	gtk := &key.Gtk{
		TK:     kd.Gtk.GTK,
		KeyID:  kd.Gtk.KeyID,
		RSC:    binary.LittleEndian.Uint64(f.RSC[:]),
		Cipher: h.negotiated.GroupCipher,
	}

	m2 := h.newFrame(f.Version, wifi.KeyInfoMIC|wifi.KeyInfoSecure|wifi.KeyInfo(gtk.KeyID&0x03)<<4, f.ReplayCounter)
	if err := integrity.SignFrame(h.negotiated.Akm, ptk.KCK, m2); err != nil {
		return err
	}

	h.counter.Record(f.ReplayCounter)
	h.gtk = gtk
	sink.Push(rsna.TxEapolKeyFrame{Exchange: rsna.GroupKey, Message: 2, Frame: m2})
	sink.Push(rsna.InstallGtk(gtk))
	return nil
}

func (h *Handshake) onMessage2(sink *rsna.UpdateSink, ptk *key.Ptk, f *wifi.EAPOLKeyFrame) error {
	if f.KeyInfo.Has(wifi.KeyInfoRequest) {
		return rsnerr.New(rsnerr.UnsupportedGroupKeyDirection, "supplicant requested a group rekey")
	}
	if h.state != AwaitingMessage2 {
		return rsnerr.New(rsnerr.UnexpectedMessage, "group message 2 in state %s", h.state)
	}
	if err := rsna.CheckKeyInfo(f.KeyInfo, wifi.KeyInfoMIC|wifi.KeyInfoSecure); err != nil {
		return err
	}
	if err := h.counter.CheckEcho(f.ReplayCounter); err != nil {
		return err
	}
	if err := integrity.VerifyFrame(h.negotiated.Akm, ptk.KCK, f); err != nil {
		return err
	}
	if len(f.Data) != 0 {
		return rsnerr.New(rsnerr.UnexpectedKeyData, "group message 2")
	}

	h.gtk, h.pending = h.pending, nil
	h.state = Idle
	sink.Push(rsna.StatusUpdate{Status: rsna.GroupKeyRekeyed})
	return nil
}
