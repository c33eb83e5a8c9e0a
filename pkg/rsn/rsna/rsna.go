// Package rsna holds the types shared by the handshake state machines and
// the security association that drives them: the role of a peer and the
// updates a handshake hands back to its caller.
package rsna

import (
	"fmt"

	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/wifi"
)

// Role is the side of the association this peer plays. Only Supplicant and
// Authenticator exist; the zero value is invalid.
type Role struct{ r uint8 }

var (
	Supplicant    = Role{1}
	Authenticator = Role{2}
)

func (r Role) IsValid() bool { return r == Supplicant || r == Authenticator }

func (r Role) String() string {
	switch r {
	case Supplicant:
		return "supplicant"
	case Authenticator:
		return "authenticator"
	default:
		return "invalid"
	}
}

// Exchange names the handshake an update belongs to.
type Exchange uint8

const (
	FourWay Exchange = iota + 1
	GroupKey
)

func (e Exchange) String() string {
	switch e {
	case FourWay:
		return "4-way"
	case GroupKey:
		return "group-key"
	default:
		return fmt.Sprintf("exchange(%d)", uint8(e))
	}
}

// Update is one event produced while handling a frame. The concrete types
// are TxEapolKeyFrame, KeyInstall and StatusUpdate.
type Update interface {
	isUpdate()
}

// TxEapolKeyFrame asks the caller to transmit a frame to the peer.
type TxEapolKeyFrame struct {
	Exchange Exchange
	Message  int
	Frame    *wifi.EAPOLKeyFrame
}

// KeySlot says where an installed key goes.
type KeySlot uint8

const (
	PairwiseSlot KeySlot = iota + 1
	GroupSlot
)

func (s KeySlot) String() string {
	switch s {
	case PairwiseSlot:
		return "pairwise"
	case GroupSlot:
		return "group"
	default:
		return "invalid"
	}
}

// KeyInstall asks the caller to install a key. Exactly one of Ptk and Gtk
// is set, matching Slot.
type KeyInstall struct {
	Slot  KeySlot
	KeyID uint8
	Ptk   *key.Ptk
	Gtk   *key.Gtk
}

// InstallPtk returns the update installing ptk under key id 0.
func InstallPtk(ptk *key.Ptk) KeyInstall {
	return KeyInstall{Slot: PairwiseSlot, Ptk: ptk}
}

// InstallGtk returns the update installing gtk under its key id.
func InstallGtk(gtk *key.Gtk) KeyInstall {
	return KeyInstall{Slot: GroupSlot, KeyID: gtk.KeyID, Gtk: gtk}
}

// Status is a handshake milestone.
type Status uint8

const (
	Established Status = iota + 1
	GroupKeyRekeyed
)

func (s Status) String() string {
	switch s {
	case Established:
		return "established"
	case GroupKeyRekeyed:
		return "group-key-rekeyed"
	default:
		return "invalid"
	}
}

// StatusUpdate reports a milestone.
type StatusUpdate struct {
	Status Status
}

func (TxEapolKeyFrame) isUpdate() {}
func (KeyInstall) isUpdate()      {}
func (StatusUpdate) isUpdate()    {}

// UpdateSink collects updates in the order they were produced. Handshakes
// append to it only when a frame was accepted.
type UpdateSink []Update

func (s *UpdateSink) Push(u Update) { *s = append(*s, u) }

// Frames returns the frames to transmit, in order.
func (s UpdateSink) Frames() []TxEapolKeyFrame {
	var out []TxEapolKeyFrame
	for _, u := range s {
		if f, ok := u.(TxEapolKeyFrame); ok {
			out = append(out, f)
		}
	}
	return out
}

// KeyInstalls returns the key installs, in order.
func (s UpdateSink) KeyInstalls() []KeyInstall {
	var out []KeyInstall
	for _, u := range s {
		if k, ok := u.(KeyInstall); ok {
			out = append(out, k)
		}
	}
	return out
}

// Has reports whether status was reported.
func (s UpdateSink) Has(status Status) bool {
	for _, u := range s {
		if st, ok := u.(StatusUpdate); ok && st.Status == status {
			return true
		}
	}
	return false
}
