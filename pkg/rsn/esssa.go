// Package rsn establishes WPA2 security associations. An EssSa drives the
// 4-Way and Group Key handshakes of one peer: it takes parsed EAPOL-Key
// frames and reports frames to send, keys to install and status changes
// through an rsna.UpdateSink.
//
// The package performs no I/O, keeps no timers and never decides on its own
// to start or abandon a handshake. Callers own transmission, retransmission
// and retry.
package rsn

import (
	"github.com/wifibear/rsn/pkg/rsn/handshake/fourway"
	"github.com/wifibear/rsn/pkg/rsn/handshake/groupkey"
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/rsna"
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

// State is the lifecycle position of an EssSa.
type State uint8

const (
	Uninitialized State = iota
	Initiated
	Established
	Rekeying
	// Failed is entered when nonce generation fails. Only Reset leaves it.
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initiated:
		return "initiated"
	case Established:
		return "established"
	case Rekeying:
		return "rekeying"
	case Failed:
		return "failed"
	default:
		return "invalid"
	}
}

// EssSa is the security association of one peer with one other peer. It is
// not safe for concurrent use; distinct values may run concurrently.
type EssSa struct {
	role       rsna.Role
	negotiated rsne.Negotiated
	counter    rsna.ReplayCounter

	fourWay  *fourway.Handshake
	groupKey *groupkey.Handshake

	state State
	ptk   *key.Ptk
	gtk   *key.Gtk
}

// New validates the configuration and returns an association in the
// Uninitialized state. negotiated must be what rsne.Negotiate yields for the
// RSNEs in fourWayCfg. groupKeyCfg may be nil, in which case group key
// frames are rejected with GroupKeyNotConfigured.
func New(role rsna.Role, negotiated rsne.Negotiated, auth AuthConfig, fourWayCfg fourway.Config, groupKeyCfg *groupkey.Config) (*EssSa, error) {
	if !role.IsValid() {
		return nil, rsnerr.New(rsnerr.ConfigRoleMismatch, "invalid role")
	}
	if fourWayCfg.Role != role {
		return nil, rsnerr.New(rsnerr.ConfigRoleMismatch, "4-way config is %s, association is %s", fourWayCfg.Role, role)
	}
	if groupKeyCfg != nil && groupKeyCfg.Role != role {
		return nil, rsnerr.New(rsnerr.ConfigRoleMismatch, "group key config is %s, association is %s", groupKeyCfg.Role, role)
	}
	if err := fourWayCfg.Validate(); err != nil {
		return nil, err
	}
	want, err := rsne.Negotiate(fourWayCfg.AuthenticatorRsne, fourWayCfg.SupplicantRsne)
	if err != nil {
		return nil, err
	}
	if want != negotiated {
		return nil, rsnerr.New(rsnerr.NegotiatedRsneMismatch, "")
	}
	pmk, err := auth.PMK()
	if err != nil {
		return nil, err
	}

	e := &EssSa{role: role, negotiated: negotiated}
	if e.fourWay, err = fourway.New(fourWayCfg, negotiated, pmk, &e.counter); err != nil {
		return nil, err
	}
	if groupKeyCfg != nil {
		if e.groupKey, err = groupkey.New(*groupKeyCfg, negotiated, &e.counter); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *EssSa) Role() rsna.Role { return e.role }

func (e *EssSa) Negotiated() rsne.Negotiated { return e.negotiated }

func (e *EssSa) State() State { return e.state }

// Ptk returns the installed PTK, or nil.
func (e *EssSa) Ptk() *key.Ptk { return e.ptk }

// Gtk returns the installed GTK, or nil.
func (e *EssSa) Gtk() *key.Gtk { return e.gtk }

// Initiate starts a 4-Way Handshake by sending Message 1. Authenticator
// only. Calling it again before the handshake completes restarts it.
//
// An established PTK is never superseded in place: once Established,
// Initiate fails with UnexpectedMessage and the supplicant rejects a new
// Message 1. Call Reset on both peers to run a fresh handshake. PTK rekeying
// over an established association is not supported.
func (e *EssSa) Initiate(sink *rsna.UpdateSink) error {
	if e.role != rsna.Authenticator {
		return rsnerr.New(rsnerr.SupplicantCannotInitiate, "")
	}
	if e.state == Failed {
		return rsnerr.New(rsnerr.AttemptFailed, "reset required")
	}
	var out rsna.UpdateSink
	if err := e.fourWay.Initiate(&out); err != nil {
		return e.fail(err)
	}
	e.state = Initiated
	e.apply(sink, out)
	return nil
}

// InitiateGroupRekey sends Group Key Message 1 carrying the GTK provider's
// current key. Authenticator only, and only once the PTK is installed.
func (e *EssSa) InitiateGroupRekey(sink *rsna.UpdateSink) error {
	if e.role != rsna.Authenticator {
		return rsnerr.New(rsnerr.UnsupportedGroupKeyDirection, "supplicant cannot start a group key handshake")
	}
	if e.state == Failed {
		return rsnerr.New(rsnerr.AttemptFailed, "reset required")
	}
	if e.ptk == nil {
		return rsnerr.New(rsnerr.GroupKeyBeforePtk, "")
	}
	if e.groupKey == nil {
		return rsnerr.New(rsnerr.GroupKeyNotConfigured, "")
	}
	var out rsna.UpdateSink
	if err := e.groupKey.Initiate(&out, e.ptk); err != nil {
		return e.fail(err)
	}
	e.state = Rekeying
	e.apply(sink, out)
	return nil
}

// OnEapolFrame handles one EAPOL-Key frame from the peer. On error nothing
// is pushed to sink and the association is unchanged, except that entropy
// failures move it to Failed.
func (e *EssSa) OnEapolFrame(sink *rsna.UpdateSink, f *wifi.EAPOLKeyFrame) error {
	if e.state == Failed {
		return rsnerr.New(rsnerr.AttemptFailed, "reset required")
	}
	if f.PacketType != wifi.EAPOLTypeKey {
		return rsnerr.New(rsnerr.UnsupportedPacketType, "packet type %d", f.PacketType)
	}
	if f.DescriptorType != wifi.DescriptorTypeRSN {
		return rsnerr.New(rsnerr.UnsupportedDescriptorType, "descriptor type %d", f.DescriptorType)
	}
	if v, want := f.KeyInfo.DescriptorVersion(), e.negotiated.Akm.DescriptorVersion(); v != want {
		return rsnerr.New(rsnerr.UnsupportedDescriptorVersion, "version %d, %s uses %d", v, e.negotiated.Akm, want)
	}

	var out rsna.UpdateSink
	if f.IsPairwise() {
		if err := e.fourWay.OnEapolKeyFrame(&out, f); err != nil {
			return e.fail(err)
		}
		if e.state == Uninitialized {
			e.state = Initiated
		}
	} else {
		if e.ptk == nil {
			return rsnerr.New(rsnerr.GroupKeyBeforePtk, "")
		}
		if e.groupKey == nil {
			return rsnerr.New(rsnerr.GroupKeyNotConfigured, "")
		}
		if err := e.groupKey.OnEapolKeyFrame(&out, e.ptk, f); err != nil {
			return e.fail(err)
		}
	}
	e.apply(sink, out)
	return nil
}

// Reset discards every key, nonce and replay counter and returns the
// association to Uninitialized. It may be called in any state.
func (e *EssSa) Reset() {
	e.counter.Reset()
	e.fourWay.Reset()
	if e.groupKey != nil {
		e.groupKey.Reset()
	}
	e.ptk, e.gtk = nil, nil
	e.state = Uninitialized
}

func (e *EssSa) fail(err error) error {
	if rsnerr.IsFatal(err) {
		e.state = Failed
	}
	return err
}

// apply records the keys and milestones in out and forwards out to sink.
func (e *EssSa) apply(sink *rsna.UpdateSink, out rsna.UpdateSink) {
	for _, u := range out {
		switch u := u.(type) {
		case rsna.KeyInstall:
			switch u.Slot {
			case rsna.PairwiseSlot:
				e.ptk = u.Ptk
			case rsna.GroupSlot:
				e.gtk = u.Gtk
			}
		case rsna.StatusUpdate:
			switch u.Status {
			case rsna.Established:
				e.state = Established
				if e.role == rsna.Authenticator {
					e.gtk = e.fourWay.Gtk()
				}
			case rsna.GroupKeyRekeyed:
				e.state = Established
				e.gtk = e.groupKey.Gtk()
			}
		}
		sink.Push(u)
	}
}
