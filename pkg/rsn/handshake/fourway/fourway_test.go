package fourway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifibear/rsn/pkg/rsn/integrity"
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/keywrap"
	"github.com/wifibear/rsn/pkg/rsn/nonce"
	"github.com/wifibear/rsn/pkg/rsn/rsna"
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

var (
	apAddr  = wifi.MustParseMAC("02:00:00:00:00:01")
	staAddr = wifi.MustParseMAC("02:00:00:00:00:02")
)

type fixture struct {
	auth, supp       *Handshake
	authCtr, suppCtr *rsna.ReplayCounter
	provider         *key.GtkProvider
	apRsne, staRsne  *rsne.Rsne
	negotiated       rsne.Negotiated
	authSeesStaRsne  *rsne.Rsne
}

type option func(*fixture)

// withAuthenticatorView makes the authenticator believe the supplicant
// selected r.
func withAuthenticatorView(r *rsne.Rsne) option {
	return func(fx *fixture) { fx.authSeesStaRsne = r }
}

func withAkm(akm rsne.Akm) option {
	return func(fx *fixture) {
		fx.apRsne = rsne.New(rsne.CipherCCMP128, []rsne.Cipher{rsne.CipherCCMP128}, []rsne.Akm{akm})
		fx.staRsne = rsne.New(rsne.CipherCCMP128, []rsne.Cipher{rsne.CipherCCMP128}, []rsne.Akm{akm})
	}
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	fx := &fixture{}
	withAkm(rsne.AkmPSK)(fx)
	for _, o := range opts {
		o(fx)
	}
	if fx.authSeesStaRsne == nil {
		fx.authSeesStaRsne = fx.staRsne
	}

	neg, err := rsne.Negotiate(fx.apRsne, fx.staRsne)
	require.NoError(t, err)
	fx.negotiated = neg

	pmk, err := key.PSK("ThisIsAPassword", []byte("ThisIsASSID"))
	require.NoError(t, err)

	authNonces := nonce.NewReaderFromSeed(nonce.Nonce{0: 0xa0})
	suppNonces := nonce.NewReaderFromSeed(nonce.Nonce{0: 0x50})
	fx.provider, err = key.NewGtkProvider(rsne.CipherCCMP128, apAddr, nil, nonce.NewReaderFromSeed(nonce.Nonce{0: 0xc0}))
	require.NoError(t, err)

	fx.authCtr, fx.suppCtr = &rsna.ReplayCounter{}, &rsna.ReplayCounter{}
	fx.auth, err = New(Config{
		Role:              rsna.Authenticator,
		SupplicantAddr:    staAddr,
		AuthenticatorAddr: apAddr,
		SupplicantRsne:    fx.authSeesStaRsne,
		AuthenticatorRsne: fx.apRsne,
		Nonces:            authNonces,
		GtkProvider:       fx.provider,
	}, neg, pmk, fx.authCtr)
	require.NoError(t, err)

	fx.supp, err = New(Config{
		Role:              rsna.Supplicant,
		SupplicantAddr:    staAddr,
		AuthenticatorAddr: apAddr,
		SupplicantRsne:    fx.staRsne,
		AuthenticatorRsne: fx.apRsne,
		Nonces:            suppNonces,
	}, neg, pmk, fx.suppCtr)
	require.NoError(t, err)
	return fx
}

// wire sends f through its wire encoding.
func wire(t *testing.T, f *wifi.EAPOLKeyFrame) *wifi.EAPOLKeyFrame {
	t.Helper()
	raw, err := f.Bytes()
	require.NoError(t, err)
	out, err := wifi.ParseEAPOLKeyFrame(raw)
	require.NoError(t, err)
	return out
}

func onlyFrame(t *testing.T, sink rsna.UpdateSink) *wifi.EAPOLKeyFrame {
	t.Helper()
	frames := sink.Frames()
	require.Len(t, frames, 1)
	return wire(t, frames[0].Frame)
}

func (fx *fixture) message1(t *testing.T) *wifi.EAPOLKeyFrame {
	var sink rsna.UpdateSink
	require.NoError(t, fx.auth.Initiate(&sink))
	return onlyFrame(t, sink)
}

func (fx *fixture) message2(t *testing.T) *wifi.EAPOLKeyFrame {
	m1 := fx.message1(t)
	var sink rsna.UpdateSink
	require.NoError(t, fx.supp.OnEapolKeyFrame(&sink, m1))
	return onlyFrame(t, sink)
}

func (fx *fixture) message3(t *testing.T) *wifi.EAPOLKeyFrame {
	m2 := fx.message2(t)
	var sink rsna.UpdateSink
	require.NoError(t, fx.auth.OnEapolKeyFrame(&sink, m2))
	return onlyFrame(t, sink)
}

func (fx *fixture) message4(t *testing.T) *wifi.EAPOLKeyFrame {
	m3 := fx.message3(t)
	var sink rsna.UpdateSink
	require.NoError(t, fx.supp.OnEapolKeyFrame(&sink, m3))
	require.NotEmpty(t, sink)
	return wire(t, sink.Frames()[0].Frame)
}

// resign recomputes the MIC of f with the KCK of the attempt in progress
// on h.
func resign(t *testing.T, h *Handshake, f *wifi.EAPOLKeyFrame) {
	t.Helper()
	require.NotNil(t, h.pending)
	require.NoError(t, integrity.SignFrame(h.negotiated.Akm, h.pending.KCK, f))
}

func TestHappyPath(t *testing.T) {
	for _, akm := range []rsne.Akm{rsne.AkmPSK, rsne.AkmPSKSHA256} {
		t.Run(akm.String(), func(t *testing.T) {
			fx := newFixture(t, withAkm(akm))

			var authSink rsna.UpdateSink
			require.NoError(t, fx.auth.Initiate(&authSink))
			m1 := onlyFrame(t, authSink)
			assert.Equal(t, uint64(1), m1.ReplayCounter)
			assert.Equal(t, akm.DescriptorVersion(), m1.KeyInfo.DescriptorVersion())
			assert.Equal(t, wifi.HandshakeMsg1, m1.MessageNumber())
			assert.Equal(t, AwaitingMessage2, fx.auth.State())

			var suppSink rsna.UpdateSink
			require.NoError(t, fx.supp.OnEapolKeyFrame(&suppSink, m1))
			m2 := onlyFrame(t, suppSink)
			assert.Equal(t, uint64(1), m2.ReplayCounter)
			assert.Equal(t, wifi.HandshakeMsg2, m2.MessageNumber())
			assert.Equal(t, AwaitingMessage3, fx.supp.State())

			authSink = nil
			require.NoError(t, fx.auth.OnEapolKeyFrame(&authSink, m2))
			m3 := onlyFrame(t, authSink)
			assert.Equal(t, uint64(2), m3.ReplayCounter)
			assert.Equal(t, wifi.HandshakeMsg3, m3.MessageNumber())
			assert.Equal(t, m1.Nonce, m3.Nonce)
			assert.Zero(t, len(m3.Data)%8)

			suppSink = nil
			require.NoError(t, fx.supp.OnEapolKeyFrame(&suppSink, m3))
			require.Len(t, suppSink, 4)
			tx, ok := suppSink[0].(rsna.TxEapolKeyFrame)
			require.True(t, ok)
			assert.Equal(t, 4, tx.Message)
			ptkInstall, ok := suppSink[1].(rsna.KeyInstall)
			require.True(t, ok)
			assert.Equal(t, rsna.PairwiseSlot, ptkInstall.Slot)
			gtkInstall, ok := suppSink[2].(rsna.KeyInstall)
			require.True(t, ok)
			assert.Equal(t, rsna.GroupSlot, gtkInstall.Slot)
			assert.Equal(t, rsna.StatusUpdate{Status: rsna.Established}, suppSink[3])
			m4 := wire(t, tx.Frame)
			assert.Equal(t, wifi.HandshakeMsg4, m4.MessageNumber())
			assert.Empty(t, m4.Data)

			authSink = nil
			require.NoError(t, fx.auth.OnEapolKeyFrame(&authSink, m4))
			require.Len(t, authSink, 2)
			assert.Equal(t, rsna.PairwiseSlot, authSink[0].(rsna.KeyInstall).Slot)
			assert.Equal(t, rsna.StatusUpdate{Status: rsna.Established}, authSink[1])

			assert.Equal(t, Established, fx.auth.State())
			assert.Equal(t, Established, fx.supp.State())
			assert.True(t, fx.auth.Ptk().Equal(fx.supp.Ptk()))
			assert.True(t, ptkInstall.Ptk.Equal(authSink[0].(rsna.KeyInstall).Ptk))

			gtk := fx.provider.Current()
			assert.Equal(t, gtk.TK, gtkInstall.Gtk.TK)
			assert.Equal(t, gtk.KeyID, gtkInstall.KeyID)
			assert.Equal(t, gtk.TK, fx.auth.Gtk().TK)

			last, _ := fx.authCtr.Last()
			assert.Equal(t, uint64(2), last)
			last, _ = fx.suppCtr.Last()
			assert.Equal(t, uint64(2), last)
		})
	}
}

func TestSupplicantCannotInitiate(t *testing.T) {
	fx := newFixture(t)
	var sink rsna.UpdateSink
	assert.ErrorIs(t, fx.supp.Initiate(&sink), rsnerr.SupplicantCannotInitiate)
	assert.Empty(t, sink)
}

func TestMessage1Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *wifi.EAPOLKeyFrame)
		kind   rsnerr.Kind
	}{
		{"install", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= wifi.KeyInfoInstall }, rsnerr.UnexpectedInstallBit},
		{"no ack", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo &^= wifi.KeyInfoAck }, rsnerr.UnexpectedKeyAckBit},
		{"secure", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= wifi.KeyInfoSecure }, rsnerr.UnexpectedSecureBit},
		{"error", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= wifi.KeyInfoError }, rsnerr.UnexpectedErrorBit},
		{"request", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= wifi.KeyInfoRequest }, rsnerr.UnexpectedRequestBit},
		{"encrypted", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= wifi.KeyInfoEncryptedKeyData }, rsnerr.UnexpectedEncryptedKeyDataBit},
		{"smk", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= wifi.KeyInfoSMK }, rsnerr.SmkHandshakeUnsupported},
		{"key index", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= 0x0010 }, rsnerr.UnexpectedKeyIndex},
		{"key length", func(f *wifi.EAPOLKeyFrame) { f.KeyLength = 32 }, rsnerr.InvalidKeyLength},
		{"zero nonce", func(f *wifi.EAPOLKeyFrame) { f.Nonce = [32]byte{} }, rsnerr.InvalidNonce},
		{"rsc", func(f *wifi.EAPOLKeyFrame) { f.RSC[0] = 1 }, rsnerr.NonZeroRsc},
		{"group", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo &^= wifi.KeyInfoPairwise }, rsnerr.UnexpectedKeyType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			m1 := fx.message1(t)
			tt.mutate(m1)

			var sink rsna.UpdateSink
			err := fx.supp.OnEapolKeyFrame(&sink, m1)
			assert.ErrorIs(t, err, tt.kind)
			assert.Empty(t, sink)
			assert.Equal(t, AwaitingMessage1, fx.supp.State())
			assert.Nil(t, fx.supp.pending)
		})
	}
}

func TestMessage2ReplayCounterMustEcho(t *testing.T) {
	for _, delta := range []int64{-1, 1} {
		fx := newFixture(t)
		m2 := fx.message2(t)
		m2.ReplayCounter = uint64(int64(m2.ReplayCounter) + delta)

		var sink rsna.UpdateSink
		err := fx.auth.OnEapolKeyFrame(&sink, m2)
		assert.ErrorIs(t, err, rsnerr.UnexpectedReplayCounter)
		assert.Empty(t, sink)
		assert.Equal(t, AwaitingMessage2, fx.auth.State())
		last, _ := fx.authCtr.Last()
		assert.Equal(t, uint64(1), last)
	}
}

func TestMessage2Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *wifi.EAPOLKeyFrame)
		kind   rsnerr.Kind
	}{
		{"bad mic", func(f *wifi.EAPOLKeyFrame) { f.MIC[3] ^= 0x80 }, rsnerr.InvalidMic},
		{"no mic bit", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo &^= wifi.KeyInfoMIC }, rsnerr.UnexpectedMicBit},
		{"ack", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= wifi.KeyInfoAck }, rsnerr.UnexpectedKeyAckBit},
		{"request", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= wifi.KeyInfoRequest }, rsnerr.UnexpectedRequestBit},
		{"zero nonce", func(f *wifi.EAPOLKeyFrame) { f.Nonce = [32]byte{} }, rsnerr.InvalidNonce},
		{"tampered rsne", func(f *wifi.EAPOLKeyFrame) { f.Data[len(f.Data)-1] ^= 0x01 }, rsnerr.InvalidMic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			m2 := fx.message2(t)
			tt.mutate(m2)

			var sink rsna.UpdateSink
			assert.ErrorIs(t, fx.auth.OnEapolKeyFrame(&sink, m2), tt.kind)
			assert.Empty(t, sink)
			assert.Equal(t, AwaitingMessage2, fx.auth.State())
			assert.Nil(t, fx.auth.pending)
		})
	}
}

func TestMessage2SupplicantRsneMismatch(t *testing.T) {
	caps := uint16(0x0001)
	other := rsne.New(rsne.CipherCCMP128, []rsne.Cipher{rsne.CipherCCMP128}, []rsne.Akm{rsne.AkmPSK})
	other.Capabilities = &caps

	fx := newFixture(t, withAuthenticatorView(other))
	m2 := fx.message2(t)
	var sink rsna.UpdateSink
	assert.ErrorIs(t, fx.auth.OnEapolKeyFrame(&sink, m2), rsnerr.SupplicantRsneMismatch)
	assert.Empty(t, sink)
	assert.Equal(t, AwaitingMessage2, fx.auth.State())
}

func TestMessage3DowngradeRejected(t *testing.T) {
	// the supplicant saw a beacon offering only CCMP-128; the authenticator
	// claims in Message 3 to offer GCMP-256 too
	apClaims := rsne.New(rsne.CipherCCMP128, []rsne.Cipher{rsne.CipherCCMP128, rsne.CipherGCMP256}, []rsne.Akm{rsne.AkmPSK})
	fx := newFixture(t)
	fx.auth.aRsne = apClaims.MustBytes()

	m3 := fx.message3(t)
	var sink rsna.UpdateSink
	assert.ErrorIs(t, fx.supp.OnEapolKeyFrame(&sink, m3), rsnerr.RsneMismatch)
	assert.Empty(t, sink)
	assert.Nil(t, fx.supp.Ptk())
	assert.Equal(t, AwaitingMessage3, fx.supp.State())
}

func TestMessage3StaleNonceRejected(t *testing.T) {
	fx := newFixture(t)
	m3 := fx.message3(t)
	m3.Nonce[0] ^= 0xff
	resign(t, fx.supp, m3)

	var sink rsna.UpdateSink
	assert.ErrorIs(t, fx.supp.OnEapolKeyFrame(&sink, m3), rsnerr.MismatchedNonce)
	assert.Empty(t, sink)
	assert.Nil(t, fx.supp.Ptk())
}

func TestMessage3FromAbandonedAttemptRejected(t *testing.T) {
	fx := newFixture(t)
	m3 := fx.message3(t)

	// the authenticator restarts; the supplicant answers the new Message 1
	fx.auth.state = Idle
	fx.message2(t)

	var sink rsna.UpdateSink
	assert.ErrorIs(t, fx.supp.OnEapolKeyFrame(&sink, m3), rsnerr.ReplayCounterNotIncreasing)
	assert.Empty(t, sink)
}

func TestMessage3Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *wifi.EAPOLKeyFrame)
		resign bool
		kind   rsnerr.Kind
	}{
		{"bad mic", func(f *wifi.EAPOLKeyFrame) { f.MIC[0] ^= 1 }, false, rsnerr.InvalidMic},
		{"no install", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo &^= wifi.KeyInfoInstall }, false, rsnerr.UnexpectedInstallBit},
		{"no secure", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo &^= wifi.KeyInfoSecure }, false, rsnerr.UnexpectedSecureBit},
		{"not encrypted", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo &^= wifi.KeyInfoEncryptedKeyData }, false, rsnerr.UnexpectedEncryptedKeyDataBit},
		{"error bit", func(f *wifi.EAPOLKeyFrame) { f.KeyInfo |= wifi.KeyInfoError }, false, rsnerr.UnexpectedErrorBit},
		{"key length", func(f *wifi.EAPOLKeyFrame) { f.KeyLength = 0 }, false, rsnerr.InvalidKeyLength},
		{"counter equal to m1", func(f *wifi.EAPOLKeyFrame) { f.ReplayCounter = 1 }, true, rsnerr.ReplayCounterNotIncreasing},
		{"no key data", func(f *wifi.EAPOLKeyFrame) { f.Data = nil }, true, rsnerr.MissingKeyData},
		{"corrupt key data", func(f *wifi.EAPOLKeyFrame) { f.Data[0] ^= 1 }, true, rsnerr.KeyWrapIntegrity},
		{"short key data", func(f *wifi.EAPOLKeyFrame) { f.Data = f.Data[:12] }, true, rsnerr.InvalidKeyWrapLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			m3 := fx.message3(t)
			tt.mutate(m3)
			if tt.resign {
				resign(t, fx.supp, m3)
			}

			var sink rsna.UpdateSink
			assert.ErrorIs(t, fx.supp.OnEapolKeyFrame(&sink, m3), tt.kind)
			assert.Empty(t, sink)
			assert.Nil(t, fx.supp.Ptk())
			assert.Equal(t, AwaitingMessage3, fx.supp.State())
			_, ok := fx.suppCtr.Last()
			assert.False(t, ok)
		})
	}
}

func TestMessage3MissingOrShortGtk(t *testing.T) {
	tests := []struct {
		name string
		gtk  *rsne.GtkKde
		kind rsnerr.Kind
	}{
		{"missing", nil, rsnerr.MissingGtk},
		{"short", &rsne.GtkKde{KeyID: 1, GTK: make([]byte, 8)}, rsnerr.InvalidGtkLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			m3 := fx.message3(t)
			plain := rsne.BuildKeyData(fx.apRsne.MustBytes(), tt.gtk)
			wrapped, err := keywrap.Wrap(fx.supp.pending.KEK, plain)
			require.NoError(t, err)
			m3.Data = wrapped
			resign(t, fx.supp, m3)

			var sink rsna.UpdateSink
			assert.ErrorIs(t, fx.supp.OnEapolKeyFrame(&sink, m3), tt.kind)
			assert.Empty(t, sink)
		})
	}
}

func TestMessage4Validation(t *testing.T) {
	fx := newFixture(t)
	m4 := fx.message4(t)

	bad := m4.Clone()
	bad.ReplayCounter = 1
	var sink rsna.UpdateSink
	assert.ErrorIs(t, fx.auth.OnEapolKeyFrame(&sink, bad), rsnerr.UnexpectedReplayCounter)

	bad = m4.Clone()
	bad.MIC[15] ^= 1
	assert.ErrorIs(t, fx.auth.OnEapolKeyFrame(&sink, bad), rsnerr.InvalidMic)

	bad = m4.Clone()
	bad.Data = make([]byte, 16)
	resign(t, fx.auth, bad)
	assert.ErrorIs(t, fx.auth.OnEapolKeyFrame(&sink, bad), rsnerr.UnexpectedKeyData)

	assert.Empty(t, sink)
	assert.Equal(t, AwaitingMessage4, fx.auth.State())
	assert.Nil(t, fx.auth.Ptk())

	require.NoError(t, fx.auth.OnEapolKeyFrame(&sink, m4))
	assert.Equal(t, Established, fx.auth.State())
}

func TestOutOfOrderMessages(t *testing.T) {
	fx := newFixture(t)
	m2 := fx.message2(t)

	var sink rsna.UpdateSink
	// Message 2 with the Secure bit reads as Message 4
	m4ish := m2.Clone()
	m4ish.KeyInfo |= wifi.KeyInfoSecure
	assert.ErrorIs(t, fx.auth.OnEapolKeyFrame(&sink, m4ish), rsnerr.UnexpectedMessage)

	require.NoError(t, fx.auth.OnEapolKeyFrame(&sink, m2))
	// a retransmitted Message 2 after Message 3 went out
	assert.ErrorIs(t, fx.auth.OnEapolKeyFrame(&sink, m2), rsnerr.UnexpectedMessage)

	fresh := newFixture(t)
	m3 := fresh.message3(t)
	idle := newFixture(t)
	assert.ErrorIs(t, idle.supp.OnEapolKeyFrame(&sink, m3), rsnerr.UnexpectedMessage)
}

func TestEstablishedRejectsInitiate(t *testing.T) {
	fx := newFixture(t)
	m4 := fx.message4(t)
	var sink rsna.UpdateSink
	require.NoError(t, fx.auth.OnEapolKeyFrame(&sink, m4))

	sink = nil
	assert.ErrorIs(t, fx.auth.Initiate(&sink), rsnerr.UnexpectedMessage)
	assert.Empty(t, sink)

	fx.auth.Reset()
	assert.Nil(t, fx.auth.Ptk())
	assert.Equal(t, Idle, fx.auth.State())
}

func TestConfigValidation(t *testing.T) {
	fx := newFixture(t)
	base := fx.auth.cfg
	pmk := fx.auth.pmk

	tests := []struct {
		name   string
		mutate func(c *Config)
		kind   rsnerr.Kind
	}{
		{"role", func(c *Config) { c.Role = rsna.Role{} }, rsnerr.ConfigRoleMismatch},
		{"zero addr", func(c *Config) { c.SupplicantAddr = wifi.MacAddr{} }, rsnerr.InvalidMacAddress},
		{"broadcast addr", func(c *Config) { c.AuthenticatorAddr = wifi.MustParseMAC("ff:ff:ff:ff:ff:ff") }, rsnerr.InvalidMacAddress},
		{"rsne", func(c *Config) { c.SupplicantRsne = nil }, rsnerr.MissingRsne},
		{"nonces", func(c *Config) { c.Nonces = nil }, rsnerr.MissingNonceReader},
		{"gtk provider", func(c *Config) { c.GtkProvider = nil }, rsnerr.MissingGtkProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(cfg, fx.negotiated, pmk, nil)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	neg := fx.negotiated
	neg.GroupCipher = rsne.CipherGCMP256
	_, err := New(base, neg, pmk, nil)
	assert.ErrorIs(t, err, rsnerr.GroupCipherMismatch)
}
