package key

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

const groupLabel = "Group key expansion"

// Gtk is a group temporal key with the key id it is installed under.
type Gtk struct {
	TK     []byte
	KeyID  uint8
	RSC    uint64
	Cipher rsne.Cipher
}

func (g Gtk) clone() Gtk {
	g.TK = append([]byte(nil), g.TK...)
	return g
}

// DeriveGtk computes PRF-(TK bits)(GMK, "Group key expansion", AA || GNonce)
// for the group cipher.
func DeriveGtk(gmk []byte, aa wifi.MacAddr, gnonce [32]byte, cipher rsne.Cipher) ([]byte, error) {
	n := cipher.TKLen()
	if n == 0 {
		return nil, rsnerr.New(rsnerr.UnsupportedCipher, "%s as group cipher", cipher)
	}
	data := make([]byte, 0, len(aa)+len(gnonce))
	data = append(append(data, aa[:]...), gnonce[:]...)
	return PRF(gmk, groupLabel, data, n*8)
}

// NonceSource yields fresh 32-byte nonces. *nonce.Reader implements it.
type NonceSource interface {
	Next() ([32]byte, error)
}

// GtkProvider owns the group key of one authenticator. It is shared by every
// association on that authenticator and is safe for concurrent use.
type GtkProvider struct {
	mu      sync.Mutex
	gmk     [32]byte
	aa      wifi.MacAddr
	cipher  rsne.Cipher
	nonces  NonceSource
	current Gtk
}

// NewGtkProvider reads a GMK from entropy and derives the first GTK under
// key id 1. A nil entropy reads from crypto/rand. nonces supplies GNonces
// only: its values may be public, the GMK never is.
func NewGtkProvider(cipher rsne.Cipher, aa wifi.MacAddr, entropy io.Reader, nonces NonceSource) (*GtkProvider, error) {
	if entropy == nil {
		entropy = rand.Reader
	}
	if nonces == nil {
		return nil, rsnerr.New(rsnerr.MissingNonceReader, "")
	}
	if cipher.TKLen() == 0 {
		return nil, rsnerr.New(rsnerr.UnsupportedCipher, "%s as group cipher", cipher)
	}
	var gmk [32]byte
	if _, err := io.ReadFull(entropy, gmk[:]); err != nil {
		return nil, rsnerr.Wrap(rsnerr.EntropyUnavailable, err)
	}
	p := &GtkProvider{gmk: gmk, aa: aa, cipher: cipher, nonces: nonces}
	if _, err := p.Rotate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *GtkProvider) Cipher() rsne.Cipher { return p.cipher }

// Current returns a copy of the GTK in use.
func (p *GtkProvider) Current() Gtk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.clone()
}

// Rotate derives a new GTK from a fresh GNonce and moves it to the other
// key id. On error the current GTK is kept.
func (p *GtkProvider) Rotate() (Gtk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	gnonce, err := p.nonces.Next()
	if err != nil {
		return Gtk{}, err
	}
	tk, err := DeriveGtk(p.gmk[:], p.aa, gnonce, p.cipher)
	if err != nil {
		return Gtk{}, err
	}
	id := uint8(1)
	if p.current.KeyID == 1 {
		id = 2
	}
	p.current = Gtk{TK: tk, KeyID: id, Cipher: p.cipher}
	return p.current.clone(), nil
}
