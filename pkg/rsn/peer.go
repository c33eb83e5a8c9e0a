package rsn

import (
	"github.com/wifibear/rsn/pkg/rsn/handshake/fourway"
	"github.com/wifibear/rsn/pkg/rsn/handshake/groupkey"
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/rsna"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

// SupplicantConfig configures the client side of an association.
type SupplicantConfig struct {
	Addr              wifi.MacAddr
	AuthenticatorAddr wifi.MacAddr
	// Rsne is the element the client sent in its association request.
	Rsne *rsne.Rsne
	// AuthenticatorRsne is the element the access point advertised.
	AuthenticatorRsne *rsne.Rsne
	Auth              AuthConfig
	Nonces            key.NonceSource
}

// NewSupplicant negotiates the association parameters and returns the
// client side of the association.
func NewSupplicant(cfg SupplicantConfig) (*EssSa, error) {
	negotiated, err := rsne.Negotiate(cfg.AuthenticatorRsne, cfg.Rsne)
	if err != nil {
		return nil, err
	}
	return New(rsna.Supplicant, negotiated, cfg.Auth, fourway.Config{
		Role:              rsna.Supplicant,
		SupplicantAddr:    cfg.Addr,
		AuthenticatorAddr: cfg.AuthenticatorAddr,
		SupplicantRsne:    cfg.Rsne,
		AuthenticatorRsne: cfg.AuthenticatorRsne,
		Nonces:            cfg.Nonces,
	}, &groupkey.Config{Role: rsna.Supplicant})
}

// AuthenticatorConfig configures the access point side of an association.
type AuthenticatorConfig struct {
	Addr           wifi.MacAddr
	SupplicantAddr wifi.MacAddr
	// Rsne is the element the access point advertises.
	Rsne *rsne.Rsne
	// SupplicantRsne is the element received in the association request.
	SupplicantRsne *rsne.Rsne
	Auth           AuthConfig
	Nonces         key.NonceSource
	// GtkProvider is shared by every association of the access point.
	GtkProvider *key.GtkProvider
}

// NewAuthenticator negotiates the association parameters and returns the
// access point side of the association.
func NewAuthenticator(cfg AuthenticatorConfig) (*EssSa, error) {
	negotiated, err := rsne.Negotiate(cfg.Rsne, cfg.SupplicantRsne)
	if err != nil {
		return nil, err
	}
	return New(rsna.Authenticator, negotiated, cfg.Auth, fourway.Config{
		Role:              rsna.Authenticator,
		SupplicantAddr:    cfg.SupplicantAddr,
		AuthenticatorAddr: cfg.Addr,
		SupplicantRsne:    cfg.SupplicantRsne,
		AuthenticatorRsne: cfg.Rsne,
		Nonces:            cfg.Nonces,
		GtkProvider:       cfg.GtkProvider,
	}, &groupkey.Config{Role: rsna.Authenticator, GtkProvider: cfg.GtkProvider})
}
