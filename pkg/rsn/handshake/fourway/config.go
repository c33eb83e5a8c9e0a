// Package fourway implements the IEEE 802.11 4-Way Handshake for both the
// supplicant and the authenticator.
package fourway

import (
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/rsna"
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

// Config is the static configuration of one 4-Way Handshake.
type Config struct {
	Role              rsna.Role
	SupplicantAddr    wifi.MacAddr
	AuthenticatorAddr wifi.MacAddr
	SupplicantRsne    *rsne.Rsne
	AuthenticatorRsne *rsne.Rsne
	// Nonces supplies the ANonce or SNonce of each attempt.
	Nonces key.NonceSource
	// GtkProvider supplies the GTK sent in Message 3. Authenticator only.
	GtkProvider *key.GtkProvider
}

// Validate checks the fields every role needs.
func (c *Config) Validate() error {
	if !c.Role.IsValid() {
		return rsnerr.New(rsnerr.ConfigRoleMismatch, "invalid role")
	}
	if !c.SupplicantAddr.IsUnicast() {
		return rsnerr.New(rsnerr.InvalidMacAddress, "supplicant address %s", c.SupplicantAddr)
	}
	if !c.AuthenticatorAddr.IsUnicast() {
		return rsnerr.New(rsnerr.InvalidMacAddress, "authenticator address %s", c.AuthenticatorAddr)
	}
	if c.SupplicantRsne == nil || c.AuthenticatorRsne == nil {
		return rsnerr.New(rsnerr.MissingRsne, "")
	}
	if c.Nonces == nil {
		return rsnerr.New(rsnerr.MissingNonceReader, "")
	}
	if c.Role == rsna.Authenticator && c.GtkProvider == nil {
		return rsnerr.New(rsnerr.MissingGtkProvider, "")
	}
	return nil
}
