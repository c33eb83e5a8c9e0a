package rsn

import (
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
)

// AuthConfig is the pre-shared secret of an association: either a
// passphrase with its SSID, or a PMK given directly.
type AuthConfig struct {
	Passphrase string
	SSID       []byte
	Pmk        *key.Pmk
}

// PskAuth returns an AuthConfig deriving the PMK from passphrase and ssid.
func PskAuth(passphrase string, ssid []byte) AuthConfig {
	return AuthConfig{Passphrase: passphrase, SSID: ssid}
}

// PmkAuth returns an AuthConfig using pmk as is.
func PmkAuth(pmk key.Pmk) AuthConfig {
	return AuthConfig{Pmk: &pmk}
}

// PMK returns the configured PMK, deriving it from the passphrase if needed.
func (a AuthConfig) PMK() (key.Pmk, error) {
	if a.Pmk != nil {
		return *a.Pmk, nil
	}
	if a.Passphrase == "" && len(a.SSID) == 0 {
		return key.Pmk{}, rsnerr.New(rsnerr.MissingPmk, "")
	}
	return key.PSK(a.Passphrase, a.SSID)
}
