package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/wifibear/rsn/internal/logger"
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

type Config struct {
	SSID       string
	Passphrase string
	// PSK is a 64 hex character PMK. It takes precedence over Passphrase.
	PSK string

	APMAC  string
	STAMAC string

	Security SecurityConfig
	Session  SessionConfig
	Output   OutputConfig
	Log      LogConfig
}

type SecurityConfig struct {
	AKM            string
	PairwiseCipher string
	GroupCipher    string
}

type SessionConfig struct {
	// Rekeys is the number of group key rekeys run after the handshake.
	Rekeys      int
	MaxAttempts int
	// Drop lists 4-Way Handshake message numbers the link loses once.
	Drop    []int
	Timeout time.Duration
}

type OutputConfig struct {
	ResultsFile string
	PcapFile    string
	Verbose     int
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		SSID:       "wifibear",
		Passphrase: "correct horse battery",
		APMAC:      "02:00:00:00:00:01",
		STAMAC:     "02:00:00:00:00:02",
		Security: SecurityConfig{
			AKM:            "psk",
			PairwiseCipher: "ccmp",
			GroupCipher:    "ccmp",
		},
		Session: SessionConfig{
			Rekeys:      1,
			MaxAttempts: 3,
			Timeout:     10 * time.Second,
		},
		Output: OutputConfig{
			ResultsFile: "./wifibear-results.json",
			Verbose:     1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Security is the resolved form of the security settings.
type Security struct {
	Akm            rsne.Akm
	PairwiseCipher rsne.Cipher
	GroupCipher    rsne.Cipher
}

// ParseSecurity resolves the AKM and cipher names.
func (c *Config) ParseSecurity() (Security, error) {
	var s Security
	var err, e error
	if s.Akm, e = rsne.ParseAkm(c.Security.AKM); e != nil {
		err = multierr.Append(err, fmt.Errorf("akm: %w", e))
	}
	if s.PairwiseCipher, e = rsne.ParseCipher(c.Security.PairwiseCipher); e != nil {
		err = multierr.Append(err, fmt.Errorf("pairwise cipher: %w", e))
	} else if !s.PairwiseCipher.PairwiseAllowed() {
		err = multierr.Append(err, fmt.Errorf("pairwise cipher: %s is group only", s.PairwiseCipher))
	}
	if s.GroupCipher, e = rsne.ParseCipher(c.Security.GroupCipher); e != nil {
		err = multierr.Append(err, fmt.Errorf("group cipher: %w", e))
	}
	return s, err
}

// PMK derives the pairwise master key from the PSK or the passphrase.
func (c *Config) PMK() (key.Pmk, error) {
	if c.PSK != "" {
		return key.PmkFromHex(c.PSK)
	}
	return key.PSK(c.Passphrase, []byte(c.SSID))
}

// Addrs parses the access point and station addresses.
func (c *Config) Addrs() (ap, sta wifi.MacAddr, err error) {
	var e error
	if ap, e = wifi.ParseMAC(c.APMAC); e != nil {
		err = multierr.Append(err, fmt.Errorf("ap mac: %w", e))
	}
	if sta, e = wifi.ParseMAC(c.STAMAC); e != nil {
		err = multierr.Append(err, fmt.Errorf("sta mac: %w", e))
	}
	if err == nil && ap == sta {
		err = fmt.Errorf("ap and sta mac are both %s", ap)
	}
	return ap, sta, err
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	if c.PSK != "" {
		if _, e := hex.DecodeString(c.PSK); e != nil || len(c.PSK) != 2*key.PmkLen {
			err = multierr.Append(err, fmt.Errorf("psk: want %d hex characters", 2*key.PmkLen))
		}
	} else if _, e := c.PMK(); e != nil {
		err = multierr.Append(err, fmt.Errorf("passphrase: %w", e))
	}
	if _, _, e := c.Addrs(); e != nil {
		err = multierr.Append(err, e)
	}
	if _, e := c.ParseSecurity(); e != nil {
		err = multierr.Append(err, e)
	}
	if c.Session.Rekeys < 0 {
		err = multierr.Append(err, fmt.Errorf("rekeys: %d is negative", c.Session.Rekeys))
	}
	if c.Session.MaxAttempts < 1 {
		err = multierr.Append(err, fmt.Errorf("max attempts: %d, want at least 1", c.Session.MaxAttempts))
	}
	for _, m := range c.Session.Drop {
		if m < 1 || m > 4 {
			err = multierr.Append(err, fmt.Errorf("drop: message %d is not 1-4", m))
		}
	}
	if _, e := logger.ParseLevel(c.Log.Level); e != nil {
		err = multierr.Append(err, e)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		err = multierr.Append(err, fmt.Errorf("log format %q, want json or console", c.Log.Format))
	}
	return err
}
