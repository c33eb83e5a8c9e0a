package session

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/wifibear/rsn/internal/config"
	"github.com/wifibear/rsn/pkg/rsn"
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/nonce"
	"github.com/wifibear/rsn/pkg/rsn/rsna"
	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
	"github.com/wifibear/rsn/pkg/rsne"
	"github.com/wifibear/rsn/pkg/wifi"
)

// Session runs a simulated association between one access point and one
// station over an in-process link. It owns retry: an attempt that stalls or
// is rejected is abandoned by resetting both peers.
type Session struct {
	cfg      *config.Config
	log      *zap.Logger
	apAddr   wifi.MacAddr
	staAddr  wifi.MacAddr
	ap, sta  *rsn.EssSa
	provider *key.GtkProvider

	drop      map[int]bool
	observers []func(Event)
	start     time.Time
}

type options struct {
	apNonces, staNonces, gnonces key.NonceSource
	gmkEntropy                   io.Reader
}

type Option func(*options)

// WithNonces replaces the random nonce readers, for reproducible runs.
func WithNonces(ap, sta, gnonces key.NonceSource) Option {
	return func(o *options) { o.apNonces, o.staNonces, o.gnonces = ap, sta, gnonces }
}

// WithGMKEntropy sets the reader the GMK is drawn from. The default is
// crypto/rand.
func WithGMKEntropy(r io.Reader) Option {
	return func(o *options) { o.gmkEntropy = r }
}

// New builds both peers from cfg.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	sec, err := cfg.ParseSecurity()
	if err != nil {
		return nil, err
	}
	apAddr, staAddr, err := cfg.Addrs()
	if err != nil {
		return nil, err
	}
	pmk, err := cfg.PMK()
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.apNonces == nil {
		if o.apNonces, err = nonce.NewReader(apAddr); err != nil {
			return nil, err
		}
	}
	if o.staNonces == nil {
		if o.staNonces, err = nonce.NewReader(staAddr); err != nil {
			return nil, err
		}
	}
	if o.gnonces == nil {
		if o.gnonces, err = nonce.NewReader(apAddr); err != nil {
			return nil, err
		}
	}

	provider, err := key.NewGtkProvider(sec.GroupCipher, apAddr, o.gmkEntropy, o.gnonces)
	if err != nil {
		return nil, fmt.Errorf("gtk provider: %w", err)
	}
	apRsne := rsne.New(sec.GroupCipher, []rsne.Cipher{sec.PairwiseCipher}, []rsne.Akm{sec.Akm})
	staRsne := rsne.New(sec.GroupCipher, []rsne.Cipher{sec.PairwiseCipher}, []rsne.Akm{sec.Akm})

	ap, err := rsn.NewAuthenticator(rsn.AuthenticatorConfig{
		Addr:           apAddr,
		SupplicantAddr: staAddr,
		Rsne:           apRsne,
		SupplicantRsne: staRsne,
		Auth:           rsn.PmkAuth(pmk),
		Nonces:         o.apNonces,
		GtkProvider:    provider,
	})
	if err != nil {
		return nil, fmt.Errorf("authenticator: %w", err)
	}
	sta, err := rsn.NewSupplicant(rsn.SupplicantConfig{
		Addr:              staAddr,
		AuthenticatorAddr: apAddr,
		Rsne:              staRsne,
		AuthenticatorRsne: apRsne,
		Auth:              rsn.PmkAuth(pmk),
		Nonces:            o.staNonces,
	})
	if err != nil {
		return nil, fmt.Errorf("supplicant: %w", err)
	}

	drop := make(map[int]bool, len(cfg.Session.Drop))
	for _, m := range cfg.Session.Drop {
		drop[m] = true
	}
	return &Session{
		cfg:      cfg,
		log:      log.With(zap.Stringer("ap", apAddr), zap.Stringer("sta", staAddr)),
		apAddr:   apAddr,
		staAddr:  staAddr,
		ap:       ap,
		sta:      sta,
		provider: provider,
		drop:     drop,
	}, nil
}

// Subscribe registers fn to receive every event of the run, in order.
func (s *Session) Subscribe(fn func(Event)) {
	s.observers = append(s.observers, fn)
}

func (s *Session) AP() *rsn.EssSa  { return s.ap }
func (s *Session) STA() *rsn.EssSa { return s.sta }

func (s *Session) emit(ev Event) {
	ev.Time = time.Now()
	for _, fn := range s.observers {
		fn(ev)
	}
}

// Run establishes the association, retrying up to the configured number of
// attempts, then runs the configured group rekeys.
func (s *Session) Run(ctx context.Context) (*Outcome, error) {
	if s.cfg.Session.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Session.Timeout)
		defer cancel()
	}
	s.start = time.Now()
	out := &Outcome{
		BSSID:      s.apAddr,
		Client:     s.staAddr,
		Negotiated: s.ap.Negotiated(),
	}
	defer func() { out.Duration = time.Since(s.start) }()

	for attempt := 1; attempt <= s.cfg.Session.MaxAttempts; attempt++ {
		out.Attempts = attempt
		if attempt > 1 {
			s.ap.Reset()
			s.sta.Reset()
			s.emit(Event{Kind: EventReset, Attempt: attempt})
			s.log.Info("peers reset", zap.Int("attempt", attempt))
		}
		err := s.attempt(ctx, attempt, out)
		if err == nil && s.established() {
			out.Established = true
			break
		}
		if err != nil {
			out.LastError = err
			if ctx.Err() != nil || rsnerr.IsFatal(err) {
				return out, err
			}
		} else {
			s.log.Warn("attempt stalled", zap.Int("attempt", attempt),
				zap.Stringer("ap_state", s.ap.State()), zap.Stringer("sta_state", s.sta.State()))
		}
	}
	if !out.Established {
		return out, fmt.Errorf("no association after %d attempts: %w", out.Attempts, ErrNotEstablished)
	}
	out.LastError = nil
	s.log.Info("association established",
		zap.Int("attempts", out.Attempts),
		zap.Stringer("akm", out.Negotiated.Akm),
		zap.Stringer("pairwise", out.Negotiated.PairwiseCipher))

	for i := 0; i < s.cfg.Session.Rekeys; i++ {
		if err := s.rekey(ctx, out); err != nil {
			out.LastError = err
			return out, fmt.Errorf("group rekey %d: %w", i+1, err)
		}
	}
	return out, nil
}

func (s *Session) established() bool {
	return s.ap.State() == rsn.Established && s.sta.State() == rsn.Established
}

func (s *Session) attempt(ctx context.Context, attempt int, out *Outcome) error {
	var pending rsna.UpdateSink
	if err := s.ap.Initiate(&pending); err != nil {
		return err
	}
	return s.pump(ctx, attempt, pending, rsna.Authenticator, out)
}

func (s *Session) rekey(ctx context.Context, out *Outcome) error {
	gtk, err := s.provider.Rotate()
	if err != nil {
		return err
	}
	s.log.Info("group key rotated", zap.Uint8("key_id", gtk.KeyID))
	var pending rsna.UpdateSink
	if err := s.ap.InitiateGroupRekey(&pending); err != nil {
		return err
	}
	if err := s.pump(ctx, out.Attempts, pending, rsna.Authenticator, out); err != nil {
		return err
	}
	if s.ap.State() != rsn.Established {
		return fmt.Errorf("rekey did not complete: %w", ErrNotEstablished)
	}
	out.Rekeys++
	return nil
}

// pump carries frames across the link until nobody has anything to send, a
// frame is dropped or a peer rejects a frame.
func (s *Session) pump(ctx context.Context, attempt int, pending rsna.UpdateSink, from rsna.Role, out *Outcome) error {
	s.record(attempt, from, pending)
	for len(pending.Frames()) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst, to := s.sta, rsna.Supplicant
		if from == rsna.Supplicant {
			dst, to = s.ap, rsna.Authenticator
		}

		var next rsna.UpdateSink
		for _, tx := range pending.Frames() {
			raw, err := tx.Frame.Bytes()
			if err != nil {
				return fmt.Errorf("encode %s message %d: %w", tx.Exchange, tx.Message, err)
			}
			ev := Event{
				Kind:     EventFrame,
				Attempt:  attempt,
				From:     from,
				Exchange: tx.Exchange,
				Message:  tx.Message,
				Frame:    tx.Frame,
				Raw:      raw,
			}
			if tx.Exchange == rsna.FourWay && s.drop[tx.Message] {
				delete(s.drop, tx.Message)
				ev.Kind = EventDrop
				out.FramesDropped++
				s.emit(ev)
				s.log.Warn("frame dropped", zap.Stringer("exchange", tx.Exchange), zap.Int("message", tx.Message))
				return nil
			}
			out.FramesSent++
			s.emit(ev)
			s.log.Debug("frame sent",
				zap.Stringer("from", from),
				zap.Stringer("exchange", tx.Exchange),
				zap.Int("message", tx.Message),
				zap.Uint64("replay_counter", tx.Frame.ReplayCounter),
				zap.Stringer("key_info", tx.Frame.KeyInfo))

			f, err := wifi.ParseEAPOLKeyFrame(raw)
			if err != nil {
				return fmt.Errorf("decode %s message %d: %w", tx.Exchange, tx.Message, err)
			}
			if err := dst.OnEapolFrame(&next, f); err != nil {
				kind, _ := rsnerr.KindOf(err)
				s.emit(Event{Kind: EventReject, Attempt: attempt, From: to, Exchange: tx.Exchange, Message: tx.Message, Err: err})
				s.log.Warn("frame rejected",
					zap.Stringer("by", to),
					zap.Int("message", tx.Message),
					zap.Stringer("kind", kind),
					zap.Stringer("category", rsnerr.CategoryOf(err)),
					zap.Error(err))
				return err
			}
		}
		s.record(attempt, to, next)
		pending, from = next, to
	}
	return nil
}

// record reports the key installs and status changes in updates.
func (s *Session) record(attempt int, by rsna.Role, updates rsna.UpdateSink) {
	for _, u := range updates {
		switch u := u.(type) {
		case rsna.KeyInstall:
			s.emit(Event{Kind: EventInstall, Attempt: attempt, From: by, Slot: u.Slot, KeyID: u.KeyID})
			s.log.Info("key installed", zap.Stringer("by", by), zap.Stringer("slot", u.Slot), zap.Uint8("key_id", u.KeyID))
		case rsna.StatusUpdate:
			s.emit(Event{Kind: EventStatus, Attempt: attempt, From: by, Status: u.Status})
			s.log.Info("status", zap.Stringer("by", by), zap.Stringer("status", u.Status))
		}
	}
}
