package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wifibear/rsn/internal/capture"
	"github.com/wifibear/rsn/internal/config"
	"github.com/wifibear/rsn/internal/logger"
	"github.com/wifibear/rsn/internal/result"
	"github.com/wifibear/rsn/internal/session"
	"github.com/wifibear/rsn/pkg/rsn/key"
	"github.com/wifibear/rsn/pkg/rsn/rsna"
	"github.com/wifibear/rsn/pkg/wifi"
	"github.com/wifibear/rsn/ui"
)

const banner = `
 __      __ _  __  _  _
 \ \    / /(_)/ _|(_)| |__   ___  __ _  _ _
  \ \/\/ / | |  _|| || '_ \ / -_)/ _' || '_|
   \_/\_/  |_||_|  |_||_.__/ \___|\__,_||_|
`

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00B894"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D63031"))
)

func Execute(version string) error {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "wifibear",
		Short: "WPA2-PSK 4-Way and Group Key Handshake simulator",
		Long:  banner + "\n  WifiBear v" + version + " - RSN handshake simulator\n",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), cfg, version)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfg.SSID, "ssid", "e", cfg.SSID, "Network name")
	pf.StringVarP(&cfg.Passphrase, "passphrase", "p", cfg.Passphrase, "WPA2 passphrase (8-63 characters)")
	pf.StringVar(&cfg.PSK, "psk", "", "64 hex character PMK, overrides --passphrase")
	pf.StringVarP(&cfg.Output.ResultsFile, "output", "o", cfg.Output.ResultsFile, "Results output file")
	pf.IntVarP(&cfg.Output.Verbose, "verbose", "v", cfg.Output.Verbose, "Verbosity level (0-3)")
	pf.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	pf.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Log format (console, json)")

	// Simulation flags
	f := rootCmd.Flags()
	addSimulationFlags(f, cfg)
	f.DurationVar(&cfg.Session.Timeout, "timeout", cfg.Session.Timeout, "Give up after this long")
	f.StringVarP(&cfg.Output.PcapFile, "write", "w", "", "Write the exchanged frames to a pcap file")

	// Subcommands
	rootCmd.AddCommand(tuiCmd(cfg))
	rootCmd.AddCommand(checkCmd(cfg))
	rootCmd.AddCommand(pskCmd(cfg))
	rootCmd.AddCommand(resultsCmd(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func addSimulationFlags(f *pflag.FlagSet, cfg *config.Config) {
	f.StringVar(&cfg.APMAC, "ap", cfg.APMAC, "Access point MAC address")
	f.StringVar(&cfg.STAMAC, "sta", cfg.STAMAC, "Station MAC address")
	f.StringVar(&cfg.Security.AKM, "akm", cfg.Security.AKM, "AKM suite (psk, psk-sha256)")
	f.StringVar(&cfg.Security.PairwiseCipher, "pairwise", cfg.Security.PairwiseCipher, "Pairwise cipher")
	f.StringVar(&cfg.Security.GroupCipher, "group", cfg.Security.GroupCipher, "Group cipher")
	f.IntVar(&cfg.Session.Rekeys, "rekeys", cfg.Session.Rekeys, "Group key rekeys after the handshake")
	f.IntVar(&cfg.Session.MaxAttempts, "attempts", cfg.Session.MaxAttempts, "Handshake attempts before giving up")
	f.IntSliceVar(&cfg.Session.Drop, "drop", nil, "4-Way Handshake messages the link loses once (1-4)")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if cfg.Output.Verbose >= 2 {
		level = "debug"
	}
	return logger.New(level, cfg.Log.Format)
}

// simulation runs one association and records its outcome. When a pcap
// file is configured, every frame that crossed the link is also written there.
func simulation(cfg *config.Config, log *zap.Logger, store *result.Store) ui.Runner {
	return func(ctx context.Context, observe func(session.Event)) (res *result.Result, err error) {
		s, err := session.New(cfg, log)
		if err != nil {
			return nil, err
		}
		if observe != nil {
			s.Subscribe(observe)
		}
		if cfg.Output.PcapFile != "" {
			w, cerr := capture.Create(cfg.Output.PcapFile)
			if cerr != nil {
				return nil, cerr
			}
			var writeErr error
			write, ferr := frameWriter(cfg, w, &writeErr)
			if ferr != nil {
				return nil, multierr.Append(ferr, w.Close())
			}
			s.Subscribe(write)
			defer func() {
				err = multierr.Combine(err, writeErr, w.Close())
			}()
		}

		out, runErr := s.Run(ctx)
		res = result.FromOutcome(cfg.SSID, out, runErr)
		res.CaptureFile = cfg.Output.PcapFile
		if store != nil {
			if e := store.Add(res); e != nil {
				log.Warn("save result", zap.Error(e))
			}
		}
		return res, runErr
	}
}

// frameWriter returns an observer that writes every frame to w. Write
// errors accumulate in errp.
func frameWriter(cfg *config.Config, w *capture.Writer, errp *error) (func(session.Event), error) {
	ap, sta, err := cfg.Addrs()
	if err != nil {
		return nil, err
	}
	return func(ev session.Event) {
		if ev.Kind != session.EventFrame {
			return
		}
		src, dst := ap, sta
		if ev.From == rsna.Supplicant {
			src, dst = sta, ap
		}
		*errp = multierr.Append(*errp, w.WriteEAPOL(ev.Time, src, dst, ev.Raw))
	}, nil
}

func runSimulate(ctx context.Context, cfg *config.Config, version string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := result.NewStore(cfg.Output.ResultsFile)
	if err != nil {
		return err
	}

	if cfg.Output.Verbose > 0 {
		fmt.Print(banner)
		fmt.Printf("  WifiBear v%s\n\n", version)
	}
	res, err := simulation(cfg, log, store)(ctx, nil)
	if res != nil && cfg.Output.Verbose > 0 {
		printResult(res)
	}
	return err
}

func printResult(r *result.Result) {
	fmt.Printf("  SSID:      %s\n", r.SSID)
	fmt.Printf("  AP / STA:  %s / %s\n", r.BSSID, r.Client)
	fmt.Printf("  Suites:    %s, %s/%s\n", r.AKM, r.Pairwise, r.Group)
	fmt.Printf("  Attempts:  %d (%d frames, %d dropped)\n", r.Attempts, r.Frames, r.Dropped)
	if r.OK() {
		fmt.Printf("  Result:    %s, %d group rekey(s) in %s\n", okStyle.Render("established"), r.Rekeys, r.Duration)
	} else {
		fmt.Printf("  Result:    %s: %s\n", failStyle.Render("not established"), r.Error)
	}
	if r.CaptureFile != "" {
		fmt.Printf("  Capture:   %s\n", r.CaptureFile)
	}
}

// tuiCmd runs simulations in the interactive stepper.
func tuiCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Step through simulated handshakes interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			// The TUI owns the terminal, so logs are discarded.
			store, err := result.NewStore(cfg.Output.ResultsFile)
			if err != nil {
				return err
			}
			return ui.Run(ui.NewApp(cfg, simulation(cfg, zap.NewNop(), store), store))
		},
	}
	f := cmd.Flags()
	addSimulationFlags(f, cfg)
	return cmd
}

// checkCmd verifies a passphrase against the handshakes in a capture file.
func checkCmd(cfg *config.Config) *cobra.Command {
	var bssid string
	cmd := &cobra.Command{
		Use:   "check [pcap-file]",
		Short: "Check a passphrase against the handshakes in a capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var filter wifi.MacAddr
			if bssid != "" {
				if filter, err = wifi.ParseMAC(bssid); err != nil {
					return err
				}
			}
			store, err := result.NewStore(cfg.Output.ResultsFile)
			if err != nil {
				return err
			}

			st, err := capture.ReadFile(args[0], filter)
			if err != nil {
				return err
			}
			log.Info("capture read", zap.String("file", args[0]), zap.Int("frames", st.Frames), zap.Int("stations", len(st.Handshakes)))

			hss := st.Verifiable()
			if len(hss) == 0 {
				fmt.Println("  No usable handshake found.")
				return capture.ErrIncomplete
			}
			pmks, err := capture.NewPMKCache(16)
			if err != nil {
				return err
			}
			matched := 0
			for _, hs := range hss {
				// A beacon in the capture names the network unless --ssid was given.
				ssid := cfg.SSID
				if announced, ok := st.SSID(hs.BSSID); ok && !cmd.Flags().Changed("ssid") {
					ssid = announced
				}
				pmk, err := pmkFor(cfg, pmks, ssid)
				if err != nil {
					return err
				}
				r := checkOne(ssid, args[0], hs, pmk)
				if e := store.Add(r); e != nil {
					log.Warn("save result", zap.Error(e))
				}
				if r.OK() {
					matched++
					fmt.Printf("  %s -> %s: %s (%s)\n", hs.ClientMAC, hs.BSSID, okStyle.Render("passphrase matches"), r.AKM)
				} else if r.Error != "" {
					fmt.Printf("  %s -> %s: %s\n", hs.ClientMAC, hs.BSSID, failStyle.Render(r.Error))
				} else {
					fmt.Printf("  %s -> %s: %s\n", hs.ClientMAC, hs.BSSID, failStyle.Render("passphrase does not match"))
				}
			}
			if matched == 0 {
				return fmt.Errorf("no handshake in %s matches", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&bssid, "bssid", "b", "", "Only check handshakes with this access point")
	return cmd
}

func pmkFor(cfg *config.Config, pmks *capture.PMKCache, ssid string) (key.Pmk, error) {
	if cfg.PSK != "" {
		return key.PmkFromHex(cfg.PSK)
	}
	return pmks.PMK(cfg.Passphrase, ssid)
}

func checkOne(ssid, file string, hs *wifi.FourWayHandshake, pmk key.Pmk) *result.Result {
	r := &result.Result{
		Kind:        result.KindCheck,
		BSSID:       hs.BSSID.String(),
		Client:      hs.ClientMAC.String(),
		SSID:        ssid,
		CaptureFile: file,
		Timestamp:   time.Now(),
	}
	if akm, cipher, err := capture.Suites(hs); err == nil {
		r.AKM, r.Pairwise = akm.String(), cipher.String()
	}
	ok, err := capture.CheckPMK(hs, pmk)
	if err != nil {
		r.Error = err.Error()
	}
	r.Established = ok
	return r
}

// pskCmd prints the PMK for a passphrase and SSID.
func pskCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "psk",
		Short: "Derive the PMK for a passphrase and SSID",
		RunE: func(cmd *cobra.Command, args []string) error {
			pmk, err := key.PSK(cfg.Passphrase, []byte(cfg.SSID))
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(pmk[:]))
			return nil
		},
	}
}

// resultsCmd shows saved results.
func resultsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Show saved results",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := result.NewStore(cfg.Output.ResultsFile)
			if err != nil {
				return err
			}
			fmt.Print(banner)
			fmt.Println("\n  Results:")
			fmt.Println()
			fmt.Print(store.Format())
			return nil
		},
	}
}
