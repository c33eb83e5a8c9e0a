package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wifibear/rsn/internal/config"
	"github.com/wifibear/rsn/internal/result"
	"github.com/wifibear/rsn/internal/session"
)

// View represents which screen the TUI is showing.
type View int

const (
	ViewRun View = iota
	ViewResults
	ViewHelp
)

// Runner performs one simulated association, passing every event to observe
// as it happens.
type Runner func(ctx context.Context, observe func(session.Event)) (*result.Result, error)

// App is the main Bubble Tea model.
type App struct {
	cfg    *config.Config
	run    Runner
	store  *result.Store
	ctx    context.Context
	cancel context.CancelFunc

	view      View
	width     int
	height    int
	elapsed   time.Duration
	startTime time.Time

	// Run view state
	events  []session.Event
	running bool
	stopped bool
	runs    int
	last    *result.Result

	results []*result.Result

	err error
}

type tickMsg time.Time
// eventMsg and runDoneMsg carry the number of the run they belong to;
// messages from a stopped run are dropped.
type eventMsg struct {
	run int
	ch  <-chan session.Event
	ev  session.Event
}

type runDoneMsg struct {
	run    int
	result *result.Result
	err    error
}

func NewApp(cfg *config.Config, run Runner, store *result.Store) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:       cfg,
		run:       run,
		store:     store,
		ctx:       ctx,
		cancel:    cancel,
		view:      ViewRun,
		startTime: time.Now(),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(tickCmd(), a.startRun())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case tickMsg:
		if a.running {
			a.elapsed = time.Since(a.startTime)
		}
		return a, tickCmd()

	case eventMsg:
		if msg.run == a.runs {
			a.events = append(a.events, msg.ev)
		}
		if msg.ch == nil {
			return a, nil
		}
		return a, waitForEvent(msg.run, msg.ch)

	case runDoneMsg:
		if msg.run != a.runs {
			return a, nil
		}
		a.running = false
		a.last = msg.result
		a.err = msg.err
		if a.store != nil {
			a.results = a.store.All()
		}
		return a, nil
	}

	return a, nil
}

func (a *App) View() string {
	switch a.view {
	case ViewResults:
		return a.renderResultsView()
	case ViewHelp:
		return a.renderHelpView()
	default:
		return a.renderRunView()
	}
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		a.cancel()
		return a, tea.Quit

	case "?":
		if a.view == ViewHelp {
			a.view = ViewRun
		} else {
			a.view = ViewHelp
		}
		return a, nil

	case "r":
		a.view = ViewResults
		if a.store != nil {
			a.results = a.store.All()
		}
		return a, nil

	case "esc":
		a.view = ViewRun
		return a, nil
	}

	if a.view != ViewRun {
		return a, nil
	}
	switch msg.String() {
	case "n", "enter":
		if !a.running {
			return a, a.startRun()
		}
	case "s":
		if a.running {
			a.cancel()
			a.ctx, a.cancel = context.WithCancel(context.Background())
			a.running = false
			a.stopped = true
		}
	}
	return a, nil
}

func (a *App) startRun() tea.Cmd {
	a.running = true
	a.stopped = false
	a.runs++
	a.events = nil
	a.last = nil
	a.err = nil
	a.startTime = time.Now()
	a.elapsed = 0

	n := a.runs
	ch := make(chan session.Event, 64)
	ctx, run := a.ctx, a.run
	return tea.Batch(
		func() tea.Msg {
			defer close(ch)
			res, err := run(ctx, func(ev session.Event) { ch <- ev })
			return runDoneMsg{run: n, result: res, err: err}
		},
		waitForEvent(n, ch),
	)
}

// waitForEvent reads the next event of run n. It stops once ch is closed.
func waitForEvent(n int, ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{run: n, ch: ch, ev: ev}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Rendering

func (a *App) renderHeader() string {
	title := bannerStyle.Render("WifiBear")
	status := statusBarStyle.Render(fmt.Sprintf(
		"%s | %s/%s | Run %d | %s",
		a.cfg.SSID, a.cfg.Security.AKM, a.cfg.Security.PairwiseCipher, a.runs, a.elapsed.Round(time.Millisecond),
	))

	gap := ""
	if a.width > 0 {
		gapLen := a.width - len("WifiBear") - len(status) - 4
		if gapLen > 0 {
			gap = strings.Repeat(" ", gapLen)
		}
	}

	return borderStyle.Render(title + gap + status)
}

func (a *App) renderRunView() string {
	var b strings.Builder
	b.WriteString(a.renderHeader() + "\n\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf("  AP %s  STA %s", a.cfg.APMAC, a.cfg.STAMAC)) + "\n\n")

	if len(a.events) == 0 && a.running {
		b.WriteString(dimStyle.Render("  Waiting for the first frame...") + "\n")
	}
	for _, ev := range a.events {
		b.WriteString(renderEvent(ev) + "\n")
	}

	if !a.running && a.last != nil {
		b.WriteString("\n")
		if a.last.OK() {
			b.WriteString(successStyle.Render(fmt.Sprintf("  Established after %d attempt(s), %d rekey(s), %d frames",
				a.last.Attempts, a.last.Rekeys, a.last.Frames)) + "\n")
		} else {
			b.WriteString(failStyle.Render(fmt.Sprintf("  Not established after %d attempt(s)", a.last.Attempts)) + "\n")
		}
	}
	if a.stopped {
		b.WriteString("\n" + warnStyle.Render(fmt.Sprintf("  Run %d stopped", a.runs)) + "\n")
	}
	if a.err != nil {
		b.WriteString("\n" + failStyle.Render(fmt.Sprintf("  Error: %v", a.err)) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(footer([]struct{ key, desc string }{
		{"n", "New run"},
		{"s", "Stop"},
		{"r", "Results"},
		{"?", "Help"},
		{"q", "Quit"},
	}))
	return b.String()
}

func renderEvent(ev session.Event) string {
	switch ev.Kind {
	case session.EventFrame:
		return fmt.Sprintf("  %s %s  %-9s M%d  rc=%d  %s",
			progressStyle.Render("[>]"), Arrow(ev.From), ev.Exchange, ev.Message,
			ev.Frame.ReplayCounter, dimStyle.Render(ev.Frame.KeyInfo.String()))
	case session.EventDrop:
		return fmt.Sprintf("  %s %s  %-9s M%d  %s",
			warnStyle.Render("[~]"), Arrow(ev.From), ev.Exchange, ev.Message, warnStyle.Render("dropped"))
	case session.EventReject:
		return fmt.Sprintf("  %s %s rejected %s M%d: %s",
			failStyle.Render("[-]"), PeerLabel(ev.From), ev.Exchange, ev.Message, failStyle.Render(ev.Err.Error()))
	case session.EventInstall:
		return fmt.Sprintf("  %s %s installed %s key (id %d)",
			successStyle.Render("[+]"), PeerLabel(ev.From), ev.Slot, ev.KeyID)
	case session.EventStatus:
		return fmt.Sprintf("  %s %s %s",
			successStyle.Render("[+]"), PeerLabel(ev.From), successStyle.Render(ev.Status.String()))
	case session.EventReset:
		return fmt.Sprintf("  %s attempt %d: peers reset", warnStyle.Render("[~]"), ev.Attempt)
	default:
		return dimStyle.Render("  " + ev.Kind.String())
	}
}

func footer(keys []struct{ key, desc string }) string {
	s := "  "
	for i, k := range keys {
		if i > 0 {
			s += "  "
		}
		s += keyStyle.Render("["+k.key+"]") + " " + helpStyle.Render(k.desc)
	}
	return borderStyle.Render(s)
}

func (a *App) renderResultsView() string {
	s := a.renderHeader() + "\n\n"
	s += bannerStyle.Render("  Results") + "\n\n"

	if len(a.results) == 0 {
		s += dimStyle.Render("  No results yet.") + "\n"
	} else {
		s += headerStyle.Render(fmt.Sprintf("%-9s %-16s %-19s %-11s %-6s %s",
			"KIND", "SSID", "BSSID", "AKM", "TRIES", "RESULT"))
		s += "\n"

		for _, r := range a.results {
			ssid := r.SSID
			if len(ssid) > 14 {
				ssid = ssid[:14] + ".."
			}
			status := successStyle.Render("ok")
			if !r.OK() {
				status = failStyle.Render("failed")
			}
			s += fmt.Sprintf("  %-9s %-16s %-19s %-11s %-6d %s\n",
				r.Kind, ssid, r.BSSID, r.AKM, r.Attempts, status)
		}
	}

	s += "\n"
	s += borderStyle.Render("  " + keyStyle.Render("[Esc]") + " " + helpStyle.Render("Back"))

	return s
}

func (a *App) renderHelpView() string {
	s := a.renderHeader() + "\n\n"
	s += bannerStyle.Render("  Keyboard Shortcuts") + "\n\n"

	help := []struct{ key, desc string }{
		{"n / Enter", "Start a new run"},
		{"s", "Stop the current run"},
		{"r", "View saved results"},
		{"?", "Toggle help"},
		{"Esc", "Go back"},
		{"q / Ctrl+C", "Quit"},
	}

	for _, h := range help {
		s += fmt.Sprintf("  %s  %s\n",
			keyStyle.Render(fmt.Sprintf("%-20s", h.key)),
			helpStyle.Render(h.desc),
		)
	}

	s += "\n"
	s += borderStyle.Render("  " + keyStyle.Render("[Esc]") + " " + helpStyle.Render("Back"))

	return s
}

// Run starts the Bubble Tea program.
func Run(app *App) error {
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
