// Package display provides the terminal UI using Bubble Tea.
//
// The [UI] type manages a persistent session status bar and an input
// prompt at the bottom of the terminal. All application output is
// printed above the rendered area via Program.Println / Printf,
// ensuring concurrent writes never garble the display. The bar renders
// from session snapshots polled once a second; the UI never touches
// live session state.
package display

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/hammamikhairi/souschef/internal/domain"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	timerRunStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	timerWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// ── Output styles (soft palette) ──

	// BannerStyle — muted slate for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// Chat — soft sky blue for assistant speech.
	chatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd"))

	// Step — soft mint for step headers.
	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	// Primary text — light zinc for instructions.
	primaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	// Secondary text — dimmed zinc for hints, tips, metadata.
	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	// Urgent — soft coral for errors/alerts.
	urgentOutputStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#fca5a5"))

	userInputEchoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#a1a1aa"))
)

// ── UI ───────────────────────────────────────────────────────────

// SnapshotFunc returns a copy of the live session, or nil when no
// session is active. The UI polls it from the render loop, so it must
// be safe to call from any goroutine.
type SnapshotFunc func() *domain.Session

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI] then [UI.Run] (blocking). Other goroutines may safely
// call [UI.Println], [UI.Printf], and read from [UI.InputChan] at any
// time after [UI.WaitReady] returns.
type UI struct {
	program  *tea.Program
	inputCh  chan string
	readyCh  chan struct{}
	quitCh   chan struct{}
	snapshot SnapshotFunc
	done     atomic.Bool
	width    atomic.Int32
}

// NewUI creates the display. Call Run() to start.
func NewUI(snapshot SnapshotFunc) *UI {
	return &UI{
		snapshot: snapshot,
		inputCh:  make(chan string, 16),
		readyCh:  make(chan struct{}),
		quitCh:   make(chan struct{}),
	}
}

// Println prints a line above the prompt. Thread-safe.
// Each argument is converted via fmt.Sprint and printed on its own
// line(s). If the program hasn't started yet, falls back to
// fmt.Println.
func (u *UI) Println(a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Println(a...)
	} else {
		fmt.Println(a...)
	}
}

// Printf prints formatted text above the prompt. Thread-safe.
// The output is printed on its own line (a trailing newline in the
// format string will produce an extra blank line).
func (u *UI) Printf(format string, a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Printf(format, a...)
	} else {
		fmt.Printf(format, a...)
	}
}

// InputChan returns completed user-input lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// wrapWidth is the column limit for wrapped output: terminal width
// minus the indent, capped so lines stay readable on wide terminals.
func (u *UI) wrapWidth() int {
	w := int(u.width.Load())
	if w <= 0 {
		w = 80
	}
	if w > 100 {
		w = 100
	}
	return w - 4
}

// printWrapped word-wraps text to the terminal and prints each line in
// the given style with a two-space indent.
func (u *UI) printWrapped(style lipgloss.Style, text string) {
	wrapped := wordwrap.String(text, u.wrapWidth())
	for _, line := range strings.Split(wrapped, "\n") {
		u.Println(style.Render("  " + line))
	}
}

// ── Styled print helpers ─────────────────────────────────────────
// These give output visual hierarchy with lipgloss colors.

// PrintChat prints a conversational assistant line, word-wrapped.
func (u *UI) PrintChat(text string) {
	u.printWrapped(chatStyle, text)
}

// PrintStep prints a step header like "Step 2/8 (~5m)".
func (u *UI) PrintStep(text string) {
	u.Println(stepStyle.Render("  " + text))
}

// PrintInstruction prints the step's main instruction text.
func (u *UI) PrintInstruction(text string) {
	u.printWrapped(primaryStyle, text)
}

// PrintHint prints a secondary/dimmed line.
func (u *UI) PrintHint(text string) {
	u.printWrapped(secondaryStyle, text)
}

// PrintUrgent prints an urgent/error line (red, bold).
func (u *UI) PrintUrgent(text string) {
	u.printWrapped(urgentOutputStyle, text)
}

// PrintVoice prints a voice-recognised input line.
func (u *UI) PrintVoice(text string) {
	u.Println(secondaryStyle.Render("[voice] ") + primaryStyle.Render(text))
}

// PrintUserInput echoes the user's typed command into the scrollback.
func (u *UI) PrintUserInput(text string) {
	u.Println(promptStyle.Render("chef") + secondaryStyle.Render("> ") + userInputEchoStyle.Render(text))
}

// WaitReady blocks until the Bubble Tea event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

// QuitChan is closed when Run returns.
func (u *UI) QuitChan() <-chan struct{} { return u.quitCh }

// Run starts the Bubble Tea event loop. Blocks until quit.
func (u *UI) Run() error {
	ti := textinput.New()
	// Use a plain-text prompt so the textinput width math stays correct.
	// Lipgloss-styled prompts add invisible ANSI bytes that break the
	// internal offset/scroll calculations for long input.
	ti.Prompt = "chef> "
	ti.PromptStyle = promptStyle
	ti.TextStyle = userInputEchoStyle
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60 // updated on first WindowSizeMsg

	m := model{
		snapshot: u.snapshot,
		input:    ti,
		inputCh:  u.inputCh,
		readyCh:  u.readyCh,
		echoFn: func(v string) {
			u.PrintUserInput(v)
		},
		onResize: func(w int) {
			u.width.Store(int32(w))
		},
	}

	u.program = tea.NewProgram(m)
	_, err := u.program.Run()
	u.done.Store(true)
	close(u.quitCh)
	return err
}

// ── Bubble Tea model ─────────────────────────────────────────────

type model struct {
	snapshot SnapshotFunc
	input    textinput.Model
	inputCh  chan<- string
	readyCh  chan struct{}
	echoFn   func(string) // prints user input into scrollback
	onResize func(int)    // publishes terminal width for wrapping
	status   sessionBar
	width    int
}

// sessionBar is what the status bar knows about the session: enough to
// render, nothing it could mutate.
type sessionBar struct {
	active    bool
	phase     string
	step      int
	done      int
	total     int
	timer     *domain.TimerSnapshot
	meanwhile []string // parallel task instructions
}

// Messages.
type tickMsg time.Time

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
		signalReady(m.readyCh),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			v := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(v) != "" {
				m.inputCh <- v
				// Return a Cmd that prints the echo — this runs
				// outside Update so it won't deadlock on msgs.
				echoFn := m.echoFn
				return m, func() tea.Msg {
					echoFn(v)
					return nil
				}
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.onResize != nil {
			m.onResize(msg.Width)
		}
		// Let the text input use the full width minus the prompt ("chef> " = 6 chars).
		const promptLen = 6
		if msg.Width > promptLen {
			m.input.Width = msg.Width - promptLen
		}
		return m, nil

	case tickMsg:
		m.refreshStatus()
		cmds := []tea.Cmd{tickCmd()}
		cmds = append(cmds, tea.SetWindowTitle(m.titleStr()))
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refreshStatus() {
	m.status = sessionBar{}
	if m.snapshot == nil {
		return
	}
	s := m.snapshot()
	if s == nil {
		return
	}

	bar := sessionBar{
		active: true,
		phase:  s.State.String(),
		step:   s.CurrentStep,
		total:  len(s.StepStatuses),
		timer:  s.Timer,
	}
	for _, status := range s.StepStatuses {
		if status == domain.StepCompleted {
			bar.done++
		}
	}
	if s.Timer != nil {
		for _, task := range s.Timer.ParallelTasks {
			bar.meanwhile = append(bar.meanwhile, task.Instruction)
		}
	}
	m.status = bar
}

func (m model) titleStr() string {
	if m.status.active && m.status.timer != nil {
		return "SousChef — " + m.status.timer.Label + ": " + fmtSeconds(m.status.timer.Remaining)
	}
	return "SousChef"
}

func (m model) View() string {
	var b strings.Builder

	if m.status.active {
		b.WriteString(m.renderBar())
		b.WriteByte('\n')
	}

	// Blank line before prompt for visual separation.
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) renderBar() string {
	st := m.status
	var parts []string

	parts = append(parts, phaseStyle.Render(st.phase))

	if st.total > 0 {
		progress := fmt.Sprintf("%d/%d done", st.done, st.total)
		if st.step > 0 {
			progress = fmt.Sprintf("step %d · %s", st.step, progress)
		}
		parts = append(parts, labelStyle.Render(progress))
	}

	if t := st.timer; t != nil {
		style := timerRunStyle
		if t.WarningThreshold > 0 && t.Remaining <= t.WarningThreshold {
			style = timerWarnStyle
		}
		parts = append(parts,
			labelStyle.Render(t.Label+": ")+style.Render(fmtSeconds(t.Remaining)))
	}

	if len(st.meanwhile) > 0 {
		task := st.meanwhile[0]
		if r := []rune(task); len(r) > 32 {
			task = string(r[:31]) + "…"
		}
		if len(st.meanwhile) > 1 {
			task = fmt.Sprintf("%s (+%d)", task, len(st.meanwhile)-1)
		}
		parts = append(parts, labelStyle.Render("meanwhile: ")+phaseStyle.Render(task))
	}

	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "

	w := m.width
	if w <= 0 {
		w = 80
	}
	return barBg.Width(w).Render(content)
}

// ── Helpers ──────────────────────────────────────────────────────

// fmtSeconds renders a second count as "7m32s" or "45s".
func fmtSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	m := total / 60
	s := total % 60
	if m == 0 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
