package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/apresai/pitchroom/internal/gateway"
	"github.com/apresai/pitchroom/internal/persona"
	"github.com/apresai/pitchroom/internal/report"
	"github.com/apresai/pitchroom/internal/session"
)

// Styles for the pitch TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	investorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	founderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	deltaUpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	deltaDownStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	meterHighStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	meterMidStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E2C541"))
	meterLowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))

	headerBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

type pitchState int

const (
	statePitching pitchState = iota
	stateReporting
	stateReported
)

type chatLine struct {
	speaker string
	text    string
	delta   *int
}

type startedMsg struct {
	result session.StartResult
	err    error
}

type turnDoneMsg struct {
	outcome session.TurnOutcome
	err     error
}

type reportDoneMsg struct {
	rep *report.Report
	err error
}

type pitchModel struct {
	ctx     context.Context
	svc     *session.Service
	persona persona.Persona
	startup persona.Startup
	locale  string

	provider  string
	sessionID string
	state     pitchState
	busy      bool
	score     int
	reason    session.TerminationReason
	lines     []chatLine
	input     string
	errMsg    string
	rep       *report.Report
	width     int
	quitting  bool
}

func newPitchModel(ctx context.Context, svc *session.Service, provider string, p persona.Persona, s persona.Startup, locale string) pitchModel {
	return pitchModel{
		ctx:      ctx,
		svc:      svc,
		provider: provider,
		persona:  p,
		startup:  s,
		locale:   locale,
		score:    50,
		busy:     true,
		width:    80,
	}
}

func (m pitchModel) Init() tea.Cmd {
	return m.startCmd()
}

func (m pitchModel) startCmd() tea.Cmd {
	return func() tea.Msg {
		result, err := m.svc.StartPitch(m.ctx, session.StartRequest{
			Provider:  m.provider,
			PersonaID: m.persona.ID,
			Startup:   m.startup,
			Locale:    m.locale,
		})
		return startedMsg{result: result, err: err}
	}
}

func (m pitchModel) submitCmd(text string) tea.Cmd {
	return func() tea.Msg {
		outcome, err := m.svc.SubmitTurn(m.ctx, "", m.sessionID, text)
		return turnDoneMsg{outcome: outcome, err: err}
	}
}

func (m pitchModel) reportCmd() tea.Cmd {
	return func() tea.Msg {
		rep, err := m.svc.GenerateReport(m.ctx, "", m.sessionID)
		return reportDoneMsg{rep: rep, err: err}
	}
}

func (m pitchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case startedMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			m.quitting = true
			return m, tea.Quit
		}
		m.sessionID = msg.result.SessionID
		m.score = msg.result.Score
		m.lines = append(m.lines, chatLine{speaker: m.persona.Name, text: msg.result.Opening})
		return m, nil

	case turnDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		delta := msg.outcome.Delta
		m.score = msg.outcome.Score
		m.lines = append(m.lines, chatLine{speaker: m.persona.Name, text: msg.outcome.Reply, delta: &delta})
		if msg.outcome.Terminated {
			m.reason = msg.outcome.Reason
			m.state = stateReporting
			m.busy = true
			return m, m.reportCmd()
		}
		return m, nil

	case reportDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			m.quitting = true
			return m, tea.Quit
		}
		m.rep = msg.rep
		m.state = stateReported
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m pitchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.state == stateReported {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case "ctrl+e":
		// Walk out of the meeting and get the verdict.
		if m.state != statePitching || m.sessionID == "" {
			return m, nil
		}
		if err := m.svc.EndPitch(m.ctx, "", m.sessionID); err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.reason = session.ReasonUserEnded
		m.state = stateReporting
		m.busy = true
		return m, m.reportCmd()

	case "enter":
		if m.state == stateReported {
			m.quitting = true
			return m, tea.Quit
		}
		if m.state != statePitching || m.busy {
			return m, nil
		}
		text := strings.TrimSpace(m.input)
		if text == "" {
			return m, nil
		}
		m.input = ""
		m.busy = true
		m.lines = append(m.lines, chatLine{speaker: "You", text: text})
		return m, m.submitCmd(text)

	case "ctrl+u":
		m.input = ""
		return m, nil

	case "backspace":
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
		return m, nil

	default:
		if m.state == statePitching && !m.busy && msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		} else if m.state == statePitching && !m.busy && msg.Type == tea.KeySpace {
			m.input += " "
		}
		return m, nil
	}
}

// meter renders the interest score as a colored bar.
func (m pitchModel) meter() string {
	const width = 30
	filled := m.score * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	style := meterLowStyle
	switch {
	case m.score >= 70:
		style = meterHighStyle
	case m.score >= 40:
		style = meterMidStyle
	}
	return fmt.Sprintf("%s %s", style.Render(bar), style.Render(fmt.Sprintf("%d/100", m.score)))
}

func (m pitchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := fmt.Sprintf("%s\n%s pitching to %s (%s)\nInterest  %s",
		titleStyle.Render(" PITCH ROOM "),
		m.startup.Name, m.persona.Name, m.provider,
		m.meter())
	b.WriteString(headerBorder.Render(header))
	b.WriteString("\n\n")

	wrapWidth := m.width - 4
	if wrapWidth < 20 {
		wrapWidth = 20
	}

	for _, line := range m.lines {
		label := investorStyle.Render(line.speaker)
		if line.speaker == "You" {
			label = founderStyle.Render(line.speaker)
		}
		b.WriteString(label)
		if line.delta != nil {
			b.WriteString("  " + renderDelta(*line.delta))
		}
		b.WriteString("\n")
		b.WriteString(wrapText(line.text, wrapWidth))
		b.WriteString("\n\n")
	}

	switch m.state {
	case statePitching:
		if m.busy {
			if m.sessionID == "" {
				b.WriteString(helpStyle.Render("The investor is walking in..."))
			} else {
				b.WriteString(helpStyle.Render(m.persona.Name + " is thinking..."))
			}
		} else {
			b.WriteString(founderStyle.Render("> ") + m.input + "█")
		}
		b.WriteString("\n")
		if m.errMsg != "" {
			b.WriteString(errorStyle.Render("✗ "+m.errMsg) + "\n")
		}
		b.WriteString(helpStyle.Render("enter: answer • ctrl+e: end the meeting • ctrl+c: quit"))

	case stateReporting:
		b.WriteString(helpStyle.Render("The meeting is over. Waiting for the verdict..."))

	case stateReported:
		b.WriteString(m.reportView(wrapWidth))
	}

	return b.String()
}

func (m pitchModel) reportView(wrapWidth int) string {
	var b strings.Builder

	decision := string(m.rep.Decision)
	decisionStyle := deltaDownStyle
	if m.rep.Decision == report.DecisionFunded {
		decisionStyle = deltaUpStyle
	}

	b.WriteString(headerBorder.Render(fmt.Sprintf("%s  final score %d/100  (%s)",
		decisionStyle.Render(decision), m.rep.Score, m.reason)))
	b.WriteString("\n\n")
	b.WriteString(wrapText(m.rep.Feedback, wrapWidth))
	b.WriteString("\n")

	if len(m.rep.Strengths) > 0 {
		b.WriteString("\n" + deltaUpStyle.Render("What worked:") + "\n")
		for _, s := range m.rep.Strengths {
			b.WriteString("  + " + s + "\n")
		}
	}
	if len(m.rep.Weaknesses) > 0 {
		b.WriteString("\n" + deltaDownStyle.Render("What didn't:") + "\n")
		for _, w := range m.rep.Weaknesses {
			b.WriteString("  - " + w + "\n")
		}
	}

	b.WriteString("\n" + helpStyle.Render("enter or esc to leave the room"))
	return b.String()
}

func renderDelta(delta int) string {
	switch {
	case delta > 0:
		return deltaUpStyle.Render(fmt.Sprintf("▲ +%d", delta))
	case delta < 0:
		return deltaDownStyle.Render(fmt.Sprintf("▼ %d", delta))
	default:
		return helpStyle.Render("• 0")
	}
}

func wrapText(s string, width int) string {
	words := strings.Fields(s)
	var b strings.Builder
	line := 0
	for _, w := range words {
		if line > 0 && line+len(w)+1 > width {
			b.WriteString("\n")
			line = 0
		} else if line > 0 {
			b.WriteString(" ")
			line++
		}
		b.WriteString(w)
		line += len(w)
	}
	return b.String()
}

func runPitch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// The TUI owns the terminal, so logs go nowhere.
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))

	startup, err := resolveStartup(ctx)
	if err != nil {
		return err
	}

	p, ok := persona.Lookup(flagPersona)
	if !ok {
		ids := make([]string, 0, 4)
		for _, known := range persona.All() {
			ids = append(ids, known.ID)
		}
		return fmt.Errorf("unknown persona %q (available: %s)", flagPersona, strings.Join(ids, ", "))
	}

	gw := gateway.Default(log)
	providerID, err := resolveProvider(gw)
	if err != nil {
		return err
	}

	svc := session.NewService(gw, nil, nil, log)

	if !stdoutIsTTY() {
		return runPlainPitch(ctx, svc, log, providerID, p, startup, flagLocale)
	}

	model := newPitchModel(ctx, svc, providerID, p, startup, flagLocale)
	program := tea.NewProgram(model, tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("pitch session failed: %w", err)
	}

	if fm, ok := final.(pitchModel); ok && fm.errMsg != "" && fm.rep == nil {
		return fmt.Errorf("%s", fm.errMsg)
	}
	return nil
}
